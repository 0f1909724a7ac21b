package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/jimlawless/whereami"
)

type Config struct {
	Db        *PGDBCfg
	Qdrant    *QdrantCfg
	Redis     *RedisCfg
	Minio     *MinIOCfg
	Kafka     *KafkaCfg
	Inference *InferenceCfg
	Clip      *ClipCfg
	Worker    *WorkerCfg
}

type PGDBCfg struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type QdrantCfg struct {
	Host                 string
	Port                 int
	ApiKey               string
	QdrantCollectionName string // имя коллекции в Qdrant
	UseTLS               bool
	VectorSize           uint64
}

type RedisCfg struct {
	Addr        string
	Password    string
	User        string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration
	QueryTTL    time.Duration // TTL кэша эмбеддингов поисковых запросов
}

type MinIOCfg struct {
	MinioEndpoint     string
	BucketName        string
	MinioRootUser     string
	MinioRootPassword string
	MinioUseSSL       bool
}

type KafkaCfg struct {
	Topic             string
	Brokers           []string
	NetworkMode       string
	Partitions        int
	ReplicationFactor int
}

type InferenceCfg struct {
	BaseURL       string
	Timeout       time.Duration
	MaxConcurrent int
}

type ClipCfg struct {
	ModelID string
	// IdleThreshold — запасной порог простоя модели; рабочее значение
	// берётся из system_config и перечитывается по хуку.
	IdleThreshold time.Duration
}

type WorkerCfg struct {
	// PollInterval — базовый интервал опроса pending-изображений (с джиттером).
	PollInterval time.Duration
	BatchSize    int
	// Industry — вертикаль инсталляции для контекстных промптов ("textil", "calzado").
	Industry string
}

// Load безопасно загружает конфигурацию и возвращает ошибку в случае неудачи.
func Load(log logger.Logger) (*Config, error) {
	db, err := loadPGDBCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	qdrant, err := loadQdrantCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	redis, err := loadRedisCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	minio, err := loadMinIOCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	kafka, err := loadKafkaCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	inference, err := loadInferenceCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	clip, err := loadClipCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	worker, err := loadWorkerCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &Config{
		Db:        db,
		Qdrant:    qdrant,
		Redis:     redis,
		Minio:     minio,
		Kafka:     kafka,
		Inference: inference,
		Clip:      clip,
		Worker:    worker,
	}, nil
}

func loadPGDBCfg(log logger.Logger) (*PGDBCfg, error) {
	const (
		defaultHost    = "localhost"
		defaultPort    = "5432"
		defaultSSLMode = "disable"
	)

	user := getEnv("POSTGRES_USER")
	if user == "" {
		err := fmt.Errorf("POSTGRES_USER is required")
		log.Errorf(err, "missing POSTGRES_USER")
		return nil, err
	}

	password := getEnv("POSTGRES_PASSWORD")
	if password == "" {
		err := fmt.Errorf("POSTGRES_PASSWORD is required")
		log.Errorf(err, "missing POSTGRES_PASSWORD")
		return nil, err
	}

	dbName := getEnv("POSTGRES_DB")
	if dbName == "" {
		err := fmt.Errorf("POSTGRES_DB is required")
		log.Errorf(err, "missing POSTGRES_DB")
		return nil, err
	}

	return &PGDBCfg{
		Host:     getEnvOrDefault("POSTGRES_HOST", defaultHost),
		Port:     getEnvOrDefault("POSTGRES_PORT", defaultPort),
		User:     user,
		Password: password,
		DBName:   dbName,
		SSLMode:  getEnvOrDefault("POSTGRES_SSL_MODE", defaultSSLMode),
	}, nil
}

func loadQdrantCfg() (*QdrantCfg, error) {
	const (
		defaultHost       = "localhost"
		defaultPort       = 6334
		defaultCollection = "product_embeddings"
		defaultVectorSize = 512
	)

	port, err := parseIntEnv("QDRANT_PORT", defaultPort)
	if err != nil {
		return nil, e.Wrap("QDRANT_PORT", err)
	}

	useTLS, err := strconv.ParseBool(getEnvOrDefault("QDRANT_USE_TLS", "false"))
	if err != nil {
		return nil, e.Wrap("QDRANT_USE_TLS", e.ErrIncorrectEnvVariable)
	}

	vectorSize, err := parseIntEnv("QDRANT_VECTOR_SIZE", defaultVectorSize)
	if err != nil {
		return nil, e.Wrap("QDRANT_VECTOR_SIZE", err)
	}

	return &QdrantCfg{
		Host:                 getEnvOrDefault("QDRANT_HOST", defaultHost),
		Port:                 port,
		ApiKey:               getEnv("QDRANT_API_KEY"),
		QdrantCollectionName: getEnvOrDefault("QDRANT_COLLECTION", defaultCollection),
		UseTLS:               useTLS,
		VectorSize:           uint64(vectorSize),
	}, nil
}

func loadRedisCfg(log logger.Logger) (*RedisCfg, error) {
	const (
		defaultAddr        = "localhost:6379"
		defaultDB          = 0
		defaultMaxRetries  = 3
		defaultDialTimeout = 5 * time.Second
		defaultTimeout     = 3 * time.Second
		defaultQueryTTL    = 24 * time.Hour
	)

	db, err := parseIntEnv("REDIS_DB", defaultDB)
	if err != nil {
		log.Errorf(err, "invalid REDIS_DB")
		return nil, err
	}

	maxRetries, err := parseIntEnv("REDIS_MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		log.Errorf(err, "invalid REDIS_MAX_RETRIES")
		return nil, err
	}

	dialTimeout, err := parseDurationEnv("REDIS_DIAL_TIMEOUT", defaultDialTimeout)
	if err != nil {
		log.Errorf(err, "invalid REDIS_DIAL_TIMEOUT")
		return nil, err
	}

	timeout, err := parseDurationEnv("REDIS_TIMEOUT", defaultTimeout)
	if err != nil {
		log.Errorf(err, "invalid REDIS_TIMEOUT")
		return nil, err
	}

	queryTTL, err := parseDurationEnv("REDIS_QUERY_TTL", defaultQueryTTL)
	if err != nil {
		log.Errorf(err, "invalid REDIS_QUERY_TTL")
		return nil, err
	}

	return &RedisCfg{
		Addr:        getEnvOrDefault("REDIS_ADDR", defaultAddr),
		Password:    getEnv("REDIS_PASSWORD"),
		User:        getEnv("REDIS_USER"),
		DB:          db,
		MaxRetries:  maxRetries,
		DialTimeout: dialTimeout,
		Timeout:     timeout,
		QueryTTL:    queryTTL,
	}, nil
}

func loadMinIOCfg(log logger.Logger) (*MinIOCfg, error) {
	const (
		defaultUseSSL   = false
		defaultEndpoint = "minio:9000"
	)

	useSSL, err := strconv.ParseBool(getEnvOrDefault("MINIO_USE_SSL", strconv.FormatBool(defaultUseSSL)))
	if err != nil {
		log.Errorf(err, "invalid MINIO_USE_SSL")
		return nil, err
	}

	return &MinIOCfg{
		MinioEndpoint:     getEnvOrDefault("MINIO_ENDPOINT", defaultEndpoint),
		BucketName:        getEnv("BUCKET_NAME"),
		MinioRootUser:     getEnv("MINIO_ROOT_USER"),
		MinioRootPassword: getEnv("MINIO_ROOT_PASSWORD"),
		MinioUseSSL:       useSSL,
	}, nil
}

func loadKafkaCfg() (*KafkaCfg, error) {
	const (
		defaultPartitions        = 3
		defaultReplicationFactor = 1
		defaultNetworkMode       = "tcp"
		defaultTopic             = "embeddings.updated"
	)

	brokerStr := os.Getenv("KAFKA_BROKERS")
	if brokerStr == "" {
		return nil, fmt.Errorf("KAFKA_BROKERS environment variable is required")
	}
	brokers := strings.Split(brokerStr, ",")

	partitions, err := parseIntEnv("KAFKA_PARTITIONS", defaultPartitions)
	if err != nil {
		return nil, e.Wrap("KAFKA_PARTITIONS", err)
	}

	replicationFactor, err := parseIntEnv("REPLICATION_FACTOR", defaultReplicationFactor)
	if err != nil {
		return nil, e.Wrap("REPLICATION_FACTOR", err)
	}

	return &KafkaCfg{
		Brokers:           brokers,
		Topic:             getEnvOrDefault("KAFKA_TOPIC", defaultTopic),
		Partitions:        partitions,
		ReplicationFactor: replicationFactor,
		NetworkMode:       getEnvOrDefault("KAFKA_NETWORK_MODE", defaultNetworkMode),
	}, nil
}

func loadInferenceCfg(log logger.Logger) (*InferenceCfg, error) {
	const (
		defaultTimeout       = 120 * time.Second
		defaultMaxConcurrent = 4
	)

	baseURL := getEnv("INFERENCE_BASE_URL")
	if baseURL == "" {
		err := fmt.Errorf("INFERENCE_BASE_URL is required")
		log.Errorf(err, "missing INFERENCE_BASE_URL")
		return nil, err
	}

	timeout, err := parseDurationEnv("INFERENCE_TIMEOUT", defaultTimeout)
	if err != nil {
		log.Errorf(err, "invalid INFERENCE_TIMEOUT")
		return nil, err
	}

	maxConcurrent, err := parseIntEnv("INFERENCE_MAX_CONCURRENT", defaultMaxConcurrent)
	if err != nil {
		log.Errorf(err, "invalid INFERENCE_MAX_CONCURRENT")
		return nil, err
	}

	return &InferenceCfg{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		Timeout:       timeout,
		MaxConcurrent: maxConcurrent,
	}, nil
}

func loadClipCfg(log logger.Logger) (*ClipCfg, error) {
	const (
		defaultModelID       = "clip-vit-b16"
		defaultIdleThreshold = 30 * time.Minute
	)

	idleThreshold, err := parseDurationEnv("CLIP_IDLE_THRESHOLD", defaultIdleThreshold)
	if err != nil {
		log.Errorf(err, "invalid CLIP_IDLE_THRESHOLD")
		return nil, err
	}

	return &ClipCfg{
		ModelID:       getEnvOrDefault("CLIP_MODEL_ID", defaultModelID),
		IdleThreshold: idleThreshold,
	}, nil
}

func loadWorkerCfg(log logger.Logger) (*WorkerCfg, error) {
	const (
		defaultPollInterval = 30 * time.Second
		defaultBatchSize    = 20
		defaultIndustry     = "general"
	)

	pollInterval, err := parseDurationEnv("WORKER_POLL_INTERVAL", defaultPollInterval)
	if err != nil {
		log.Errorf(err, "invalid WORKER_POLL_INTERVAL")
		return nil, err
	}

	batchSize, err := parseIntEnv("WORKER_BATCH_SIZE", defaultBatchSize)
	if err != nil {
		log.Errorf(err, "invalid WORKER_BATCH_SIZE")
		return nil, err
	}

	return &WorkerCfg{
		PollInterval: pollInterval,
		BatchSize:    batchSize,
		Industry:     getEnvOrDefault("WORKER_INDUSTRY", defaultIndustry),
	}, nil
}

func getEnv(key string) string {
	return os.Getenv(key)
}

func getEnvOrDefault(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}

func parseIntEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, e.ErrIncorrectEnvVariable
	}
	return value, nil
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, e.ErrIncorrectEnvVariable
	}
	return value, nil
}
