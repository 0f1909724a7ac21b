package redis

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/jimlawless/whereami"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/pkg/clients"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
)

const queryKeyPrefix = "query_embedding:"

// QueryCacheRepo кэширует эмбеддинги текстовых запросов в Redis.
// Любая ошибка кэша сводится к промаху: поиск продолжается без него.
type QueryCacheRepo struct {
	client *clients.RedisClient
	cfg    *cfg.RedisCfg
	logger logger.Logger
}

func NewQueryCacheRepo(client *clients.RedisClient, cfg *cfg.RedisCfg, logger logger.Logger) *QueryCacheRepo {
	return &QueryCacheRepo{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// GetQueryEmbedding возвращает закэшированный эмбеддинг запроса, если он есть.
func (r *QueryCacheRepo) GetQueryEmbedding(ctx context.Context, query string) ([]float32, bool) {
	data, err := r.client.Client.Get(ctx, queryKey(query)).Bytes()
	if err != nil {
		return nil, false // cache miss либо Redis недоступен
	}

	var vector []float32
	if err := json.Unmarshal(data, &vector); err != nil {
		r.logger.Warnf("Redis unmarshal failed: %v", e.Wrap(whereami.WhereAmI(), err))
		return nil, false
	}

	return vector, true
}

// SetQueryEmbedding кэширует эмбеддинг запроса с настроенным TTL.
// Ошибки записи логируются и не прерывают поиск.
func (r *QueryCacheRepo) SetQueryEmbedding(ctx context.Context, query string, vector []float32) {
	data, err := json.Marshal(vector)
	if err != nil {
		r.logger.Warnf("Redis marshal failed: %v", e.Wrap(whereami.WhereAmI(), err))
		return
	}

	if err := r.client.Client.Set(ctx, queryKey(query), data, r.cfg.QueryTTL).Err(); err != nil {
		r.logger.Warnf("Redis SET failed: %v", e.Wrap(whereami.WhereAmI(), err))
	}
}

// queryKey строит ключ из md5-хэша нормализованного текста запроса.
func queryKey(query string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(query))))
	return queryKeyPrefix + hex.EncodeToString(sum[:])
}
