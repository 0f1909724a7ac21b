// Package clip содержит ядро визуального поиска: управление жизненным циклом
// inference-модели и генерацию контекстных эмбеддингов.
package clip

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
)

// Backend загружает модель на inference-сервере и возвращает сессию для работы с ней.
type Backend interface {
	LoadModel(ctx context.Context, modelID string) (Session, error)
}

// Session — загруженная модель вместе с препроцессором.
// Close освобождает память модели (включая память устройства).
type Session interface {
	EmbedImage(ctx context.Context, image []byte, prompt string) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Close(ctx context.Context) error
}

// ThresholdSource — живой источник порога простоя модели.
type ThresholdSource interface {
	IdleThreshold(ctx context.Context) (time.Duration, error)
}

const (
	// defaultPollInterval — фиксированный интервал фонового опроса простоя.
	// Не зависит от настроенного порога.
	defaultPollInterval = time.Minute
	// DefaultIdleThreshold применяется, когда источник порога недоступен.
	DefaultIdleThreshold = 30 * time.Minute
)

// Manager владеет единственной загруженной моделью на процесс.
// Загрузка/выгрузка/смена модели сериализованы одним мьютексом; сам инференс
// мьютекс не держит, поэтому параллельные вызовы на загруженной модели не
// блокируют друг друга.
type Manager struct {
	backend    Backend
	thresholds ThresholdSource
	logger     logger.Logger

	pollInterval time.Duration
	now          func() time.Time

	mu          sync.Mutex
	modelID     string // сконфигурированный идентификатор модели
	loadedModel string // идентификатор фактически загруженной модели
	session     Session

	lastUsed atomic.Int64 // unix nano последнего Acquire

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewManager(backend Backend, modelID string, thresholds ThresholdSource, logger logger.Logger) *Manager {
	return &Manager{
		backend:      backend,
		thresholds:   thresholds,
		logger:       logger,
		pollInterval: defaultPollInterval,
		now:          time.Now,
		modelID:      modelID,
		stop:         make(chan struct{}),
	}
}

// Acquire возвращает сессию загруженной модели, загружая её при необходимости.
// Если сконфигурированная модель отличается от загруженной, старая выгружается
// до загрузки новой, даже если она ещё не простаивала. Неудачная загрузка
// оставляет менеджер в выгруженном состоянии — следующий вызов повторит попытку.
func (m *Manager) Acquire(ctx context.Context) (Session, error) {
	const op = "clip.Manager.Acquire"

	m.mu.Lock()
	if m.session == nil || m.loadedModel != m.modelID {
		if m.session != nil {
			m.logger.Infof("switching model %s -> %s, unloading", m.loadedModel, m.modelID)
			m.unloadLocked(context.Background())
		}

		session, err := m.backend.LoadModel(ctx, m.modelID)
		if err != nil {
			m.mu.Unlock()
			return nil, e.Wrap(op, e.WrapSentinel(e.ErrModelLoad, err))
		}

		m.session = session
		m.loadedModel = m.modelID
		m.logger.Infof("model %s loaded", m.modelID)
	}
	session := m.session
	m.touch()
	m.mu.Unlock()

	return session, nil
}

// SetModel меняет сконфигурированную модель. Фактическая замена происходит
// при следующем Acquire.
func (m *Manager) SetModel(modelID string) {
	m.mu.Lock()
	m.modelID = modelID
	m.mu.Unlock()
}

// Loaded сообщает, загружена ли модель в данный момент.
func (m *Manager) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// touch обновляет отметку последнего использования. Вызывается под мьютексом,
// чтобы выдача сессии и отметка были атомарны относительно выгрузки.
func (m *Manager) touch() {
	m.lastUsed.Store(m.now().UnixNano())
}

// Start запускает единственную фоновую задачу выгрузки по простою.
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.evictIfIdle(context.Background())
			}
		}
	}()
}

// Stop останавливает фоновую задачу и выгружает модель.
func (m *Manager) Stop(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.unloadLocked(ctx)
	return nil
}

// evictIfIdle выгружает модель, если с последнего использования прошло
// не меньше настроенного порога простоя.
func (m *Manager) evictIfIdle(ctx context.Context) {
	last := m.lastUsed.Load()
	if last == 0 {
		return
	}

	threshold := m.idleThreshold(ctx)
	idle := m.now().Sub(time.Unix(0, last))
	if idle < threshold {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return
	}

	// Повторная проверка под мьютексом: параллельный Acquire мог выдать
	// сессию и обновить отметку после первого чтения. Выгружать только
	// что выданную сессию нельзя.
	idle = m.now().Sub(time.Unix(0, m.lastUsed.Load()))
	if idle < threshold {
		return
	}

	m.logger.Infof("unloading model %s (idle %s >= %s)", m.loadedModel, idle.Truncate(time.Second), threshold)
	m.unloadLocked(ctx)
}

// unloadLocked закрывает сессию; вызывается только под мьютексом.
func (m *Manager) unloadLocked(ctx context.Context) {
	if m.session == nil {
		return
	}
	if err := m.session.Close(ctx); err != nil {
		m.logger.Warnf("model %s close error: %v", m.loadedModel, err)
	}
	m.session = nil
	m.loadedModel = ""
}

func (m *Manager) idleThreshold(ctx context.Context) time.Duration {
	threshold, err := m.thresholds.IdleThreshold(ctx)
	if err != nil || threshold <= 0 {
		if err != nil {
			m.logger.Warnf("idle threshold unavailable, using default %s: %v", DefaultIdleThreshold, err)
		}
		return DefaultIdleThreshold
	}
	return threshold
}

// ThresholdCache кэширует порог простоя из медленного источника.
// Invalidate сбрасывает кэш, чтобы следующий запрос увидел новое значение.
type ThresholdCache struct {
	fetch func(ctx context.Context) (time.Duration, error)

	mu     sync.Mutex
	value  time.Duration
	loaded bool
}

func NewThresholdCache(fetch func(ctx context.Context) (time.Duration, error)) *ThresholdCache {
	return &ThresholdCache{fetch: fetch}
}

func (c *ThresholdCache) IdleThreshold(ctx context.Context) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		return c.value, nil
	}

	value, err := c.fetch(ctx)
	if err != nil {
		return 0, err
	}

	c.value = value
	c.loaded = true
	return value, nil
}

// Invalidate сбрасывает кэшированное значение; вызывается хуком перезагрузки конфигурации.
func (c *ThresholdCache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.mu.Unlock()
}
