package clip

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debugf(format string, args ...any)            {}
func (nopLogger) Infof(format string, args ...any)             {}
func (nopLogger) Warnf(format string, args ...any)             {}
func (nopLogger) Errorf(err error, format string, args ...any) {}

type fakeSession struct {
	mu     sync.Mutex
	closed bool

	embedImage func(prompt string) ([]float32, error)
	embedText  func(text string) ([]float32, error)
}

func (s *fakeSession) EmbedImage(_ context.Context, _ []byte, prompt string) ([]float32, error) {
	if s.embedImage == nil {
		return []float32{1, 0, 0}, nil
	}
	return s.embedImage(prompt)
}

func (s *fakeSession) EmbedText(_ context.Context, text string) ([]float32, error) {
	if s.embedText == nil {
		return []float32{0, 1, 0}, nil
	}
	return s.embedText(text)
}

func (s *fakeSession) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeBackend struct {
	mu       sync.Mutex
	loads    []string
	failNext error
	last     *fakeSession
}

func (b *fakeBackend) LoadModel(_ context.Context, modelID string) (Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failNext != nil {
		err := b.failNext
		b.failNext = nil
		return nil, err
	}

	b.loads = append(b.loads, modelID)
	b.last = &fakeSession{}
	return b.last, nil
}

func (b *fakeBackend) loadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.loads)
}

type fixedThreshold time.Duration

func (t fixedThreshold) IdleThreshold(context.Context) (time.Duration, error) {
	return time.Duration(t), nil
}

func newTestManager(backend *fakeBackend) (*Manager, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(backend, "clip-vit-b16", fixedThreshold(30*time.Minute), nopLogger{})
	m.now = func() time.Time { return now }
	return m, &now
}

func TestManager_AcquireLoadsLazilyAndOnce(t *testing.T) {
	backend := &fakeBackend{}
	m, _ := newTestManager(backend)

	require.False(t, m.Loaded())

	s1, err := m.Acquire(context.Background())
	require.NoError(t, err)

	s2, err := m.Acquire(context.Background())
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Equal(t, 1, backend.loadCount())
	assert.True(t, m.Loaded())
}

func TestManager_LoadFailureLeavesUnloaded(t *testing.T) {
	backend := &fakeBackend{failNext: errors.New("out of memory")}
	m, _ := newTestManager(backend)

	_, err := m.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "out of memory")
	assert.False(t, m.Loaded())

	// следующий вызов пробует снова и успевает
	_, err = m.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, m.Loaded())
}

func TestManager_IdleEviction(t *testing.T) {
	backend := &fakeBackend{}
	m, now := newTestManager(backend)

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	first := backend.last

	// до порога модель остаётся загруженной
	*now = now.Add(29 * time.Minute)
	m.evictIfIdle(context.Background())
	assert.True(t, m.Loaded())
	assert.False(t, first.isClosed())

	// порог пройден — выгрузка
	*now = now.Add(2 * time.Minute)
	m.evictIfIdle(context.Background())
	assert.False(t, m.Loaded())
	assert.True(t, first.isClosed())

	// после выгрузки Acquire загружает заново
	_, err = m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, backend.loadCount())
}

func TestManager_AcquireResetsIdleClock(t *testing.T) {
	backend := &fakeBackend{}
	m, now := newTestManager(backend)

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)

	*now = now.Add(20 * time.Minute)
	_, err = m.Acquire(context.Background())
	require.NoError(t, err)

	// 29 минут от второго вызова, 49 от первого: модель ещё свежа
	*now = now.Add(29 * time.Minute)
	m.evictIfIdle(context.Background())
	assert.True(t, m.Loaded())
}

// acquireDuringEviction воспроизводит гонку выгрузки: пока evictIfIdle
// читает порог, параллельный вызов успевает получить сессию.
type acquireDuringEviction struct {
	m         *Manager
	threshold time.Duration
	acquired  Session
	err       error
}

func (s *acquireDuringEviction) IdleThreshold(context.Context) (time.Duration, error) {
	s.acquired, s.err = s.m.Acquire(context.Background())
	return s.threshold, nil
}

func TestManager_EvictionSkipsFreshlyAcquiredSession(t *testing.T) {
	backend := &fakeBackend{}
	m, now := newTestManager(backend)

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	session := backend.last

	src := &acquireDuringEviction{m: m, threshold: 30 * time.Minute}
	m.thresholds = src

	// отметка простоя устарела, но между её чтением и выгрузкой сессию
	// забирает другой вызов: закрывать её под ним нельзя
	*now = now.Add(31 * time.Minute)
	m.evictIfIdle(context.Background())

	require.NoError(t, src.err)
	assert.Same(t, Session(session), src.acquired)
	assert.True(t, m.Loaded())
	assert.False(t, session.isClosed())
	assert.Equal(t, 1, backend.loadCount())
}

func TestManager_SwitchModelUnloadsOldFirst(t *testing.T) {
	backend := &fakeBackend{}
	m, _ := newTestManager(backend)

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	old := backend.last

	m.SetModel("clip-vit-l14")

	_, err = m.Acquire(context.Background())
	require.NoError(t, err)

	assert.True(t, old.isClosed())
	assert.Equal(t, []string{"clip-vit-b16", "clip-vit-l14"}, backend.loads)
}

func TestManager_StopUnloads(t *testing.T) {
	backend := &fakeBackend{}
	m, _ := newTestManager(backend)
	m.Start()

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.Stop(context.Background()))
	assert.False(t, m.Loaded())
	assert.True(t, backend.last.isClosed())
}

func TestThresholdCache_CachesAndInvalidates(t *testing.T) {
	calls := 0
	cache := NewThresholdCache(func(context.Context) (time.Duration, error) {
		calls++
		return 15 * time.Minute, nil
	})

	for i := 0; i < 3; i++ {
		v, err := cache.IdleThreshold(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 15*time.Minute, v)
	}
	assert.Equal(t, 1, calls)

	cache.Invalidate()
	_, err := cache.IdleThreshold(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestManager_ThresholdSourceFailureFallsBack(t *testing.T) {
	backend := &fakeBackend{}
	m, now := newTestManager(backend)
	m.thresholds = NewThresholdCache(func(context.Context) (time.Duration, error) {
		return 0, errors.New("db down")
	})

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)

	*now = now.Add(DefaultIdleThreshold - time.Minute)
	m.evictIfIdle(context.Background())
	assert.True(t, m.Loaded())

	*now = now.Add(2 * time.Minute)
	m.evictIfIdle(context.Background())
	assert.False(t, m.Loaded())
}
