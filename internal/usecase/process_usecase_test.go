package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
)

type fakeImages struct {
	pending []*domain.Image

	claimed   map[int64]bool // nil — все изображения забираются
	completed []int64
	failed    map[int64]string
}

func (f *fakeImages) PendingImages(_ context.Context, _ int64, limit int) ([]*domain.Image, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeImages) ClientsWithPendingImages(_ context.Context) ([]int64, error) {
	return nil, nil
}

func (f *fakeImages) CompletedImageCount(_ context.Context, _, _ int64) (int64, error) {
	return int64(len(f.completed)), nil
}

func (f *fakeImages) MarkProcessing(_ context.Context, imageID int64) (bool, error) {
	if f.claimed == nil {
		return true, nil
	}
	return f.claimed[imageID], nil
}

func (f *fakeImages) MarkCompleted(_ context.Context, imageID int64, _ string) error {
	f.completed = append(f.completed, imageID)
	return nil
}

func (f *fakeImages) MarkFailed(_ context.Context, imageID int64, message string) error {
	if f.failed == nil {
		f.failed = map[int64]string{}
	}
	f.failed[imageID] = message
	return nil
}

type fakeBlob struct {
	objects map[string][]byte
}

func (f *fakeBlob) FetchBytes(_ context.Context, objectKey string) ([]byte, error) {
	data, ok := f.objects[objectKey]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

type fakeOutbox struct {
	created   []*OutboxEvent
	createErr error
}

func (f *fakeOutbox) Create(_ context.Context, event *OutboxEvent) (*OutboxEvent, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, event)
	return event, nil
}

func (f *fakeOutbox) GetAndMarkAsProcessing(_ context.Context, _ int) ([]*OutboxEvent, error) {
	return nil, nil
}

func (f *fakeOutbox) MarkAsProcessed(_ context.Context, _ int64) error {
	return nil
}

type fakeColorLearner struct {
	learned []string
}

func (f *fakeColorLearner) ProcessColor(_ context.Context, _ int64, rawColor string) (*domain.ColorMapping, error) {
	f.learned = append(f.learned, rawColor)
	return &domain.ColorMapping{RawColor: rawColor}, nil
}

// fakeTx подменяет pgx.Tx: фиксация и откат — no-op, остальное не вызывается.
type fakeTx struct {
	pgx.Tx
}

func (t *fakeTx) Commit(_ context.Context) error   { return nil }
func (t *fakeTx) Rollback(_ context.Context) error { return nil }

type fakeDB struct{}

func (fakeDB) Begin(_ context.Context) (pgx.Tx, error) {
	return &fakeTx{}, nil
}

func (fakeDB) BeginTx(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	return &fakeTx{}, nil
}

type processFixture struct {
	images     *fakeImages
	blob       *fakeBlob
	catalog    *fakeCatalog
	categories *fakeCategories
	embeddings *fakeEmbeddings
	outbox     *fakeOutbox
	centroids  *fakeCentroids
	colors     *fakeColorLearner
	generator  *fakeGenerator
	uc         *ProcessUseCase
}

func newProcessFixture(t *testing.T) *processFixture {
	t.Helper()

	f := &processFixture{
		images:     &fakeImages{},
		blob:       &fakeBlob{objects: map[string][]byte{}},
		catalog:    &fakeCatalog{},
		categories: &fakeCategories{},
		embeddings: &fakeEmbeddings{},
		outbox:     &fakeOutbox{},
		centroids:  &fakeCentroids{centroids: map[int64][]float32{}},
		colors:     &fakeColorLearner{},
		generator:  &fakeGenerator{vector: []float32{1, 0}},
	}
	f.uc = NewProcessUC(
		f.images,
		f.blob,
		f.catalog,
		f.categories,
		f.embeddings,
		f.outbox,
		f.centroids,
		f.colors,
		f.generator,
		fakeDB{},
		"clip-vit-b16",
		nopLogger{},
	)
	return f
}

func (f *processFixture) addPendingImage(imageID, productID, categoryID int64) {
	objectKey := "images/obj"
	f.images.pending = append(f.images.pending, &domain.Image{
		ID:        imageID,
		ClientID:  1,
		ProductID: productID,
		ObjectKey: objectKey,
		Status:    domain.ImagePending,
	})
	f.blob.objects[objectKey] = []byte{0xFF}
	f.catalog.products = append(f.catalog.products, &domain.Product{
		ID:         productID,
		ClientID:   1,
		CategoryID: categoryID,
		Color:      "Azul marino",
		IsActive:   true,
	})
}

func TestProcessPendingImagesRequiresClient(t *testing.T) {
	f := newProcessFixture(t)

	_, err := f.uc.ProcessPendingImages(context.Background(), &ProcessPendingReq{})
	assert.ErrorIs(t, err, e.ErrClientRequired)
}

func TestProcessPendingImagesHappyPath(t *testing.T) {
	f := newProcessFixture(t)
	f.addPendingImage(1, 100, 10)
	f.categories.categories = append(f.categories.categories, &domain.Category{
		ID: 10, ClientID: 1, Name: "vestidos", IsActive: true,
	})

	res, err := f.uc.ProcessPendingImages(context.Background(), &ProcessPendingReq{
		ClientID: 1,
		Industry: "textil",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, []int64{10}, res.TouchedCategories)

	require.Len(t, f.embeddings.upserted, 1)
	assert.Equal(t, int64(100), f.embeddings.upserted[0].Payload["product_id"])

	assert.Equal(t, []int64{1}, f.images.completed)

	require.Len(t, f.outbox.created, 1)
	assert.Equal(t, EventTypeEmbeddingsUpdated, f.outbox.created[0].EventType)
	assert.Equal(t, int64(100), f.outbox.created[0].ProductID)

	// пересчёт центроидов затронутых категорий — часть пакета
	require.Len(t, f.centroids.refreshed, 1)
	assert.Equal(t, []int64{10}, f.centroids.refreshed[0])

	assert.Equal(t, []string{"Azul marino"}, f.colors.learned)
}

func TestProcessImageFailureDoesNotAbortBatch(t *testing.T) {
	f := newProcessFixture(t)
	f.addPendingImage(1, 100, 10)
	f.addPendingImage(2, 101, 10)
	// у первого изображения нет байтов в хранилище
	f.images.pending[0].ObjectKey = "images/missing"

	res, err := f.uc.ProcessPendingImages(context.Background(), &ProcessPendingReq{ClientID: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, f.images.failed, int64(1))
	assert.Equal(t, []int64{2}, f.images.completed)
}

func TestProcessSkipsImagesClaimedElsewhere(t *testing.T) {
	f := newProcessFixture(t)
	f.addPendingImage(1, 100, 10)
	f.images.claimed = map[int64]bool{1: false}

	res, err := f.uc.ProcessPendingImages(context.Background(), &ProcessPendingReq{ClientID: 1})
	require.NoError(t, err)

	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 0, res.Failed)
	assert.Empty(t, f.images.failed)
}

func TestProcessCommitFailureRemovesOrphanEmbedding(t *testing.T) {
	f := newProcessFixture(t)
	f.addPendingImage(1, 100, 10)
	f.outbox.createErr = errors.New("outbox insert failed")

	res, err := f.uc.ProcessPendingImages(context.Background(), &ProcessPendingReq{ClientID: 1})
	require.NoError(t, err)

	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, f.embeddings.upserted, 1)
	assert.Equal(t, []string{f.embeddings.upserted[0].ID}, f.embeddings.deleted)
}

func TestProcessDegradesWithoutCategory(t *testing.T) {
	f := newProcessFixture(t)
	f.addPendingImage(1, 100, 10)
	// категории нет: эмбеддинг строится без контекстных промптов

	res, err := f.uc.ProcessPendingImages(context.Background(), &ProcessPendingReq{ClientID: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, f.generator.imageCalls)
}
