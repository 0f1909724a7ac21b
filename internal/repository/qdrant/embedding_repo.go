package qdrant

import (
	"context"

	"github.com/jimlawless/whereami"
	"github.com/qdrant/go-client/qdrant"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/e"
)

// scrollPageSize — размер страницы при вычитывании точек коллекции.
const scrollPageSize = 1024

// EmbeddingRepo репозиторий для работы с embedding-векторами в Qdrant.
// Qdrant здесь — хранилище векторов с фильтрацией; близость считается
// вызывающей стороной.
type EmbeddingRepo struct {
	client *qdrant.Client
	cfg    *cfg.QdrantCfg
}

func NewEmbeddingRepo(client *qdrant.Client, cfg *cfg.QdrantCfg) *EmbeddingRepo {
	return &EmbeddingRepo{
		client: client,
		cfg:    cfg,
	}
}

// Upsert сохраняет или обновляет embedding-векторы в коллекции Qdrant.
func (q *EmbeddingRepo) Upsert(ctx context.Context, vectors []domain.Embedding) error {
	reqVectors := make([]*qdrant.PointStruct, 0, len(vectors))
	for _, vector := range vectors {
		reqVectors = append(reqVectors, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(vector.ID),
			Vectors: qdrant.NewVectors(vector.Vector...),
			Payload: qdrant.NewValueMap(vector.Payload),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.QdrantCollectionName,
		Points:         reqVectors,
	})
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// VectorsByCategory возвращает векторы всех изображений категории клиента.
func (q *EmbeddingRepo) VectorsByCategory(ctx context.Context, clientID, categoryID int64) ([][]float32, error) {
	candidates, err := q.CandidatesByCategories(ctx, clientID, []int64{categoryID})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	vectors := make([][]float32, 0, len(candidates))
	for _, candidate := range candidates {
		vectors = append(vectors, candidate.Vector)
	}
	return vectors, nil
}

// CandidatesByCategories вычитывает все точки клиента в указанных категориях
// вместе с векторами постраничным scroll.
func (q *EmbeddingRepo) CandidatesByCategories(ctx context.Context, clientID int64, categoryIDs []int64) ([]usecase.Candidate, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatchInt("client_id", clientID),
			qdrant.NewMatchInts("category_id", categoryIDs...),
		},
	}

	seen := make(map[string]struct{})
	result := make([]usecase.Candidate, 0)

	var offset *qdrant.PointId
	for {
		points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: q.cfg.QdrantCollectionName,
			Filter:         filter,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		if len(points) == 0 {
			break
		}

		for _, point := range points {
			id := point.GetId().GetUuid()
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}

			candidate := usecase.Candidate{
				EmbeddingID: id,
				Vector:      point.GetVectors().GetVector().GetData(),
			}
			if payload := point.GetPayload(); payload != nil {
				candidate.ProductID = payload["product_id"].GetIntegerValue()
				candidate.CategoryID = payload["category_id"].GetIntegerValue()
			}

			result = append(result, candidate)
		}

		if len(points) < scrollPageSize {
			break
		}
		// scroll с offset по последней точке; дубликат отсеется через seen
		offset = points[len(points)-1].GetId()
	}

	return result, nil
}

// Delete удаляет точки по идентификаторам.
func (q *EmbeddingRepo) Delete(ctx context.Context, ids []string) error {
	points := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		points = append(points, qdrant.NewIDUUID(id))
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.cfg.QdrantCollectionName,
		Points:         qdrant.NewPointsSelector(points...),
	})
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}
