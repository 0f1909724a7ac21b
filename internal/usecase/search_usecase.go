package usecase

import (
	"context"
	"errors"
	"sort"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/internal/ranking"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
)

// maxShortlistCategories — сколько категорий проходит отбор по центроидам.
const maxShortlistCategories = 3

// Дефолтные веса слоёв для клиентов без сохранённой конфигурации.
const (
	defaultVisualWeight   = 0.6
	defaultMetadataWeight = 0.3
	defaultBusinessWeight = 0.1
)

// SearchUseCase реализует визуальный поиск: запрос эмбеддится один раз,
// центроиды дёшево отбирают категории-кандидаты, затем близость считается
// по векторам изображений внутри отобранных категорий и результат
// доранжируется метаданными и бизнес-сигналами.
type SearchUseCase struct {
	generator     EmbeddingGenerator
	centroids     CentroidCache
	catalogRepo   CatalogRepository
	categoryRepo  CategoryRepository
	embeddingRepo EmbeddingRepository
	queryCache    QueryCacheRepository
	logger        logger.Logger
}

func NewSearchUC(
	generator EmbeddingGenerator,
	centroids CentroidCache,
	catalogRepo CatalogRepository,
	categoryRepo CategoryRepository,
	embeddingRepo EmbeddingRepository,
	queryCache QueryCacheRepository,
	logger logger.Logger,
) *SearchUseCase {
	return &SearchUseCase{
		generator:     generator,
		centroids:     centroids,
		catalogRepo:   catalogRepo,
		categoryRepo:  categoryRepo,
		embeddingRepo: embeddingRepo,
		queryCache:    queryCache,
		logger:        logger,
	}
}

// SearchByImage ищет продукты, визуально похожие на изображение-запрос.
func (s *SearchUseCase) SearchByImage(ctx context.Context, req *SearchByImageReq) (*SearchRes, error) {
	const op = "SearchUseCase.SearchByImage"

	if req.ClientID == 0 {
		return nil, e.Wrap(op, e.ErrClientRequired)
	}
	if len(req.Image) == 0 {
		return nil, e.Wrap(op, e.ErrNoImageData)
	}

	// контекст категории для запроса неизвестен: базовый эмбеддинг
	queryVector, _, err := s.generator.FromImage(ctx, req.Image, nil)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	res, err := s.search(ctx, req.ClientID, queryVector, req.DetectedAttributes, req.Limit)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	return res, nil
}

// SearchByText ищет продукты по текстовому описанию. Эмбеддинг запроса
// кэшируется, чтобы повторные запросы не ходили в инференс.
func (s *SearchUseCase) SearchByText(ctx context.Context, req *SearchByTextReq) (*SearchRes, error) {
	const op = "SearchUseCase.SearchByText"

	if req.ClientID == 0 {
		return nil, e.Wrap(op, e.ErrClientRequired)
	}
	if req.Query == "" {
		return nil, e.Wrap(op, e.ErrEmptyQuery)
	}

	queryVector, cached := s.queryCache.GetQueryEmbedding(ctx, req.Query)
	if !cached {
		var err error
		queryVector, _, err = s.generator.FromText(ctx, req.Query)
		if err != nil {
			return nil, e.Wrap(op, err)
		}
		s.queryCache.SetQueryEmbedding(ctx, req.Query, queryVector)
	}

	res, err := s.search(ctx, req.ClientID, queryVector, req.DetectedAttributes, req.Limit)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	return res, nil
}

func (s *SearchUseCase) search(ctx context.Context, clientID int64, queryVector []float32, detected map[string]string, limit int) (*SearchRes, error) {
	const op = "SearchUseCase.search"

	weights, err := s.weightConfig(ctx, clientID)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	optimizer, err := ranking.NewOptimizer(weights, s.logger)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	shortlist, err := s.shortlistCategories(ctx, clientID, queryVector)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	if len(shortlist) == 0 {
		return &SearchRes{Results: []SearchResult{}}, nil
	}

	candidates, err := s.embeddingRepo.CandidatesByCategories(ctx, clientID, shortlist)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	if len(candidates) == 0 {
		return &SearchRes{Results: []SearchResult{}, ShortlistedCategories: shortlist}, nil
	}

	products, err := s.catalogRepo.ProductsInCategories(ctx, clientID, shortlist)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	byID := make(map[int64]*domain.Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}

	// лучший визуальный скор на продукт среди всех его изображений
	visual := make(map[int64]float64)
	for _, candidate := range candidates {
		product, ok := byID[candidate.ProductID]
		if !ok {
			continue // неактивный или архивный продукт
		}

		cos, err := domain.Cosine(queryVector, candidate.Vector)
		if err != nil {
			s.logger.Warnf("cosine for embedding %s: %v", candidate.EmbeddingID, err)
			continue
		}

		if best, ok := visual[product.ID]; !ok || cos > best {
			visual[product.ID] = cos
		}
	}

	raw := make([]ranking.RawResult, 0, len(visual))
	for productID, score := range visual {
		if score < weights.SimilarityThreshold {
			continue
		}
		raw = append(raw, ranking.RawResult{Product: byID[productID], VisualScore: score})
	}
	// детерминированный порядок до стабильной сортировки ранжирования
	sort.Slice(raw, func(i, j int) bool {
		if raw[i].VisualScore != raw[j].VisualScore {
			return raw[i].VisualScore > raw[j].VisualScore
		}
		return raw[i].Product.ID < raw[j].Product.ID
	})

	ranked := optimizer.Rank(raw, detected)

	if limit <= 0 || limit > weights.MaxResults {
		limit = weights.MaxResults
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	results := make([]SearchResult, 0, len(ranked))
	for _, r := range ranked {
		results = append(results, SearchResult{
			Product:              r.Product,
			VisualScore:          r.VisualScore,
			MetadataScore:        r.MetadataScore,
			BusinessScore:        r.BusinessScore,
			VisualContribution:   r.VisualContribution,
			MetadataContribution: r.MetadataContribution,
			BusinessContribution: r.BusinessContribution,
			FinalScore:           r.FinalScore,
		})
	}

	return &SearchRes{Results: results, ShortlistedCategories: shortlist}, nil
}

// weightConfig возвращает конфигурацию клиента либо дефолтную,
// если клиент ещё не настроил веса.
func (s *SearchUseCase) weightConfig(ctx context.Context, clientID int64) (*domain.WeightConfig, error) {
	weights, err := s.catalogRepo.WeightConfig(ctx, clientID)
	if err != nil {
		if errors.Is(err, e.ErrWeightConfigNotFound) {
			s.logger.Debugf("no weight config for client %d, using defaults", clientID)
			return domain.NewWeightConfig(clientID, defaultVisualWeight, defaultMetadataWeight, defaultBusinessWeight)
		}
		return nil, err
	}
	return weights, nil
}

// shortlistCategories отбирает ближайшие к запросу категории по центроидам.
// Категории без центроида участвуют в поиске, только если центроидов нет
// ни у одной категории.
func (s *SearchUseCase) shortlistCategories(ctx context.Context, clientID int64, queryVector []float32) ([]int64, error) {
	categories, err := s.categoryRepo.ActiveCategories(ctx, clientID)
	if err != nil {
		return nil, err
	}

	type scored struct {
		id    int64
		score float64
	}

	withCentroid := make([]scored, 0, len(categories))
	all := make([]int64, 0, len(categories))
	for _, category := range categories {
		all = append(all, category.ID)

		centroid, err := s.centroids.Get(ctx, clientID, category.ID)
		if err != nil {
			s.logger.Warnf("centroid for category %d: %v", category.ID, err)
			continue
		}
		if centroid == nil {
			continue
		}

		cos, err := domain.Cosine(queryVector, centroid)
		if err != nil {
			s.logger.Warnf("centroid cosine for category %d: %v", category.ID, err)
			continue
		}

		withCentroid = append(withCentroid, scored{id: category.ID, score: cos})
	}

	if len(withCentroid) == 0 {
		// деградация без центроидов: ищем по всем категориям клиента
		return all, nil
	}

	sort.Slice(withCentroid, func(i, j int) bool {
		if withCentroid[i].score != withCentroid[j].score {
			return withCentroid[i].score > withCentroid[j].score
		}
		return withCentroid[i].id < withCentroid[j].id
	})

	n := len(withCentroid)
	if n > maxShortlistCategories {
		n = maxShortlistCategories
	}

	shortlist := make([]int64, 0, n)
	for _, sc := range withCentroid[:n] {
		shortlist = append(shortlist, sc.id)
	}
	return shortlist, nil
}
