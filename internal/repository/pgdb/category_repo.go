package pgdb

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
)

// CategoryRepo реализует репозиторий категорий поверх PostgreSQL.
type CategoryRepo struct {
	pool *pgxpool.Pool
}

func NewCategoryRepo(pool *pgxpool.Pool) *CategoryRepo {
	return &CategoryRepo{pool: pool}
}

// Category возвращает категорию клиента вместе с сохранённым центроидом.
func (c *CategoryRepo) Category(ctx context.Context, clientID, categoryID int64) (*domain.Category, error) {
	query := `
		SELECT id, client_id, name, name_en, clip_prompt, confidence_threshold,
		       centroid, centroid_image_count, centroid_updated_at,
		       is_active, created_at, updated_at
		FROM categories
		WHERE client_id = $1 AND id = $2
	`

	var category domain.Category
	err := c.pool.QueryRow(ctx, query, clientID, categoryID).Scan(
		&category.ID, &category.ClientID, &category.Name, &category.NameEn,
		&category.ClipPrompt, &category.ConfidenceThreshold,
		&category.Centroid, &category.CentroidImageCount, &category.CentroidUpdatedAt,
		&category.IsActive, &category.CreatedAt, &category.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, e.Wrap(whereami.WhereAmI(), e.ErrCategoryNotFound)
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &category, nil
}

// ActiveCategories возвращает активные категории клиента.
func (c *CategoryRepo) ActiveCategories(ctx context.Context, clientID int64) ([]*domain.Category, error) {
	query := `
		SELECT id, client_id, name, name_en, clip_prompt, confidence_threshold,
		       centroid, centroid_image_count, centroid_updated_at,
		       is_active, created_at, updated_at
		FROM categories
		WHERE client_id = $1 AND is_active = TRUE
		ORDER BY id
	`

	rows, err := c.pool.Query(ctx, query, clientID)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer rows.Close()

	result := make([]*domain.Category, 0)
	for rows.Next() {
		var category domain.Category
		if err := rows.Scan(
			&category.ID, &category.ClientID, &category.Name, &category.NameEn,
			&category.ClipPrompt, &category.ConfidenceThreshold,
			&category.Centroid, &category.CentroidImageCount, &category.CentroidUpdatedAt,
			&category.IsActive, &category.CreatedAt, &category.UpdatedAt,
		); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		result = append(result, &category)
	}
	if err := rows.Err(); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return result, nil
}

// SaveCentroid атомарно заменяет центроид категории вместе со счётчиком
// изображений; частичной записи не бывает.
func (c *CategoryRepo) SaveCentroid(ctx context.Context, clientID, categoryID int64, centroid []float32, imageCount int64) error {
	query := `
		UPDATE categories
		SET centroid = $3,
		    centroid_image_count = $4,
		    centroid_updated_at = NOW(),
		    updated_at = NOW()
		WHERE client_id = $1 AND id = $2
	`

	result, err := c.pool.Exec(ctx, query, clientID, categoryID, centroid, imageCount)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	if result.RowsAffected() == 0 {
		return e.Wrap(whereami.WhereAmI(), e.ErrCategoryNotFound)
	}

	return nil
}
