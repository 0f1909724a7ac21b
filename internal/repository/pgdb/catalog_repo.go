package pgdb

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
)

// CatalogRepo читает продукты, клиентские веса ранжирования и системные
// настройки из PostgreSQL.
type CatalogRepo struct {
	pool *pgxpool.Pool
}

func NewCatalogRepo(pool *pgxpool.Pool) *CatalogRepo {
	return &CatalogRepo{pool: pool}
}

// ProductsInCategories возвращает активные продукты клиента в перечисленных категориях.
func (c *CatalogRepo) ProductsInCategories(ctx context.Context, clientID int64, categoryIDs []int64) ([]*domain.Product, error) {
	query := `
		SELECT id, client_id, name, sku, price, category_id, attributes,
		       color, brand, stock, featured, discount, tags,
		       is_active, is_archived, created_at, updated_at
		FROM products
		WHERE client_id = $1
		  AND category_id = ANY($2)
		  AND is_active = TRUE
		  AND is_archived = FALSE
	`

	rows, err := c.pool.Query(ctx, query, clientID, categoryIDs)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer rows.Close()

	result := make([]*domain.Product, 0)
	for rows.Next() {
		var product domain.Product
		if err := rows.Scan(
			&product.ID, &product.ClientID, &product.Name, &product.SKU,
			&product.Price, &product.CategoryID, &product.Attributes,
			&product.Color, &product.Brand, &product.Stock,
			&product.Featured, &product.Discount, &product.Tags,
			&product.IsActive, &product.IsArchived, &product.CreatedAt, &product.UpdatedAt,
		); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		result = append(result, &product)
	}
	if err := rows.Err(); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return result, nil
}

// Product возвращает продукт клиента по идентификатору.
func (c *CatalogRepo) Product(ctx context.Context, clientID, productID int64) (*domain.Product, error) {
	query := `
		SELECT id, client_id, name, sku, price, category_id, attributes,
		       color, brand, stock, featured, discount, tags,
		       is_active, is_archived, created_at, updated_at
		FROM products
		WHERE client_id = $1 AND id = $2
	`

	var product domain.Product
	err := c.pool.QueryRow(ctx, query, clientID, productID).Scan(
		&product.ID, &product.ClientID, &product.Name, &product.SKU,
		&product.Price, &product.CategoryID, &product.Attributes,
		&product.Color, &product.Brand, &product.Stock,
		&product.Featured, &product.Discount, &product.Tags,
		&product.IsActive, &product.IsArchived, &product.CreatedAt, &product.UpdatedAt,
	)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &product, nil
}

// WeightConfig возвращает конфигурацию весов клиента.
// Валидация инварианта весов остаётся на domain.WeightConfig.Validate.
func (c *CatalogRepo) WeightConfig(ctx context.Context, clientID int64) (*domain.WeightConfig, error) {
	query := `
		SELECT client_id, visual_weight, metadata_weight, business_weight,
		       attribute_weights, similarity_threshold, max_results
		FROM weight_configs
		WHERE client_id = $1
	`

	var cfg domain.WeightConfig
	err := c.pool.QueryRow(ctx, query, clientID).Scan(
		&cfg.ClientID, &cfg.VisualWeight, &cfg.MetadataWeight, &cfg.BusinessWeight,
		&cfg.AttributeWeights, &cfg.SimilarityThreshold, &cfg.MaxResults,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, e.Wrap(whereami.WhereAmI(), e.ErrWeightConfigNotFound)
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &cfg, nil
}

// SystemConfigSeconds читает числовую настройку (в секундах) из system_config.
func (c *CatalogRepo) SystemConfigSeconds(ctx context.Context, key string) (int64, error) {
	query := `SELECT value FROM system_config WHERE key = $1`

	var raw string
	if err := c.pool.QueryRow(ctx, query, key).Scan(&raw); err != nil {
		return 0, e.Wrap(whereami.WhereAmI(), err)
	}

	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, e.Wrap(whereami.WhereAmI(), err)
	}

	return seconds, nil
}
