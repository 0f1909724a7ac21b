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

// ColorMappingRepo хранит выученные соответствия цветов в PostgreSQL.
type ColorMappingRepo struct {
	pool *pgxpool.Pool
}

func NewColorMappingRepo(pool *pgxpool.Pool) *ColorMappingRepo {
	return &ColorMappingRepo{pool: pool}
}

const colorMappingColumns = `
	id, client_id, raw_color, normalized_color, similarity_group,
	usage_count, confidence, last_used_at, created_at, updated_at
`

func scanColorMapping(row pgx.Row) (*domain.ColorMapping, error) {
	var mapping domain.ColorMapping
	err := row.Scan(
		&mapping.ID, &mapping.ClientID, &mapping.RawColor, &mapping.NormalizedColor,
		&mapping.SimilarityGroup, &mapping.UsageCount, &mapping.Confidence,
		&mapping.LastUsedAt, &mapping.CreatedAt, &mapping.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// Mapping возвращает соответствие для пары (клиент, сырой цвет).
func (c *ColorMappingRepo) Mapping(ctx context.Context, clientID int64, rawColor string) (*domain.ColorMapping, error) {
	query := `
		SELECT ` + colorMappingColumns + `
		FROM color_mappings
		WHERE client_id = $1 AND raw_color = $2
	`

	mapping, err := scanColorMapping(c.pool.QueryRow(ctx, query, clientID, rawColor))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, e.Wrap(whereami.WhereAmI(), e.ErrColorMappingNotFound)
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return mapping, nil
}

// SaveMapping создаёт запись; при гонке на первую вставку конфликт
// сводится к инкременту использования.
func (c *ColorMappingRepo) SaveMapping(ctx context.Context, mapping *domain.ColorMapping) (*domain.ColorMapping, error) {
	query := `
		INSERT INTO color_mappings (
			client_id, raw_color, normalized_color, similarity_group, confidence
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (client_id, raw_color)
		DO UPDATE SET
			usage_count = color_mappings.usage_count + 1,
			last_used_at = NOW(),
			updated_at = NOW()
		RETURNING ` + colorMappingColumns

	saved, err := scanColorMapping(c.pool.QueryRow(ctx, query,
		mapping.ClientID, mapping.RawColor, mapping.NormalizedColor,
		mapping.SimilarityGroup, mapping.Confidence,
	))
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return saved, nil
}

// IncrementUsage увеличивает счётчик использования существующей записи.
func (c *ColorMappingRepo) IncrementUsage(ctx context.Context, clientID int64, rawColor string) (*domain.ColorMapping, error) {
	query := `
		UPDATE color_mappings
		SET usage_count = usage_count + 1,
		    last_used_at = NOW(),
		    updated_at = NOW()
		WHERE client_id = $1 AND raw_color = $2
		RETURNING ` + colorMappingColumns

	mapping, err := scanColorMapping(c.pool.QueryRow(ctx, query, clientID, rawColor))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, e.Wrap(whereami.WhereAmI(), e.ErrColorMappingNotFound)
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return mapping, nil
}

// GroupColors возвращает группы клиента и различные канонические цвета в них.
func (c *ColorMappingRepo) GroupColors(ctx context.Context, clientID int64) (map[string][]string, error) {
	query := `
		SELECT similarity_group, ARRAY_AGG(DISTINCT normalized_color)
		FROM color_mappings
		WHERE client_id = $1
		GROUP BY similarity_group
	`

	rows, err := c.pool.Query(ctx, query, clientID)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer rows.Close()

	result := make(map[string][]string)
	for rows.Next() {
		var group string
		var members []string
		if err := rows.Scan(&group, &members); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		result[group] = members
	}
	if err := rows.Err(); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return result, nil
}
