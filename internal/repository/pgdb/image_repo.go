package pgdb

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/tr"
)

// ImageRepo управляет записями изображений продуктов в PostgreSQL.
type ImageRepo struct {
	pool *pgxpool.Pool
}

func NewImageRepo(pool *pgxpool.Pool) *ImageRepo {
	return &ImageRepo{pool: pool}
}

// PendingImages возвращает пачку необработанных изображений клиента
// в порядке загрузки.
func (i *ImageRepo) PendingImages(ctx context.Context, clientID int64, limit int) ([]*domain.Image, error) {
	query := `
		SELECT id, client_id, product_id, object_key, mime_type,
		       status, error_message, embedding_id, is_primary, created_at, updated_at
		FROM product_images
		WHERE client_id = $1 AND status = $2
		ORDER BY created_at
		LIMIT $3
	`

	rows, err := i.pool.Query(ctx, query, clientID, domain.ImagePending, limit)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer rows.Close()

	result := make([]*domain.Image, 0, limit)
	for rows.Next() {
		var image domain.Image
		var embeddingID *string
		if err := rows.Scan(
			&image.ID, &image.ClientID, &image.ProductID, &image.ObjectKey, &image.MimeType,
			&image.Status, &image.ErrorMessage, &embeddingID, &image.IsPrimary,
			&image.CreatedAt, &image.UpdatedAt,
		); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		if embeddingID != nil {
			image.EmbeddingID = *embeddingID
		}

		result = append(result, &image)
	}
	if err := rows.Err(); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return result, nil
}

// ClientsWithPendingImages возвращает клиентов, у которых есть необработанные изображения.
func (i *ImageRepo) ClientsWithPendingImages(ctx context.Context) ([]int64, error) {
	query := `
		SELECT DISTINCT client_id
		FROM product_images
		WHERE status = $1
		ORDER BY client_id
	`

	rows, err := i.pool.Query(ctx, query, domain.ImagePending)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer rows.Close()

	var clients []int64
	for rows.Next() {
		var clientID int64
		if err := rows.Scan(&clientID); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		clients = append(clients, clientID)
	}
	if err := rows.Err(); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return clients, nil
}

// CompletedImageCount считает обработанные изображения в категории клиента.
func (i *ImageRepo) CompletedImageCount(ctx context.Context, clientID, categoryID int64) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM product_images img
		JOIN products pr ON pr.id = img.product_id
		WHERE img.client_id = $1
		  AND pr.category_id = $2
		  AND img.status = $3
	`

	var count int64
	if err := i.pool.QueryRow(ctx, query, clientID, categoryID, domain.ImageCompleted).Scan(&count); err != nil {
		return 0, e.Wrap(whereami.WhereAmI(), err)
	}

	return count, nil
}

// MarkProcessing переводит pending-изображение в processing.
// Возвращает false, если изображение уже забрал другой воркер.
func (i *ImageRepo) MarkProcessing(ctx context.Context, imageID int64) (bool, error) {
	query := `
		UPDATE product_images
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := i.pool.Exec(ctx, query, domain.ImageProcessing, imageID, domain.ImagePending)
	if err != nil {
		return false, e.Wrap(whereami.WhereAmI(), err)
	}

	return result.RowsAffected() > 0, nil
}

// MarkCompleted фиксирует успешную обработку внутри текущей транзакции,
// чтобы статус и outbox-событие записывались атомарно.
func (i *ImageRepo) MarkCompleted(ctx context.Context, imageID int64, embeddingID string) error {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	query := `
		UPDATE product_images
		SET status = $1, embedding_id = $2, error_message = '', updated_at = NOW()
		WHERE id = $3
	`

	if _, err := tx.Exec(ctx, query, domain.ImageCompleted, embeddingID, imageID); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// MarkFailed записывает причину отказа обработки изображения.
func (i *ImageRepo) MarkFailed(ctx context.Context, imageID int64, message string) error {
	query := `
		UPDATE product_images
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3
	`

	if _, err := i.pool.Exec(ctx, query, domain.ImageFailed, message, imageID); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}
