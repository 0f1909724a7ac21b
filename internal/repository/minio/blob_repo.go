package minio

import (
	"context"
	"io"

	"github.com/jimlawless/whereami"
	"github.com/minio/minio-go/v7"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/pkg/e"
)

// BlobRepo читает байты изображений из MinIO по ключу объекта.
type BlobRepo struct {
	client *minio.Client
	cfg    *cfg.MinIOCfg
}

func NewBlobRepo(client *minio.Client, cfg *cfg.MinIOCfg) *BlobRepo {
	return &BlobRepo{
		client: client,
		cfg:    cfg,
	}
}

// FetchBytes скачивает объект целиком. Сетевые ошибки отдаются как есть,
// без ретраев: решение о повторе принимает обработчик пакета.
func (b *BlobRepo) FetchBytes(ctx context.Context, objectKey string) ([]byte, error) {
	object, err := b.client.GetObject(ctx, b.cfg.BucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return data, nil
}
