package usecase

import "context"

type SearchUC interface {
	SearchByImage(ctx context.Context, req *SearchByImageReq) (*SearchRes, error)
	SearchByText(ctx context.Context, req *SearchByTextReq) (*SearchRes, error)
}

type ProcessUC interface {
	ProcessPendingImages(ctx context.Context, req *ProcessPendingReq) (*ProcessPendingRes, error)
}
