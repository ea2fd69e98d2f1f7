package repository

import (
	"context"

	"github.com/sakif/csv-extractor/internal/model"
)

type ListOptions struct {
	Limit   int
	Offset  int
	OwnerID string // empty lists every owner's runs
}

type RunRepository interface {
	Create(ctx context.Context, run *model.Run) error
	GetByID(ctx context.Context, id string) (*model.Run, error)
	List(ctx context.Context, opts ListOptions) ([]model.Run, error)
	Update(ctx context.Context, run *model.Run) error
}
