package repository

import (
	"context"

	"sevenvoices/internal/model"
)

// TTSRequestRepository records synthesis requests for the history view.
type TTSRequestRepository interface {
	Create(ctx context.Context, req *model.TTSRequest) error
	ListByUser(ctx context.Context, userID string) ([]model.TTSRequest, error)
}

// discardTTSRequestRepo is the database-backed deployment's history log: requests are
// not persisted and history is always empty.
type discardTTSRequestRepo struct{}

func NewDiscardTTSRequestRepo() TTSRequestRepository {
	return discardTTSRequestRepo{}
}

func (discardTTSRequestRepo) Create(ctx context.Context, req *model.TTSRequest) error {
	return nil
}

func (discardTTSRequestRepo) ListByUser(ctx context.Context, userID string) ([]model.TTSRequest, error) {
	return []model.TTSRequest{}, nil
}
