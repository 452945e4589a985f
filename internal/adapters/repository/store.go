// Package repository persists detections and session summaries.
package repository

import (
	"context"

	"github.com/okian/sentinel/internal/domain/model"
)

// Store is the persistence collaborator.
type Store interface {
	StoreDetection(ctx context.Context, d model.Detection) error
	SaveSessionSummary(ctx context.Context, s model.SessionSummary) error
	Close() error
}

// NopStore discards everything.
type NopStore struct{}

func (NopStore) StoreDetection(context.Context, model.Detection) error          { return nil }
func (NopStore) SaveSessionSummary(context.Context, model.SessionSummary) error { return nil }
func (NopStore) Close() error                                                   { return nil }
