package service

import (
	"context"
	"encoding/json"

	"geo-export-service/internal/export"
	"geo-export-service/internal/filters"
)

type Exporter interface {
	Count(ctx context.Context, f filters.Filters) (int64, error)
	Export(ctx context.Context, f filters.Filters, compress bool) (*export.Artifact, error)
}

// QueryService answers count and download requests inline, without a job record.
type QueryService struct {
	engine Exporter
}

func NewQueryService(engine Exporter) *QueryService {
	return &QueryService{engine: engine}
}

func (s *QueryService) Count(ctx context.Context, raw json.RawMessage) (int64, error) {
	f, err := parseFilters(raw)
	if err != nil {
		return 0, err
	}
	return s.engine.Count(ctx, f)
}

// Export returns an artifact the caller must Cleanup after streaming it out.
func (s *QueryService) Export(ctx context.Context, raw json.RawMessage, compress bool) (*export.Artifact, error) {
	f, err := parseFilters(raw)
	if err != nil {
		return nil, err
	}
	return s.engine.Export(ctx, f, compress)
}
