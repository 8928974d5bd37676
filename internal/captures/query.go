package captures

import (
	"context"
	"errors"
	"time"

	"github.com/kdimtricp/photobooth/internal/database"
	"github.com/kdimtricp/photobooth/internal/models"
)

const dateLayout = "2006-01-02"

// ListParams are the raw paging inputs of a listing. Zero or negative Page and
// Limit fall back to the defaults.
type ListParams struct {
	Page      int
	Limit     int
	StartDate string
	EndDate   string
}

func (s *Service) List(ctx context.Context, params ListParams) (*database.Page, error) {
	q, err := s.normalize(params)
	if err != nil {
		return nil, err
	}

	page, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, storageError("list captures", err)
	}

	return page, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Capture, error) {
	capture, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, database.ErrCaptureNotFound) {
		return nil, errCaptureNotFound(id)
	}
	if err != nil {
		return nil, storageError("get capture", err)
	}

	return capture, nil
}

func (s *Service) normalize(params ListParams) (database.ListQuery, error) {
	q := database.ListQuery{Page: params.Page, Limit: params.Limit}

	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = s.limits.DefaultLimit
	}
	if q.Limit > s.limits.MaxLimit {
		q.Limit = s.limits.MaxLimit
	}

	var err error
	if q.StartDate, err = normalizeBound(params.StartDate, false); err != nil {
		return q, errInvalidDateFilter("startDate", params.StartDate)
	}
	if q.EndDate, err = normalizeBound(params.EndDate, true); err != nil {
		return q, errInvalidDateFilter("endDate", params.EndDate)
	}

	return q, nil
}

// normalizeBound rewrites a date filter in the stored timestamp layout so the
// database can compare it as text. A bare date covers the whole day.
func normalizeBound(value string, endOfDay bool) (string, error) {
	if value == "" {
		return "", nil
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return models.FormatTimestamp(t), nil
	}

	day, err := time.Parse(dateLayout, value)
	if err != nil {
		return "", err
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Millisecond)
	}

	return models.FormatTimestamp(day), nil
}
