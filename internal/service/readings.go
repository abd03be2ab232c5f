package service

import (
	"context"
	"errors"

	"telemetry_relay/internal/models"
	"telemetry_relay/internal/repository"
)

// MaxReadingLimit caps one history page.
const MaxReadingLimit = 5000

var ErrInvalidLimit = errors.New("limit must not be negative")

type ReadingService struct {
	readingRepo repository.ReadingRepo
}

func NewReadingService(readingRepo repository.ReadingRepo) *ReadingService {
	return &ReadingService{readingRepo: readingRepo}
}

// History lists reported values of one pin, newest first.
func (s *ReadingService) History(ctx context.Context, f repository.ReadingFilter) ([]models.Reading, error) {
	from, to, err := normalizeAndValidateRange(f.From, f.To)
	if err != nil {
		return nil, err
	}
	if f.Limit < 0 {
		return nil, ErrInvalidLimit
	}
	if f.Limit > MaxReadingLimit {
		f.Limit = MaxReadingLimit
	}
	f.From, f.To = from, to
	return s.readingRepo.List(ctx, f)
}
