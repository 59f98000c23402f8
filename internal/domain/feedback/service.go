package feedback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/doorwayhq/doorway-api/internal/types"
)

const maxFingerprintLength = 128

var _ Service = (*ServiceImpl)(nil)

// Service validates and records user feedback about entrances.
type Service interface {
	SubmitCorrection(ctx context.Context, placeID string, entrance types.GeoPoint, accessible bool) (*types.Correction, error)
	SubmitConfirmation(ctx context.Context, placeID, fingerprint string) (*types.Confirmation, error)
	VerificationFor(ctx context.Context, placeID string) (types.ConfirmationStats, error)
}

type ServiceImpl struct {
	logger *slog.Logger
	repo   Repository

	// onCorrection invalidates any cached resolution for the corrected place.
	onCorrection func(placeID string)
}

func NewServiceImpl(repo Repository, onCorrection func(placeID string), logger *slog.Logger) *ServiceImpl {
	if onCorrection == nil {
		onCorrection = func(string) {}
	}
	return &ServiceImpl{
		logger:       logger,
		repo:         repo,
		onCorrection: onCorrection,
	}
}

func (s *ServiceImpl) SubmitCorrection(ctx context.Context, placeID string, entrance types.GeoPoint, accessible bool) (*types.Correction, error) {
	if placeID == "" {
		return nil, fmt.Errorf("%w: missing place id", types.ErrBadRequest)
	}
	if !entrance.Valid() {
		return nil, fmt.Errorf("%w: entrance coordinates out of range", types.ErrBadRequest)
	}

	correction, err := s.repo.InsertCorrection(ctx, placeID, entrance, accessible)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record correction",
			slog.String("place_id", placeID), slog.Any("error", err))
		return nil, err
	}

	// The heuristic response for this place is no longer valid.
	s.onCorrection(placeID)

	s.logger.InfoContext(ctx, "correction recorded",
		slog.String("place_id", placeID),
		slog.Bool("accessible", accessible))
	return correction, nil
}

func (s *ServiceImpl) SubmitConfirmation(ctx context.Context, placeID, fingerprint string) (*types.Confirmation, error) {
	if placeID == "" {
		return nil, fmt.Errorf("%w: missing place id", types.ErrBadRequest)
	}
	if len(fingerprint) > maxFingerprintLength {
		return nil, fmt.Errorf("%w: fingerprint too long", types.ErrBadRequest)
	}

	confirmation, err := s.repo.InsertConfirmation(ctx, placeID, fingerprint)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record confirmation",
			slog.String("place_id", placeID), slog.Any("error", err))
		return nil, err
	}

	s.logger.InfoContext(ctx, "confirmation recorded", slog.String("place_id", placeID))
	return confirmation, nil
}

func (s *ServiceImpl) VerificationFor(ctx context.Context, placeID string) (types.ConfirmationStats, error) {
	if placeID == "" {
		return types.ConfirmationStats{}, fmt.Errorf("%w: missing place id", types.ErrBadRequest)
	}
	return s.repo.ConfirmationStats(ctx, placeID)
}
