package studios

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mbouombouo/studiostay-backend/pkg/db/models"
	pkgerrors "github.com/mbouombouo/studiostay-backend/pkg/errors"
)

type studioRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Studio, error)
}

// StudioDTO is the read model handed to booking and API callers.
type StudioDTO struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	City               string    `json:"city"`
	PricePerNightCents int       `json:"price_per_night_cents"`
	CleaningFeeCents   int       `json:"cleaning_fee_cents"`
	MaxGuests          int       `json:"max_guests"`
	IsAvailable        bool      `json:"is_available"`
}

// Service exposes studio directory reads. Booking is the only consumer; the
// wider studio CRUD surface lives in a separate system.
type Service interface {
	GetStudio(ctx context.Context, id uuid.UUID) (*StudioDTO, error)
}

type service struct {
	repo studioRepository
}

// NewService builds a studio service with the provided repository.
func NewService(repo studioRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("studio repository required")
	}
	return &service{repo: repo}, nil
}

// GetStudio returns the studio or CodeNotFound.
func (s *service) GetStudio(ctx context.Context, id uuid.UUID) (*StudioDTO, error) {
	studio, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "studio not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load studio")
	}
	return toDTO(studio), nil
}

func toDTO(studio *models.Studio) *StudioDTO {
	return &StudioDTO{
		ID:                 studio.ID,
		Name:               studio.Name,
		City:               studio.City,
		PricePerNightCents: studio.PricePerNightCents,
		CleaningFeeCents:   studio.CleaningFeeCents,
		MaxGuests:          studio.MaxGuests,
		IsAvailable:        studio.IsAvailable,
	}
}
