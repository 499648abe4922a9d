package studios

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mbouombouo/studiostay-backend/pkg/db/models"
)

// Repository wires studio persistence helpers.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindByID loads the studio row.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Studio, error) {
	var studio models.Studio
	if err := r.db.WithContext(ctx).First(&studio, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &studio, nil
}
