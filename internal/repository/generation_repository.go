package repository

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/shinyyama/abracadabra/internal/model"
	"gorm.io/gorm"
)

var ErrDBNotReady = errors.New("database not initialized")

type GenerationRepository interface {
	Create(ctx context.Context, g *model.Generation) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]model.Generation, error)
	SetDB(db *gorm.DB)
}

// The database is attached after the server starts serving, so the handle is
// swapped atomically.
type generationRepository struct {
	db atomic.Pointer[gorm.DB]
}

func NewGenerationRepository(db *gorm.DB) GenerationRepository {
	r := &generationRepository{}
	r.db.Store(db)
	return r
}

func (r *generationRepository) SetDB(db *gorm.DB) {
	r.db.Store(db)
}

func (r *generationRepository) Create(ctx context.Context, g *model.Generation) error {
	db := r.db.Load()
	if db == nil {
		return ErrDBNotReady
	}
	return db.WithContext(ctx).Create(g).Error
}

func (r *generationRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]model.Generation, error) {
	db := r.db.Load()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Generation
	if err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
