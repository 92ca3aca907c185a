package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"codearena/internal/models"

	"github.com/jmoiron/sqlx"
)

type LanguageRepository interface {
	ResolveLanguage(ctx context.Context, name string) (*models.Language, error)
	GetLanguages(ctx context.Context) ([]models.Language, error)
}

type languageRepository struct {
	db *sqlx.DB
}

func NewLanguageRepository(db *sqlx.DB) LanguageRepository {
	return &languageRepository{db: db}
}

func (r *languageRepository) ResolveLanguage(ctx context.Context, name string) (*models.Language, error) {
	query := `SELECT id, name, external_id, is_active FROM languages WHERE LOWER(name) = LOWER(?)`

	var language models.Language
	if err := r.db.GetContext(ctx, &language, query, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("language not found: %s", name)
		}
		return nil, fmt.Errorf("failed to resolve language: %w", err)
	}

	return &language, nil
}

func (r *languageRepository) GetLanguages(ctx context.Context) ([]models.Language, error) {
	query := `SELECT id, name, external_id, is_active FROM languages WHERE is_active = TRUE ORDER BY name`

	var languages []models.Language
	if err := r.db.SelectContext(ctx, &languages, query); err != nil {
		return nil, fmt.Errorf("failed to get languages: %w", err)
	}

	return languages, nil
}
