/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog is the scheduler's view of the content library. The
// engine only ever reads item metadata and durations; ingest and file
// handling live elsewhere.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/scheduling"
)

// Service exposes catalog queries and metadata maintenance.
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewService creates a catalog service.
func NewService(db *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

// GetItem fetches one catalog item.
func (s *Service) GetItem(ctx context.Context, id string) (*models.CatalogItem, error) {
	var item models.CatalogItem
	if err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, scheduling.NewNotFound("catalog_item", id)
		}
		return nil, fmt.Errorf("fetch catalog item: %w", err)
	}
	return &item, nil
}

// GetSeries fetches one series.
func (s *Service) GetSeries(ctx context.Context, id string) (*models.Series, error) {
	var series models.Series
	if err := s.db.WithContext(ctx).First(&series, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, scheduling.NewNotFound("series", id)
		}
		return nil, fmt.Errorf("fetch series: %w", err)
	}
	return &series, nil
}

// Episodes returns a series' approved episodes in airing order: episode
// number, then ingest time, then ID as the final tiebreak so the order
// is total and stable.
func (s *Service) Episodes(ctx context.Context, seriesID string) ([]models.CatalogItem, error) {
	var items []models.CatalogItem
	err := s.db.WithContext(ctx).
		Where("series_id = ? AND approved = ?", seriesID, true).
		Order("episode_number, created_at, id").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("fetch episodes: %w", err)
	}
	return items, nil
}

// ItemsByID fetches items keyed by ID. Missing or soft-deleted IDs are
// simply absent from the result; callers decide whether that is fatal.
func (s *Service) ItemsByID(ctx context.Context, ids []string) (map[string]models.CatalogItem, error) {
	out := make(map[string]models.CatalogItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var items []models.CatalogItem
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("fetch items: %w", err)
	}
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

// EligibleByRule returns approved items matching a rule selector.
// Scalar filters run in SQL; the tag filter runs in memory because tags
// live in a JSON column on every supported database.
func (s *Service) EligibleByRule(ctx context.Context, sel *models.RuleSelector) ([]models.CatalogItem, error) {
	query := s.db.WithContext(ctx).
		Where("approved = ?", true).
		Where("kind != ?", models.ItemSlate)
	if sel.Genre != "" {
		query = query.Where("genre = ?", sel.Genre)
	}
	if sel.MinYear > 0 {
		query = query.Where("year >= ?", sel.MinYear)
	}
	if sel.MaxYear > 0 {
		query = query.Where("year <= ?", sel.MaxYear)
	}
	if sel.MaxDurationMS > 0 {
		query = query.Where("duration_ms <= ?", sel.MaxDurationMS)
	}

	var items []models.CatalogItem
	if err := query.Order("created_at, id").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("fetch eligible items: %w", err)
	}
	if len(sel.Tags) == 0 {
		return items, nil
	}

	filtered := items[:0]
	for _, item := range items {
		if hasAllTags(item.Tags, sel.Tags) {
			filtered = append(filtered, item)
		}
	}
	return filtered, nil
}

func hasAllTags(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[strings.ToLower(t)] = true
	}
	for _, t := range want {
		if !set[strings.ToLower(t)] {
			return false
		}
	}
	return true
}

// ListQuery filters and pages the catalog listing.
type ListQuery struct {
	Kind     string
	Genre    string
	SeriesID string
	Search   string
	Approved *bool
	Limit    int
	Offset   int
}

// List returns a page of items plus the unpaged total.
func (s *Service) List(ctx context.Context, q ListQuery) ([]models.CatalogItem, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.CatalogItem{})
	if q.Kind != "" {
		query = query.Where("kind = ?", q.Kind)
	}
	if q.Genre != "" {
		query = query.Where("genre = ?", q.Genre)
	}
	if q.SeriesID != "" {
		query = query.Where("series_id = ?", q.SeriesID)
	}
	if q.Approved != nil {
		query = query.Where("approved = ?", *q.Approved)
	}
	if q.Search != "" {
		query = query.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(q.Search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count items: %w", err)
	}

	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var items []models.CatalogItem
	if err := query.Order("title, id").Limit(limit).Offset(q.Offset).Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("list items: %w", err)
	}
	return items, total, nil
}

// ListSeries returns all series ordered by title.
func (s *Service) ListSeries(ctx context.Context) ([]models.Series, error) {
	var series []models.Series
	if err := s.db.WithContext(ctx).Order("title").Find(&series).Error; err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	return series, nil
}

// CreateSeries registers a new series.
func (s *Service) CreateSeries(ctx context.Context, series *models.Series) error {
	if strings.TrimSpace(series.Title) == "" {
		return scheduling.NewValidationError(scheduling.CodeNameRequired, "series title is required")
	}
	if series.ID == "" {
		series.ID = uuid.NewString()
	}
	series.Active = true
	if err := s.db.WithContext(ctx).Create(series).Error; err != nil {
		return fmt.Errorf("create series: %w", err)
	}
	s.logger.Info().Str("series_id", series.ID).Str("title", series.Title).Msg("series created")
	return nil
}

// CreateItem registers a new catalog item. Durations are the one field
// the scheduler cannot live without, so zero or negative is rejected.
func (s *Service) CreateItem(ctx context.Context, item *models.CatalogItem) error {
	if strings.TrimSpace(item.Title) == "" {
		return scheduling.NewValidationError(scheduling.CodeNameRequired, "item title is required")
	}
	if item.DurationMS <= 0 {
		return scheduling.NewValidationError(scheduling.CodeDurationInvalid,
			fmt.Sprintf("item duration %dms must be positive", item.DurationMS)).
			WithDetail("duration_ms", item.DurationMS)
	}
	if item.SeriesID != nil {
		if _, err := s.GetSeries(ctx, *item.SeriesID); err != nil {
			return err
		}
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("create item: %w", err)
	}
	s.logger.Info().
		Str("item_id", item.ID).
		Str("title", item.Title).
		Int64("duration_ms", item.DurationMS).
		Msg("catalog item created")
	return nil
}

// SetApproval flips an item's eligibility for scheduling.
func (s *Service) SetApproval(ctx context.Context, id string, approved bool) error {
	res := s.db.WithContext(ctx).Model(&models.CatalogItem{}).
		Where("id = ?", id).Update("approved", approved)
	if res.Error != nil {
		return fmt.Errorf("update approval: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return scheduling.NewNotFound("catalog_item", id)
	}
	return nil
}

// DeleteItem soft-deletes an item. Already-resolved schedule days keep
// their denormalized titles, so history stays readable.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.CatalogItem{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return scheduling.NewNotFound("catalog_item", id)
	}
	s.logger.Info().Str("item_id", id).Msg("catalog item deleted")
	return nil
}
