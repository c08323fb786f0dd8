/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package selection turns program references into concrete catalog
// picks. All randomness is seeded from persisted rotation state, so
// re-running a resolution after a rollback picks the same items.
package selection

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/saga_tv/internal/catalog"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/rotation"
	"github.com/friendsincode/saga_tv/internal/scheduling"
)

// Resolved is a concrete pick for one program reference.
type Resolved struct {
	// ItemID is empty for virtual composites, which carry Members instead.
	ItemID     string
	SeriesID   *string
	Title      string
	DurationMS int64
	// Members holds a virtual composite's items in airing order.
	Members []models.CatalogItem
}

// Engine resolves programs against the catalog and rotation state.
type Engine struct {
	catalog  *catalog.Service
	rotation *rotation.Store
	logger   zerolog.Logger
}

// NewEngine creates a selection engine.
func NewEngine(cat *catalog.Service, rot *rotation.Store, logger zerolog.Logger) *Engine {
	return &Engine{
		catalog:  cat,
		rotation: rot,
		logger:   logger.With().Str("component", "selection").Logger(),
	}
}

// Resolve materializes one program into a catalog pick scheduled at the
// given instant. The instant feeds play memory, so least-recently-used
// rotation orders by scheduled air time, not by when resolution ran.
func (e *Engine) Resolve(ctx context.Context, channelID string, prog *models.Program, at time.Time) (*Resolved, error) {
	switch prog.Kind {
	case models.ProgramSeries:
		return e.resolveSeries(ctx, channelID, prog, at)
	case models.ProgramAsset:
		return e.resolveAsset(ctx, prog)
	case models.ProgramRule:
		return e.resolveRule(ctx, channelID, prog, at)
	case models.ProgramVirtual:
		return e.resolveVirtual(ctx, prog)
	default:
		return nil, scheduling.NewSchedulingFailure(scheduling.FailNoEligibleContent,
			fmt.Sprintf("program %s has unknown kind %q", prog.ID, prog.Kind))
	}
}

func (e *Engine) resolveSeries(ctx context.Context, channelID string, prog *models.Program, at time.Time) (*Resolved, error) {
	episodes, err := e.catalog.Episodes(ctx, *prog.SeriesID)
	if err != nil {
		return nil, err
	}
	if len(episodes) == 0 {
		return nil, scheduling.NewSchedulingFailure(scheduling.FailNoEligibleContent,
			fmt.Sprintf("series %s has no approved episodes", *prog.SeriesID))
	}

	state, err := e.rotation.State(ctx, channelID, *prog.SeriesID)
	if err != nil {
		return nil, err
	}

	var pick int
	switch *prog.Rotation {
	case models.RotationSequential:
		pick = state.Cursor % len(episodes)
	case models.RotationRandom:
		rng := rand.New(rand.NewSource(state.Seed + int64(state.Cursor)))
		pick = rng.Intn(len(episodes))
	case models.RotationLeastRecentlyUsed:
		last, err := e.rotation.LastPlayed(ctx, channelID, *prog.SeriesID)
		if err != nil {
			return nil, err
		}
		pick = leastRecentlyPlayed(episodes, last)
	default:
		return nil, scheduling.NewSchedulingFailure(scheduling.FailNoEligibleContent,
			fmt.Sprintf("series program %s has unknown rotation %q", prog.ID, *prog.Rotation))
	}

	ep := episodes[pick]
	if err := e.rotation.Advance(ctx, channelID, *prog.SeriesID, state.Cursor+1); err != nil {
		return nil, err
	}
	if err := e.rotation.RecordPlay(ctx, channelID, *prog.SeriesID, ep.ID, at); err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("channel_id", channelID).
		Str("series_id", *prog.SeriesID).
		Str("item_id", ep.ID).
		Str("rotation", string(*prog.Rotation)).
		Int("cursor", state.Cursor).
		Msg("series episode selected")
	return &Resolved{
		ItemID:     ep.ID,
		SeriesID:   prog.SeriesID,
		Title:      ep.Title,
		DurationMS: ep.DurationMS,
	}, nil
}

// leastRecentlyPlayed prefers the first never-played episode in airing
// order, then the episode with the oldest play.
func leastRecentlyPlayed(episodes []models.CatalogItem, last map[string]time.Time) int {
	for i := range episodes {
		if _, played := last[episodes[i].ID]; !played {
			return i
		}
	}
	pick := 0
	best := last[episodes[0].ID]
	for i := 1; i < len(episodes); i++ {
		if ts := last[episodes[i].ID]; ts.Before(best) {
			pick, best = i, ts
		}
	}
	return pick
}

func (e *Engine) resolveAsset(ctx context.Context, prog *models.Program) (*Resolved, error) {
	item, err := e.catalog.GetItem(ctx, *prog.AssetID)
	if err != nil {
		var nf *scheduling.NotFoundError
		if errors.As(err, &nf) {
			return nil, scheduling.NewSchedulingFailure(scheduling.FailNoEligibleContent,
				fmt.Sprintf("asset %s no longer exists", *prog.AssetID))
		}
		return nil, err
	}
	if !item.Approved {
		return nil, scheduling.NewSchedulingFailure(scheduling.FailNoEligibleContent,
			fmt.Sprintf("asset %s is not approved for air", item.ID))
	}
	return &Resolved{
		ItemID:     item.ID,
		SeriesID:   item.SeriesID,
		Title:      item.Title,
		DurationMS: item.DurationMS,
	}, nil
}

func (e *Engine) resolveRule(ctx context.Context, channelID string, prog *models.Program, at time.Time) (*Resolved, error) {
	items, err := e.catalog.EligibleByRule(ctx, prog.Rule)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, scheduling.NewSchedulingFailure(scheduling.FailNoEligibleContent,
			fmt.Sprintf("rule program %s matched no eligible items", prog.ID))
	}

	// Rule programs rotate over their own scope so repeated slots walk
	// the candidate pool instead of replaying one item.
	state, err := e.rotation.State(ctx, channelID, prog.ID)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(state.Seed + int64(state.Cursor)))
	item := items[rng.Intn(len(items))]

	if err := e.rotation.Advance(ctx, channelID, prog.ID, state.Cursor+1); err != nil {
		return nil, err
	}
	if err := e.rotation.RecordPlay(ctx, channelID, prog.ID, item.ID, at); err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("channel_id", channelID).
		Str("program_id", prog.ID).
		Str("item_id", item.ID).
		Int("candidates", len(items)).
		Msg("rule item selected")
	return &Resolved{
		ItemID:     item.ID,
		SeriesID:   item.SeriesID,
		Title:      item.Title,
		DurationMS: item.DurationMS,
	}, nil
}

func (e *Engine) resolveVirtual(ctx context.Context, prog *models.Program) (*Resolved, error) {
	byID, err := e.catalog.ItemsByID(ctx, prog.Virtual.ItemIDs)
	if err != nil {
		return nil, err
	}

	members := make([]models.CatalogItem, 0, len(prog.Virtual.ItemIDs))
	var total int64
	for _, id := range prog.Virtual.ItemIDs {
		item, ok := byID[id]
		if !ok {
			return nil, scheduling.NewSchedulingFailure(scheduling.FailNoEligibleContent,
				fmt.Sprintf("virtual member %s no longer exists", id))
		}
		if !item.Approved {
			return nil, scheduling.NewSchedulingFailure(scheduling.FailNoEligibleContent,
				fmt.Sprintf("virtual member %s is not approved for air", id))
		}
		members = append(members, item)
		total += item.DurationMS
	}
	return &Resolved{
		Title:      prog.Virtual.Title,
		DurationMS: total,
		Members:    members,
	}, nil
}
