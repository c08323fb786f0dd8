/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package pattern expands an ordered program list cyclically across a
// zone window, snapping every placement to the channel grid. Patterns
// store intent; concrete items are picked here, at resolution time,
// through the selection engine. Callers that only want a preview run
// the expansion inside a transaction they roll back, so rotation
// cursors never advance for a schedule that was never committed.
package pattern

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/saga_tv/internal/broadcast"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/scheduling"
	"github.com/friendsincode/saga_tv/internal/selection"
)

// Expander fills zone windows from pattern programs.
type Expander struct {
	selection *selection.Engine
	logger    zerolog.Logger
}

// NewExpander creates a pattern expander.
func NewExpander(sel *selection.Engine, logger zerolog.Logger) *Expander {
	return &Expander{
		selection: sel,
		logger:    logger.With().Str("component", "pattern_expander").Logger(),
	}
}

// Request describes one window to fill. Times are nominal broadcast-day
// seconds; wrap windows arrive as separate segments and each segment
// restarts the program cycle.
type Request struct {
	ChannelID    string
	Grid         broadcast.Grid
	StartSeconds int
	EndSeconds   int
	Programs     []models.Program
	// InstantAt maps a nominal slot offset to the absolute instant
	// recorded in rotation play memory.
	InstantAt func(offsetSeconds int) time.Time
}

// Slot is one placed item.
type Slot struct {
	Program      models.Program
	Pick         selection.Resolved
	StartSeconds int
	EndSeconds   int
	DurationMS   int64
}

// Gap is an observable avail: air time the pattern leaves unfilled
// between an item's end and the next grid boundary, or at the window
// tail. Gaps are legal; the playlog fills them with slate.
type Gap struct {
	StartSeconds int
	EndSeconds   int
}

// Result is one window's expansion.
type Result struct {
	Slots []Slot
	Gaps  []Gap
	// CarryOutSeconds is how far the final slot runs past the window
	// end. The item finishes naturally; the next zone starts at the
	// first boundary after it.
	CarryOutSeconds int
}

// OrderPrograms sorts programs into airing order: position, then
// creation time, then ID. Duplicate positions are tolerated; the
// secondary sort keeps expansion deterministic.
func OrderPrograms(programs []models.Program) {
	sort.SliceStable(programs, func(i, j int) bool {
		a, b := programs[i], programs[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// Expand fills the window cyclically until its end is reached or
// overrun by a long item. An empty program list yields one whole-window
// gap, never an error. Selection failures propagate untouched: a slot
// with no eligible content fails the day rather than inventing filler.
func (e *Expander) Expand(ctx context.Context, req Request) (*Result, error) {
	res := &Result{}
	if req.EndSeconds <= req.StartSeconds {
		return res, nil
	}
	if len(req.Programs) == 0 {
		res.Gaps = append(res.Gaps, Gap{StartSeconds: req.StartSeconds, EndSeconds: req.EndSeconds})
		return res, nil
	}

	cursor := req.StartSeconds
	for i := 0; cursor < req.EndSeconds; i++ {
		prog := req.Programs[i%len(req.Programs)]
		pick, err := e.selection.Resolve(ctx, req.ChannelID, &prog, req.InstantAt(cursor))
		if err != nil {
			return nil, err
		}
		if pick.DurationMS <= 0 {
			return nil, scheduling.NewSchedulingFailure(scheduling.FailNoEligibleContent,
				fmt.Sprintf("item %q for program %s has no duration", pick.Title, prog.ID))
		}

		durSeconds := int((pick.DurationMS + 999) / 1000)
		end := cursor + durSeconds
		res.Slots = append(res.Slots, Slot{
			Program:      prog,
			Pick:         *pick,
			StartSeconds: cursor,
			EndSeconds:   end,
			DurationMS:   pick.DurationMS,
		})

		if end >= req.EndSeconds {
			res.CarryOutSeconds = end - req.EndSeconds
			break
		}
		next := req.Grid.BoundaryAtOrAfter(end)
		if next > req.EndSeconds {
			next = req.EndSeconds
		}
		if next > end {
			res.Gaps = append(res.Gaps, Gap{StartSeconds: end, EndSeconds: next})
		}
		cursor = next
	}

	e.logger.Debug().
		Str("channel_id", req.ChannelID).
		Int("window_start", req.StartSeconds).
		Int("window_end", req.EndSeconds).
		Int("slots", len(res.Slots)).
		Int("gaps", len(res.Gaps)).
		Int("carry_out", res.CarryOutSeconds).
		Msg("window expanded")
	return res, nil
}
