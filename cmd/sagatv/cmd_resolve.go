/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/broadcast"
	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/resolution"
	"github.com/friendsincode/saga_tv/internal/scheduling"
	"github.com/friendsincode/saga_tv/internal/timeauthority"
)

var (
	resolveDays    int
	resolvePlaylog bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <channel> [date]",
	Short: "Resolve broadcast days for a channel",
	Long: `Resolve one or more broadcast days for a channel outside the horizon
orchestrator, for backfill or inspection. The channel is named by slug
or ID; the date defaults to the current broadcast day.

Examples:
  sagatv resolve city-one 2026-09-01
  sagatv resolve city-one 2026-09-01 --days 7
  sagatv resolve city-one --playlog`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().IntVar(&resolveDays, "days", 1, "Number of consecutive days to resolve")
	resolveCmd.Flags().BoolVar(&resolvePlaylog, "playlog", false, "Also emit the playlog through the resolved range")
	rootCmd.AddCommand(resolveCmd)
}

// lookupChannel resolves a slug or ID argument against the database.
func lookupChannel(ctx context.Context, database *gorm.DB, ref string) (*models.Channel, error) {
	var channel models.Channel
	err := database.WithContext(ctx).First(&channel, "id = ? OR slug = ?", ref, ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("channel %q not found", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup channel: %w", err)
	}
	return &channel, nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	clock := timeauthority.SystemClock{}
	engine := resolution.NewEngine(database, clock, events.NewBus(), logger)

	channel, err := lookupChannel(ctx, database, args[0])
	if err != nil {
		return err
	}

	loc := time.UTC
	if channel.Timezone != "" {
		if loc, err = time.LoadLocation(channel.Timezone); err != nil {
			return fmt.Errorf("channel timezone: %w", err)
		}
	}

	date := channel.Grid().BroadcastDayOf(clock.Now(), loc)
	if len(args) == 2 {
		if date, err = broadcast.ParseDate(args[1]); err != nil {
			return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}
	}
	if resolveDays < 1 {
		resolveDays = 1
	}

	var lastEnd time.Time
	for i := 0; i < resolveDays; i++ {
		d := date.AddDays(i)
		day, err := engine.ResolveDay(ctx, channel.ID, d)

		var sf *scheduling.SchedulingFailure
		switch {
		case err == nil:
			fmt.Printf("%s  resolved  revision %d\n", d, day.Revision)
		case errors.As(err, &sf):
			fmt.Printf("%s  FAILED    %s: %s\n", d, sf.Code, sf.Message)
		default:
			return fmt.Errorf("resolve %s: %w", d, err)
		}
		lastEnd = channel.Grid().DayStart(d.AddDays(1), loc)
	}

	if resolvePlaylog && !lastEnd.IsZero() {
		emitted, err := engine.EmitPlaylog(ctx, channel.ID, lastEnd)
		if err != nil {
			return fmt.Errorf("emit playlog: %w", err)
		}
		fmt.Printf("playlog: %d events emitted\n", emitted)
	}

	return nil
}
