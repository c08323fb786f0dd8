/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/saga_tv/internal/broadcast"
	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/guide"
	"github.com/friendsincode/saga_tv/internal/storage"
	"github.com/friendsincode/saga_tv/internal/timeauthority"
)

var exportStdout string

var exportCmd = &cobra.Command{
	Use:   "export <channel> [date]",
	Short: "Export the guide for a resolved broadcast day",
	Long: `Render the XMLTV and iCal guide for a resolved day and archive both
through the configured storage backend. With --stdout the chosen format
is printed instead of archived.

Examples:
  sagatv export city-one 2026-09-01
  sagatv export city-one --stdout xmltv > guide.xml`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportStdout, "stdout", "", "Print one format (xmltv or ical) instead of archiving")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
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
	clock := timeauthority.SystemClock{}
	date := channel.Grid().BroadcastDayOf(clock.Now(), loc)
	if len(args) == 2 {
		if date, err = broadcast.ParseDate(args[1]); err != nil {
			return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}
	}

	store, err := storage.NewFromConfig(cfg, logger)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	exporter := guide.NewExporter(database, store, events.NewBus(), logger)

	if exportStdout != "" {
		var body []byte
		switch exportStdout {
		case "xmltv":
			body, err = exporter.RenderXMLTV(ctx, channel.ID, date)
		case "ical":
			body, err = exporter.RenderICal(ctx, channel.ID, date)
		default:
			return fmt.Errorf("unknown format %q: use xmltv or ical", exportStdout)
		}
		if err != nil {
			if errors.Is(err, guide.ErrDayNotResolved) {
				return fmt.Errorf("no resolved schedule for %s: resolve the day first", date)
			}
			return err
		}
		_, err = os.Stdout.Write(body)
		return err
	}

	results, err := exporter.ExportDay(ctx, channel.ID, date)
	if err != nil {
		if errors.Is(err, guide.ErrDayNotResolved) {
			return fmt.Errorf("no resolved schedule for %s: resolve the day first", date)
		}
		return err
	}
	for _, r := range results {
		fmt.Printf("%s  %s  %d bytes\n", r.Format, r.Key, r.Bytes)
	}
	return nil
}
