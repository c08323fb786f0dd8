/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/importer"
	"github.com/friendsincode/saga_tv/internal/migration/epgstation"
	"github.com/friendsincode/saga_tv/internal/migration/traffic"
	"github.com/friendsincode/saga_tv/internal/priority"
	"github.com/friendsincode/saga_tv/internal/scheduling"
	"github.com/friendsincode/saga_tv/internal/timeauthority"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import plans and legacy data",
}

var importPlanCmd = &cobra.Command{
	Use:   "plan <file.yaml>",
	Short: "Import a declarative YAML plan document",
	Long: `Load a plan document holding one plan with its zones, patterns and
programs. The document passes the same validation as interactive edits;
a document that fails any check imports nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: runImportPlan,
}

var importTrafficCmd = &cobra.Command{
	Use:   "traffic <file.db>",
	Short: "Import a legacy traffic-system sqlite database",
	Long: `Copy stations and spot inventory from a legacy traffic system.
Rows that already exist by name are skipped, so the import is safe to
re-run.`,
	Args: cobra.ExactArgs(1),
	RunE: runImportTraffic,
}

var importEPGCmd = &cobra.Command{
	Use:   "epg <postgres-dsn>",
	Short: "Import channels and programmes from a legacy EPG database",
	Long: `Copy channels and programme history from a legacy EPG postgres
database. Recurring programme names become series with one episode per
airing.`,
	Args: cobra.ExactArgs(1),
	RunE: runImportEPG,
}

func init() {
	importCmd.AddCommand(importPlanCmd)
	importCmd.AddCommand(importTrafficCmd)
	importCmd.AddCommand(importEPGCmd)
	rootCmd.AddCommand(importCmd)
}

func importDeps() (*gorm.DB, *scheduling.Validator, *events.Bus, error) {
	database, err := initDatabase()
	if err != nil {
		return nil, nil, nil, err
	}
	clock := timeauthority.SystemClock{}
	validator := scheduling.NewValidator(database, clock, logger)
	return database, validator, events.NewBus(), nil
}

func runImportPlan(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, validator, bus, err := importDeps()
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	plans := priority.NewService(database, validator, bus, logger)
	imp := importer.New(database, plans, validator, bus, logger)

	result, err := imp.Import(cmd.Context(), raw)
	if err != nil {
		return err
	}

	fmt.Printf("imported plan %q (%s): %d zones, %d patterns, %d programs\n",
		result.Plan, result.PlanID, result.Zones, result.Patterns, result.Programs)
	return nil
}

func runImportTraffic(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, validator, bus, err := importDeps()
	if err != nil {
		return err
	}

	imp := traffic.New(database, validator, bus, logger)
	result, err := imp.Import(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("imported %d channels (%d skipped), %d items (%d skipped)\n",
		result.Channels, result.ChannelsSkipped, result.Items, result.ItemsSkipped)
	printWarnings(result.Warnings)
	return nil
}

func runImportEPG(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, validator, bus, err := importDeps()
	if err != nil {
		return err
	}

	imp := epgstation.New(database, validator, bus, logger)
	result, err := imp.Import(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("imported %d channels (%d skipped), %d series, %d items (%d skipped)\n",
		result.Channels, result.ChannelsSkipped, result.Series, result.Items, result.ItemsSkipped)
	printWarnings(result.Warnings)
	return nil
}

func printWarnings(warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "warnings:\n  %s\n", strings.Join(warnings, "\n  "))
}
