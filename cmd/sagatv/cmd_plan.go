/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/scheduling"
	"github.com/friendsincode/saga_tv/internal/timeauthority"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Inspect schedule plans",
}

var planValidateCmd = &cobra.Command{
	Use:   "validate <plan-id>",
	Short: "Re-run every validation check against a stored plan",
	Long: `Validate a plan's full graph: the plan itself, every zone, every
pattern and every program, plus whole-day coverage. All findings are
collected and printed; the command fails when any error remains.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlanValidate,
}

func init() {
	planCmd.AddCommand(planValidateCmd)
	rootCmd.AddCommand(planCmd)
}

func runPlanValidate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return err
	}

	var plan models.SchedulePlan
	if err := database.First(&plan, "id = ?", args[0]).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("plan %s not found", args[0])
		}
		return fmt.Errorf("load plan: %w", err)
	}
	var channel models.Channel
	if err := database.First(&channel, "id = ?", plan.ChannelID).Error; err != nil {
		return fmt.Errorf("load channel: %w", err)
	}

	validator := scheduling.NewValidator(database, timeauthority.SystemClock{}, logger)
	result, err := validator.ValidatePlanGraph(&plan, &channel, scheduling.CoverageWindowDays)
	if err != nil {
		return err
	}

	for _, e := range result.Errors {
		fmt.Printf("error  %-26s %s\n", e.Code, e.Message)
	}
	for _, warning := range result.Warnings {
		fmt.Printf("warn   %-26s %s\n", warning.Code, warning.Message)
	}
	if !result.Valid {
		return fmt.Errorf("plan %q fails validation with %d errors", plan.Name, len(result.Errors))
	}
	fmt.Printf("plan %q is valid (%d warnings)\n", plan.Name, len(result.Warnings))
	return nil
}
