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

	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/webhooks"
)

var webhookAddEvents string

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage outbound webhook targets",
}

var webhookAddCmd = &cobra.Command{
	Use:   "add <channel> <url>",
	Short: "Register a webhook target for a channel",
	Long: `Register a webhook endpoint. Without --events the target receives
every scheduling event (day.resolved, day.failed, day.overridden,
guide.published, playlog.extended). The generated signing secret is
printed once; deliveries carry an HMAC-SHA256 signature in the
X-SagaTV-Signature header.`,
	Args: cobra.ExactArgs(2),
	RunE: runWebhookAdd,
}

var webhookListCmd = &cobra.Command{
	Use:   "list <channel>",
	Short: "List webhook targets for a channel",
	Args:  cobra.ExactArgs(1),
	RunE:  runWebhookList,
}

var webhookRemoveCmd = &cobra.Command{
	Use:   "remove <target-id>",
	Short: "Remove a webhook target",
	Args:  cobra.ExactArgs(1),
	RunE:  runWebhookRemove,
}

var webhookTestCmd = &cobra.Command{
	Use:   "test <target-id>",
	Short: "Send a probe payload to a webhook target",
	Args:  cobra.ExactArgs(1),
	RunE:  runWebhookTest,
}

func init() {
	webhookAddCmd.Flags().StringVar(&webhookAddEvents, "events", "", "Comma-separated event subset (default: all)")

	webhookCmd.AddCommand(webhookAddCmd)
	webhookCmd.AddCommand(webhookListCmd)
	webhookCmd.AddCommand(webhookRemoveCmd)
	webhookCmd.AddCommand(webhookTestCmd)
	rootCmd.AddCommand(webhookCmd)
}

func runWebhookAdd(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return err
	}

	channel, err := lookupChannel(cmd.Context(), database, args[0])
	if err != nil {
		return err
	}

	target := models.NewWebhookTarget(channel.ID, args[1], webhookAddEvents)
	if err := database.Create(target).Error; err != nil {
		return fmt.Errorf("create webhook target: %w", err)
	}

	fmt.Printf("registered %s for %s\n", target.ID, channel.Slug)
	fmt.Printf("signing secret: %s\n", target.Secret)
	return nil
}

func runWebhookList(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return err
	}

	channel, err := lookupChannel(cmd.Context(), database, args[0])
	if err != nil {
		return err
	}

	var targets []models.WebhookTarget
	if err := database.Where("channel_id = ?", channel.ID).Order("created_at ASC").Find(&targets).Error; err != nil {
		return err
	}
	if len(targets) == 0 {
		fmt.Println("no webhook targets")
		return nil
	}
	for _, t := range targets {
		eventList := t.Events
		if eventList == "" {
			eventList = "all"
		}
		state := "active"
		if !t.Active {
			state = "disabled"
		}
		fmt.Printf("%-36s  %-8s  %-40s  %s\n", t.ID, state, t.URL, eventList)
	}
	return nil
}

func runWebhookRemove(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return err
	}

	res := database.Delete(&models.WebhookTarget{}, "id = ?", args[0])
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("webhook target %s not found", args[0])
	}
	fmt.Printf("removed %s\n", args[0])
	return nil
}

func runWebhookTest(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return err
	}

	var target models.WebhookTarget
	err = database.First(&target, "id = ?", args[0]).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("webhook target %s not found", args[0])
	}
	if err != nil {
		return err
	}

	svc := webhooks.NewService(database, events.NewBus(), logger)
	if err := svc.Test(cmd.Context(), &target); err != nil {
		return fmt.Errorf("probe delivery failed: %w", err)
	}
	fmt.Println("probe delivered")
	return nil
}
