/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/models"
)

var (
	userCreateRole     string
	userCreatePassword string
	userDeleteForce    bool
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage operator accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <email>",
	Short: "Create an operator account",
	Long: `Create an operator account with the given role (admin, editor or
viewer). Without --password the password is prompted without echo.

Examples:
  sagatv user create ops@example.com --role admin
  sagatv user create viewer@example.com --role viewer --password s3cret`,
	Args: cobra.ExactArgs(1),
	RunE: runUserCreate,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List operator accounts",
	Args:  cobra.NoArgs,
	RunE:  runUserList,
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <email>",
	Short: "Delete an operator account",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserDelete,
}

func init() {
	userCreateCmd.Flags().StringVar(&userCreateRole, "role", string(models.RoleViewer), "Role: admin, editor or viewer")
	userCreateCmd.Flags().StringVar(&userCreatePassword, "password", "", "Password (prompted when omitted)")
	userDeleteCmd.Flags().BoolVarP(&userDeleteForce, "force", "f", false, "Skip confirmation prompt")

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userDeleteCmd)
	rootCmd.AddCommand(userCmd)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return err
	}

	email := strings.ToLower(strings.TrimSpace(args[0]))
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email %q", args[0])
	}

	role := models.RoleName(userCreateRole)
	switch role {
	case models.RoleAdmin, models.RoleEditor, models.RoleViewer:
	default:
		return fmt.Errorf("unknown role %q: use admin, editor or viewer", userCreateRole)
	}

	var n int64
	if err := database.Model(&models.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("a user with email %s already exists", email)
	}

	password := userCreatePassword
	if password == "" {
		fmt.Print("Password: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		password = string(raw)
	}
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:       uuid.NewString(),
		Email:    email,
		Password: string(hash),
		Role:     role,
	}
	if err := database.Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Printf("created %s user %s (%s)\n", user.Role, user.Email, user.ID)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return err
	}

	var users []models.User
	if err := database.Order("created_at ASC").Find(&users).Error; err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("no users")
		return nil
	}
	for _, u := range users {
		fmt.Printf("%-36s  %-8s  %s\n", u.ID, u.Role, u.Email)
	}
	return nil
}

func runUserDelete(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return err
	}

	email := strings.ToLower(strings.TrimSpace(args[0]))
	var user models.User
	err = database.First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("user %s not found", email)
	}
	if err != nil {
		return err
	}

	if !userDeleteForce {
		fmt.Printf("Delete %s user %s? This also revokes their API keys.\n", user.Role, user.Email)
		fmt.Print("Type 'yes' to confirm: ")
		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if strings.TrimSpace(strings.ToLower(response)) != "yes" {
			fmt.Println("aborted")
			return nil
		}
	}

	return database.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.APIKey{}, "user_id = ?", user.ID).Error; err != nil {
			return fmt.Errorf("delete api keys: %w", err)
		}
		if err := tx.Delete(&models.User{}, "id = ?", user.ID).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		fmt.Printf("deleted %s\n", user.Email)
		return nil
	})
}
