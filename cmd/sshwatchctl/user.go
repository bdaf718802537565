package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	authmodels "github.com/sshwatch/sshwatch/internal/auth/models"
	"github.com/sshwatch/sshwatch/internal/repository"
)

func newUserCmd() *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage dashboard users",
	}

	var isAdmin bool
	createCmd := &cobra.Command{
		Use:   "create <username> <password>",
		Short: "Create a new dashboard user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(ctx context.Context, repo *repository.PostgresRepository) error {
				hash, err := bcrypt.GenerateFromPassword([]byte(args[1]), bcrypt.DefaultCost)
				if err != nil {
					return err
				}
				user := &authmodels.User{
					Username:              args[0],
					PasswordHash:          string(hash),
					RequirePasswordChange: true,
					IsAdmin:               isAdmin,
					CreatedAt:             time.Now(),
				}
				if err := repo.CreateUser(ctx, user); err != nil {
					return err
				}
				color.Green("User %q created (id=%d)", user.Username, user.ID)
				return nil
			})
		},
	}
	createCmd.Flags().BoolVar(&isAdmin, "admin", false, "grant admin role")

	passwdCmd := &cobra.Command{
		Use:   "passwd <username> <new-password>",
		Short: "Reset a user's password",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(ctx context.Context, repo *repository.PostgresRepository) error {
				user, err := repo.GetUserByUsername(ctx, args[0])
				if err != nil {
					return err
				}
				hash, err := bcrypt.GenerateFromPassword([]byte(args[1]), bcrypt.DefaultCost)
				if err != nil {
					return err
				}
				if err := repo.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
					return err
				}
				color.Green("Password updated for %q", user.Username)
				return nil
			})
		},
	}

	userCmd.AddCommand(createCmd, passwdCmd)
	return userCmd
}

func withRepo(fn func(ctx context.Context, repo *repository.PostgresRepository) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	repo, err := repository.NewPostgresRepository(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer repo.Close()

	return fn(ctx, repo)
}
