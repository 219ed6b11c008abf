package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/linkdeck/internal/config"
	"github.com/MarcoPoloResearchLab/linkdeck/internal/database"
	"github.com/MarcoPoloResearchLab/linkdeck/internal/logging"
	"github.com/MarcoPoloResearchLab/linkdeck/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newUsersCommand() *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage local accounts",
	}
	usersCmd.AddCommand(newCreateUserCommand(), newSetPasswordCommand())
	return usersCmd
}

func newCreateUserCommand() *cobra.Command {
	var request users.NewUserRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a local account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccounts(cmd.Context(), func(ctx context.Context, accounts *users.Service) error {
				user, err := accounts.CreateUser(ctx, request)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", user.Username, user.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&request.Username, "username", "", "Username")
	cmd.Flags().StringVar(&request.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&request.Password, "password", "", "Password (omit for an account without a usable password)")
	cmd.Flags().BoolVar(&request.IsStaff, "staff", false, "Grant access to the admin pages")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newSetPasswordCommand() *cobra.Command {
	var (
		username string
		password string
		unusable bool
	)
	cmd := &cobra.Command{
		Use:   "set-password",
		Short: "Set or revoke the password of a local account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if unusable == (password != "") {
				return errors.New("exactly one of --password or --unusable is required")
			}
			return withAccounts(cmd.Context(), func(ctx context.Context, accounts *users.Service) error {
				user, err := accounts.GetUserByUsername(ctx, username)
				if err != nil {
					return err
				}
				if unusable {
					err = accounts.SetUnusablePassword(ctx, user.ID)
				} else {
					err = accounts.SetPassword(ctx, user.ID, password)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated password for %s\n", user.Username)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Username")
	cmd.Flags().StringVar(&password, "password", "", "New password")
	cmd.Flags().BoolVar(&unusable, "unusable", false, "Mark the password unusable")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func withAccounts(ctx context.Context, run func(context.Context, *users.Service) error) error {
	storage, err := config.LoadStorage(viper.GetViper())
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(storage.LogLevel, storage.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(storage.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	accounts, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	if err := run(ctx, accounts); err != nil {
		logger.Error("users command failed", zap.Error(err))
		return err
	}
	return nil
}
