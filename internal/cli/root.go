// Package cli wires the medihub commands: session management plus the live
// chat overlay.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/medihub/medihub-go/internal/app"
	"github.com/medihub/medihub-go/internal/config"
	"github.com/medihub/medihub-go/internal/session"
	"github.com/medihub/medihub-go/internal/ui"
)

func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "medihub",
		Short:         "MediHub staff portal client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newLoginCommand())
	cmd.AddCommand(newLogoutCommand())
	cmd.AddCommand(newWhoamiCommand())
	cmd.AddCommand(newRoomsCommand())
	cmd.AddCommand(newWatchCommand())
	return cmd
}

func buildApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return app.New(cfg, logger)
}

func newLoginCommand() *cobra.Command {
	var accessToken, refreshToken, refreshExpiry, tokenFile string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Install a token pair issued by the portal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if tokenFile != "" {
				pair, err := readTokenFile(tokenFile)
				if err != nil {
					return err
				}
				accessToken = pair.AccessToken
				refreshToken = pair.RefreshToken
				refreshExpiry = pair.RefreshTokenExpiration
			}
			if accessToken == "" || refreshToken == "" || refreshExpiry == "" {
				return fmt.Errorf("provide --token-file or all of --access, --refresh, --refresh-expiry")
			}
			millis, err := strconv.ParseInt(refreshExpiry, 10, 64)
			if err != nil {
				return fmt.Errorf("refresh token expiry must be epoch milliseconds: %w", err)
			}

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()

			if err := a.Session.Login(ctx, accessToken, refreshToken, time.UnixMilli(millis)); err != nil {
				return err
			}
			if id, ok := a.Session.Identity(); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "logged in as user %s (%s)\n", id.UserSeq, id.Role)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "logged in")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&accessToken, "access", "", "access token")
	cmd.Flags().StringVar(&refreshToken, "refresh", "", "refresh token")
	cmd.Flags().StringVar(&refreshExpiry, "refresh-expiry", "", "refresh token expiry, epoch milliseconds")
	cmd.Flags().StringVar(&tokenFile, "token-file", "", "JSON file with accessToken, refreshToken, refreshTokenExpiration")
	return cmd
}

type tokenPairFile struct {
	AccessToken            string `json:"accessToken"`
	RefreshToken           string `json:"refreshToken"`
	RefreshTokenExpiration string `json:"refreshTokenExpiration"`
}

func readTokenFile(path string) (tokenPairFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return tokenPairFile{}, fmt.Errorf("read token file: %w", err)
	}
	var pair tokenPairFile
	if err := json.Unmarshal(raw, &pair); err != nil {
		return tokenPairFile{}, fmt.Errorf("parse token file %s: %w", path, err)
	}
	return pair, nil
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()
			a.Session.Logout(ctx)
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current identity and profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()
			if err := hydrate(ctx, a); err != nil {
				return err
			}
			if !a.Session.IsAuthenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "not logged in")
				return nil
			}
			id, _ := a.Session.Identity()
			fmt.Fprintf(cmd.OutOrStdout(), "user %s (%s)\n", id.UserSeq, id.Role)
			if profile, ok := a.Session.Profile(); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s, %s %s\n", profile.UserName, profile.PartName, profile.RankingName)
			}
			return nil
		},
	}
}

func newRoomsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List chat rooms by recency",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()
			if err := hydrate(ctx, a); err != nil {
				return err
			}
			rooms, err := a.Session.APIClient().ListRooms(ctx)
			if err != nil {
				return err
			}
			for _, room := range rooms {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", room.RoomSeq, room.Name, room.LastMessage)
			}
			return nil
		},
	}
}

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Connect to the chat channel and watch room activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()
			if err := hydrate(ctx, a); err != nil {
				return err
			}
			if err := a.Channel.Connect(ctx); err != nil {
				return err
			}
			_, err = tea.NewProgram(ui.NewModel(a.Roster)).Run()
			return err
		},
	}
}

func hydrate(ctx context.Context, a *app.App) error {
	err := a.Session.Hydrate(ctx)
	if errors.Is(err, session.ErrSessionExpired) {
		return fmt.Errorf("session expired, log in again")
	}
	return err
}
