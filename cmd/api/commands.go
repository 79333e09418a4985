package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/yachtclub/internal/app"
	mw "github.com/fatflowers/yachtclub/internal/app/api/middleware"
	"github.com/fatflowers/yachtclub/pkg/config"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  func(cmd *cobra.Command, args []string) error { return serve() },
	}
}

// serve runs the API until SIGINT/SIGTERM, which fx handles.
func serve() error {
	a := fx.New(app.Module)
	startCtx, cancel := context.WithTimeout(context.Background(), app.DefaultStartTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		// Logging might not be ready; fallback to zap example
		zap.NewExample().Sugar().Errorf("failed to start app: %v", err)
		return err
	}

	sig := <-a.Wait()

	stopCtx, cancel2 := context.WithTimeout(context.Background(), app.DefaultStopTimeout)
	defer cancel2()
	if err := a.Stop(stopCtx); err != nil {
		zap.NewExample().Sugar().Errorf("failed to stop app: %v", err)
		return err
	}
	if sig.ExitCode != 0 {
		return fmt.Errorf("exited with code %d", sig.ExitCode)
	}
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			// db.Module migrates during construction
			a := fx.New(app.Core, fx.NopLogger)
			if err := a.Err(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), app.DefaultStartTimeout)
			defer cancel()
			if err := a.Start(ctx); err != nil {
				return err
			}
			return a.Stop(ctx)
		},
	}
}

func tokenCmd() *cobra.Command {
	var wallet string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a wallet bearer token signed with auth.jwt_secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			tok, err := mw.NewWalletAuth(cfg.Auth).Issue(wallet)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVarP(&wallet, "wallet", "w", "", "wallet address to authenticate as")
	_ = cmd.MarkFlagRequired("wallet")
	return cmd
}

func hashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-terminal-key [key]",
		Short: "Print the bcrypt hash to configure as a terminal key_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := mw.HashTerminalKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}
