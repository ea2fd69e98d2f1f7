package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/csv-extractor/internal/auth"
	"github.com/sakif/csv-extractor/internal/schema"
	"github.com/sakif/csv-extractor/internal/server"
	"github.com/sakif/csv-extractor/internal/service"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API. SIGINT or SIGTERM stops accepting requests and waits
for running scripts to finish.

Examples:
  extractor serve
  extractor serve --port 9090
  EXTRACTOR_EXECUTOR_BACKEND=docker extractor serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(os.Stdout)
	if err != nil {
		return err
	}
	defer a.close()

	var tokens *auth.TokenService
	if a.cfg.Auth.JWTSecret != "" {
		tokens, err = auth.NewTokenService(a.cfg.Auth.JWTSecret)
		if err != nil {
			return err
		}
	} else {
		a.logger.Warn("auth.jwt_secret not set, API is open and runs have no owner")
	}

	port := a.cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	srv := server.New(server.Config{
		Port:         port,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	},
		a.runs,
		schema.NewReader(a.cfg.Data.SourceCSV),
		tokens,
		a.logger,
		service.NewSweeper(a.runs.OutputRoot(), a.cfg.Output.Retention, a.logger),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		a.logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
