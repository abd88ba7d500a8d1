package cli

import (
	"context"
	"fmt"

	"github.com/roboco-io/imgcaption/internal/server"
	"github.com/roboco-io/imgcaption/internal/session"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the caption editor over HTTP",
	Long: `Serve the caption editor.

Routes:
  GET /         editor form; accepts caption, img and fontsz
  GET /render   captioned PNG for caption, img and fontsz
  GET /healthz  liveness check

Environment variables:
  IMGCAPTION_ADDR=host:port   listen address

Example:
  imgcaption serve --addr :8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	opts := cfg.SessionOptions()
	composer, err := session.NewComposer(opts, cfg.CaptionOptions())
	if err != nil {
		return fmt.Errorf("failed to load font: %w", err)
	}

	srv := server.New(server.Config{Addr: cfg.Server.Addr}, composer, newLoader(cfg, false), opts)
	statusf(cmd, "serving on %s", cfg.Server.Addr)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return srv.ListenAndServe(ctx)
}
