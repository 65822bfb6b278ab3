package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/SauronThermal/internal/api"
	"github.com/bryanchriswhite/SauronThermal/internal/logger"
	"github.com/bryanchriswhite/SauronThermal/internal/output"
	"github.com/bryanchriswhite/SauronThermal/internal/overlay"
	"github.com/bryanchriswhite/SauronThermal/internal/thermal"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Stream the processed camera feed over HTTP",
	Long: `Serve the processed feed as MJPEG together with stream statistics, live
AGC diagnostics and prometheus metrics.

Routes:
  /                 viewer page
  /stream           MJPEG stream (also /feed/<device>/)
  /stats            stream statistics
  /api/agc          latest AGC state, /api/agc/stream over websocket
  /api/frame/stats  statistics of the last streamed frame
  /metrics          prometheus metrics`,
	Example: `  # Serve the synthetic source on the default port (8000)
  sauron serve

  # Serve a Lepton with frame stamps on port 9090
  sauron serve --source lepton --overlay --port 9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("cli")

	rig, err := thermal.Open(cfg)
	if err != nil {
		return err
	}

	bounds := rig.Source.Bounds()
	stream := output.NewMJPEGOutput(output.Config{
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
		FPS:     cfg.Camera.FPS,
		Quality: cfg.Server.JPEGQuality,
	})
	if cfg.Overlay.Enabled {
		stream.SetAnnotator(overlay.NewDefault().Annotate)
	}
	if err := stream.Start(); err != nil {
		rig.Source.Close()
		return err
	}

	ctx, cancel := interruptible()
	defer cancel()

	server := api.NewServer(cfg, stream, rig.Hub)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(cfg.Server.Port)
	}()

	if err := rig.Camera.Start(ctx); err != nil {
		stream.Stop()
		return err
	}
	runErr := make(chan error, 1)
	go func() {
		runErr <- rig.Camera.Run(ctx, stream.WriteFrame)
	}()

	select {
	case err = <-runErr:
	case err = <-serveErr:
		if err == nil {
			err = context.Canceled
		}
	}

	log.Info().Msg("Shutting down")
	cancel()
	if err := rig.Camera.Stop(); err != nil {
		log.Warn().Err(err).Msg("Failed to stop camera")
	}
	stream.Stop()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to shut down HTTP server")
	}

	return finish(err)
}
