package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/maruel/interrupt"
	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/SauronThermal/internal/camera"
	"github.com/bryanchriswhite/SauronThermal/internal/config"
	"github.com/bryanchriswhite/SauronThermal/internal/display"
	"github.com/bryanchriswhite/SauronThermal/internal/logger"
)

var (
	cfgFile string
	v       = config.New()
	rootCmd = &cobra.Command{
		Use:   "sauron",
		Short: "Sauron - thermal camera viewer and streamer",
		Long: `Sauron reads frames from a thermal camera, runs them through automatic
gain control and optional contrast enhancement, and shows the result in a
window or streams it over HTTP as MJPEG.

Sources:
  • fake    synthetic scene with drifting hot spots
  • v4l2    FLIR Boson (or any Y16 UVC camera)
  • lepton  FLIR Lepton over SPI/I2C
  • auto    v4l2, then lepton`,
		SilenceUsage: true,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/sauron/config.yaml)")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("source", "", "frame source (fake, v4l2, lepton, auto)")
	flags.String("device", "", "V4L2 device path")
	flags.Int("frames", 0, "stop the fake source after this many frames")
	flags.String("agc", "", "gain control (simple, envelope, none)")
	flags.Bool("contrast", false, "apply CLAHE after gain control")
	flags.Bool("overlay", false, "stamp frame number and time on streamed frames")
	flags.Int("port", 0, "HTTP server port (default is 8000)")

	// Bound flags only override the file and environment when set.
	v.BindPFlag("log_level", flags.Lookup("log-level"))
	v.BindPFlag("camera.source", flags.Lookup("source"))
	v.BindPFlag("camera.device", flags.Lookup("device"))
	v.BindPFlag("camera.frames", flags.Lookup("frames"))
	v.BindPFlag("pipeline.agc", flags.Lookup("agc"))
	v.BindPFlag("pipeline.contrast", flags.Lookup("contrast"))
	v.BindPFlag("overlay.enabled", flags.Lookup("overlay"))
	v.BindPFlag("server.port", flags.Lookup("port"))
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration and initializes logging from it
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	return cfg, nil
}

// interruptible returns a context cancelled on Ctrl-C
func interruptible() (context.Context, context.CancelFunc) {
	interrupt.HandleCtrlC()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-interrupt.Channel:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// finish maps the ways a run ends normally to a nil error
func finish(err error) error {
	log := logger.WithComponent("cli")
	switch {
	case err == nil:
		return nil
	case errors.Is(err, camera.ErrDeviceExhausted):
		log.Info().Msg("Camera exhausted")
	case errors.Is(err, display.ErrQuit):
		log.Info().Msg("Quit")
	case errors.Is(err, context.Canceled) && interrupt.IsSet():
		log.Info().Msg("Interrupted")
	default:
		return err
	}
	return nil
}
