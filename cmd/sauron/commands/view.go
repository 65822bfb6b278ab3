package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/SauronThermal/internal/display"
	"github.com/bryanchriswhite/SauronThermal/internal/logger"
	"github.com/bryanchriswhite/SauronThermal/internal/thermal"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Show the processed camera feed in a window",
	Long: `Open an X11 window and show every processed frame until the camera runs
out of frames, q or Escape is pressed, the window is closed, or Ctrl-C.`,
	Example: `  # Watch the synthetic source
  sauron view

  # Watch a Boson with contrast enhancement
  sauron view --source v4l2 --device /dev/video2 --contrast`,
	RunE: runView,
}

func init() {
	rootCmd.AddCommand(viewCmd)
}

func runView(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rig, err := thermal.Open(cfg)
	if err != nil {
		return err
	}

	win, err := display.Open(cfg.Display)
	if err != nil {
		rig.Source.Close()
		return fmt.Errorf("failed to open display: %w", err)
	}
	defer win.Close()

	ctx, cancel := interruptible()
	defer cancel()

	if err := rig.Camera.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := rig.Camera.Stop(); err != nil {
			logger.WithComponent("cli").Warn().Err(err).Msg("Failed to stop camera")
		}
	}()

	return finish(rig.Camera.Run(ctx, win.Render))
}
