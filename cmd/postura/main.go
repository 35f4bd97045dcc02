// Command postura runs real time posture feedback from a camera using a
// MoveNet pose model on the Rockchip NPU or TensorFlow Lite.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/swdee/go-postura/internal/config"
	"github.com/swdee/go-postura/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "postura",
	Short: "Real time posture feedback from camera frames",
	Long: "postura detects 17 body keypoints per camera frame with a MoveNet pose " +
		"model and judges shoulder and head alignment.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger.  The closer releases
// the log file.
func setup() (*config.Config, *logrus.Logger, io.Closer, error) {

	cfg, err := config.Load(configPath)

	if err != nil {
		return nil, nil, nil, err
	}

	log, closer, err := logger.New(cfg.Log)

	if err != nil {
		return nil, nil, nil, err
	}

	return cfg, log, closer, nil
}
