package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/swdee/go-postura/backend"
	"github.com/swdee/go-postura/capture"
	"github.com/swdee/go-postura/internal/config"
	"github.com/swdee/go-postura/pipeline"
	"github.com/swdee/go-postura/render"
	"github.com/swdee/go-postura/rknn"
	"github.com/swdee/go-postura/server"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Analyze camera frames and serve the results over HTTP",
	Long: "Capture frames from the configured camera, detect keypoints on the " +
		"latest frame and serve the annotated stream, keypoints and feedback. " +
		"A non looping video file source stops the command when it ends.",
	RunE: runPipeline,
}

var runDebug bool

func init() {
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Draw the debug panel on the stream")
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, _ []string) error {

	cfg, log, closer, err := setup()

	if err != nil {
		return err
	}

	defer closer.Close()

	if cmd.Flags().Changed("debug") {
		cfg.Server.Debug = runDebug
	}

	if err := pinCPU(cfg.Model, log); err != nil {
		return err
	}

	// no frame can be analyzed without the model so failing to load it ends
	// the program
	det, err := backend.Open(cfg.Model.Options(), log)

	if err != nil {
		return fmt.Errorf("error opening pose detector: %w", err)
	}

	defer det.Close()

	face, err := render.LoadFace(cfg.Render.Font, cfg.Render.FontSize)

	if err != nil {
		return err
	}

	src, err := capture.Open(cfg.Camera, log)

	if err != nil {
		return err
	}

	defer src.Close()

	mb := pipeline.NewMailbox()

	analyzer := pipeline.NewAnalyzer(det, cfg.Thresholds, cfg.Diagnostics, log)
	defer analyzer.Close()

	overlay := &render.Overlay{
		Style:  cfg.Render.Style,
		Panels: render.NewPanels(face, cfg.Render.Panels),
		Debug:  cfg.Server.Debug,
	}

	srv := server.New(cfg.Server, server.Sources{
		Keypoints: analyzer.Keypoints,
		Feedback:  analyzer.Feedback,
		Preview:   src.Preview,
		Stats:     analyzer.Stats.Snapshot,
	}, overlay, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("session", analyzer.Session()).Info("Posture analysis running")

	err = supervise(ctx,
		func(ctx context.Context) error {
			// the worker stops once the mailbox closes
			defer mb.Close()
			return src.Run(ctx, mb)
		},
		func(ctx context.Context) error {
			return analyzer.Run(ctx, mb)
		},
		srv.Run,
	)

	log.WithFields(logrus.Fields{
		"frames":  analyzer.Stats.Frames(),
		"dropped": mb.Dropped(),
	}).Info("Posture analysis stopped")

	return err
}

// pinCPU restricts the process to the configured Rockchip CPU cluster
func pinCPU(m config.ModelConfig, log logrus.FieldLogger) error {

	if m.Platform == "" {
		return nil
	}

	ct, err := rknn.ParseCoreType(m.Cores)

	if err != nil {
		return err
	}

	if err := rknn.SetCPUAffinityByPlatform(m.Platform, ct); err != nil {
		return fmt.Errorf("failed to set CPU affinity: %w", err)
	}

	log.WithFields(logrus.Fields{
		"platform": m.Platform,
		"cores":    m.Cores,
	}).Info("CPU affinity set")

	return nil
}

// supervise runs the frame source, worker and HTTP server together.  All of
// them stop on cancellation, on the first failure, or when the source runs
// out of frames such as at the end of a video file.
func supervise(ctx context.Context, source, worker, server func(context.Context) error) error {

	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		return source(ctx)
	})

	g.Go(func() error {
		return worker(ctx)
	})

	g.Go(func() error {
		return server(ctx)
	})

	return g.Wait()
}
