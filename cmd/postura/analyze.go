package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/swdee/go-postura/backend"
	"github.com/swdee/go-postura/capture"
	"github.com/swdee/go-postura/frame"
	"github.com/swdee/go-postura/pipeline"
	"github.com/swdee/go-postura/render"
	"github.com/swdee/go-postura/server"
	"gocv.io/x/gocv"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Analyze the posture in a single image file",
	Long: "Detect the keypoints in an image file, print them with the posture " +
		"feedback as JSON and optionally save the annotated image.",
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var (
	analyzeOut      string
	analyzeRotation int
)

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOut, "out", "o", "", "Save the annotated image to this file")
	analyzeCmd.Flags().IntVar(&analyzeRotation, "rotation", 0, "Clockwise rotation of the image in degrees")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(_ *cobra.Command, args []string) error {

	cfg, log, closer, err := setup()

	if err != nil {
		return err
	}

	defer closer.Close()

	img := gocv.IMRead(args[0], gocv.IMReadColor)

	if img.Empty() {
		return fmt.Errorf("error reading image %s", args[0])
	}

	defer img.Close()

	det, err := backend.Open(cfg.Model.Options(), log)

	if err != nil {
		return fmt.Errorf("error opening pose detector: %w", err)
	}

	defer det.Close()

	analyzer := pipeline.NewAnalyzer(det, cfg.Thresholds, cfg.Diagnostics, log)
	defer analyzer.Close()

	f, err := capture.ToFrame(img, analyzeRotation)

	if err != nil {
		return err
	}

	if err := analyzer.Process(f); err != nil {
		return err
	}

	kps, _ := analyzer.Keypoints.Get()
	fb, _ := analyzer.Feedback.Get()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(server.Update{Keypoints: kps, Feedback: &fb}); err != nil {
		return err
	}

	if analyzeOut == "" {
		return nil
	}

	face, err := render.LoadFace(cfg.Render.Font, cfg.Render.FontSize)

	if err != nil {
		return err
	}

	overlay := &render.Overlay{
		Style:  cfg.Render.Style,
		Panels: render.NewPanels(face, cfg.Render.Panels),
		Debug:  cfg.Server.Debug,
	}

	// keypoints are normalised to the frame in display orientation
	out := gocv.NewMat()
	defer out.Close()

	frame.Rotate(img, &out, analyzeRotation)

	if err := overlay.Draw(&out, kps, &fb); err != nil {
		return err
	}

	if ok := gocv.IMWrite(analyzeOut, out); !ok {
		return fmt.Errorf("error writing image %s", analyzeOut)
	}

	log.WithField("file", analyzeOut).Info("Annotated image saved")

	return nil
}
