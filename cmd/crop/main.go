package main

import (
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/kdimtricp/photobooth/internal/imaging"
	"github.com/kdimtricp/photobooth/internal/models"
	"github.com/kdimtricp/photobooth/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	outDir     string
	box        models.FaceData
	detection  models.Detection
	normalized bool
	verbose    bool
	maxPixels  int64
)

var rootCmd = &cobra.Command{
	Use:   "photobooth-crop <image>",
	Short: "Crop and mask a face out of a local image",
	Long: "Runs the capture transform on a local file and writes the result to the output directory.\n" +
		"The face box is given in pixels, or with --normalized as a center-based box in [0,1].",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logrus.New()
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		}

		face := box
		if normalized {
			w, h, err := imageSize(args[0])
			if err != nil {
				return err
			}
			face = detection.ToPixels(w, h)
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open image: %w", err)
		}
		defer f.Close()

		store, err := storage.NewLocalStorage(outDir)
		if err != nil {
			return err
		}

		out, err := imaging.NewProcessor(store, logger).WithMaxPixels(maxPixels).Process(cmd.Context(), f, face)
		if err != nil {
			var procErr *imaging.ProcessingError
			if errors.As(err, &procErr) {
				logger.WithField("reason", procErr.Reason).Error("Transform failed")
			}
			return err
		}

		logger.WithFields(logrus.Fields{
			"file": out.Filename,
			"hash": out.PerceptualHash,
		}).Info("Capture written")
		fmt.Fprintln(cmd.OutOrStdout(), out.Filename)

		return nil
	},
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read image size: %w", err)
	}

	return cfg.Width, cfg.Height, nil
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&outDir, "out", "o", "./captures", "output directory")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	flags.Int64Var(&maxPixels, "max-pixels", imaging.DefaultMaxPixels, "largest image, in pixels, that will be decoded")

	flags.Float64Var(&box.X, "x", 0, "face box left edge in pixels")
	flags.Float64Var(&box.Y, "y", 0, "face box top edge in pixels")
	flags.Float64Var(&box.Width, "width", 0, "face box width in pixels")
	flags.Float64Var(&box.Height, "height", 0, "face box height in pixels")

	flags.BoolVar(&normalized, "normalized", false, "read the face box from the --cx/--cy/--nw/--nh flags")
	flags.Float64Var(&detection.XCenter, "cx", 0, "normalized box center x")
	flags.Float64Var(&detection.YCenter, "cy", 0, "normalized box center y")
	flags.Float64Var(&detection.Width, "nw", 0, "normalized box width")
	flags.Float64Var(&detection.Height, "nh", 0, "normalized box height")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
