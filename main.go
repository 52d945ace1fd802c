package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/annolab/annotation-inference/config"
	"github.com/annolab/annotation-inference/models"
	"github.com/annolab/annotation-inference/pipeline"
	"github.com/annolab/annotation-inference/render"
)

var (
	configPath = flag.String("config", "", "path to yaml configuration file")
	mode       = flag.String("mode", "detect", "detect, segment or serve")
	imagePath  = flag.String("image", "", "path to the input image")
	pointArg   = flag.String("point", "", "prompt point as x,y (segment mode)")
	saveFlag   = flag.Bool("save", false, "write a rendered overlay next to the input image")
)

var logger *logrus.Logger

func initLogger(debug bool) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if debug {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}
	logger = initLogger(cfg.Debug)

	if err := pipeline.InitRuntime(cfg.RuntimeLib); err != nil {
		logger.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer pipeline.DestroyRuntime()

	switch *mode {
	case "detect":
		err = runDetect(cfg)
	case "segment":
		err = runSegment(cfg)
	case "serve":
		err = runServer(cfg)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		logger.Fatalf("%v", err)
	}
}

func runDetect(cfg *config.AppConfig) error {
	if *imagePath == "" {
		return fmt.Errorf("detect mode needs -image")
	}

	img, err := pipeline.LoadImage(*imagePath)
	if err != nil {
		return err
	}

	detector, err := pipeline.NewDetector(cfg.Detection)
	if err != nil {
		return err
	}
	defer detector.Destroy()

	detections, timings, err := detector.Detect(context.Background(), img)
	if err != nil {
		return err
	}
	logTimings(timings)

	labels := cfg.Detection.Labels
	for _, d := range detections {
		name := fmt.Sprintf("#%d", d.ClassID)
		if d.ClassID < len(labels) {
			name = labels[d.ClassID]
		}
		logger.Infof("%s %.2f at (%.0f,%.0f)-(%.0f,%.0f)",
			name, d.Score, d.Box[0], d.Box[1], d.Box[2], d.Box[3])
	}
	logger.Infof("%d detections", len(detections))

	if *saveFlag {
		overlay := render.DrawDetections(img, detections, labels)
		outPath, err := render.SaveOverlay(*imagePath, overlay)
		if err != nil {
			return err
		}
		logger.Infof("Overlay written to %s", outPath)
	}
	return nil
}

func runSegment(cfg *config.AppConfig) error {
	if *imagePath == "" {
		return fmt.Errorf("segment mode needs -image")
	}
	point, err := parsePoint(*pointArg)
	if err != nil {
		return err
	}

	img, err := pipeline.LoadImage(*imagePath)
	if err != nil {
		return err
	}

	segmenter, err := pipeline.NewSegmenter(cfg.Segmentation)
	if err != nil {
		return err
	}
	defer segmenter.Destroy()

	mask, err := segmenter.Segment(context.Background(), img, point)
	if err != nil {
		return err
	}
	logger.Infof("Mask %dx%d, %d foreground pixels", mask.Width, mask.Height, mask.Count())

	if *saveFlag {
		overlay := render.DrawMask(img, mask)
		outPath, err := render.SaveOverlay(*imagePath, overlay)
		if err != nil {
			return err
		}
		logger.Infof("Overlay written to %s", outPath)
	}
	return nil
}

// parsePoint reads a foreground prompt point from "x,y".
func parsePoint(s string) (models.PromptPoint, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return models.PromptPoint{}, fmt.Errorf("point must be x,y, got %q", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 32)
	if err != nil {
		return models.PromptPoint{}, fmt.Errorf("point x: %w", err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 32)
	if err != nil {
		return models.PromptPoint{}, fmt.Errorf("point y: %w", err)
	}
	return models.PromptPoint{X: float32(x), Y: float32(y), Label: 1}, nil
}

func logTimings(t *models.StageTimings) {
	logger.WithFields(logrus.Fields{
		"preprocess": t.Preprocess,
		"inference":  t.Inference,
		"decode":     t.Decode,
		"suppress":   t.Suppress,
		"total":      t.Total,
	}).Debug("stage timings")
}
