// Package config loads model-profile configuration. Thresholds, input sizes,
// normalization constants and tensor names all live in profiles passed into
// the pipeline per call, so multiple model profiles can run concurrently
// without cross-talk.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
)

// DetectionProfile configures one detection model.
type DetectionProfile struct {
	Name                string   `koanf:"name"`
	ModelPath           string   `koanf:"modelpath"`
	InputName           string   `koanf:"inputname"`
	OutputName          string   `koanf:"outputname"`
	InputWidth          int      `koanf:"inputwidth"`
	InputHeight         int      `koanf:"inputheight"`
	OutputShape         []int64  `koanf:"outputshape"`
	Layout              string   `koanf:"layout"` // "per-detection" or "per-anchor"
	Half                bool     `koanf:"half"`   // model expects float16 tensors
	ScoreThreshold      float32  `koanf:"scorethreshold"`
	ConfidenceThreshold float32  `koanf:"confidencethreshold"`
	IoUThreshold        float32  `koanf:"iouthreshold"`
	Labels              []string `koanf:"labels"`
}

// SegmentationProfile configures a promptable segmentation encoder/decoder
// pair.
type SegmentationProfile struct {
	EncoderPath string     `koanf:"encoderpath"`
	DecoderPath string     `koanf:"decoderpath"`
	InputSize   int        `koanf:"inputsize"`
	Multimask   bool       `koanf:"multimask"` // decoder takes a multimask_output input
	Mean        [3]float32 `koanf:"mean"`
	Std         [3]float32 `koanf:"std"`
}

// AppConfig is the top-level configuration.
type AppConfig struct {
	RuntimeLib   string              `koanf:"runtimelib"` // onnxruntime shared library path
	Debug        bool                `koanf:"debug"`
	PoolSize     int                 `koanf:"poolsize"`
	ListenAddr   string              `koanf:"listenaddr"`
	Detection    DetectionProfile    `koanf:"detection"`
	Segmentation SegmentationProfile `koanf:"segmentation"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"poolsize":   4,
		"listenaddr": "127.0.0.1:8080",
		"detection": map[string]interface{}{
			"inputname":           "images",
			"outputname":          "output0",
			"inputwidth":          640,
			"inputheight":         640,
			"outputshape":         []int64{1, 84, 8400},
			"layout":              "per-anchor",
			"scorethreshold":      0.25,
			"confidencethreshold": 0.25,
			"iouthreshold":        0.45,
		},
		"segmentation": map[string]interface{}{
			"inputsize": 1024,
			"mean":      []float64{123.675, 116.28, 103.53},
			"std":       []float64{58.395, 57.12, 57.375},
		},
	}
}

// Load resolves configuration from defaults, then an optional yaml file, then
// AINF_-prefixed environment variables.
func Load(path string) (*AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("AINF_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "AINF_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies custom rules beyond what unmarshalling checks.
func Validate(cfg *AppConfig) error {
	d := &cfg.Detection
	if d.Layout != "per-detection" && d.Layout != "per-anchor" {
		return fmt.Errorf("detection.layout: unknown layout %q", d.Layout)
	}
	if d.InputWidth <= 0 || d.InputHeight <= 0 {
		return fmt.Errorf("detection: invalid input size %dx%d", d.InputWidth, d.InputHeight)
	}
	if len(d.OutputShape) != 3 || d.OutputShape[0] != 1 {
		return fmt.Errorf("detection.outputshape: want [1, a, b], got %v", d.OutputShape)
	}
	for name, v := range map[string]float32{
		"scorethreshold":      d.ScoreThreshold,
		"confidencethreshold": d.ConfidenceThreshold,
		"iouthreshold":        d.IoUThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("detection.%s: %v outside [0,1]", name, v)
		}
	}
	if cfg.Segmentation.InputSize <= 0 {
		return fmt.Errorf("segmentation.inputsize: must be positive")
	}
	for c := 0; c < 3; c++ {
		if cfg.Segmentation.Std[c] == 0 {
			return fmt.Errorf("segmentation.std: channel %d is zero", c)
		}
	}
	if cfg.PoolSize <= 0 {
		return fmt.Errorf("poolsize: must be positive")
	}
	return nil
}
