// Package config holds the runtime knobs of an experiment run. Values come
// from defaults, an optional YAML file, and CLI flags, in that order.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Mode selects which experiment stage a config is validated for.
type Mode string

const (
	ModePretrain Mode = "pretrain"
	ModeFinetune Mode = "finetune"
	ModeTest     Mode = "test"
)

// Config captures the runtime knobs for a training or evaluation run.
type Config struct {
	Data          string `yaml:"data"`
	Epochs        int    `yaml:"epochs"`
	BatchSize     int    `yaml:"batch_size"`
	NumWorkers    int    `yaml:"num_workers"`
	Seed          int64  `yaml:"seed"`
	LogEvery      int    `yaml:"log_every"`
	CheckpointDir string `yaml:"checkpoint_dir"`
	RunlogPath    string `yaml:"runlog_path"`

	LearningRate float64 `yaml:"learning_rate"`
	WeightDecay  float64 `yaml:"weight_decay"`

	InChannels   int  `yaml:"in_channel"`
	EncodingSize int  `yaml:"encoding_size"`
	HiddenSize   int  `yaml:"hidden_size"`
	WindowSize   int  `yaml:"window_size"`
	NumClasses   int  `yaml:"num_classes"`
	PadLength    bool `yaml:"pad_length"`

	UpdateBackbone bool   `yaml:"update_backbone"`
	LoadBackbone   string `yaml:"load_backbone"`
	Load           string `yaml:"load"`

	// CPC
	NSize int `yaml:"n_size"`

	// TNC
	MCSampleSize      int     `yaml:"mc_sample_size"`
	W                 float64 `yaml:"w"`
	SignificanceLevel float64 `yaml:"significance_level"`
	Repeat            int     `yaml:"repeat"`
}

// Default returns the experiment defaults.
func Default() Config {
	return Config{
		Epochs:        10,
		BatchSize:     1,
		NumWorkers:    1,
		Seed:          42,
		LogEvery:      50,
		CheckpointDir: "checkpoints",
		RunlogPath:    "runs.db",

		LearningRate: 1e-3,
		WeightDecay:  0,

		InChannels:   6,
		EncodingSize: 10,
		HiddenSize:   32,
		WindowSize:   60,
		NumClasses:   6,
		PadLength:    true,

		NSize: 5,

		MCSampleSize:      20,
		W:                 0.05,
		SignificanceLevel: 0.01,
		Repeat:            5,
	}
}

// Load reads a YAML config, overlaying the defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	return &cfg, nil
}

// Validate verifies the config is runnable for the given mode.
func (c *Config) Validate(mode Mode) error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Data == "" {
		return errors.New("data path must be set")
	}
	if c.Epochs <= 0 {
		return errors.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.NumWorkers <= 0 {
		return errors.Errorf("num_workers must be > 0 (got %d)", c.NumWorkers)
	}
	if c.LearningRate <= 0 {
		return errors.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.InChannels <= 0 {
		return errors.Errorf("in_channel must be > 0 (got %d)", c.InChannels)
	}
	if c.EncodingSize <= 0 {
		return errors.Errorf("encoding_size must be > 0 (got %d)", c.EncodingSize)
	}
	if c.WindowSize <= 0 {
		return errors.Errorf("window_size must be > 0 (got %d)", c.WindowSize)
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 50
	}

	switch mode {
	case ModePretrain:
		if c.NSize <= 0 {
			return errors.Errorf("n_size must be > 0 (got %d)", c.NSize)
		}
		if c.MCSampleSize <= 0 {
			return errors.Errorf("mc_sample_size must be > 0 (got %d)", c.MCSampleSize)
		}
		if c.W < 0 || c.W > 1 {
			return errors.Errorf("w must be in [0, 1] (got %g)", c.W)
		}
		if c.SignificanceLevel <= 0 || c.SignificanceLevel >= 1 {
			return errors.Errorf("significance_level must be in (0, 1) (got %g)", c.SignificanceLevel)
		}
		if c.Repeat <= 0 {
			return errors.Errorf("repeat must be > 0 (got %d)", c.Repeat)
		}
	case ModeFinetune:
		if c.NumClasses < 2 {
			return errors.Errorf("num_classes must be >= 2 (got %d)", c.NumClasses)
		}
	case ModeTest:
		if c.NumClasses < 2 {
			return errors.Errorf("num_classes must be >= 2 (got %d)", c.NumClasses)
		}
		if c.Load == "" {
			return errors.New("load must point to a finetuned checkpoint")
		}
	default:
		return errors.Errorf("unknown mode %q", mode)
	}
	return nil
}
