package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/viniandrs/ssl-tools-bkp/internal/config"
	"github.com/viniandrs/ssl-tools-bkp/internal/runlog"
	"github.com/viniandrs/ssl-tools-bkp/internal/trainer"
)

// Flag values land in flagCfg; buildConfig later merges defaults, the
// optional YAML file, and only the flags the user actually set.
var (
	cfgPath string
	flagCfg = config.Default()
)

func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&cfgPath, "config", "", "YAML experiment config")
	f.StringVar(&flagCfg.Data, "data", flagCfg.Data, "data root with train/val/test splits")
	f.IntVar(&flagCfg.Epochs, "epochs", flagCfg.Epochs, "training epochs")
	f.IntVar(&flagCfg.BatchSize, "batch-size", flagCfg.BatchSize, "samples per optimizer step")
	f.IntVar(&flagCfg.NumWorkers, "num-workers", flagCfg.NumWorkers, "data loader workers")
	f.Int64Var(&flagCfg.Seed, "seed", flagCfg.Seed, "PRNG seed")
	f.IntVar(&flagCfg.LogEvery, "log-every", flagCfg.LogEvery, "log every N steps")
	f.StringVar(&flagCfg.CheckpointDir, "checkpoint-dir", flagCfg.CheckpointDir, "checkpoint directory")
	f.StringVar(&flagCfg.RunlogPath, "runlog", flagCfg.RunlogPath, "sqlite run registry path (empty disables)")
	f.Float64Var(&flagCfg.LearningRate, "learning-rate", flagCfg.LearningRate, "learning rate")
	f.Float64Var(&flagCfg.WeightDecay, "weight-decay", flagCfg.WeightDecay, "weight decay")
	f.IntVar(&flagCfg.InChannels, "in-channel", flagCfg.InChannels, "input channels")
	f.IntVar(&flagCfg.EncodingSize, "encoding-size", flagCfg.EncodingSize, "encoding size")
	f.IntVar(&flagCfg.HiddenSize, "hidden-size", flagCfg.HiddenSize, "encoder hidden size")
	f.IntVar(&flagCfg.WindowSize, "window-size", flagCfg.WindowSize, "input window size")
	f.BoolVar(&flagCfg.PadLength, "pad-length", flagCfg.PadLength, "pad recordings to the longest in the split")
}

func addFinetuneFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&flagCfg.NumClasses, "num-classes", flagCfg.NumClasses, "number of activity classes")
	f.StringVar(&flagCfg.LoadBackbone, "load-backbone", flagCfg.LoadBackbone, "pretrained backbone checkpoint")
	f.BoolVar(&flagCfg.UpdateBackbone, "update-backbone", flagCfg.UpdateBackbone, "train the backbone during finetuning")
}

func addTestFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&flagCfg.NumClasses, "num-classes", flagCfg.NumClasses, "number of activity classes")
	f.StringVar(&flagCfg.Load, "load", flagCfg.Load, "finetuned checkpoint to evaluate")
}

func addCPCFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&flagCfg.NSize, "n-size", flagCfg.NSize, "negatives per contrastive comparison")
}

func addTNCFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&flagCfg.MCSampleSize, "mc-sample-size", flagCfg.MCSampleSize, "neighbour/distant pairs per anchor")
	f.Float64Var(&flagCfg.W, "w", flagCfg.W, "positive-unlabeled correction weight")
	f.Float64Var(&flagCfg.SignificanceLevel, "significance-level", flagCfg.SignificanceLevel, "stationarity test significance level")
	f.IntVar(&flagCfg.Repeat, "repeat", flagCfg.Repeat, "neighbourhood growth attempts")
}

// buildConfig merges defaults, the YAML file, and explicitly set flags.
func buildConfig(cmd *cobra.Command, mode config.Mode) (*config.Config, error) {
	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	applyOverrides(cmd, &cfg)
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("data", func() { cfg.Data = flagCfg.Data })
	set("epochs", func() { cfg.Epochs = flagCfg.Epochs })
	set("batch-size", func() { cfg.BatchSize = flagCfg.BatchSize })
	set("num-workers", func() { cfg.NumWorkers = flagCfg.NumWorkers })
	set("seed", func() { cfg.Seed = flagCfg.Seed })
	set("log-every", func() { cfg.LogEvery = flagCfg.LogEvery })
	set("checkpoint-dir", func() { cfg.CheckpointDir = flagCfg.CheckpointDir })
	set("runlog", func() { cfg.RunlogPath = flagCfg.RunlogPath })
	set("learning-rate", func() { cfg.LearningRate = flagCfg.LearningRate })
	set("weight-decay", func() { cfg.WeightDecay = flagCfg.WeightDecay })
	set("in-channel", func() { cfg.InChannels = flagCfg.InChannels })
	set("encoding-size", func() { cfg.EncodingSize = flagCfg.EncodingSize })
	set("hidden-size", func() { cfg.HiddenSize = flagCfg.HiddenSize })
	set("window-size", func() { cfg.WindowSize = flagCfg.WindowSize })
	set("pad-length", func() { cfg.PadLength = flagCfg.PadLength })
	set("num-classes", func() { cfg.NumClasses = flagCfg.NumClasses })
	set("load-backbone", func() { cfg.LoadBackbone = flagCfg.LoadBackbone })
	set("update-backbone", func() { cfg.UpdateBackbone = flagCfg.UpdateBackbone })
	set("load", func() { cfg.Load = flagCfg.Load })
	set("n-size", func() { cfg.NSize = flagCfg.NSize })
	set("mc-sample-size", func() { cfg.MCSampleSize = flagCfg.MCSampleSize })
	set("w", func() { cfg.W = flagCfg.W })
	set("significance-level", func() { cfg.SignificanceLevel = flagCfg.SignificanceLevel })
	set("repeat", func() { cfg.Repeat = flagCfg.Repeat })
}

// openRunlog opens the run registry; a failure is downgraded to a warning
// so training still proceeds.
func openRunlog(cfg *config.Config, log *zap.SugaredLogger) *runlog.Store {
	if cfg.RunlogPath == "" {
		return nil
	}
	store, err := runlog.Open(cfg.RunlogPath)
	if err != nil {
		log.Warnw("runlog unavailable", "path", cfg.RunlogPath, "error", err)
		return nil
	}
	return store
}

func trainerOptions(cfg *config.Config, modelName string, log *zap.SugaredLogger, runs *runlog.Store) trainer.Options {
	return trainer.Options{Cfg: cfg, ModelName: modelName, Log: log, Runs: runs}
}
