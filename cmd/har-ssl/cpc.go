package main

import (
	"context"
	"math/rand"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/viniandrs/ssl-tools-bkp/internal/checkpoint"
	"github.com/viniandrs/ssl-tools-bkp/internal/config"
	"github.com/viniandrs/ssl-tools-bkp/internal/model"
	"github.com/viniandrs/ssl-tools-bkp/internal/nn"
	"github.com/viniandrs/ssl-tools-bkp/internal/trainer"
)

func newCPCCmd(ctx context.Context, log *zap.SugaredLogger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cpc",
		Short: "Contrastive Predictive Coding experiments",
	}

	pretrain := &cobra.Command{
		Use:   "pretrain",
		Short: "Pretrain the CPC encoder on unlabeled recordings",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := buildConfig(c, config.ModePretrain)
			if err != nil {
				return err
			}
			runs := openRunlog(cfg, log)
			if runs != nil {
				defer runs.Close()
			}
			m := model.NewCPC(cpcConfig(cfg), rand.New(rand.NewSource(cfg.Seed)))
			return trainer.Pretrain(ctx, m, trainerOptions(cfg, "cpc", log, runs))
		},
	}
	addCommonFlags(pretrain)
	addCPCFlags(pretrain)

	finetune := &cobra.Command{
		Use:   "finetune",
		Short: "Finetune a classifier on top of a pretrained CPC encoder",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := buildConfig(c, config.ModeFinetune)
			if err != nil {
				return err
			}
			runs := openRunlog(cfg, log)
			if runs != nil {
				defer runs.Close()
			}
			clf, err := buildClassifier(cfg, cfg.LoadBackbone, "")
			if err != nil {
				return err
			}
			return trainer.Finetune(ctx, clf, trainerOptions(cfg, "cpc", log, runs))
		},
	}
	addCommonFlags(finetune)
	addFinetuneFlags(finetune)

	test := &cobra.Command{
		Use:   "test",
		Short: "Evaluate a finetuned CPC classifier on the test split",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := buildConfig(c, config.ModeTest)
			if err != nil {
				return err
			}
			runs := openRunlog(cfg, log)
			if runs != nil {
				defer runs.Close()
			}
			clf, err := buildClassifier(cfg, "", cfg.Load)
			if err != nil {
				return err
			}
			_, _, err = trainer.Evaluate(ctx, clf, trainerOptions(cfg, "cpc", log, runs))
			return err
		},
	}
	addCommonFlags(test)
	addTestFlags(test)

	cmd.AddCommand(pretrain, finetune, test)
	return cmd
}

func cpcConfig(cfg *config.Config) model.CPCConfig {
	return model.CPCConfig{
		InChannels:   cfg.InChannels,
		HiddenSize:   cfg.HiddenSize,
		EncodingSize: cfg.EncodingSize,
		WindowSize:   cfg.WindowSize,
		NSize:        cfg.NSize,
	}
}

// buildClassifier assembles a backbone+head classifier, optionally restoring
// the backbone from a pretraining checkpoint or the whole model from a
// finetuning checkpoint.
func buildClassifier(cfg *config.Config, backbonePath, fullPath string) (*model.Classifier, error) {
	rng := rand.New(rand.NewSource(cfg.Seed))
	backbone := nn.NewEncoder(cfg.InChannels, cfg.HiddenSize, cfg.EncodingSize, rng)
	clf := model.NewClassifier(backbone, cfg.WindowSize, cfg.NumClasses, cfg.UpdateBackbone, rng)

	if backbonePath != "" {
		file, err := checkpoint.Load(backbonePath)
		if err != nil {
			return nil, err
		}
		if err := file.ApplyPrefix(backbone.Params(), "encoder."); err != nil {
			return nil, err
		}
	}
	if fullPath != "" {
		file, err := checkpoint.Load(fullPath)
		if err != nil {
			return nil, err
		}
		params := append(backbone.Params(), clf.Head().Params()...)
		if err := file.Apply(params); err != nil {
			return nil, err
		}
	}
	return clf, nil
}
