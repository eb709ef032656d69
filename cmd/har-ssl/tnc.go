package main

import (
	"context"
	"math/rand"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/viniandrs/ssl-tools-bkp/internal/config"
	"github.com/viniandrs/ssl-tools-bkp/internal/dataset"
	"github.com/viniandrs/ssl-tools-bkp/internal/model"
	"github.com/viniandrs/ssl-tools-bkp/internal/trainer"
)

func newTNCCmd(ctx context.Context, log *zap.SugaredLogger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tnc",
		Short: "Temporal Neighbourhood Coding experiments",
	}

	pretrain := &cobra.Command{
		Use:   "pretrain",
		Short: "Pretrain the TNC encoder and discriminator on unlabeled recordings",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := buildConfig(c, config.ModePretrain)
			if err != nil {
				return err
			}
			runs := openRunlog(cfg, log)
			if runs != nil {
				defer runs.Close()
			}
			rng := rand.New(rand.NewSource(cfg.Seed))
			m := model.NewTNC(tncConfig(cfg), rng)
			m.SetSampler(dataset.NewTripleSampler(dataset.TripleOptions{
				WindowSize:        cfg.WindowSize,
				MCSampleSize:      cfg.MCSampleSize,
				SignificanceLevel: cfg.SignificanceLevel,
				Repeat:            cfg.Repeat,
			}, rng))
			return trainer.Pretrain(ctx, m, trainerOptions(cfg, "tnc", log, runs))
		},
	}
	addCommonFlags(pretrain)
	addTNCFlags(pretrain)

	finetune := &cobra.Command{
		Use:   "finetune",
		Short: "Finetune a classifier on top of a pretrained TNC encoder",
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
			return trainer.Finetune(ctx, clf, trainerOptions(cfg, "tnc", log, runs))
		},
	}
	addCommonFlags(finetune)
	addFinetuneFlags(finetune)

	test := &cobra.Command{
		Use:   "test",
		Short: "Evaluate a finetuned TNC classifier on the test split",
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
			_, _, err = trainer.Evaluate(ctx, clf, trainerOptions(cfg, "tnc", log, runs))
			return err
		},
	}
	addCommonFlags(test)
	addTestFlags(test)

	cmd.AddCommand(pretrain, finetune, test)
	return cmd
}

func tncConfig(cfg *config.Config) model.TNCConfig {
	return model.TNCConfig{
		InChannels:   cfg.InChannels,
		HiddenSize:   cfg.HiddenSize,
		EncodingSize: cfg.EncodingSize,
		WindowSize:   cfg.WindowSize,
		MCSampleSize: cfg.MCSampleSize,
		W:            cfg.W,
	}
}
