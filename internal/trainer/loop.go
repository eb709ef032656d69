package trainer

import (
	"context"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/viniandrs/ssl-tools-bkp/internal/checkpoint"
	"github.com/viniandrs/ssl-tools-bkp/internal/config"
	"github.com/viniandrs/ssl-tools-bkp/internal/dataset"
	"github.com/viniandrs/ssl-tools-bkp/internal/metrics"
	"github.com/viniandrs/ssl-tools-bkp/internal/model"
	"github.com/viniandrs/ssl-tools-bkp/internal/nn"
	"github.com/viniandrs/ssl-tools-bkp/internal/runlog"
)

// Options bundles what every loop needs besides the model.
type Options struct {
	Cfg       *config.Config
	ModelName string
	Log       *zap.SugaredLogger
	Runs      *runlog.Store // optional
}

func (o *Options) logger() *zap.SugaredLogger {
	if o.Log == nil {
		return zap.NewNop().Sugar()
	}
	return o.Log
}

// PretrainCheckpoint is the file a pretraining run writes.
func PretrainCheckpoint(dir, modelName string) string {
	return filepath.Join(dir, modelName+"_pretrain.json.gz")
}

// FinetuneCheckpoint is the file a finetune run writes.
func FinetuneCheckpoint(dir, modelName string) string {
	return filepath.Join(dir, modelName+"_finetune.json.gz")
}

// Pretrain runs self-supervised training over the train split, validating
// after every epoch and checkpointing the best validation loss.
func Pretrain(ctx context.Context, m model.Pretrainer, opts Options) error {
	cfg := opts.Cfg
	log := opts.logger()

	trainFiles, valSamples, err := pretrainData(cfg)
	if err != nil {
		return err
	}
	log.Infow("pretraining",
		"model", opts.ModelName,
		"train_recordings", len(trainFiles),
		"val_recordings", len(valSamples),
		"epochs", cfg.Epochs,
	)

	runID := startRun(opts, "pretrain")

	labels, err := dataset.LoadLabels(dataset.SplitDir(cfg.Data, "train"))
	if err != nil {
		return err
	}
	samples, samplerErrs, err := dataset.StartSampler(ctx, dataset.SamplerOptions{
		Files:      trainFiles,
		Labels:     labels,
		InChannels: cfg.InChannels,
		Seed:       cfg.Seed,
		NumWorkers: cfg.NumWorkers,
		Epochs:     cfg.Epochs,
	})
	if err != nil {
		return err
	}
	stream := &sampleStream{samples: samples, errs: samplerErrs}

	opt := nn.NewAdam(cfg.LearningRate, cfg.WeightDecay)
	ckptPath := PretrainCheckpoint(cfg.CheckpointDir, opts.ModelName)
	bestVal := 0.0
	haveBest := false

	var window metrics.Window
	exhausted := false
	for epoch := 1; epoch <= cfg.Epochs && !exhausted; epoch++ {
		var meter metrics.Meter
		skipped := 0
		pending := 0

		for i := 0; i < len(trainFiles); i++ {
			startData := time.Now()
			sample, ok, err := stream.next(ctx)
			if err != nil {
				return err
			}
			if !ok {
				exhausted = true
				break
			}
			dataTime := time.Since(startData)

			startCompute := time.Now()
			loss, err := m.Step(sample.Series)
			if err != nil {
				if skippable(err) {
					skipped++
					continue
				}
				return errors.Wrapf(err, "step on %s", sample.Name)
			}
			pending++
			if pending >= cfg.BatchSize {
				opt.Step(m.Params())
				pending = 0
			}
			computeTime := time.Since(startCompute)

			meter.Add(loss)
			window.Record(1, dataTime, computeTime, loss)
			if meter.Count()%cfg.LogEvery == 0 {
				snap := window.Snapshot()
				log.Infow("step",
					"epoch", epoch,
					"step", meter.Count(),
					"loss", snap.LastLoss,
					"samples_per_sec", snap.SamplesPerSec,
					"data_ms", snap.AvgDataMS,
					"compute_ms", snap.AvgComputeMS,
				)
			}
		}
		if pending > 0 {
			opt.Step(m.Params())
		}

		valLoss, valCount := validatePretrain(m, valSamples)
		log.Infow("epoch",
			"epoch", epoch,
			"train_loss", meter.MeanLoss(),
			"val_loss", valLoss,
			"val_samples", valCount,
			"skipped", skipped,
		)
		recordEpoch(opts, runID, epoch, "train", meter.MeanLoss(), -1)
		recordEpoch(opts, runID, epoch, "val", valLoss, -1)

		if valCount == 0 || !haveBest || valLoss < bestVal {
			bestVal = valLoss
			haveBest = true
			if err := checkpoint.Save(ckptPath, manifest(cfg, opts.ModelName, "pretrain"), m.Params()); err != nil {
				return err
			}
			log.Infow("checkpoint", "path", ckptPath, "val_loss", valLoss)
		}
	}

	finishRun(opts, runID)
	return nil
}

// Finetune trains a classifier head (and optionally the backbone) on the
// labeled train split.
func Finetune(ctx context.Context, clf *model.Classifier, opts Options) error {
	cfg := opts.Cfg
	log := opts.logger()

	trainSamples, err := labeledSplit(cfg, "train")
	if err != nil {
		return err
	}
	valSamples, err := valSplitOrHoldout(cfg, &trainSamples)
	if err != nil {
		return err
	}
	log.Infow("finetuning",
		"model", opts.ModelName,
		"train_recordings", len(trainSamples),
		"val_recordings", len(valSamples),
		"update_backbone", cfg.UpdateBackbone,
	)

	runID := startRun(opts, "finetune")
	opt := nn.NewAdam(cfg.LearningRate, cfg.WeightDecay)
	ckptPath := FinetuneCheckpoint(cfg.CheckpointDir, opts.ModelName)
	order := newShuffler(cfg.Seed, len(trainSamples))

	bestAcc := -1.0
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var meter metrics.Meter
		pending := 0
		for _, idx := range order.next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			s := trainSamples[idx]
			loss, correct, err := clf.Step(s.Series, s.Label)
			if err != nil {
				return errors.Wrapf(err, "step on %s", s.Name)
			}
			meter.AddPrediction(loss, correct)
			pending++
			if pending >= cfg.BatchSize {
				opt.Step(clf.Params())
				pending = 0
			}
		}
		if pending > 0 {
			opt.Step(clf.Params())
		}

		valMeter, err := evalSamples(ctx, clf, valSamples)
		if err != nil {
			return err
		}
		log.Infow("epoch",
			"epoch", epoch,
			"train_loss", meter.MeanLoss(),
			"train_acc", meter.Accuracy(),
			"val_loss", valMeter.MeanLoss(),
			"val_acc", valMeter.Accuracy(),
		)
		recordEpoch(opts, runID, epoch, "train", meter.MeanLoss(), meter.Accuracy())
		recordEpoch(opts, runID, epoch, "val", valMeter.MeanLoss(), valMeter.Accuracy())

		if valMeter.Accuracy() >= bestAcc {
			bestAcc = valMeter.Accuracy()
			params := append(clf.Backbone().Params(), clf.Head().Params()...)
			if err := checkpoint.Save(ckptPath, manifest(cfg, opts.ModelName, "finetune"), params); err != nil {
				return err
			}
			log.Infow("checkpoint", "path", ckptPath, "val_acc", bestAcc)
		}
	}

	finishRun(opts, runID)
	return nil
}

// Evaluate scores the classifier on the test split.
func Evaluate(ctx context.Context, clf *model.Classifier, opts Options) (loss, acc float64, err error) {
	cfg := opts.Cfg
	log := opts.logger()

	testSamples, err := labeledSplit(cfg, "test")
	if err != nil {
		return 0, 0, err
	}

	runID := startRun(opts, "test")
	defer finishRun(opts, runID)
	meter, err := evalSamples(ctx, clf, testSamples)
	if err != nil {
		return 0, 0, err
	}
	log.Infow("test",
		"model", opts.ModelName,
		"recordings", len(testSamples),
		"loss", meter.MeanLoss(),
		"acc", meter.Accuracy(),
	)
	recordEpoch(opts, runID, 1, "test", meter.MeanLoss(), meter.Accuracy())
	return meter.MeanLoss(), meter.Accuracy(), nil
}

func evalSamples(ctx context.Context, clf *model.Classifier, samples []dataset.Sample) (*metrics.Meter, error) {
	var meter metrics.Meter
	for _, s := range samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		loss, correct, err := clf.Eval(s.Series, s.Label)
		if err != nil {
			return nil, errors.Wrapf(err, "eval on %s", s.Name)
		}
		meter.AddPrediction(loss, correct)
	}
	return &meter, nil
}

func validatePretrain(m model.Pretrainer, samples []dataset.Sample) (float64, int) {
	var meter metrics.Meter
	for _, s := range samples {
		loss, err := m.Loss(s.Series)
		if err != nil {
			continue
		}
		meter.Add(loss)
	}
	return meter.MeanLoss(), meter.Count()
}

// sampleStream reads from the sampler pipeline. The pipeline closes both
// channels when production ends, possibly while samples are still buffered,
// so a closed error channel must not end the stream: it is nilled out and
// buffered samples keep flowing until the sample channel itself closes.
type sampleStream struct {
	samples <-chan dataset.Sample
	errs    <-chan error
}

// next returns the next sample. ok is false once the stream has drained
// cleanly; a non-nil error reports a load failure or context cancellation.
func (s *sampleStream) next(ctx context.Context) (dataset.Sample, bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return dataset.Sample{}, false, err
		}
		if s.samples == nil && s.errs == nil {
			return dataset.Sample{}, false, nil
		}
		select {
		case <-ctx.Done():
			return dataset.Sample{}, false, ctx.Err()
		case err, ok := <-s.errs:
			if !ok {
				s.errs = nil
				continue
			}
			if err != nil {
				return dataset.Sample{}, false, err
			}
		case sample, ok := <-s.samples:
			if !ok {
				s.samples = nil
				continue
			}
			return sample, true, nil
		}
	}
}

func skippable(err error) bool {
	return errors.Is(err, model.ErrSampleTooShort) || errors.Is(err, dataset.ErrRecordingTooShort)
}

func manifest(cfg *config.Config, modelName, mode string) checkpoint.Manifest {
	return checkpoint.Manifest{
		Model:        modelName,
		Mode:         mode,
		InChannels:   cfg.InChannels,
		EncodingSize: cfg.EncodingSize,
		WindowSize:   cfg.WindowSize,
		NumClasses:   cfg.NumClasses,
	}
}

func startRun(opts Options, mode string) string {
	if opts.Runs == nil {
		return ""
	}
	id, err := opts.Runs.StartRun(opts.ModelName, mode, opts.Cfg)
	if err != nil {
		opts.logger().Warnw("runlog unavailable", "error", err)
		return ""
	}
	return id
}

func recordEpoch(opts Options, runID string, epoch int, split string, loss, acc float64) {
	if opts.Runs == nil || runID == "" {
		return
	}
	if err := opts.Runs.RecordEpoch(runID, epoch, split, loss, acc); err != nil {
		opts.logger().Warnw("runlog write failed", "error", err)
	}
}

func finishRun(opts Options, runID string) {
	if opts.Runs == nil || runID == "" {
		return
	}
	if err := opts.Runs.FinishRun(runID); err != nil {
		opts.logger().Warnw("runlog write failed", "error", err)
	}
}
