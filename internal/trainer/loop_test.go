package trainer

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viniandrs/ssl-tools-bkp/internal/config"
	"github.com/viniandrs/ssl-tools-bkp/internal/dataset"
	"github.com/viniandrs/ssl-tools-bkp/internal/model"
	"github.com/viniandrs/ssl-tools-bkp/internal/nn"
	"github.com/viniandrs/ssl-tools-bkp/internal/runlog"
)

// writeRecording emits a CSV recording whose rows hover around the class
// level, so classes are linearly separable.
func writeRecording(t *testing.T, path string, rng *rand.Rand, channels, length int, level float64) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	var b strings.Builder
	for ts := 0; ts < length; ts++ {
		for c := 0; c < channels; c++ {
			if c > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%.5f", level+0.3*rng.NormFloat64())
		}
		b.WriteByte('\n')
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

// buildDataRoot writes train/val/test splits with labeled recordings.
func buildDataRoot(t *testing.T, rng *rand.Rand, channels, length, perClass, classes int) string {
	t.Helper()
	root := t.TempDir()
	for _, split := range []string{"train", "val", "test"} {
		dir := filepath.Join(root, split)
		var labels strings.Builder
		for class := 0; class < classes; class++ {
			for i := 0; i < perClass; i++ {
				name := fmt.Sprintf("rec_c%d_%02d.csv", class, i)
				writeRecording(t, filepath.Join(dir, name), rng, channels, length, float64(class))
				fmt.Fprintf(&labels, "%s,%d\n", name, class)
			}
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, "labels.csv"), []byte(labels.String()), 0o644))
	}
	return root
}

func testConfig(root string) *config.Config {
	cfg := config.Default()
	cfg.Data = root
	cfg.Epochs = 2
	cfg.InChannels = 2
	cfg.EncodingSize = 6
	cfg.HiddenSize = 8
	cfg.WindowSize = 4
	cfg.NumClasses = 2
	cfg.NumWorkers = 2
	cfg.LogEvery = 100
	cfg.MCSampleSize = 3
	cfg.Repeat = 2
	return &cfg
}

func TestPretrainCPCWritesCheckpoint(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	root := buildDataRoot(t, rng, 2, 60, 3, 2)
	cfg := testConfig(root)
	cfg.CheckpointDir = filepath.Join(t.TempDir(), "ckpt")

	m := model.NewCPC(model.CPCConfig{
		InChannels:   cfg.InChannels,
		HiddenSize:   cfg.HiddenSize,
		EncodingSize: cfg.EncodingSize,
		WindowSize:   cfg.WindowSize,
		NSize:        cfg.NSize,
	}, rand.New(rand.NewSource(cfg.Seed)))

	err := Pretrain(context.Background(), m, Options{Cfg: cfg, ModelName: "cpc"})
	require.NoError(t, err)

	_, err = os.Stat(PretrainCheckpoint(cfg.CheckpointDir, "cpc"))
	require.NoError(t, err, "pretrain must write a checkpoint")
}

func TestPretrainCanceled(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	root := buildDataRoot(t, rng, 2, 60, 3, 2)
	cfg := testConfig(root)
	cfg.CheckpointDir = t.TempDir()

	m := model.NewCPC(model.CPCConfig{
		InChannels:   cfg.InChannels,
		HiddenSize:   cfg.HiddenSize,
		EncodingSize: cfg.EncodingSize,
		WindowSize:   cfg.WindowSize,
		NSize:        cfg.NSize,
	}, rand.New(rand.NewSource(1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Pretrain(ctx, m, Options{Cfg: cfg, ModelName: "cpc"})
	require.Error(t, err)
}

func TestFinetuneAndEvaluate(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	root := buildDataRoot(t, rng, 2, 32, 4, 2)
	cfg := testConfig(root)
	cfg.Epochs = 15
	cfg.LearningRate = 5e-3
	cfg.UpdateBackbone = true
	cfg.CheckpointDir = filepath.Join(t.TempDir(), "ckpt")

	backbone := nn.NewEncoder(cfg.InChannels, cfg.HiddenSize, cfg.EncodingSize, rand.New(rand.NewSource(4)))
	clf := model.NewClassifier(backbone, cfg.WindowSize, cfg.NumClasses, cfg.UpdateBackbone, rand.New(rand.NewSource(5)))

	opts := Options{Cfg: cfg, ModelName: "cpc"}
	require.NoError(t, Finetune(context.Background(), clf, opts))

	_, err := os.Stat(FinetuneCheckpoint(cfg.CheckpointDir, "cpc"))
	require.NoError(t, err)

	loss, acc, err := Evaluate(context.Background(), clf, opts)
	require.NoError(t, err)
	assert.Greater(t, loss, 0.0)
	assert.GreaterOrEqual(t, acc, 0.75, "two well-separated classes should be learnable")
}

func TestSampleStreamDrainsBufferedTail(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	dir := filepath.Join(t.TempDir(), "train")
	const n = 6
	for i := 0; i < n; i++ {
		writeRecording(t, filepath.Join(dir, fmt.Sprintf("rec_%02d.csv", i)), rng, 2, 20, 0)
	}
	files, err := dataset.DiscoverRecordings(dir)
	require.NoError(t, err)
	require.Len(t, files, n)

	ctx := context.Background()
	samples, errs, err := dataset.StartSampler(ctx, dataset.SamplerOptions{
		Files:      files,
		InChannels: 2,
		Seed:       9,
		NumWorkers: 2,
		Epochs:     1,
	})
	require.NoError(t, err)

	// A consumer slower than the loaders sees the pipeline close its
	// channels while samples are still buffered; every one of them must
	// still be delivered before the stream reports a clean end.
	stream := &sampleStream{samples: samples, errs: errs}
	seen := 0
	for {
		sample, ok, err := stream.next(ctx)
		require.NoError(t, err, "after %d samples", seen)
		if !ok {
			break
		}
		require.NotEmpty(t, sample.Name)
		seen++
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, n, seen)
}

func TestPretrainReadsTrainLabels(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	root := t.TempDir()
	dir := filepath.Join(root, "train")
	for i := 0; i < 3; i++ {
		writeRecording(t, filepath.Join(dir, fmt.Sprintf("rec_%02d.csv", i)), rng, 2, 60, 0)
	}
	bad := "rec_00.csv,0\nrec_01.csv,walking\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "labels.csv"), []byte(bad), 0o644))

	cfg := testConfig(root)
	m := model.NewCPC(model.CPCConfig{
		InChannels:   cfg.InChannels,
		HiddenSize:   cfg.HiddenSize,
		EncodingSize: cfg.EncodingSize,
		WindowSize:   cfg.WindowSize,
		NSize:        cfg.NSize,
	}, rand.New(rand.NewSource(cfg.Seed)))

	err := Pretrain(context.Background(), m, Options{Cfg: cfg, ModelName: "cpc"})
	require.Error(t, err, "a malformed label index must fail the run")
}

func TestEvaluateFinishesRunOnError(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	root := t.TempDir()
	dir := filepath.Join(root, "test")
	// Shorter than one window, so evaluation fails on the first sample.
	writeRecording(t, filepath.Join(dir, "rec_short.csv"), rng, 2, 2, 0)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "labels.csv"), []byte("rec_short.csv,0\n"), 0o644))

	cfg := testConfig(root)
	cfg.RunlogPath = filepath.Join(t.TempDir(), "runs.db")
	runs, err := runlog.Open(cfg.RunlogPath)
	require.NoError(t, err)
	defer runs.Close()

	backbone := nn.NewEncoder(cfg.InChannels, cfg.HiddenSize, cfg.EncodingSize, rand.New(rand.NewSource(11)))
	clf := model.NewClassifier(backbone, cfg.WindowSize, cfg.NumClasses, false, rand.New(rand.NewSource(12)))

	_, _, err = Evaluate(context.Background(), clf, Options{Cfg: cfg, ModelName: "cpc", Runs: runs})
	require.Error(t, err)

	records, err := runs.Runs()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Finished, "a failed evaluation must not leave its run open")
}

func TestPretrainDataHoldout(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	root := t.TempDir()
	dir := filepath.Join(root, "train")
	for i := 0; i < 10; i++ {
		writeRecording(t, filepath.Join(dir, fmt.Sprintf("rec_%02d.csv", i)), rng, 2, 50, 0)
	}

	cfg := testConfig(root)
	files, val, err := pretrainData(cfg)
	require.NoError(t, err)
	assert.Len(t, files, 9)
	assert.Len(t, val, 1)
}

func TestLabeledSplitFiltersUnlabeled(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	root := t.TempDir()
	dir := filepath.Join(root, "train")
	writeRecording(t, filepath.Join(dir, "rec_a.csv"), rng, 2, 20, 0)
	writeRecording(t, filepath.Join(dir, "rec_b.csv"), rng, 2, 20, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "labels.csv"), []byte("rec_a.csv,1\n"), 0o644))

	cfg := testConfig(root)
	samples, err := labeledSplit(cfg, "train")
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "rec_a.csv", samples[0].Name)
}
