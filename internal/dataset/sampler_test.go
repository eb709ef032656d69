package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplerFixture(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	files := make([]string, n)
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("rec_%03d.csv", i))
		writeFile(t, path, fmt.Sprintf("%d,%d\n%d,%d\n", i, i, i, i))
		files[i] = path
	}
	return files
}

func collect(t *testing.T, samples <-chan Sample, errs <-chan error, n int) []string {
	t.Helper()
	names := make([]string, 0, n)
	timeout := time.After(5 * time.Second)
	for len(names) < n {
		select {
		case err := <-errs:
			require.NoError(t, err)
		case s, ok := <-samples:
			require.True(t, ok, "sampler closed early after %d samples", len(names))
			names = append(names, s.Name)
		case <-timeout:
			t.Fatalf("timed out after %d samples", len(names))
		}
	}
	return names
}

func TestSamplerDeterministicOrder(t *testing.T) {
	files := samplerFixture(t, 8)
	ctx := context.Background()

	run := func(workers int) []string {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		samples, errs, err := StartSampler(ctx, SamplerOptions{
			Files:      files,
			Seed:       7,
			NumWorkers: workers,
			Epochs:     1,
		})
		require.NoError(t, err)
		return collect(t, samples, errs, len(files))
	}

	// Submission order is seeded; worker count must not change it.
	assert.Equal(t, run(1), run(4))
}

func TestSamplerEpochCountAndClose(t *testing.T) {
	files := samplerFixture(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	samples, errs, err := StartSampler(ctx, SamplerOptions{
		Files:      files,
		Seed:       1,
		NumWorkers: 2,
		Epochs:     2,
	})
	require.NoError(t, err)

	names := collect(t, samples, errs, 6)
	assert.Len(t, names, 6)

	select {
	case _, ok := <-samples:
		assert.False(t, ok, "channel should close after final epoch")
	case <-time.After(5 * time.Second):
		t.Fatal("sampler did not close")
	}
}

func TestSamplerLabelJoin(t *testing.T) {
	files := samplerFixture(t, 2)
	labels := map[string]int{filepath.Base(files[0]): 3}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	samples, errs, err := StartSampler(ctx, SamplerOptions{
		Files:      files,
		Labels:     labels,
		InChannels: 2,
		Seed:       1,
		NumWorkers: 1,
		Epochs:     1,
	})
	require.NoError(t, err)

	got := map[string]Sample{}
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			require.NoError(t, err)
		case s := <-samples:
			got[s.Name] = s
		case <-time.After(5 * time.Second):
			t.Fatal("timeout")
		}
	}
	assert.Equal(t, 3, got[filepath.Base(files[0])].Label)
	assert.Equal(t, -1, got[filepath.Base(files[1])].Label)
}

func TestSamplerPropagatesLoadErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "rec_bad.csv")
	writeFile(t, bad, "not,numbers\nat,all\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	samples, errs, err := StartSampler(ctx, SamplerOptions{
		Files:      []string{bad},
		Seed:       1,
		NumWorkers: 1,
		Epochs:     1,
	})
	require.NoError(t, err)

	select {
	case err := <-errs:
		require.Error(t, err)
	case s := <-samples:
		t.Fatalf("expected error, got sample %q", s.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
	}
}

func TestSamplerRejectsEmptyFileList(t *testing.T) {
	_, _, err := StartSampler(context.Background(), SamplerOptions{})
	require.Error(t, err)
}
