package dataset

import (
	"context"
	"math/rand"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// SamplerOptions configures the streaming recording sampler.
type SamplerOptions struct {
	Files      []string
	Labels     map[string]int
	InChannels int
	Seed       int64
	NumWorkers int
	Epochs     int // 0 streams forever
}

// StartSampler launches the loader pipeline: a producer shuffles the file
// list once per epoch, workers parse recordings concurrently, and an
// aggregator re-establishes submission order so a seeded run is
// reproducible regardless of worker scheduling. The sample channel closes
// after Epochs passes (never, when Epochs is 0) or on error.
func StartSampler(parent context.Context, opts SamplerOptions) (<-chan Sample, <-chan error, error) {
	if len(opts.Files) == 0 {
		return nil, nil, errors.New("sampler: no recordings provided")
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}
	if opts.Seed == 0 {
		opts.Seed = 42
	}

	ctx, cancel := context.WithCancel(parent)

	jobs := make(chan loadJob, opts.NumWorkers)
	results := make(chan loadResult, opts.NumWorkers)
	out := make(chan Sample, opts.NumWorkers*2)
	errCh := make(chan error, 1)

	rng := rand.New(rand.NewSource(opts.Seed))
	go produceJobs(ctx, jobs, opts, rng)

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loadWorker(ctx, jobs, results, opts)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	go func() {
		defer cancel()
		defer close(out)
		defer close(errCh)
		runAggregator(ctx, results, out, errCh)
	}()

	return out, errCh, nil
}

type loadJob struct {
	id   int64
	path string
}

type loadResult struct {
	id     int64
	sample Sample
	err    error
}

func produceJobs(ctx context.Context, jobs chan<- loadJob, opts SamplerOptions, rng *rand.Rand) {
	defer close(jobs)
	var jobID int64
	for epoch := 0; opts.Epochs == 0 || epoch < opts.Epochs; epoch++ {
		order := append([]string(nil), opts.Files...)
		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
		for _, path := range order {
			select {
			case <-ctx.Done():
				return
			case jobs <- loadJob{id: jobID, path: path}:
				jobID++
			}
		}
	}
}

func loadWorker(ctx context.Context, jobs <-chan loadJob, results chan<- loadResult, opts SamplerOptions) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			series, err := LoadRecording(job.path, opts.InChannels)
			res := loadResult{id: job.id, err: err}
			if err == nil {
				name := filepath.Base(job.path)
				label, ok := opts.Labels[name]
				if !ok {
					label = -1
				}
				res.sample = Sample{Name: name, Series: series, Label: label}
			}
			select {
			case <-ctx.Done():
				return
			case results <- res:
			}
		}
	}
}

// runAggregator emits samples strictly in job-id order.
func runAggregator(ctx context.Context, results <-chan loadResult, out chan<- Sample, errCh chan<- error) {
	pending := make(map[int64]loadResult)
	var nextID int64
	for {
		res, ok := pending[nextID]
		if !ok {
			select {
			case <-ctx.Done():
				return
			case incoming, open := <-results:
				if !open {
					return
				}
				pending[incoming.id] = incoming
			}
			continue
		}
		delete(pending, nextID)
		nextID++

		if res.err != nil {
			errCh <- res.err
			return
		}
		select {
		case <-ctx.Done():
			return
		case out <- res.sample:
		}
	}
}
