package dataset

import (
	"math/rand"

	"github.com/pkg/errors"
	"github.com/viniandrs/ssl-tools-bkp/internal/model"
	"github.com/viniandrs/ssl-tools-bkp/internal/ts"
)

// TripleOptions configures temporal-neighbourhood sampling for TNC.
type TripleOptions struct {
	WindowSize        int
	MCSampleSize      int
	SignificanceLevel float64
	Repeat            int // neighbourhood growth attempts
}

// ErrRecordingTooShort is returned when a recording cannot host an anchor
// with both a neighbourhood and a distant region.
var ErrRecordingTooShort = errors.New("dataset: recording too short for triple sampling")

// NewTripleSampler returns a sampler that draws TNC training triples. The
// neighbourhood half-width starts at one window and doubles, up to Repeat
// times, until the segment around the anchor is stationary under the
// Dickey-Fuller test at the configured significance level. Neighbour
// windows are centred inside [t-delta, t+delta]; distant windows are
// centred outside [t-3*delta, t+3*delta].
func NewTripleSampler(opts TripleOptions, rng *rand.Rand) model.TripleSampler {
	return func(sample ts.Series) (model.Triple, error) {
		return sampleTriple(sample, opts, rng)
	}
}

func sampleTriple(sample ts.Series, opts TripleOptions, rng *rand.Rand) (model.Triple, error) {
	w := opts.WindowSize
	T := sample.Len()
	if T < 8*w {
		return model.Triple{}, errors.Wrapf(ErrRecordingTooShort, "len %d, window %d", T, w)
	}

	// Anchor away from the edges so the initial neighbourhood fits.
	t := 2*w + rng.Intn(T-4*w)

	delta := neighbourhoodWidth(sample, t, opts)

	// Shrink delta until a distant region exists on at least one side.
	for delta > w && t-3*delta < w && t+3*delta > T-w {
		delta /= 2
	}
	if t-3*delta < w && t+3*delta > T-w {
		return model.Triple{}, errors.Wrapf(ErrRecordingTooShort, "no distant region (t=%d delta=%d len=%d)", t, delta, T)
	}

	triple := model.Triple{Anchor: sample.WindowAt(t, w)}
	for i := 0; i < opts.MCSampleSize; i++ {
		nc := t - delta + rng.Intn(2*delta+1)
		triple.Neighbours = append(triple.Neighbours, sample.WindowAt(nc, w))

		dc, err := distantCenter(t, delta, w, T, rng)
		if err != nil {
			return model.Triple{}, err
		}
		triple.Distants = append(triple.Distants, sample.WindowAt(dc, w))
	}
	return triple, nil
}

// neighbourhoodWidth grows the half-width until the surrounding segment is
// stationary or the growth budget is spent.
func neighbourhoodWidth(sample ts.Series, t int, opts TripleOptions) int {
	w := opts.WindowSize
	T := sample.Len()
	delta := w
	for attempt := 0; attempt < opts.Repeat; attempt++ {
		lo := t - delta
		hi := t + delta
		if lo < 0 {
			lo = 0
		}
		if hi > T {
			hi = T
		}
		if ts.Stationary(sample.Slice(lo, hi), opts.SignificanceLevel) {
			break
		}
		if delta*2 > T/2 {
			break
		}
		delta *= 2
	}
	return delta
}

// distantCenter draws a window centre outside [t-3*delta, t+3*delta].
func distantCenter(t, delta, w, T int, rng *rand.Rand) (int, error) {
	loEnd := t - 3*delta   // exclusive upper bound of the left region
	hiStart := t + 3*delta // exclusive lower bound of the right region

	left := loEnd - w // centres in [w, loEnd)
	right := T - w - hiStart
	if left <= 0 && right <= 0 {
		return 0, errors.Wrap(ErrRecordingTooShort, "distant region empty")
	}

	// Pick a side proportional to its room.
	if left > 0 && (right <= 0 || rng.Intn(left+right) < left) {
		return w + rng.Intn(left), nil
	}
	return hiStart + 1 + rng.Intn(right), nil
}
