package model

import (
	"math/rand"

	"github.com/pkg/errors"
	"github.com/viniandrs/ssl-tools-bkp/internal/nn"
	"github.com/viniandrs/ssl-tools-bkp/internal/ts"
)

// ErrSampleTooShort is returned when a recording cannot accommodate the
// centering draw the CPC forward pass starts with.
var ErrSampleTooShort = errors.New("model: sample too short for window size")

// CPCConfig holds the CPC hyperparameters.
type CPCConfig struct {
	InChannels   int
	HiddenSize   int
	EncodingSize int
	WindowSize   int
	NSize        int // negatives per contrastive comparison
}

// CPC implements Contrastive Predictive Coding over multichannel time
// series. The encoder maps raw windows to encodings, the auto-regressor
// summarizes past encodings into a context vector, and the density estimator
// scores how well each encoding matches that context. Training pushes the
// score of the true next-but-one window above those of randomly drawn
// distractors.
type CPC struct {
	cfg CPCConfig
	rng *rand.Rand

	encoder          *nn.Encoder
	autoRegressor    *nn.GRU
	densityEstimator *nn.Linear
}

// NewCPC constructs the three modules with a shared seeded source.
func NewCPC(cfg CPCConfig, rng *rand.Rand) *CPC {
	if cfg.HiddenSize <= 0 {
		cfg.HiddenSize = cfg.EncodingSize
	}
	return &CPC{
		cfg:              cfg,
		rng:              rng,
		encoder:          nn.NewEncoder(cfg.InChannels, cfg.HiddenSize, cfg.EncodingSize, rng),
		autoRegressor:    nn.NewGRU("cpc.ar", cfg.EncodingSize, cfg.EncodingSize, rng),
		densityEstimator: nn.NewLinear("cpc.density", cfg.EncodingSize, cfg.EncodingSize, rng),
	}
}

// cpcPass records everything a forward pass needs for its backward pass.
type cpcPass struct {
	windows   []ts.Series
	encodings [][]float64
	encCaches []*nn.EncoderCache

	t        int // split index between past and future
	selected []int
	scores   []float64

	context  []float64
	arCache  *nn.SeqCache
	densCtx  []float64 // density estimator output for the context
}

// Forward runs the CPC contrastive pass on one recording and returns the
// score vector: NSize distractor scores followed by the positive score at
// the final index.
func (m *CPC) Forward(sample ts.Series) ([]float64, error) {
	pass, err := m.forward(sample)
	if err != nil {
		return nil, err
	}
	return pass.scores, nil
}

func (m *CPC) forward(sample ts.Series) (*cpcPass, error) {
	w := m.cfg.WindowSize
	timeLen := sample.Len()
	if timeLen <= 10*w {
		return nil, errors.Wrapf(ErrSampleTooShort, "len %d, window %d", timeLen, w)
	}

	// Centre the sample on a random time step far enough from both ends,
	// then keep at most 20 windows of context on each side.
	center := 5*w + m.rng.Intn(timeLen-10*w)
	lo := center - 20*w
	if lo < 0 {
		lo = 0
	}
	hi := center + 20*w
	if hi > timeLen {
		hi = timeLen
	}
	cropped := sample.Slice(lo, hi)

	windows := ts.Split(cropped, w)
	n := len(windows)
	if n < 5 {
		return nil, errors.Wrapf(ErrSampleTooShort, "only %d windows", n)
	}

	encodings := make([][]float64, n)
	encCaches := make([]*nn.EncoderCache, n)
	for i, win := range windows {
		enc, cache, err := m.encoder.Encode(win)
		if err != nil {
			return nil, err
		}
		encodings[i] = enc
		encCaches[i] = cache
	}

	// Split at a random t so that past and future both keep at least two
	// encodings. The positive is the encoding at t+1.
	t := 2 + m.rng.Intn(n-4)
	past := encodings[:t]

	states, arCache := m.autoRegressor.Forward(past)
	context := states[len(states)-1]
	densCtx := m.densityEstimator.Forward(context)

	// Distractors come from anywhere outside [t-2, t+2].
	pool := make([]int, 0, n)
	for i := 0; i < t-2; i++ {
		pool = append(pool, i)
	}
	for i := t + 3; i < n; i++ {
		pool = append(pool, i)
	}
	if len(pool) == 0 {
		return nil, errors.Wrapf(ErrSampleTooShort, "no distractor windows (n=%d, t=%d)", n, t)
	}

	selected := make([]int, 0, m.cfg.NSize+1)
	for i := 0; i < m.cfg.NSize; i++ {
		selected = append(selected, pool[m.rng.Intn(len(pool))])
	}
	selected = append(selected, t+1)

	scores := make([]float64, len(selected))
	for i, idx := range selected {
		scores[i] = dot(encodings[idx], densCtx)
	}

	return &cpcPass{
		windows:   windows,
		encodings: encodings,
		encCaches: encCaches,
		t:         t,
		selected:  selected,
		scores:    scores,
		context:   context,
		arCache:   arCache,
		densCtx:   densCtx,
	}, nil
}

// Loss evaluates the contrastive loss of one recording without accumulating
// gradients.
func (m *CPC) Loss(sample ts.Series) (float64, error) {
	pass, err := m.forward(sample)
	if err != nil {
		return 0, err
	}
	loss, _ := nn.SoftmaxCrossEntropy(pass.scores, len(pass.scores)-1)
	return loss, nil
}

// Step runs forward and backward for one recording, accumulating gradients
// into the model parameters, and returns the loss.
func (m *CPC) Step(sample ts.Series) (float64, error) {
	pass, err := m.forward(sample)
	if err != nil {
		return 0, err
	}

	loss, dScores := nn.SoftmaxCrossEntropy(pass.scores, len(pass.scores)-1)

	// score_i = <enc_i, densCtx>.
	dEnc := make([][]float64, len(pass.encodings))
	dDens := make([]float64, m.cfg.EncodingSize)
	for i, idx := range pass.selected {
		g := dScores[i]
		if dEnc[idx] == nil {
			dEnc[idx] = make([]float64, m.cfg.EncodingSize)
		}
		for j := range dDens {
			dEnc[idx][j] += g * pass.densCtx[j]
			dDens[j] += g * pass.encodings[idx][j]
		}
	}

	// Density estimator and auto-regressor path back to the past encodings.
	dContext := m.densityEstimator.Backward(pass.context, dDens)
	dStates := make([][]float64, pass.t)
	dStates[pass.t-1] = dContext
	dPast := m.autoRegressor.Backward(pass.arCache, dStates)
	for i, d := range dPast {
		if dEnc[i] == nil {
			dEnc[i] = d
			continue
		}
		for j, v := range d {
			dEnc[i][j] += v
		}
	}

	for i, d := range dEnc {
		if d == nil {
			continue
		}
		m.encoder.Backward(pass.encCaches[i], d)
	}

	return loss, nil
}

// Params returns every learnable tensor of the three modules.
func (m *CPC) Params() []*nn.Param {
	params := m.encoder.Params()
	params = append(params, m.autoRegressor.Params()...)
	params = append(params, m.densityEstimator.Params()...)
	return params
}

// Backbone exposes the encoder for fine-tuning.
func (m *CPC) Backbone() *nn.Encoder {
	return m.encoder
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i, v := range a {
		sum += v * b[i]
	}
	return sum
}
