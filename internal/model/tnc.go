package model

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/viniandrs/ssl-tools-bkp/internal/nn"
	"github.com/viniandrs/ssl-tools-bkp/internal/ts"
)

// TNCConfig holds the TNC hyperparameters.
type TNCConfig struct {
	InChannels   int
	HiddenSize   int
	EncodingSize int
	WindowSize   int
	MCSampleSize int     // neighbour/distant pairs per anchor
	W            float64 // positive-unlabeled correction weight
}

// Triple is one TNC training example: an anchor window, windows drawn from
// its temporal neighbourhood, and windows drawn from far outside it.
type Triple struct {
	Anchor     ts.Series
	Neighbours []ts.Series
	Distants   []ts.Series
}

// TripleSampler draws a training triple from a recording. The dataset
// package provides one built on the stationarity test; injecting it here
// keeps the model free of any dataset dependency.
type TripleSampler func(ts.Series) (Triple, error)

// TNC implements Temporal Neighbourhood Coding: a discriminator is trained
// to tell whether two encodings come from the same temporal neighbourhood.
// Distant windows are treated as unlabeled rather than strictly negative,
// weighted by W.
type TNC struct {
	cfg     TNCConfig
	sampler TripleSampler

	encoder       *nn.Encoder
	discriminator *nn.MLP
}

// NewTNC constructs the encoder and pair discriminator.
func NewTNC(cfg TNCConfig, rng *rand.Rand) *TNC {
	if cfg.HiddenSize <= 0 {
		cfg.HiddenSize = cfg.EncodingSize
	}
	return &TNC{
		cfg:           cfg,
		encoder:       nn.NewEncoder(cfg.InChannels, cfg.HiddenSize, cfg.EncodingSize, rng),
		discriminator: nn.NewMLP("tnc.disc", 2*cfg.EncodingSize, 4*cfg.EncodingSize, 1, rng),
	}
}

// SetSampler installs the triple sampler Step and Loss use.
func (m *TNC) SetSampler(s TripleSampler) {
	m.sampler = s
}

// Step draws a triple from the recording and trains on it.
func (m *TNC) Step(sample ts.Series) (float64, error) {
	if m.sampler == nil {
		return 0, errors.New("model: tnc has no triple sampler")
	}
	triple, err := m.sampler(sample)
	if err != nil {
		return 0, err
	}
	return m.StepTriple(triple)
}

// Loss draws a triple from the recording and evaluates it.
func (m *TNC) Loss(sample ts.Series) (float64, error) {
	if m.sampler == nil {
		return 0, errors.New("model: tnc has no triple sampler")
	}
	triple, err := m.sampler(sample)
	if err != nil {
		return 0, err
	}
	return m.LossTriple(triple)
}

// StepTriple runs forward and backward over one triple, accumulating
// gradients, and returns the mean loss across its pairs.
func (m *TNC) StepTriple(triple Triple) (float64, error) {
	return m.runTriple(triple, true)
}

// LossTriple evaluates one triple without accumulating gradients.
func (m *TNC) LossTriple(triple Triple) (float64, error) {
	return m.runTriple(triple, false)
}

func (m *TNC) runTriple(triple Triple, train bool) (float64, error) {
	if len(triple.Neighbours) == 0 || len(triple.Distants) == 0 {
		return 0, errors.New("model: triple needs neighbour and distant windows")
	}
	if len(triple.Neighbours) != len(triple.Distants) {
		return 0, errors.Errorf("model: %d neighbours vs %d distants", len(triple.Neighbours), len(triple.Distants))
	}

	anchorEnc, anchorCache, err := m.encoder.Encode(triple.Anchor)
	if err != nil {
		return 0, err
	}
	dAnchor := make([]float64, len(anchorEnc))

	total := 0.0
	pairs := len(triple.Neighbours)
	scale := 1.0 / float64(pairs)

	for i := 0; i < pairs; i++ {
		nLoss, err := m.runPair(anchorEnc, dAnchor, triple.Neighbours[i], pairTarget{weight: scale, positive: 1}, train)
		if err != nil {
			return 0, err
		}
		// Distant windows count as unlabeled: weight w as positive and
		// 1-w as negative.
		dLossPos, err := m.runPair(anchorEnc, dAnchor, triple.Distants[i], pairTarget{weight: scale * m.cfg.W, positive: 1}, train)
		if err != nil {
			return 0, err
		}
		dLossNeg, err := m.runPair(anchorEnc, dAnchor, triple.Distants[i], pairTarget{weight: scale * (1 - m.cfg.W), positive: 0}, train)
		if err != nil {
			return 0, err
		}
		total += scale * (nLoss + m.cfg.W*dLossPos + (1-m.cfg.W)*dLossNeg)
	}

	if train {
		m.encoder.Backward(anchorCache, dAnchor)
	}
	return total, nil
}

type pairTarget struct {
	weight   float64
	positive float64
}

// runPair scores one (anchor, other) pair, backpropagating through the
// discriminator and the other window's encoder pass when training. The
// anchor's encoding gradient is accumulated into dAnchor for a single
// deferred encoder backward.
func (m *TNC) runPair(anchorEnc, dAnchor []float64, other ts.Series, target pairTarget, train bool) (float64, error) {
	otherEnc, otherCache, err := m.encoder.Encode(other)
	if err != nil {
		return 0, err
	}

	joint := make([]float64, 0, 2*len(anchorEnc))
	joint = append(joint, anchorEnc...)
	joint = append(joint, otherEnc...)

	out, discCache := m.discriminator.Forward(joint)
	loss, grad := nn.BCEWithLogits(out[0], target.positive)
	if !train {
		return loss, nil
	}

	dJoint := m.discriminator.Backward(discCache, []float64{grad * target.weight})
	for j := range anchorEnc {
		dAnchor[j] += dJoint[j]
	}
	m.encoder.Backward(otherCache, dJoint[len(anchorEnc):])
	return loss, nil
}

// Discriminate returns the probability that the two windows share a
// neighbourhood.
func (m *TNC) Discriminate(a, b ts.Series) (float64, error) {
	encA, _, err := m.encoder.Encode(a)
	if err != nil {
		return 0, err
	}
	encB, _, err := m.encoder.Encode(b)
	if err != nil {
		return 0, err
	}
	joint := append(append([]float64(nil), encA...), encB...)
	out, _ := m.discriminator.Forward(joint)
	return 1.0 / (1.0 + math.Exp(-out[0])), nil
}

// Params returns every learnable tensor.
func (m *TNC) Params() []*nn.Param {
	return append(m.encoder.Params(), m.discriminator.Params()...)
}

// Backbone exposes the encoder for fine-tuning.
func (m *TNC) Backbone() *nn.Encoder {
	return m.encoder
}
