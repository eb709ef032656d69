package nn

import (
	"math/rand"

	"github.com/pkg/errors"
	"github.com/viniandrs/ssl-tools-bkp/internal/ts"
)

// Encoder maps a (channels x window) slice of a recording to a fixed-size
// encoding: a GRU consumes the window one time step at a time and a linear
// layer projects the final hidden state.
type Encoder struct {
	InChannels   int
	Hidden       int
	EncodingSize int

	RNN  *GRU
	Proj *Linear
}

// NewEncoder constructs the GRU+Linear encoder.
func NewEncoder(inChannels, hidden, encodingSize int, rng *rand.Rand) *Encoder {
	return &Encoder{
		InChannels:   inChannels,
		Hidden:       hidden,
		EncodingSize: encodingSize,
		RNN:          NewGRU("encoder.rnn", inChannels, hidden, rng),
		Proj:         NewLinear("encoder.proj", hidden, encodingSize, rng),
	}
}

// EncoderCache stores the intermediates of one Encode call.
type EncoderCache struct {
	seq   *SeqCache
	final []float64
}

// Encode runs the window through the recurrent stack.
func (e *Encoder) Encode(window ts.Series) ([]float64, *EncoderCache, error) {
	if window.Channels() != e.InChannels {
		return nil, nil, errors.Errorf("nn: window has %d channels, encoder wants %d", window.Channels(), e.InChannels)
	}
	if window.Len() == 0 {
		return nil, nil, errors.New("nn: empty window")
	}
	inputs := make([][]float64, window.Len())
	for t := 0; t < window.Len(); t++ {
		inputs[t] = window.Column(t)
	}
	states, seq := e.RNN.Forward(inputs)
	final := states[len(states)-1]
	enc := e.Proj.Forward(final)
	return enc, &EncoderCache{seq: seq, final: final}, nil
}

// Backward accumulates gradients for the pass that produced cache.
func (e *Encoder) Backward(cache *EncoderCache, dEnc []float64) {
	dFinal := e.Proj.Backward(cache.final, dEnc)
	dStates := make([][]float64, len(cache.seq.steps))
	dStates[len(dStates)-1] = dFinal
	e.RNN.Backward(cache.seq, dStates)
}

// Params returns the learnable tensors.
func (e *Encoder) Params() []*Param {
	return append(e.RNN.Params(), e.Proj.Params()...)
}
