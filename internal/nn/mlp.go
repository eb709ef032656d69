package nn

import "math/rand"

// MLP is a two-layer perceptron with a ReLU between the layers, the shape
// both the prediction head and the pair discriminator use.
type MLP struct {
	L1, L2 *Linear
}

// NewMLP constructs in -> hidden -> out with a ReLU nonlinearity.
func NewMLP(name string, in, hidden, out int, rng *rand.Rand) *MLP {
	return &MLP{
		L1: NewLinear(name+".l1", in, hidden, rng),
		L2: NewLinear(name+".l2", hidden, out, rng),
	}
}

// MLPCache stores the intermediates of one forward pass.
type MLPCache struct {
	x, pre, act []float64
}

// Forward computes the output and caches intermediates for Backward.
func (m *MLP) Forward(x []float64) ([]float64, *MLPCache) {
	pre := m.L1.Forward(x)
	act := make([]float64, len(pre))
	for i, v := range pre {
		if v > 0 {
			act[i] = v
		}
	}
	out := m.L2.Forward(act)
	return out, &MLPCache{x: x, pre: pre, act: act}
}

// Backward accumulates gradients and returns the gradient w.r.t. the input.
func (m *MLP) Backward(cache *MLPCache, dout []float64) []float64 {
	dact := m.L2.Backward(cache.act, dout)
	for i, v := range cache.pre {
		if v <= 0 {
			dact[i] = 0
		}
	}
	return m.L1.Backward(cache.x, dact)
}

// Params returns the learnable tensors.
func (m *MLP) Params() []*Param {
	return append(m.L1.Params(), m.L2.Params()...)
}
