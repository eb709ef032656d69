package nn

import "math/rand"

// Linear is a fully connected layer y = W*x + b.
type Linear struct {
	In, Out int
	W, B    *Param
}

// NewLinear constructs a linear layer with fan-in scaled random weights.
func NewLinear(name string, in, out int, rng *rand.Rand) *Linear {
	return &Linear{
		In:  in,
		Out: out,
		W:   newMatrix(name+".w", out, in, rng),
		B:   newBias(name+".b", out),
	}
}

// Forward applies the layer to one input vector.
func (l *Linear) Forward(x []float64) []float64 {
	out := matVec(l.W.Data, x, l.Out, l.In)
	for i := range out {
		out[i] += l.B.Data[i]
	}
	return out
}

// Backward accumulates parameter gradients for the pass that produced dout
// from input x, and returns the gradient with respect to x.
func (l *Linear) Backward(x, dout []float64) []float64 {
	accumOuter(l.W.Grad, dout, x, l.Out, l.In)
	for i, d := range dout {
		l.B.Grad[i] += d
	}
	return matVecT(l.W.Data, dout, l.Out, l.In)
}

// Params returns the learnable tensors.
func (l *Linear) Params() []*Param {
	return []*Param{l.W, l.B}
}
