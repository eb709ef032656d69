package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viniandrs/ssl-tools-bkp/internal/ts"
)

const gradTol = 1e-4

func TestLinearGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	l := NewLinear("lin", 3, 2, rng)
	x := []float64{0.5, -0.3, 0.8}

	// Scalar objective: sum of outputs.
	forward := func() float64 {
		out := l.Forward(x)
		sum := 0.0
		for _, v := range out {
			sum += v
		}
		return sum
	}

	out := l.Forward(x)
	dout := make([]float64, len(out))
	for i := range dout {
		dout[i] = 1
	}
	dx := l.Backward(x, dout)

	for _, p := range l.Params() {
		for i := range p.Data {
			numeric := numericGrad(forward, &p.Data[i])
			assert.InDelta(t, numeric, p.Grad[i], gradTol, "param %s[%d]", p.Name, i)
		}
	}
	for i := range x {
		numeric := numericGrad(forward, &x[i])
		assert.InDelta(t, numeric, dx[i], gradTol, "input[%d]", i)
	}
}

func TestGRUCellGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	cell := NewGRUCell("gru", 2, 3, rng)
	x := []float64{0.4, -0.7}
	hPrev := []float64{0.1, -0.2, 0.3}

	forward := func() float64 {
		h, _ := cell.Step(x, hPrev)
		sum := 0.0
		for _, v := range h {
			sum += v
		}
		return sum
	}

	h, cache := cell.Step(x, hPrev)
	dh := make([]float64, len(h))
	for i := range dh {
		dh[i] = 1
	}
	dx, dhPrev := cell.StepBackward(cache, dh)

	for _, p := range cell.Params() {
		for i := range p.Data {
			numeric := numericGrad(forward, &p.Data[i])
			assert.InDelta(t, numeric, p.Grad[i], gradTol, "param %s[%d]", p.Name, i)
		}
	}
	for i := range x {
		assert.InDelta(t, numericGrad(forward, &x[i]), dx[i], gradTol)
	}
	for i := range hPrev {
		assert.InDelta(t, numericGrad(forward, &hPrev[i]), dhPrev[i], gradTol)
	}
}

func TestGRUSequenceDeterminism(t *testing.T) {
	build := func() *GRU {
		return NewGRU("gru", 2, 4, rand.New(rand.NewSource(9)))
	}
	inputs := [][]float64{{1, 0}, {0, 1}, {0.5, 0.5}}

	a, _ := build().Forward(inputs)
	b, _ := build().Forward(inputs)
	require.Len(t, a, 3)
	for tIdx := range a {
		assert.Equal(t, a[tIdx], b[tIdx])
	}
}

func TestMLPGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m := NewMLP("head", 3, 4, 2, rng)
	x := []float64{0.2, -0.5, 0.9}

	forward := func() float64 {
		out, _ := m.Forward(x)
		return out[0] + 2*out[1]
	}

	_, cache := m.Forward(x)
	dx := m.Backward(cache, []float64{1, 2})

	for _, p := range m.Params() {
		for i := range p.Data {
			assert.InDelta(t, numericGrad(forward, &p.Data[i]), p.Grad[i], gradTol, "param %s[%d]", p.Name, i)
		}
	}
	for i := range x {
		assert.InDelta(t, numericGrad(forward, &x[i]), dx[i], gradTol)
	}
}

func TestSoftmaxCrossEntropy(t *testing.T) {
	loss, grad := SoftmaxCrossEntropy([]float64{0, 0, 0}, 1)
	assert.InDelta(t, math.Log(3), loss, 1e-9)
	assert.InDelta(t, 1.0/3-1, grad[1], 1e-9)
	assert.InDelta(t, 1.0/3, grad[0], 1e-9)

	// Confident correct prediction has near-zero loss.
	loss, _ = SoftmaxCrossEntropy([]float64{10, -10}, 0)
	assert.Less(t, loss, 1e-4)
}

func TestBCEWithLogits(t *testing.T) {
	loss, grad := BCEWithLogits(0, 1)
	assert.InDelta(t, math.Log(2), loss, 1e-9)
	assert.InDelta(t, -0.5, grad, 1e-9)

	// Symmetric under label flip.
	l1, _ := BCEWithLogits(2.5, 1)
	l0, _ := BCEWithLogits(-2.5, 0)
	assert.InDelta(t, l1, l0, 1e-9)
}

func TestAdamConvergesOnQuadratic(t *testing.T) {
	p := newParam("x", 2)
	p.Data[0] = 5
	p.Data[1] = -3
	opt := NewAdam(0.1, 0)

	for i := 0; i < 500; i++ {
		for j, v := range p.Data {
			p.Grad[j] = 2 * v
		}
		opt.Step([]*Param{p})
	}
	assert.InDelta(t, 0, p.Data[0], 1e-2)
	assert.InDelta(t, 0, p.Data[1], 1e-2)
	assert.Zero(t, p.Grad[0], "Step must clear gradients")
}

func TestEncoderShapeAndChannelCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	enc := NewEncoder(3, 8, 5, rng)

	window := ts.New(3, 6)
	out, cache, err := enc.Encode(window)
	require.NoError(t, err)
	require.NotNil(t, cache)
	assert.Len(t, out, 5)

	_, _, err = enc.Encode(ts.New(2, 6))
	require.Error(t, err)
}

// numericGrad estimates d(forward)/d(*v) by central differences.
func numericGrad(forward func() float64, v *float64) float64 {
	const eps = 1e-5
	orig := *v
	*v = orig + eps
	plus := forward()
	*v = orig - eps
	minus := forward()
	*v = orig
	return (plus - minus) / (2 * eps)
}
