package nn

import (
	"math"
	"math/rand"
)

// Param is one learnable tensor stored flat (matrices are row-major). Grad
// accumulates across forward/backward passes until the optimizer consumes it.
type Param struct {
	Name string
	Data []float64
	Grad []float64
}

func newParam(name string, size int) *Param {
	return &Param{
		Name: name,
		Data: make([]float64, size),
		Grad: make([]float64, size),
	}
}

// newMatrix allocates a rows x cols parameter initialized uniformly in
// [-1/sqrt(cols), 1/sqrt(cols)], the fan-in scaling recurrent layers want.
func newMatrix(name string, rows, cols int, rng *rand.Rand) *Param {
	p := newParam(name, rows*cols)
	scale := 1.0 / math.Sqrt(float64(cols))
	for i := range p.Data {
		p.Data[i] = (rng.Float64()*2 - 1) * scale
	}
	return p
}

// newBias allocates a zero-initialized vector parameter.
func newBias(name string, size int) *Param {
	return newParam(name, size)
}

// ZeroGrads clears the gradient buffers of every parameter.
func ZeroGrads(params []*Param) {
	for _, p := range params {
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
}

// matVec computes out = W*x for a rows x cols row-major matrix.
func matVec(w []float64, x []float64, rows, cols int) []float64 {
	out := make([]float64, rows)
	for r := 0; r < rows; r++ {
		sum := 0.0
		row := w[r*cols : (r+1)*cols]
		for c, v := range x {
			sum += row[c] * v
		}
		out[r] = sum
	}
	return out
}

// matVecT computes out = W^T * y, the input gradient of a matVec.
func matVecT(w []float64, y []float64, rows, cols int) []float64 {
	out := make([]float64, cols)
	for r := 0; r < rows; r++ {
		row := w[r*cols : (r+1)*cols]
		for c := 0; c < cols; c++ {
			out[c] += row[c] * y[r]
		}
	}
	return out
}

// accumOuter adds y*x^T into the gradient of a rows x cols matrix.
func accumOuter(grad []float64, y, x []float64, rows, cols int) {
	for r := 0; r < rows; r++ {
		row := grad[r*cols : (r+1)*cols]
		for c := 0; c < cols; c++ {
			row[c] += y[r] * x[c]
		}
	}
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i, v := range a {
		sum += v * b[i]
	}
	return sum
}
