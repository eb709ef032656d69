package nn

import (
	"math"
	"math/rand"
)

// GRUCell is a gated recurrent unit:
//
//	r = sigmoid(Wr*x + Ur*h + br)
//	z = sigmoid(Wz*x + Uz*h + bz)
//	n = tanh(Wn*x + r .* (Un*h + bn))
//	h' = (1-z) .* n + z .* h
type GRUCell struct {
	In, Hidden int
	Wr, Wz, Wn *Param
	Ur, Uz, Un *Param
	Br, Bz, Bn *Param
}

// NewGRUCell constructs a cell with fan-in scaled random weights.
func NewGRUCell(name string, in, hidden int, rng *rand.Rand) *GRUCell {
	return &GRUCell{
		In:     in,
		Hidden: hidden,
		Wr:     newMatrix(name+".wr", hidden, in, rng),
		Wz:     newMatrix(name+".wz", hidden, in, rng),
		Wn:     newMatrix(name+".wn", hidden, in, rng),
		Ur:     newMatrix(name+".ur", hidden, hidden, rng),
		Uz:     newMatrix(name+".uz", hidden, hidden, rng),
		Un:     newMatrix(name+".un", hidden, hidden, rng),
		Br:     newBias(name+".br", hidden),
		Bz:     newBias(name+".bz", hidden),
		Bn:     newBias(name+".bn", hidden),
	}
}

// gruCache holds the intermediates one step needs for its backward pass.
type gruCache struct {
	x, hPrev   []float64
	r, z, n, u []float64 // u = Un*hPrev + bn
}

// Step advances the hidden state by one input.
func (c *GRUCell) Step(x, hPrev []float64) ([]float64, *gruCache) {
	h := c.Hidden

	ar := matVec(c.Wr.Data, x, h, c.In)
	az := matVec(c.Wz.Data, x, h, c.In)
	an := matVec(c.Wn.Data, x, h, c.In)
	ur := matVec(c.Ur.Data, hPrev, h, h)
	uz := matVec(c.Uz.Data, hPrev, h, h)
	u := matVec(c.Un.Data, hPrev, h, h)

	r := make([]float64, h)
	z := make([]float64, h)
	n := make([]float64, h)
	hNew := make([]float64, h)
	for i := 0; i < h; i++ {
		r[i] = sigmoid(ar[i] + ur[i] + c.Br.Data[i])
		z[i] = sigmoid(az[i] + uz[i] + c.Bz.Data[i])
		u[i] += c.Bn.Data[i]
		n[i] = math.Tanh(an[i] + r[i]*u[i])
		hNew[i] = (1-z[i])*n[i] + z[i]*hPrev[i]
	}

	return hNew, &gruCache{x: x, hPrev: hPrev, r: r, z: z, n: n, u: u}
}

// StepBackward accumulates parameter gradients for one step given the
// gradient of the new hidden state, and returns the gradients with respect
// to the step input and the previous hidden state.
func (c *GRUCell) StepBackward(cache *gruCache, dh []float64) (dx, dhPrev []float64) {
	h := c.Hidden
	dan := make([]float64, h) // grad of tanh pre-activation
	daz := make([]float64, h)
	dar := make([]float64, h)
	du := make([]float64, h)
	dhPrev = make([]float64, h)

	for i := 0; i < h; i++ {
		dn := dh[i] * (1 - cache.z[i])
		dz := dh[i] * (cache.hPrev[i] - cache.n[i])
		dhPrev[i] = dh[i] * cache.z[i]

		dan[i] = dn * (1 - cache.n[i]*cache.n[i])
		du[i] = dan[i] * cache.r[i]
		dr := dan[i] * cache.u[i]

		daz[i] = dz * cache.z[i] * (1 - cache.z[i])
		dar[i] = dr * cache.r[i] * (1 - cache.r[i])
	}

	accumOuter(c.Wn.Grad, dan, cache.x, h, c.In)
	accumOuter(c.Wz.Grad, daz, cache.x, h, c.In)
	accumOuter(c.Wr.Grad, dar, cache.x, h, c.In)
	accumOuter(c.Un.Grad, du, cache.hPrev, h, h)
	accumOuter(c.Uz.Grad, daz, cache.hPrev, h, h)
	accumOuter(c.Ur.Grad, dar, cache.hPrev, h, h)
	for i := 0; i < h; i++ {
		c.Bn.Grad[i] += du[i]
		c.Bz.Grad[i] += daz[i]
		c.Br.Grad[i] += dar[i]
	}

	dx = matVecT(c.Wn.Data, dan, h, c.In)
	addInto(dx, matVecT(c.Wz.Data, daz, h, c.In))
	addInto(dx, matVecT(c.Wr.Data, dar, h, c.In))

	addInto(dhPrev, matVecT(c.Un.Data, du, h, h))
	addInto(dhPrev, matVecT(c.Uz.Data, daz, h, h))
	addInto(dhPrev, matVecT(c.Ur.Data, dar, h, h))

	return dx, dhPrev
}

// Params returns the learnable tensors.
func (c *GRUCell) Params() []*Param {
	return []*Param{c.Wr, c.Wz, c.Wn, c.Ur, c.Uz, c.Un, c.Br, c.Bz, c.Bn}
}

// GRU runs a cell over a sequence of input vectors.
type GRU struct {
	Cell *GRUCell
}

// NewGRU constructs a single-layer GRU.
func NewGRU(name string, in, hidden int, rng *rand.Rand) *GRU {
	return &GRU{Cell: NewGRUCell(name, in, hidden, rng)}
}

// SeqCache holds the per-step intermediates of one sequence pass.
type SeqCache struct {
	steps  []*gruCache
	states [][]float64
}

// Forward runs the sequence from a zero initial state and returns the hidden
// state after every step.
func (g *GRU) Forward(inputs [][]float64) ([][]float64, *SeqCache) {
	h := make([]float64, g.Cell.Hidden)
	cache := &SeqCache{
		steps:  make([]*gruCache, 0, len(inputs)),
		states: make([][]float64, 0, len(inputs)),
	}
	for _, x := range inputs {
		var sc *gruCache
		h, sc = g.Cell.Step(x, h)
		cache.steps = append(cache.steps, sc)
		cache.states = append(cache.states, h)
	}
	return cache.states, cache
}

// Backward runs truncated backprop through the whole sequence. dStates holds
// one gradient per step; nil entries contribute nothing. Returns the
// gradients with respect to the inputs.
func (g *GRU) Backward(cache *SeqCache, dStates [][]float64) [][]float64 {
	n := len(cache.steps)
	dInputs := make([][]float64, n)
	carry := make([]float64, g.Cell.Hidden)
	for t := n - 1; t >= 0; t-- {
		dh := append([]float64(nil), carry...)
		if t < len(dStates) && dStates[t] != nil {
			addInto(dh, dStates[t])
		}
		var dx []float64
		dx, carry = g.Cell.StepBackward(cache.steps[t], dh)
		dInputs[t] = dx
	}
	return dInputs
}

// Params returns the learnable tensors.
func (g *GRU) Params() []*Param {
	return g.Cell.Params()
}

func addInto(dst, src []float64) {
	for i, v := range src {
		dst[i] += v
	}
}
