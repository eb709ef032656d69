package ts

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDickeyFullerWhiteNoise(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	y := make([]float64, 400)
	for i := range y {
		y[i] = rng.NormFloat64()
	}
	tstat, err := DickeyFuller(y)
	require.NoError(t, err)
	assert.True(t, RejectsUnitRoot(tstat, 0.01), "white noise should reject a unit root, tstat=%f", tstat)
}

func TestDickeyFullerRandomWalk(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	y := make([]float64, 400)
	for i := 1; i < len(y); i++ {
		y[i] = y[i-1] + rng.NormFloat64()
	}
	tstat, err := DickeyFuller(y)
	require.NoError(t, err)
	assert.False(t, RejectsUnitRoot(tstat, 0.05), "random walk should not reject a unit root, tstat=%f", tstat)
}

func TestDickeyFullerDegenerate(t *testing.T) {
	_, err := DickeyFuller([]float64{1, 2, 3})
	require.Error(t, err)

	flat := make([]float64, 50)
	_, err = DickeyFuller(flat)
	require.Error(t, err)
}

func TestStationaryMajorityVote(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	s := New(3, 300)
	// Two stationary channels, one random walk.
	for i := 0; i < 300; i++ {
		s.Data[0][i] = rng.NormFloat64()
		s.Data[1][i] = rng.NormFloat64()
		if i > 0 {
			s.Data[2][i] = s.Data[2][i-1] + rng.NormFloat64()
		}
	}
	assert.True(t, Stationary(s, 0.05))

	walk := New(1, 300)
	for i := 1; i < 300; i++ {
		walk.Data[0][i] = walk.Data[0][i-1] + rng.NormFloat64()
	}
	assert.False(t, Stationary(walk, 0.05))
}
