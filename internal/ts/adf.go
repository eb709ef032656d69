package ts

import (
	"math"

	"github.com/pkg/errors"
)

// Dickey-Fuller critical values for the constant-only regression at large
// sample sizes (MacKinnon). A t-statistic below the critical value rejects
// the unit-root hypothesis, i.e. the segment is stationary.
var dfCritical = []struct {
	significance float64
	value        float64
}{
	{0.01, -3.43},
	{0.05, -2.86},
	{0.10, -2.57},
}

const minDFSamples = 8

// DickeyFuller computes the Dickey-Fuller t-statistic for y using the
// regression dy_t = alpha + beta*y_{t-1} + e_t. The statistic is
// beta_hat / se(beta_hat); strongly negative values reject a unit root.
func DickeyFuller(y []float64) (float64, error) {
	n := len(y) - 1
	if n < minDFSamples {
		return 0, errors.Errorf("ts: need at least %d observations, got %d", minDFSamples+1, len(y))
	}

	x := y[:n]
	dy := make([]float64, n)
	for t := 0; t < n; t++ {
		dy[t] = y[t+1] - y[t]
	}

	mx := mean(x)
	mdy := mean(dy)
	var sxx, sxy float64
	for t := 0; t < n; t++ {
		dx := x[t] - mx
		sxx += dx * dx
		sxy += dx * (dy[t] - mdy)
	}
	if sxx == 0 {
		return 0, errors.New("ts: constant series")
	}

	beta := sxy / sxx
	alpha := mdy - beta*mx

	var rss float64
	for t := 0; t < n; t++ {
		resid := dy[t] - alpha - beta*x[t]
		rss += resid * resid
	}
	sigma2 := rss / float64(n-2)
	se := math.Sqrt(sigma2 / sxx)
	if se == 0 {
		return 0, errors.New("ts: zero residual variance")
	}
	return beta / se, nil
}

// RejectsUnitRoot reports whether the given t-statistic rejects a unit root
// at the requested significance level. Levels between the tabulated points
// use the next stricter critical value.
func RejectsUnitRoot(tstat, significance float64) bool {
	crit := dfCritical[0].value
	for _, row := range dfCritical {
		if significance >= row.significance {
			crit = row.value
		}
	}
	return tstat < crit
}

// Stationary applies the Dickey-Fuller test per channel and reports whether
// a majority of channels reject the unit root at the given significance
// level. Channels the test cannot be computed for count as non-stationary.
func Stationary(s Series, significance float64) bool {
	if s.Channels() == 0 {
		return false
	}
	rejected := 0
	for _, ch := range s.Data {
		tstat, err := DickeyFuller(ch)
		if err != nil {
			continue
		}
		if RejectsUnitRoot(tstat, significance) {
			rejected++
		}
	}
	return rejected*2 > s.Channels()
}
