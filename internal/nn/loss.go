package nn

import "math"

// SoftmaxCrossEntropy computes the cross-entropy loss of logits against the
// target class and the gradient with respect to the logits.
func SoftmaxCrossEntropy(logits []float64, target int) (float64, []float64) {
	maxLogit := math.Inf(-1)
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	expSum := 0.0
	probs := make([]float64, len(logits))
	for i, v := range logits {
		probs[i] = math.Exp(v - maxLogit)
		expSum += probs[i]
	}
	for i := range probs {
		probs[i] /= expSum
	}

	p := probs[target]
	if p < 1e-12 {
		p = 1e-12
	}
	loss := -math.Log(p)

	grad := probs
	grad[target] -= 1
	return loss, grad
}

// BCEWithLogits computes binary cross-entropy against target (0 or 1) for a
// single logit, returning the loss and its gradient with respect to the
// logit. Uses the stable log-sum-exp form.
func BCEWithLogits(logit, target float64) (float64, float64) {
	// loss = max(x,0) - x*t + log(1 + exp(-|x|))
	loss := math.Max(logit, 0) - logit*target + math.Log1p(math.Exp(-math.Abs(logit)))
	grad := sigmoid(logit) - target
	return loss, grad
}

// Argmax returns the index of the largest value.
func Argmax(xs []float64) int {
	best := 0
	for i, v := range xs {
		if v > xs[best] {
			best = i
		}
	}
	return best
}
