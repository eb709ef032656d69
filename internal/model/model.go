package model

import (
	"github.com/viniandrs/ssl-tools-bkp/internal/nn"
	"github.com/viniandrs/ssl-tools-bkp/internal/ts"
)

// Pretrainer is a self-supervised model the pretraining loop can drive: Step
// accumulates gradients for a single recording and returns its loss, Loss
// evaluates without touching gradients.
type Pretrainer interface {
	Step(sample ts.Series) (float64, error)
	Loss(sample ts.Series) (float64, error)
	Params() []*nn.Param
	Backbone() *nn.Encoder
}
