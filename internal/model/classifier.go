package model

import (
	"math/rand"

	"github.com/pkg/errors"
	"github.com/viniandrs/ssl-tools-bkp/internal/nn"
	"github.com/viniandrs/ssl-tools-bkp/internal/ts"
)

const headHidden = 64

// Classifier wraps a pretrained backbone with a prediction head for
// fine-tuning and testing. A recording is cut into consecutive windows, each
// window is encoded, the encodings are mean-pooled, and the head maps the
// pooled vector to class logits.
type Classifier struct {
	backbone       *nn.Encoder
	head           *nn.MLP
	windowSize     int
	numClasses     int
	updateBackbone bool
}

// NewClassifier builds the head on top of the given backbone.
func NewClassifier(backbone *nn.Encoder, windowSize, numClasses int, updateBackbone bool, rng *rand.Rand) *Classifier {
	return &Classifier{
		backbone:       backbone,
		head:           nn.NewMLP("head", backbone.EncodingSize, headHidden, numClasses, rng),
		windowSize:     windowSize,
		numClasses:     numClasses,
		updateBackbone: updateBackbone,
	}
}

type classifierPass struct {
	encCaches []*nn.EncoderCache
	pooled    []float64
	headCache *nn.MLPCache
	logits    []float64
}

// Predict returns the class logits for one recording.
func (c *Classifier) Predict(sample ts.Series) ([]float64, error) {
	pass, err := c.forward(sample)
	if err != nil {
		return nil, err
	}
	return pass.logits, nil
}

func (c *Classifier) forward(sample ts.Series) (*classifierPass, error) {
	windows := ts.Split(sample, c.windowSize)
	if len(windows) == 0 {
		return nil, errors.Errorf("model: recording of length %d shorter than window %d", sample.Len(), c.windowSize)
	}

	pooled := make([]float64, c.backbone.EncodingSize)
	caches := make([]*nn.EncoderCache, len(windows))
	for i, win := range windows {
		enc, cache, err := c.backbone.Encode(win)
		if err != nil {
			return nil, err
		}
		caches[i] = cache
		for j, v := range enc {
			pooled[j] += v
		}
	}
	inv := 1.0 / float64(len(windows))
	for j := range pooled {
		pooled[j] *= inv
	}

	logits, headCache := c.head.Forward(pooled)
	return &classifierPass{
		encCaches: caches,
		pooled:    pooled,
		headCache: headCache,
		logits:    logits,
	}, nil
}

// Step trains on one labeled recording and reports the loss and whether the
// prediction was correct.
func (c *Classifier) Step(sample ts.Series, label int) (float64, bool, error) {
	if label < 0 || label >= c.numClasses {
		return 0, false, errors.Errorf("model: label %d out of range [0, %d)", label, c.numClasses)
	}
	pass, err := c.forward(sample)
	if err != nil {
		return 0, false, err
	}

	loss, dLogits := nn.SoftmaxCrossEntropy(pass.logits, label)
	dPooled := c.head.Backward(pass.headCache, dLogits)

	if c.updateBackbone {
		inv := 1.0 / float64(len(pass.encCaches))
		dEnc := make([]float64, len(dPooled))
		for j, v := range dPooled {
			dEnc[j] = v * inv
		}
		for _, cache := range pass.encCaches {
			c.backbone.Backward(cache, dEnc)
		}
	}

	return loss, nn.Argmax(pass.logits) == label, nil
}

// Eval scores one labeled recording without touching gradients.
func (c *Classifier) Eval(sample ts.Series, label int) (float64, bool, error) {
	if label < 0 || label >= c.numClasses {
		return 0, false, errors.Errorf("model: label %d out of range [0, %d)", label, c.numClasses)
	}
	pass, err := c.forward(sample)
	if err != nil {
		return 0, false, err
	}
	loss, _ := nn.SoftmaxCrossEntropy(pass.logits, label)
	return loss, nn.Argmax(pass.logits) == label, nil
}

// Params returns the tensors the optimizer should update: the head, plus
// the backbone unless it is frozen.
func (c *Classifier) Params() []*nn.Param {
	params := c.head.Params()
	if c.updateBackbone {
		params = append(params, c.backbone.Params()...)
	}
	return params
}

// Backbone exposes the wrapped encoder.
func (c *Classifier) Backbone() *nn.Encoder {
	return c.backbone
}

// Head exposes the prediction head.
func (c *Classifier) Head() *nn.MLP {
	return c.head
}
