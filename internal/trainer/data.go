package trainer

import (
	"math/rand"
	"os"

	"github.com/pkg/errors"

	"github.com/viniandrs/ssl-tools-bkp/internal/config"
	"github.com/viniandrs/ssl-tools-bkp/internal/dataset"
)

// holdoutFraction is used when a data root has no val split: the tail of
// the (sorted) train split is held out for validation.
const holdoutFraction = 0.1

// pretrainData resolves the pretraining file list and an eagerly loaded
// validation set. Validation samples come from the val split when present,
// otherwise from a held-out tail of train.
func pretrainData(cfg *config.Config) ([]string, []dataset.Sample, error) {
	trainFiles, err := dataset.DiscoverRecordings(dataset.SplitDir(cfg.Data, "train"))
	if err != nil {
		return nil, nil, err
	}
	if len(trainFiles) == 0 {
		return nil, nil, errors.Errorf("no recordings under %s", dataset.SplitDir(cfg.Data, "train"))
	}

	valDir := dataset.SplitDir(cfg.Data, "val")
	if splitExists(valDir) {
		valSamples, err := dataset.LoadSplit(valDir, cfg.InChannels, false)
		if err != nil {
			return nil, nil, err
		}
		return trainFiles, valSamples, nil
	}

	cut := len(trainFiles) - holdoutSize(len(trainFiles))
	heldOut := trainFiles[cut:]
	trainFiles = trainFiles[:cut]
	if len(trainFiles) == 0 {
		return nil, nil, errors.New("train split too small to hold out validation recordings")
	}

	valSamples := make([]dataset.Sample, 0, len(heldOut))
	for _, path := range heldOut {
		series, err := dataset.LoadRecording(path, cfg.InChannels)
		if err != nil {
			return nil, nil, err
		}
		valSamples = append(valSamples, dataset.Sample{Name: path, Series: series, Label: -1})
	}
	return trainFiles, valSamples, nil
}

// labeledSplit loads a split and keeps only recordings with a label.
func labeledSplit(cfg *config.Config, split string) ([]dataset.Sample, error) {
	samples, err := dataset.LoadSplit(dataset.SplitDir(cfg.Data, split), cfg.InChannels, cfg.PadLength)
	if err != nil {
		return nil, err
	}
	labeled := samples[:0]
	for _, s := range samples {
		if s.Label >= 0 {
			labeled = append(labeled, s)
		}
	}
	if len(labeled) == 0 {
		return nil, errors.Errorf("split %q has no labeled recordings", split)
	}
	return labeled, nil
}

// valSplitOrHoldout loads the val split, or carves one out of the already
// loaded train samples when the split is absent.
func valSplitOrHoldout(cfg *config.Config, train *[]dataset.Sample) ([]dataset.Sample, error) {
	valDir := dataset.SplitDir(cfg.Data, "val")
	if splitExists(valDir) {
		return labeledSplit(cfg, "val")
	}
	n := len(*train)
	cut := n - holdoutSize(n)
	if cut == 0 {
		return nil, errors.New("train split too small to hold out validation recordings")
	}
	val := (*train)[cut:]
	*train = (*train)[:cut]
	return val, nil
}

func holdoutSize(n int) int {
	size := int(float64(n) * holdoutFraction)
	if size < 1 {
		size = 1
	}
	return size
}

func splitExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// shuffler yields a fresh seeded permutation per epoch.
type shuffler struct {
	rng *rand.Rand
	n   int
}

func newShuffler(seed int64, n int) *shuffler {
	return &shuffler{rng: rand.New(rand.NewSource(seed)), n: n}
}

func (s *shuffler) next() []int {
	order := s.rng.Perm(s.n)
	return order
}
