// Package checkpoint persists model weights as gzip-compressed JSON files
// with a small manifest describing the architecture they belong to.
package checkpoint

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/viniandrs/ssl-tools-bkp/internal/nn"
)

// Manifest describes the checkpointed model.
type Manifest struct {
	Model        string    `json:"model"`
	Mode         string    `json:"mode"`
	InChannels   int       `json:"in_channels"`
	EncodingSize int       `json:"encoding_size"`
	WindowSize   int       `json:"window_size"`
	NumClasses   int       `json:"num_classes,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// File is one decoded checkpoint.
type File struct {
	Manifest Manifest             `json:"manifest"`
	Weights  map[string][]float64 `json:"weights"`
}

// Save writes the parameters under their names. The parent directory is
// created if needed.
func Save(path string, manifest Manifest, params []*nn.Param) error {
	manifest.SavedAt = time.Now().UTC()
	file := File{Manifest: manifest, Weights: make(map[string][]float64, len(params))}
	for _, p := range params {
		if _, dup := file.Weights[p.Name]; dup {
			return errors.Errorf("checkpoint: duplicate parameter name %q", p.Name)
		}
		file.Weights[p.Name] = p.Data
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "checkpoint dir")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create checkpoint")
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	if err := json.NewEncoder(zw).Encode(file); err != nil {
		return errors.Wrap(err, "encode checkpoint")
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "flush checkpoint")
	}
	return f.Close()
}

// Load reads a checkpoint from disk.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open checkpoint")
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "checkpoint %s", path)
	}
	defer zr.Close()

	var file File
	if err := json.NewDecoder(zr).Decode(&file); err != nil {
		return nil, errors.Wrapf(err, "decode checkpoint %s", path)
	}
	return &file, nil
}

// Apply copies stored weights into every given parameter. All parameters
// must be present with matching sizes.
func (f *File) Apply(params []*nn.Param) error {
	for _, p := range params {
		data, ok := f.Weights[p.Name]
		if !ok {
			return errors.Errorf("checkpoint: missing parameter %q", p.Name)
		}
		if len(data) != len(p.Data) {
			return errors.Errorf("checkpoint: parameter %q has %d values, want %d", p.Name, len(data), len(p.Data))
		}
		copy(p.Data, data)
	}
	return nil
}

// ApplyPrefix copies stored weights into the parameters whose names carry
// the prefix, used to restore a pretrained backbone into a fine-tune model.
func (f *File) ApplyPrefix(params []*nn.Param, prefix string) error {
	matched := 0
	for _, p := range params {
		if !strings.HasPrefix(p.Name, prefix) {
			continue
		}
		matched++
		data, ok := f.Weights[p.Name]
		if !ok {
			return errors.Errorf("checkpoint: missing parameter %q", p.Name)
		}
		if len(data) != len(p.Data) {
			return errors.Errorf("checkpoint: parameter %q has %d values, want %d", p.Name, len(data), len(p.Data))
		}
		copy(p.Data, data)
	}
	if matched == 0 {
		return errors.Errorf("checkpoint: no parameters match prefix %q", prefix)
	}
	return nil
}
