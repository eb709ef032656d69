package dataset

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/viniandrs/ssl-tools-bkp/internal/ts"
)

// Sample is one recording, its file name, and its activity label. Label is
// -1 when the recording has no entry in the split's label index.
type Sample struct {
	Name   string
	Series ts.Series
	Label  int
}

// LoadRecording parses a recording CSV: one row per time step, one column
// per channel. When inChannels is positive the column count must match.
func LoadRecording(path string, inChannels int) (ts.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return ts.Series{}, errors.Wrap(err, "open recording")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return ts.Series{}, errors.Wrapf(err, "parse %s", path)
	}

	rows := make([][]float64, 0, len(records))
	for i, record := range records {
		// A single header row of non-numeric column names is tolerated.
		if i == 0 && !numericRecord(record) {
			continue
		}
		row := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return ts.Series{}, errors.Wrapf(err, "%s row %d col %d", path, i+1, j+1)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}

	series, err := ts.FromRows(rows)
	if err != nil {
		return ts.Series{}, errors.Wrapf(err, "recording %s", path)
	}
	if inChannels > 0 && series.Channels() != inChannels {
		return ts.Series{}, errors.Errorf("%s has %d channels, want %d", path, series.Channels(), inChannels)
	}
	return series, nil
}

// LoadLabels reads the split's labels.csv mapping recording file name to an
// integer activity code. A missing index file is not an error; pretraining
// runs unlabeled.
func LoadLabels(splitRoot string) (map[string]int, error) {
	path := filepath.Join(splitRoot, labelsFileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]int{}, nil
		}
		return nil, errors.Wrap(err, "open labels")
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}

	labels := make(map[string]int, len(records))
	for i, record := range records {
		if len(record) != 2 {
			return nil, errors.Errorf("%s row %d: want name,label", path, i+1)
		}
		if i == 0 && !numericRecord(record[1:]) {
			continue // header
		}
		code, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil {
			return nil, errors.Wrapf(err, "%s row %d", path, i+1)
		}
		labels[strings.TrimSpace(record[0])] = code
	}
	return labels, nil
}

// LoadSplit eagerly loads every recording of a split, joining labels by file
// name. With pad set, all series are edge-padded to the longest length.
func LoadSplit(splitRoot string, inChannels int, pad bool) ([]Sample, error) {
	files, err := DiscoverRecordings(splitRoot)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no recordings under %s", splitRoot)
	}
	labels, err := LoadLabels(splitRoot)
	if err != nil {
		return nil, err
	}

	samples := make([]Sample, 0, len(files))
	maxLen := 0
	for _, path := range files {
		series, err := LoadRecording(path, inChannels)
		if err != nil {
			return nil, err
		}
		if series.Len() > maxLen {
			maxLen = series.Len()
		}
		name := filepath.Base(path)
		label, ok := labels[name]
		if !ok {
			label = -1
		}
		samples = append(samples, Sample{Name: name, Series: series, Label: label})
	}

	if pad {
		for i := range samples {
			samples[i].Series = samples[i].Series.PadTo(maxLen)
		}
	}
	return samples, nil
}

func numericRecord(record []string) bool {
	for _, field := range record {
		if _, err := strconv.ParseFloat(strings.TrimSpace(field), 64); err != nil {
			return false
		}
	}
	return len(record) > 0
}
