package ts

import (
	"github.com/pkg/errors"
)

// Series is a multichannel time series laid out channels x time. All channels
// share the same length.
type Series struct {
	Data [][]float64
}

// New allocates a zero-filled series.
func New(channels, length int) Series {
	data := make([][]float64, channels)
	for c := range data {
		data[c] = make([]float64, length)
	}
	return Series{Data: data}
}

// FromRows builds a series from row-major records (time x channels), the
// layout CSV recordings use on disk.
func FromRows(rows [][]float64) (Series, error) {
	if len(rows) == 0 {
		return Series{}, errors.New("ts: no rows")
	}
	channels := len(rows[0])
	if channels == 0 {
		return Series{}, errors.New("ts: empty row")
	}
	s := New(channels, len(rows))
	for t, row := range rows {
		if len(row) != channels {
			return Series{}, errors.Errorf("ts: row %d has %d values, want %d", t, len(row), channels)
		}
		for c, v := range row {
			s.Data[c][t] = v
		}
	}
	return s, nil
}

// Channels returns the channel count.
func (s Series) Channels() int {
	return len(s.Data)
}

// Len returns the number of time steps.
func (s Series) Len() int {
	if len(s.Data) == 0 {
		return 0
	}
	return len(s.Data[0])
}

// Slice returns a view over the time axis [start, end). The underlying
// storage is shared with s.
func (s Series) Slice(start, end int) Series {
	if start < 0 {
		start = 0
	}
	if end > s.Len() {
		end = s.Len()
	}
	out := make([][]float64, len(s.Data))
	for c := range s.Data {
		out[c] = s.Data[c][start:end]
	}
	return Series{Data: out}
}

// WindowAt returns the window of the given width centred at t, clamped to the
// series bounds. The returned series shares storage with s.
func (s Series) WindowAt(t, width int) Series {
	half := width / 2
	start := t - half
	if start < 0 {
		start = 0
	}
	if start+width > s.Len() {
		start = s.Len() - width
	}
	if start < 0 {
		start = 0
	}
	return s.Slice(start, start+width)
}

// Split cuts the series into consecutive windows of the given width. The
// remainder past the last full window is dropped.
func Split(s Series, width int) []Series {
	if width <= 0 || s.Len() < width {
		return nil
	}
	n := s.Len() / width
	out := make([]Series, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s.Slice(i*width, (i+1)*width))
	}
	return out
}

// PadTo extends the series to the given length by replicating the final
// value of each channel. Series already at least that long are cloned
// untouched.
func (s Series) PadTo(length int) Series {
	if s.Len() >= length {
		return s.Clone()
	}
	out := New(s.Channels(), length)
	for c, ch := range s.Data {
		copy(out.Data[c], ch)
		last := ch[len(ch)-1]
		for t := len(ch); t < length; t++ {
			out.Data[c][t] = last
		}
	}
	return out
}

// Clone returns a deep copy.
func (s Series) Clone() Series {
	out := make([][]float64, len(s.Data))
	for c, ch := range s.Data {
		out[c] = append([]float64(nil), ch...)
	}
	return Series{Data: out}
}

// Flatten concatenates the channels into one channel-major vector, the input
// layout the encoder consumes for a single time step window.
func (s Series) Flatten() []float64 {
	out := make([]float64, 0, s.Channels()*s.Len())
	for _, ch := range s.Data {
		out = append(out, ch...)
	}
	return out
}

// Column returns the per-channel values at time step t.
func (s Series) Column(t int) []float64 {
	out := make([]float64, len(s.Data))
	for c, ch := range s.Data {
		out[c] = ch[t]
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
