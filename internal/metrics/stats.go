package metrics

import "time"

// Window accumulates timing stats across training steps.
type Window struct {
	samples  int
	data     time.Duration
	compute  time.Duration
	steps    int
	lastLoss float64
}

// Record adds a new measurement to the window.
func (w *Window) Record(batchSize int, dataTime, computeTime time.Duration, loss float64) {
	w.samples += batchSize
	w.data += dataTime
	w.compute += computeTime
	w.steps++
	w.lastLoss = loss
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{}
	total := w.data + w.compute
	if total > 0 {
		snap.SamplesPerSec = float64(w.samples) / total.Seconds()
	}
	if w.steps > 0 {
		snap.AvgDataMS = (w.data.Seconds() * 1000) / float64(w.steps)
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / float64(w.steps)
	}
	snap.LastLoss = w.lastLoss

	w.samples = 0
	w.data = 0
	w.compute = 0
	w.steps = 0
	return snap
}

// Snapshot represents loggable throughput metrics.
type Snapshot struct {
	SamplesPerSec float64
	AvgDataMS     float64
	AvgComputeMS  float64
	LastLoss      float64
}

// Meter accumulates loss and accuracy over one epoch.
type Meter struct {
	lossSum float64
	count   int
	correct int
	labeled int
}

// Add records one step's loss.
func (m *Meter) Add(loss float64) {
	m.lossSum += loss
	m.count++
}

// AddPrediction records one classification outcome.
func (m *Meter) AddPrediction(loss float64, correct bool) {
	m.Add(loss)
	m.labeled++
	if correct {
		m.correct++
	}
}

// MeanLoss returns the mean recorded loss.
func (m *Meter) MeanLoss() float64 {
	if m.count == 0 {
		return 0
	}
	return m.lossSum / float64(m.count)
}

// Accuracy returns the fraction of correct predictions.
func (m *Meter) Accuracy() float64 {
	if m.labeled == 0 {
		return 0
	}
	return float64(m.correct) / float64(m.labeled)
}

// Count returns the number of recorded steps.
func (m *Meter) Count() int {
	return m.count
}

// Reset clears the meter.
func (m *Meter) Reset() {
	*m = Meter{}
}
