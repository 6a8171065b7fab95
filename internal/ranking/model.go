package ranking

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrEmptyTrainingData is returned by Fit when there are no examples.
	ErrEmptyTrainingData = errors.New("empty training data")
	// ErrSingleClass is returned by Fit when every example carries the same label.
	ErrSingleClass = errors.New("training data contains a single class")
	// ErrFeatureWidth is returned when a vector does not match the model width.
	ErrFeatureWidth = errors.New("feature width mismatch")
	// ErrColumnMismatch is returned when a model was trained on other columns.
	ErrColumnMismatch = errors.New("feature column mismatch")
)

// Example is one labeled training row. Label is 1 for the chosen candidate.
type Example struct {
	Features []float64
	Label    int
}

// Model is a logistic regression over standardised features. It is the
// on-disk artifact format as well as the in-memory predictor.
type Model struct {
	Columns   []string  `json:"columns"`
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
	Means     []float64 `json:"means"`
	Scales    []float64 `json:"scales"`
	TrainedAt time.Time `json:"trained_at"`
	Samples   int       `json:"samples"`
	Positives int       `json:"positives"`
}

// Predict returns P(chosen) for one feature vector.
func (m *Model) Predict(x []float64) (float64, error) {
	if len(x) != len(m.Weights) {
		return 0, fmt.Errorf("%w: got %d, model has %d", ErrFeatureWidth, len(x), len(m.Weights))
	}
	z := m.Intercept
	for i, v := range x {
		z += m.Weights[i] * (v - m.Means[i]) / m.Scales[i]
	}
	return sigmoid(z), nil
}

// CheckColumns reports whether the model was trained on exactly cols, in order.
func (m *Model) CheckColumns(cols []string) error {
	if len(m.Columns) != len(cols) {
		return fmt.Errorf("%w: model has %v, want %v", ErrColumnMismatch, m.Columns, cols)
	}
	for i, c := range cols {
		if m.Columns[i] != c {
			return fmt.Errorf("%w: column %d is %q, want %q", ErrColumnMismatch, i, m.Columns[i], c)
		}
	}
	return nil
}

func (m *Model) validate() error {
	n := len(m.Weights)
	if n == 0 || len(m.Means) != n || len(m.Scales) != n {
		return fmt.Errorf("%w: weights=%d means=%d scales=%d", ErrFeatureWidth, n, len(m.Means), len(m.Scales))
	}
	for i, s := range m.Scales {
		if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("invalid scale %v for column %d", s, i)
		}
	}
	return nil
}

// FitOptions controls gradient descent.
type FitOptions struct {
	MaxIter      int
	LearningRate float64
	L2           float64 // inverse of the regularisation strength C
	Tolerance    float64 // stop once the largest gradient component falls below it
}

func DefaultFitOptions() FitOptions {
	return FitOptions{
		MaxIter:      500,
		LearningRate: 0.5,
		L2:           1.0,
		Tolerance:    1e-6,
	}
}

// Fit trains an L2-regularised logistic regression by batch gradient descent.
// Weights start at zero and the iteration order is fixed, so identical input
// always yields an identical model.
func Fit(examples []Example, opts FitOptions) (*Model, error) {
	if len(examples) == 0 {
		return nil, ErrEmptyTrainingData
	}
	width := len(examples[0].Features)
	if width == 0 {
		return nil, fmt.Errorf("%w: examples have no features", ErrFeatureWidth)
	}

	positives := 0
	for i, ex := range examples {
		if len(ex.Features) != width {
			return nil, fmt.Errorf("%w: example %d has %d features, want %d", ErrFeatureWidth, i, len(ex.Features), width)
		}
		if ex.Label != 0 {
			positives++
		}
	}
	if positives == 0 || positives == len(examples) {
		return nil, ErrSingleClass
	}

	if opts.MaxIter <= 0 {
		opts.MaxIter = DefaultFitOptions().MaxIter
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = DefaultFitOptions().LearningRate
	}

	n := float64(len(examples))
	means := make([]float64, width)
	scales := make([]float64, width)
	for _, ex := range examples {
		for j, v := range ex.Features {
			means[j] += sanitize(v)
		}
	}
	for j := range means {
		means[j] /= n
	}
	for _, ex := range examples {
		for j, v := range ex.Features {
			d := sanitize(v) - means[j]
			scales[j] += d * d
		}
	}
	for j := range scales {
		scales[j] = math.Sqrt(scales[j] / n)
		if scales[j] < 1e-12 {
			scales[j] = 1
		}
	}

	xs := make([][]float64, len(examples))
	ys := make([]float64, len(examples))
	for i, ex := range examples {
		row := make([]float64, width)
		for j, v := range ex.Features {
			row[j] = (sanitize(v) - means[j]) / scales[j]
		}
		xs[i] = row
		if ex.Label != 0 {
			ys[i] = 1
		}
	}

	w := make([]float64, width)
	var b float64
	grad := make([]float64, width)
	for iter := 0; iter < opts.MaxIter; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		var gb float64
		for i, x := range xs {
			z := b
			for j, v := range x {
				z += w[j] * v
			}
			diff := sigmoid(z) - ys[i]
			for j, v := range x {
				grad[j] += diff * v
			}
			gb += diff
		}

		maxGrad := math.Abs(gb / n)
		for j := range grad {
			grad[j] = grad[j]/n + opts.L2*w[j]/n
			if g := math.Abs(grad[j]); g > maxGrad {
				maxGrad = g
			}
		}
		if maxGrad < opts.Tolerance {
			break
		}

		for j := range w {
			w[j] -= opts.LearningRate * grad[j]
		}
		b -= opts.LearningRate * gb / n
	}

	return &Model{
		Weights:   w,
		Intercept: b,
		Means:     means,
		Scales:    scales,
		Samples:   len(examples),
		Positives: positives,
	}, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// sanitize maps missing values to zero.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
