// Package stats holds the descriptive statistics used by the dashboards.
package stats

import (
	"math"
	"sort"
)

// Summary describes a sample. All fields are zero for an empty sample.
type Summary struct {
	Mean   float64 `json:"mean"`
	Q25    float64 `json:"q25"`
	Median float64 `json:"median"`
	Q75    float64 `json:"q75"`
	Count  int     `json:"count"`
}

// Summarize computes mean and quartiles, skipping NaN values.
func Summarize(values []float64) Summary {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return Summary{}
	}
	sort.Float64s(clean)
	return Summary{
		Mean:   Mean(clean),
		Q25:    quantileSorted(clean, 0.25),
		Median: quantileSorted(clean, 0.5),
		Q75:    quantileSorted(clean, 0.75),
		Count:  len(clean),
	}
}

// Mean returns the arithmetic mean, or 0 for an empty sample.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Quantile returns the q-th quantile using linear interpolation between
// closest ranks. It returns NaN for an empty sample.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return quantileSorted(sorted, q)
}

// Median is Quantile(values, 0.5).
func Median(values []float64) float64 {
	return Quantile(values, 0.5)
}

func quantileSorted(sorted []float64, q float64) float64 {
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// SafeRate divides num by den, returning 0 when den is 0.
func SafeRate(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
