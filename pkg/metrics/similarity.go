package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Similarity holds global agreement measures between the fixed and
// registered intensities, useful for judging registration quality.
type Similarity struct {
	// RMSE is the root mean square intensity difference
	RMSE float64 `json:"rmse"`

	// SSIM is the global structural similarity index on the 0..255 range
	SSIM float64 `json:"ssim"`

	// MutualInformation is the joint-histogram mutual information in bits
	MutualInformation float64 `json:"mutual_information"`

	// EntropyDifference is |H(fixed) - H(registered)| in bits
	EntropyDifference float64 `json:"entropy_difference"`

	// Correlation is the Pearson correlation, 0 when either image is flat
	Correlation float64 `json:"correlation"`
}

// histogramBins is the bin count for entropy and mutual information.
const histogramBins = 64

func similarity(fixed, registered []float64) Similarity {
	return Similarity{
		RMSE:              rmse(fixed, registered),
		SSIM:              ssim(fixed, registered),
		MutualInformation: mutualInformation(fixed, registered),
		EntropyDifference: math.Abs(entropy(fixed) - entropy(registered)),
		Correlation:       correlation(fixed, registered),
	}
}

func rmse(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	return floats.Distance(a, b, 2) / math.Sqrt(float64(len(a)))
}

func ssim(a, b []float64) float64 {
	const (
		dynamicRange = 255.0
		k1           = 0.01
		k2           = 0.03
	)
	if len(a) < 2 {
		return 0
	}

	c1 := (k1 * dynamicRange) * (k1 * dynamicRange)
	c2 := (k2 * dynamicRange) * (k2 * dynamicRange)

	muA := stat.Mean(a, nil)
	muB := stat.Mean(b, nil)
	varA := stat.Variance(a, nil)
	varB := stat.Variance(b, nil)
	cov := stat.Covariance(a, b, nil)

	num := (2*muA*muB + c1) * (2*cov + c2)
	den := (muA*muA + muB*muB + c1) * (varA + varB + c2)
	if den <= 0 {
		return 0
	}
	return num / den
}

func correlation(a, b []float64) float64 {
	if len(a) < 2 || stat.Variance(a, nil) == 0 || stat.Variance(b, nil) == 0 {
		return 0
	}
	return stat.Correlation(a, b, nil)
}

// binIndex maps v from [lo, hi] into one of histogramBins bins.
func binIndex(v, lo, hi float64) int {
	if hi <= lo {
		return 0
	}
	i := int((v - lo) / (hi - lo) * histogramBins)
	if i >= histogramBins {
		return histogramBins - 1
	}
	if i < 0 {
		return 0
	}
	return i
}

func histogram(data []float64, lo, hi float64) []float64 {
	hist := make([]float64, histogramBins)
	for _, v := range data {
		hist[binIndex(v, lo, hi)]++
	}
	floats.Scale(1/float64(len(data)), hist)
	return hist
}

// entropy is the Shannon entropy in bits of data binned over its own range.
func entropy(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	lo, hi := floats.Min(data), floats.Max(data)
	return stat.Entropy(histogram(data, lo, hi)) / math.Ln2
}

// mutualInformation bins both images over a shared range and returns
// H(A) + H(B) - H(A,B) in bits.
func mutualInformation(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	lo := math.Min(floats.Min(a), floats.Min(b))
	hi := math.Max(floats.Max(a), floats.Max(b))

	joint := make([]float64, histogramBins*histogramBins)
	for i := range a {
		joint[binIndex(a[i], lo, hi)*histogramBins+binIndex(b[i], lo, hi)]++
	}
	floats.Scale(1/float64(len(a)), joint)

	mi := stat.Entropy(histogram(a, lo, hi)) + stat.Entropy(histogram(b, lo, hi)) - stat.Entropy(joint)
	return math.Max(0, mi/math.Ln2)
}
