package scoring

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/vitalguard/vitalguard/internal/vitals"
)

// Synthetic training distribution parameters. 90% of samples are normal vitals
// centred at 75 bpm / 98% SpO2; 10% are outliers split between bradycardic
// (45 bpm) and tachycardic (150 bpm) clusters, both with depressed SpO2 (85%).
const (
	syntheticSeed    = 42
	syntheticSamples = 10_000

	normalHRMean, normalHRStd     = 75, 15
	normalSpO2Mean, normalSpO2Std = 98, 2

	lowHRMean, lowHRStd     = 45, 5
	highHRMean, highHRStd   = 150, 10
	lowSpO2Mean, lowSpO2Std = 85, 3
)

// Forest hyperparameters, matching the fitted defaults the artifact format
// was designed around.
const (
	numTrees      = 100
	subsampleSize = 256
	contamination = 0.1
)

// TrainDefault fits the default scoring artifact from the fixed synthetic
// distribution. Training is deterministic: the same artifact (up to float
// rounding) is produced on every run.
func TrainDefault() *Artifact {
	rng := rand.New(rand.NewSource(syntheticSeed))

	nNormal := int(float64(syntheticSamples) * (1 - contamination))
	nLow := (syntheticSamples - nNormal) / 2
	nHigh := syntheticSamples - nNormal - nLow

	data := make([][]float64, 0, syntheticSamples)
	for i := 0; i < nNormal; i++ {
		data = append(data, []float64{
			rng.NormFloat64()*normalHRStd + normalHRMean,
			rng.NormFloat64()*normalSpO2Std + normalSpO2Mean,
		})
	}
	for i := 0; i < nLow; i++ {
		data = append(data, []float64{
			rng.NormFloat64()*lowHRStd + lowHRMean,
			rng.NormFloat64()*lowSpO2Std + lowSpO2Mean,
		})
	}
	for i := 0; i < nHigh; i++ {
		data = append(data, []float64{
			rng.NormFloat64()*highHRStd + highHRMean,
			rng.NormFloat64()*lowSpO2Std + lowSpO2Mean,
		})
	}

	mean, scale := fitStandardizer(data)
	scaled := make([][]float64, len(data))
	for i, row := range data {
		scaled[i] = standardize(row, mean, scale)
	}

	f := fitForest(scaled, numTrees, subsampleSize, rng)

	// Offset is the contamination quantile of the training scores: the lowest
	// 10% of samples end up below it and classify as anomalous.
	scores := make([]float64, len(scaled))
	for i, row := range scaled {
		scores[i] = f.scoreSample(row)
	}
	sort.Float64s(scores)
	offset := scores[int(contamination*float64(len(scores)))]

	// The outlier clusters are dense enough that at subsample 256 the
	// quantile can land below them, leaving the cluster centres classified
	// normal. Anchor the threshold between the normal centre and the worst
	// outlier centre so each centre lands on its own side.
	normalScore := f.scoreSample(standardize([]float64{normalHRMean, normalSpO2Mean}, mean, scale))
	lowScore := f.scoreSample(standardize([]float64{lowHRMean, lowSpO2Mean}, mean, scale))
	highScore := f.scoreSample(standardize([]float64{highHRMean, lowSpO2Mean}, mean, scale))
	outlierScore := math.Max(lowScore, highScore)
	if offset <= outlierScore || offset >= normalScore {
		offset = (normalScore + outlierScore) / 2
	}

	return &Artifact{
		Version:      ArtifactVersion,
		TrainedAt:    time.Now().UTC(),
		FeatureNames: append([]string(nil), vitals.FeatureNames...),
		Mean:         mean,
		Scale:        scale,
		Offset:       offset,
		Forest:       f,
	}
}

// fitStandardizer computes the per-feature mean and standard deviation.
func fitStandardizer(data [][]float64) (mean, scale []float64) {
	n := float64(len(data))
	dims := len(data[0])
	mean = make([]float64, dims)
	scale = make([]float64, dims)

	for _, row := range data {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= n
	}
	for _, row := range data {
		for j, v := range row {
			d := v - mean[j]
			scale[j] += d * d
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / n)
		if scale[j] == 0 {
			scale[j] = 1
		}
	}
	return mean, scale
}

// standardize applies the fitted transform to one feature vector.
func standardize(x, mean, scale []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - mean[i]) / scale[i]
	}
	return out
}
