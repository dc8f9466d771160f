package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Grid holds the sufficient statistics of the metric×variant evaluation
// grid in metric-major order: index = metric*Variants + variant. All slices
// have length Metrics*Variants except ConfidenceLevel which is per metric.
type Grid struct {
	Metrics      int
	Variants     int
	ControlIndex int

	Count       []float64
	SumValue    []float64
	SumSqrValue []float64

	ConfidenceLevel []float64
}

// CellResult is the test outcome for one grid cell. Comparison fields are
// NaN on control cells and whenever a zero denominator count makes the
// estimate undefined.
type CellResult struct {
	Count           float64
	Mean            float64
	Std             float64
	SumValue        float64
	ConfidenceLevel float64

	Diff               float64
	TestStat           float64
	PValue             float64
	ConfidenceInterval float64
	StandardError      float64
	DegreesOfFreedom   float64
}

// WelchTTest tests the relative difference in means of every treatment
// variant against the control, per metric, over the whole grid at once.
//
// The mean is sum_value/count and the sample variance is the Bessel-corrected
// estimate from the second moment. The standard error of the relative
// difference comes from the delta method applied to the ratio of the two
// sample means, with Welch-Satterthwaite degrees of freedom. Zero counts
// propagate as NaN through IEEE arithmetic instead of raising.
func WelchTTest(g Grid) []CellResult {
	n := g.Metrics * g.Variants
	mean := make([]float64, n)
	variance := make([]float64, n)

	for i := 0; i < n; i++ {
		c := g.Count[i]
		mean[i] = g.SumValue[i] / c
		variance[i] = (g.SumSqrValue[i] - g.SumValue[i]*g.SumValue[i]/c) / (c - 1)
	}

	res := make([]CellResult, n)
	for m := 0; m < g.Metrics; m++ {
		base := m * g.Variants
		ctrl := base + g.ControlIndex

		countC := g.Count[ctrl]
		meanC := mean[ctrl]
		varC := variance[ctrl]
		cl := g.ConfidenceLevel[m]

		for v := 0; v < g.Variants; v++ {
			i := base + v
			cell := CellResult{
				Count:           g.Count[i],
				Mean:            mean[i],
				Std:             math.Sqrt(variance[i]),
				SumValue:        g.SumValue[i],
				ConfidenceLevel: cl,

				Diff:               math.NaN(),
				TestStat:           math.NaN(),
				PValue:             math.NaN(),
				ConfidenceInterval: math.NaN(),
				StandardError:      math.NaN(),
				DegreesOfFreedom:   math.NaN(),
			}
			if v != g.ControlIndex {
				countT := g.Count[i]
				meanT := mean[i]
				varT := variance[i]

				num := varC/countC + varT/countT
				den := varC*varC/(countC*countC*(countC-1)) + varT*varT/(countT*countT*(countT-1))
				f := num * num / den

				relDiff := (meanT - meanC) / meanC
				relSE := math.Sqrt(meanT*meanT*varC/(meanC*meanC*countC)+varT/countT) / meanC
				testStat := relDiff / relSE

				cell.Diff = relDiff
				cell.TestStat = testStat
				cell.PValue = 2 * (1 - tCDF(math.Abs(testStat), f))
				cell.ConfidenceInterval = relSE * tQuantile(cl+(1-cl)/2, f)
				cell.StandardError = relSE
				cell.DegreesOfFreedom = f
			}
			res[i] = cell
		}
	}
	return res
}

// ApplyHolmCorrection adjusts p-values and confidence intervals of the grid
// results for the multiple comparisons problem. The family is the set of all
// treatment-vs-control comparisons of one metric; it is applied when the
// experiment has more than one treatment variant.
//
// Confidence intervals are re-derived at the adjusted significance
// alpha*raw_p/adjusted_p per hypothesis; the reported confidence level stays
// unchanged, only the interval widens.
func ApplyHolmCorrection(g Grid, res []CellResult) {
	if g.Variants <= 2 {
		return
	}
	treatments := make([]int, 0, g.Variants-1)
	for m := 0; m < g.Metrics; m++ {
		base := m * g.Variants
		treatments = treatments[:0]
		for v := 0; v < g.Variants; v++ {
			if v != g.ControlIndex {
				treatments = append(treatments, base+v)
			}
		}

		raw := make([]float64, len(treatments))
		for k, i := range treatments {
			raw[k] = res[i].PValue
		}
		adjusted := HolmBonferroni(raw)

		alpha := 1 - g.ConfidenceLevel[m]
		for k, i := range treatments {
			ratio := raw[k] / adjusted[k]
			if math.IsNaN(ratio) {
				ratio = 1
			}
			adjAlpha := ratio * alpha
			res[i].PValue = adjusted[k]
			res[i].ConfidenceInterval = res[i].StandardError * tQuantile(1-adjAlpha/2, res[i].DegreesOfFreedom)
		}
	}
}

func tCDF(x, df float64) float64 {
	if math.IsNaN(x) || math.IsNaN(df) || df <= 0 {
		return math.NaN()
	}
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.CDF(x)
}

func tQuantile(p, df float64) float64 {
	if math.IsNaN(p) || math.IsNaN(df) || df <= 0 || p <= 0 || p >= 1 {
		return math.NaN()
	}
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Quantile(p)
}
