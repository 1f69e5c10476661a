package risk

import (
	"math"
	"sort"

	"main/internal/state"
)

const minReturnSamples = 2

// historicalVaR estimates portfolio value at risk as a fraction of equity
// using historical simulation: per-instrument return samples are combined
// with the given notional weights and the loss quantile at the confidence
// level is taken. Returns 0 when history is too short.
func historicalVaR(view state.View, notionals map[uint32]float64, equity, confidence float64) float64 {
	if equity <= 0 {
		return 0
	}
	length := 0
	for id, notional := range notionals {
		if notional == 0 {
			continue
		}
		samples := view.SymbolReturns[id]
		if len(samples) < minReturnSamples {
			continue
		}
		if length == 0 || len(samples) < length {
			length = len(samples)
		}
	}
	if length < minReturnSamples {
		return 0
	}

	portfolio := make([]float64, length)
	for id, notional := range notionals {
		if notional == 0 {
			continue
		}
		samples := view.SymbolReturns[id]
		if len(samples) < minReturnSamples {
			continue
		}
		weight := notional / equity
		offset := len(samples) - length
		for i := 0; i < length; i++ {
			portfolio[i] += weight * samples[offset+i]
		}
	}

	loss := -quantile(portfolio, 1-confidence)
	if loss < 0 {
		return 0
	}
	return loss
}

// quantile returns the p-quantile of samples using linear interpolation.
func quantile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// correlation computes the Pearson correlation of the overlapping tail of
// two return series. Returns 0 when history is too short or degenerate.
func correlation(a, b []float64) float64 {
	length := len(a)
	if len(b) < length {
		length = len(b)
	}
	if length < minReturnSamples {
		return 0
	}
	a = a[len(a)-length:]
	b = b[len(b)-length:]

	var sumA, sumB float64
	for i := 0; i < length; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA := sumA / float64(length)
	meanB := sumB / float64(length)

	var cov, varA, varB float64
	for i := 0; i < length; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

// clusterExposure sums the absolute notional of instruments whose returns
// correlate with the target instrument beyond the threshold, target
// included, as a fraction of equity.
func clusterExposure(view state.View, notionals map[uint32]float64, target uint32, threshold, equity float64) float64 {
	if equity <= 0 {
		return 0
	}
	targetReturns := view.SymbolReturns[target]
	gross := 0.0
	for id, notional := range notionals {
		if notional == 0 {
			continue
		}
		if id == target {
			gross += math.Abs(notional)
			continue
		}
		if math.Abs(correlation(targetReturns, view.SymbolReturns[id])) >= threshold {
			gross += math.Abs(notional)
		}
	}
	return gross / equity
}
