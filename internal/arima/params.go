package arima

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// maxStartPartial keeps starting values away from the unit circle.
const maxStartPartial = 0.95

// constrain maps unconstrained reals onto the coefficients of a stationary
// autoregressive polynomial 1 - phi_1 B - ... - phi_k B^k.
// Each value is squashed to a partial autocorrelation in (-1, 1) and the
// Durbin-Levinson recursion turns those into coefficients.
func constrain(x []float64) []float64 {
	partial := make([]float64, len(x))
	for i, v := range x {
		partial[i] = v / math.Sqrt(1+v*v)
	}
	return partialToCoefficients(partial)
}

// unconstrainPartial is the inverse of the squashing step in constrain.
func unconstrainPartial(r float64) float64 {
	if r > maxStartPartial {
		r = maxStartPartial
	} else if r < -maxStartPartial {
		r = -maxStartPartial
	}
	return r / math.Sqrt(1-r*r)
}

// partialToCoefficients runs the Durbin-Levinson recursion on partial autocorrelations.
func partialToCoefficients(partial []float64) []float64 {
	k := len(partial)
	phi := make([]float64, k)
	prev := make([]float64, k)
	for i := 0; i < k; i++ {
		copy(prev, phi)
		phi[i] = partial[i]
		for j := 0; j < i; j++ {
			phi[j] = prev[j] - partial[i]*prev[i-1-j]
		}
	}
	return phi
}

// autocorrelations returns the sample ACF for lags 0..maxLag, or nil when the
// series has no variance. Lags beyond the series length are zero.
func autocorrelations(x []float64, maxLag int) []float64 {
	n := len(x)
	if n == 0 || maxLag < 0 {
		return nil
	}

	mean := stat.Mean(x, nil)
	denom := 0.0
	for _, v := range x {
		denom += (v - mean) * (v - mean)
	}
	if denom == 0 {
		return nil
	}

	acf := make([]float64, maxLag+1)
	for k := 0; k <= maxLag && k < n; k++ {
		sum := 0.0
		for i := k; i < n; i++ {
			sum += (x[i] - mean) * (x[i-k] - mean)
		}
		acf[k] = sum / denom
	}
	return acf
}

// partialAutocorrelations returns the Yule-Walker partial autocorrelations for
// lags 1..maxLag via Durbin-Levinson, clamped to keep the start stationary.
func partialAutocorrelations(x []float64, maxLag int) []float64 {
	partial := make([]float64, maxLag)
	if maxLag == 0 {
		return partial
	}

	acf := autocorrelations(x, maxLag)
	if acf == nil {
		return partial
	}

	phi := make([]float64, maxLag)
	prev := make([]float64, maxLag)
	v := 1.0
	for k := 0; k < maxLag; k++ {
		if v <= 0 {
			break
		}
		num := acf[k+1]
		for j := 0; j < k; j++ {
			num -= phi[j] * acf[k-j]
		}
		r := num / v
		r = math.Max(-maxStartPartial, math.Min(maxStartPartial, r))
		partial[k] = r

		copy(prev, phi)
		phi[k] = r
		for j := 0; j < k; j++ {
			phi[j] = prev[j] - r*prev[k-1-j]
		}
		v *= 1 - r*r
	}
	return partial
}

// difference returns the first difference of x.
func difference(x []float64) []float64 {
	if len(x) < 2 {
		return []float64{}
	}
	out := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		out[i-1] = x[i] - x[i-1]
	}
	return out
}

// integrate undoes one difference in place, anchoring the cumulative sum at last.
func integrate(path []float64, last float64) {
	acc := last
	for i, v := range path {
		acc += v
		path[i] = acc
	}
}
