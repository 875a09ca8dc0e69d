// Package arima fits ARIMA(p, d, q) models by conditional sum of squares and
// produces fixed-origin point forecasts.
//
// The AR and MA coefficients are optimised in an unconstrained space and mapped
// through partial autocorrelations, so every fitted model is stationary and
// invertible. Estimation is sequential and deterministic: fitting the same data
// with the same order always yields bit-identical coefficients.
package arima

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrInsufficientData is returned when the series is shorter than p+d+q+1.
	ErrInsufficientData = errors.New("arima: insufficient observations for the model order")
	// ErrNonFinite is returned when the series contains NaN or infinite values.
	ErrNonFinite = errors.New("arima: series contains non-finite values")
	// ErrNumerical is returned when the likelihood cannot be evaluated at the optimum.
	ErrNumerical = errors.New("arima: numerical failure during estimation")
)

// Order represents ARIMA model order (p, d, q).
type Order struct {
	P int // AR order
	D int // Differencing order
	Q int // MA order
}

func (o Order) String() string {
	return fmt.Sprintf("ARIMA(%d,%d,%d)", o.P, o.D, o.Q)
}

// Options tunes the optimiser.
type Options struct {
	MaxIterations int     // Nelder-Mead major iterations
	Tolerance     float64 // absolute objective change treated as converged
}

// DefaultOptions returns the options used by Fit.
func DefaultOptions() Options {
	return Options{
		MaxIterations: 5000,
		Tolerance:     1e-12,
	}
}

// Model is a fitted ARIMA model. It is never mutated after Fit returns and is
// safe for concurrent use.
type Model struct {
	Order      Order
	AR         []float64 // phi_1..phi_p
	MA         []float64 // theta_1..theta_q
	Mean       float64   // mean of the differenced series; only estimated when D == 0
	Sigma2     float64   // innovation variance
	LogLik     float64
	AIC        float64
	AICc       float64
	BIC        float64
	NObs       int  // observations in the original series
	Converged  bool // false when the optimiser hit its iteration budget
	Iterations int

	// levels[k] is the data differenced k times; levels[D] is the modelled series.
	levels    [][]float64
	residuals []float64
}

// Fit estimates an ARIMA model of the given order with DefaultOptions.
func Fit(data []float64, order Order) (*Model, error) {
	return FitWithOptions(data, order, DefaultOptions())
}

// FitWithOptions estimates an ARIMA model of the given order.
func FitWithOptions(data []float64, order Order, opts Options) (*Model, error) {
	if order.P < 0 || order.D < 0 || order.Q < 0 {
		return nil, fmt.Errorf("arima: invalid order %v", order)
	}
	if need := order.P + order.D + order.Q + 1; len(data) < need {
		return nil, fmt.Errorf("%w: have %d, need at least %d for %v", ErrInsufficientData, len(data), need, order)
	}
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: index %d", ErrNonFinite, i)
		}
	}

	levels := make([][]float64, order.D+1)
	levels[0] = append([]float64(nil), data...)
	for k := 0; k < order.D; k++ {
		levels[k+1] = difference(levels[k])
	}

	m := &Model{
		Order:  order,
		NObs:   len(data),
		levels: levels,
	}

	if err := m.estimate(opts); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) includeMean() bool {
	return m.Order.D == 0
}

// numParams is the number of optimised coefficients, excluding sigma2.
func (m *Model) numParams() int {
	k := m.Order.P + m.Order.Q
	if m.includeMean() {
		k++
	}
	return k
}

// unpack splits an unconstrained parameter vector into mean, AR and MA coefficients.
func (m *Model) unpack(x []float64) (mean float64, ar, ma []float64) {
	i := 0
	if m.includeMean() {
		mean = x[0]
		i = 1
	}
	ar = constrain(x[i : i+m.Order.P])
	ma = constrain(x[i+m.Order.P : i+m.Order.P+m.Order.Q])
	floats.Scale(-1, ma)
	return mean, ar, ma
}

func (m *Model) estimate(opts Options) error {
	w := m.levels[m.Order.D]
	p, q := m.Order.P, m.Order.Q

	// Work on a rescaled copy so the simplex step is meaningful for any data magnitude.
	scale := rms(w)
	if scale == 0 {
		scale = 1
	}
	ws := make([]float64, len(w))
	floats.ScaleTo(ws, 1/scale, w)

	m.Converged = true
	m.AR = make([]float64, p)
	m.MA = make([]float64, q)

	if p+q > 0 {
		x0 := m.startParams(ws)
		nEff := float64(len(ws) - p)

		objective := func(x []float64) float64 {
			mean, ar, ma := m.unpack(x)
			sse := conditionalSumOfSquares(ws, mean, ar, ma, make([]float64, len(ws)))
			if math.IsNaN(sse) || math.IsInf(sse, 0) {
				return math.Inf(1)
			}
			return sse / nEff
		}

		settings := &optimize.Settings{
			MajorIterations: opts.MaxIterations,
			Converger: &optimize.FunctionConverge{
				Absolute:   opts.Tolerance,
				Iterations: 100,
			},
		}

		result, err := optimize.Minimize(optimize.Problem{Func: objective}, x0, settings, &optimize.NelderMead{})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNumerical, err)
		}
		if math.IsNaN(result.F) || math.IsInf(result.F, 0) || hasNaN(result.X) {
			return fmt.Errorf("%w: objective not finite at optimum", ErrNumerical)
		}

		switch result.Status {
		case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.RuntimeLimit:
			m.Converged = false
		}
		m.Iterations = result.Stats.MajorIterations

		var mean float64
		mean, m.AR, m.MA = m.unpack(result.X)
		m.Mean = mean * scale
	} else if m.includeMean() {
		m.Mean = stat.Mean(w, nil)
	}

	m.residuals = make([]float64, len(w))
	sse := conditionalSumOfSquares(w, m.Mean, m.AR, m.MA, m.residuals)
	if math.IsNaN(sse) || math.IsInf(sse, 0) {
		return fmt.Errorf("%w: residual sum of squares not finite", ErrNumerical)
	}

	m.calculateIC(sse)
	return nil
}

// startParams builds the unconstrained starting point: sample mean, Yule-Walker
// partial autocorrelations for AR, zero for MA.
func (m *Model) startParams(ws []float64) []float64 {
	x := make([]float64, 0, m.numParams())
	if m.includeMean() {
		x = append(x, stat.Mean(ws, nil))
	}
	for _, r := range partialAutocorrelations(ws, m.Order.P) {
		x = append(x, unconstrainPartial(r))
	}
	for i := 0; i < m.Order.Q; i++ {
		x = append(x, 0)
	}
	return x
}

// conditionalSumOfSquares fills resid with the one-step innovations of the ARMA
// recursion, treating pre-sample innovations as zero, and returns their sum of squares.
func conditionalSumOfSquares(w []float64, mean float64, ar, ma []float64, resid []float64) float64 {
	p, q := len(ar), len(ma)
	sse := 0.0
	for t := range w {
		if t < p {
			resid[t] = 0
			continue
		}
		e := w[t] - mean
		for i := 0; i < p; i++ {
			e -= ar[i] * (w[t-i-1] - mean)
		}
		for j := 0; j < q && t-j-1 >= 0; j++ {
			e -= ma[j] * resid[t-j-1]
		}
		resid[t] = e
		sse += e * e
	}
	return sse
}

// calculateIC sets sigma2, log-likelihood, AIC, AICc and BIC from the conditional SSE.
func (m *Model) calculateIC(sse float64) {
	n := float64(len(m.residuals) - m.Order.P)
	k := float64(m.numParams() + 1) // + sigma2

	m.Sigma2 = sse / n
	if m.Sigma2 > 0 {
		m.LogLik = -0.5 * n * (math.Log(2*math.Pi*m.Sigma2) + 1)
	} else {
		m.LogLik = math.Inf(1)
	}

	m.AIC = -2*m.LogLik + 2*k
	if n-k-1 > 0 {
		m.AICc = m.AIC + 2*k*(k+1)/(n-k-1)
	} else {
		m.AICc = math.Inf(1)
	}
	m.BIC = -2*m.LogLik + k*math.Log(n)
}

// Forecast returns the forecast path for steps 1..steps after the last observation.
// Future innovations are taken as zero and the path is integrated back to the
// original scale.
func (m *Model) Forecast(steps int) ([]float64, error) {
	if steps < 1 {
		return nil, fmt.Errorf("arima: steps must be at least 1, got %d", steps)
	}

	p, q, d := m.Order.P, m.Order.Q, m.Order.D
	w := m.levels[d]
	n := len(w)

	z := make([]float64, n+steps)
	for t, v := range w {
		z[t] = v - m.Mean
	}
	resid := make([]float64, n+steps)
	copy(resid, m.residuals)

	path := make([]float64, steps)
	for s := 0; s < steps; s++ {
		t := n + s
		pred := 0.0
		for i := 0; i < p && t-i-1 >= 0; i++ {
			pred += m.AR[i] * z[t-i-1]
		}
		for j := 0; j < q && t-j-1 >= 0; j++ {
			pred += m.MA[j] * resid[t-j-1]
		}
		z[t] = pred
		path[s] = pred + m.Mean
	}

	for k := d - 1; k >= 0; k-- {
		integrate(path, m.levels[k][len(m.levels[k])-1])
	}

	for s, v := range path {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: forecast step %d not finite", ErrNumerical, s+1)
		}
	}
	return path, nil
}

// Residuals returns a copy of the in-sample innovations on the differenced scale.
func (m *Model) Residuals() []float64 {
	return append([]float64(nil), m.residuals...)
}

func rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Norm(x, 2) / math.Sqrt(float64(len(x)))
}

func hasNaN(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
