package arima

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// LjungBoxResult is the portmanteau test on the model residuals.
// A small p-value indicates autocorrelation the model did not capture.
type LjungBoxResult struct {
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
	Lags      int     `json:"lags"`
	DOF       int     `json:"dof"`
}

// Summary describes a fitted model. Criteria that are not finite, such as
// AICc on very short series, are nil.
type Summary struct {
	Order     Order           `json:"order"`
	AR        []float64       `json:"ar"`
	MA        []float64       `json:"ma"`
	Mean      float64         `json:"mean"`
	Sigma2    float64         `json:"sigma2"`
	LogLik    *float64        `json:"log_likelihood"`
	AIC       *float64        `json:"aic"`
	AICc      *float64        `json:"aicc"`
	BIC       *float64        `json:"bic"`
	NObs      int             `json:"n_obs"`
	Converged bool            `json:"converged"`
	LjungBox  *LjungBoxResult `json:"ljung_box,omitempty"`
}

// Summary returns a summary of the fitted model.
func (m *Model) Summary() *Summary {
	return &Summary{
		Order:     m.Order,
		AR:        append([]float64(nil), m.AR...),
		MA:        append([]float64(nil), m.MA...),
		Mean:      m.Mean,
		Sigma2:    m.Sigma2,
		LogLik:    finite(m.LogLik),
		AIC:       finite(m.AIC),
		AICc:      finite(m.AICc),
		BIC:       finite(m.BIC),
		NObs:      m.NObs,
		Converged: m.Converged,
		LjungBox:  LjungBox(m.residuals[m.Order.P:], 10, m.Order.P+m.Order.Q),
	}
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// LjungBox tests residuals for autocorrelation up to lags. fitdf is the number
// of estimated ARMA coefficients. Returns nil for series shorter than 10 or
// without variance.
func LjungBox(residuals []float64, lags, fitdf int) *LjungBoxResult {
	n := len(residuals)
	if n < 10 || lags < 1 {
		return nil
	}
	if lags >= n {
		lags = n - 1
	}

	acf := autocorrelations(residuals, lags)
	if acf == nil {
		return nil
	}

	q := 0.0
	for k := 1; k <= lags; k++ {
		q += acf[k] * acf[k] / float64(n-k)
	}
	q *= float64(n * (n + 2))

	dof := lags - fitdf
	if dof < 1 {
		dof = 1
	}

	return &LjungBoxResult{
		Statistic: q,
		PValue:    1 - distuv.ChiSquared{K: float64(dof)}.CDF(q),
		Lags:      lags,
		DOF:       dof,
	}
}
