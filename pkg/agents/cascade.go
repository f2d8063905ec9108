package agents

import "math"

// SignalSample is one telemetry reading feeding the cascade-probability
// forecast: an observed intensity at a point in time, relative to now.
type SignalSample struct {
	MinutesAgo float64
	Intensity  float64
}

// Forecast is the result of projecting an incident's intensity forward
// (spec §4.5: Prediction runs "cascade-probability forecasting over a fixed
// horizon with threshold" rather than trusting an LLM's bare claim).
type Forecast struct {
	GrowthRate         float64
	ProjectedIntensity float64
	CascadeProbability float64
	WillCascade        bool
}

// CascadeForecaster fits an exponential growth rate across the oldest and
// most recent sample, projects intensity HorizonMinutes forward, and maps
// the projection through a saturating curve into a [0,1] probability.
type CascadeForecaster struct {
	HorizonMinutes float64
	ThresholdRate  float64 // the intensity at which projected/(projected+ThresholdRate) == 0.5
	CascadeAt      float64 // WillCascade fires once CascadeProbability >= this
}

func NewCascadeForecaster(horizonMinutes, thresholdRate, cascadeAt float64) *CascadeForecaster {
	return &CascadeForecaster{HorizonMinutes: horizonMinutes, ThresholdRate: thresholdRate, CascadeAt: cascadeAt}
}

// Forecast computes the growth rate between samples' oldest and most recent
// readings (samples need not be sorted; the extremes by MinutesAgo are
// used) and projects it HorizonMinutes forward. Fewer than two usable
// samples forecasts flat (zero growth) from whatever single reading exists.
func (f *CascadeForecaster) Forecast(samples []SignalSample) Forecast {
	if len(samples) == 0 {
		return Forecast{}
	}
	oldest, latest := samples[0], samples[0]
	for _, s := range samples[1:] {
		if s.MinutesAgo > oldest.MinutesAgo {
			oldest = s
		}
		if s.MinutesAgo < latest.MinutesAgo {
			latest = s
		}
	}

	elapsed := oldest.MinutesAgo - latest.MinutesAgo
	growthRate := 0.0
	if elapsed > 0 && oldest.Intensity > 0 && latest.Intensity > 0 {
		growthRate = math.Log(latest.Intensity/oldest.Intensity) / elapsed
	}
	return f.project(growthRate, latest.Intensity)
}

func (f *CascadeForecaster) project(growthRate, currentIntensity float64) Forecast {
	horizon := f.HorizonMinutes
	if horizon <= 0 {
		horizon = 30
	}
	threshold := f.ThresholdRate
	if threshold <= 0 {
		threshold = 1
	}

	projected := currentIntensity * math.Exp(growthRate*horizon)
	probability := projected / (projected + threshold)

	return Forecast{
		GrowthRate:         growthRate,
		ProjectedIntensity: projected,
		CascadeProbability: probability,
		WillCascade:        probability >= f.CascadeAt,
	}
}
