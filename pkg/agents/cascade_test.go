package agents

import (
	"math"
	"testing"
)

func TestCascadeForecasterGrowingTrendCascades(t *testing.T) {
	f := NewCascadeForecaster(30, 5.0, 0.6)
	forecast := f.Forecast([]SignalSample{
		{MinutesAgo: 10, Intensity: 1.0},
		{MinutesAgo: 0, Intensity: 8.0},
	})
	if forecast.GrowthRate <= 0 {
		t.Errorf("expected positive growth rate for a rising trend, got %v", forecast.GrowthRate)
	}
	if !forecast.WillCascade {
		t.Errorf("expected a steep rising trend to cross the cascade threshold, got %+v", forecast)
	}
	if forecast.CascadeProbability <= 0 || forecast.CascadeProbability >= 1 {
		t.Errorf("expected a probability in (0,1), got %v", forecast.CascadeProbability)
	}
}

func TestCascadeForecasterFlatTrendDoesNotCascade(t *testing.T) {
	f := NewCascadeForecaster(30, 5.0, 0.6)
	forecast := f.Forecast([]SignalSample{
		{MinutesAgo: 10, Intensity: 1.0},
		{MinutesAgo: 0, Intensity: 1.0},
	})
	if math.Abs(forecast.GrowthRate) > 1e-9 {
		t.Errorf("expected ~zero growth rate for a flat trend, got %v", forecast.GrowthRate)
	}
	if forecast.WillCascade {
		t.Errorf("expected a flat trend below threshold not to cascade, got %+v", forecast)
	}
}

func TestCascadeForecasterSingleSample(t *testing.T) {
	f := NewCascadeForecaster(30, 5.0, 0.6)
	forecast := f.Forecast([]SignalSample{{MinutesAgo: 0, Intensity: 2.0}})
	if forecast.GrowthRate != 0 {
		t.Errorf("expected zero growth rate with only one sample, got %v", forecast.GrowthRate)
	}
	if forecast.ProjectedIntensity != 2.0 {
		t.Errorf("expected the projected intensity to equal the single reading, got %v", forecast.ProjectedIntensity)
	}
}

func TestCascadeForecasterNoSamples(t *testing.T) {
	f := NewCascadeForecaster(30, 5.0, 0.6)
	forecast := f.Forecast(nil)
	if forecast != (Forecast{}) {
		t.Errorf("expected the zero Forecast for no samples, got %+v", forecast)
	}
}
