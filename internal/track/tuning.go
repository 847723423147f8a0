package track

import "github.com/banshee-data/trafficsim/internal/config"

// CurveOptionsFromTuning builds curve options from a tuning config.
func CurveOptionsFromTuning(cfg *config.TuningConfig) CurveOptions {
	return CurveOptions{
		AngleThreshold: cfg.GetHandleAngleThresholdDeg(),
		MaxSpanRatio:   cfg.GetHandleMaxSpanRatio(),
	}
}
