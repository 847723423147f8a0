package traffic

import (
	"fmt"
	"time"

	"github.com/banshee-data/trafficsim/internal/config"
)

// Params tunes the curve follower's speed controller and steering.
type Params struct {
	SpeedParamIncFactor float64
	SpeedParamDecFactor float64
	MinSpeedParameter   float64
	AvgSpeedParameter   float64
	MaxSpeedParameter   float64
	StableEpsilon       float64

	BrakingStep         float64 // braking factor change per tick
	BrakingDeceleration float64 // largest speed drop per tick outside Alert
	HalfHeight          float64
	TurnSpeedThreshold  float64
	TurnResistance      float64 // 0 snaps to the desired heading, 1 never turns
	SteeringFactor      float64
	DrawMargin          float64
	PursuitHorizon      time.Duration
	LaneDwell           time.Duration // time on a new lane before a cruise lane change
}

// DefaultParams returns the built-in parameter set.
func DefaultParams() Params {
	return ParamsFromTuning(config.EmptyTuningConfig())
}

// ParamsFromTuning builds Params from a tuning config, using defaults for any
// unset field.
func ParamsFromTuning(cfg *config.TuningConfig) Params {
	return Params{
		SpeedParamIncFactor: cfg.GetSpeedParamIncFactor(),
		SpeedParamDecFactor: cfg.GetSpeedParamDecFactor(),
		MinSpeedParameter:   cfg.GetMinSpeedParameter(),
		AvgSpeedParameter:   cfg.GetAvgSpeedParameter(),
		MaxSpeedParameter:   cfg.GetMaxSpeedParameter(),
		StableEpsilon:       cfg.GetStableEpsilon(),
		BrakingStep:         cfg.GetBrakingStep(),
		BrakingDeceleration: cfg.GetBrakingDeceleration(),
		HalfHeight:          cfg.GetHalfHeight(),
		TurnSpeedThreshold:  cfg.GetTurnSpeedThreshold(),
		TurnResistance:      cfg.GetTurnResistance(),
		SteeringFactor:      cfg.GetSteeringFactor(),
		DrawMargin:          cfg.GetDrawMargin(),
		PursuitHorizon:      cfg.GetPursuitHorizon(),
		LaneDwell:           cfg.GetLaneDwell(),
	}
}

// AccelerationCurveFromTuning fits the configured acceleration curve.
func AccelerationCurveFromTuning(cfg *config.TuningConfig) (*AccelerationCurve, error) {
	c, err := NewAccelerationCurve(cfg.GetAccelerationCurve())
	if err != nil {
		return nil, fmt.Errorf("acceleration_curve: %w", err)
	}
	return c, nil
}
