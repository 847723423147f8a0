package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for simulation tuning.
// Every field is optional: the Get* methods fall back to the built-in
// defaults, so partial configs are safe.
type TuningConfig struct {
	// Speed parameter controller
	SpeedParamIncFactor *float64 `json:"speed_param_inc_factor,omitempty"`
	SpeedParamDecFactor *float64 `json:"speed_param_dec_factor,omitempty"`
	MinSpeedParameter   *float64 `json:"min_speed_parameter,omitempty"`
	AvgSpeedParameter   *float64 `json:"avg_speed_parameter,omitempty"`
	MaxSpeedParameter   *float64 `json:"max_speed_parameter,omitempty"`
	StableEpsilon       *float64 `json:"stable_epsilon,omitempty"`

	// Braking and motion
	BrakingStep         *float64 `json:"braking_step,omitempty"`
	BrakingDeceleration *float64 `json:"braking_deceleration,omitempty"`
	HalfHeight          *float64 `json:"half_height,omitempty"`
	TurnSpeedThreshold  *float64 `json:"turn_speed_threshold,omitempty"`
	TurnResistance      *float64 `json:"turn_resistance,omitempty"`
	SteeringFactor      *float64 `json:"steering_factor,omitempty"`
	DrawMargin          *float64 `json:"draw_margin,omitempty"`
	PursuitHorizon      *string  `json:"pursuit_horizon,omitempty"` // duration string like "1s"
	LaneDwell           *string  `json:"lane_dwell,omitempty"`      // time on a new lane before cruising off it again

	// AccelerationCurve keys are [speed deficit, max speed change per tick].
	AccelerationCurve *[][2]float64 `json:"acceleration_curve,omitempty"`

	// Curve construction
	HandleAngleThresholdDeg *float64 `json:"handle_angle_threshold_deg,omitempty"`
	HandleMaxSpanRatio      *float64 `json:"handle_max_span_ratio,omitempty"`

	// Simulation host
	TickRate       *int       `json:"tick_rate,omitempty"` // ticks per second
	TriggerRadius  *float64   `json:"trigger_radius,omitempty"`
	SampleEvery    *int       `json:"sample_every,omitempty"` // ticks between recorded samples
	AgentTopSpeeds *[]float64 `json:"agent_top_speeds,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

var (
	defaultAccelerationCurve = [][2]float64{{0, 0.02}, {0.5, 0.15}, {1, 0.3}}
	defaultAgentTopSpeeds    = []float64{16, 22, 19, 25, 14, 20}
)

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field set to its
// built-in default.
func DefaultTuningConfig() *TuningConfig {
	c := EmptyTuningConfig()
	curve := c.GetAccelerationCurve()
	speeds := c.GetAgentTopSpeeds()
	return &TuningConfig{
		SpeedParamIncFactor:     ptrFloat64(c.GetSpeedParamIncFactor()),
		SpeedParamDecFactor:     ptrFloat64(c.GetSpeedParamDecFactor()),
		MinSpeedParameter:       ptrFloat64(c.GetMinSpeedParameter()),
		AvgSpeedParameter:       ptrFloat64(c.GetAvgSpeedParameter()),
		MaxSpeedParameter:       ptrFloat64(c.GetMaxSpeedParameter()),
		StableEpsilon:           ptrFloat64(c.GetStableEpsilon()),
		BrakingStep:             ptrFloat64(c.GetBrakingStep()),
		BrakingDeceleration:     ptrFloat64(c.GetBrakingDeceleration()),
		HalfHeight:              ptrFloat64(c.GetHalfHeight()),
		TurnSpeedThreshold:      ptrFloat64(c.GetTurnSpeedThreshold()),
		TurnResistance:          ptrFloat64(c.GetTurnResistance()),
		SteeringFactor:          ptrFloat64(c.GetSteeringFactor()),
		DrawMargin:              ptrFloat64(c.GetDrawMargin()),
		PursuitHorizon:          ptrString(c.GetPursuitHorizon().String()),
		LaneDwell:               ptrString(c.GetLaneDwell().String()),
		AccelerationCurve:       &curve,
		HandleAngleThresholdDeg: ptrFloat64(c.GetHandleAngleThresholdDeg()),
		HandleMaxSpanRatio:      ptrFloat64(c.GetHandleMaxSpanRatio()),
		TickRate:                ptrInt(c.GetTickRate()),
		TriggerRadius:           ptrFloat64(c.GetTriggerRadius()),
		SampleEvery:             ptrInt(c.GetSampleEvery()),
		AgentTopSpeeds:          &speeds,
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	positive := map[string]*float64{
		"speed_param_inc_factor": c.SpeedParamIncFactor,
		"speed_param_dec_factor": c.SpeedParamDecFactor,
		"min_speed_parameter":    c.MinSpeedParameter,
		"stable_epsilon":         c.StableEpsilon,
		"trigger_radius":         c.TriggerRadius,
	}
	names := slices.Sorted(maps.Keys(positive))
	for _, name := range names {
		if v := positive[name]; v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}

	minSP, avgSP, maxSP := c.GetMinSpeedParameter(), c.GetAvgSpeedParameter(), c.GetMaxSpeedParameter()
	if !(minSP <= avgSP && avgSP <= maxSP) {
		return fmt.Errorf("speed parameters must satisfy min <= avg <= max, got %g/%g/%g", minSP, avgSP, maxSP)
	}

	if c.TurnResistance != nil {
		if *c.TurnResistance < 0 || *c.TurnResistance > 1 {
			return fmt.Errorf("turn_resistance must be between 0 and 1, got %f", *c.TurnResistance)
		}
	}

	if c.BrakingStep != nil {
		if *c.BrakingStep < 0 || *c.BrakingStep > 1 {
			return fmt.Errorf("braking_step must be between 0 and 1, got %f", *c.BrakingStep)
		}
	}

	if c.BrakingDeceleration != nil && *c.BrakingDeceleration < 0 {
		return fmt.Errorf("braking_deceleration must be non-negative, got %f", *c.BrakingDeceleration)
	}

	if c.HandleAngleThresholdDeg != nil {
		if *c.HandleAngleThresholdDeg < 0 || *c.HandleAngleThresholdDeg >= 180 {
			return fmt.Errorf("handle_angle_threshold_deg must be in [0, 180), got %f", *c.HandleAngleThresholdDeg)
		}
	}

	if c.HandleMaxSpanRatio != nil && *c.HandleMaxSpanRatio < 0 {
		return fmt.Errorf("handle_max_span_ratio must be non-negative, got %f", *c.HandleMaxSpanRatio)
	}

	if c.PursuitHorizon != nil && *c.PursuitHorizon != "" {
		d, err := time.ParseDuration(*c.PursuitHorizon)
		if err != nil {
			return fmt.Errorf("invalid pursuit_horizon '%s': %w", *c.PursuitHorizon, err)
		}
		if d <= 0 {
			return fmt.Errorf("pursuit_horizon must be positive, got %s", d)
		}
	}

	if c.LaneDwell != nil && *c.LaneDwell != "" {
		d, err := time.ParseDuration(*c.LaneDwell)
		if err != nil {
			return fmt.Errorf("invalid lane_dwell '%s': %w", *c.LaneDwell, err)
		}
		if d < 0 {
			return fmt.Errorf("lane_dwell must be non-negative, got %s", d)
		}
	}

	if c.AccelerationCurve != nil {
		keys := *c.AccelerationCurve
		if len(keys) < 2 {
			return fmt.Errorf("acceleration_curve needs at least 2 keys, got %d", len(keys))
		}
		for i := 1; i < len(keys); i++ {
			if keys[i][0] <= keys[i-1][0] {
				return fmt.Errorf("acceleration_curve keys must be strictly increasing at index %d", i)
			}
		}
	}

	if c.TickRate != nil && *c.TickRate <= 0 {
		return fmt.Errorf("tick_rate must be positive, got %d", *c.TickRate)
	}

	if c.SampleEvery != nil && *c.SampleEvery < 0 {
		return fmt.Errorf("sample_every must be non-negative, got %d", *c.SampleEvery)
	}

	if c.AgentTopSpeeds != nil {
		for i, s := range *c.AgentTopSpeeds {
			if s <= 0 {
				return fmt.Errorf("agent_top_speeds[%d] must be positive, got %f", i, s)
			}
		}
	}

	return nil
}

// GetSpeedParamIncFactor returns the speed_param_inc_factor value or the default.
func (c *TuningConfig) GetSpeedParamIncFactor() float64 {
	if c.SpeedParamIncFactor == nil {
		return 3.5
	}
	return *c.SpeedParamIncFactor
}

// GetSpeedParamDecFactor returns the speed_param_dec_factor value or the default.
func (c *TuningConfig) GetSpeedParamDecFactor() float64 {
	if c.SpeedParamDecFactor == nil {
		return 3.5
	}
	return *c.SpeedParamDecFactor
}

// GetMinSpeedParameter returns the min_speed_parameter value or the default.
func (c *TuningConfig) GetMinSpeedParameter() float64 {
	if c.MinSpeedParameter == nil {
		return 15
	}
	return *c.MinSpeedParameter
}

// GetAvgSpeedParameter returns the avg_speed_parameter value or the default.
func (c *TuningConfig) GetAvgSpeedParameter() float64 {
	if c.AvgSpeedParameter == nil {
		return 45
	}
	return *c.AvgSpeedParameter
}

// GetMaxSpeedParameter returns the max_speed_parameter value or the default.
func (c *TuningConfig) GetMaxSpeedParameter() float64 {
	if c.MaxSpeedParameter == nil {
		return 65
	}
	return *c.MaxSpeedParameter
}

// GetStableEpsilon returns the stable_epsilon value or the default.
func (c *TuningConfig) GetStableEpsilon() float64 {
	if c.StableEpsilon == nil {
		return 0.1
	}
	return *c.StableEpsilon
}

// GetBrakingStep returns the braking_step value or the default.
func (c *TuningConfig) GetBrakingStep() float64 {
	if c.BrakingStep == nil {
		return 0.01
	}
	return *c.BrakingStep
}

// GetBrakingDeceleration returns the braking_deceleration value or the default.
func (c *TuningConfig) GetBrakingDeceleration() float64 {
	if c.BrakingDeceleration == nil {
		return 0.2
	}
	return *c.BrakingDeceleration
}

// GetHalfHeight returns the half_height value or the default.
func (c *TuningConfig) GetHalfHeight() float64 {
	if c.HalfHeight == nil {
		return 0.8
	}
	return *c.HalfHeight
}

// GetTurnSpeedThreshold returns the turn_speed_threshold value or the default.
func (c *TuningConfig) GetTurnSpeedThreshold() float64 {
	if c.TurnSpeedThreshold == nil {
		return 0.1
	}
	return *c.TurnSpeedThreshold
}

// GetTurnResistance returns the turn_resistance value or the default.
func (c *TuningConfig) GetTurnResistance() float64 {
	if c.TurnResistance == nil {
		return 0.985
	}
	return *c.TurnResistance
}

// GetSteeringFactor returns the steering_factor value or the default.
func (c *TuningConfig) GetSteeringFactor() float64 {
	if c.SteeringFactor == nil {
		return 5
	}
	return *c.SteeringFactor
}

// GetDrawMargin returns the draw_margin value or the default.
func (c *TuningConfig) GetDrawMargin() float64 {
	if c.DrawMargin == nil {
		return 1
	}
	return *c.DrawMargin
}

// GetPursuitHorizon parses and returns the PursuitHorizon as a time.Duration.
func (c *TuningConfig) GetPursuitHorizon() time.Duration {
	if c.PursuitHorizon == nil || *c.PursuitHorizon == "" {
		return time.Second // default
	}
	d, err := time.ParseDuration(*c.PursuitHorizon)
	if err != nil || d <= 0 {
		return time.Second // default on parse error
	}
	return d
}

// GetLaneDwell returns the lane_dwell duration or the default of 2s.
func (c *TuningConfig) GetLaneDwell() time.Duration {
	if c.LaneDwell == nil || *c.LaneDwell == "" {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(*c.LaneDwell)
	if err != nil || d < 0 {
		return 2 * time.Second
	}
	return d
}

// GetAccelerationCurve returns a copy of the acceleration_curve keys or the default.
func (c *TuningConfig) GetAccelerationCurve() [][2]float64 {
	src := defaultAccelerationCurve
	if c.AccelerationCurve != nil {
		src = *c.AccelerationCurve
	}
	return append([][2]float64(nil), src...)
}

// GetHandleAngleThresholdDeg returns the handle_angle_threshold_deg value or the default.
func (c *TuningConfig) GetHandleAngleThresholdDeg() float64 {
	if c.HandleAngleThresholdDeg == nil {
		return 5
	}
	return *c.HandleAngleThresholdDeg
}

// GetHandleMaxSpanRatio returns the handle_max_span_ratio value or the default.
func (c *TuningConfig) GetHandleMaxSpanRatio() float64 {
	if c.HandleMaxSpanRatio == nil {
		return 4
	}
	return *c.HandleMaxSpanRatio
}

// GetTickRate returns the tick_rate value or the default.
func (c *TuningConfig) GetTickRate() int {
	if c.TickRate == nil {
		return 50
	}
	return *c.TickRate
}

// GetTickInterval returns the wall-clock duration of one tick.
func (c *TuningConfig) GetTickInterval() time.Duration {
	return time.Second / time.Duration(c.GetTickRate())
}

// GetTriggerRadius returns the trigger_radius value or the default.
func (c *TuningConfig) GetTriggerRadius() float64 {
	if c.TriggerRadius == nil {
		return 12
	}
	return *c.TriggerRadius
}

// GetSampleEvery returns the sample_every value or the default. Zero disables
// sample recording.
func (c *TuningConfig) GetSampleEvery() int {
	if c.SampleEvery == nil {
		return 10
	}
	return *c.SampleEvery
}

// GetAgentTopSpeeds returns a copy of the agent_top_speeds list or the default.
func (c *TuningConfig) GetAgentTopSpeeds() []float64 {
	src := defaultAgentTopSpeeds
	if c.AgentTopSpeeds != nil && len(*c.AgentTopSpeeds) > 0 {
		src = *c.AgentTopSpeeds
	}
	return append([]float64(nil), src...)
}
