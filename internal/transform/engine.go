package transform

import "github.com/i474232898/weather-ar-overlay/internal/sensor"

// Config holds the transform constants.
type Config struct {
	DepthGain float64 `yaml:"depth_gain"`
	// RotationRange is the tilt input range mapped onto the same visual rotation range.
	RotationRange Range `yaml:"rotation_range"`
	// ParallaxInput and ParallaxOutput map panel translation onto the inner counter-motion.
	ParallaxInput  Range       `yaml:"parallax_input"`
	ParallaxOutput Range       `yaml:"parallax_output"`
	Extrapolate    Extrapolate `yaml:"-"`
}

// DefaultConfig clamps both mappings to their declared input ranges.
func DefaultConfig() Config {
	return Config{
		DepthGain:      0.08,
		RotationRange:  Range{Min: -30, Max: 30},
		ParallaxInput:  Range{Min: -30, Max: 30},
		ParallaxOutput: Range{Min: 3, Max: -3},
		Extrapolate:    Clamp,
	}
}

// Input is the latest sensor state the transform depends on.
type Input struct {
	Acceleration sensor.Acceleration
	Tilt         sensor.Tilt
	BetaRad      float64
}

// Transform is the panel transform for one frame.
type Transform struct {
	TranslateX float64 `json:"translateX"`
	TranslateY float64 `json:"translateY"`
	RotateX    float64 `json:"rotateXDeg"`
	RotateY    float64 `json:"rotateYDeg"`
	ParallaxX  float64 `json:"parallaxX"`
	ParallaxY  float64 `json:"parallaxY"`
	Depth      float64 `json:"depth"`
}

// Engine is a pure mapping from Input to Transform.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Depth returns the depth factor for a beta rotation in radians.
func (e *Engine) Depth(betaRad float64) float64 {
	return DepthFactor(betaRad, e.cfg.DepthGain)
}

// Compute maps the input onto translation, rotation and parallax.
func (e *Engine) Compute(in Input) Transform {
	depth := e.Depth(in.BetaRad)
	tx := -in.Acceleration.X * depth
	ty := in.Acceleration.Y * depth

	mode := e.cfg.Extrapolate
	return Transform{
		TranslateX: tx,
		TranslateY: ty,
		RotateX:    Interpolate(in.Tilt.Beta, e.cfg.RotationRange, e.cfg.RotationRange, mode),
		RotateY:    Interpolate(in.Tilt.Gamma, e.cfg.RotationRange, e.cfg.RotationRange, mode),
		ParallaxX:  Interpolate(tx, e.cfg.ParallaxInput, e.cfg.ParallaxOutput, mode),
		ParallaxY:  Interpolate(ty, e.cfg.ParallaxInput, e.cfg.ParallaxOutput, mode),
		Depth:      depth,
	}
}
