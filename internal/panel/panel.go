// Package panel implements PanelLayer: deterministic pixel-frame
// generation standing in for the photon-counting detector's analog
// front end.
package panel

import (
	"math/rand"

	"github.com/holee9/panelsim/internal/protocol"
)

// Pattern selects which deterministic pixel function PanelLayer uses.
type Pattern int

const (
	Counter Pattern = iota
	Checkerboard
	FlatField
)

// validBitDepths enumerates the only bit depths PanelLayer accepts.
var validBitDepths = map[uint32]bool{8: true, 10: true, 12: true, 14: true, 16: true}

// Defect is one fixed defect-map entry overriding the random defect model.
type Defect struct {
	Row, Col uint32
}

// Config parameterizes one PanelLayer.Process call.
type Config struct {
	Width, Height uint32
	BitDepth      uint32
	Pattern       Pattern
	Seed          int64
	Baseline      uint16  // FlatField only
	NoiseSigma    float64 // FlatField only; 0 disables noise
	DefectRate    float64 // probability per pixel, 0 disables
	// DefectMap, when non-empty, overrides DefectRate with exact fixed
	// positions — the factory defect map a real detector panel ships
	// with, recovered from the original system's scope (SPEC_FULL.md §4).
	DefectMap []Defect
}

// Layer is PanelLayer: Initialize/Process/Reset/GetStatus, matching the
// common Simulator capability set spec.md §2 defines for every layer.
type Layer struct {
	cfg              Config
	framesGenerated  uint64
	lastFrameNumber  uint32
}

// NewLayer constructs a Layer in its zero (uninitialized) state.
func NewLayer() *Layer { return &Layer{} }

// Initialize validates and stores cfg for subsequent Process calls.
func (l *Layer) Initialize(cfg Config) error {
	if cfg.Width == 0 || cfg.Height == 0 {
		return protocol.NewError(protocol.KindInvalidConfig, "width and height must be non-zero")
	}
	if !validBitDepths[cfg.BitDepth] {
		return protocol.NewError(protocol.KindInvalidConfig, "bit_depth must be one of 8,10,12,14,16")
	}
	l.cfg = cfg
	return nil
}

// Process deterministically generates one Frame for frameNumber. Two
// calls with identical Config and frameNumber always produce identical
// pixels (spec.md §8 item 1).
func (l *Layer) Process(frameNumber uint32) (*protocol.Frame, error) {
	cfg := l.cfg
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, protocol.NewError(protocol.KindInvalidConfig, "layer not initialized")
	}

	maxValue := uint32(1)<<cfg.BitDepth - 1
	pixels := make([]uint16, cfg.Width*cfg.Height)

	switch cfg.Pattern {
	case Counter:
		mod := uint32(1) << cfg.BitDepth
		for r := uint32(0); r < cfg.Height; r++ {
			for c := uint32(0); c < cfg.Width; c++ {
				pixels[r*cfg.Width+c] = uint16((r*cfg.Width + c) % mod)
			}
		}
	case Checkerboard:
		for r := uint32(0); r < cfg.Height; r++ {
			for c := uint32(0); c < cfg.Width; c++ {
				if (r+c)&1 == 0 {
					pixels[r*cfg.Width+c] = uint16(maxValue)
				} else {
					pixels[r*cfg.Width+c] = 0
				}
			}
		}
	case FlatField:
		for i := range pixels {
			pixels[i] = cfg.Baseline
		}
	default:
		return nil, protocol.NewError(protocol.KindInvalidConfig, "unknown pattern")
	}

	// Both noise and defect draws come from the same seeded stream, in a
	// fixed row-major order, so identical (seed, noise_sigma, defect_rate)
	// always yields identical noise samples and defect positions.
	rng := rand.New(rand.NewSource(cfg.Seed))

	if cfg.Pattern == FlatField && cfg.NoiseSigma > 0 {
		for i := range pixels {
			noisy := float64(pixels[i]) + rng.NormFloat64()*cfg.NoiseSigma
			pixels[i] = clamp(noisy, maxValue)
		}
	}

	applyDefects(pixels, cfg, rng)

	frame, err := protocol.NewFrame(frameNumber, cfg.Width, cfg.Height, pixels)
	if err != nil {
		return nil, err
	}
	l.framesGenerated++
	l.lastFrameNumber = frameNumber
	return frame, nil
}

func applyDefects(pixels []uint16, cfg Config, rng *rand.Rand) {
	if len(cfg.DefectMap) > 0 {
		for _, d := range cfg.DefectMap {
			if d.Row < cfg.Height && d.Col < cfg.Width {
				pixels[d.Row*cfg.Width+d.Col] = 0
			}
		}
		return
	}
	if cfg.DefectRate <= 0 {
		return
	}
	for i := range pixels {
		if rng.Float64() < cfg.DefectRate {
			pixels[i] = 0
		}
	}
}

func clamp(v float64, maxValue uint32) uint16 {
	if v < 0 {
		return 0
	}
	if v > float64(maxValue) {
		return uint16(maxValue)
	}
	return uint16(v)
}

// Reset clears generation counters. Configuration persists (Initialize
// must be called again only to change it).
func (l *Layer) Reset() {
	l.framesGenerated = 0
	l.lastFrameNumber = 0
}

// GetStatus returns the layer's counters, per spec.md §7's user-visible
// status contract. PanelLayer has no drops/CRC errors/timeouts of its
// own; FramesReceived doubles as frames generated.
func (l *Layer) GetStatus() string {
	return protocol.Status("panel", protocol.Counters{FramesReceived: l.framesGenerated})
}
