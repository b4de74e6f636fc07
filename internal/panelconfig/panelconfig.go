// Package panelconfig loads PanelLayer/PipelineBuilder configuration and
// calibration data from YAML, the format samoyed's deviceid loader uses
// for its own runtime data file.
package panelconfig

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/holee9/panelsim/internal/host"
	"github.com/holee9/panelsim/internal/mcu"
	"github.com/holee9/panelsim/internal/panel"
	"github.com/holee9/panelsim/internal/pipeline"
	"github.com/holee9/panelsim/internal/protocol"
)

// Defect mirrors panel.Defect with YAML struct tags.
type Defect struct {
	Row uint32 `yaml:"row"`
	Col uint32 `yaml:"col"`
}

// PanelConfig is the YAML shape of PanelLayer's configuration.
type PanelConfig struct {
	Width      uint32   `yaml:"width"`
	Height     uint32   `yaml:"height"`
	BitDepth   uint32   `yaml:"bit_depth"`
	Pattern    string   `yaml:"pattern"` // "counter", "checkerboard", "flat_field"
	Seed       int64    `yaml:"seed"`
	Baseline   uint16   `yaml:"baseline"`
	NoiseSigma float64  `yaml:"noise_sigma"`
	DefectRate float64  `yaml:"defect_rate"`
	DefectMap  []Defect `yaml:"defect_map"`
}

// FaultConfig is the YAML shape of PipelineBuilder's fault injection.
type FaultConfig struct {
	Seed                         int64   `yaml:"seed"`
	PacketLossProbability        float64 `yaml:"packet_loss_probability"`
	HeaderCorruptProbability     float64 `yaml:"header_corrupt_probability"`
	PerLineCrcCorruptProbability float64 `yaml:"per_line_crc_corrupt_probability"`
}

// McuConfig is the YAML shape of McuLayer's configuration.
type McuConfig struct {
	MaxPayload        int    `yaml:"max_payload"`
	RingCapacity      int    `yaml:"ring_capacity"`
	CrcStormThreshold int    `yaml:"crc_storm_threshold"`
	SourcePort        uint16 `yaml:"source_port"`
	DestinationPort   uint16 `yaml:"destination_port"`
}

// HostConfig is the YAML shape of HostLayer's configuration.
type HostConfig struct {
	TimeoutMs         int64 `yaml:"timeout_ms"`
	ZeroFillOnTimeout bool  `yaml:"zero_fill_on_timeout"`
}

// PipelineConfig is the top-level YAML document driving one
// PipelineBuilder run: panel generation, MCU/Host tuning and fault
// injection all in one file, so a calibration run and a fault-injection
// run differ only by which sections are present.
type PipelineConfig struct {
	Panel PanelConfig `yaml:"panel"`
	Mcu   McuConfig   `yaml:"mcu"`
	Host  HostConfig  `yaml:"host"`
	Fault FaultConfig `yaml:"fault"`
}

var patternNames = map[string]panel.Pattern{
	"counter":      panel.Counter,
	"checkerboard": panel.Checkerboard,
	"flat_field":   panel.FlatField,
}

// Load reads and parses a PipelineConfig from path.
func Load(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, protocol.WrapError(protocol.KindIoError, "reading config file", err)
	}
	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, protocol.WrapError(protocol.KindInvalidConfig, "parsing config file", err)
	}
	return &cfg, nil
}

// ToPipelineConfig converts the YAML document into the typed pipeline.Config
// each layer's Initialize expects.
func (c *PipelineConfig) ToPipelineConfig() (pipeline.Config, error) {
	pattern, ok := patternNames[c.Panel.Pattern]
	if !ok && c.Panel.Pattern != "" {
		return pipeline.Config{}, protocol.NewError(protocol.KindInvalidConfig, "unknown pattern: "+c.Panel.Pattern)
	}

	defects := make([]panel.Defect, len(c.Panel.DefectMap))
	for i, d := range c.Panel.DefectMap {
		defects[i] = panel.Defect{Row: d.Row, Col: d.Col}
	}

	return pipeline.Config{
		Panel: panel.Config{
			Width:      c.Panel.Width,
			Height:     c.Panel.Height,
			BitDepth:   c.Panel.BitDepth,
			Pattern:    pattern,
			Seed:       c.Panel.Seed,
			Baseline:   c.Panel.Baseline,
			NoiseSigma: c.Panel.NoiseSigma,
			DefectRate: c.Panel.DefectRate,
			DefectMap:  defects,
		},
		Mcu: mcu.Config{
			Width:             c.Panel.Width,
			Height:            c.Panel.Height,
			BitDepth:          uint8(c.Panel.BitDepth),
			MaxPayload:        c.Mcu.MaxPayload,
			RingCapacity:      c.Mcu.RingCapacity,
			CrcStormThreshold: c.Mcu.CrcStormThreshold,
			SourcePort:        c.Mcu.SourcePort,
			DestinationPort:   c.Mcu.DestinationPort,
		},
		Host: host.Config{
			Timeout:           timeoutFromMs(c.Host.TimeoutMs),
			MaxPayload:        c.Mcu.MaxPayload,
			ZeroFillOnTimeout: c.Host.ZeroFillOnTimeout,
		},
		Fault: pipeline.FaultConfig{
			Seed:                         c.Fault.Seed,
			PacketLossProbability:        c.Fault.PacketLossProbability,
			HeaderCorruptProbability:     c.Fault.HeaderCorruptProbability,
			PerLineCrcCorruptProbability: c.Fault.PerLineCrcCorruptProbability,
		},
	}, nil
}

func timeoutFromMs(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
