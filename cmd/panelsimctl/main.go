// Command panelsimctl drives one PipelineBuilder run from the command
// line: load a config, generate N frames, and write the result to disk.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"

	"github.com/holee9/panelsim/internal/host"
	"github.com/holee9/panelsim/internal/panelconfig"
	"github.com/holee9/panelsim/internal/pipeline"
)

const (
	exitOK          = 0
	exitUsageError  = 1
	exitRuntimeFail = 2
)

func main() {
	var (
		input   = pflag.StringP("input", "i", "", "config YAML file (required)")
		output  = pflag.StringP("output", "o", "", "output frame file path")
		mode    = pflag.String("mode", "single", "single|continuous|calibration")
		frames  = pflag.Int("frames", 1, "number of frames to generate in continuous mode")
		format  = pflag.String("format", "raw", "raw|tiff output format")
		verbose = pflag.BoolP("verbose", "v", false, "enable verbose logging")
	)
	pflag.Parse()

	if *verbose {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		log.SetFlags(0)
	}

	if *input == "" {
		fmt.Fprintln(os.Stderr, "panelsimctl: -input is required")
		os.Exit(exitUsageError)
	}

	cfgDoc, err := panelconfig.Load(*input)
	if err != nil {
		log.Printf("panelsimctl: %v", err)
		os.Exit(exitUsageError)
	}

	cfg, err := cfgDoc.ToPipelineConfig()
	if err != nil {
		log.Printf("panelsimctl: %v", err)
		os.Exit(exitUsageError)
	}

	builder := pipeline.NewBuilder()
	if err := builder.Initialize(cfg); err != nil {
		log.Printf("panelsimctl: initialize failed: %v", err)
		os.Exit(exitUsageError)
	}

	n := 1
	switch *mode {
	case "single", "calibration":
		n = 1
	case "continuous":
		n = *frames
	default:
		fmt.Fprintf(os.Stderr, "panelsimctl: unknown mode %q\n", *mode)
		os.Exit(exitUsageError)
	}

	var lastFrameID uint32
	var haveFrame bool
	for i := 0; i < n; i++ {
		res, err := builder.RunOne(uint32(i))
		if res == nil {
			log.Printf("panelsimctl: frame %d failed: %v", i, err)
			os.Exit(exitRuntimeFail)
		}
		if res.Dropped {
			log.Printf("panelsimctl: frame %d dropped", i)
			continue
		}
		if !res.Success {
			log.Printf("panelsimctl: frame %d failed checkpoint verification: %v", i, err)
			continue
		}
		if res.Incomplete {
			log.Printf("panelsimctl: frame %d incomplete", i)
		}
		lastFrameID = res.FrameNumber
		haveFrame = true
		if *verbose {
			for _, line := range builder.GetStatus() {
				log.Println(line)
			}
		}
	}

	if *output != "" {
		if !haveFrame {
			log.Printf("panelsimctl: no successfully verified frame available to write")
			os.Exit(exitRuntimeFail)
		}
		frame, ok := builder.Storage().Get(lastFrameID)
		if !ok {
			log.Printf("panelsimctl: no frame available to write")
			os.Exit(exitRuntimeFail)
		}
		f, err := os.Create(*output)
		if err != nil {
			log.Printf("panelsimctl: %v", err)
			os.Exit(exitRuntimeFail)
		}
		defer f.Close()

		var writer host.Writer
		switch *format {
		case "raw":
			writer = host.RawWriter{}
		case "tiff":
			writer = host.TiffWriter{}
		default:
			fmt.Fprintf(os.Stderr, "panelsimctl: unknown format %q\n", *format)
			os.Exit(exitUsageError)
		}

		if err := writer.WriteFrame(f, frame); err != nil {
			log.Printf("panelsimctl: write failed: %v", err)
			os.Exit(exitRuntimeFail)
		}
	}

	os.Exit(exitOK)
}
