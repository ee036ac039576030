// scopewire inspects and re-frames scopewire data.
//
//	scopewire dump [--raw] [--digest] FILE
//	scopewire validate [--raw] FILE
//	scopewire reframe [--codec none|lz4|zstd] IN OUT
//
// FILE is a compactwire data frame unless --raw is given, in which case it
// is a bare main buffer with no no-copy segments.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

type flags struct {
	config   string
	logLevel string
	color    bool
	codec    string
	raw      bool
	digest   bool
}

func run(args []string, stdout, stderr io.Writer) error {
	var f flags
	fs := pflag.NewFlagSet("scopewire", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.config, "config", "", "path to a YAML config file (default $SCOPEWIRE_CONFIG)")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.BoolVar(&f.color, "color", true, "colorize dump output")
	fs.StringVar(&f.codec, "codec", "", "frame codec for reframe: none, lz4 or zstd")
	fs.BoolVar(&f.raw, "raw", false, "input is a bare main buffer rather than a frame")
	fs.BoolVar(&f.digest, "digest", false, "print the BLAKE3 segment digest")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: scopewire [flags] dump|validate FILE | reframe IN OUT\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(f.config, nil)
	if err != nil {
		return err
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fs.Changed("color") {
		cfg.Color = f.color
	}
	if fs.Changed("codec") {
		cfg.Codec = f.codec
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	color.NoColor = !cfg.Color

	c := &command{cfg: cfg, log: logger, out: stdout, raw: f.raw, digest: f.digest}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return errors.New("missing command")
	}
	switch name, operands := rest[0], rest[1:]; name {
	case "dump":
		if len(operands) != 1 {
			return errors.New("dump takes one FILE")
		}
		return c.dump(operands[0])
	case "validate":
		if len(operands) != 1 {
			return errors.New("validate takes one FILE")
		}
		return c.validate(operands[0])
	case "reframe":
		if len(operands) != 2 {
			return errors.New("reframe takes IN and OUT")
		}
		return c.reframe(operands[0], operands[1])
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}
