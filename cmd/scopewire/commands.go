package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"

	"github.com/rawbytedev/scopewire"
	"github.com/rawbytedev/scopewire/pkg/compactwire"
	"github.com/rawbytedev/scopewire/pkg/inspect"
)

type command struct {
	cfg    Config
	log    *slog.Logger
	out    io.Writer
	raw    bool
	digest bool
}

// input is a decoded FILE operand.
type input struct {
	main     []byte
	segments []scopewire.Buffer
	codec    compactwire.Codec
	// extensions is -1 for raw input.
	extensions int
}

func (c *command) load(path string) (*input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if c.raw {
		c.log.Debug("loaded raw buffer", "path", path, "bytes", len(data))
		return &input{main: data, segments: []scopewire.Buffer{{Data: data}}, extensions: -1}, nil
	}
	df, err := compactwire.DecodeDataFrame(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	in := &input{
		main:       df.Main(),
		segments:   df.Segments,
		codec:      df.Codec,
		extensions: len(df.Extensions()),
	}
	c.log.Debug("decoded frame", "path", path, "bytes", len(data), "codec", df.Codec, "segments", len(df.Segments))
	return in, nil
}

var (
	objectColor = color.New(color.FgCyan, color.Bold)
	scopeColor  = color.New(color.FgYellow)
	emptyColor  = color.New(color.FgHiBlack)
	valueColor  = color.New(color.FgGreen)
	errorColor  = color.New(color.FgRed, color.Bold)
)

func paint(n inspect.Node) *color.Color {
	switch {
	case n.Tag == scopewire.TagObject || n.Tag == scopewire.TagObjectEnd:
		return objectColor
	case n.Tag.IsSentinel():
		return scopeColor
	case n.Tag.IsEmpty():
		return emptyColor
	default:
		return valueColor
	}
}

func (c *command) dump(path string) error {
	in, err := c.load(path)
	if err != nil {
		return err
	}
	if !c.raw {
		fmt.Fprintf(c.out, "frame: codec=%s segments=%d main=%d bytes\n", in.codec, len(in.segments), len(in.main))
	}
	if c.digest {
		fmt.Fprintf(c.out, "digest: %s\n", compactwire.Digest(in.segments))
	}
	nodes, err := c.cfg.Walker(in.extensions).Walk(in.main)
	for _, n := range nodes {
		fmt.Fprintf(c.out, "%06x ", n.Offset)
		paint(n).Fprintln(c.out, n.String())
	}
	if err != nil {
		errorColor.Fprintf(c.out, "error: %v\n", err)
		return err
	}
	return nil
}

func (c *command) validate(path string) error {
	in, err := c.load(path)
	if err != nil {
		return err
	}
	nodes, err := c.cfg.Walker(in.extensions).Walk(in.main)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Fprintf(c.out, "%s: ok, %d tags\n", path, len(nodes))
	return nil
}

func (c *command) reframe(from, to string) error {
	codec, err := compactwire.ParseCodec(c.cfg.Codec)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(from)
	if err != nil {
		return err
	}
	df, err := compactwire.DecodeDataFrame(data)
	if err != nil {
		return fmt.Errorf("%s: %w", from, err)
	}
	frame, err := compactwire.EncodeDataFrame(df.Segments, codec)
	if err != nil {
		return err
	}
	if err := os.WriteFile(to, frame, 0o644); err != nil {
		return err
	}
	c.log.Info("reframed",
		"from", df.Codec, "to", codec,
		"in_bytes", len(data), "out_bytes", len(frame),
		"digest", compactwire.Digest(df.Segments).String())
	return nil
}
