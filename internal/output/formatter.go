// Package output renders analysis results as text tables, markdown, JSON
// or TOON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	toon "github.com/toon-format/toon-go"
)

// Format represents an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatTOON     Format = "toon"
)

// ParseFormat converts a string to Format, defaulting to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "markdown", "md":
		return FormatMarkdown
	case "toon":
		return FormatTOON
	default:
		return FormatText
	}
}

// Renderable is data with its own text and markdown layout.
type Renderable interface {
	RenderText(w io.Writer, colored bool) error
	RenderMarkdown(w io.Writer) error
	// RenderData returns the value serialized for JSON and TOON.
	RenderData() any
}

// Formatter writes results in one format to stdout, a file or any writer.
type Formatter struct {
	format  Format
	writer  io.Writer
	file    *os.File
	colored bool
}

// NewFormatter writes to the file at path, or to stdout when path is
// empty. File output is never colored.
func NewFormatter(format Format, path string, colored bool) (*Formatter, error) {
	if path == "" {
		return NewWriterFormatter(format, os.Stdout, colored), nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return &Formatter{format: format, writer: f, file: f}, nil
}

// NewWriterFormatter creates a formatter writing to w.
func NewWriterFormatter(format Format, w io.Writer, colored bool) *Formatter {
	return &Formatter{format: format, writer: w, colored: colored}
}

// Close closes the output file, if any.
func (f *Formatter) Close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}

func (f *Formatter) Writer() io.Writer { return f.writer }
func (f *Formatter) Format() Format    { return f.format }
func (f *Formatter) Colored() bool     { return f.colored }

// Output writes data in the configured format. Values that are not
// Renderable have no text layout and are written as JSON, fenced in
// markdown.
func (f *Formatter) Output(data any) error {
	r, ok := data.(Renderable)
	switch f.format {
	case FormatJSON, FormatTOON:
		if ok {
			data = r.RenderData()
		}
		return f.encode(f.format, data)
	case FormatMarkdown:
		if ok {
			return r.RenderMarkdown(f.writer)
		}
		fmt.Fprintln(f.writer, "```json")
		if err := f.encode(FormatJSON, data); err != nil {
			return err
		}
		_, err := fmt.Fprintln(f.writer, "```")
		return err
	default:
		if ok {
			return r.RenderText(f.writer, f.colored)
		}
		return f.encode(FormatJSON, data)
	}
}

func (f *Formatter) encode(format Format, data any) error {
	if format == FormatTOON {
		out, err := toon.Marshal(data, toon.WithIndent(2))
		if err != nil {
			return fmt.Errorf("encode toon: %w", err)
		}
		_, err = fmt.Fprintf(f.writer, "%s\n", out)
		return err
	}
	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// Warning prints a warning line.
func (f *Formatter) Warning(format string, args ...any) {
	if f.colored {
		color.New(color.FgYellow).Fprintf(f.writer, format+"\n", args...)
		return
	}
	fmt.Fprintf(f.writer, "WARNING: "+format+"\n", args...)
}
