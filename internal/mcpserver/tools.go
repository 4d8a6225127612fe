package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	toon "github.com/toon-format/toon-go"

	"github.com/panbanda/locksmith/internal/output"
	"github.com/panbanda/locksmith/internal/service/analysis"
	"github.com/panbanda/locksmith/pkg/analyzer/deadlock"
	"github.com/panbanda/locksmith/pkg/analyzer/locktrace"
)

// AnalyzeInput is the base input for all tools.
type AnalyzeInput struct {
	Paths       []string `json:"paths,omitempty" jsonschema:"Files or directories to analyze. Defaults to the configured root."`
	EntryPoints []string `json:"entry_points,omitempty" jsonschema:"Entry points as Class#method globs, e.g. com.acme.*#run. Defaults to the configured entry points."`
	Format      string   `json:"format,omitempty" jsonschema:"Output format: toon (default), json, or markdown."`
}

// DeadlocksInput configures analyze_deadlocks.
type DeadlocksInput struct {
	AnalyzeInput
	ShowTraces bool `json:"show_traces,omitempty" jsonschema:"Include the per-function lock event traces."`
}

// DependenciesInput configures lock_dependencies.
type DependenciesInput struct {
	AnalyzeInput
	Lock string `json:"lock,omitempty" jsonschema:"Only show nestings where this lock name (substring match) is held or acquired."`
}

func getFormat(input AnalyzeInput) output.Format {
	switch strings.ToLower(input.Format) {
	case "json":
		return output.FormatJSON
	case "markdown", "md":
		return output.FormatMarkdown
	default:
		return output.FormatTOON
	}
}

func getEntryPoints(input AnalyzeInput) ([]locktrace.Matcher, error) {
	var out []locktrace.Matcher
	for _, s := range input.EntryPoints {
		m, err := locktrace.ParseEntryPoint(s)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func formatOutput(data any, format output.Format) (string, error) {
	switch format {
	case output.FormatJSON:
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", err
		}
		return string(out), nil
	case output.FormatMarkdown:
		if r, ok := data.(output.Renderable); ok {
			var buf bytes.Buffer
			if err := r.RenderMarkdown(&buf); err != nil {
				return "", err
			}
			return buf.String(), nil
		}
		out, err := toon.Marshal(data, toon.WithIndent(2))
		if err != nil {
			return "", err
		}
		return "```\n" + string(out) + "\n```", nil
	default:
		if r, ok := data.(output.Renderable); ok {
			data = r.RenderData()
		}
		out, err := toon.Marshal(data, toon.WithIndent(2))
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
}

func toolResult(data any, format output.Format) (*mcp.CallToolResult, any, error) {
	if r, ok := data.(output.Renderable); ok && format == output.FormatJSON {
		data = r.RenderData()
	}
	text, err := formatOutput(data, format)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}, nil, nil
}

func toolError(msg string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Error: " + msg},
		},
		IsError: true,
	}, nil, nil
}

func (s *Server) analyze(ctx context.Context, input AnalyzeInput, withTraces bool) (*analysis.Result, error) {
	entries, err := getEntryPoints(input)
	if err != nil {
		return nil, err
	}
	svc := analysis.New(analysis.WithConfig(s.config), analysis.WithLogger(s.logger))
	return svc.Analyze(ctx, analysis.Options{
		Paths:       input.Paths,
		EntryPoints: entries,
		WithTraces:  withTraces,
	})
}

func (s *Server) handleAnalyzeDeadlocks(ctx context.Context, req *mcp.CallToolRequest, input DeadlocksInput) (*mcp.CallToolResult, any, error) {
	res, err := s.analyze(ctx, input.AnalyzeInput, input.ShowTraces)
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(output.NewDeadlockReport(res.Report), getFormat(input.AnalyzeInput))
}

// lockDependencies is the lock_dependencies payload.
type lockDependencies struct {
	Dependencies []deadlock.Edge     `json:"dependencies" toon:"dependencies"`
	Locks        []deadlock.LockInfo `json:"locks" toon:"locks"`
}

func (s *Server) handleLockDependencies(ctx context.Context, req *mcp.CallToolRequest, input DependenciesInput) (*mcp.CallToolResult, any, error) {
	res, err := s.analyze(ctx, input.AnalyzeInput, false)
	if err != nil {
		return toolError(err.Error())
	}

	out := lockDependencies{Dependencies: []deadlock.Edge{}, Locks: res.Report.Locks}
	for _, e := range res.Report.Dependencies {
		if input.Lock == "" || strings.Contains(e.Outer, input.Lock) || strings.Contains(e.Inner, input.Lock) {
			out.Dependencies = append(out.Dependencies, e)
		}
	}
	return toolResult(out, getFormat(input.AnalyzeInput))
}
