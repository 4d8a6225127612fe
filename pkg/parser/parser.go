package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
)

// Language represents a supported source language.
type Language string

const (
	LangJava    Language = "java"
	LangUnknown Language = "unknown"
)

// Parser wraps a tree-sitter parser. A Parser is not safe for concurrent
// use; create one per worker.
type Parser struct {
	parser *sitter.Parser
}

// ParseResult contains the syntax tree and its source.
type ParseResult struct {
	Tree     *sitter.Tree
	Language Language
	Source   []byte
	Path     string
}

// Root returns the root node of the tree.
func (r *ParseResult) Root() *sitter.Node {
	return r.Tree.RootNode()
}

// Close releases the tree.
func (r *ParseResult) Close() {
	if r.Tree != nil {
		r.Tree.Close()
	}
}

// New creates a new parser instance.
func New() *Parser {
	return &Parser{
		parser: sitter.NewParser(),
	}
}

// ParseFile reads and parses a source file.
func (p *Parser) ParseFile(ctx context.Context, path string) (*ParseResult, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	lang := DetectLanguage(path)
	if lang == LangUnknown {
		return nil, fmt.Errorf("unsupported language for file: %s", path)
	}

	return p.Parse(ctx, source, lang, path)
}

// Parse parses source code with a specified language.
func (p *Parser) Parse(ctx context.Context, source []byte, lang Language, path string) (*ParseResult, error) {
	tsLang, err := GetTreeSitterLanguage(lang)
	if err != nil {
		return nil, err
	}

	p.parser.SetLanguage(tsLang)
	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}

	return &ParseResult{
		Tree:     tree,
		Language: lang,
		Source:   source,
		Path:     path,
	}, nil
}

// GetTreeSitterLanguage returns the tree-sitter grammar for lang.
func GetTreeSitterLanguage(lang Language) (*sitter.Language, error) {
	switch lang {
	case LangJava:
		return java.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
}

// DetectLanguage determines the language from a file path.
func DetectLanguage(path string) Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".java":
		return LangJava
	default:
		return LangUnknown
	}
}

// Close releases parser resources.
func (p *Parser) Close() {
	p.parser.Close()
}

// NodeVisitor is a function that visits syntax nodes.
type NodeVisitor func(node *sitter.Node, source []byte) bool

// Walk traverses the tree calling visitor for each node. Returning false
// skips the node's children.
func Walk(node *sitter.Node, source []byte, visitor NodeVisitor) {
	if node == nil {
		return
	}

	if !visitor(node, source) {
		return
	}

	for i := range int(node.ChildCount()) {
		Walk(node.Child(i), source, visitor)
	}
}

// FindNodesByType returns all nodes of a specific type.
func FindNodesByType(root *sitter.Node, source []byte, nodeType string) []*sitter.Node {
	var results []*sitter.Node
	Walk(root, source, func(n *sitter.Node, _ []byte) bool {
		if n.Type() == nodeType {
			results = append(results, n)
		}
		return true
	})
	return results
}

// GetNodeText extracts the source text for a node.
// Returns empty string if node is nil or byte offsets are out of bounds.
func GetNodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	start := node.StartByte()
	end := node.EndByte()
	if start > end || end > uint32(len(source)) {
		return ""
	}
	return string(source[start:end])
}

// FieldText returns the text of the named field child of node.
func FieldText(node *sitter.Node, field string, source []byte) string {
	if node == nil {
		return ""
	}
	return GetNodeText(node.ChildByFieldName(field), source)
}

// NamedChildren returns the named children of node.
func NamedChildren(node *sitter.Node) []*sitter.Node {
	if node == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, node.NamedChildCount())
	for i := range int(node.NamedChildCount()) {
		out = append(out, node.NamedChild(i))
	}
	return out
}

// HasChildOfType reports whether any direct child, named or anonymous,
// has the given type.
func HasChildOfType(node *sitter.Node, nodeType string) bool {
	if node == nil {
		return false
	}
	for i := range int(node.ChildCount()) {
		if node.Child(i).Type() == nodeType {
			return true
		}
	}
	return false
}

// ChildOfType returns the first direct child of the given type, or nil.
func ChildOfType(node *sitter.Node, nodeType string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := range int(node.ChildCount()) {
		if c := node.Child(i); c.Type() == nodeType {
			return c
		}
	}
	return nil
}

// Line returns the 1-based start line of node.
func Line(node *sitter.Node) int {
	if node == nil {
		return 0
	}
	return int(node.StartPoint().Row) + 1
}

// SyntaxErrors returns the 1-based lines of ERROR and MISSING nodes.
func SyntaxErrors(root *sitter.Node) []int {
	if root == nil || !root.HasError() {
		return nil
	}
	var lines []int
	Walk(root, nil, func(n *sitter.Node, _ []byte) bool {
		if n.IsError() || n.IsMissing() {
			lines = append(lines, Line(n))
			return false
		}
		return n.HasError()
	})
	return lines
}
