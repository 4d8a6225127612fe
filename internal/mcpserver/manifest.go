package mcpserver

import (
	"encoding/json"
)

const (
	manifestSchema = "https://static.modelcontextprotocol.io/schemas/2025-10-17/server.schema.json"
	repositoryURL  = "https://github.com/panbanda/locksmith"
	imageName      = "ghcr.io/panbanda/locksmith"
)

// Manifest is the registry server.json document.
type Manifest struct {
	Schema      string      `json:"$schema"`
	Name        string      `json:"name"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description"`
	Version     string      `json:"version"`
	WebsiteURL  string      `json:"websiteUrl,omitempty"`
	Repository  *Repository `json:"repository,omitempty"`
	Packages    []Package   `json:"packages,omitempty"`
}

type Repository struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

// Package is one way to run the server.
type Package struct {
	RegistryType     string     `json:"registryType"`
	Identifier       string     `json:"identifier"`
	Version          string     `json:"version,omitempty"`
	RuntimeArguments []Argument `json:"runtimeArguments,omitempty"`
	PackageArguments []Argument `json:"packageArguments,omitempty"`
	Transport        Transport  `json:"transport"`
}

// Argument is a positional or named (flag) argument.
type Argument struct {
	Type        string `json:"type"`
	Name        string `json:"name,omitempty"`
	Value       string `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
}

type Transport struct {
	Type string `json:"type"`
}

// GenerateManifest creates the MCP server manifest JSON. An empty version
// is published as 0.0.0.
func GenerateManifest(version string) ([]byte, error) {
	if version == "" {
		version = "0.0.0"
	}

	// The host launches the container with the project mounted at
	// /workspace, and tool calls default to that root.
	image := Package{
		RegistryType: "oci",
		Identifier:   imageName + ":" + version,
		RuntimeArguments: []Argument{{
			Type:        "named",
			Name:        "-v",
			Value:       "{project_dir}:/workspace:ro",
			Description: "Java sources to analyze",
		}},
		PackageArguments: []Argument{
			{Type: "positional", Value: "mcp"},
			{Type: "named", Name: "--log-format", Value: "json"},
		},
		Transport: Transport{Type: "stdio"},
	}

	m := Manifest{
		Schema:      manifestSchema,
		Name:        "io.github.panbanda/locksmith",
		Title:       "locksmith",
		Description: "Static lock-order deadlock detection for Java",
		Version:     version,
		WebsiteURL:  repositoryURL,
		Repository:  &Repository{URL: repositoryURL, Source: "github"},
		Packages:    []Package{image},
	}
	return json.MarshalIndent(m, "", "  ")
}
