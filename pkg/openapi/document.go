// Package openapi parses the subset of OpenAPI documents a variant service publishes and locates
// the run request schema that drives the transformer.
package openapi

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNoSpec indicates no document is available for the variant.
	ErrNoSpec = errors.New("no openapi spec")

	// ErrSchemaNotFound indicates the document has no run request body schema.
	ErrSchemaNotFound = errors.New("run request schema not found")
)

// Paths probed for the run request body, in order.
var RunPaths = []string{"/playground/run", "/run", "/generate"}

type Document struct {
	OpenAPI    string               `json:"openapi"`
	Info       Info                 `json:"info"`
	Paths      map[string]*PathItem `json:"paths"`
	Components Components           `json:"components"`
}

type Info struct {
	Title   string `json:"title"`
	Version string `json:"version"`
}

type PathItem struct {
	Get  *Operation `json:"get,omitempty"`
	Post *Operation `json:"post,omitempty"`
}

type Operation struct {
	OperationID string       `json:"operationId,omitempty"`
	Summary     string       `json:"summary,omitempty"`
	RequestBody *RequestBody `json:"requestBody,omitempty"`
}

type RequestBody struct {
	Required bool                 `json:"required,omitempty"`
	Content  map[string]MediaType `json:"content"`
}

type MediaType struct {
	Schema *Schema `json:"schema"`
}

type Components struct {
	Schemas map[string]*Schema `json:"schemas,omitempty"`
}

// Parse decodes a JSON or YAML document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err == nil {
		return &doc, nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse openapi document: %w", err)
	}

	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize openapi document: %w", err)
	}

	if err := json.Unmarshal(normalized, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode openapi document: %w", err)
	}

	return &doc, nil
}

// RunRequestSchema returns the resolved request body schema of the run operation.
func RunRequestSchema(doc *Document) (*Schema, error) {
	if doc == nil {
		return nil, ErrNoSpec
	}

	for _, path := range RunPaths {
		item, ok := doc.Paths[path]
		if !ok || item == nil || item.Post == nil || item.Post.RequestBody == nil {
			continue
		}

		media, ok := item.Post.RequestBody.Content["application/json"]
		if !ok || media.Schema == nil {
			continue
		}

		return doc.Resolve(media.Schema), nil
	}

	return nil, ErrSchemaNotFound
}

// IsChat reports whether the request schema accepts a conversation history.
func IsChat(requestSchema *Schema) bool {
	if requestSchema == nil {
		return false
	}

	_, ok := requestSchema.Properties["messages"]

	return ok
}

// AgConfigSchema returns the configuration part of the request schema, or nil.
func AgConfigSchema(requestSchema *Schema) *Schema {
	if requestSchema == nil {
		return nil
	}

	return requestSchema.Properties["ag_config"]
}
