// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/openapi"
)

// CompletionSpec is a completion-mode service document with one prompt parameter.
const CompletionSpec = `{
  "openapi": "3.1.0",
  "info": {"title": "completion", "version": "1.0"},
  "paths": {
    "/playground/run": {
      "post": {
        "requestBody": {
          "content": {"application/json": {"schema": {"$ref": "#/components/schemas/RunBody"}}}
        }
      }
    }
  },
  "components": {
    "schemas": {
      "RunBody": {
        "type": "object",
        "properties": {
          "ag_config": {"$ref": "#/components/schemas/AgConfig"},
          "inputs": {"type": "object", "title": "Inputs"}
        }
      },
      "AgConfig": {
        "type": "object",
        "properties": {
          "prompt": {"$ref": "#/components/schemas/PromptTemplate"}
        }
      },
      "PromptTemplate": {
        "type": "object",
        "x-parameter": "prompt",
        "properties": {
          "messages": {
            "type": "array",
            "items": {"$ref": "#/components/schemas/Message"},
            "default": [
              {"role": "system", "content": "You are an expert in geography."},
              {"role": "user", "content": "What is the capital of {{country}}?"}
            ]
          },
          "input_keys": {"anyOf": [{"type": "array", "items": {"type": "string"}}, {"type": "null"}]},
          "template_format": {"type": "string", "enum": ["curly", "fstring"], "default": "curly"},
          "llm_config": {"$ref": "#/components/schemas/ModelConfig"}
        }
      },
      "Message": {
        "type": "object",
        "properties": {
          "role": {"type": "string", "enum": ["system", "user", "assistant"]},
          "content": {"anyOf": [{"type": "string"}, {"type": "null"}]}
        }
      },
      "ModelConfig": {
        "type": "object",
        "properties": {
          "model": {
            "type": "string",
            "default": "gpt-4o-mini",
            "choices": {"openai": ["gpt-4o", "gpt-4o-mini"], "anthropic": ["claude-3-5-sonnet"]}
          },
          "temperature": {"anyOf": [{"type": "number", "minimum": 0, "maximum": 2}, {"type": "null"}]},
          "max_tokens": {"anyOf": [{"type": "integer", "minimum": -1, "maximum": 4000}, {"type": "null"}]},
          "response_format": {"type": "object", "title": "Response format"},
          "tools": {"type": "array", "items": {"type": "object"}}
        }
      }
    }
  }
}`

// ChatSpec is CompletionSpec with a conversation history in the run body.
var ChatSpec = chatSpec()

func chatSpec() string {
	const marker = `"inputs": {"type": "object", "title": "Inputs"}`

	return strings.Replace(CompletionSpec, marker, marker+`,
          "messages": {"type": "array", "items": {"$ref": "#/components/schemas/Message"}}`, 1)
}

// ParseSpec parses one of the fixture documents.
func ParseSpec(t testing.TB, spec string) *openapi.Document {
	t.Helper()

	doc, err := openapi.Parse([]byte(spec))
	require.NoError(t, err)

	return doc
}

// RequestSchema returns the resolved run body schema of a fixture document.
func RequestSchema(t testing.TB, spec string) *openapi.Schema {
	t.Helper()

	schema, err := openapi.RunRequestSchema(ParseSpec(t, spec))
	require.NoError(t, err)

	return schema
}

// SequentialIDs returns a deterministic identity generator: prefix-1, prefix-2, ...
func SequentialIDs(prefix string) func() string {
	var n atomic.Int64

	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

// CreateTestRecord creates a persisted variant record with default values that can be overridden.
func CreateTestRecord(overrides ...func(*models.VariantRecord)) *models.VariantRecord {
	record := &models.VariantRecord{
		ID:          "variant-1",
		URI:         "http://localhost:8000",
		AppID:       "app-1",
		AppName:     "capitals",
		BaseID:      "base-1",
		BaseName:    "app",
		VariantName: "app.default",
		Revision:    1,
		ConfigName:  "default",
		UpdatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Parameters: map[string]any{
			"prompt": map[string]any{
				"messages": []any{
					map[string]any{"role": "system", "content": "You are an expert in geography."},
					map[string]any{"role": "user", "content": "What is the capital of {{country}}?"},
				},
				"llm_config": map[string]any{
					"model":       "gpt-4o",
					"temperature": 0.2,
				},
			},
		},
	}

	for _, override := range overrides {
		override(record)
	}

	return record
}

// WithID sets the record identity.
func WithID(id string) func(*models.VariantRecord) {
	return func(r *models.VariantRecord) {
		r.ID = id
	}
}

// WithURI points the record at a service.
func WithURI(uri string) func(*models.VariantRecord) {
	return func(r *models.VariantRecord) {
		r.URI = uri
	}
}

// WithRevision sets the record revision.
func WithRevision(revision int) func(*models.VariantRecord) {
	return func(r *models.VariantRecord) {
		r.Revision = revision
	}
}

// WithName sets the record variant name.
func WithName(name string) func(*models.VariantRecord) {
	return func(r *models.VariantRecord) {
		r.VariantName = name
	}
}

// WithParameters replaces the saved configuration.
func WithParameters(params map[string]any) func(*models.VariantRecord) {
	return func(r *models.VariantRecord) {
		r.Parameters = params
	}
}
