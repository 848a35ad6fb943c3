package openapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const specJSON = `{
  "openapi": "3.1.0",
  "info": {"title": "app", "version": "1.0"},
  "paths": {
    "/playground/run": {
      "post": {
        "requestBody": {
          "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Body"}}}
        }
      }
    }
  },
  "components": {
    "schemas": {
      "Body": {
        "type": "object",
        "properties": {
          "ag_config": {"$ref": "#/components/schemas/Config"},
          "messages": {"type": "array", "items": {"$ref": "#/components/schemas/Message"}}
        }
      },
      "Config": {
        "type": "object",
        "properties": {
          "temperature": {"type": ["number", "null"], "minimum": 0, "maximum": 2},
          "tree": {"$ref": "#/components/schemas/Tree"}
        }
      },
      "Message": {
        "type": "object",
        "required": ["role"],
        "properties": {"role": {"type": "string"}, "content": {"type": "string"}}
      },
      "Tree": {
        "type": "object",
        "properties": {"child": {"$ref": "#/components/schemas/Tree"}}
      }
    }
  }
}`

const specYAML = `
openapi: 3.0.0
info:
  title: app
  version: "1.0"
paths:
  /run:
    post:
      requestBody:
        content:
          application/json:
            schema:
              type: object
              properties:
                ag_config:
                  type: object
                  properties:
                    model:
                      type: string
                      default: gpt-4o
`

func TestParseJSON(t *testing.T) {
	doc, err := Parse([]byte(specJSON))
	require.NoError(t, err)

	schema, err := RunRequestSchema(doc)
	require.NoError(t, err)

	assert.True(t, IsChat(schema))

	config := AgConfigSchema(schema)
	require.NotNil(t, config)

	temperature := config.Properties["temperature"]
	assert.Equal(t, SchemaType("number"), temperature.Type)
	assert.True(t, temperature.Nullable)
	require.NotNil(t, temperature.Maximum)
	assert.InDelta(t, 2.0, *temperature.Maximum, 0)

	// The self-referencing schema resolves one level and then keeps its reference.
	tree := config.Properties["tree"]
	require.NotNil(t, tree.Properties["child"])
	assert.Equal(t, "#/components/schemas/Tree", tree.Properties["child"].Ref)
}

func TestParseYAML(t *testing.T) {
	doc, err := Parse([]byte(specYAML))
	require.NoError(t, err)

	schema, err := RunRequestSchema(doc)
	require.NoError(t, err)

	assert.False(t, IsChat(schema))
	assert.Equal(t, "gpt-4o", AgConfigSchema(schema).Properties["model"].Default)
}

func TestRunRequestSchemaErrors(t *testing.T) {
	_, err := RunRequestSchema(nil)
	require.ErrorIs(t, err, ErrNoSpec)

	_, err = RunRequestSchema(&Document{Paths: map[string]*PathItem{}})
	require.ErrorIs(t, err, ErrSchemaNotFound)
}

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openapi.json" {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		_, _ = w.Write([]byte(specJSON))
	}))
	defer server.Close()

	doc, err := Fetch(context.Background(), server.Client(), server.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, "app", doc.Info.Title)

	_, err = Fetch(context.Background(), server.Client(), server.URL+"/missing")
	require.ErrorIs(t, err, ErrNoSpec)
}

func TestValidateBody(t *testing.T) {
	doc, err := Parse([]byte(specJSON))
	require.NoError(t, err)

	schema := doc.Resolve(doc.Components.Schemas["Message"])

	require.NoError(t, ValidateBody(schema, map[string]any{"role": "user", "content": "hi"}))

	err = ValidateBody(schema, map[string]any{"content": 3})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.NotEmpty(t, validationErr.Violations)
}
