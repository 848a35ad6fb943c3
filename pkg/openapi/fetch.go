package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Fetch downloads and parses {uri}/openapi.json.
func Fetch(ctx context.Context, client *http.Client, uri string) (*Document, error) {
	if client == nil {
		client = http.DefaultClient
	}

	url := strings.TrimRight(uri, "/") + "/openapi.json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create spec request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch spec from %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec from %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrNoSpec, url, resp.StatusCode)
	}

	return Parse(body)
}

// ValidationError lists the JSON schema violations of a request body.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "request body does not match schema: " + strings.Join(e.Violations, "; ")
}

// ValidateBody checks body against schema using JSON Schema semantics.
func ValidateBody(schema *Schema, body any) error {
	if schema == nil {
		return ErrSchemaNotFound
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}

	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode body: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(bodyJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to validate body: %w", err)
	}

	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, e.String())
	}

	return &ValidationError{Violations: violations}
}
