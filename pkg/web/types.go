// Package web provides HTTP request and response types for the playground API.
package web

import (
	"time"

	"github.com/jinzhu/copier"

	"github.com/dukex/playground/pkg/dirty"
	"github.com/dukex/playground/pkg/models"
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// VariantSummary is the list form of a variant, without its configuration tree.
type VariantSummary struct {
	ID          string    `json:"id"`
	AppName     string    `json:"app_name"`
	BaseName    string    `json:"base_name"`
	VariantName string    `json:"variant_name"`
	Revision    int       `json:"revision"`
	IsChat      bool      `json:"is_chat"`
	IsMutating  bool      `json:"is_mutating"`
	UpdatedAt   time.Time `json:"updated_at"`
	Dirty       bool      `json:"dirty"`
	Displayed   bool      `json:"displayed"`
}

// StateResponse is the session as UI collaborators read it.
type StateResponse struct {
	Variants       []VariantSummary      `json:"variants"`
	Selected       []string              `json:"selected"`
	DirtyStates    map[string]bool       `json:"dirty_states"`
	GenerationData models.GenerationData `json:"generation_data"`
	Error          string                `json:"error,omitempty"`
}

// DirtyResponse reports whether a variant has unsaved edits.
type DirtyResponse struct {
	VariantID string       `json:"variant_id"`
	Dirty     bool         `json:"dirty"`
	Changes   *dirty.Delta `json:"changes,omitempty"`
}

// UpdatePropertyRequest replaces one configuration value. A null value is only accepted by
// nullable properties.
type UpdatePropertyRequest struct {
	Value any `json:"value"`
}

// CreateVariantRequest forks a loaded variant.
type CreateVariantRequest struct {
	BaseVariantID string `json:"base_variant_id" validate:"required"`
	Name          string `json:"name"            validate:"required,min=1"`
}

// SelectionRequest replaces the displayed variants.
type SelectionRequest struct {
	VariantIDs []string `json:"variant_ids" validate:"required,min=1,dive,required"`
}

// AddRowRequest appends a test case, or a message to a chat row when ChatRowID is set.
type AddRowRequest struct {
	ChatRowID string `json:"chat_row_id,omitempty"`
	Role      string `json:"role,omitempty"        validate:"omitempty,oneof=system user assistant"`
	Content   string `json:"content,omitempty"`
}

// UpdateRowRequest sets one variable of an input row or one field of a message row.
type UpdateRowRequest struct {
	Key   string `json:"key"   validate:"required"`
	Value string `json:"value"`
}

// RunRequest dispatches runs. An empty RowID runs every row against the displayed variants.
type RunRequest struct {
	RowID      string   `json:"row_id,omitempty"`
	VariantIDs []string `json:"variant_ids,omitempty" validate:"omitempty,dive,required"`
}

// TransformVariantSummary maps a variant to its list form.
func TransformVariantSummary(v *models.Variant, st *models.State) VariantSummary {
	var summary VariantSummary

	_ = copier.Copy(&summary, v)

	summary.Dirty = st.DirtyStates[v.ID]

	for _, id := range st.Selected {
		if id == v.ID {
			summary.Displayed = true

			break
		}
	}

	return summary
}

// TransformState maps a committed snapshot to its response form.
func TransformState(st *models.State) StateResponse {
	resp := StateResponse{
		Variants:       make([]VariantSummary, 0, len(st.Variants)),
		Selected:       st.Selected,
		DirtyStates:    st.DirtyStates,
		GenerationData: st.GenerationData,
	}

	for _, v := range st.Variants {
		resp.Variants = append(resp.Variants, TransformVariantSummary(v, st))
	}

	if st.Error != nil {
		resp.Error = st.Error.Error()
	}

	return resp
}
