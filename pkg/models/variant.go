package models

import (
	"time"

	"github.com/dukex/playground/pkg/enhanced"
)

// Prompt field names inside the Enhanced prompt object.
const (
	PromptMessages  = "messages"
	PromptLLMConfig = "llmConfig"
	PromptInputKeys = "inputKeys"
)

// Prompt is one prompt-shaped configuration property of a variant, keyed by its parameter name.
type Prompt struct {
	Key  string         `json:"key"`
	Node *enhanced.Node `json:"node"`
}

func (p *Prompt) Messages() *enhanced.Node {
	if p == nil {
		return nil
	}

	return p.Node.Field(PromptMessages)
}

func (p *Prompt) LLMConfig() *enhanced.Node {
	if p == nil {
		return nil
	}

	return p.Node.Field(PromptLLMConfig)
}

func (p *Prompt) InputKeys() *enhanced.Node {
	if p == nil {
		return nil
	}

	return p.Node.Field(PromptInputKeys)
}

func (p *Prompt) Clone() *Prompt {
	if p == nil {
		return nil
	}

	return &Prompt{Key: p.Key, Node: p.Node.Clone()}
}

// Variant is the enhanced, in-memory form of a saved application configuration.
type Variant struct {
	ID                  string         `json:"id"`
	URI                 string         `json:"uri"`
	AppID               string         `json:"appId,omitempty"`
	AppName             string         `json:"appName"`
	BaseID              string         `json:"baseId"`
	BaseName            string         `json:"baseName"`
	VariantName         string         `json:"variantName"`
	TemplateVariantName string         `json:"templateVariantName,omitempty"`
	Revision            int            `json:"revision"`
	ConfigName          string         `json:"configName"`
	IsChat              bool           `json:"isChat"`
	UpdatedAt           time.Time      `json:"updatedAt"`
	Prompts             []*Prompt      `json:"prompts"`
	Parameters          map[string]any `json:"parameters,omitempty"`

	// IsMutating marks a save or delete in flight. It is never persisted.
	IsMutating bool `json:"__isMutating,omitempty"`
}

func (v *Variant) Clone() *Variant {
	if v == nil {
		return nil
	}

	out := *v

	if v.Prompts != nil {
		out.Prompts = make([]*Prompt, len(v.Prompts))
		for i, p := range v.Prompts {
			out.Prompts[i] = p.Clone()
		}
	}

	if v.Parameters != nil {
		out.Parameters, _ = enhanced.CloneValue(v.Parameters).(map[string]any)
	}

	return &out
}

// Prompt returns the prompt stored under key.
func (v *Variant) Prompt(key string) *Prompt {
	for _, p := range v.Prompts {
		if p.Key == key {
			return p
		}
	}

	return nil
}

// IsNewer reports whether a is a newer version of the same variant than b. A higher revision
// always wins; equal revisions fall back to the later update time.
func IsNewer(a, b *Variant) bool {
	if a == nil {
		return false
	}

	if b == nil {
		return true
	}

	if a.Revision != b.Revision {
		return a.Revision > b.Revision
	}

	return a.UpdatedAt.After(b.UpdatedAt)
}

// VariantRecord is the persisted, plain form of a variant.
type VariantRecord struct {
	ID                  string         `json:"id"                               validate:"required"`
	URI                 string         `json:"uri"                              validate:"required"`
	AppID               string         `json:"app_id,omitempty"`
	AppName             string         `json:"app_name"`
	BaseID              string         `json:"base_id"`
	BaseName            string         `json:"base_name"`
	VariantName         string         `json:"variant_name"                     validate:"required"`
	TemplateVariantName string         `json:"template_variant_name,omitempty"`
	Revision            int            `json:"revision"`
	ConfigName          string         `json:"config_name"`
	UpdatedAt           time.Time      `json:"updated_at"`
	Parameters          map[string]any `json:"parameters"`
}

// Environment is a deployment target listed by the environment service.
type Environment struct {
	Name                string `json:"name"`
	AppID               string `json:"app_id"`
	DeployedVariantID   string `json:"deployed_app_variant_id,omitempty"`
	DeployedVariantName string `json:"deployed_variant_name,omitempty"`
	Revision            int    `json:"revision,omitempty"`
}
