package models

import (
	"github.com/dukex/playground/pkg/enhanced"
	"github.com/dukex/playground/pkg/openapi"
)

// Field names of generation rows.
const (
	RowHistory     = "history"
	MessageRole    = "role"
	MessageContent = "content"
)

// Identities of the generation roots.
const (
	InputsRootID   = "generation-inputs"
	MessagesRootID = "generation-messages"
)

// GenerationData holds the test cases of the session. Inputs is an Enhanced array of input rows;
// Messages is an Enhanced array of chat rows, each holding a "history" array of message rows.
// Runs is keyed by row (or message row) id and then by variant id.
type GenerationData struct {
	Inputs   *enhanced.Node                 `json:"inputs"`
	Messages *enhanced.Node                 `json:"messages"`
	Runs     map[string]map[string]*RunSlot `json:"runs"`
}

// State is the root of the playground session.
type State struct {
	Variants       []*Variant                 `json:"variants"`
	Selected       []string                   `json:"selected"`
	Spec           *openapi.Document          `json:"-"`
	DirtyStates    map[string]bool            `json:"dirtyStates"`
	DataRef        map[string]enhanced.Digest `json:"dataRef"`
	GenerationData GenerationData             `json:"generationData"`
	Error          error                      `json:"-"`
}

func NewState() *State {
	return &State{
		Variants:    []*Variant{},
		Selected:    []string{},
		DirtyStates: map[string]bool{},
		DataRef:     map[string]enhanced.Digest{},
		GenerationData: GenerationData{
			Inputs:   enhanced.NewArray(InputsRootID, "", nil),
			Messages: enhanced.NewArray(MessagesRootID, "", nil),
			Runs:     map[string]map[string]*RunSlot{},
		},
	}
}

// Clone returns a structural copy. The spec document and run results are immutable and shared.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}

	out := &State{
		Variants:    make([]*Variant, len(s.Variants)),
		Selected:    append([]string{}, s.Selected...),
		Spec:        s.Spec,
		DirtyStates: make(map[string]bool, len(s.DirtyStates)),
		DataRef:     make(map[string]enhanced.Digest, len(s.DataRef)),
		GenerationData: GenerationData{
			Inputs:   s.GenerationData.Inputs.Clone(),
			Messages: s.GenerationData.Messages.Clone(),
			Runs:     make(map[string]map[string]*RunSlot, len(s.GenerationData.Runs)),
		},
		Error: s.Error,
	}

	for i, v := range s.Variants {
		out.Variants[i] = v.Clone()
	}

	for k, v := range s.DirtyStates {
		out.DirtyStates[k] = v
	}

	for k, v := range s.DataRef {
		out.DataRef[k] = v
	}

	for rowID, slots := range s.GenerationData.Runs {
		copied := make(map[string]*RunSlot, len(slots))
		for variantID, slot := range slots {
			if slot == nil {
				continue
			}

			c := *slot
			copied[variantID] = &c
		}

		out.GenerationData.Runs[rowID] = copied
	}

	return out
}

func (s *State) FindVariantByID(id string) *Variant {
	for _, v := range s.Variants {
		if v.ID == id {
			return v
		}
	}

	return nil
}

func (s *State) VariantIDs() []string {
	ids := make([]string, len(s.Variants))
	for i, v := range s.Variants {
		ids[i] = v.ID
	}

	return ids
}

// DisplayedVariants returns the selected variants in selection order, skipping stale ids.
func (s *State) DisplayedVariants() []*Variant {
	out := make([]*Variant, 0, len(s.Selected))

	for _, id := range s.Selected {
		if v := s.FindVariantByID(id); v != nil {
			out = append(out, v)
		}
	}

	return out
}

// FindPropertyInVariant looks a property node up by identity across all prompts of v.
func FindPropertyInVariant(v *Variant, propertyID string) *enhanced.Node {
	if v == nil {
		return nil
	}

	for _, p := range v.Prompts {
		if node := enhanced.FindByID(p.Node, propertyID); node != nil {
			return node
		}
	}

	return nil
}

// FindParentOfPropertyInVariant returns the nearest identity-bearing container of the property.
func FindParentOfPropertyInVariant(v *Variant, propertyID string) *enhanced.Node {
	if v == nil {
		return nil
	}

	for _, p := range v.Prompts {
		if parent := enhanced.FindParent(p.Node, propertyID); parent != nil {
			return parent
		}
	}

	return nil
}

// FindRow returns the input row, chat row or message row with the given id.
func (s *State) FindRow(rowID string) *enhanced.Node {
	if node := enhanced.FindByID(s.GenerationData.Inputs, rowID); node != nil {
		return node
	}

	return enhanced.FindByID(s.GenerationData.Messages, rowID)
}

// RunSlot returns the slot for the pair, or nil.
func (s *State) RunSlot(rowID, variantID string) *RunSlot {
	return s.GenerationData.Runs[rowID][variantID]
}

// EnsureRunSlot returns the slot for the pair, creating it when absent.
func (s *State) EnsureRunSlot(rowID, variantID string) *RunSlot {
	if s.GenerationData.Runs == nil {
		s.GenerationData.Runs = map[string]map[string]*RunSlot{}
	}

	slots, ok := s.GenerationData.Runs[rowID]
	if !ok {
		slots = map[string]*RunSlot{}
		s.GenerationData.Runs[rowID] = slots
	}

	slot, ok := slots[variantID]
	if !ok {
		slot = &RunSlot{}
		slots[variantID] = slot
	}

	return slot
}

// DeleteRow detaches a row from its parent and drops the run slots of every node in it.
func (s *State) DeleteRow(rowID string) bool {
	node := s.FindRow(rowID)
	if node == nil {
		return false
	}

	removed := enhanced.RemoveByID(s.GenerationData.Inputs, rowID) ||
		enhanced.RemoveByID(s.GenerationData.Messages, rowID)
	if !removed {
		return false
	}

	for _, id := range enhanced.IDs(node) {
		delete(s.GenerationData.Runs, id)
	}

	return true
}

// PruneRuns drops run slots of variants that no longer exist.
func (s *State) PruneRuns() {
	for rowID, slots := range s.GenerationData.Runs {
		for variantID := range slots {
			if s.FindVariantByID(variantID) == nil {
				delete(slots, variantID)
			}
		}

		if len(slots) == 0 {
			delete(s.GenerationData.Runs, rowID)
		}
	}
}
