package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/playground/pkg/enhanced"
)

func testVariant(id string) *Variant {
	return &Variant{
		ID:          id,
		VariantName: "v-" + id,
		Revision:    1,
		Prompts: []*Prompt{{
			Key: "prompt",
			Node: enhanced.NewObject(id+"-prompt", "md", map[string]*enhanced.Node{
				PromptMessages: enhanced.NewArray(id+"-msgs", "md", []*enhanced.Node{
					enhanced.NewObject(id+"-m1", "md", map[string]*enhanced.Node{
						MessageRole:    enhanced.NewLeaf(id+"-m1-role", "md", "user"),
						MessageContent: enhanced.NewLeaf(id+"-m1-content", "md", "hi"),
					}),
				}),
			}),
		}},
		Parameters: map[string]any{"flag": []any{"a"}},
	}
}

func testState() *State {
	s := NewState()
	s.Variants = []*Variant{testVariant("a"), testVariant("b")}
	s.Selected = []string{"b", "missing", "a"}

	row := enhanced.NewObject("row-1", "", map[string]*enhanced.Node{
		"country": enhanced.NewLeaf("row-1-country", "", "France"),
	})
	s.GenerationData.Inputs.Append(row)

	chat := enhanced.NewObject("chat-1", "", map[string]*enhanced.Node{
		RowHistory: enhanced.NewArray("chat-1-history", "", []*enhanced.Node{
			enhanced.NewObject("msg-1", "", map[string]*enhanced.Node{
				MessageRole:    enhanced.NewLeaf("msg-1-role", "", "user"),
				MessageContent: enhanced.NewLeaf("msg-1-content", "", "Hello"),
			}),
		}),
	})
	s.GenerationData.Messages.Append(chat)

	s.EnsureRunSlot("row-1", "a").IsRunning = true
	s.EnsureRunSlot("msg-1", "b").Result = &RunResult{Error: "boom"}

	return s
}

func TestStateLookups(t *testing.T) {
	s := testState()

	assert.Equal(t, "b", s.FindVariantByID("b").ID)
	assert.Nil(t, s.FindVariantByID("missing"))

	displayed := s.DisplayedVariants()
	require.Len(t, displayed, 2)
	assert.Equal(t, "b", displayed[0].ID)
	assert.Equal(t, "a", displayed[1].ID)

	assert.Equal(t, []string{"a", "b"}, s.VariantIDs())

	assert.Equal(t, "row-1", s.FindRow("row-1").ID)
	assert.Equal(t, "msg-1", s.FindRow("msg-1").ID)
	assert.Nil(t, s.FindRow("nope"))

	v := s.FindVariantByID("a")
	assert.Equal(t, "hi", FindPropertyInVariant(v, "a-m1-content").Value)
	assert.Equal(t, "a-m1", FindParentOfPropertyInVariant(v, "a-m1-content").ID)
	assert.Nil(t, FindPropertyInVariant(v, "b-m1-content"))
}

func TestStateCloneIsIndependent(t *testing.T) {
	s := testState()
	clone := s.Clone()

	assert.Equal(t, s, clone)

	clone.Variants[0].VariantName = "changed"
	clone.Variants[0].Parameters["flag"] = "x"
	clone.EnsureRunSlot("row-1", "a").IsRunning = false
	clone.Selected[0] = "a"
	clone.DeleteRow("row-1")

	assert.Equal(t, "v-a", s.Variants[0].VariantName)
	assert.Equal(t, []any{"a"}, s.Variants[0].Parameters["flag"])
	assert.True(t, s.RunSlot("row-1", "a").IsRunning)
	assert.Equal(t, "b", s.Selected[0])
	assert.NotNil(t, s.FindRow("row-1"))
}

func TestDeleteRow(t *testing.T) {
	s := testState()

	assert.True(t, s.DeleteRow("row-1"))
	assert.Nil(t, s.FindRow("row-1"))
	assert.Nil(t, s.RunSlot("row-1", "a"))
	assert.False(t, s.DeleteRow("row-1"))

	// Deleting a chat row drops the run slots of its messages.
	assert.True(t, s.DeleteRow("chat-1"))
	assert.Nil(t, s.RunSlot("msg-1", "b"))
	assert.Empty(t, s.GenerationData.Messages.Items)
}

func TestPruneRuns(t *testing.T) {
	s := testState()
	s.Variants = s.Variants[:1]

	s.PruneRuns()

	assert.NotNil(t, s.RunSlot("row-1", "a"))
	assert.NotContains(t, s.GenerationData.Runs, "msg-1")
}

func TestIsNewer(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		a, b *Variant
		want bool
	}{
		{"higher revision", &Variant{Revision: 2}, &Variant{Revision: 1, UpdatedAt: now}, true},
		{"lower revision with later time", &Variant{Revision: 1, UpdatedAt: now}, &Variant{Revision: 2}, false},
		{"same revision later time", &Variant{Revision: 1, UpdatedAt: now}, &Variant{Revision: 1}, true},
		{"identical", &Variant{Revision: 1, UpdatedAt: now}, &Variant{Revision: 1, UpdatedAt: now}, false},
		{"nil baseline", &Variant{}, nil, true},
		{"nil candidate", nil, &Variant{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNewer(tt.a, tt.b))
		})
	}
}
