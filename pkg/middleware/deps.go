package middleware

import (
	"sort"
	"sync"
)

// Slice names.
const (
	SliceSelected   = "selected"
	SliceInputs     = "inputs"
	SliceMessages   = "messages"
	SliceRuns       = "runs"
	SliceVariants   = "variants"
	SliceVariantIDs = "variantIds"
	SliceVariant    = "variant"
	SliceProperty   = "property"
	SliceSpec       = "spec"
	SliceError      = "error"
	SliceDirty      = "dirty"
	SliceDataRef    = "dataRef"
	SliceSelector   = "selector"
)

// Slice names a part of the state a consumer read. ID narrows it to one variant, row or property;
// an empty ID means the whole slice.
type Slice struct {
	Name string
	ID   string
}

func (s Slice) String() string {
	if s.ID == "" {
		return s.Name
	}

	return s.Name + ":" + s.ID
}

// Deps is the set of slices a subscription read during its last render pass.
type Deps struct {
	mu  sync.Mutex
	set map[Slice]struct{}
}

func NewDeps() *Deps {
	return &Deps{set: map[Slice]struct{}{}}
}

func (d *Deps) Track(slices ...Slice) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, s := range slices {
		d.set[s] = struct{}{}
	}
}

func (d *Deps) Has(s Slice) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.set[s]

	return ok
}

// Tracked returns the tracked slices with one of the given names, sorted.
func (d *Deps) Tracked(names ...string) []Slice {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Slice

	for s := range d.set {
		for _, n := range names {
			if s.Name == n {
				out = append(out, s)

				break
			}
		}
	}

	sortSlices(out)

	return out
}

func (d *Deps) All() []Slice {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Slice, 0, len(d.set))
	for s := range d.set {
		out = append(out, s)
	}

	sortSlices(out)

	return out
}

func (d *Deps) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.set)
}

func (d *Deps) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	clear(d.set)
}

func sortSlices(list []Slice) {
	sort.Slice(list, func(i, j int) bool { return list[i].String() < list[j].String() })
}
