package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/gowebpki/jcs"
	"golang.org/x/sync/errgroup"

	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/compose"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/policy"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/validate"
)

const customPolicyPrefix = "Custom Policy"

// Registry is an ordered, concurrency-safe list of entries.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// Add appends e. Entry ids must be unique.
func (r *Registry) Add(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexLocked(e.ID()) >= 0 {
		return bitscriptr.Errorf("Add", "duplicate entry id %q", e.ID())
	}
	r.entries = append(r.entries, e)
	return nil
}

// AddConfigured serializes cfg and appends the resulting entry.
func (r *Registry) AddConfigured(name string, cfg policy.Config) (ConfiguredEntry, error) {
	e, err := NewConfigured(name, cfg)
	if err != nil {
		return ConfiguredEntry{}, err
	}
	return e, r.Add(e)
}

// AddText appends a text entry named "Custom Policy N", where N is one more
// than the number of entries already carrying that prefix.
func (r *Registry) AddText(expr string) (TextEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 1
	for _, e := range r.entries {
		if strings.HasPrefix(e.Name(), customPolicyPrefix) {
			n++
		}
	}
	e, err := NewText(fmt.Sprintf("%s %d", customPolicyPrefix, n), expr)
	if err != nil {
		return TextEntry{}, err
	}
	r.entries = append(r.entries, e)
	return e, nil
}

// Get returns the entry with id.
func (r *Registry) Get(id string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexLocked(id); i >= 0 {
		return r.entries[i], nil
	}
	return nil, bitscriptr.Errorf("Get", "id %q: %w", id, bitscriptr.ErrEntryNotFound)
}

// FindByName returns the first entry named name.
func (r *Registry) FindByName(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.Name() == name {
			return e, nil
		}
	}
	return nil, bitscriptr.Errorf("FindByName", "name %q: %w", name, bitscriptr.ErrEntryNotFound)
}

// Snapshot returns a copy of the entries in insertion order.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Entry(nil), r.entries...)
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Remove deletes the entry with id.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 {
		return bitscriptr.Errorf("Remove", "id %q: %w", id, bitscriptr.ErrEntryNotFound)
	}
	r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
	return nil
}

// Replace swaps in e for the entry with the same id.
func (r *Registry) Replace(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(e.ID())
	if i < 0 {
		return bitscriptr.Errorf("Replace", "id %q: %w", e.ID(), bitscriptr.ErrEntryNotFound)
	}
	r.entries[i] = e
	return nil
}

// SetSelected marks the entry with id as selected or not for composition.
func (r *Registry) SetSelected(id string, selected bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 {
		return bitscriptr.Errorf("SetSelected", "id %q: %w", id, bitscriptr.ErrEntryNotFound)
	}
	e := r.entries[i]
	if !e.Selectable() {
		return bitscriptr.Errorf("SetSelected", "entry %q cannot be selected", e.Name())
	}
	r.entries[i] = e.WithSelected(selected)
	return nil
}

// Selected returns the selected entries in list order.
func (r *Registry) Selected() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selectedLocked()
}

// ComposeSelected composes the selected entries, appends the composition and
// clears the selection of its constituents. The whole step runs under the
// write lock so no constituent changes halfway through.
func (r *Registry) ComposeSelected(kind compose.Kind, threshold int) (ComposedEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	selected := r.selectedLocked()
	c, err := NewComposed(kind, threshold, selected)
	if err != nil {
		return ComposedEntry{}, err
	}
	used := make(map[string]bool, len(selected))
	for _, e := range selected {
		used[e.ID()] = true
	}
	for i, e := range r.entries {
		if used[e.ID()] {
			r.entries[i] = e.WithSelected(false)
		}
	}
	r.entries = append(r.entries, c)
	return c, nil
}

// Validate returns e with its validity recomputed by p. An entry without an
// expression is marked invalid.
func Validate(ctx context.Context, p *validate.Pipeline, e Entry) Entry {
	if e.Expression() == "" {
		return e.WithValidity(Validity{Checked: true, Error: "policy string not generated"})
	}
	res := p.Validate(ctx, e.Expression())
	return e.WithValidity(Validity{Checked: true, Valid: res.Valid, Error: res.Error})
}

// Revalidate validates every entry concurrently and stores the results.
// Entries replaced or removed while validation runs keep their new state.
func (r *Registry) Revalidate(ctx context.Context, p *validate.Pipeline) error {
	snapshot := r.Snapshot()
	results := make([]Entry, len(snapshot))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, e := range snapshot {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = Validate(gctx, p, e)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return bitscriptr.Wrap("Revalidate", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range snapshot {
		j := r.indexLocked(e.ID())
		if j < 0 || r.entries[j].Expression() != e.Expression() {
			continue
		}
		r.entries[j] = r.entries[j].WithValidity(results[i].Validity())
	}
	return nil
}

func (r *Registry) indexLocked(id string) int {
	for i, e := range r.entries {
		if e.ID() == id {
			return i
		}
	}
	return -1
}

func (r *Registry) selectedLocked() []Entry {
	var out []Entry
	for _, e := range r.entries {
		if e.Selectable() && e.Selected() {
			out = append(out, e)
		}
	}
	return out
}

// exportedEntry is the JSON form of an entry.
type exportedEntry struct {
	ID           string        `json:"id"`
	Variant      string        `json:"variant"`
	Name         string        `json:"name"`
	Kind         string        `json:"kind,omitempty"`
	Expression   string        `json:"expression,omitempty"`
	Threshold    int           `json:"threshold,omitempty"`
	Constituents []Constituent `json:"constituents,omitempty"`
	Validity     *Validity     `json:"validity,omitempty"`
	Selected     bool          `json:"selected"`
}

// Export renders the entries as RFC 8785 canonical JSON, so equal
// registries export byte-identical documents.
func (r *Registry) Export() ([]byte, error) {
	snapshot := r.Snapshot()
	out := make([]exportedEntry, len(snapshot))
	for i, e := range snapshot {
		x := exportedEntry{
			ID:         e.ID(),
			Name:       e.Name(),
			Expression: e.Expression(),
			Selected:   e.Selected(),
		}
		if v := e.Validity(); v.Checked {
			x.Validity = &v
		}
		switch e := e.(type) {
		case ConfiguredEntry:
			x.Variant = "configured"
			x.Kind = e.Config().Kind().String()
		case ComposedEntry:
			x.Variant = "composed"
			x.Kind = e.Kind().String()
			x.Threshold = e.Threshold()
			x.Constituents = e.Constituents()
		case TextEntry:
			x.Variant = "text"
		}
		out[i] = x
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, bitscriptr.Errorf("Export", "marshal entries: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, bitscriptr.Errorf("Export", "canonicalize: %w", err)
	}
	return canonical, nil
}
