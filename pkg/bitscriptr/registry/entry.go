package registry

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/compose"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/policy"
)

// ID prefixes by entry variant.
const (
	prefixConfigured = "policy"
	prefixComposed   = "composed"
	prefixText       = "text"
)

// Validity is the cached outcome of validating an entry's expression.
type Validity struct {
	// Checked is false until the entry has been validated.
	Checked bool   `json:"checked"`
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
}

// Entry is one of ConfiguredEntry, ComposedEntry or TextEntry.
type Entry interface {
	ID() string
	Name() string
	// Expression is the policy expression, or "" if none was generated.
	Expression() string
	Validity() Validity
	// Selectable reports whether the entry may take part in a composition.
	Selectable() bool
	Selected() bool

	WithName(name string) Entry
	WithExpression(expr string) Entry
	WithValidity(v Validity) Entry
	WithSelected(selected bool) Entry

	isEntry()
}

type base struct {
	id         string
	name       string
	expression string
	validity   Validity
	selected   bool
}

func newBase(prefix, name, expr string) base {
	return base{id: prefix + "-" + uuid.NewString(), name: name, expression: expr}
}

func (b base) ID() string         { return b.id }
func (b base) Name() string       { return b.name }
func (b base) Expression() string { return b.expression }
func (b base) Validity() Validity { return b.validity }
func (b base) Selectable() bool   { return true }
func (b base) Selected() bool     { return b.selected }

// ConfiguredEntry is generated from a condition or pattern configuration.
type ConfiguredEntry struct {
	base
	config policy.Config
}

// NewConfigured serializes cfg into a new entry. An empty name defaults to
// the configuration's display name.
func NewConfigured(name string, cfg policy.Config) (ConfiguredEntry, error) {
	expr, err := policy.Serialize(cfg)
	if err != nil {
		return ConfiguredEntry{}, err
	}
	if name == "" {
		name = cfg.Kind().DisplayName()
	}
	return ConfiguredEntry{base: newBase(prefixConfigured, name, expr), config: cfg}, nil
}

// Config returns the configuration the entry was generated from.
func (e ConfiguredEntry) Config() policy.Config { return e.config }

func (e ConfiguredEntry) WithName(name string) Entry {
	e.name = name
	return e
}

func (e ConfiguredEntry) WithExpression(expr string) Entry {
	e.expression, e.validity = expr, Validity{}
	return e
}

func (e ConfiguredEntry) WithValidity(v Validity) Entry {
	e.validity = v
	return e
}

func (e ConfiguredEntry) WithSelected(selected bool) Entry {
	e.selected = selected
	return e
}

func (ConfiguredEntry) isEntry() {}

// Constituent is the snapshot of an entry taken when it was composed.
type Constituent struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

// ComposedEntry combines constituents under AND, OR or THRESHOLD. Later
// edits to the source entries do not reach an existing composition.
type ComposedEntry struct {
	base
	kind         compose.Kind
	threshold    int
	constituents []Constituent
}

// NewComposed composes the expressions of entries. Threshold is only used
// by compose.KindThreshold.
func NewComposed(kind compose.Kind, threshold int, entries []Entry) (ComposedEntry, error) {
	constituents := make([]Constituent, len(entries))
	exprs := make([]string, len(entries))
	for i, e := range entries {
		constituents[i] = Constituent{ID: e.ID(), Name: e.Name(), Expression: e.Expression()}
		exprs[i] = e.Expression()
	}
	expr, err := compose.Compose(kind, threshold, exprs)
	if err != nil {
		return ComposedEntry{}, err
	}
	if kind != compose.KindThreshold {
		threshold = 0
	}
	return ComposedEntry{
		base:         newBase(prefixComposed, "Composed ("+kind.String()+")", expr),
		kind:         kind,
		threshold:    threshold,
		constituents: constituents,
	}, nil
}

// Kind returns the composition operator.
func (e ComposedEntry) Kind() compose.Kind { return e.kind }

// Threshold returns k for THRESHOLD compositions and 0 otherwise.
func (e ComposedEntry) Threshold() int { return e.threshold }

// Constituents returns a copy of the composed snapshots.
func (e ComposedEntry) Constituents() []Constituent {
	return append([]Constituent(nil), e.constituents...)
}

func (e ComposedEntry) WithName(name string) Entry {
	e.name = name
	return e
}

func (e ComposedEntry) WithExpression(expr string) Entry {
	e.expression, e.validity = expr, Validity{}
	return e
}

func (e ComposedEntry) WithValidity(v Validity) Entry {
	e.validity = v
	return e
}

func (e ComposedEntry) WithSelected(selected bool) Entry {
	e.selected = selected
	return e
}

func (ComposedEntry) isEntry() {}

// TextEntry is a policy expression entered directly.
type TextEntry struct {
	base
}

// NewText trims and NFC-normalizes expr into a new entry.
func NewText(name, expr string) (TextEntry, error) {
	expr = norm.NFC.String(strings.TrimSpace(expr))
	if expr == "" {
		return TextEntry{}, bitscriptr.Errorf("NewText", "policy string cannot be empty: %w", bitscriptr.ErrConfigIncomplete)
	}
	return TextEntry{base: newBase(prefixText, name, expr)}, nil
}

func (e TextEntry) WithName(name string) Entry {
	e.name = name
	return e
}

func (e TextEntry) WithExpression(expr string) Entry {
	e.expression, e.validity = expr, Validity{}
	return e
}

func (e TextEntry) WithValidity(v Validity) Entry {
	e.validity = v
	return e
}

func (e TextEntry) WithSelected(selected bool) Entry {
	e.selected = selected
	return e
}

func (TextEntry) isEntry() {}
