package registry

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/compiler"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/compose"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/policy"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/validate"
)

var (
	keyA = "02" + strings.Repeat("aa", 32)
	keyB = "03" + strings.Repeat("bb", 32)
	keyC = "02" + strings.Repeat("cc", 32)
)

func newPipeline(t *testing.T) *validate.Pipeline {
	t.Helper()
	p, err := validate.New(nil)
	require.NoError(t, err)
	return p
}

func TestNewEntries(t *testing.T) {
	c, err := NewConfigured("", policy.SingleSig{Key: keyA})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(c.ID(), "policy-"))
	assert.Equal(t, policy.KindSingleSig.DisplayName(), c.Name())
	assert.Equal(t, "pk("+keyA+")", c.Expression())
	assert.False(t, c.Validity().Checked)
	assert.True(t, c.Selectable())

	_, err = NewConfigured("broken", policy.SingleSig{})
	require.ErrorIs(t, err, bitscriptr.ErrConfigIncomplete)

	txt, err := NewText("mine", "  pk("+keyB+")\n")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(txt.ID(), "text-"))
	assert.Equal(t, "pk("+keyB+")", txt.Expression())

	_, err = NewText("blank", " \t ")
	require.ErrorIs(t, err, bitscriptr.ErrConfigIncomplete)

	other, err := NewConfigured("", policy.SingleSig{Key: keyA})
	require.NoError(t, err)
	assert.NotEqual(t, c.ID(), other.ID())
}

func TestWithExpressionResetsValidity(t *testing.T) {
	e, err := NewText("t", "pk("+keyA+")")
	require.NoError(t, err)
	checked := e.WithValidity(Validity{Checked: true, Valid: true})
	assert.True(t, checked.Validity().Valid)
	assert.False(t, e.Validity().Checked, "original entry must be unchanged")

	edited := checked.WithExpression("pk(" + keyB + ")")
	assert.Equal(t, Validity{}, edited.Validity())
	assert.Equal(t, e.ID(), edited.ID())
}

func TestComposedSnapshot(t *testing.T) {
	a, err := NewConfigured("A", policy.SingleSig{Key: keyA})
	require.NoError(t, err)
	b, err := NewConfigured("B", policy.AbsoluteTimelock{Value: 500})
	require.NoError(t, err)

	c, err := NewComposed(compose.KindAnd, 7, []Entry{a, b})
	require.NoError(t, err)
	assert.Equal(t, "Composed (AND)", c.Name())
	assert.Equal(t, "and(pk("+keyA+"),after(500))", c.Expression())
	assert.Zero(t, c.Threshold())
	require.Len(t, c.Constituents(), 2)
	assert.Equal(t, Constituent{ID: a.ID(), Name: "A", Expression: a.Expression()}, c.Constituents()[0])

	c.Constituents()[0].Name = "mutated"
	assert.Equal(t, "A", c.Constituents()[0].Name)

	_, err = NewComposed(compose.KindOr, 0, []Entry{a})
	require.ErrorIs(t, err, bitscriptr.ErrArity)
}

func TestRegistryLookup(t *testing.T) {
	r := New()
	e, err := r.AddConfigured("owner", policy.SingleSig{Key: keyA})
	require.NoError(t, err)

	got, err := r.Get(e.ID())
	require.NoError(t, err)
	assert.Equal(t, e.Expression(), got.Expression())

	got, err = r.FindByName("owner")
	require.NoError(t, err)
	assert.Equal(t, e.ID(), got.ID())

	_, err = r.Get("policy-missing")
	require.ErrorIs(t, err, bitscriptr.ErrEntryNotFound)
	_, err = r.FindByName("nobody")
	require.ErrorIs(t, err, bitscriptr.ErrEntryNotFound)

	require.Error(t, r.Add(e), "duplicate id")

	require.NoError(t, r.Replace(e.WithName("renamed")))
	got, err = r.Get(e.ID())
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name())

	require.NoError(t, r.Remove(e.ID()))
	assert.Zero(t, r.Len())
	require.ErrorIs(t, r.Remove(e.ID()), bitscriptr.ErrEntryNotFound)
	require.ErrorIs(t, r.Replace(e), bitscriptr.ErrEntryNotFound)
}

func TestAddTextNaming(t *testing.T) {
	r := New()
	first, err := r.AddText("pk(" + keyA + ")")
	require.NoError(t, err)
	assert.Equal(t, "Custom Policy 1", first.Name())

	_, err = r.AddConfigured("", policy.SingleSig{Key: keyB})
	require.NoError(t, err)

	second, err := r.AddText("pk(" + keyB + ")")
	require.NoError(t, err)
	assert.Equal(t, "Custom Policy 2", second.Name())

	_, err = r.AddText("   ")
	require.ErrorIs(t, err, bitscriptr.ErrConfigIncomplete)
	assert.Equal(t, 3, r.Len())
}

func TestComposeSelected(t *testing.T) {
	r := New()
	a, err := r.AddConfigured("A", policy.SingleSig{Key: keyA})
	require.NoError(t, err)
	b, err := r.AddConfigured("B", policy.SingleSig{Key: keyB})
	require.NoError(t, err)
	c, err := r.AddConfigured("C", policy.SingleSig{Key: keyC})
	require.NoError(t, err)

	for _, id := range []string{a.ID(), c.ID(), b.ID()} {
		require.NoError(t, r.SetSelected(id, true))
	}
	require.ErrorIs(t, r.SetSelected("text-missing", true), bitscriptr.ErrEntryNotFound)

	sel := r.Selected()
	require.Len(t, sel, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{sel[0].Name(), sel[1].Name(), sel[2].Name()}, "selection follows list order")

	composed, err := r.ComposeSelected(compose.KindThreshold, 2)
	require.NoError(t, err)
	assert.Equal(t, "thresh(2,pk("+keyA+"),pk("+keyB+"),pk("+keyC+"))", composed.Expression())
	assert.Equal(t, 2, composed.Threshold())
	assert.Empty(t, r.Selected(), "constituents are deselected")
	assert.Equal(t, 4, r.Len())

	last := r.Snapshot()[3]
	assert.Equal(t, composed.ID(), last.ID())

	// A failed composition leaves the selection alone.
	require.NoError(t, r.SetSelected(a.ID(), true))
	_, err = r.ComposeSelected(compose.KindAnd, 0)
	require.ErrorIs(t, err, bitscriptr.ErrArity)
	assert.Len(t, r.Selected(), 1)
	assert.Equal(t, 4, r.Len())
}

func TestRevalidate(t *testing.T) {
	r := New()
	good, err := r.AddConfigured("good", policy.Vault{M: 1, N: 1, Keys: []string{keyA}, Delay: 500, CancelKey: keyB})
	require.NoError(t, err)
	bad, err := r.AddText("pk(not-a-key)")
	require.NoError(t, err)
	empty := TextEntry{base: newBase(prefixText, "empty", "")}
	require.NoError(t, r.Add(empty))
	require.NoError(t, r.SetSelected(good.ID(), true))

	require.NoError(t, r.Revalidate(context.Background(), newPipeline(t)))

	got, err := r.Get(good.ID())
	require.NoError(t, err)
	assert.Equal(t, Validity{Checked: true, Valid: true}, got.Validity())
	assert.True(t, got.Selected(), "selection survives revalidation")

	got, err = r.Get(bad.ID())
	require.NoError(t, err)
	assert.True(t, got.Validity().Checked)
	assert.False(t, got.Validity().Valid)
	assert.Contains(t, got.Validity().Error, "not-a-key")

	got, err = r.Get(empty.ID())
	require.NoError(t, err)
	assert.Equal(t, Validity{Checked: true, Error: "policy string not generated"}, got.Validity())
}

// renamingCompiler renames an entry while its validation is in flight.
type renamingCompiler struct {
	once   sync.Once
	rename func()
}

func (c *renamingCompiler) Compile(_ context.Context, _ string) (compiler.Result, error) {
	c.once.Do(c.rename)
	return compiler.Result{Sound: true, Canonical: "pk(key1)"}, nil
}

func TestRevalidateKeepsConcurrentRename(t *testing.T) {
	r := New()
	e, err := r.AddText("pk(" + keyA + ")")
	require.NoError(t, err)

	c := &renamingCompiler{rename: func() {
		live, getErr := r.Get(e.ID())
		if assert.NoError(t, getErr) {
			assert.NoError(t, r.Replace(live.WithName("renamed").WithSelected(true)))
		}
	}}
	p, err := validate.New(c)
	require.NoError(t, err)
	require.NoError(t, r.Revalidate(context.Background(), p))

	got, err := r.Get(e.ID())
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name())
	assert.True(t, got.Selected())
	assert.Equal(t, Validity{Checked: true, Valid: true}, got.Validity())
}

func TestRevalidateCanceled(t *testing.T) {
	r := New()
	e, err := r.AddText("pk(" + keyA + ")")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, r.Revalidate(ctx, newPipeline(t)), context.Canceled)
	got, err := r.Get(e.ID())
	require.NoError(t, err)
	assert.False(t, got.Validity().Checked)
}

func TestExportCanonical(t *testing.T) {
	r := New()
	a, err := r.AddConfigured("A", policy.SingleSig{Key: keyA})
	require.NoError(t, err)
	_, err = r.AddText("pk(" + keyB + ")")
	require.NoError(t, err)
	require.NoError(t, r.SetSelected(a.ID(), true))
	_, err = r.AddConfigured("T", policy.RelativeTimelock{Value: 144})
	require.NoError(t, err)
	require.NoError(t, r.SetSelected(r.Snapshot()[2].ID(), true))
	_, err = r.ComposeSelected(compose.KindOr, 0)
	require.NoError(t, err)
	require.NoError(t, r.Revalidate(context.Background(), newPipeline(t)))

	first, err := r.Export()
	require.NoError(t, err)
	second, err := r.Export()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NotContains(t, string(first), "\n")

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(first, &decoded))
	require.Len(t, decoded, 4)
	assert.Equal(t, "configured", decoded[0]["variant"])
	assert.Equal(t, "single-sig", decoded[0]["kind"])
	assert.Equal(t, "text", decoded[1]["variant"])
	assert.Equal(t, "composed", decoded[3]["variant"])
	assert.Equal(t, "OR", decoded[3]["kind"])
	assert.Len(t, decoded[3]["constituents"], 2)

	// Keys within each object are sorted.
	s := string(first)
	assert.Less(t, strings.Index(s, `"expression"`), strings.Index(s, `"id"`))
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	p := newPipeline(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := r.AddText("pk(" + keyA + ")")
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, r.SetSelected(e.ID(), true))
			assert.NoError(t, r.Revalidate(context.Background(), p))
			_ = r.Selected()
			_, _ = r.Export()
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, r.Len())

	names := map[string]bool{}
	for _, e := range r.Snapshot() {
		names[e.Name()] = true
	}
	assert.Len(t, names, 8, "every text entry gets a distinct name")
}

func TestComposeSelectedProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("threshold composition deselects exactly its constituents", prop.ForAll(
		func(n, k int) bool {
			if k > n {
				k = n
			}
			r := New()
			for i := 0; i < n; i++ {
				e, err := r.AddConfigured("", policy.AbsoluteTimelock{Value: int64(100 + i)})
				if err != nil || r.SetSelected(e.ID(), true) != nil {
					return false
				}
			}
			c, err := r.ComposeSelected(compose.KindThreshold, k)
			if err != nil {
				return false
			}
			return len(c.Constituents()) == n &&
				c.Threshold() == k &&
				len(r.Selected()) == 0 &&
				r.Len() == n+1 &&
				strings.Count(c.Expression(), "after(") == n
		},
		gen.IntRange(2, 10),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}
