package compose

import (
	"errors"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr"
)

func TestCompose(t *testing.T) {
	tests := []struct {
		name      string
		kind      Kind
		threshold int
		in        []string
		want      string
	}{
		{"and", KindAnd, 0, []string{"pk(A)", "after(10)"}, "and(pk(A),after(10))"},
		{"or", KindOr, 0, []string{"pk(A)", "pk(B)"}, "or(pk(A),pk(B))"},
		{"threshold 2 of 3", KindThreshold, 2, []string{"pk(A)", "pk(B)", "pk(C)"}, "thresh(2,pk(A),pk(B),pk(C))"},
		{"threshold all", KindThreshold, 2, []string{"pk(A)", "older(5)"}, "thresh(2,pk(A),older(5))"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Compose(tc.kind, tc.threshold, tc.in)
			if err != nil {
				t.Fatalf("Compose failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestComposeArityErrors(t *testing.T) {
	tests := []struct {
		name      string
		kind      Kind
		threshold int
		in        []string
		msg       string
	}{
		{"and one", KindAnd, 0, []string{"pk(A)"}, "AND requires exactly 2 constituents, got 1"},
		{"or three", KindOr, 0, []string{"pk(A)", "pk(B)", "pk(C)"}, "OR requires exactly 2 constituents, got 3"},
		{"threshold one", KindThreshold, 1, []string{"pk(A)"}, "at least 2 constituents, got 1"},
		{"threshold zero", KindThreshold, 0, []string{"pk(A)", "pk(B)"}, "threshold 0 must be between 1 and 2"},
		{"threshold too high", KindThreshold, 3, []string{"pk(A)", "pk(B)"}, "threshold 3 must be between 1 and 2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compose(tc.kind, tc.threshold, tc.in)
			if !errors.Is(err, bitscriptr.ErrArity) {
				t.Fatalf("expected ErrArity, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.msg) {
				t.Fatalf("expected %q in %v", tc.msg, err)
			}
		})
	}
}

func TestComposeEmptyConstituent(t *testing.T) {
	_, err := Compose(KindThreshold, 1, []string{"pk(A)", "pk(B)", ""})
	if !errors.Is(err, bitscriptr.ErrConfigIncomplete) {
		t.Fatalf("expected ErrConfigIncomplete, got %v", err)
	}
	if !strings.Contains(err.Error(), "cannot compose: constituent 3 has no generated expression") {
		t.Fatalf("unexpected message: %v", err)
	}

	// The missing expression is reported before the arity violation.
	_, err = Compose(KindAnd, 0, []string{""})
	if !strings.Contains(err.Error(), "constituent 1 has no generated expression") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestComposeUnknownKind(t *testing.T) {
	if _, err := Compose("XOR", 0, []string{"pk(A)", "pk(B)"}); err == nil {
		t.Fatal("expected unknown kind to fail")
	}
}

func TestRenderNested(t *testing.T) {
	expr := Or(
		Fragment("pk(owner)"),
		And(
			Threshold(2, Fragment("pk(A)"), Fragment("pk(B)"), Fragment("pk(C)")),
			Fragment("after(1000)"),
		),
	)
	got, err := Render(expr)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	want := "or(pk(owner),and(thresh(2,pk(A),pk(B),pk(C)),after(1000)))"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	if _, err := Render(And(Fragment("pk(A)"), Or(Fragment("pk(B)")))); !errors.Is(err, bitscriptr.ErrArity) {
		t.Fatalf("expected nested arity error, got %v", err)
	}
	if _, err := Render(nil); err == nil {
		t.Fatal("expected nil expression to fail")
	}
	if _, err := Render(And(Fragment("pk(A)"), nil)); !errors.Is(err, bitscriptr.ErrConfigIncomplete) {
		t.Fatalf("expected nil child to fail, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"and": KindAnd, " OR ": KindOr, "threshold": KindThreshold, "thresh": KindThreshold} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseKind("nand"); err == nil {
		t.Fatal("expected error")
	}
}

// TestProperty_CompositionArity verifies AND/OR reject anything but two
// constituents and THRESHOLD rejects out-of-range thresholds.
func TestProperty_CompositionArity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	constituents := func(n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = "pk(K" + strings.Repeat("x", i+1) + ")"
		}
		return out
	}

	properties.Property("binary gates need exactly two constituents", prop.ForAll(
		func(n int, or bool) bool {
			kind := KindAnd
			if or {
				kind = KindOr
			}
			_, err := Compose(kind, 0, constituents(n))
			if n == 2 {
				return err == nil
			}
			return errors.Is(err, bitscriptr.ErrArity)
		},
		gen.IntRange(0, 6),
		gen.Bool(),
	))

	properties.Property("threshold must lie in [1, n]", prop.ForAll(
		func(n, k int) bool {
			out, err := Compose(KindThreshold, k, constituents(n))
			if n >= 2 && k >= 1 && k <= n {
				return err == nil && strings.HasPrefix(out, "thresh(")
			}
			return errors.Is(err, bitscriptr.ErrArity)
		},
		gen.IntRange(0, 8),
		gen.IntRange(-2, 10),
	))

	properties.TestingRun(t)
}
