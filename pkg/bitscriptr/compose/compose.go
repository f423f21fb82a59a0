package compose

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr"
)

// Kind is a composition gate.
type Kind string

const (
	KindAnd       Kind = "AND"
	KindOr        Kind = "OR"
	KindThreshold Kind = "THRESHOLD"
)

// ParseKind resolves and, or, threshold (any case; thresh is accepted too).
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AND":
		return KindAnd, nil
	case "OR":
		return KindOr, nil
	case "THRESHOLD", "THRESH":
		return KindThreshold, nil
	}
	return "", fmt.Errorf("unknown composition kind %q", s)
}

func (k Kind) String() string { return string(k) }

// Expr represents a composition expression node.
type Expr interface {
	isExpr()
}

// fragment is a leaf holding a serialized policy expression.
type fragment struct {
	expr string
}

func (fragment) isExpr() {}

// andExpr is an AND gate over exactly two children.
type andExpr struct {
	children []Expr
}

func (andExpr) isExpr() {}

// orExpr is an OR gate over exactly two children.
type orExpr struct {
	children []Expr
}

func (orExpr) isExpr() {}

// thresholdExpr is a threshold gate requiring k of n children.
type thresholdExpr struct {
	k        int
	children []Expr
}

func (thresholdExpr) isExpr() {}

// Fragment creates a leaf from a serialized policy expression.
func Fragment(expr string) Expr {
	return fragment{expr: expr}
}

// And creates an AND gate.
func And(children ...Expr) Expr {
	return andExpr{children: children}
}

// Or creates an OR gate.
func Or(children ...Expr) Expr {
	return orExpr{children: children}
}

// Threshold creates a gate requiring k of the children.
func Threshold(k int, children ...Expr) Expr {
	return thresholdExpr{k: k, children: children}
}

// Compose combines constituent expressions under kind. threshold is only
// read for KindThreshold.
func Compose(kind Kind, threshold int, constituents []string) (string, error) {
	children := make([]Expr, len(constituents))
	for i, c := range constituents {
		children[i] = Fragment(c)
	}
	var e Expr
	switch kind {
	case KindAnd:
		e = And(children...)
	case KindOr:
		e = Or(children...)
	case KindThreshold:
		e = Threshold(threshold, children...)
	default:
		return "", bitscriptr.Errorf("Compose", "unknown composition kind %q", kind)
	}
	return Render(e)
}

// Render builds the policy expression for the tree rooted at e.
func Render(e Expr) (string, error) {
	if e == nil {
		return "", bitscriptr.Wrap("Compose", errors.New("nil expression"))
	}
	var b strings.Builder
	if err := render(&b, e); err != nil {
		return "", bitscriptr.Wrap("Compose", err)
	}
	return b.String(), nil
}

func render(b *strings.Builder, e Expr) error {
	switch expr := e.(type) {
	case fragment:
		if expr.expr == "" {
			return errors.New("empty fragment")
		}
		b.WriteString(expr.expr)
		return nil

	case andExpr:
		if err := checkBinary(KindAnd, expr.children); err != nil {
			return err
		}
		return renderGate(b, "and(", expr.children)

	case orExpr:
		if err := checkBinary(KindOr, expr.children); err != nil {
			return err
		}
		return renderGate(b, "or(", expr.children)

	case thresholdExpr:
		if err := checkConstituents(expr.children); err != nil {
			return err
		}
		if len(expr.children) < 2 {
			return fmt.Errorf("%s requires at least 2 constituents, got %d: %w", KindThreshold, len(expr.children), bitscriptr.ErrArity)
		}
		if expr.k <= 0 || expr.k > len(expr.children) {
			return fmt.Errorf("%s threshold %d must be between 1 and %d: %w", KindThreshold, expr.k, len(expr.children), bitscriptr.ErrArity)
		}
		return renderGate(b, "thresh("+strconv.Itoa(expr.k)+",", expr.children)

	default:
		return fmt.Errorf("unknown expression type %T", e)
	}
}

func renderGate(b *strings.Builder, open string, children []Expr) error {
	b.WriteString(open)
	for i, child := range children {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := render(b, child); err != nil {
			return err
		}
	}
	b.WriteByte(')')
	return nil
}

func checkBinary(kind Kind, children []Expr) error {
	if err := checkConstituents(children); err != nil {
		return err
	}
	if len(children) != 2 {
		return fmt.Errorf("%s requires exactly 2 constituents, got %d: %w", kind, len(children), bitscriptr.ErrArity)
	}
	return nil
}

// checkConstituents rejects leaf constituents with no expression before any
// arity rule is applied.
func checkConstituents(children []Expr) error {
	for i, child := range children {
		if child == nil {
			return fmt.Errorf("cannot compose: constituent %d has no generated expression: %w", i+1, bitscriptr.ErrConfigIncomplete)
		}
		if f, ok := child.(fragment); ok && f.expr == "" {
			return fmt.Errorf("cannot compose: constituent %d has no generated expression: %w", i+1, bitscriptr.ErrConfigIncomplete)
		}
	}
	return nil
}
