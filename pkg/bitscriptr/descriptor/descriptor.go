// Package descriptor turns a compiled policy into an output descriptor.
// Only P2WSH (wsh) outputs are produced.
package descriptor

import (
	"context"
	"strings"

	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/keymap"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/validate"
)

// OutputKind names a descriptor wrapping.
type OutputKind string

const (
	OutputWSH   OutputKind = "wsh"
	OutputSH    OutputKind = "sh"
	OutputSHWSH OutputKind = "sh-wsh"
	OutputTR    OutputKind = "tr"
	OutputWPKH  OutputKind = "wpkh"
)

func (k OutputKind) String() string { return string(k) }

// Supported reports whether Assemble can produce k.
func (k OutputKind) Supported() bool { return k == OutputWSH }

// ParseOutputKind recognizes the output kind names. Unknown names fail with
// an error wrapping bitscriptr.ErrUnsupportedOutput.
func ParseOutputKind(s string) (OutputKind, error) {
	k := OutputKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case OutputWSH, OutputSH, OutputSHWSH, OutputTR, OutputWPKH:
		return k, nil
	case "p2wsh":
		return OutputWSH, nil
	}
	return "", bitscriptr.Errorf("ParseOutputKind", "%q: %w", s, bitscriptr.ErrUnsupportedOutput)
}

type options struct {
	checksum bool
}

// Option configures descriptor assembly.
type Option func(*options)

// WithChecksum appends the BIP380 checksum ("#" and eight characters).
func WithChecksum() Option {
	return func(o *options) { o.checksum = true }
}

// Assemble reinserts the original keys into compiled, the placeholder
// miniscript returned by the compiler, and wraps it for kind.
func Assemble(compiled string, keys *keymap.Map, kind OutputKind, opts ...Option) (string, error) {
	if !kind.Supported() {
		return "", bitscriptr.Errorf("Assemble", "%q: %w", kind, bitscriptr.ErrUnsupportedOutput)
	}
	if strings.TrimSpace(compiled) == "" {
		return "", bitscriptr.Errorf("Assemble", "no compiled expression: %w", bitscriptr.ErrUnsound)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	desc := string(kind) + "(" + keys.Reinsert(compiled) + ")"
	if !o.checksum {
		return desc, nil
	}
	sum, err := Checksum(desc)
	if err != nil {
		return "", bitscriptr.Wrap("Assemble", err)
	}
	return desc + "#" + sum, nil
}

// FromExpression validates expr with p and assembles the descriptor of the
// result. An invalid expression returns the verdict's error.
func FromExpression(ctx context.Context, p *validate.Pipeline, expr string, kind OutputKind, opts ...Option) (string, error) {
	if !kind.Supported() {
		return "", bitscriptr.Errorf("FromExpression", "%q: %w", kind, bitscriptr.ErrUnsupportedOutput)
	}
	v := p.Check(ctx, expr)
	if !v.Valid {
		return "", v.Err()
	}
	return Assemble(v.Canonical, v.Keys, kind, opts...)
}
