package compiler

import (
	"context"
	"fmt"

	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/logging"
)

// Builtin compiles policies to P2WSH miniscript in process.
type Builtin struct {
	requireSignature bool
	logger           logging.Logger
}

// Option configures a Builtin compiler.
type Option func(*Builtin)

// WithRequireSignature makes policies with a spending path that needs no
// signature unsound.
func WithRequireSignature(require bool) Option {
	return func(b *Builtin) { b.requireSignature = require }
}

// WithLogger sets the logger for compile diagnostics.
func WithLogger(l logging.Logger) Option {
	return func(b *Builtin) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBuiltin returns the in-process compiler.
func NewBuiltin(opts ...Option) *Builtin {
	b := &Builtin{logger: logging.Discard()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ Compiler = (*Builtin)(nil)

// Compile parses policy, checks it and lowers it to miniscript. Unsound
// policies yield a Result with a Reason and a nil error.
func (b *Builtin) Compile(ctx context.Context, policy string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	ms, err := b.compile(policy)
	if err != nil {
		b.logger.Debug(ctx, "policy rejected", "reason", err.Error())
		return Result{Reason: err.Error()}, nil
	}
	canonical := ms.String()
	b.logger.Debug(ctx, "policy compiled",
		"script_bytes", ms.scriptLen,
		"ops", ms.ops,
		"type", string(ms.typ)+ms.props.String())
	return Result{Sound: true, Canonical: canonical}, nil
}

func (b *Builtin) compile(policy string) (*fragment, error) {
	tree, err := parsePolicy(policy)
	if err != nil {
		return nil, err
	}
	if err := checkDuplicateKeys(tree); err != nil {
		return nil, err
	}
	if err := checkTimelocks(tree); err != nil {
		return nil, err
	}
	ms, err := lower(tree)
	if err != nil {
		return nil, err
	}
	if err := b.checkTopLevel(ms); err != nil {
		return nil, err
	}
	return ms, nil
}

func (b *Builtin) checkTopLevel(ms *fragment) error {
	if ms.typ != typeB {
		return fmt.Errorf("top-level miniscript must be of type B, got %s", ms.typ)
	}
	if !ms.props.m {
		return fmt.Errorf("%s has no non-malleable satisfaction", ms)
	}
	if ms.scriptLen > maxStandardP2WSHScriptSize {
		return fmt.Errorf("witness script is %d bytes, exceeding the standard limit of %d",
			ms.scriptLen, maxStandardP2WSHScriptSize)
	}
	if ms.ops > maxOpsPerScript {
		return fmt.Errorf("script has %d non-push operations, exceeding the limit of %d",
			ms.ops, maxOpsPerScript)
	}
	if b.requireSignature && !ms.props.s {
		return fmt.Errorf("%s can be spent without a signature", ms)
	}
	return nil
}
