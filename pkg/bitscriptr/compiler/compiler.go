// Package compiler defines the policy compiler the validation pipeline
// delegates soundness decisions to, and ships two implementations:
//
//   - Builtin compiles policies in process to P2WSH miniscript, checking types,
//     non-malleability, script size and op limits, duplicate keys and
//     timelock mixing.
//   - WASI runs an external compiler built for WebAssembly (WASI preview1)
//     inside a wazero sandbox. The module reads the policy on stdin and writes
//     {"sound":bool,"canonical":string,"error":string} to stdout.
//
// Policies reaching a compiler carry placeholders (key1, key2, ...) in place
// of key material; compilers must treat key arguments as opaque names.
package compiler

import (
	"context"

	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/logging"
)

// Result is a compiler verdict.
type Result struct {
	// Sound reports whether the policy compiles to a miniscript that respects
	// consensus and standardness rules.
	Sound bool
	// Canonical is the compiled miniscript, with placeholders still in place.
	// It is empty when Sound is false.
	Canonical string
	// Reason explains an unsound verdict.
	Reason string
}

// Compiler compiles a placeholder policy expression. A returned error means
// the compiler could not produce a verdict; callers treat it as unsound.
type Compiler interface {
	Compile(ctx context.Context, policy string) (Result, error)
}

// FromConfig builds the compiler selected by cfg.Engine.
func FromConfig(ctx context.Context, cfg bitscriptr.CompilerConfig, logger logging.Logger) (Compiler, error) {
	switch cfg.Engine {
	case "", bitscriptr.EngineBuiltin:
		return NewBuiltin(WithRequireSignature(cfg.RequireSignature), WithLogger(logger)), nil
	case bitscriptr.EngineWASI:
		return LoadWASI(ctx, cfg.Module, WASIConfig{
			MemoryLimitBytes: int64(cfg.MemoryLimitMB) << 20,
			Timeout:          cfg.Timeout,
			Logger:           logger,
		})
	}
	return nil, bitscriptr.Errorf("FromConfig", "unknown engine %q: %w", cfg.Engine, bitscriptr.ErrCompilerUnavailable)
}

// Close releases resources held by c, if any.
func Close(ctx context.Context, c Compiler) error {
	if closer, ok := c.(interface{ Close(context.Context) error }); ok {
		return closer.Close(ctx)
	}
	return nil
}
