package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/bitscriptr/bitscriptr-go/internal/sandbox"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/logging"
)

// WASIConfig bounds each external compiler run.
type WASIConfig struct {
	MemoryLimitBytes int64
	Timeout          time.Duration
	Logger           logging.Logger
}

// WASI delegates compilation to a WebAssembly module. It is safe for
// concurrent use; every Compile call runs a fresh module instance.
type WASI struct {
	sandbox *sandbox.WASI
	logger  logging.Logger
}

// wasiVerdict is the JSON document a compiler module writes to stdout.
type wasiVerdict struct {
	Sound     bool   `json:"sound"`
	Canonical string `json:"canonical"`
	Error     string `json:"error"`
}

// NewWASI compiles the module bytes. Failures wrap
// bitscriptr.ErrCompilerUnavailable.
func NewWASI(ctx context.Context, wasm []byte, cfg WASIConfig) (*WASI, error) {
	sb, err := sandbox.New(ctx, wasm, sandbox.Config{
		MemoryLimitBytes: cfg.MemoryLimitBytes,
		Timeout:          cfg.Timeout,
	})
	if err != nil {
		return nil, bitscriptr.Errorf("NewWASI", "%v: %w", err, bitscriptr.ErrCompilerUnavailable)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &WASI{sandbox: sb, logger: logger}, nil
}

// LoadWASI reads a module from path, which must stay inside the working
// directory, and compiles it.
func LoadWASI(ctx context.Context, path string, cfg WASIConfig) (*WASI, error) {
	clean, err := bitscriptr.SecurePath(path)
	if err != nil {
		return nil, bitscriptr.Errorf("LoadWASI", "%v: %w", err, bitscriptr.ErrCompilerUnavailable)
	}
	wasm, err := os.ReadFile(clean)
	if err != nil {
		return nil, bitscriptr.Errorf("LoadWASI", "read module: %v: %w", err, bitscriptr.ErrCompilerUnavailable)
	}
	return NewWASI(ctx, wasm, cfg)
}

var _ Compiler = (*WASI)(nil)

// Compile runs the module with policy on stdin. Sandbox failures and
// malformed output are returned as errors wrapping
// bitscriptr.ErrCompilerUnavailable.
func (w *WASI) Compile(ctx context.Context, policy string) (Result, error) {
	start := time.Now()
	out, err := w.sandbox.Run(ctx, []byte(policy))
	if err != nil {
		w.logger.Warn(ctx, "external compiler failed", "error", err.Error())
		return Result{}, bitscriptr.Errorf("Compile", "%v: %w", err, bitscriptr.ErrCompilerUnavailable)
	}
	var v wasiVerdict
	if err := json.Unmarshal(out, &v); err != nil {
		return Result{}, bitscriptr.Errorf("Compile", "decode compiler output: %v: %w", err, bitscriptr.ErrCompilerUnavailable)
	}
	w.logger.Debug(ctx, "external compiler finished", "sound", v.Sound, "elapsed", time.Since(start))

	if !v.Sound {
		reason := v.Error
		if reason == "" {
			reason = "compiler rejected the policy"
		}
		return Result{Reason: reason}, nil
	}
	return Result{Sound: true, Canonical: v.Canonical}, nil
}

// Close releases the sandbox runtime.
func (w *WASI) Close(ctx context.Context) error {
	if err := w.sandbox.Close(ctx); err != nil {
		return fmt.Errorf("close wasi compiler: %w", err)
	}
	return nil
}
