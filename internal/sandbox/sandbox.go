// Package sandbox runs WASI command modules under wazero with no filesystem,
// network or environment access. Input arrives on stdin and the result is
// read from stdout; anything written to stderr fails the run.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

const (
	wasmPageSize = 64 * 1024
	// maxPages is the wasm32 address space limit enforced by wazero.
	maxPages = 65536
)

// Config bounds a sandboxed run.
type Config struct {
	MemoryLimitBytes int64
	Timeout          time.Duration
}

// WASI executes one precompiled module per Run call.
type WASI struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	config   wazero.ModuleConfig
	limits   Config
}

// New compiles wasm and prepares a runtime enforcing cfg.
func New(ctx context.Context, wasm []byte, cfg Config) (*WASI, error) {
	if len(wasm) == 0 {
		return nil, errors.New("wasi: empty module")
	}
	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.MemoryLimitBytes > 0 {
		pages := cfg.MemoryLimitBytes / wasmPageSize
		if pages > maxPages {
			return nil, fmt.Errorf("wasi: memory limit of %d bytes exceeds the %d byte wasm32 maximum", cfg.MemoryLimitBytes, int64(maxPages)*wasmPageSize)
		}
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(uint32(max(pages, 1)))
	}

	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	compiled, err := r.CompileModule(ctx, wasm)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("wasi: compilation failed: %w", err)
	}

	// Anonymous instances so concurrent runs do not collide on the name.
	modCfg := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions("_start")

	return &WASI{
		runtime:  r,
		compiled: compiled,
		config:   modCfg,
		limits:   cfg,
	}, nil
}

// Run instantiates the module with input on stdin and returns its stdout.
func (s *WASI) Run(ctx context.Context, input []byte) ([]byte, error) {
	if s.limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.limits.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	modCfg := s.config.
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	mod, err := s.runtime.InstantiateModule(ctx, s.compiled, modCfg)
	if mod != nil {
		defer func() { _ = mod.Close(ctx) }()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("wasi: execution timed out after %v: %w", s.limits.Timeout, ctx.Err())
		}
		return nil, fmt.Errorf("wasi: instantiation failed: %w", err)
	}

	if stderr.Len() > 0 {
		return stdout.Bytes(), fmt.Errorf("wasi: stderr output: %s", stderr.String())
	}
	return stdout.Bytes(), nil
}

// Close shuts down the wazero runtime.
func (s *WASI) Close(ctx context.Context) error {
	return s.runtime.Close(ctx)
}
