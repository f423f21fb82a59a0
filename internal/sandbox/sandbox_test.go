package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bitscriptr/bitscriptr-go/internal/sandbox/sandboxtest"
)

func newSandbox(t *testing.T, wasm []byte, cfg Config) *WASI {
	t.Helper()
	ctx := context.Background()
	s, err := New(ctx, wasm, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(ctx) })
	return s
}

func TestRunReturnsStdout(t *testing.T) {
	want := `{"sound":true,"canonical":"pk(key1)"}`
	s := newSandbox(t, sandboxtest.Stdout(want), Config{MemoryLimitBytes: 16 << 20, Timeout: 5 * time.Second})

	for i := 0; i < 3; i++ {
		out, err := s.Run(context.Background(), []byte("pk(key1)"))
		if err != nil {
			t.Fatalf("Run #%d failed: %v", i, err)
		}
		if string(out) != want {
			t.Fatalf("Run #%d = %q, want %q", i, out, want)
		}
	}
}

func TestNewMemoryLimit(t *testing.T) {
	ctx := context.Background()
	wasm := sandboxtest.Stdout("ok")

	if _, err := New(ctx, wasm, Config{MemoryLimitBytes: 8192 << 20}); err == nil {
		t.Fatal("expected error for a limit above 4 GiB")
	}
	for _, limit := range []int64{1, 4096 << 20} {
		s, err := New(ctx, wasm, Config{MemoryLimitBytes: limit})
		if err != nil {
			t.Fatalf("New with limit %d failed: %v", limit, err)
		}
		_ = s.Close(ctx)
	}
}

func TestRunStderrFails(t *testing.T) {
	s := newSandbox(t, sandboxtest.Stderr("boom"), Config{Timeout: 5 * time.Second})

	_, err := s.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error for stderr output")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("error %q does not carry stderr", err)
	}
}

func TestRunTimeout(t *testing.T) {
	s := newSandbox(t, sandboxtest.Spin(), Config{Timeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := s.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout error, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout took %v", elapsed)
	}
}

func TestNewRejectsInvalidModules(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, nil, Config{}); err == nil {
		t.Fatal("expected error for empty module")
	}
	if _, err := New(ctx, []byte("not wasm"), Config{}); err == nil {
		t.Fatal("expected error for invalid module")
	}
}

func TestMemoryLimitRoundsUpToOnePage(t *testing.T) {
	s := newSandbox(t, sandboxtest.Stdout("{}"), Config{MemoryLimitBytes: 1024})
	if s.limits.MemoryLimitBytes != 1024 {
		t.Fatalf("limits = %+v", s.limits)
	}
	if _, err := s.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}
