package validate

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/compiler"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/keymap"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/keys"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/logging"
)

const instrumentationName = "github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/validate"

// Diagnostics reported by the pipeline.
const (
	MsgEmpty   = "policy expression is empty"
	MsgUnsound = "policy violates consensus or standardness script rules"
)

// Stage names the step that decided a verdict.
type Stage string

const (
	StageEmpty    Stage = "empty"
	StageKeys     Stage = "keys"
	StageCompile  Stage = "compile"
	StageAccepted Stage = "accepted"
)

// Result is the verdict shape exposed to callers that only need a yes/no
// answer and a diagnostic.
type Result struct {
	Valid bool
	Error string
}

// Verdict is the full outcome of a check.
type Verdict struct {
	Valid bool
	// Error is the user-facing diagnostic. It is empty when Valid is true.
	Error string
	Stage Stage
	// Policy is the expression with keys replaced by placeholders.
	Policy string
	// Canonical is the compiled miniscript with placeholders. Set only when
	// Valid is true.
	Canonical string
	Keys      *keymap.Map
}

// Result drops the compiled form and key map.
func (v Verdict) Result() Result {
	return Result{Valid: v.Valid, Error: v.Error}
}

// Err returns nil for a valid verdict and otherwise an error wrapping
// bitscriptr.ErrKeyRejected, bitscriptr.ErrUnsound or
// bitscriptr.ErrConfigIncomplete depending on the stage.
func (v Verdict) Err() error {
	if v.Valid {
		return nil
	}
	sentinel := bitscriptr.ErrUnsound
	switch v.Stage {
	case StageKeys:
		sentinel = bitscriptr.ErrKeyRejected
	case StageEmpty:
		sentinel = bitscriptr.ErrConfigIncomplete
	}
	return bitscriptr.Errorf("Validate", "%s: %w", v.Error, sentinel)
}

// Pipeline validates policy expressions. It is safe for concurrent use when
// its compiler is.
type Pipeline struct {
	compiler   compiler.Compiler
	classifier keys.Classifier
	logger     logging.Logger
	tracer     trace.Tracer
	counter    metric.Int64Counter
}

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	classifier     keys.Classifier
	logger         logging.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithClassifier replaces the default key classifier.
func WithClassifier(c keys.Classifier) Option {
	return func(o *options) { o.classifier = c }
}

// WithLogger sets the pipeline logger.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// New returns a pipeline compiling with c. A nil c selects the builtin
// compiler.
func New(c compiler.Compiler, opts ...Option) (*Pipeline, error) {
	o := options{
		logger:         logging.Discard(),
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	if c == nil {
		c = compiler.NewBuiltin(compiler.WithLogger(o.logger))
	}

	meter := o.meterProvider.Meter(instrumentationName)
	counter, err := meter.Int64Counter("bitscriptr.validations",
		metric.WithDescription("Policy expressions checked, by verdict"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, bitscriptr.Errorf("New", "create validations counter: %w", err)
	}

	return &Pipeline{
		compiler:   c,
		classifier: o.classifier,
		logger:     o.logger,
		tracer:     o.tracerProvider.Tracer(instrumentationName),
		counter:    counter,
	}, nil
}

// Validate checks expr and reports only the verdict and diagnostic.
func (p *Pipeline) Validate(ctx context.Context, expr string) Result {
	return p.Check(ctx, expr).Result()
}

// Check runs the full pipeline on expr.
func (p *Pipeline) Check(ctx context.Context, expr string) Verdict {
	ctx, span := p.tracer.Start(ctx, "bitscriptr.validate")
	defer span.End()

	v := p.check(ctx, expr)

	verdict := "valid"
	if !v.Valid {
		verdict = "invalid"
		span.SetStatus(codes.Error, "rejected at "+string(v.Stage))
	}
	span.SetAttributes(
		attribute.String("bitscriptr.stage", string(v.Stage)),
		attribute.Int("bitscriptr.keys", v.Keys.Len()),
	)
	p.counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("verdict", verdict),
		attribute.String("stage", string(v.Stage)),
	))
	return v
}

func (p *Pipeline) check(ctx context.Context, expr string) Verdict {
	if strings.TrimSpace(expr) == "" {
		return Verdict{Error: MsgEmpty, Stage: StageEmpty}
	}

	rewritten, m := keymap.Extract(expr)
	v := Verdict{Policy: rewritten, Keys: m}
	if !balanced(expr) {
		// An unclosed pk( would hand raw key text to the compiler.
		v.Error, v.Stage = MsgUnsound+": unbalanced parentheses", StageCompile
		return v
	}

	for _, ph := range m.Placeholders() {
		key, _ := m.Lookup(ph)
		c := p.classifier.Classify(key)
		if !c.Accepted {
			p.logger.Debug(ctx, "key rejected", "placeholder", ph, "kind", c.Kind.String(), logging.Redacted("key"))
			v.Error, v.Stage = c.Reason, StageKeys
			return v
		}
	}

	res, err := p.compiler.Compile(ctx, rewritten)
	switch {
	case err != nil:
		p.logger.Warn(ctx, "policy compiler failed", "error", err.Error())
		v.Error, v.Stage = MsgUnsound+": "+compilerFailure(err), StageCompile
		return v
	case !res.Sound:
		p.logger.Debug(ctx, "policy unsound", "policy", rewritten, "reason", res.Reason)
		v.Error, v.Stage = MsgUnsound, StageCompile
		if res.Reason != "" {
			v.Error += ": " + m.Reinsert(res.Reason)
		}
		return v
	}

	p.logger.Debug(ctx, "policy accepted", "keys", m.Len(), "miniscript", res.Canonical)
	v.Valid, v.Stage, v.Canonical = true, StageAccepted, res.Canonical
	return v
}

func compilerFailure(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "validation canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "compiler timed out"
	case errors.Is(err, bitscriptr.ErrCompilerUnavailable):
		return "compiler unavailable"
	}
	return err.Error()
}

func balanced(s string) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}
