// Command bitscriptr classifies keys, serializes policy configurations,
// validates policy expressions and assembles output descriptors.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/compiler"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/descriptor"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/document"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/keys"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/logging"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/policy"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/registry"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/telemetry"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/validate"
)

// Exit codes.
const (
	exitOK       = 0
	exitRejected = 1
	exitUsage    = 2
)

const usage = `usage: bitscriptr [-config file] <command> [args]

commands:
  classify KEY...                    classify keys
  serialize -type T [fields]         serialize one policy configuration
  validate EXPR                      validate a policy expression
  descriptor [-output wsh] [-checksum] EXPR
                                     assemble an output descriptor
  build [-json] FILE                 build a policy document
  version                            print the version
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app carries what every command needs.
type app struct {
	cfg       bitscriptr.Config
	logger    logging.Logger
	telemetry *telemetry.Providers
	stdout    io.Writer
	stderr    io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bitscriptr", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	cfg := bitscriptr.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = bitscriptr.LoadConfig(*configPath); err != nil {
			fmt.Fprintf(stderr, "config: %v\n", err)
			return exitUsage
		}
	}
	handler, err := logging.NewHandler(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitUsage
	}
	logger := logging.New(slog.New(handler))
	providers, err := telemetry.Setup(ctx, cfg.Telemetry, logger)
	if err != nil {
		fmt.Fprintf(stderr, "telemetry: %v\n", err)
		return exitUsage
	}
	defer func() {
		if err := providers.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn(ctx, "telemetry shutdown", "error", err.Error())
		}
	}()
	a := &app{
		cfg:       cfg,
		logger:    logger,
		telemetry: providers,
		stdout:    stdout,
		stderr:    stderr,
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "classify":
		return a.classify(rest)
	case "serialize":
		return a.serialize(rest)
	case "validate":
		return a.validate(ctx, rest)
	case "descriptor":
		return a.descriptor(ctx, rest)
	case "build":
		return a.build(ctx, rest)
	case "version":
		fmt.Fprintf(stdout, "bitscriptr %s (%s)\n", bitscriptr.LibraryVersion(), bitscriptr.Commit)
		return exitOK
	}
	fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
	fs.Usage()
	return exitUsage
}

func (a *app) classifier() keys.Classifier {
	return keys.Classifier{StrictPoints: a.cfg.Keys.StrictPoints}
}

// pipeline builds the validation pipeline from the configured compiler. The
// returned func releases the compiler.
func (a *app) pipeline(ctx context.Context) (*validate.Pipeline, func(), error) {
	c, err := compiler.FromConfig(ctx, a.cfg.Compiler, a.logger)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := compiler.Close(ctx, c); err != nil {
			a.logger.Warn(ctx, "closing compiler", "error", err.Error())
		}
	}
	p, err := validate.New(c,
		validate.WithClassifier(a.classifier()),
		validate.WithLogger(a.logger),
		validate.WithTracerProvider(a.telemetry.TracerProvider()),
		validate.WithMeterProvider(a.telemetry.MeterProvider()),
	)
	if err != nil {
		release()
		return nil, nil, err
	}
	return p, release, nil
}

func (a *app) classify(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(a.stderr, "classify: at least one key is required")
		return exitUsage
	}
	code := exitOK
	c := a.classifier()
	for _, k := range args {
		res := c.Classify(k)
		if res.Accepted {
			fmt.Fprintf(a.stdout, "accepted\t%s\t%s\n", res.Kind, res.Network)
			continue
		}
		fmt.Fprintf(a.stdout, "rejected\t%s\t%s\n", res.Kind, res.Reason)
		code = exitRejected
	}
	return code
}

func (a *app) serialize(args []string) int {
	fs := flag.NewFlagSet("serialize", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	var spec document.PolicySpec
	var keyList, items, heirs string
	fs.StringVar(&spec.Type, "type", "", "policy type ("+kindNames()+")")
	fs.StringVar(&spec.Key, "key", "", "key for single-sig")
	fs.IntVar(&spec.M, "m", 0, "required signatures or items")
	fs.IntVar(&spec.N, "n", 0, "total keys or items (defaults to the list length)")
	fs.StringVar(&keyList, "keys", "", "comma-separated keys")
	fs.StringVar(&items, "items", "", "comma-separated threshold items")
	fs.Int64Var(&spec.Value, "value", 0, "timelock value")
	fs.StringVar(&spec.Algorithm, "algorithm", "", "hashlock digest algorithm")
	fs.StringVar(&spec.Hash, "hash", "", "hashlock digest, hex")
	fs.Int64Var(&spec.Delay, "delay", 0, "vault delay")
	fs.StringVar(&spec.CancelKey, "cancel-key", "", "vault cancel key")
	fs.StringVar(&spec.OwnerKey, "owner-key", "", "inheritance owner key")
	fs.StringVar(&heirs, "heir-keys", "", "comma-separated heir keys")
	fs.IntVar(&spec.HeirsThreshold, "heirs-threshold", 0, "heirs required")
	fs.Int64Var(&spec.Timelock1, "timelock1", 0, "heirs timelock")
	fs.StringVar(&spec.ThirdPartyKey, "third-party-key", "", "inheritance third party key")
	fs.Int64Var(&spec.Timelock2, "timelock2", 0, "third party timelock")
	fs.StringVar(&spec.PartyAKey, "party-a-key", "", "escrow party A key")
	fs.StringVar(&spec.PartyBKey, "party-b-key", "", "escrow party B key")
	fs.StringVar(&spec.ArbiterKey, "arbiter-key", "", "escrow arbiter key")
	fs.Int64Var(&spec.Timeout, "timeout", 0, "escrow timeout")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if spec.Type == "" || fs.NArg() > 0 {
		fmt.Fprintln(a.stderr, "serialize: -type is required and no positional arguments are accepted")
		return exitUsage
	}
	spec.Name = spec.Type
	spec.Keys, spec.Items, spec.HeirKeys = splitList(keyList), splitList(items), splitList(heirs)

	cfg, err := spec.Config()
	if err != nil {
		fmt.Fprintf(a.stderr, "serialize: %v\n", err)
		return exitUsage
	}
	expr, err := policy.Serialize(cfg)
	if err != nil {
		fmt.Fprintf(a.stderr, "serialize: %v\n", err)
		return exitRejected
	}
	fmt.Fprintln(a.stdout, expr)
	return exitOK
}

func (a *app) validate(ctx context.Context, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(a.stderr, "validate: exactly one expression is required")
		return exitUsage
	}
	p, release, err := a.pipeline(ctx)
	if err != nil {
		fmt.Fprintf(a.stderr, "validate: %v\n", err)
		return exitUsage
	}
	defer release()

	res := p.Validate(ctx, args[0])
	if !res.Valid {
		fmt.Fprintf(a.stdout, "invalid: %s\n", res.Error)
		return exitRejected
	}
	fmt.Fprintln(a.stdout, "valid")
	return exitOK
}

func (a *app) descriptor(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("descriptor", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	output := fs.String("output", string(descriptor.OutputWSH), "output kind")
	checksum := fs.Bool("checksum", a.cfg.Descriptor.Checksum, "append the descriptor checksum")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.stderr, "descriptor: exactly one expression is required")
		return exitUsage
	}
	kind, err := descriptor.ParseOutputKind(*output)
	if err != nil {
		fmt.Fprintf(a.stderr, "descriptor: %v\n", err)
		return exitUsage
	}
	p, release, err := a.pipeline(ctx)
	if err != nil {
		fmt.Fprintf(a.stderr, "descriptor: %v\n", err)
		return exitUsage
	}
	defer release()

	var opts []descriptor.Option
	if *checksum {
		opts = append(opts, descriptor.WithChecksum())
	}
	desc, err := descriptor.FromExpression(ctx, p, fs.Arg(0), kind, opts...)
	if err != nil {
		fmt.Fprintf(a.stdout, "invalid: %v\n", err)
		return exitRejected
	}
	fmt.Fprintln(a.stdout, desc)
	return exitOK
}

func (a *app) build(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	asJSON := fs.Bool("json", false, "print the resulting entries as canonical JSON")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.stderr, "build: exactly one document is required")
		return exitUsage
	}
	doc, err := document.Load(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(a.stderr, "build: %v\n", err)
		return exitRejected
	}
	p, release, err := a.pipeline(ctx)
	if err != nil {
		fmt.Fprintf(a.stderr, "build: %v\n", err)
		return exitUsage
	}
	defer release()

	opts := []document.BuildOption{document.WithLogger(a.logger)}
	if a.cfg.Descriptor.Checksum {
		opts = append(opts, document.WithChecksum())
	}
	reg := registry.New()
	res, err := doc.Build(ctx, reg, p, opts...)
	if err != nil {
		fmt.Fprintf(a.stderr, "build: %v\n", err)
		if errors.Is(err, context.Canceled) {
			return exitUsage
		}
		return exitRejected
	}

	if *asJSON {
		out, err := reg.Export()
		if err != nil {
			fmt.Fprintf(a.stderr, "build: %v\n", err)
			return exitRejected
		}
		fmt.Fprintf(a.stdout, "%s\n", out)
		return exitOK
	}

	code := exitOK
	for _, e := range res.Entries {
		status := "valid"
		if v := e.Validity(); !v.Valid {
			status, code = "invalid: "+v.Error, exitRejected
		}
		fmt.Fprintf(a.stdout, "%s\t%s\t%s\n", e.Name(), e.Expression(), status)
	}
	if res.Descriptor != "" {
		fmt.Fprintf(a.stdout, "descriptor\t%s\n", res.Descriptor)
	}
	return code
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func kindNames() string {
	names := make([]string, 0, len(policy.Kinds()))
	for _, k := range policy.Kinds() {
		names = append(names, k.String())
	}
	return strings.Join(names, ", ")
}
