package document

import (
	"context"

	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/compose"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/descriptor"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/logging"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/registry"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/validate"
)

// Result is what Build produced.
type Result struct {
	// Entries are the added entries in document order, validated.
	Entries []registry.Entry
	// Descriptor is empty unless the document requested one.
	Descriptor string
}

type buildOptions struct {
	logger   logging.Logger
	checksum bool
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

// WithLogger sets the logger used while building.
func WithLogger(l logging.Logger) BuildOption {
	return func(o *buildOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithChecksum forces a descriptor checksum even when the document does not
// ask for one.
func WithChecksum() BuildOption {
	return func(o *buildOptions) { o.checksum = true }
}

// Build adds the document's entries to reg, validates them with p and
// assembles the requested descriptor. Policies come first, then text
// entries, then compositions in document order.
func (d *Document) Build(ctx context.Context, reg *registry.Registry, p *validate.Pipeline, opts ...BuildOption) (*Result, error) {
	o := buildOptions{logger: logging.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	res := &Result{}
	ids := make(map[string]string)
	add := func(e registry.Entry) error {
		if err := reg.Add(e); err != nil {
			return err
		}
		ids[e.Name()] = e.ID()
		res.Entries = append(res.Entries, e)
		o.logger.Debug(ctx, "entry added", "name", e.Name(), "id", e.ID())
		return nil
	}

	for _, spec := range d.Policies {
		cfg, err := spec.Config()
		if err != nil {
			return nil, err
		}
		e, err := registry.NewConfigured(spec.Name, cfg)
		if err != nil {
			return nil, bitscriptr.Errorf("Build", "policy %q: %w", spec.Name, err)
		}
		if err := add(e); err != nil {
			return nil, bitscriptr.Wrap("Build", err)
		}
	}
	for _, spec := range d.Text {
		e, err := registry.NewText(spec.Name, spec.Expression)
		if err != nil {
			return nil, bitscriptr.Errorf("Build", "text %q: %w", spec.Name, err)
		}
		if err := add(e); err != nil {
			return nil, bitscriptr.Wrap("Build", err)
		}
	}
	for _, spec := range d.Compositions {
		kind, err := compose.ParseKind(spec.Kind)
		if err != nil {
			return nil, invalid("composition %q: %v", spec.Name, err)
		}
		members := make([]registry.Entry, len(spec.Of))
		for i, ref := range spec.Of {
			id, ok := ids[ref]
			if !ok {
				return nil, invalid("composition %q refers to %q, which is not defined before it", spec.Name, ref)
			}
			if members[i], err = reg.Get(id); err != nil {
				return nil, bitscriptr.Wrap("Build", err)
			}
		}
		c, err := registry.NewComposed(kind, spec.Threshold, members)
		if err != nil {
			return nil, bitscriptr.Errorf("Build", "composition %q: %w", spec.Name, err)
		}
		if err := add(c.WithName(spec.Name)); err != nil {
			return nil, bitscriptr.Wrap("Build", err)
		}
	}

	if err := reg.Revalidate(ctx, p); err != nil {
		return nil, bitscriptr.Wrap("Build", err)
	}
	for i, e := range res.Entries {
		validated, err := reg.Get(e.ID())
		if err != nil {
			return nil, bitscriptr.Wrap("Build", err)
		}
		res.Entries[i] = validated
	}

	if d.Descriptor != nil {
		desc, err := d.buildDescriptor(ctx, ids, reg, p, o)
		if err != nil {
			return nil, err
		}
		res.Descriptor = desc
	}
	o.logger.Info(ctx, "policy document built", "entries", len(res.Entries), "descriptor", res.Descriptor != "")
	return res, nil
}

func (d *Document) buildDescriptor(ctx context.Context, ids map[string]string, reg *registry.Registry, p *validate.Pipeline, o buildOptions) (string, error) {
	spec := d.Descriptor
	id, ok := ids[spec.Policy]
	if !ok {
		return "", invalid("descriptor refers to unknown policy %q", spec.Policy)
	}
	e, err := reg.Get(id)
	if err != nil {
		return "", bitscriptr.Wrap("Build", err)
	}
	kind := descriptor.OutputWSH
	if spec.Output != "" {
		if kind, err = descriptor.ParseOutputKind(spec.Output); err != nil {
			return "", err
		}
	}
	var dopts []descriptor.Option
	if spec.Checksum || o.checksum {
		dopts = append(dopts, descriptor.WithChecksum())
	}
	desc, err := descriptor.FromExpression(ctx, p, e.Expression(), kind, dopts...)
	if err != nil {
		return "", bitscriptr.Errorf("Build", "descriptor for %q: %w", spec.Policy, err)
	}
	return desc, nil
}
