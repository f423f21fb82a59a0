package document

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/compose"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/policy"
)

//go:embed schema.json
var schemaJSON string

const (
	schemaURL         = "https://bitscriptr.dev/schema/policy-document.json"
	versionConstraint = "^1"
)

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	errSchema      error
)

func documentSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			errSchema = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, errSchema = c.Compile(schemaURL)
	})
	return compiledSchema, errSchema
}

// Document is a decoded policy document.
type Document struct {
	Version      string            `yaml:"version"`
	Policies     []PolicySpec      `yaml:"policies"`
	Text         []TextSpec        `yaml:"text"`
	Compositions []CompositionSpec `yaml:"compositions"`
	Descriptor   *DescriptorSpec   `yaml:"descriptor"`
}

// PolicySpec configures one condition or pattern. Only the fields of its
// Type are read.
type PolicySpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	Key       string   `yaml:"key"`
	M         int      `yaml:"m"`
	N         int      `yaml:"n"`
	Keys      []string `yaml:"keys"`
	Items     []string `yaml:"items"`
	Value     int64    `yaml:"value"`
	Algorithm string   `yaml:"algorithm"`
	Hash      string   `yaml:"hash"`

	Delay     int64  `yaml:"delay"`
	CancelKey string `yaml:"cancel_key"`

	OwnerKey       string   `yaml:"owner_key"`
	HeirKeys       []string `yaml:"heir_keys"`
	HeirsThreshold int      `yaml:"heirs_threshold"`
	Timelock1      int64    `yaml:"timelock1"`
	ThirdPartyKey  string   `yaml:"third_party_key"`
	Timelock2      int64    `yaml:"timelock2"`

	PartyAKey  string `yaml:"party_a_key"`
	PartyBKey  string `yaml:"party_b_key"`
	ArbiterKey string `yaml:"arbiter_key"`
	Timeout    int64  `yaml:"timeout"`
}

// TextSpec is a policy expression entered directly.
type TextSpec struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
}

// CompositionSpec combines earlier entries, referenced by name.
type CompositionSpec struct {
	Name      string   `yaml:"name"`
	Kind      string   `yaml:"kind"`
	Threshold int      `yaml:"threshold"`
	Of        []string `yaml:"of"`
}

// DescriptorSpec requests an output descriptor for one entry.
type DescriptorSpec struct {
	Policy   string `yaml:"policy"`
	Output   string `yaml:"output"`
	Checksum bool   `yaml:"checksum"`
}

// Load reads and parses the document at path.
func Load(path string) (*Document, error) {
	absPath, err := bitscriptr.SecurePath(path)
	if err != nil {
		return nil, bitscriptr.Errorf("Load", "%w: %w", bitscriptr.ErrInvalidDocument, err)
	}
	data, err := os.ReadFile(absPath) // #nosec G304 -- absPath validated by SecurePath
	if err != nil {
		return nil, bitscriptr.Errorf("Load", "read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse validates data against the document schema and decodes it. Every
// error wraps bitscriptr.ErrInvalidDocument.
func Parse(data []byte) (*Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, invalid("parse yaml: %v", err)
	}
	if raw == nil {
		return nil, invalid("document is empty")
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, invalid("decode: %v", err)
	}
	if err := doc.check(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// validateSchema round-trips the YAML tree through JSON so the validator sees
// plain JSON values, with numbers kept exact.
func validateSchema(raw any) error {
	schema, err := documentSchema()
	if err != nil {
		return bitscriptr.Errorf("Parse", "compile schema: %w", err)
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return invalid("convert to json: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return invalid("convert to json: %v", err)
	}
	if err := schema.Validate(v); err != nil {
		return invalid("schema: %v", err)
	}
	return nil
}

func (d *Document) check() error {
	v, err := semver.NewVersion(d.Version)
	if err != nil {
		return invalid("version %q: %v", d.Version, err)
	}
	c, err := semver.NewConstraint(versionConstraint)
	if err != nil {
		return bitscriptr.Errorf("Parse", "version constraint: %w", err)
	}
	if !c.Check(v) {
		return invalid("version %s is not supported, want %s", v, versionConstraint)
	}

	seen := make(map[string]bool)
	declare := func(name string) error {
		if seen[name] {
			return invalid("duplicate name %q", name)
		}
		seen[name] = true
		return nil
	}
	for _, p := range d.Policies {
		if err := declare(p.Name); err != nil {
			return err
		}
	}
	for _, t := range d.Text {
		if err := declare(t.Name); err != nil {
			return err
		}
	}
	for _, c := range d.Compositions {
		if _, err := compose.ParseKind(c.Kind); err != nil {
			return invalid("composition %q: %v", c.Name, err)
		}
		for _, ref := range c.Of {
			if !seen[ref] {
				return invalid("composition %q refers to %q, which is not defined before it", c.Name, ref)
			}
		}
		if err := declare(c.Name); err != nil {
			return err
		}
	}
	if d.Descriptor != nil && !seen[d.Descriptor.Policy] {
		return invalid("descriptor refers to unknown policy %q", d.Descriptor.Policy)
	}
	return nil
}

// Config converts s into the policy configuration of its type.
func (s PolicySpec) Config() (policy.Config, error) {
	kind, err := policy.ParseKind(s.Type)
	if err != nil {
		return nil, invalid("policy %q: %v", s.Name, err)
	}
	switch kind {
	case policy.KindSingleSig:
		return policy.SingleSig{Key: s.Key}, nil
	case policy.KindMultiSig:
		return policy.MultiSig{M: s.M, N: orLen(s.N, s.Keys), Keys: s.Keys}, nil
	case policy.KindThreshold:
		return policy.Threshold{M: s.M, N: orLen(s.N, s.Items), Items: s.Items}, nil
	case policy.KindAbsoluteTimelock:
		return policy.AbsoluteTimelock{Value: s.Value}, nil
	case policy.KindRelativeTimelock:
		return policy.RelativeTimelock{Value: s.Value}, nil
	case policy.KindHashlock:
		alg := policy.SHA256
		if s.Algorithm != "" {
			if alg, err = policy.ParseHashAlgorithm(s.Algorithm); err != nil {
				return nil, invalid("policy %q: %v", s.Name, err)
			}
		}
		return policy.Hashlock{Algorithm: alg, Hash: strings.ToLower(s.Hash)}, nil
	case policy.KindVault:
		return policy.Vault{M: s.M, N: orLen(s.N, s.Keys), Keys: s.Keys, Delay: s.Delay, CancelKey: s.CancelKey}, nil
	case policy.KindInheritance:
		return policy.Inheritance{
			OwnerKey:       s.OwnerKey,
			HeirKeys:       s.HeirKeys,
			HeirsThreshold: s.HeirsThreshold,
			Timelock1:      s.Timelock1,
			ThirdPartyKey:  s.ThirdPartyKey,
			Timelock2:      s.Timelock2,
		}, nil
	case policy.KindSimpleEscrow:
		return policy.SimpleEscrow{PartyAKey: s.PartyAKey, PartyBKey: s.PartyBKey, ArbiterKey: s.ArbiterKey, Timeout: s.Timeout}, nil
	}
	return nil, invalid("policy %q: unhandled type %s", s.Name, kind)
}

func orLen(n int, items []string) int {
	if n == 0 {
		return len(items)
	}
	return n
}

func invalid(format string, args ...any) error {
	return bitscriptr.Errorf("Parse", "%w: %s", bitscriptr.ErrInvalidDocument, fmt.Sprintf(format, args...))
}
