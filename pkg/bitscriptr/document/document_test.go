package document

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/policy"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/registry"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/validate"
)

var (
	keyA = "02" + strings.Repeat("aa", 32)
	keyB = "03" + strings.Repeat("bb", 32)
	keyC = "02" + strings.Repeat("cc", 32)
)

func expand(doc string) []byte {
	return []byte(strings.NewReplacer("KEYA", keyA, "KEYB", keyB, "KEYC", keyC).Replace(doc))
}

const vaultDoc = `
version: "1.0"
policies:
  - {name: hot, type: single-sig, key: "KEYA"}
  - {name: cold, type: vault, m: 1, keys: ["KEYA"], delay: 500, cancel_key: "KEYB"}
  - {name: later, type: absolute-timelock, value: 800000}
text:
  - {name: typed, expression: "pk(KEYC)"}
compositions:
  - {name: either, kind: or, of: [hot, typed]}
  - {name: quorum, kind: threshold, threshold: 2, of: [hot, typed, either]}
descriptor: {policy: cold, output: wsh, checksum: true}
`

func newPipeline(t *testing.T) *validate.Pipeline {
	t.Helper()
	p, err := validate.New(nil)
	require.NoError(t, err)
	return p
}

func TestParse(t *testing.T) {
	doc, err := Parse(expand(vaultDoc))
	require.NoError(t, err)
	assert.Equal(t, "1.0", doc.Version)
	require.Len(t, doc.Policies, 3)
	require.Len(t, doc.Text, 1)
	require.Len(t, doc.Compositions, 2)
	require.NotNil(t, doc.Descriptor)
	assert.True(t, doc.Descriptor.Checksum)

	cfg, err := doc.Policies[1].Config()
	require.NoError(t, err)
	assert.Equal(t, policy.Vault{M: 1, N: 1, Keys: []string{keyA}, Delay: 500, CancelKey: keyB}, cfg)
}

func TestParseRejects(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{"not yaml", "version: [", "parse yaml"},
		{"empty", "", "document is empty"},
		{"missing version", "policies: []", "schema"},
		{"numeric version", "version: 1.0", "schema"},
		{"unknown field", "version: \"1.0\"\nextra: true", "schema"},
		{"unknown type", "version: \"1.0\"\npolicies:\n  - {name: a, type: quantum}", "schema"},
		{"missing key", "version: \"1.0\"\npolicies:\n  - {name: a, type: single-sig}", "schema"},
		{"threshold without k", "version: \"1.0\"\npolicies:\n  - {name: a, type: single-sig, key: KEYA}\ncompositions:\n  - {name: c, kind: threshold, of: [a]}", "schema"},
		{"bad version", "version: \"one\"", "version"},
		{"version 2", "version: \"2.0.0\"", "not supported"},
		{"duplicate name", "version: \"1\"\npolicies:\n  - {name: a, type: single-sig, key: KEYA}\n  - {name: a, type: single-sig, key: KEYB}", "duplicate name"},
		{"forward reference", "version: \"1\"\npolicies:\n  - {name: a, type: single-sig, key: KEYA}\ncompositions:\n  - {name: c, kind: and, of: [a, d]}\n  - {name: d, kind: or, of: [a, a]}", "not defined before it"},
		{"unknown descriptor policy", "version: \"1\"\ndescriptor: {policy: nope}", "unknown policy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(expand(tc.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, bitscriptr.ErrInvalidDocument)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestBuild(t *testing.T) {
	doc, err := Parse(expand(vaultDoc))
	require.NoError(t, err)
	reg := registry.New()

	res, err := doc.Build(context.Background(), reg, newPipeline(t))
	require.NoError(t, err)
	assert.Equal(t, "wsh(or_d(pk("+keyB+"),and_v(v:pk("+keyA+"),after(500))))#tfu4ngq3", res.Descriptor)

	require.Len(t, res.Entries, 6)
	names := make([]string, len(res.Entries))
	for i, e := range res.Entries {
		names[i] = e.Name()
		assert.True(t, e.Validity().Checked, e.Name())
	}
	assert.Equal(t, []string{"hot", "cold", "later", "typed", "either", "quorum"}, names)
	assert.Equal(t, 6, reg.Len())

	either, ok := res.Entries[4].(registry.ComposedEntry)
	require.True(t, ok)
	assert.Equal(t, "or(pk("+keyA+"),pk("+keyC+"))", either.Expression())
	assert.True(t, either.Validity().Valid, either.Validity().Error)

	quorum := res.Entries[5]
	assert.Equal(t, "thresh(2,pk("+keyA+"),pk("+keyC+"),or(pk("+keyA+"),pk("+keyC+")))", quorum.Expression())
	assert.False(t, quorum.Validity().Valid, "repeated keys are unsound")
	assert.Contains(t, quorum.Validity().Error, "duplicate key")
}

func TestBuildInvalidConfig(t *testing.T) {
	doc, err := Parse(expand(`
version: "1"
policies:
  - {name: broken, type: multisig, m: 3, keys: ["KEYA", "KEYB"]}
`))
	require.NoError(t, err)
	_, err = doc.Build(context.Background(), registry.New(), newPipeline(t))
	require.ErrorIs(t, err, bitscriptr.ErrConfigIncomplete)
}

func TestBuildDescriptorErrors(t *testing.T) {
	doc, err := Parse(expand(`
version: "1"
policies:
  - {name: a, type: single-sig, key: "KEYA"}
descriptor: {policy: a, output: tr}
`))
	require.NoError(t, err)
	_, err = doc.Build(context.Background(), registry.New(), newPipeline(t))
	require.ErrorIs(t, err, bitscriptr.ErrUnsupportedOutput)

	doc, err = Parse([]byte(`
version: "1"
text:
  - {name: bad, expression: "pk(nonsense)"}
descriptor: {policy: bad}
`))
	require.NoError(t, err)
	reg := registry.New()
	_, err = doc.Build(context.Background(), reg, newPipeline(t))
	require.ErrorIs(t, err, bitscriptr.ErrKeyRejected)
}

func TestBuildChecksumOption(t *testing.T) {
	doc, err := Parse(expand(`
version: "1.2.3"
policies:
  - {name: a, type: single-sig, key: "KEYA"}
descriptor: {policy: a}
`))
	require.NoError(t, err)

	res, err := doc.Build(context.Background(), registry.New(), newPipeline(t))
	require.NoError(t, err)
	assert.Equal(t, "wsh(pk("+keyA+"))", res.Descriptor)

	res, err = doc.Build(context.Background(), registry.New(), newPipeline(t), WithChecksum())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Descriptor, "wsh(pk("+keyA+"))#"))
	assert.Len(t, res.Descriptor, len("wsh(pk("+keyA+"))")+9)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "policy.yaml"), expand(vaultDoc), 0o600))
	doc, err := Load("policy.yaml")
	require.NoError(t, err)
	assert.Len(t, doc.Policies, 3)

	_, err = Load(filepath.Join(wd, "..", "..", "..", "..", "outside.yaml"))
	require.Error(t, err)
}

func TestPolicySpecDefaults(t *testing.T) {
	cfg, err := PolicySpec{Name: "h", Type: "hashlock", Hash: strings.Repeat("AB", 32)}.Config()
	require.NoError(t, err)
	assert.Equal(t, policy.Hashlock{Algorithm: policy.SHA256, Hash: strings.Repeat("ab", 32)}, cfg)

	cfg, err = PolicySpec{Name: "t", Type: "threshold", M: 1, Items: []string{"a", "b"}}.Config()
	require.NoError(t, err)
	assert.Equal(t, policy.Threshold{M: 1, N: 2, Items: []string{"a", "b"}}, cfg)

	_, err = PolicySpec{Name: "x", Type: "hashlock", Algorithm: "md5", Hash: "00"}.Config()
	require.ErrorIs(t, err, bitscriptr.ErrInvalidDocument)
}
