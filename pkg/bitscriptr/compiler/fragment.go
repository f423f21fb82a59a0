package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/txscript"
)

const (
	// pubKeyDataPushLen is the size of a compressed key push in P2WSH.
	pubKeyDataPushLen = 34

	// maxStandardP2WSHScriptSize is the largest standard witnessScript.
	maxStandardP2WSHScriptSize = 3600

	// maxOpsPerScript is the consensus limit on non-push operations.
	maxOpsPerScript = 201

	// multisigMaxKeys is the largest key count CHECKMULTISIG accepts.
	multisigMaxKeys = 20

	// lockTimeThreshold separates block heights from timestamps in after().
	lockTimeThreshold = 500_000_000

	// sequenceLockTimeTypeFlag marks a time-based older() value.
	sequenceLockTimeTypeFlag = 1 << 22
)

// Fragment identifiers. Wrappers are the single-letter ones.
const (
	fZero      = "0"
	fOne       = "1"
	fPkK       = "pk_k"
	fSha256    = "sha256"
	fHash256   = "hash256"
	fRipemd160 = "ripemd160"
	fHash160   = "hash160"
	fOlder     = "older"
	fAfter     = "after"
	fAndV      = "and_v"
	fAndB      = "and_b"
	fOrB       = "or_b"
	fOrD       = "or_d"
	fOrI       = "or_i"
	fThresh    = "thresh"
	fMulti     = "multi"
	fWrapA     = "a"
	fWrapS     = "s"
	fWrapC     = "c"
	fWrapV     = "v"
	fWrapN     = "n"
	fWrapL     = "l" // l:X = or_i(0,X)
)

type basicType string

const (
	typeB basicType = "B"
	typeV basicType = "V"
	typeK basicType = "K"
	typeW basicType = "W"
)

// properties holds the correctness (z o n d u) and malleability (m s f e)
// properties of a fragment.
type properties struct {
	z, o, n, d, u bool
	m, s, f, e    bool

	// canCollapseVerify is set when the last opcode has a VERIFY form, so
	// a v: wrapper costs no extra byte.
	canCollapseVerify bool
}

func (p properties) String() string {
	var b strings.Builder
	for _, f := range []struct {
		set bool
		c   byte
	}{{p.z, 'z'}, {p.o, 'o'}, {p.n, 'n'}, {p.d, 'd'}, {p.u, 'u'}, {p.m, 'm'}, {p.s, 's'}, {p.f, 'f'}, {p.e, 'e'}} {
		if f.set {
			b.WriteByte(f.c)
		}
	}
	return b.String()
}

// fragment is a typed miniscript node.
type fragment struct {
	id   string
	args []*fragment
	// keys holds the key of pk_k or the keys of multi.
	keys []string
	// hash holds the hex digest of hash fragments.
	hash string
	// num holds the timelock value or the threshold k.
	num uint64

	typ       basicType
	props     properties
	scriptLen int
	ops       int
}

func isWrapper(id string) bool { return len(id) == 1 && id != fZero && id != fOne }

func numPushLen(n int64) int {
	script, _ := txscript.NewScriptBuilder().AddInt64(n).Script()
	return len(script)
}

func leaf(id string) *fragment {
	f := &fragment{id: id}
	f.analyze()
	return f
}

func pkK(key string) *fragment {
	f := &fragment{id: fPkK, keys: []string{key}}
	f.analyze()
	return f
}

func hashFragment(id, digest string) *fragment {
	f := &fragment{id: id, hash: digest}
	f.analyze()
	return f
}

func timelock(id string, v uint64) *fragment {
	f := &fragment{id: id, num: v}
	f.analyze()
	return f
}

func multi(k uint64, keys []string) *fragment {
	f := &fragment{id: fMulti, num: k, keys: keys}
	f.analyze()
	return f
}

// combine builds and type-checks a fragment with subexpressions.
func combine(id string, args ...*fragment) (*fragment, error) {
	f := &fragment{id: id, args: args}
	if err := f.typeCheck(); err != nil {
		return nil, err
	}
	f.analyze()
	return f, nil
}

func threshFragment(k uint64, args []*fragment) (*fragment, error) {
	f := &fragment{id: fThresh, num: k, args: args}
	if err := f.typeCheck(); err != nil {
		return nil, err
	}
	f.analyze()
	return f, nil
}

// pk is the c:pk_k(key) sugar.
func pk(key string) *fragment {
	f, _ := combine(fWrapC, pkK(key))
	return f
}

func (f *fragment) expect(typ basicType) error {
	if f.typ != typ {
		return fmt.Errorf("%s: expected type %s, got %s", f, typ, f.typ)
	}
	return nil
}

func (f *fragment) wrongProps(parent string) error {
	return fmt.Errorf("wrong properties %q on %s in %s", f.props, f, parent)
}

// typeCheck sets the basic type and correctness properties of f from its
// arguments. Leaves are typed by analyze.
func (f *fragment) typeCheck() error {
	p := &f.props
	switch f.id {
	case fZero:
		f.typ = typeB
		p.z, p.u, p.d = true, true, true

	case fOne:
		f.typ = typeB
		p.z, p.u = true, true

	case fPkK:
		f.typ = typeK
		p.o, p.n, p.d, p.u = true, true, true, true

	case fOlder, fAfter:
		f.typ = typeB
		p.z = true

	case fSha256, fHash256, fRipemd160, fHash160:
		f.typ = typeB
		p.o, p.n, p.d, p.u = true, true, true, true

	case fAndV:
		x, y := f.args[0], f.args[1]
		if err := x.expect(typeV); err != nil {
			return err
		}
		if y.typ != typeB && y.typ != typeK && y.typ != typeV {
			return fmt.Errorf("and_v: second argument must be B, K or V, got %s", y.typ)
		}
		f.typ = y.typ
		p.z = x.props.z && y.props.z
		p.o = (x.props.z && y.props.o) || (y.props.z && x.props.o)
		p.n = x.props.n || (x.props.z && y.props.n)
		p.u = y.props.u

	case fAndB:
		x, y := f.args[0], f.args[1]
		if err := x.expect(typeB); err != nil {
			return err
		}
		if err := y.expect(typeW); err != nil {
			return err
		}
		f.typ = typeB
		p.z = x.props.z && y.props.z
		p.o = (x.props.z && y.props.o) || (y.props.z && x.props.o)
		p.n = x.props.n || (x.props.z && y.props.n)
		p.d = x.props.d && y.props.d
		p.u = true

	case fOrB:
		x, z := f.args[0], f.args[1]
		if err := x.expect(typeB); err != nil {
			return err
		}
		if !x.props.d {
			return x.wrongProps(f.id)
		}
		if err := z.expect(typeW); err != nil {
			return err
		}
		if !z.props.d {
			return z.wrongProps(f.id)
		}
		f.typ = typeB
		p.z = x.props.z && z.props.z
		p.o = (x.props.z && z.props.o) || (z.props.z && x.props.o)
		p.d, p.u = true, true

	case fOrD:
		x, z := f.args[0], f.args[1]
		if err := x.expect(typeB); err != nil {
			return err
		}
		if !x.props.d || !x.props.u {
			return x.wrongProps(f.id)
		}
		if err := z.expect(typeB); err != nil {
			return err
		}
		f.typ = typeB
		p.z = x.props.z && z.props.z
		p.o = x.props.o && z.props.z
		p.d = z.props.d
		p.u = z.props.u

	case fOrI:
		x, z := f.args[0], f.args[1]
		if x.typ != typeB && x.typ != typeK && x.typ != typeV {
			return fmt.Errorf("or_i: first argument must be B, K or V, got %s", x.typ)
		}
		if z.typ != x.typ {
			return fmt.Errorf("or_i: arguments must share a type, got %s and %s", x.typ, z.typ)
		}
		f.typ = x.typ
		p.o = x.props.z && z.props.z
		p.u = x.props.u && z.props.u
		p.d = x.props.d || z.props.d

	case fThresh:
		first := f.args[0]
		if err := first.expect(typeB); err != nil {
			return err
		}
		if !first.props.d || !first.props.u {
			return first.wrongProps(f.id)
		}
		for _, arg := range f.args[1:] {
			if err := arg.expect(typeW); err != nil {
				return err
			}
			if !arg.props.d || !arg.props.u {
				return arg.wrongProps(f.id)
			}
		}
		f.typ = typeB
		ones, zeros := 0, 0
		for _, arg := range f.args {
			if arg.props.o {
				ones++
			}
			if arg.props.z {
				zeros++
			}
		}
		p.z = zeros == len(f.args)
		p.o = ones == 1 && zeros == len(f.args)-1
		p.d, p.u = true, true

	case fMulti:
		f.typ = typeB
		p.n, p.d, p.u = true, true, true

	case fWrapA:
		x := f.args[0]
		if err := x.expect(typeB); err != nil {
			return err
		}
		f.typ = typeW
		p.d, p.u = x.props.d, x.props.u

	case fWrapS:
		x := f.args[0]
		if err := x.expect(typeB); err != nil {
			return err
		}
		if !x.props.o {
			return x.wrongProps(f.id)
		}
		f.typ = typeW
		p.d, p.u = x.props.d, x.props.u

	case fWrapC:
		x := f.args[0]
		if err := x.expect(typeK); err != nil {
			return err
		}
		f.typ = typeB
		p.o, p.n, p.d = x.props.o, x.props.n, x.props.d
		p.u = true

	case fWrapV:
		x := f.args[0]
		if err := x.expect(typeB); err != nil {
			return err
		}
		f.typ = typeV
		p.z, p.o, p.n = x.props.z, x.props.o, x.props.n

	case fWrapN:
		x := f.args[0]
		if err := x.expect(typeB); err != nil {
			return err
		}
		f.typ = typeB
		p.z, p.o, p.n, p.d = x.props.z, x.props.o, x.props.n, x.props.d
		p.u = true

	case fWrapL:
		// Typed as or_i(0,X).
		x := f.args[0]
		if err := x.expect(typeB); err != nil {
			return err
		}
		f.typ = typeB
		p.o = x.props.z
		p.u = x.props.u
		p.d = true

	default:
		return fmt.Errorf("unknown fragment: %s", f.id)
	}
	return nil
}

// analyze completes f after typeCheck: it sets the malleability properties,
// the verify collapse flag, the script length and the op count.
func (f *fragment) analyze() {
	if len(f.args) == 0 {
		// Leaves cannot fail type checking.
		_ = f.typeCheck()
	}
	f.malleability()
	f.collapse()
	f.scriptLen = f.computeScriptLen()
	f.ops = f.computeOps()
}

func (f *fragment) malleability() {
	p := &f.props
	switch f.id {
	case fZero:
		p.m, p.s, p.e = true, true, true

	case fOne:
		p.m, p.f = true, true

	case fPkK:
		p.m, p.s, p.e = true, true, true

	case fOlder, fAfter:
		p.m, p.f = true, true

	case fSha256, fHash256, fRipemd160, fHash160:
		p.m = true

	case fAndV:
		x, y := f.args[0].props, f.args[1].props
		p.m = x.m && y.m
		p.s = x.s || y.s
		p.f = x.s || y.f

	case fAndB:
		x, y := f.args[0].props, f.args[1].props
		p.m = x.m && y.m
		p.s = x.s || y.s
		p.f = x.f && y.f || x.s && x.f || y.s && y.f
		p.e = x.e && y.e && x.s && y.s

	case fOrB:
		x, z := f.args[0].props, f.args[1].props
		p.m = x.m && z.m && x.e && z.e && (x.s || z.s)
		p.s = x.s && z.s
		p.e = true

	case fOrD:
		x, z := f.args[0].props, f.args[1].props
		p.m = x.m && z.m && x.e && (x.s || z.s)
		p.s = x.s && z.s
		p.f = z.f
		p.e = z.e

	case fOrI:
		x, z := f.args[0].props, f.args[1].props
		p.m = x.m && z.m && (x.s || z.s)
		p.s = x.s && z.s
		p.f = x.f && z.f
		p.e = x.e && z.f || z.e && x.f

	case fWrapL:
		// or_i(0,X) where 0 is m, s and e.
		x := f.args[0].props
		p.m, p.s = x.m, x.s
		p.e = x.f

	case fThresh:
		notS := uint64(0)
		p.m, p.e = true, true
		for _, arg := range f.args {
			p.m = p.m && arg.props.m && arg.props.e
			p.e = p.e && arg.props.e && arg.props.s
			if !arg.props.s {
				notS++
			}
		}
		p.m = p.m && notS <= f.num
		p.s = notS+1 <= f.num

	case fMulti:
		p.m, p.s, p.e = true, true, true

	case fWrapA, fWrapS, fWrapN:
		x := f.args[0].props
		p.m, p.s, p.f, p.e = x.m, x.s, x.f, x.e

	case fWrapC:
		x := f.args[0].props
		p.m, p.f, p.e = x.m, x.f, x.e
		p.s = true

	case fWrapV:
		x := f.args[0].props
		p.m, p.s = x.m, x.s
		p.f = true
	}
}

func (f *fragment) collapse() {
	switch f.id {
	case fSha256, fHash256, fRipemd160, fHash160, fThresh, fMulti, fWrapC:
		f.props.canCollapseVerify = true
	case fAndV:
		f.props.canCollapseVerify = f.args[1].props.canCollapseVerify
	case fWrapS:
		f.props.canCollapseVerify = f.args[0].props.canCollapseVerify
	}
}

func (f *fragment) computeScriptLen() int {
	sum := 0
	for _, arg := range f.args {
		sum += arg.scriptLen
	}
	switch f.id {
	case fZero, fOne:
		return 1
	case fPkK:
		return pubKeyDataPushLen
	case fOlder, fAfter:
		return numPushLen(int64(f.num)) + 1
	case fSha256, fHash256:
		return 6 + 1 + 32
	case fRipemd160, fHash160:
		return 6 + 1 + 20
	case fAndV:
		return sum
	case fAndB, fOrB, fWrapS, fWrapC, fWrapN:
		return sum + 1
	case fOrD, fOrI:
		return sum + 3
	case fWrapL:
		return sum + 4
	case fWrapA:
		return sum + 2
	case fThresh:
		return sum + len(f.args) - 1 + numPushLen(int64(f.num)) + 1
	case fMulti:
		return numPushLen(int64(f.num)) + pubKeyDataPushLen*len(f.keys) + numPushLen(int64(len(f.keys))) + 1
	case fWrapV:
		if f.args[0].props.canCollapseVerify {
			return sum
		}
		return sum + 1
	}
	return sum
}

// computeOps counts non-push opcodes across all branches, an upper bound on
// what any single execution path runs.
func (f *fragment) computeOps() int {
	sum := 0
	for _, arg := range f.args {
		sum += arg.ops
	}
	switch f.id {
	case fZero, fOne, fPkK:
		return 0
	case fOlder, fAfter, fWrapS, fWrapC, fWrapN:
		return sum + 1
	case fSha256, fHash256, fRipemd160, fHash160:
		return 4
	case fAndB, fOrB:
		return sum + 1
	case fOrD, fOrI, fWrapL:
		return sum + 3
	case fWrapA:
		return sum + 2
	case fThresh:
		return sum + len(f.args)
	case fMulti:
		return 1 + len(f.keys)
	case fWrapV:
		if f.args[0].props.canCollapseVerify {
			return sum
		}
		return sum + 1
	}
	return sum
}

// String renders f in miniscript notation with wrapper letters merged and
// c:pk_k printed as pk.
func (f *fragment) String() string {
	if f.id == fWrapC && f.args[0].id == fPkK {
		return "pk(" + f.args[0].keys[0] + ")"
	}
	if isWrapper(f.id) {
		var letters strings.Builder
		node := f
		for isWrapper(node.id) {
			if node.id == fWrapC && node.args[0].id == fPkK {
				break
			}
			letters.WriteString(node.id)
			node = node.args[0]
		}
		return letters.String() + ":" + node.String()
	}
	switch f.id {
	case fZero, fOne:
		return f.id
	case fPkK:
		return "pk_k(" + f.keys[0] + ")"
	case fOlder, fAfter:
		return f.id + "(" + strconv.FormatUint(f.num, 10) + ")"
	case fSha256, fHash256, fRipemd160, fHash160:
		return f.id + "(" + f.hash + ")"
	case fMulti:
		return "multi(" + strconv.FormatUint(f.num, 10) + "," + strings.Join(f.keys, ",") + ")"
	}
	parts := make([]string, 0, len(f.args)+1)
	if f.id == fThresh {
		parts = append(parts, strconv.FormatUint(f.num, 10))
	}
	for _, arg := range f.args {
		parts = append(parts, arg.String())
	}
	return f.id + "(" + strings.Join(parts, ",") + ")"
}
