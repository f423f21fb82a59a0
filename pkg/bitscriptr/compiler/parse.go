package compiler

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// node is a policy expression node. Leaves (key names, numbers, hashes) have
// no args and an empty name.
type node struct {
	name  string
	value string
	args  []*node
	num   uint64
}

func (n *node) isLeaf() bool { return n.name == "" }

// parsePolicy parses and argument-checks a policy expression. ASCII
// whitespace is ignored.
func parsePolicy(s string) (*node, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil, errors.New("empty policy")
	}
	p := &parser{s: s}
	n, err := p.parse()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("unexpected %q at offset %d", p.s[p.pos:], p.pos)
	}
	if err := argCheck(n); err != nil {
		return nil, err
	}
	return n, nil
}

type parser struct {
	s   string
	pos int
}

func (p *parser) parse() (*node, error) {
	start := p.pos
	for p.pos < len(p.s) && !strings.ContainsRune("(),", rune(p.s[p.pos])) {
		p.pos++
	}
	token := p.s[start:p.pos]
	if token == "" {
		return nil, fmt.Errorf("expected an identifier at offset %d", start)
	}
	if p.pos == len(p.s) || p.s[p.pos] != '(' {
		return &node{value: token}, nil
	}
	n := &node{name: token}
	p.pos++ // (
	for {
		arg, err := p.parse()
		if err != nil {
			return nil, err
		}
		n.args = append(n.args, arg)
		if p.pos == len(p.s) {
			return nil, fmt.Errorf("unbalanced parentheses in %s(", token)
		}
		c := p.s[p.pos]
		p.pos++
		if c == ')' {
			return n, nil
		}
		if c != ',' {
			return nil, fmt.Errorf("unexpected %q after argument of %s", c, token)
		}
	}
}

// argCheck checks identifiers, arity and argument ranges of the tree.
func argCheck(n *node) error {
	if n.isLeaf() {
		return fmt.Errorf("expected a policy fragment, got %q", n.value)
	}
	expectArgs := func(num int) error {
		if len(n.args) != num {
			return fmt.Errorf("%s expects %d arguments, got %d", n.name, num, len(n.args))
		}
		return nil
	}
	expectLeaf := func(arg *node) error {
		if !arg.isLeaf() {
			return fmt.Errorf("argument of %s must not contain subexpressions", n.name)
		}
		return nil
	}

	switch n.name {
	case "pk":
		if err := expectArgs(1); err != nil {
			return err
		}
		return expectLeaf(n.args[0])

	case "after", "older":
		if err := expectArgs(1); err != nil {
			return err
		}
		if err := expectLeaf(n.args[0]); err != nil {
			return err
		}
		v, err := strconv.ParseUint(n.args[0].value, 10, 64)
		if err != nil {
			return fmt.Errorf("%s(n): n must be an unsigned integer, got %q", n.name, n.args[0].value)
		}
		if v < 1 || v >= 1<<31 {
			return fmt.Errorf("%s(n): n must satisfy 1 <= n < 2^31, got %d", n.name, v)
		}
		n.num = v
		return nil

	case "sha256", "hash256", "ripemd160", "hash160":
		if err := expectArgs(1); err != nil {
			return err
		}
		if err := expectLeaf(n.args[0]); err != nil {
			return err
		}
		want := 64
		if n.name == "ripemd160" || n.name == "hash160" {
			want = 40
		}
		h := n.args[0].value
		if len(h) != want {
			return fmt.Errorf("%s hash must be %d hex characters, got %d", n.name, want, len(h))
		}
		if _, err := hex.DecodeString(h); err != nil {
			return fmt.Errorf("%s hash is not hex", n.name)
		}
		return nil

	case "and", "or":
		if err := expectArgs(2); err != nil {
			return err
		}

	case "thresh":
		if len(n.args) < 2 {
			return errors.New("thresh must have a threshold and at least one subpolicy")
		}
		if err := expectLeaf(n.args[0]); err != nil {
			return err
		}
		k, err := strconv.ParseUint(n.args[0].value, 10, 64)
		if err != nil {
			return fmt.Errorf("thresh(k, ...): k must be an integer, got %q", n.args[0].value)
		}
		subs := uint64(len(n.args) - 1)
		if k < 1 || k > subs {
			return fmt.Errorf("thresh(k, ...): k must satisfy 1 <= k <= %d, got %d", subs, k)
		}
		n.num = k
		for _, arg := range n.args[1:] {
			if err := argCheck(arg); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unrecognized identifier: %s", n.name)
	}

	for _, arg := range n.args {
		if err := argCheck(arg); err != nil {
			return err
		}
	}
	return nil
}
