package compiler

import (
	"fmt"
	"strings"
)

// lower compiles a checked policy tree to a B-typed fragment. Each
// combinator tries a fixed list of miniscript encodings and keeps the first
// one that type-checks and is non-malleable, falling back to the first that
// only type-checks.
func lower(n *node) (*fragment, error) {
	switch n.name {
	case "pk":
		return pk(n.args[0].value), nil
	case "after", "older":
		return timelock(n.name, n.num), nil
	case "sha256", "hash256", "ripemd160", "hash160":
		return hashFragment(n.name, strings.ToLower(n.args[0].value)), nil
	case "and":
		x, y, err := lowerPair(n)
		if err != nil {
			return nil, err
		}
		return pick("and", []func() (*fragment, error){
			func() (*fragment, error) { return andV(x, y) },
			func() (*fragment, error) { return andV(y, x) },
			func() (*fragment, error) { return withW(fAndB, x, y) },
			func() (*fragment, error) { return withW(fAndB, y, x) },
		})
	case "or":
		x, y, err := lowerPair(n)
		if err != nil {
			return nil, err
		}
		return pick("or", []func() (*fragment, error){
			func() (*fragment, error) { return combine(fOrD, x, y) },
			func() (*fragment, error) { return combine(fOrD, y, x) },
			func() (*fragment, error) { return withW(fOrB, x, y) },
			func() (*fragment, error) { return withW(fOrB, y, x) },
			func() (*fragment, error) { return combine(fOrI, x, y) },
			func() (*fragment, error) { return combine(fOrI, y, x) },
		})
	case "thresh":
		return lowerThresh(n)
	}
	return nil, fmt.Errorf("unrecognized identifier: %s", n.name)
}

func lowerPair(n *node) (*fragment, *fragment, error) {
	x, err := lower(n.args[0])
	if err != nil {
		return nil, nil, err
	}
	y, err := lower(n.args[1])
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

func pick(name string, candidates []func() (*fragment, error)) (*fragment, error) {
	var fallback *fragment
	var firstErr error
	for _, build := range candidates {
		f, err := build()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if f.props.m {
			return f, nil
		}
		if fallback == nil {
			fallback = f
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, fmt.Errorf("no miniscript encoding of %s type-checks: %w", name, firstErr)
}

func andV(x, y *fragment) (*fragment, error) {
	v, err := combine(fWrapV, x)
	if err != nil {
		return nil, err
	}
	return combine(fAndV, v, y)
}

// withW combines x with y converted to a W fragment.
func withW(id string, x, y *fragment) (*fragment, error) {
	w, err := toW(y)
	if err != nil {
		return nil, err
	}
	return combine(id, x, w)
}

// toW swaps a one-input fragment under the top stack element and moves any
// other fragment to the alt stack.
func toW(f *fragment) (*fragment, error) {
	if f.props.o {
		return combine(fWrapS, f)
	}
	return combine(fWrapA, f)
}

// toDU wraps f until it is dissatisfiable and unit, as thresh requires of
// its subexpressions.
func toDU(f *fragment) (*fragment, error) {
	build := func(ids ...string) (*fragment, error) {
		out := f
		for i := len(ids) - 1; i >= 0; i-- {
			var err error
			if out, err = combine(ids[i], out); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	var fallback *fragment
	for _, ids := range [][]string{nil, {fWrapN}, {fWrapL}, {fWrapL, fWrapN}} {
		c, err := build(ids...)
		if err != nil || !c.props.d || !c.props.u {
			continue
		}
		if c.props.e && c.props.m {
			return c, nil
		}
		if fallback == nil {
			fallback = c
		}
	}
	if fallback == nil {
		return nil, fmt.Errorf("%s cannot be made dissatisfiable", f)
	}
	return fallback, nil
}

func lowerThresh(n *node) (*fragment, error) {
	k, items := n.num, n.args[1:]
	if len(items) == 1 {
		return lower(items[0])
	}

	if len(items) <= multisigMaxKeys {
		keys := make([]string, 0, len(items))
		for _, it := range items {
			if it.name != "pk" {
				break
			}
			keys = append(keys, it.args[0].value)
		}
		if len(keys) == len(items) {
			return multi(k, keys), nil
		}
	}

	switch k {
	case 1:
		return lower(chain("or", items))
	case uint64(len(items)):
		return lower(chain("and", items))
	}

	args := make([]*fragment, len(items))
	for i, it := range items {
		f, err := lower(it)
		if err != nil {
			return nil, err
		}
		if f, err = toDU(f); err != nil {
			return nil, err
		}
		if i > 0 {
			if f, err = toW(f); err != nil {
				return nil, err
			}
		}
		args[i] = f
	}
	return threshFragment(k, args)
}

// chain folds items left to right into nested binary and/or nodes.
func chain(name string, items []*node) *node {
	acc := items[0]
	for _, it := range items[1:] {
		acc = &node{name: name, args: []*node{acc, it}}
	}
	return acc
}
