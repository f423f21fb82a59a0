package compiler

import (
	"errors"
	"fmt"
)

var errTimelockMix = errors.New("cannot mix height-based and time-based timelocks in the same spending path")

// checkDuplicateKeys fails when a key name appears more than once.
func checkDuplicateKeys(n *node) error {
	seen := make(map[string]bool)
	var walk func(*node) error
	walk = func(n *node) error {
		if n.name == "pk" {
			key := n.args[0].value
			if seen[key] {
				return fmt.Errorf("policy contains duplicate key %s", key)
			}
			seen[key] = true
			return nil
		}
		for _, arg := range n.args {
			if arg.isLeaf() {
				continue
			}
			if err := walk(arg); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(n)
}

// timelocks records which kinds of timelock a subpolicy may require and
// whether some spending path requires two incompatible kinds.
type timelocks struct {
	csvHeight, csvTime   bool
	cltvHeight, cltvTime bool
	contradiction        bool
}

func (t timelocks) or(o timelocks) timelocks {
	return timelocks{
		csvHeight:     t.csvHeight || o.csvHeight,
		csvTime:       t.csvTime || o.csvTime,
		cltvHeight:    t.cltvHeight || o.cltvHeight,
		cltvTime:      t.cltvTime || o.cltvTime,
		contradiction: t.contradiction || o.contradiction,
	}
}

func (t timelocks) and(o timelocks) timelocks {
	r := t.or(o)
	r.contradiction = r.contradiction ||
		(t.csvHeight && o.csvTime) || (t.csvTime && o.csvHeight) ||
		(t.cltvHeight && o.cltvTime) || (t.cltvTime && o.cltvHeight)
	return r
}

func timelockInfo(n *node) timelocks {
	switch n.name {
	case "after":
		if n.num < lockTimeThreshold {
			return timelocks{cltvHeight: true}
		}
		return timelocks{cltvTime: true}
	case "older":
		if n.num&sequenceLockTimeTypeFlag != 0 {
			return timelocks{csvTime: true}
		}
		return timelocks{csvHeight: true}
	case "and":
		return timelockInfo(n.args[0]).and(timelockInfo(n.args[1]))
	case "or":
		return timelockInfo(n.args[0]).or(timelockInfo(n.args[1]))
	case "thresh":
		var acc timelocks
		for i, arg := range n.args[1:] {
			info := timelockInfo(arg)
			switch {
			case i == 0:
				acc = info
			case n.num > 1:
				acc = acc.and(info)
			default:
				acc = acc.or(info)
			}
		}
		return acc
	}
	return timelocks{}
}

// checkTimelocks fails when a single spending path needs both a height and
// a time lock of the same kind.
func checkTimelocks(n *node) error {
	if timelockInfo(n).contradiction {
		return errTimelockMix
	}
	return nil
}
