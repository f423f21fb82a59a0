// Package keymap isolates key material from the policy compiler.
//
// Extract replaces the content of every pk(...) fragment with a positional
// placeholder (key1, key2, ...) and records the mapping; Reinsert reverses it.
// Reinsertion always substitutes the longest placeholder names first so key1
// never matches inside key10.
package keymap

import (
	"sort"
	"strconv"
	"strings"
)

const placeholderPrefix = "key"

// Map is a bidirectional mapping between placeholders and key content. The
// zero value is an empty map ready for use.
type Map struct {
	order  []string          // placeholders in first-occurrence order
	byName map[string]string // placeholder -> key
	byKey  map[string]string // key -> placeholder
}

// Len returns the number of distinct keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// Placeholders returns the placeholders in first-occurrence order.
func (m *Map) Placeholders() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.order...)
}

// Lookup returns the key content recorded for placeholder.
func (m *Map) Lookup(placeholder string) (string, bool) {
	if m == nil {
		return "", false
	}
	k, ok := m.byName[placeholder]
	return k, ok
}

// Placeholder returns the placeholder assigned to key.
func (m *Map) Placeholder(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	p, ok := m.byKey[key]
	return p, ok
}

// add returns the placeholder for key, assigning the next one if key is new.
func (m *Map) add(key string) string {
	if p, ok := m.byKey[key]; ok {
		return p
	}
	if m.byName == nil {
		m.byName = make(map[string]string)
		m.byKey = make(map[string]string)
	}
	p := placeholderPrefix + strconv.Itoa(len(m.order)+1)
	m.order = append(m.order, p)
	m.byName[p] = key
	m.byKey[key] = p
	return p
}

// Extract rewrites expr with every pk(...) content replaced by a placeholder.
// Identical key content shares one placeholder. A pk( preceded by an
// identifier character, as in mypk(, is left alone.
func Extract(expr string) (string, *Map) {
	m := &Map{}
	var b strings.Builder
	b.Grow(len(expr))

	i := 0
	for i < len(expr) {
		j := strings.Index(expr[i:], "pk(")
		if j < 0 {
			break
		}
		start := i + j
		if start > 0 && isIdentByte(expr[start-1]) {
			b.WriteString(expr[i : start+3])
			i = start + 3
			continue
		}
		open := start + 3
		closing := matchParen(expr, open)
		if closing < 0 {
			break
		}
		b.WriteString(expr[i:open])
		b.WriteString(m.add(expr[open:closing]))
		b.WriteByte(')')
		i = closing + 1
	}
	b.WriteString(expr[i:])
	return b.String(), m
}

// Reinsert substitutes the original key content back into expr.
func Reinsert(expr string, m *Map) string {
	return m.Reinsert(expr)
}

// Reinsert substitutes the original key content back into expr, longest
// placeholder name first.
func (m *Map) Reinsert(expr string) string {
	if m.Len() == 0 {
		return expr
	}
	names := m.Placeholders()
	sort.SliceStable(names, func(a, b int) bool {
		return len(names[a]) > len(names[b])
	})
	// Placeholders are swapped for sentinel bytes first so that key content
	// containing another placeholder's name is never rewritten twice.
	sentinels := make([]string, len(names))
	for i, p := range names {
		sentinels[i] = "\x00" + strconv.Itoa(i) + "\x00"
		expr = strings.ReplaceAll(expr, p, sentinels[i])
	}
	for i, p := range names {
		expr = strings.ReplaceAll(expr, sentinels[i], m.byName[p])
	}
	return expr
}

// matchParen returns the index of the ')' closing the group whose content
// starts at open, or -1.
func matchParen(s string, open int) int {
	depth := 1
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
