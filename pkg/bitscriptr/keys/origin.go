package keys

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// stripOrigin removes a leading [fingerprint/path] key origin from s.
func stripOrigin(s string) (string, error) {
	if !strings.HasPrefix(s, "[") {
		return s, nil
	}
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return "", errors.New("missing closing bracket")
	}
	parts := strings.Split(s[1:end], "/")
	if len(parts[0]) != 8 || !isHex(parts[0]) {
		return "", fmt.Errorf("fingerprint %q must be 8 hex characters", parts[0])
	}
	for _, p := range parts[1:] {
		if err := checkIndex(p); err != nil {
			return "", err
		}
	}
	body := s[end+1:]
	if body == "" {
		return "", errors.New("no key after origin")
	}
	return body, nil
}

// checkDerivation validates a derivation suffix such as /0/*, /1h/2 or
// /<0;1>/*. An empty path is valid.
func checkDerivation(path string) error {
	if path == "" {
		return nil
	}
	elems := strings.Split(strings.TrimPrefix(path, "/"), "/")
	multipath := false
	for i, e := range elems {
		switch {
		case e == "*" || e == "*'" || e == "*h":
			if i != len(elems)-1 {
				return errors.New("wildcard must be the last element")
			}
		case strings.HasPrefix(e, "<") && strings.HasSuffix(e, ">"):
			if multipath {
				return errors.New("at most one multipath element")
			}
			multipath = true
			alts := strings.Split(e[1:len(e)-1], ";")
			if len(alts) < 2 {
				return fmt.Errorf("multipath element %q needs at least two indexes", e)
			}
			for _, a := range alts {
				if err := checkIndex(a); err != nil {
					return err
				}
			}
		default:
			if err := checkIndex(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkIndex(p string) error {
	n := strings.TrimRight(p, "'h")
	if len(p)-len(n) > 1 {
		return fmt.Errorf("index %q has more than one hardened marker", p)
	}
	if _, err := strconv.ParseUint(n, 10, 31); err != nil {
		return fmt.Errorf("index %q is not a derivation index", p)
	}
	return nil
}
