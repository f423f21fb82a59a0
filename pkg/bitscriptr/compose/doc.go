// Package compose combines already-serialized policy fragments under AND, OR
// and THRESHOLD gates.
//
// AND and OR are binary: they take exactly two constituents. THRESHOLD takes
// at least two constituents and a threshold between 1 and the constituent
// count.
//
// Example:
//
//	expr, err := compose.Compose(compose.KindThreshold, 2, []string{a, b, c})
//	// expr == "thresh(2," + a + "," + b + "," + c + ")"
//
// Nested compositions can be described as an expression tree and rendered in
// one call:
//
//	expr, err := compose.Render(compose.Or(
//		compose.Fragment(owner),
//		compose.Threshold(2, compose.Fragment(a), compose.Fragment(b), compose.Fragment(c)),
//	))
package compose
