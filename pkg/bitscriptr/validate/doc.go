// Package validate decides whether a policy expression is acceptable.
//
// A Pipeline checks an expression in three stages and stops at the first
// failure:
//
//  1. The expression must not be empty or whitespace.
//  2. Every pk(...) argument is replaced by a placeholder (see package keymap)
//     and classified (see package keys). The first rejected key ends the check
//     with the classifier's diagnostic.
//  3. The placeholder expression is compiled by a compiler.Compiler. Unsound
//     results and compiler errors make the expression invalid.
//
// A valid Verdict carries the compiled miniscript and the key map needed to
// assemble a descriptor. Each check is traced as a "bitscriptr.validate" span
// and counted in the "bitscriptr.validations" metric. Key material never
// reaches the compiler, the logger, span attributes or metric attributes.
package validate
