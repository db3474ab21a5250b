// Package audit runs declarative rules over HTML documents. A rule pairs a
// check that reports findings with an optional fixer that edits the tree in
// place; the engine re-checks after fixing and rewrites changed files.
package audit
