// Package logx wraps zerolog with a value-type Logger whose sinks a Service
// can swap at runtime.
//
// Console output is human readable with a short file:line caller; the file
// sink writes JSON and may roll daily through a "{date}" path token.
package logx
