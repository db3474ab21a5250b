package audit

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"agencyops/pkg/fsutil"
	"agencyops/pkg/logx"
)

// Finding is one rule violation.
type Finding struct {
	Path     string   `json:"path"`
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Report aggregates a run.
type Report struct {
	Files    int       `json:"files"`
	Fixed    int       `json:"fixed"`
	Findings []Finding `json:"findings"`
}

// Errors counts error-severity findings.
func (r *Report) Errors() int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			n++
		}
	}
	return n
}

type Engine struct {
	rules []Rule
	log   logx.Logger
}

// New returns an engine over rules (DefaultRules when none are given).
func New(log logx.Logger, rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{rules: rules, log: log}
}

// Check runs every rule against doc.
func (e *Engine) Check(doc *Document) []Finding {
	var out []Finding
	for _, r := range e.rules {
		for _, msg := range r.Check(doc) {
			out = append(out, Finding{Path: doc.Path, Rule: r.ID, Severity: r.Severity, Message: msg})
		}
	}
	return out
}

// Fix applies the fixer of every rule that currently reports findings.
// It returns the findings that remain and whether the tree changed.
func (e *Engine) Fix(doc *Document) ([]Finding, bool) {
	changed := false
	for _, r := range e.rules {
		if r.Fix == nil || len(r.Check(doc)) == 0 {
			continue
		}
		if r.Fix(doc) {
			changed = true
		}
	}
	return e.Check(doc), changed
}

// Parse reads an HTML file.
func Parse(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	root, err := html.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &Document{Path: path, Root: root}, nil
}

// Run audits every .html/.htm file under root (or root itself when it is a
// file). With fix, changed documents are rewritten in place.
func (e *Engine) Run(ctx context.Context, root string, fix bool) (*Report, error) {
	rep := &Report{Findings: []Finding{}}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if p != root && (strings.HasPrefix(d.Name(), ".") || d.Name() == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".html", ".htm":
		default:
			return nil
		}

		doc, err := Parse(p)
		if err != nil {
			e.log.Warn("skipping unparsable document", logx.String("path", p), logx.Err(err))
			return nil
		}
		rep.Files++

		if !fix {
			rep.Findings = append(rep.Findings, e.Check(doc)...)
			return nil
		}
		remaining, changed := e.Fix(doc)
		rep.Findings = append(rep.Findings, remaining...)
		if changed {
			if err := write(doc); err != nil {
				return err
			}
			rep.Fixed++
			e.log.Info("document fixed", logx.String("path", p))
		}
		return nil
	})
	if err != nil {
		return rep, err
	}
	return rep, nil
}

func write(doc *Document) error {
	var buf bytes.Buffer
	if err := html.Render(&buf, doc.Root); err != nil {
		return fmt.Errorf("render %s: %w", doc.Path, err)
	}
	fi, err := os.Stat(doc.Path)
	if err != nil {
		return err
	}
	return fsutil.WriteFile(doc.Path, buf.Bytes(), fi.Mode().Perm())
}
