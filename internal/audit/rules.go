package audit

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/atom"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Rule is a named check with an optional fixer. Fix reports whether it
// changed the document.
type Rule struct {
	ID       string
	Severity Severity
	Check    func(*Document) []string
	Fix      func(*Document) bool
}

const (
	metaDescriptionMin = 50
	metaDescriptionMax = 160
)

// DefaultRules is the built-in HTML rule set.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       "title-missing",
			Severity: SeverityError,
			Check: func(d *Document) []string {
				if t := d.First(atom.Title); t == nil || text(t) == "" {
					return []string{"document has no <title>"}
				}
				return nil
			},
		},
		{
			ID:       "meta-description-missing",
			Severity: SeverityWarning,
			Check: func(d *Document) []string {
				if c, ok := d.metaContent("description"); !ok || c == "" {
					return []string{"no meta description"}
				}
				return nil
			},
		},
		{
			ID:       "meta-description-length",
			Severity: SeverityWarning,
			Check: func(d *Document) []string {
				c, ok := d.metaContent("description")
				if !ok || c == "" {
					return nil
				}
				n := utf8.RuneCountInString(c)
				if n < metaDescriptionMin || n > metaDescriptionMax {
					return []string{fmt.Sprintf("meta description is %d characters, want %d-%d", n, metaDescriptionMin, metaDescriptionMax)}
				}
				return nil
			},
		},
		{
			ID:       "img-alt-missing",
			Severity: SeverityError,
			Check: func(d *Document) []string {
				var out []string
				for _, img := range d.Elements(atom.Img) {
					if _, ok := attr(img, "alt"); !ok {
						src, _ := attr(img, "src")
						out = append(out, fmt.Sprintf("<img src=%q> has no alt attribute", src))
					}
				}
				return out
			},
			Fix: func(d *Document) bool {
				changed := false
				for _, img := range d.Elements(atom.Img) {
					if _, ok := attr(img, "alt"); ok {
						continue
					}
					src, _ := attr(img, "src")
					setAttr(img, "alt", altFromSrc(src))
					changed = true
				}
				return changed
			},
		},
		{
			ID:       "html-lang-missing",
			Severity: SeverityError,
			Check: func(d *Document) []string {
				h := d.First(atom.Html)
				if h == nil {
					return []string{"no <html> element"}
				}
				if v, _ := attr(h, "lang"); strings.TrimSpace(v) == "" {
					return []string{"<html> has no lang attribute"}
				}
				return nil
			},
			Fix: func(d *Document) bool {
				h := d.First(atom.Html)
				if h == nil {
					return false
				}
				if v, _ := attr(h, "lang"); strings.TrimSpace(v) != "" {
					return false
				}
				setAttr(h, "lang", "en")
				return true
			},
		},
		{
			ID:       "canonical-missing",
			Severity: SeverityWarning,
			Check: func(d *Document) []string {
				for _, l := range d.Elements(atom.Link) {
					if rel, _ := attr(l, "rel"); strings.EqualFold(strings.TrimSpace(rel), "canonical") {
						if href, _ := attr(l, "href"); strings.TrimSpace(href) != "" {
							return nil
						}
					}
				}
				return []string{"no <link rel=\"canonical\">"}
			},
		},
		{
			ID:       "h1-count",
			Severity: SeverityWarning,
			Check: func(d *Document) []string {
				if n := len(d.Elements(atom.H1)); n != 1 {
					return []string{fmt.Sprintf("found %d <h1> elements, want exactly 1", n)}
				}
				return nil
			},
		},
	}
}

// altFromSrc derives alt text from an image file name:
// "/img/red-running_shoe.webp" -> "red running shoe".
func altFromSrc(src string) string {
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	base := path.Base(src)
	if base == "." || base == "/" {
		return ""
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}
