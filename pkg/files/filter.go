package files

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// Filter decides whether a candidate file is the one a download is waiting for.
// Implementations must be pure: the same name always yields the same answer,
// and a Filter may be shared between goroutines.
type Filter interface {
	// Matches reports whether the candidate file name is accepted
	Matches(name string) bool

	// Description is a human-readable phrase used verbatim in failure messages,
	// e.g. `with extension "pdf"`. It is empty for filters that accept everything.
	Description() string
}

// Any returns a filter that accepts every file.
func Any() Filter {
	return anyFilter{}
}

type anyFilter struct{}

func (anyFilter) Matches(string) bool  { return true }
func (anyFilter) Description() string { return "" }

// ByExtension accepts names ending with "."+ext, ignoring case.
// A leading dot in ext is tolerated, so ByExtension("pdf") and ByExtension(".pdf")
// are the same filter.
func ByExtension(ext string) Filter {
	return extensionFilter{ext: strings.TrimPrefix(ext, ".")}
}

type extensionFilter struct {
	ext string
}

func (f extensionFilter) Matches(name string) bool {
	suffix := "." + strings.ToLower(f.ext)
	return strings.HasSuffix(strings.ToLower(name), suffix)
}

func (f extensionFilter) Description() string {
	return fmt.Sprintf("with extension %q", f.ext)
}

// ByName accepts exactly the given file name.
func ByName(name string) Filter {
	return nameFilter{name: name}
}

type nameFilter struct {
	name string
}

func (f nameFilter) Matches(name string) bool {
	return name == f.name
}

func (f nameFilter) Description() string {
	return fmt.Sprintf("with file name %q", f.name)
}

// ByNameMatching accepts names matched in full by the regular expression.
func ByNameMatching(pattern string) (Filter, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("invalid file name pattern %q: %w", pattern, err)
	}
	return regexFilter{pattern: pattern, re: re}, nil
}

// MustByNameMatching is like ByNameMatching but panics on an invalid pattern.
func MustByNameMatching(pattern string) Filter {
	f, err := ByNameMatching(pattern)
	if err != nil {
		panic(err)
	}
	return f
}

type regexFilter struct {
	pattern string
	re      *regexp.Regexp
}

func (f regexFilter) Matches(name string) bool {
	return f.re.MatchString(name)
}

func (f regexFilter) Description() string {
	return fmt.Sprintf("with file name matching %q", f.pattern)
}

// ByGlob accepts names matching a shell-style glob such as "report-*.csv".
func ByGlob(pattern string) (Filter, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
	}
	return globFilter{pattern: pattern, g: g}, nil
}

type globFilter struct {
	pattern string
	g       glob.Glob
}

func (f globFilter) Matches(name string) bool {
	return f.g.Match(name)
}

func (f globFilter) Description() string {
	return fmt.Sprintf("with file name like %q", f.pattern)
}

// All combines filters with a logical AND. Nil filters are skipped; with no
// remaining filters the result accepts everything.
func All(filters ...Filter) Filter {
	parts := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			parts = append(parts, f)
		}
	}
	switch len(parts) {
	case 0:
		return Any()
	case 1:
		return parts[0]
	}
	return allFilter(parts)
}

type allFilter []Filter

func (fs allFilter) Matches(name string) bool {
	for _, f := range fs {
		if !f.Matches(name) {
			return false
		}
	}
	return true
}

func (fs allFilter) Description() string {
	descs := make([]string, 0, len(fs))
	for _, f := range fs {
		if d := f.Description(); d != "" {
			descs = append(descs, d)
		}
	}
	return strings.Join(descs, " and ")
}
