package routing

import (
	"fmt"
	"strings"
)

// Pattern matches a request path and captures template parameters into
// the provided Values. Implementations are immutable after construction
// and safe for concurrent use.
type Pattern interface {
	// Match reports whether path matches, filling values with the
	// captured parameters on success. values may be left partially
	// filled on a failed match, callers reset it between attempts.
	Match(path string, values *Values) bool
}

type exactPattern struct {
	path string
}

// Exact returns a Pattern matching path by case-insensitive full-string
// equality. It captures no parameters.
func Exact(path string) Pattern {
	return &exactPattern{path: normalize(path)}
}

func (p *exactPattern) Match(path string, _ *Values) bool {
	return strings.EqualFold(normalize(path), p.path)
}

func (p *exactPattern) String() string { return p.path }

type templateSegment struct {
	literal string
	name    string // non-empty for a {name} placeholder
}

type templatePattern struct {
	template string
	segments []templateSegment
}

// NewTemplate parses a path template with {name} placeholders, for
// example /badges/packages/{provider}/{package}. A placeholder matches
// exactly one non-empty path segment; literal segments compare
// case-insensitively. Placeholder names within one template must be
// distinct.
func NewTemplate(template string) (Pattern, error) {
	t := normalize(template)
	if t == "" || t[0] != '/' {
		return nil, fmt.Errorf("routing: template %q must start with /", template)
	}

	var segments []templateSegment
	seen := make(map[string]bool)
	for _, seg := range strings.Split(t[1:], "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			name := seg[1 : len(seg)-1]
			if name == "" {
				return nil, fmt.Errorf("routing: template %q has an unnamed placeholder", template)
			}
			if seen[name] {
				return nil, fmt.Errorf("routing: template %q repeats placeholder %q", template, name)
			}
			seen[name] = true
			segments = append(segments, templateSegment{name: name})
		} else if strings.ContainsAny(seg, "{}") {
			return nil, fmt.Errorf("routing: template %q has a malformed segment %q", template, seg)
		} else {
			segments = append(segments, templateSegment{literal: seg})
		}
	}
	return &templatePattern{template: t, segments: segments}, nil
}

// MustTemplate is like NewTemplate but panics on a malformed template.
// Route tables are fixed at build time, so this is the usual constructor.
func MustTemplate(template string) Pattern {
	p, err := NewTemplate(template)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *templatePattern) Match(path string, values *Values) bool {
	path = normalize(path)
	if path == "" || path[0] != '/' {
		return false
	}

	// Walk the path by segment boundaries without splitting, capturing
	// placeholder spans as offsets into the original string.
	i := 1
	for segIdx, seg := range p.segments {
		end := len(path)
		if j := strings.IndexByte(path[i:], '/'); j >= 0 {
			end = i + j
		}
		last := segIdx == len(p.segments)-1
		if last && end != len(path) {
			return false // path has more segments than the template
		}
		if seg.name != "" {
			if end == i {
				return false // empty placeholder captures are rejected
			}
			if values != nil {
				values.add(seg.name, i, end-i)
			}
		} else if !strings.EqualFold(path[i:end], seg.literal) {
			return false
		}
		if !last {
			if end == len(path) {
				return false // template has more segments than the path
			}
			i = end + 1
		}
	}
	return true
}

func (p *templatePattern) String() string { return p.template }

// normalize strips a single trailing slash so that /health/ and /health
// are the same route. The root path is left alone.
func normalize(path string) string {
	if len(path) > 1 && path[len(path)-1] == '/' {
		return path[:len(path)-1]
	}
	return path
}
