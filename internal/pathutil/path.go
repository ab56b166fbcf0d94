// Package pathutil implements spec.md §4.1 (C1): representing, parsing,
// rendering, and comparing paths in three styles, and traversing a
// jsontree.Value by path.
package pathutil

import (
	"strconv"
	"strings"

	"github.com/deltastream/core/internal/errs"
)

// Style selects a rendering (and parsing) convention for a Path.
type Style int

const (
	StyleDot Style = iota
	StyleSlash
	StyleBracket
)

func ParseStyle(s string) (Style, bool) {
	switch strings.ToLower(s) {
	case "dot", "":
		return StyleDot, true
	case "slash":
		return StyleSlash, true
	case "bracket":
		return StyleBracket, true
	default:
		return 0, false
	}
}

// Segment is one element of a canonical Path: either an object key or an
// array index, never both — IsIndex says which field is meaningful.
type Segment struct {
	IsIndex bool
	Key     string
	Index   int
}

func Key(k string) Segment    { return Segment{Key: k} }
func Index(i int) Segment     { return Segment{IsIndex: true, Index: i} }

// Path is the canonical, tagged ordered list of segments. It is never
// compared or hashed by its string rendering — two Paths are equal iff
// their segment lists are equal — which avoids collisions when object
// keys contain a style's delimiter characters (spec.md §3).
type Path []Segment

// Root is the empty path, denoting the document root.
func Root() Path { return Path{} }

func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// IsPrefixOf reports whether p is a (non-strict) prefix of other.
func (p Path) IsPrefixOf(other Path) bool {
	if len(p) > len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// IsStrictPrefixOf reports whether p is a prefix of other and shorter.
func (p Path) IsStrictPrefixOf(other Path) bool {
	return len(p) < len(other) && p.IsPrefixOf(other)
}

// Append returns a new Path with seg appended, never mutating p.
func (p Path) Append(seg Segment) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = seg
	return out
}

// Clone returns an independent copy of p.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// CanonicalKey returns an unambiguous string key for p, safe for use as
// a map key by internal bookkeeping (content-hash memo, coalescer
// groups) that needs to distinguish structurally different paths. It is
// never a rendering a caller should parse back — use Render for that —
// and deliberately differs from every Render style: an object key "0"
// and array index 0 render identically in slash/bracket style (both
// "/0") but must hash to distinct entries, and a key containing a
// style's own delimiter must not collide with an unrelated path that
// happens to render the same string (spec.md §3).
func (p Path) CanonicalKey() string {
	var b strings.Builder
	for _, seg := range p {
		if seg.IsIndex {
			b.WriteByte('i')
			b.WriteString(strconv.Itoa(seg.Index))
		} else {
			b.WriteByte('k')
			b.WriteString(strconv.Itoa(len(seg.Key)))
			b.WriteByte(':')
			b.WriteString(seg.Key)
		}
		b.WriteByte(';')
	}
	return b.String()
}

// Parse parses a rendered path string of the given style into canonical
// form. Dot style forbids literal dots or brackets inside bare keys —
// callers needing such keys must use bracket style (spec.md §4.1).
func Parse(s string, style Style) (Path, error) {
	if s == "" {
		return Root(), nil
	}
	switch style {
	case StyleDot:
		return parseDot(s)
	case StyleSlash:
		return parseSlash(s)
	case StyleBracket:
		return parseBracket(s)
	default:
		return nil, errs.BadPath("unknown path style")
	}
}

func parseDot(s string) (Path, error) {
	var p Path
	i := 0
	for i < len(s) {
		switch s[i] {
		case '.':
			return nil, errs.BadPath("unexpected '.' at position " + strconv.Itoa(i))
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end == -1 {
				return nil, errs.BadPath("unterminated '[' at position " + strconv.Itoa(i))
			}
			numStr := s[i+1 : i+end]
			idx, err := strconv.Atoi(numStr)
			if err != nil || idx < 0 {
				return nil, errs.BadPath("invalid array index " + strconv.Quote(numStr))
			}
			p = append(p, Index(idx))
			i += end + 1
			if i < len(s) && s[i] == '.' {
				i++
			}
		default:
			end := i
			for end < len(s) && s[end] != '.' && s[end] != '[' {
				if s[end] == ']' {
					return nil, errs.BadPath("unexpected ']' at position " + strconv.Itoa(end))
				}
				end++
			}
			if end == i {
				return nil, errs.BadPath("empty key segment")
			}
			p = append(p, Key(s[i:end]))
			i = end
			if i < len(s) && s[i] == '.' {
				i++
			}
		}
	}
	return p, nil
}

func parseSlash(s string) (Path, error) {
	if !strings.HasPrefix(s, "/") {
		return nil, errs.BadPath("slash-style path must start with '/'")
	}
	parts := strings.Split(s[1:], "/")
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, errs.BadPath("empty segment in slash-style path")
		}
		if idx, err := strconv.Atoi(part); err == nil && idx >= 0 && isAllDigits(part) {
			p = append(p, Index(idx))
		} else {
			p = append(p, Key(unescapeSlash(part)))
		}
	}
	return p, nil
}

func parseBracket(s string) (Path, error) {
	var p Path
	i := 0
	// first segment may appear unbracketed (a[b][0]) or bracketed ([a][b][0])
	for i < len(s) {
		if s[i] != '[' {
			end := strings.IndexByte(s[i:], '[')
			var key string
			if end == -1 {
				key = s[i:]
				i = len(s)
			} else {
				key = s[i : i+end]
				i += end
			}
			if key == "" {
				return nil, errs.BadPath("empty key segment")
			}
			p = append(p, Key(key))
			continue
		}
		end := strings.IndexByte(s[i:], ']')
		if end == -1 {
			return nil, errs.BadPath("unterminated '[' at position " + strconv.Itoa(i))
		}
		inner := s[i+1 : i+end]
		if idx, err := strconv.Atoi(inner); err == nil && idx >= 0 && isAllDigits(inner) {
			p = append(p, Index(idx))
		} else {
			if inner == "" {
				return nil, errs.BadPath("empty bracket segment")
			}
			p = append(p, Key(inner))
		}
		i += end + 1
	}
	return p, nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func unescapeSlash(s string) string {
	s = strings.ReplaceAll(s, "~1", "/")
	s = strings.ReplaceAll(s, "~0", "~")
	return s
}

func escapeSlash(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	s = strings.ReplaceAll(s, "/", "~1")
	return s
}

// Render is total: it never fails, even for keys that would make the
// rendering ambiguous to re-parse (round-trip is only guaranteed for
// keys that don't conflict with the style's delimiters, per spec.md §8).
func Render(p Path, style Style) string {
	switch style {
	case StyleSlash:
		return renderSlash(p)
	case StyleBracket:
		return renderBracket(p)
	default:
		return renderDot(p)
	}
}

func renderDot(p Path) string {
	var b strings.Builder
	for i, seg := range p {
		if seg.IsIndex {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(seg.Index))
			b.WriteByte(']')
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.Key)
	}
	return b.String()
}

func renderSlash(p Path) string {
	var b strings.Builder
	for _, seg := range p {
		b.WriteByte('/')
		if seg.IsIndex {
			b.WriteString(strconv.Itoa(seg.Index))
		} else {
			b.WriteString(escapeSlash(seg.Key))
		}
	}
	return b.String()
}

func renderBracket(p Path) string {
	var b strings.Builder
	for i, seg := range p {
		if seg.IsIndex {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(seg.Index))
			b.WriteByte(']')
			continue
		}
		if i == 0 {
			b.WriteString(seg.Key)
		} else {
			b.WriteByte('[')
			b.WriteString(seg.Key)
			b.WriteByte(']')
		}
	}
	return b.String()
}
