// Package frontmatter decodes, repairs, and re-encodes the YAML block at the
// top of a vault document.
package frontmatter

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const delim = "---"

// Keys whose values are lists of references.
var listKeys = []string{"orbits", "satellites"}

var (
	// orbits: {a, b   or   satellites: [a, b   left open at end of line.
	openListRe = regexp.MustCompile(`(?m)^(\s*(?:orbits|satellites):[ \t]*)[{\[]([^}\]\n]*?)[ \t]*$`)
	dateTagRe  = regexp.MustCompile(`<%\s*tp\.date\.now\([^)]*\)\s*%>`)
	tagRe      = regexp.MustCompile(`<%[^%]*%>`)
	// PROJECT_TITLE, DOMAIN_VALUE and friends.
	placeholderRe = regexp.MustCompile(`\b[A-Z][A-Z0-9]*(?:_[A-Z0-9]+)+\b`)
	// title: TITLE   or   - TAG  where the whole value is a placeholder.
	placeholderValueRe = regexp.MustCompile(`(?m)^([ \t]*(?:[\w-]+:|-))[ \t]+[A-Z][A-Z0-9_]+[ \t]*$`)
)

// Decode splits data into its frontmatter map and body. It returns a nil map
// when the document has no usable metadata: no leading delimiter, no closing
// delimiter, a block that stays invalid after repair, or an empty/non-mapping
// block.
func Decode(data []byte) (map[string]any, string) {
	block, body, ok := split(data)
	if !ok {
		return nil, string(data)
	}

	meta, err := decodeBlock(block)
	if err != nil {
		meta, err = decodeBlock(Repair(block, time.Now()))
		if err != nil {
			return nil, string(data)
		}
	}
	if len(meta) == 0 {
		return nil, string(data)
	}
	return meta, body
}

// Encode serializes meta (keys sorted) and wraps it in delimiters followed by body.
func Encode(meta map[string]any, body string) ([]byte, error) {
	out, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("frontmatter: encode: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	buf.Write(out)
	buf.WriteString(delim + "\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// Repair applies best-effort fixes to a broken YAML block: unterminated
// orbits/satellites collections become lists and templater leftovers are
// stripped. Date tags are replaced with now formatted as YYYY-MM-DD.
func Repair(block string, now time.Time) string {
	block = openListRe.ReplaceAllString(block, "${1}[${2}]")
	block = dateTagRe.ReplaceAllString(block, now.Format("2006-01-02"))
	block = tagRe.ReplaceAllString(block, "")
	block = placeholderValueRe.ReplaceAllString(block, "${1}")
	block = placeholderRe.ReplaceAllString(block, "")
	return block
}

// split locates the block between the opening and closing delimiter lines.
func split(data []byte) (string, string, bool) {
	text := strings.TrimPrefix(string(data), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	first, rest, found := strings.Cut(text, "\n")
	if !found || strings.TrimRight(first, " \t") != delim {
		return "", "", false
	}

	// Closing delimiter may be the very first line of rest (empty block).
	if strings.HasPrefix(rest, delim+"\n") || rest == delim {
		return "", strings.TrimPrefix(strings.TrimPrefix(rest, delim), "\n"), true
	}
	idx := strings.Index(rest, "\n"+delim)
	for idx >= 0 {
		end := idx + 1 + len(delim)
		if end == len(rest) || rest[end] == '\n' {
			body := rest[end:]
			body = strings.TrimPrefix(body, "\n")
			return rest[:idx], body, true
		}
		next := strings.Index(rest[end:], "\n"+delim)
		if next < 0 {
			break
		}
		idx = end + next
	}
	return "", "", false
}

// decodeBlock decodes via a yaml.Node so that flow mappings used as lists
// (orbits: {a, b}) keep their declaration order.
func decodeBlock(block string) (map[string]any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(block), &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nil
	}

	var meta map[string]any
	if err := root.Decode(&meta); err != nil {
		return nil, err
	}
	for k, v := range meta {
		// Bare dates decode as time.Time; keep them as written.
		if ts, ok := v.(time.Time); ok && ts.Equal(ts.Truncate(24*time.Hour)) {
			meta[k] = ts.Format("2006-01-02")
		}
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i].Value, root.Content[i+1]
		if !isListKey(key) || val.Kind != yaml.MappingNode {
			continue
		}
		keys := make([]any, 0, len(val.Content)/2)
		for j := 0; j+1 < len(val.Content); j += 2 {
			keys = append(keys, val.Content[j].Value)
		}
		meta[key] = keys
	}
	return meta, nil
}

func isListKey(k string) bool {
	for _, lk := range listKeys {
		if k == lk {
			return true
		}
	}
	return false
}

// StringList normalises a frontmatter value into a list of non-empty strings.
// A bare string becomes a one-element list; mapping keys are used for maps.
func StringList(v any) []string {
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	switch t := v.(type) {
	case nil:
	case string:
		add(t)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				add(s)
			} else if item != nil {
				add(fmt.Sprint(item))
			}
		}
	case []string:
		for _, s := range t {
			add(s)
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			add(k)
		}
	default:
		add(fmt.Sprint(t))
	}
	return out
}

// String returns v as a trimmed string; non-string scalars are formatted.
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Ref unwraps a "[[Name|alias]]" wiki link into Name. An unquoted link
// decodes as a nested YAML list and arrives here as "[Name]".
func Ref(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		s = strings.Trim(s, "[]")
		if i := strings.IndexByte(s, '|'); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

// RefList is StringList with every item passed through Ref.
func RefList(v any) []string {
	var out []string
	for _, s := range StringList(v) {
		if name := Ref(s); name != "" {
			out = append(out, name)
		}
	}
	return out
}
