package inline

import (
	"fmt"
	"strings"
)

// Rule is one row of the rule table: a selector and a single declaration.
type Rule struct {
	Selector string
	Property string
	Value    string
}

// RuleTable lists rules in the order the stylesheet declared them.
type RuleTable []Rule

// dynamicPseudo lists selectors that depend on user interaction and can
// never be expressed as a style attribute.
var dynamicPseudo = []string{":hover", ":focus", ":active", ":visited", ":target", ":checked"}

// ParseStylesheet reads a stylesheet into a rule table. At-rules are
// skipped with their blocks, as are selectors with pseudo-elements or
// interaction pseudo-classes. Unterminated blocks and comments are errors.
func ParseStylesheet(css string) (RuleTable, error) {
	css, err := stripComments(css)
	if err != nil {
		return nil, err
	}

	var rules RuleTable
	i := 0
	for {
		for i < len(css) && isSpace(css[i]) {
			i++
		}
		if i >= len(css) {
			return rules, nil
		}

		if css[i] == '@' {
			end := strings.IndexAny(css[i:], ";{")
			if end < 0 {
				return nil, malformed("unterminated at-rule")
			}
			end += i
			if css[end] == ';' {
				i = end + 1
				continue
			}
			next, err := skipBlock(css, end)
			if err != nil {
				return nil, err
			}
			i = next
			continue
		}

		open := strings.IndexByte(css[i:], '{')
		if open < 0 {
			return nil, malformed(fmt.Sprintf("rule without block: %q", strings.TrimSpace(css[i:])))
		}
		prelude := css[i : i+open]
		if strings.ContainsRune(prelude, '}') {
			return nil, malformed("unexpected '}'")
		}
		bodyStart := i + open + 1
		closing := strings.IndexByte(css[bodyStart:], '}')
		if closing < 0 {
			return nil, malformed(fmt.Sprintf("unterminated block for %q", strings.TrimSpace(prelude)))
		}
		body := css[bodyStart : bodyStart+closing]
		if strings.ContainsRune(body, '{') {
			return nil, malformed(fmt.Sprintf("nested block in %q", strings.TrimSpace(prelude)))
		}
		i = bodyStart + closing + 1

		decls := parseDeclarations(body)
		for _, sel := range strings.Split(prelude, ",") {
			sel = strings.Join(strings.Fields(sel), " ")
			if !inlinable(sel) {
				continue
			}
			for _, d := range decls {
				rules = append(rules, Rule{Selector: sel, Property: d.Property, Value: d.Value})
			}
		}
	}
}

func inlinable(selector string) bool {
	if selector == "" || strings.Contains(selector, "::") {
		return false
	}
	lower := strings.ToLower(selector)
	for _, p := range dynamicPseudo {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}

// skipBlock returns the index just past the block opened at css[open],
// honoring nested blocks.
func skipBlock(css string, open int) (int, error) {
	depth := 0
	for j := open; j < len(css); j++ {
		switch css[j] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return j + 1, nil
			}
		}
	}
	return 0, malformed("unterminated at-rule block")
}

func stripComments(css string) (string, error) {
	var b strings.Builder
	for {
		start := strings.Index(css, "/*")
		if start < 0 {
			b.WriteString(css)
			return b.String(), nil
		}
		end := strings.Index(css[start+2:], "*/")
		if end < 0 {
			return "", malformed("unterminated comment")
		}
		b.WriteString(css[:start])
		b.WriteByte(' ')
		css = css[start+2+end+2:]
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r' || c == '\f'
}

// Declaration is one property: value pair.
type Declaration struct {
	Property string
	Value    string
}

// parseDeclarations splits a declaration block. Entries without a colon
// are ignored, as a browser would.
func parseDeclarations(block string) []Declaration {
	var out []Declaration
	for _, part := range strings.Split(block, ";") {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		value = strings.TrimSpace(value)
		if prop == "" || value == "" {
			continue
		}
		out = append(out, Declaration{Property: prop, Value: value})
	}
	return out
}

// styleSet is an ordered property map. Overwriting a property keeps its
// original position.
type styleSet struct {
	order  []string
	values map[string]string
}

func newStyleSet() *styleSet {
	return &styleSet{values: make(map[string]string)}
}

func (s *styleSet) set(prop, value string) {
	if _, ok := s.values[prop]; !ok {
		s.order = append(s.order, prop)
	}
	s.values[prop] = value
}

func (s *styleSet) String() string {
	parts := make([]string, 0, len(s.order))
	for _, p := range s.order {
		parts = append(parts, p+": "+s.values[p])
	}
	return strings.Join(parts, "; ")
}
