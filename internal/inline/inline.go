// Package inline moves stylesheet rules onto the elements they match so
// that a document renders in mail clients that ignore <style> blocks.
package inline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ErrMalformed is returned for markup or CSS that cannot be inlined safely.
var ErrMalformed = errors.New("malformed markup")

func malformed(detail string) error {
	return fmt.Errorf("%w: %s", ErrMalformed, detail)
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// Inline returns markup with every <style> rule applied as a style
// attribute, in declaration order, with the element's own style attribute
// applied last. The <style> elements are removed, as is the class attribute
// of every element that received rule styles. Element structure, text and
// other attributes are preserved. Running Inline on its own output is a
// no-op.
func Inline(markup string) (string, error) {
	if err := validate(markup); err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parsing markup: %w", err)
	}

	var table RuleTable
	var parseErr error
	doc.Find("style").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rules, err := ParseStylesheet(s.Text())
		if err != nil {
			parseErr = err
			return false
		}
		table = append(table, rules...)
		return true
	})
	if parseErr != nil {
		return "", parseErr
	}

	styles, order := apply(doc, table)
	for _, n := range order {
		sel := doc.FindNodes(n)
		set := styles[n]
		if own, ok := sel.Attr("style"); ok {
			for _, d := range parseDeclarations(own) {
				set.set(d.Property, d.Value)
			}
		}
		sel.SetAttr("style", set.String())
		removeAttr(n, "class")
	}
	doc.Find("style").Remove()

	var buf bytes.Buffer
	if err := html.Render(&buf, doc.Get(0)); err != nil {
		return "", fmt.Errorf("rendering markup: %w", err)
	}
	return buf.String(), nil
}

// apply evaluates the rule table against doc and returns the collected
// styles per element plus the elements in first-match order.
func apply(doc *goquery.Document, table RuleTable) (map[*html.Node]*styleSet, []*html.Node) {
	styles := make(map[*html.Node]*styleSet)
	var order []*html.Node
	matches := make(map[string][]*html.Node)

	for _, rule := range table {
		nodes, seen := matches[rule.Selector]
		if !seen {
			m, err := cascadia.Compile(rule.Selector)
			if err == nil {
				nodes = doc.FindMatcher(m).Nodes
			}
			matches[rule.Selector] = nodes
		}
		for _, n := range nodes {
			set, ok := styles[n]
			if !ok {
				set = newStyleSet()
				styles[n] = set
				order = append(order, n)
			}
			set.set(rule.Property, rule.Value)
		}
	}
	return styles, order
}

// removeAttr deletes key from n, keeping the other attributes in order.
func removeAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace != "" || a.Key != key {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

// validate rejects markup whose tags do not nest. Void elements need no end
// tag; every other element must be closed explicitly.
func validate(markup string) error {
	z := html.NewTokenizer(strings.NewReader(markup))
	var stack []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			if len(stack) > 0 {
				return malformed(fmt.Sprintf("unclosed <%s>", stack[len(stack)-1]))
			}
			return nil
		case html.StartTagToken:
			name, _ := z.TagName()
			if !voidElements[string(name)] {
				stack = append(stack, string(name))
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if voidElements[tag] {
				continue
			}
			if len(stack) == 0 {
				return malformed(fmt.Sprintf("unexpected </%s>", tag))
			}
			if top := stack[len(stack)-1]; top != tag {
				return malformed(fmt.Sprintf("</%s> closes <%s>", tag, top))
			}
			stack = stack[:len(stack)-1]
		}
	}
}
