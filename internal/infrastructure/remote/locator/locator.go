// Package locator describes how to find a control on the remote page.
package locator

import (
	"encoding/json"
	"fmt"
	"strings"
)

type By string

const (
	ByID    By = "id"
	ByName  By = "name"
	ByCSS   By = "css"
	ByXPath By = "xpath"
	ByText  By = "text"
)

// Locator is one way of finding an element. Name is used in logs and
// error messages.
type Locator struct {
	Name  string `yaml:"name"`
	By    By     `yaml:"by"`
	Value string `yaml:"value"`
}

func ID(id string) Locator { return Locator{Name: "id:" + id, By: ByID, Value: id} }

func Name(name string) Locator { return Locator{Name: "name:" + name, By: ByName, Value: name} }

func CSS(sel string) Locator { return Locator{Name: "css:" + sel, By: ByCSS, Value: sel} }

func XPath(expr string) Locator { return Locator{Name: "xpath:" + expr, By: ByXPath, Value: expr} }

func Text(text string) Locator { return Locator{Name: "text:" + text, By: ByText, Value: text} }

func (l Locator) String() string {
	if l.Name != "" {
		return l.Name
	}
	return string(l.By) + ":" + l.Value
}

func (l Locator) Validate() error {
	if strings.TrimSpace(l.Value) == "" {
		return fmt.Errorf("locator %q: empty value", l.String())
	}
	switch l.By {
	case ByID, ByName, ByCSS, ByXPath, ByText:
		return nil
	default:
		return fmt.Errorf("locator %q: unknown strategy %q", l.String(), l.By)
	}
}

type QueryKind int

const (
	QueryCSS QueryKind = iota
	QueryXPath
)

// Query reduces the locator to a CSS selector or an XPath expression.
func (l Locator) Query() (QueryKind, string) {
	switch l.By {
	case ByID:
		return QueryCSS, "#" + cssIdent(l.Value)
	case ByName:
		return QueryCSS, fmt.Sprintf("[name=%s]", cssString(l.Value))
	case ByXPath:
		return QueryXPath, l.Value
	case ByText:
		return QueryXPath, fmt.Sprintf("//*[contains(normalize-space(text()), %s)]", xpathString(l.Value))
	default:
		return QueryCSS, l.Value
	}
}

// JSExpr is a browser expression evaluating to the element or null.
func (l Locator) JSExpr() string {
	kind, q := l.Query()
	quoted, _ := json.Marshal(q)
	if kind == QueryXPath {
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", quoted)
	}
	return fmt.Sprintf("document.querySelector(%s)", quoted)
}

func cssIdent(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '-':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				fmt.Fprintf(&b, "\\3%c ", r)
				continue
			}
			b.WriteRune(r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

func cssString(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

// xpathString quotes s for XPath 1.0, which has no escape sequences.
func xpathString(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}
