package htmlform

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// hiddenStylePatterns match inline styles that remove an element from
// view. Fields under these are parsed but flagged invisible so the filler
// leaves them alone (honeypot inputs are a common bot trap).
var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)display\s*:\s*none`),
	regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
	regexp.MustCompile(`(?i)opacity\s*:\s*0[^.]`),
	regexp.MustCompile(`(?i)position\s*:\s*absolute[^;]*-\d{4,}`),
}

// Parse enumerates all <form> elements in document order. Malformed
// markup never fails; the html package repairs what it can.
func Parse(body []byte, pageURL string) ([]Form, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("htmlform: parse page URL: %w", err)
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("htmlform: parse markup: %w", err)
	}

	var forms []Form
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.DataAtom != atom.Form {
			return
		}
		forms = append(forms, parseForm(n, base))
	})
	return forms, nil
}

func parseForm(formNode *html.Node, base *url.URL) Form {
	f := Form{
		RawAction: attr(formNode, "action"),
		Method:    strings.ToUpper(attr(formNode, "method")),
		ID:        attr(formNode, "id"),
		Class:     attr(formNode, "class"),
	}
	if f.Method != "GET" {
		// Contact forms overwhelmingly post; treat anything else as POST.
		f.Method = "POST"
	}
	f.Action = resolveAction(base, f.RawAction)

	// Hidden ancestry propagates: a visible input inside a display:none
	// container is still invisible.
	collectFields(formNode, &f, false)
	return f
}

func collectFields(n *html.Node, f *Form, hiddenAncestor bool) {
	hidden := hiddenAncestor || hasHiddenStyle(n)

	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Input:
			if fld, ok := parseInput(n, hidden); ok {
				f.Fields = append(f.Fields, fld)
			}
		case atom.Textarea:
			if fld, ok := parseTextarea(n, hidden); ok {
				f.Fields = append(f.Fields, fld)
			}
		case atom.Select:
			if fld, ok := parseSelect(n, hidden); ok {
				f.Fields = append(f.Fields, fld)
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectFields(c, f, hidden)
	}
}

func parseInput(n *html.Node, hiddenAncestor bool) (Field, bool) {
	name := attr(n, "name")
	if name == "" {
		return Field{}, false
	}
	kind := Kind(strings.ToLower(attr(n, "type")))
	if kind == "" {
		kind = KindText
	}
	switch kind {
	case "submit", "button", "reset", "image", "file":
		// Controls, not data fields.
		return Field{}, false
	}

	visible := kind != KindHidden && !hiddenAncestor && !hasAttr(n, "hidden") && !hasHiddenStyle(n)
	return Field{
		Name:        name,
		Kind:        kind,
		Value:       attr(n, "value"),
		Placeholder: attr(n, "placeholder"),
		Visible:     visible,
		Disabled:    hasAttr(n, "disabled"),
		Checked:     hasAttr(n, "checked"),
	}, true
}

func parseTextarea(n *html.Node, hiddenAncestor bool) (Field, bool) {
	name := attr(n, "name")
	if name == "" {
		return Field{}, false
	}
	return Field{
		Name:        name,
		Kind:        KindTextarea,
		Value:       strings.TrimSpace(nodeText(n)),
		Placeholder: attr(n, "placeholder"),
		Visible:     !hiddenAncestor && !hasAttr(n, "hidden") && !hasHiddenStyle(n),
		Disabled:    hasAttr(n, "disabled"),
	}, true
}

func parseSelect(n *html.Node, hiddenAncestor bool) (Field, bool) {
	name := attr(n, "name")
	if name == "" {
		return Field{}, false
	}
	fld := Field{
		Name:     name,
		Kind:     KindSelect,
		Visible:  !hiddenAncestor && !hasAttr(n, "hidden") && !hasHiddenStyle(n),
		Disabled: hasAttr(n, "disabled"),
	}
	walk(n, func(c *html.Node) {
		if c.Type != html.ElementNode || c.DataAtom != atom.Option {
			return
		}
		if v, ok := lookupAttr(c, "value"); ok {
			fld.Options = append(fld.Options, v)
			return
		}
		fld.Options = append(fld.Options, strings.TrimSpace(nodeText(c)))
	})
	return fld, true
}

// CaptchaInputName returns the name of the first input anywhere in the
// markup whose name contains "captcha", or "" when none exists. Image
// captcha answers are typed into this field.
func CaptchaInputName(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var found string
	walk(doc, func(n *html.Node) {
		if found != "" || n.Type != html.ElementNode || n.DataAtom != atom.Input {
			return
		}
		name := attr(n, "name")
		if name != "" && strings.Contains(strings.ToLower(name), "captcha") {
			found = name
		}
	})
	return found
}

func resolveAction(base *url.URL, action string) string {
	if action == "" {
		return base.String()
	}
	ref, err := url.Parse(action)
	if err != nil {
		return base.String()
	}
	return base.ResolveReference(ref).String()
}

// walk visits every node depth-first.
func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := lookupAttr(n, key)
	return ok
}

func hasHiddenStyle(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	style, ok := lookupAttr(n, "style")
	if !ok {
		return false
	}
	for _, pat := range hiddenStylePatterns {
		if pat.MatchString(style) {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	})
	return sb.String()
}
