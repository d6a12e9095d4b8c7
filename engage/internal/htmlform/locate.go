package htmlform

import "strings"

// contactKeywords signal contact intent in form attributes and field
// names. Checked as substrings, lowercased.
var contactKeywords = []string{
	"contact",
	"message",
	"inquiry",
	"quote",
	"consultation",
	"appointment",
	"booking",
	"request",
	"form",
}

// implicitPhrases are strong contact indicators in raw page text, used
// only when the page has no <form> at all.
var implicitPhrases = []string{
	"contact form",
	"contact us",
	"get in touch",
	"send message",
	"inquiry form",
	"quote request",
	"free consultation",
}

// implicitTokens are generic form-markup fragments; the weakest signal.
var implicitTokens = []string{
	"<form",
	"method=",
	"action=",
	"<textarea",
}

// Locate picks the most plausible contact form. Priority: a form whose
// action/id/class carries a contact keyword, then a form with a
// contact-keyword field, then the first form, then an implicit form when
// the bare markup still hints at one. ok is false when nothing qualifies.
func Locate(forms []Form, markup []byte, pageURL string) (form *Form, ok bool) {
	for i := range forms {
		if hasContactAttrs(&forms[i]) {
			return &forms[i], true
		}
	}
	for i := range forms {
		if hasContactField(&forms[i]) {
			return &forms[i], true
		}
	}
	if len(forms) > 0 {
		return &forms[0], true
	}

	// No structural form. A last-resort implicit candidate posts against
	// the page URL itself; only the scripted backend can discover what,
	// if anything, renders there.
	content := strings.ToLower(string(markup))
	for _, phrase := range implicitPhrases {
		if strings.Contains(content, phrase) {
			return &Form{Action: pageURL, Method: "POST", Implicit: true}, true
		}
	}
	for _, tok := range implicitTokens {
		if strings.Contains(content, tok) {
			return &Form{Action: pageURL, Method: "POST", Implicit: true}, true
		}
	}
	return nil, false
}

func hasContactAttrs(f *Form) bool {
	haystack := strings.ToLower(f.RawAction + " " + f.ID + " " + f.Class)
	for _, kw := range contactKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

func hasContactField(f *Form) bool {
	for _, fld := range f.Fields {
		haystack := strings.ToLower(fld.Name + " " + fld.Placeholder)
		for _, kw := range contactKeywords {
			if strings.Contains(haystack, kw) {
				return true
			}
		}
	}
	return false
}
