// Package htmlform parses arbitrary markup into form candidates, picks
// the most plausible contact form, and builds the field→value map for
// submission. One parser serves both evidence sources: static fetch
// bodies and live-DOM snapshots from the scripted backend.
package htmlform

// Kind is a field's input kind, normalized to lowercase.
type Kind string

const (
	KindText     Kind = "text"
	KindEmail    Kind = "email"
	KindTel      Kind = "tel"
	KindHidden   Kind = "hidden"
	KindCheckbox Kind = "checkbox"
	KindRadio    Kind = "radio"
	KindSelect   Kind = "select"
	KindTextarea Kind = "textarea"
)

// Field describes one input, textarea, or select inside a form. Fields
// without a name are dropped at parse time; they can never contribute to
// a submission.
type Field struct {
	Name        string
	Kind        Kind
	Value       string // value attribute, or textarea text
	Placeholder string
	Visible     bool
	Disabled    bool
	Checked     bool
	Options     []string // select options, in document order
}

// Form is one submission candidate.
type Form struct {
	Action    string // absolute, resolved against the page URL
	RawAction string // action attribute as written; used for intent scoring
	Method    string // GET or POST
	ID        string
	Class     string
	Implicit  bool // page treated as a form; no parsed fields
	Fields    []Field
}

// Identity is the placeholder persona used to fill role fields.
type Identity struct {
	Name    string
	Email   string
	Phone   string
	Company string
	Website string
}

// Role is the semantic purpose assigned to a field.
type Role string

const (
	RoleName    Role = "name"
	RoleEmail   Role = "email"
	RolePhone   Role = "phone"
	RoleSubject Role = "subject"
	RoleMessage Role = "message"
	RoleCompany Role = "company"
	RoleWebsite Role = "website"
	RoleUnknown Role = "unknown"
)
