package htmlform

import (
	"net/url"
	"strings"
)

// roleKeywords is the ordered classification table for visible text-like
// inputs. Order matters: email is checked before name so a field such as
// "customer_email_name" is classified email, never name. Name goes last
// because its keywords are the loosest.
var roleKeywords = []struct {
	role     Role
	keywords []string
}{
	{RoleEmail, []string{"email", "e-mail"}},
	{RolePhone, []string{"phone", "tel", "mobile"}},
	{RoleSubject, []string{"subject", "title", "topic"}},
	{RoleMessage, []string{"message", "comment", "inquiry", "enquiry", "content", "description", "details"}},
	{RoleCompany, []string{"company", "organization", "business"}},
	{RoleWebsite, []string{"website", "url", "site"}},
	{RoleName, []string{"name", "fname", "first", "last", "full"}},
}

// fallbackSubject fills subject-role fields when the message carries none.
const fallbackSubject = "Website Inquiry"

// ClassifyField assigns the semantic role of one text-like field by
// matching its name, then its placeholder, against the ordered keyword
// table. An input of kind email or tel is its own strongest signal.
func ClassifyField(f *Field) Role {
	switch f.Kind {
	case KindEmail:
		return RoleEmail
	case KindTel:
		return RolePhone
	}
	name := strings.ToLower(f.Name)
	placeholder := strings.ToLower(f.Placeholder)
	for _, rk := range roleKeywords {
		for _, kw := range rk.keywords {
			if strings.Contains(name, kw) || strings.Contains(placeholder, kw) {
				return rk.role
			}
		}
	}
	return RoleUnknown
}

// Fill builds the name→value map for one submission attempt. The engine
// is a best-effort filler, not a personalization layer: role values are
// fixed per attempt (the identity plus the caller's subject and body).
//
// Rules, in field order:
//   - visible, non-disabled text/email/tel inputs take their role's value;
//     the first field matched per role wins, later matches keep their own
//     value attribute;
//   - hidden inputs pass through byte-for-byte (anti-CSRF tokens);
//   - checkboxes and radios are included only when already checked —
//     arbitrary boxes are never ticked;
//   - selects take their first option, there being no better signal;
//   - every textarea receives the message body.
//
// Keys are never empty: nameless fields were dropped at parse time.
func Fill(f *Form, id Identity, subject, body string) url.Values {
	if subject == "" {
		subject = fallbackSubject
	}
	roleValues := map[Role]string{
		RoleName:    id.Name,
		RoleEmail:   id.Email,
		RolePhone:   id.Phone,
		RoleSubject: subject,
		RoleMessage: body,
		RoleCompany: id.Company,
		RoleWebsite: id.Website,
	}

	values := url.Values{}
	assigned := make(map[Role]bool)

	for i := range f.Fields {
		fld := &f.Fields[i]
		switch fld.Kind {
		case KindHidden:
			values.Set(fld.Name, fld.Value)
		case KindCheckbox, KindRadio:
			if !fld.Checked {
				continue
			}
			v := fld.Value
			if v == "" {
				v = "on"
			}
			values.Set(fld.Name, v)
		case KindSelect:
			if len(fld.Options) > 0 {
				values.Set(fld.Name, fld.Options[0])
			}
		case KindTextarea:
			values.Set(fld.Name, body)
		case KindText, KindEmail, KindTel:
			if !fld.Visible || fld.Disabled {
				continue
			}
			role := ClassifyField(fld)
			if role == RoleUnknown || assigned[role] {
				// Unclassifiable or already-claimed role: submit the
				// field's own value so the server sees a complete form.
				values.Set(fld.Name, fld.Value)
				continue
			}
			assigned[role] = true
			values.Set(fld.Name, roleValues[role])
		}
	}
	return values
}

// HasFreeText reports whether the form carries any field that can hold
// the message body (a textarea or a message-role text input). Forms
// without one are still submitted with identity and hidden fields only.
func HasFreeText(f *Form) bool {
	for i := range f.Fields {
		fld := &f.Fields[i]
		if fld.Kind == KindTextarea {
			return true
		}
		if fld.Kind == KindText && fld.Visible && !fld.Disabled && ClassifyField(fld) == RoleMessage {
			return true
		}
	}
	return false
}
