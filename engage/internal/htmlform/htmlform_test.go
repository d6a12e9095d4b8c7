package htmlform

import (
	"net/url"
	"strings"
	"testing"
)

var testIdentity = Identity{
	Name:    "John Smith",
	Email:   "john.smith@example.com",
	Phone:   "555-123-4567",
	Company: "SEO Consulting",
	Website: "https://example.com",
}

func parseOne(t *testing.T, markup, pageURL string) *Form {
	t.Helper()
	forms, err := Parse([]byte(markup), pageURL)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(forms) != 1 {
		t.Fatalf("forms: got %d, want 1", len(forms))
	}
	return &forms[0]
}

func TestParse_ResolvesRelativeAction(t *testing.T) {
	// WHAT: A relative action resolves against the page URL; an empty
	// action falls back to the page URL itself.
	// WHY: The static backend replays against an absolute URL.
	f := parseOne(t, `<form action="/submit-inquiry" method="post"><input name="a"></form>`,
		"https://shop.example/contact")
	if f.Action != "https://shop.example/submit-inquiry" {
		t.Errorf("action: got %q", f.Action)
	}
	if f.Method != "POST" {
		t.Errorf("method: got %q", f.Method)
	}

	f = parseOne(t, `<form><input name="a"></form>`, "https://shop.example/contact")
	if f.Action != "https://shop.example/contact" {
		t.Errorf("empty action: got %q", f.Action)
	}
}

func TestParse_DropsNamelessAndControlInputs(t *testing.T) {
	// WHAT: Inputs without a name, and submit/button controls, never
	// become fields.
	// WHY: Nameless fields cannot contribute to a submission; controls
	// are not data.
	f := parseOne(t, `<form>
		<input type="text">
		<input type="submit" name="go" value="Send">
		<input type="text" name="kept">
	</form>`, "https://x.example/")
	if len(f.Fields) != 1 || f.Fields[0].Name != "kept" {
		t.Errorf("fields: got %+v, want only 'kept'", f.Fields)
	}
}

func TestParse_VisibilityPropagatesFromAncestor(t *testing.T) {
	// WHAT: An input inside a display:none container is parsed but
	// flagged invisible.
	// WHY: Honeypot inputs are a common bot trap; the filler must skip
	// them while still submitting their default value path.
	f := parseOne(t, `<form>
		<div style="display:none"><input type="text" name="trap"></div>
		<input type="text" name="real">
	</form>`, "https://x.example/")
	if f.Fields[0].Visible {
		t.Error("trap field should be invisible")
	}
	if !f.Fields[1].Visible {
		t.Error("real field should be visible")
	}
}

func TestParse_SelectOptionsInOrder(t *testing.T) {
	// WHAT: Select options are collected in document order, value
	// attribute first, option text as fallback.
	f := parseOne(t, `<form><select name="topic">
		<option value="sales">Sales</option>
		<option>Support</option>
	</select></form>`, "https://x.example/")
	fld := f.Fields[0]
	if fld.Kind != KindSelect || len(fld.Options) != 2 {
		t.Fatalf("select: got %+v", fld)
	}
	if fld.Options[0] != "sales" || fld.Options[1] != "Support" {
		t.Errorf("options: got %v", fld.Options)
	}
}

func TestLocate_PriorityOrder(t *testing.T) {
	// WHAT: A form with a contact keyword in its attributes beats a form
	// with a contact-keyword field, which beats plain document order.
	// WHY: Pages often carry search or newsletter forms before the
	// contact form.
	markup := []byte(`
		<form id="search"><input name="q"></form>
		<form id="newsletter"><input name="inquiry_email"></form>
		<form action="/contact-us"><input name="x"></form>`)
	forms, err := Parse(markup, "https://x.example/")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got, ok := Locate(forms, markup, "https://x.example/")
	if !ok {
		t.Fatal("locate: not found")
	}
	if got.RawAction != "/contact-us" {
		t.Errorf("picked %q, want the attribute-keyword form", got.RawAction)
	}

	// Without the attribute match, the keyword-field form wins.
	markup = []byte(`
		<form id="search"><input name="q"></form>
		<form id="newsletter"><input name="inquiry_email"></form>`)
	forms, _ = Parse(markup, "https://x.example/")
	got, ok = Locate(forms, markup, "https://x.example/")
	if !ok || got.ID != "newsletter" {
		t.Errorf("picked %+v, want the field-keyword form", got)
	}

	// With neither, first in document order.
	markup = []byte(`<form id="a"><input name="q"></form><form id="b"><input name="z"></form>`)
	forms, _ = Parse(markup, "https://x.example/")
	got, ok = Locate(forms, markup, "https://x.example/")
	if !ok || got.ID != "a" {
		t.Errorf("picked %+v, want first form", got)
	}
}

func TestLocate_ImplicitForm(t *testing.T) {
	// WHAT: With zero <form> elements, strong contact phrases produce an
	// implicit candidate against the page URL; a page without any signal
	// produces nothing.
	// WHY: Script-rendered forms are invisible to the static parser; the
	// implicit candidate routes such pages to the scripted backend.
	markup := []byte(`<html><body><h1>Get in touch</h1><p>Use our contact form below.</p></body></html>`)
	got, ok := Locate(nil, markup, "https://x.example/contact")
	if !ok {
		t.Fatal("expected implicit form")
	}
	if !got.Implicit || got.Action != "https://x.example/contact" {
		t.Errorf("implicit form: got %+v", got)
	}

	markup = []byte(`<html><body><p>Just an article.</p></body></html>`)
	if _, ok := Locate(nil, markup, "https://x.example/"); ok {
		t.Error("no-signal page should yield no form")
	}
}

func TestFill_EmailBeatsName(t *testing.T) {
	// WHAT: A field named "customer_email_name" maps to the email role,
	// never the name role.
	// WHY: The email keyword list is checked before name by contract;
	// misclassifying it would send a human name into an email validator.
	f := &Form{Fields: []Field{
		{Name: "customer_email_name", Kind: KindText, Visible: true},
	}}
	v := Fill(f, testIdentity, "Subj", "Body")
	if got := v.Get("customer_email_name"); got != testIdentity.Email {
		t.Errorf("got %q, want email %q", got, testIdentity.Email)
	}
}

func TestFill_FirstMatchWinsPerRole(t *testing.T) {
	// WHAT: The second field matching an assigned role keeps its own
	// value attribute instead of the role value.
	f := &Form{Fields: []Field{
		{Name: "email", Kind: KindEmail, Visible: true},
		{Name: "email_confirm", Kind: KindEmail, Visible: true, Value: "prefilled"},
	}}
	v := Fill(f, testIdentity, "", "Body")
	if v.Get("email") != testIdentity.Email {
		t.Errorf("first email field: got %q", v.Get("email"))
	}
	if v.Get("email_confirm") != "prefilled" {
		t.Errorf("second email field: got %q, want its own value", v.Get("email_confirm"))
	}
}

func TestFill_HiddenPassThroughVerbatim(t *testing.T) {
	// WHAT: Hidden field values survive byte-for-byte.
	// WHY: Anti-CSRF tokens break on any mutation.
	token := "a9$Zz==//&<weird bytes>\t"
	f := &Form{Fields: []Field{
		{Name: "csrf_token", Kind: KindHidden, Value: token},
	}}
	v := Fill(f, testIdentity, "", "Body")
	if got := v.Get("csrf_token"); got != token {
		t.Errorf("hidden value: got %q, want %q", got, token)
	}
}

func TestFill_CheckboxOnlyWhenChecked(t *testing.T) {
	// WHAT: Unchecked boxes are omitted; checked ones submit their value
	// or "on".
	// WHY: Blindly ticking boxes can opt the target into mailing lists or
	// consent flows.
	f := &Form{Fields: []Field{
		{Name: "newsletter", Kind: KindCheckbox, Visible: true},
		{Name: "terms", Kind: KindCheckbox, Visible: true, Checked: true},
		{Name: "plan", Kind: KindRadio, Visible: true, Checked: true, Value: "basic"},
	}}
	v := Fill(f, testIdentity, "", "Body")
	if _, present := v["newsletter"]; present {
		t.Error("unchecked box must not be submitted")
	}
	if v.Get("terms") != "on" {
		t.Errorf("checked box: got %q, want on", v.Get("terms"))
	}
	if v.Get("plan") != "basic" {
		t.Errorf("checked radio: got %q, want its value", v.Get("plan"))
	}
}

func TestFill_SelectFirstOptionAndAllTextareas(t *testing.T) {
	// WHAT: Selects take option 0; every textarea receives the body.
	f := &Form{Fields: []Field{
		{Name: "topic", Kind: KindSelect, Visible: true, Options: []string{"general", "sales"}},
		{Name: "msg", Kind: KindTextarea, Visible: true},
		{Name: "details", Kind: KindTextarea, Visible: true},
	}}
	v := Fill(f, testIdentity, "", "Hello there")
	if v.Get("topic") != "general" {
		t.Errorf("select: got %q", v.Get("topic"))
	}
	for _, name := range []string{"msg", "details"} {
		if v.Get(name) != "Hello there" {
			t.Errorf("%s: got %q, want body", name, v.Get(name))
		}
	}
}

func TestFill_SkipsInvisibleAndDisabledText(t *testing.T) {
	// WHAT: Invisible or disabled text inputs are not role-filled.
	// WHY: Filling a honeypot marks the submission as a bot.
	f := &Form{Fields: []Field{
		{Name: "name", Kind: KindText, Visible: false},
		{Name: "fax_number", Kind: KindText, Visible: true, Disabled: true},
		{Name: "full_name", Kind: KindText, Visible: true},
	}}
	v := Fill(f, testIdentity, "", "Body")
	if _, present := v["name"]; present {
		t.Error("invisible field must be skipped")
	}
	if _, present := v["fax_number"]; present {
		t.Error("disabled field must be skipped")
	}
	if v.Get("full_name") != testIdentity.Name {
		t.Errorf("visible name field: got %q", v.Get("full_name"))
	}
}

func TestFill_NoEmptyKeys(t *testing.T) {
	// WHAT: The produced map never contains an empty key.
	markup := `<form>
		<input type="text">
		<input type="hidden" name="t" value="v">
		<textarea name="m"></textarea>
	</form>`
	f := parseOne(t, markup, "https://x.example/")
	v := Fill(f, testIdentity, "", "Body")
	for key := range v {
		if key == "" {
			t.Fatal("empty key in fill map")
		}
	}
	if len(v) != 2 {
		t.Errorf("map: got %v", v)
	}
}

func TestFill_SubjectFallback(t *testing.T) {
	// WHAT: An empty subject falls back to a generic subject line.
	f := &Form{Fields: []Field{
		{Name: "subject", Kind: KindText, Visible: true},
	}}
	v := Fill(f, testIdentity, "", "Body")
	if v.Get("subject") == "" {
		t.Error("subject-role field left empty")
	}

	v = Fill(f, testIdentity, "SEO proposal", "Body")
	if v.Get("subject") != "SEO proposal" {
		t.Errorf("explicit subject: got %q", v.Get("subject"))
	}
}

func TestCaptchaInputName(t *testing.T) {
	// WHAT: The first input whose name contains "captcha" is reported;
	// pages without one report empty.
	// WHY: Image captcha answers are typed into this field.
	body := []byte(`<form><input name="captcha_answer"><input name="x"></form>`)
	if got := CaptchaInputName(body); got != "captcha_answer" {
		t.Errorf("got %q", got)
	}
	if got := CaptchaInputName([]byte(`<form><input name="x"></form>`)); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestHasFreeText(t *testing.T) {
	// WHAT: Textareas or message-role text inputs count as free text;
	// identity-only forms do not.
	withTextarea := &Form{Fields: []Field{{Name: "m", Kind: KindTextarea}}}
	if !HasFreeText(withTextarea) {
		t.Error("textarea form should have free text")
	}
	identityOnly := &Form{Fields: []Field{
		{Name: "email", Kind: KindEmail, Visible: true},
		{Name: "name", Kind: KindText, Visible: true},
	}}
	if HasFreeText(identityOnly) {
		t.Error("identity-only form should not have free text")
	}
}

func TestFill_EndToEndFromMarkup(t *testing.T) {
	// WHAT: The full parse→fill path over realistic contact-form markup.
	markup := `<form action="/submit-inquiry" method="POST">
		<input type="hidden" name="_token" value="abc123">
		<input type="text" name="full_name" placeholder="Your name">
		<input type="text" name="customer_email" placeholder="Email address">
		<textarea name="msg" placeholder="How can we help?"></textarea>
	</form>`
	f := parseOne(t, markup, "https://biz.example/contact")
	v := Fill(f, testIdentity, "Quick question", "We can improve your ranking.")

	want := url.Values{
		"_token":         {"abc123"},
		"full_name":      {testIdentity.Name},
		"customer_email": {testIdentity.Email},
		"msg":            {"We can improve your ranking."},
	}
	for k, wv := range want {
		if v.Get(k) != wv[0] {
			t.Errorf("%s: got %q, want %q", k, v.Get(k), wv[0])
		}
	}
	if !strings.HasSuffix(f.Action, "/submit-inquiry") {
		t.Errorf("action: %q", f.Action)
	}
}
