package captcha

import "testing"

func TestDetect_Table(t *testing.T) {
	tests := []struct {
		name    string
		markup  string
		kind    Kind
		siteKey string
		image   string
	}{
		{
			"recaptcha widget",
			`<form><div class="g-recaptcha" data-sitekey="6LeKEY"></div></form>`,
			KindRecaptchaV2, "6LeKEY", "",
		},
		{
			"bare data-sitekey",
			`<div data-sitekey="6LeBARE"></div>`,
			KindRecaptchaV2, "6LeBARE", "",
		},
		{
			"recaptcha iframe",
			`<iframe src="https://www.google.com/recaptcha/api2/anchor?k=6LeIFRAME"></iframe>`,
			KindRecaptchaV2, "6LeIFRAME", "",
		},
		{
			"hcaptcha widget",
			`<div class="h-captcha" data-sitekey="10000000-ffff"></div>`,
			KindHCaptcha, "10000000-ffff", "",
		},
		{
			"hcaptcha iframe",
			`<iframe src="https://newassets.hcaptcha.com/captcha/v1?k=hkey"></iframe>`,
			KindHCaptcha, "hkey", "",
		},
		{
			"image captcha",
			`<form><img src="/captcha.php?x=1"><input name="captcha_answer"></form>`,
			KindImage, "", "/captcha.php?x=1",
		},
		{
			"bare text marker",
			`<p>Please solve the CAPTCHA below to continue.</p>`,
			KindUnknown, "", "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := Detect([]byte(tt.markup))
			if ch == nil {
				t.Fatal("no challenge detected")
			}
			if ch.Kind != tt.kind {
				t.Errorf("kind: got %q, want %q", ch.Kind, tt.kind)
			}
			if ch.SiteKey != tt.siteKey {
				t.Errorf("site key: got %q, want %q", ch.SiteKey, tt.siteKey)
			}
			if ch.ImageSrc != tt.image {
				t.Errorf("image src: got %q, want %q", ch.ImageSrc, tt.image)
			}
		})
	}
}

func TestDetect_PriorityOrder(t *testing.T) {
	// WHAT: A page carrying a ReCaptcha widget, a captcha image, and the
	// word "captcha" in text still reports exactly the ReCaptcha.
	// WHY: At most one challenge per page, highest priority wins.
	markup := []byte(`
		<p>Protected by captcha.</p>
		<img src="/img/captcha-decoration.png">
		<div class="g-recaptcha" data-sitekey="WIN"></div>`)
	ch := Detect(markup)
	if ch == nil || ch.Kind != KindRecaptchaV2 || ch.SiteKey != "WIN" {
		t.Fatalf("got %+v, want recaptcha", ch)
	}
}

func TestDetect_None(t *testing.T) {
	// WHAT: A clean page reports no challenge.
	if ch := Detect([]byte(`<form><input name="email"></form>`)); ch != nil {
		t.Fatalf("got %+v, want nil", ch)
	}
}

func TestChallenge_TokenField(t *testing.T) {
	// WHAT: Each interactive kind maps to its vendor response field.
	if f := (&Challenge{Kind: KindRecaptchaV2}).TokenField(); f != "g-recaptcha-response" {
		t.Errorf("recaptcha: %q", f)
	}
	if f := (&Challenge{Kind: KindHCaptcha}).TokenField(); f != "h-captcha-response" {
		t.Errorf("hcaptcha: %q", f)
	}
	if f := (&Challenge{Kind: KindImage}).TokenField(); f != "" {
		t.Errorf("image: %q, want empty", f)
	}
}
