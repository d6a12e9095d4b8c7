// Package captcha detects challenges in page markup and resolves them
// through external solving services. Detection and solving are split:
// detection is a pure markup scan usable on both static fetch bodies and
// live-DOM snapshots; solving is a submit-then-poll protocol against a
// pluggable provider.
package captcha

import (
	"bytes"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Kind identifies a challenge family.
type Kind string

const (
	KindRecaptchaV2 Kind = "recaptcha_v2"
	KindHCaptcha    Kind = "hcaptcha"
	KindImage       Kind = "image"
	// KindUnknown is a bare "captcha" text marker with no actionable
	// site-key or image. It cannot be solved; the attempt must fail
	// rather than submit an unsolved form.
	KindUnknown Kind = "unknown"
)

// Challenge is the single reported challenge for a page.
type Challenge struct {
	Kind     Kind
	SiteKey  string
	ImageSrc string // image challenges; resolved against the page URL by the caller
}

// Interactive reports whether the challenge resolves to a token through
// an interactive (ReCaptcha/HCaptcha) solver flow.
func (c *Challenge) Interactive() bool {
	return c.Kind == KindRecaptchaV2 || c.Kind == KindHCaptcha
}

// TokenField is the form field an interactive token is posted under.
func (c *Challenge) TokenField() string {
	switch c.Kind {
	case KindRecaptchaV2:
		return "g-recaptcha-response"
	case KindHCaptcha:
		return "h-captcha-response"
	}
	return ""
}

// detection priorities, highest first
const (
	prioRecaptcha = 4
	prioHCaptcha  = 3
	prioImage     = 2
	prioText      = 1
)

// Detect scans markup and reports the single highest-priority challenge,
// or nil when the page carries none. Priority: ReCaptcha > HCaptcha >
// image > bare text marker. One walk collects every candidate so a page
// showing both a widget and the word "captcha" in copy still reports the
// widget.
func Detect(markup []byte) *Challenge {
	doc, err := html.Parse(bytes.NewReader(markup))
	if err != nil {
		return nil
	}

	var best *Challenge
	bestPrio := 0
	consider := func(prio int, c Challenge) {
		if prio > bestPrio {
			bestPrio = prio
			best = &c
		}
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			class := strings.ToLower(attr(n, "class"))
			siteKey := attr(n, "data-sitekey")

			switch {
			case strings.Contains(class, "h-captcha"):
				consider(prioHCaptcha, Challenge{Kind: KindHCaptcha, SiteKey: siteKey})
			case strings.Contains(class, "g-recaptcha") || siteKey != "":
				// A bare data-sitekey without a vendor class is treated
				// as ReCaptcha, matching its dominance in the wild.
				consider(prioRecaptcha, Challenge{Kind: KindRecaptchaV2, SiteKey: siteKey})
			}

			switch n.DataAtom {
			case atom.Iframe:
				src := strings.ToLower(attr(n, "src"))
				switch {
				case strings.Contains(src, "recaptcha"):
					consider(prioRecaptcha, Challenge{Kind: KindRecaptchaV2, SiteKey: siteKeyFromSrc(attr(n, "src"))})
				case strings.Contains(src, "hcaptcha"):
					consider(prioHCaptcha, Challenge{Kind: KindHCaptcha, SiteKey: siteKeyFromSrc(attr(n, "src"))})
				}
			case atom.Img:
				src := attr(n, "src")
				if strings.Contains(strings.ToLower(src), "captcha") {
					consider(prioImage, Challenge{Kind: KindImage, ImageSrc: src})
				}
			}
		case html.TextNode:
			if strings.Contains(strings.ToLower(n.Data), "captcha") {
				consider(prioText, Challenge{Kind: KindUnknown})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return best
}

// siteKeyFromSrc pulls the k= query parameter widget iframes embed.
func siteKeyFromSrc(src string) string {
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	return u.Query().Get("k")
}

// Solution is the resolved answer for one challenge. Created only after
// a successful poll; it lives for a single submission attempt.
type Solution struct {
	Kind    Kind
	Token   string // interactive token, or image answer text
	Elapsed time.Duration
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
