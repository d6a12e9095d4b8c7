package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// contactPaths are site-relative paths commonly linked from pages that
// host a contact form. Matched as substrings of the page markup.
var contactPaths = []string{
	"/contact",
	"/contact-us",
	"/get-in-touch",
	"/reach-us",
	"/about/contact",
	"/contact.html",
	"/contact.php",
	"/contactus",
	"/getintouch",
	"/reachus",
	"/inquiry",
	"/quote",
	"/request-quote",
	"/free-quote",
	"/consultation",
}

// contactPhrases signal that the page itself carries a contact form.
var contactPhrases = []string{
	"contact form",
	"contact us",
	"get in touch",
	"send message",
	"inquiry form",
	"quote request",
	"free consultation",
}

// formTokens are generic form-markup fragments used as the weakest signal.
var formTokens = []string{
	"<form",
	`method="post"`,
	`method="get"`,
	"action=",
	"input type=",
	"<textarea",
	"submit",
}

// maxProbeCandidates caps how many contact-page URLs a probe returns.
const maxProbeCandidates = 3

// ProbeContactPages fetches a site's page once and returns candidate
// contact-page URLs: linked contact paths first, then the page itself when
// its own markup shows contact indicators. An empty slice means the site
// gave no signal at all.
func (f *Fetcher) ProbeContactPages(ctx context.Context, siteURL string) ([]string, error) {
	res, err := f.Fetch(ctx, siteURL)
	if err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}

	base, err := url.Parse(res.FinalURL)
	if err != nil {
		return nil, fmt.Errorf("probe: parse final URL: %w", err)
	}

	content := strings.ToLower(string(res.Body))

	var candidates []string
	seen := make(map[string]bool)
	for _, p := range contactPaths {
		if len(candidates) >= maxProbeCandidates {
			break
		}
		if !strings.Contains(content, p) {
			continue
		}
		ref, err := url.Parse(p)
		if err != nil {
			continue
		}
		u := base.ResolveReference(ref).String()
		if seen[u] {
			continue
		}
		seen[u] = true
		candidates = append(candidates, u)
	}
	if len(candidates) > 0 {
		return candidates, nil
	}

	// No linked contact page: the root itself may carry the form.
	for _, phrase := range contactPhrases {
		if strings.Contains(content, phrase) {
			return []string{res.FinalURL}, nil
		}
	}
	for _, tok := range formTokens {
		if strings.Contains(content, tok) {
			return []string{res.FinalURL}, nil
		}
	}

	return nil, nil
}
