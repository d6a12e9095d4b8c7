// Package classify renders the shared success/failure verdict over
// post-submission evidence. Both backends feed it the same shape: an
// HTTP status, the response page text, and the final URL.
package classify

import (
	"fmt"
	"strings"
)

// Verdict is the classification of one submission response.
type Verdict struct {
	Submitted bool
	Signal    string // phrase, status, or URL fragment that decided
}

// acceptedStatuses are the only statuses a submission may return and
// still count. 302/303 cover the silent-redirect pattern common on
// bespoke small-business sites.
var acceptedStatuses = map[int]bool{200: true, 201: true, 302: true, 303: true}

// errorPhrases mark a rejected submission. Checked before success
// phrases: an inline validation error sitting next to boilerplate
// "thank you" copy must not register as success.
var errorPhrases = []string{
	"error",
	"failed",
	"invalid",
	"required",
	"missing",
	"incorrect",
	"wrong",
	"try again",
}

// successPhrases mark an accepted submission.
var successPhrases = []string{
	"thank you",
	"success",
	"submitted",
	"received",
	"sent",
	"confirmation",
	"message sent",
	"inquiry received",
}

// urlSuccessTokens mark a success-looking destination after redirect.
var urlSuccessTokens = []string{"thank", "success"}

// Page classifies the response. Order is deliberate: status gate, then
// error phrases, then success phrases, then the optimistic default — a
// bare 200/201 with no signal counts as success because most bespoke
// sites redirect or re-render silently. A bare 302/303 without a
// success-looking destination is a failure: the redirect told us
// nothing and the form state is gone.
func Page(status int, body []byte, finalURL string) Verdict {
	if !acceptedStatuses[status] {
		return Verdict{Submitted: false, Signal: fmt.Sprintf("status %d", status)}
	}

	text := strings.ToLower(string(body))
	for _, phrase := range errorPhrases {
		if strings.Contains(text, phrase) {
			return Verdict{Submitted: false, Signal: phrase}
		}
	}
	for _, phrase := range successPhrases {
		if strings.Contains(text, phrase) {
			return Verdict{Submitted: true, Signal: phrase}
		}
	}

	lowerURL := strings.ToLower(finalURL)
	for _, tok := range urlSuccessTokens {
		if strings.Contains(lowerURL, tok) {
			return Verdict{Submitted: true, Signal: "url: " + tok}
		}
	}

	if status == 200 || status == 201 {
		return Verdict{Submitted: true, Signal: fmt.Sprintf("bare %d", status)}
	}
	return Verdict{Submitted: false, Signal: fmt.Sprintf("bare %d", status)}
}
