package matcher

import (
	"regexp"
	"strings"
)

// structuredSenderPattern recognises messages originating from the job
// board itself (the only source the deterministic external_id path
// trusts). Configurable in a real deployment; hardcoded here as the
// reference job-board's notification domain.
var structuredSenderPattern = regexp.MustCompile(`(?i)@(jobs-noreply|notifications)\.[a-z.]+jobboard\.[a-z]+$`)

// listingIDPattern extracts an external listing id from a job-board URL
// embedded in the message body, e.g. https://jobboard.example/listing/12345.
var listingIDPattern = regexp.MustCompile(`(?i)jobboard\.[a-z]+/listing/([a-zA-Z0-9_-]+)`)

// IsStructuredSender reports whether address looks like the job board's
// own notification sender.
func IsStructuredSender(address string) bool {
	return structuredSenderPattern.MatchString(address)
}

// ExtractListingID pulls an external listing id out of body, if present.
func ExtractListingID(body string) (string, bool) {
	m := listingIDPattern.FindStringSubmatch(body)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// RootDomain returns the lowercased host part of an email address, e.g.
// "jane@mail.woolworths.com.au" -> "mail.woolworths.com.au". It keeps
// the full host since multi-part public suffixes (".com.au") are common
// in this domain's market and a naive last-two-labels split would cut
// "com.au" in half; callers needing fuzzy entity matching should use the
// second-level label via RootLabel instead.
func RootDomain(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}

// RootLabel extracts the most entity-identifying label from a domain,
// e.g. "woolworths.com.au" -> "woolworths", "acme.io" -> "acme".
func RootLabel(domainName string) string {
	labels := strings.Split(domainName, ".")
	for _, l := range labels {
		if l != "mail" && l != "www" && l != "notifications" && l != "careers" && len(l) > 2 {
			return l
		}
	}
	if len(labels) > 0 {
		return labels[0]
	}
	return domainName
}
