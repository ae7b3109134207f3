package otp

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	sixDigits     = regexp.MustCompile(`^\d{6}$`)
	colonCode     = regexp.MustCompile(`:\s*(\d{6})`)
	anySixDigits  = regexp.MustCompile(`(\d{6})`)
	tdWrappedCode = regexp.MustCompile(`>(\d{6})</td>`)
)

// ExtractCode pulls a 6-digit verification code out of an email body.
// The body may be plain text or HTML; extraction rules are tried in order
// of specificity so incidental digit runs (dates, order ids) lose to the
// styled code cell the verification email uses.
func ExtractCode(body string) (string, bool) {
	// Styled code cell in the HTML verification email.
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err == nil {
		code := ""
		doc.Find(".data").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			text := strings.TrimSpace(sel.Text())
			if sixDigits.MatchString(text) {
				code = text
				return false
			}
			return true
		})
		if code != "" {
			return code, true
		}
	}

	if m := tdWrappedCode.FindStringSubmatch(body); m != nil {
		return m[1], true
	}
	if m := colonCode.FindStringSubmatch(body); m != nil {
		return m[1], true
	}
	if m := anySixDigits.FindStringSubmatch(body); m != nil {
		return m[1], true
	}
	return "", false
}
