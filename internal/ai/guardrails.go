package ai

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nhle/inbox-triage/internal/model"
)

// Draft limits enforced by Validate.
const (
	MinSubjectLength = 5
	MaxSubjectLength = 200
	MinBodyLength    = 20
	MaxBodyLength    = 1000
	MaxBodyWords     = 150
)

var sensitiveKeywords = []string{
	"password", "passwd", "pwd",
	"ssn", "social security",
	"credit card", "cvv", "card number",
	"bank account", "routing number",
	"api key", "api_key", "apikey",
	"secret", "private key", "token",
	"confidential", "classified",
}

var unprofessionalWords = map[string]bool{
	"damn": true, "dammit": true, "hell": true, "crap": true,
	"stupid": true, "idiot": true, "dumb": true, "moron": true,
	"sucks": true, "screw": true, "pissed": true,
}

var placeholders = []string{
	"[insert", "[company", "[name]", "[email]",
	"todo", "fixme", "tbd", "xxx",
	"{{", "}}", "<insert>", "<replace>",
}

var greetings = []string{"dear", "hi", "hello", "good morning", "good afternoon", "thank"}

// Report is the outcome of validating a generated draft. Errors block
// automatic delivery; warnings are informational.
type Report struct {
	Errors   []string
	Warnings []string
}

// OK reports whether the draft passed every blocking check.
func (r Report) OK() bool { return len(r.Errors) == 0 }

// Err returns the first error as an error value, or nil.
func (r Report) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("draft rejected: %s", r.Errors[0])
}

func (r *Report) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks a generated reply before it leaves the system.
func Validate(d model.Draft) Report {
	var r Report
	checkSubject(&r, strings.TrimSpace(d.Subject))
	checkBody(&r, strings.TrimSpace(d.BodyText))
	return r
}

func checkSubject(r *Report, subject string) {
	n := utf8.RuneCountInString(subject)
	switch {
	case n < MinSubjectLength:
		r.fail("subject too short (%d chars, min %d)", n, MinSubjectLength)
	case n > MaxSubjectLength:
		r.fail("subject too long (%d chars, max %d)", n, MaxSubjectLength)
	}
	if len(strings.Fields(subject)) < 2 {
		r.fail("subject must contain at least 2 words")
	}
	if n > 10 && isUpper(subject) {
		r.fail("subject should not be all uppercase")
	}
}

func checkBody(r *Report, body string) {
	n := utf8.RuneCountInString(body)
	switch {
	case n < MinBodyLength:
		r.fail("body too short (%d chars, min %d)", n, MinBodyLength)
	case n > MaxBodyLength:
		r.fail("body too long (%d chars, max %d)", n, MaxBodyLength)
	}
	if words := len(strings.Fields(body)); words > MaxBodyWords {
		r.fail("response too long (%d words, max %d)", words, MaxBodyWords)
	}

	lower := strings.ToLower(body)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			r.fail("contains potentially sensitive information: %q", kw)
			break
		}
	}

	for _, w := range strings.FieldsFunc(lower, func(c rune) bool {
		return !unicode.IsLetter(c)
	}) {
		if unprofessionalWords[w] {
			r.fail("contains unprofessional language: %q", w)
			break
		}
	}

	for _, p := range placeholders {
		if strings.Contains(lower, p) {
			r.fail("contains placeholder text: %q", p)
			break
		}
	}

	if body != "" && !hasGreeting(lower) {
		r.warn("body has no greeting")
	}
}

// isUpper reports whether s has letters and none of them is lowercase.
func isUpper(s string) bool {
	letters := false
	for _, c := range s {
		if unicode.IsLower(c) {
			return false
		}
		if unicode.IsLetter(c) {
			letters = true
		}
	}
	return letters
}

func hasGreeting(lowerBody string) bool {
	first, _, _ := strings.Cut(lowerBody, "\n")
	for _, g := range greetings {
		if strings.HasPrefix(strings.TrimSpace(first), g) {
			return true
		}
	}
	return false
}
