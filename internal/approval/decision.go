package approval

import "strings"

// Decision is the verdict read from an approver's reply.
type Decision int

const (
	// DecisionNone means no keyword matched; the request stays pending.
	DecisionNone Decision = iota
	DecisionApprove
	DecisionReject
)

func (d Decision) String() string {
	switch d {
	case DecisionApprove:
		return "approve"
	case DecisionReject:
		return "reject"
	default:
		return "none"
	}
}

// Keywords are matched as lowercase substrings of the first non-empty line.
// Approval keywords are checked first, so a line with both resolves to
// approve.
var (
	ApproveKeywords = []string{"approved", "approve", "yes", "ok", "go ahead", "confirmed", "confirm"}
	RejectKeywords  = []string{"rejected", "reject", "no", "denied", "deny", "cancel"}
)

// ParseDecision reads the verdict from a reply body.
func ParseDecision(body string) Decision {
	line := strings.ToLower(firstLine(body))
	if line == "" {
		return DecisionNone
	}

	for _, kw := range ApproveKeywords {
		if strings.Contains(line, kw) {
			return DecisionApprove
		}
	}
	for _, kw := range RejectKeywords {
		if strings.Contains(line, kw) {
			return DecisionReject
		}
	}
	return DecisionNone
}

func firstLine(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
