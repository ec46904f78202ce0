package approval

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nhle/inbox-triage/internal/model"
)

// SubjectMarker prefixes the subject of every approval notification.
const SubjectMarker = "[APPROVAL REQUIRED]"

// replyPrefix is the upper-cased reply marker a client adds when answering.
const replyPrefix = "RE:"

var idPattern = regexp.MustCompile(`\[ID:\s*([A-Z0-9]+)\s*\]`)

const rule = "------------------------------------------------------------"

// notificationDraft builds the message that asks the approver to decide.
func notificationDraft(req *model.ApprovalRequest) model.Draft {
	var b strings.Builder

	fmt.Fprintf(&b, "Dear Approver,\n\n")
	fmt.Fprintf(&b, "An email requires your approval before it is sent.\n\n")
	fmt.Fprintf(&b, "Request ID:      %s\n", req.ID)
	fmt.Fprintf(&b, "Final recipient: %s\n", req.FinalRecipient.String())
	fmt.Fprintf(&b, "Subject:         %s\n\n", req.Draft.Subject)
	fmt.Fprintf(&b, "%s\n%s\n%s\n\n", rule, strings.TrimSpace(req.Draft.BodyText), rule)
	fmt.Fprintf(&b, "To approve, reply with APPROVED on the first line.\n")
	fmt.Fprintf(&b, "To reject, reply with REJECTED on the first line.\n")
	fmt.Fprintf(&b, "Notes may follow on the same or later lines, for example\n")
	fmt.Fprintf(&b, "\"APPROVED - looks good\" or \"REJECTED - needs revision\".\n\n")
	fmt.Fprintf(&b, "Request ID: %s\n", req.ID)
	fmt.Fprintf(&b, "Created: %s\n", req.CreatedAt.Format("2006-01-02 15:04:05"))

	return model.Draft{
		To:       []model.Address{{Email: req.Approver}},
		Subject:  fmt.Sprintf("%s %s [ID: %s]", SubjectMarker, req.Draft.Subject, req.ID),
		BodyText: b.String(),
	}
}

// isApprovalReply reports whether subject looks like an answer to a
// notification.
func isApprovalReply(subject string) bool {
	upper := strings.ToUpper(strings.TrimSpace(subject))
	return strings.Contains(upper, SubjectMarker) || strings.HasPrefix(upper, replyPrefix)
}

// subjectRequestID extracts the id quoted as [ID: X] in subject.
func subjectRequestID(subject string) (string, bool) {
	m := idPattern.FindStringSubmatch(strings.ToUpper(subject))
	if m == nil {
		return "", false
	}
	return m[1], true
}
