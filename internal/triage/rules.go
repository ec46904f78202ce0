package triage

import (
	"strings"

	"github.com/nhle/inbox-triage/internal/model"
)

var clarificationKeywords = []string{
	"issue", "clarification", "clarify", "question", "concern",
	"problem", "help", "assistance", "confusion", "confused",
	"discrepanc", "explain", "explanation", "understand", "unclear",
	"not clear",
}

// ShouldReply decides whether msg deserves a generated reply. Bulk mail
// never does, and negative complaints are left for a human.
func ShouldReply(msg model.InboundMessage, a model.EmailAnalysis) bool {
	switch a.Category {
	case model.CategoryNewsletter, model.CategoryNotification, model.CategorySpam:
		return false
	case model.CategoryInquiry, model.CategorySupport, model.CategoryFeedback, model.CategorySales:
		return true
	case model.CategoryComplaint:
		return a.Sentiment != model.SentimentNegative && a.ActionRequired
	case model.CategoryOther:
		if asksForClarification(msg) || a.ActionRequired {
			return true
		}
		return isReply(msg.Subject) && a.Sentiment != model.SentimentNegative
	case model.CategoryPersonal:
		return a.ActionRequired
	default:
		return false
	}
}

func asksForClarification(msg model.InboundMessage) bool {
	text := strings.ToLower(msg.Subject + "\n" + msg.BodyText)
	for _, kw := range clarificationKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func isReply(subject string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(subject)), "RE:")
}
