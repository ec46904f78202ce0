package model

import "strings"

// Category classifies the intent of an inbound email. The set is closed:
// switches over Category list every value.
type Category string

const (
	CategoryInquiry      Category = "inquiry"
	CategoryComplaint    Category = "complaint"
	CategoryFeedback     Category = "feedback"
	CategorySupport      Category = "support"
	CategorySales        Category = "sales"
	CategoryNewsletter   Category = "newsletter"
	CategoryNotification Category = "notification"
	CategoryPersonal     Category = "personal"
	CategorySpam         Category = "spam"
	CategoryOther        Category = "other"
)

// Categories lists every Category in declaration order.
var Categories = []Category{
	CategoryInquiry,
	CategoryComplaint,
	CategoryFeedback,
	CategorySupport,
	CategorySales,
	CategoryNewsletter,
	CategoryNotification,
	CategoryPersonal,
	CategorySpam,
	CategoryOther,
}

// ParseCategory maps free text to a Category, defaulting to CategoryOther.
func ParseCategory(s string) Category {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if string(c) == s {
			return c
		}
	}
	return CategoryOther
}

// Priority is the urgency assigned by analysis.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority maps free text to a Priority, defaulting to PriorityNormal.
func ParsePriority(s string) Priority {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return p
	default:
		return PriorityNormal
	}
}

// Sentiment is the emotional tone detected by analysis.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// ParseSentiment maps free text to a Sentiment, defaulting to neutral.
func ParseSentiment(s string) Sentiment {
	switch v := Sentiment(strings.ToLower(strings.TrimSpace(s))); v {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return v
	default:
		return SentimentNeutral
	}
}

// Analysis limits.
const (
	MaxKeyPoints        = 5
	MaxSuggestedActions = 3
)

// EmailAnalysis is the structured classification of one inbound email.
type EmailAnalysis struct {
	Category         Category  `json:"category"`
	Priority         Priority  `json:"priority"`
	Sentiment        Sentiment `json:"sentiment"`
	Summary          string    `json:"summary"`
	KeyPoints        []string  `json:"key_points"`
	ActionRequired   bool      `json:"action_required"`
	SuggestedActions []string  `json:"suggested_actions"`
	Confidence       float64   `json:"confidence"`
}

// FallbackAnalysis is the record used when the model output cannot be
// parsed.
func FallbackAnalysis() EmailAnalysis {
	return EmailAnalysis{
		Category:   CategoryOther,
		Priority:   PriorityNormal,
		Sentiment:  SentimentNeutral,
		Summary:    "Analysis failed - unable to parse response",
		Confidence: 0,
	}
}
