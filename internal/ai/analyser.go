package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/inbox-triage/internal/model"
)

// analysisConfidence is reported for every analysis the model produced
// as valid JSON.
const analysisConfidence = 0.85

// Analyser classifies inbound mail with the language model.
type Analyser struct {
	llm Completer
	log zerolog.Logger
}

// NewAnalyser creates an Analyser backed by llm.
func NewAnalyser(llm Completer, log zerolog.Logger) *Analyser {
	return &Analyser{llm: llm, log: log}
}

// Analyse returns the structured analysis of msg. A reply that is not
// valid JSON yields model.FallbackAnalysis and no error; only transport
// and API failures are returned.
func (a *Analyser) Analyse(ctx context.Context, msg model.InboundMessage) (model.EmailAnalysis, error) {
	text, err := a.llm.Complete(ctx, analysisSystemPrompt, analysisPrompt(msg))
	if err != nil {
		return model.EmailAnalysis{}, fmt.Errorf("analysing %q: %w", msg.Subject, err)
	}

	analysis, err := parseAnalysis(text)
	if err != nil {
		a.log.Warn().Err(err).Str("subject", msg.Subject).Msg("unparseable analysis, using fallback")
		return model.FallbackAnalysis(), nil
	}
	return analysis, nil
}

// SuggestResponse returns the reply intent for an analysed message.
func (a *Analyser) SuggestResponse(analysis model.EmailAnalysis) string {
	return Intent(analysis.Category)
}

// Intent describes what a reply to a message of category c should do.
func Intent(c model.Category) string {
	switch c {
	case model.CategoryInquiry:
		return "Answer the questions and provide helpful information"
	case model.CategoryComplaint:
		return "Acknowledge the issue, apologize, and offer a solution"
	case model.CategoryFeedback:
		return "Thank them for the feedback and acknowledge their points"
	case model.CategorySupport:
		return "Provide helpful guidance or troubleshooting steps"
	case model.CategorySales:
		return "Respond professionally and address their business interest"
	case model.CategoryPersonal:
		return "Respond in a friendly, personal manner"
	case model.CategoryNewsletter, model.CategoryNotification, model.CategorySpam, model.CategoryOther:
		return "Provide a helpful and appropriate response"
	default:
		return "Provide a helpful and appropriate response"
	}
}

// Tone picks the reply tone for a sentiment.
func Tone(s model.Sentiment) string {
	switch s {
	case model.SentimentNegative:
		return "empathetic and solution-oriented"
	case model.SentimentPositive:
		return "warm and appreciative"
	default:
		return "professional and helpful"
	}
}

func analysisPrompt(msg model.InboundMessage) string {
	var b strings.Builder
	b.WriteString("--- EMAIL TO ANALYZE ---\n\n")
	writeHeader(&b, msg)
	b.WriteString("\nEmail Body:\n---\n")
	b.WriteString(truncate(msg.BodyText, maxPromptBody))
	b.WriteString("\n---\n\nProvide your analysis as JSON.\n")
	return b.String()
}

func writeHeader(b *strings.Builder, msg model.InboundMessage) {
	fmt.Fprintf(b, "From: %s\n", msg.From)
	fmt.Fprintf(b, "Subject: %s\n", msg.Subject)
	if !msg.Date.IsZero() {
		fmt.Fprintf(b, "Date: %s\n", msg.Date.Format(time.RFC3339))
	}
}

type rawAnalysis struct {
	Category         string   `json:"category"`
	Priority         string   `json:"priority"`
	Sentiment        string   `json:"sentiment"`
	Summary          string   `json:"summary"`
	KeyPoints        []string `json:"key_points"`
	ActionRequired   bool     `json:"action_required"`
	SuggestedActions []string `json:"suggested_actions"`
}

func parseAnalysis(text string) (model.EmailAnalysis, error) {
	var raw rawAnalysis
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		return model.EmailAnalysis{}, fmt.Errorf("decoding analysis: %w", err)
	}

	return model.EmailAnalysis{
		Category:         model.ParseCategory(raw.Category),
		Priority:         model.ParsePriority(raw.Priority),
		Sentiment:        model.ParseSentiment(raw.Sentiment),
		Summary:          strings.TrimSpace(raw.Summary),
		KeyPoints:        capList(raw.KeyPoints, model.MaxKeyPoints),
		ActionRequired:   raw.ActionRequired,
		SuggestedActions: capList(raw.SuggestedActions, model.MaxSuggestedActions),
		Confidence:       analysisConfidence,
	}, nil
}

// stripFences removes a surrounding markdown code fence, with or without
// a language tag.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		// Drop the language tag line ("json", "JSON", or nothing).
		if tag := strings.TrimSpace(text[:nl]); !strings.HasPrefix(tag, "{") {
			text = text[nl+1:]
		}
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func capList(items []string, limit int) []string {
	out := make([]string, 0, min(len(items), limit))
	for _, it := range items {
		if it = strings.TrimSpace(it); it == "" {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, it)
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
