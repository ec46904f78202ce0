package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/nhle/inbox-triage/internal/model"
)

// Generator drafts outgoing mail with the language model.
type Generator struct {
	llm       Completer
	signature string
}

// NewGenerator creates a Generator. signature, when set, is the name new
// messages are signed with.
func NewGenerator(llm Completer, signature string) *Generator {
	return &Generator{llm: llm, signature: signature}
}

// Reply drafts an answer to msg addressed to its sender. instructions is
// optional operator guidance appended to the analysis context.
func (g *Generator) Reply(
	ctx context.Context,
	msg model.InboundMessage,
	analysis model.EmailAnalysis,
	instructions string,
) (model.Draft, error) {
	var b strings.Builder
	b.WriteString("--- EMAIL TO RESPOND TO ---\n\n")
	writeHeader(&b, msg)
	b.WriteString("\nOriginal Email:\n---\n")
	b.WriteString(truncate(msg.BodyText, maxPromptBody))
	b.WriteString("\n---\n\nResponse Requirements:\n")
	fmt.Fprintf(&b, "- Intent: %s\n", Intent(analysis.Category))
	fmt.Fprintf(&b, "- Tone: %s\n", Tone(analysis.Sentiment))

	b.WriteString("\nAdditional Context:\n")
	fmt.Fprintf(&b, "Analysis Summary: %s\n", analysis.Summary)
	fmt.Fprintf(&b, "Key Points: %s\n", strings.Join(analysis.KeyPoints, ", "))
	fmt.Fprintf(&b, "Suggested Actions: %s\n", strings.Join(analysis.SuggestedActions, ", "))
	if instructions = strings.TrimSpace(instructions); instructions != "" {
		fmt.Fprintf(&b, "Instructions: %s\n", instructions)
	}
	b.WriteString("\nInclude a quote of the relevant part of the original email in the response.\n")

	text, err := g.llm.Complete(ctx, replySystemPrompt, b.String())
	if err != nil {
		return model.Draft{}, fmt.Errorf("drafting reply to %q: %w", msg.Subject, err)
	}

	subject, body := splitDraft(text, "Re: "+msg.Subject)
	return model.Draft{
		To:        []model.Address{msg.From},
		Subject:   subject,
		BodyText:  body,
		InReplyTo: msg.MessageID,
	}, nil
}

// ComposeRequest describes a new message to write from scratch.
type ComposeRequest struct {
	To        model.Address
	Purpose   string
	Context   string
	Tone      string
	KeyPoints []string
}

// Compose drafts a new message for req.
func (g *Generator) Compose(ctx context.Context, req ComposeRequest) (model.Draft, error) {
	if strings.TrimSpace(req.Purpose) == "" {
		return model.Draft{}, fmt.Errorf("compose: purpose is required")
	}
	tone := req.Tone
	if tone == "" {
		tone = "professional"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Generate an email for the following purpose:\n%s\n", req.Purpose)
	if req.To.Name != "" {
		fmt.Fprintf(&b, "\nRecipient name: %s\n", req.To.Name)
	}
	fmt.Fprintf(&b, "Recipient email: %s\n", req.To.Email)
	if req.Context != "" {
		fmt.Fprintf(&b, "\nAdditional context: %s\n", req.Context)
	}
	fmt.Fprintf(&b, "\nDesired tone: %s\n", tone)
	if len(req.KeyPoints) > 0 {
		b.WriteString("\nKey points to include:\n")
		for i, p := range req.KeyPoints {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, p)
		}
	}
	if g.signature != "" {
		fmt.Fprintf(&b, "\nSign the email with: %s\n", g.signature)
	} else {
		b.WriteString("\nInclude a professional closing\n")
	}

	text, err := g.llm.Complete(ctx, composeSystemPrompt, b.String())
	if err != nil {
		return model.Draft{}, fmt.Errorf("composing email: %w", err)
	}

	subject, body := splitDraft(text, "Generated Email")
	return model.Draft{
		To:       []model.Address{req.To},
		Subject:  subject,
		BodyText: body,
	}, nil
}

const subjectPrefix = "SUBJECT:"

// splitDraft extracts the "SUBJECT:" line and the body that follows it.
// Without a subject line the whole text is the body.
func splitDraft(text, fallbackSubject string) (subject, body string) {
	lines := strings.Split(strings.TrimSpace(text), "\n")

	subject = fallbackSubject
	start := 0
	for i, line := range lines {
		if len(line) >= len(subjectPrefix) && strings.EqualFold(line[:len(subjectPrefix)], subjectPrefix) {
			if s := strings.TrimSpace(line[len(subjectPrefix):]); s != "" {
				subject = s
			}
			start = i + 1
			break
		}
	}
	return subject, strings.TrimSpace(strings.Join(lines[start:], "\n"))
}
