package backend

import (
	"context"
	"strings"
	"unicode"

	"github.com/go-go-golems/helpdesk/pkg/chat"
)

// Responder produces the assistant reply for a user message.
type Responder interface {
	Reply(ctx context.Context, text string) (string, error)
}

type ResponderFunc func(ctx context.Context, text string) (string, error)

func (f ResponderFunc) Reply(ctx context.Context, text string) (string, error) { return f(ctx, text) }

const DefaultFallbackReply = "Thanks for reaching out. A member of the support team will follow up on your question."

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "you": {}, "your": {}, "with": {},
	"can": {}, "how": {}, "what": {}, "who": {}, "when": {}, "where": {}, "does": {},
	"have": {}, "has": {}, "this": {}, "that": {}, "about": {}, "there": {}, "their": {},
	"please": {}, "need": {}, "help": {}, "want": {}, "get": {}, "many": {}, "much": {},
}

type faqEntry struct {
	question string
	answer   string
	terms    map[string]struct{}
}

// FAQResponder answers with the assistant reply whose preceding user question
// shares the most terms with the incoming message.
type FAQResponder struct {
	entries  []faqEntry
	fallback string
}

var _ Responder = &FAQResponder{}

// NewFAQResponder indexes every user message that is directly followed by an
// assistant message.
func NewFAQResponder(convs []chat.Conversation, fallback string) *FAQResponder {
	if fallback == "" {
		fallback = DefaultFallbackReply
	}
	r := &FAQResponder{fallback: fallback}
	for _, c := range convs {
		for i := 0; i+1 < len(c.Messages); i++ {
			q, a := c.Messages[i], c.Messages[i+1]
			if q.Sender != chat.SenderUser || a.Sender != chat.SenderAssistant {
				continue
			}
			terms := termSet(q.Text)
			if len(terms) == 0 {
				continue
			}
			r.entries = append(r.entries, faqEntry{question: q.Text, answer: a.Text, terms: terms})
		}
	}
	return r
}

func (r *FAQResponder) Len() int { return len(r.entries) }

func (r *FAQResponder) Reply(_ context.Context, text string) (string, error) {
	query := termSet(text)
	best, bestScore := -1, 0
	for i, e := range r.entries {
		score := 0
		for t := range query {
			if _, ok := e.terms[t]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return r.fallback, nil
	}
	return r.entries[best].answer, nil
}

func termSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if len([]rune(w)) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out[stem(w)] = struct{}{}
	}
	return out
}

// stem drops a trailing plural "s".
func stem(w string) string {
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		return w[:len(w)-1]
	}
	return w
}
