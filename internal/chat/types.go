package chat

import (
	"errors"
	"strings"

	"docchat/internal/models"
	"docchat/internal/providers"
)

var ErrEmptyMessage = errors.New("no message content provided")

type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

type Message struct {
	ID    string `json:"id,omitempty"`
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Text joins the message's text parts.
func (m Message) Text() string {
	var texts []string
	for _, p := range m.Parts {
		if p.Type == "text" && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Request is the body of a chat turn.
type Request struct {
	ID        string               `json:"id"`
	Messages  []Message            `json:"messages"`
	Model     string               `json:"model"`
	WebSearch bool                 `json:"webSearch"`
	DocIDs    []models.DocumentRef `json:"docIds"`
}

// LatestUserText returns the text of the first part of the last message.
func LatestUserText(msgs []Message) (string, error) {
	if len(msgs) == 0 {
		return "", ErrEmptyMessage
	}
	last := msgs[len(msgs)-1]
	if len(last.Parts) == 0 || last.Parts[0].Type != "text" || strings.TrimSpace(last.Parts[0].Text) == "" {
		return "", ErrEmptyMessage
	}
	return last.Parts[0].Text, nil
}

func toProviderMessages(msgs []Message) []providers.Message {
	out := make([]providers.Message, 0, len(msgs))
	for _, m := range msgs {
		text := m.Text()
		if text == "" {
			continue
		}
		role := m.Role
		if role != "assistant" && role != "system" {
			role = "user"
		}
		out = append(out, providers.Message{Role: role, Content: text})
	}
	return out
}

// SessionName is the first 50 characters of the opening message.
func SessionName(text string) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) > 50 {
		r = r[:50]
	}
	return string(r)
}
