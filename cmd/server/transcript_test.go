package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/fitmind/internal/domain"
)

func TestWriteTranscript(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	conv := &domain.Conversation{
		ID:                  "conv-1",
		UserID:              "user-1",
		Title:               domain.DefaultConversationTitle,
		TurnCount:           1,
		Goal:                "sleep",
		ConsentPending:      true,
		RecommendationShown: false,
		Messages: []domain.Message{
			{Text: "Hi Jane, I'm FitMind", IsAssistant: true, CreatedAt: at},
			{Text: "Sleep better", CreatedAt: at},
			{Text: "Want a suggestion?", IsAssistant: true, Signaled: true, CreatedAt: at},
		},
	}

	var buf bytes.Buffer
	writeTranscript(&buf, conv)
	out := buf.String()

	for _, want := range []string{
		"Conversation conv-1 (Fitness Chat)",
		"Goal:        sleep",
		"consent pending true",
		"user:     Sleep better",
		"Want a suggestion? [offer]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("transcript missing %q:\n%s", want, out)
		}
	}
}
