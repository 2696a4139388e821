package trigger

import (
	"encoding/json"
	"fmt"
	"strings"
)

type structuredReply struct {
	Message  string `json:"message"`
	Response string `json:"response"`

	Offer              *bool `json:"offer"`
	ShowRecommendation *bool `json:"showRecommendation"`
}

type parsedReply struct {
	text  string
	offer bool
}

func parseStructured(raw string) (parsedReply, error) {
	body := stripCodeFence(raw)
	if body == "" {
		return parsedReply{}, fmt.Errorf("%w: empty reply", ErrMalformedReply)
	}

	var r structuredReply
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return parsedReply{}, fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}

	text := r.Message
	if text == "" {
		text = r.Response
	}
	if strings.TrimSpace(text) == "" {
		return parsedReply{}, fmt.Errorf("%w: missing message", ErrMalformedReply)
	}

	var offer bool
	switch {
	case r.Offer != nil:
		offer = *r.Offer
	case r.ShowRecommendation != nil:
		offer = *r.ShowRecommendation
	}
	return parsedReply{text: text, offer: offer}, nil
}

// stripCodeFence removes a ```json fence some models wrap around JSON output.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.Trim(s, "`")
	s = strings.TrimPrefix(s, "json")
	return strings.TrimSpace(s)
}
