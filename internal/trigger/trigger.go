// Package trigger decides when an assistant reply offers an affiliate
// recommendation and when a user reply consents to seeing it.
//
// Nothing in this package performs I/O. The chat controller feeds it reply
// text and user text and applies the returned decisions to conversation state.
package trigger

import (
	"errors"
	"fmt"
	"strings"
)

// Signal is the recommendation signal derived from one exchange.
type Signal int

const (
	// SignalNone means the exchange carries no recommendation intent.
	SignalNone Signal = iota
	// SignalOffer means the assistant asked whether the user wants a recommendation.
	SignalOffer
	// SignalConsent means the user accepted a pending offer and the card is revealed.
	SignalConsent
)

func (s Signal) String() string {
	switch s {
	case SignalOffer:
		return "offer"
	case SignalConsent:
		return "consent"
	default:
		return "none"
	}
}

// Encoding selects how an offer is carried inside an assistant reply.
type Encoding string

const (
	// EncodingStructured expects {"message": string, "offer": bool}.
	EncodingStructured Encoding = "structured"
	// EncodingMarker expects a control marker embedded in free text.
	EncodingMarker Encoding = "marker"
)

// DefaultMarker is the control marker recognised in marker encoding.
const DefaultMarker = "[[show_components]]"

// ErrMalformedReply is returned alongside a degraded outcome when a structured
// reply cannot be decoded.
var ErrMalformedReply = errors.New("malformed structured reply")

// ParseEncoding maps a configuration value to an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(s))) {
	case "", EncodingStructured:
		return EncodingStructured, nil
	case EncodingMarker:
		return EncodingMarker, nil
	default:
		return "", fmt.Errorf("unknown trigger encoding %q", s)
	}
}

// Outcome is the interpretation of one assistant reply.
type Outcome struct {
	Text   string
	Signal Signal
}

// Evaluator interprets assistant replies for one configured encoding.
type Evaluator struct {
	encoding Encoding
	marker   *markerScanner
}

// NewEvaluator returns an Evaluator. An empty marker selects DefaultMarker.
func NewEvaluator(encoding Encoding, marker string) (*Evaluator, error) {
	if encoding != EncodingStructured && encoding != EncodingMarker {
		return nil, fmt.Errorf("unknown trigger encoding %q", encoding)
	}
	if strings.TrimSpace(marker) == "" {
		marker = DefaultMarker
	}
	return &Evaluator{
		encoding: encoding,
		marker:   newMarkerScanner(strings.TrimSpace(marker)),
	}, nil
}

// Encoding reports the configured encoding.
func (e *Evaluator) Encoding() Encoding { return e.encoding }

// Structured reports whether replies are expected as JSON payloads.
func (e *Evaluator) Structured() bool { return e.encoding == EncodingStructured }

// Interpret extracts display text and the offer signal from an assistant reply.
//
// offer is non-nil when the collaborator already delivered a structured
// payload; it is then read directly and content is displayed as is. A
// structured reply that fails to decode is displayed unchanged with
// SignalNone, and the decode error is returned for logging.
func (e *Evaluator) Interpret(content string, offer *bool) (Outcome, error) {
	if offer != nil {
		return Outcome{Text: content, Signal: offerSignal(*offer)}, nil
	}

	if e.encoding == EncodingMarker {
		text, found := e.marker.Strip(content)
		return Outcome{Text: text, Signal: offerSignal(found)}, nil
	}

	p, err := parseStructured(content)
	if err != nil {
		return Outcome{Text: content, Signal: SignalNone}, err
	}
	return Outcome{Text: p.text, Signal: offerSignal(p.offer)}, nil
}

// OutputContract describes the reply format the model must follow. It is
// appended to the configured system prompt.
func (e *Evaluator) OutputContract() string {
	if e.encoding == EncodingMarker {
		return "When, and only when, you are asking the user whether they would like a product recommendation, " +
			"end your reply with the exact marker " + e.marker.token + " on its own line. " +
			"Never mention the marker otherwise."
	}
	return `Always respond with a single JSON object of the form {"message": "<reply shown to the user>", "offer": <true|false>}. ` +
		`Set "offer" to true only when the message asks the user whether they would like a product recommendation.`
}

func offerSignal(offered bool) Signal {
	if offered {
		return SignalOffer
	}
	return SignalNone
}
