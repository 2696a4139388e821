package trigger

// State is the consent sub-state of a conversation.
type State struct {
	ConsentPending        bool
	OfferTurn             int
	RecommendationShown   bool
	RecommendationVisible bool
}

// Decision reports what a user turn did to the consent state.
type Decision struct {
	// Evaluated is true when the turn was consent-eligible and classified.
	Evaluated bool
	// Expired is true when a stale pending offer was dropped unclassified.
	Expired bool
	Consent Consent
	Matched string
	// Reveal is true when the card must be shown on this turn.
	Reveal bool
}

// Signal returns SignalConsent when the turn revealed the card.
func (d Decision) Signal() Signal {
	if d.Reveal {
		return SignalConsent
	}
	return SignalNone
}

// ApplyUserTurn runs consent classification for user turn number turn.
//
// Only the turn right after the offer is consent-eligible. An ambiguous reply
// leaves the offer pending; it expires at the following user turn unless the
// assistant offers again in between.
func (s *State) ApplyUserTurn(turn int, text string) Decision {
	if !s.ConsentPending {
		return Decision{}
	}
	if turn != s.OfferTurn+1 {
		s.ConsentPending = false
		return Decision{Expired: true}
	}

	consent, matched := classify(text)
	d := Decision{Evaluated: true, Consent: consent, Matched: matched}

	switch consent {
	case ConsentAffirmative:
		if !s.RecommendationShown {
			s.RecommendationShown = true
			s.RecommendationVisible = true
			d.Reveal = true
		}
		s.ConsentPending = false
	case ConsentNegative:
		s.ConsentPending = false
	case ConsentAmbiguous:
	}
	return d
}

// ApplyAssistantSignal records an offer issued in assistant reply of turn.
func (s *State) ApplyAssistantSignal(turn int, signal Signal) {
	if signal != SignalOffer {
		return
	}
	s.ConsentPending = true
	s.OfferTurn = turn
}

// Dismiss hides the card. RecommendationShown is never reset.
func (s *State) Dismiss() bool {
	if !s.RecommendationVisible {
		return false
	}
	s.RecommendationVisible = false
	return true
}
