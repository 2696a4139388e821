package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func offered(turn int) State {
	s := State{}
	s.ApplyAssistantSignal(turn, SignalOffer)
	return s
}

func TestApplyUserTurnWithoutOfferIsNotEvaluated(t *testing.T) {
	s := State{}
	d := s.ApplyUserTurn(1, "yes please")
	assert.False(t, d.Evaluated)
	assert.False(t, d.Reveal)
	assert.False(t, s.RecommendationShown)
}

func TestAffirmativeRevealsOnce(t *testing.T) {
	s := offered(1)

	d := s.ApplyUserTurn(2, "yes")
	assert.True(t, d.Reveal)
	assert.Equal(t, SignalConsent, d.Signal())
	assert.True(t, s.RecommendationShown)
	assert.True(t, s.RecommendationVisible)
	assert.False(t, s.ConsentPending)

	s.ApplyAssistantSignal(2, SignalOffer)
	d = s.ApplyUserTurn(3, "sure")
	assert.True(t, d.Evaluated)
	assert.False(t, d.Reveal)
	assert.False(t, s.ConsentPending)
	assert.True(t, s.RecommendationShown)
}

func TestNegativeClearsPending(t *testing.T) {
	s := offered(4)

	d := s.ApplyUserTurn(5, "no thanks")
	assert.Equal(t, ConsentNegative, d.Consent)
	assert.False(t, d.Reveal)
	assert.False(t, s.ConsentPending)
	assert.False(t, s.RecommendationShown)
}

func TestAmbiguousKeepsPendingThenExpires(t *testing.T) {
	s := offered(1)

	d := s.ApplyUserTurn(2, "what is it?")
	assert.Equal(t, ConsentAmbiguous, d.Consent)
	assert.True(t, s.ConsentPending)

	d = s.ApplyUserTurn(3, "yes")
	assert.True(t, d.Expired)
	assert.False(t, d.Evaluated)
	assert.False(t, d.Reveal)
	assert.False(t, s.ConsentPending)
	assert.False(t, s.RecommendationShown)
}

func TestReofferAfterAmbiguousIsEligible(t *testing.T) {
	s := offered(1)
	s.ApplyUserTurn(2, "hmm")
	s.ApplyAssistantSignal(2, SignalOffer)

	d := s.ApplyUserTurn(3, "okay")
	assert.True(t, d.Reveal)
}

func TestNoSignalLeavesStateUntouched(t *testing.T) {
	s := State{}
	s.ApplyAssistantSignal(1, SignalNone)
	assert.Equal(t, State{}, s)
}

func TestDismissIsIdempotent(t *testing.T) {
	s := offered(1)
	s.ApplyUserTurn(2, "yes")

	assert.True(t, s.Dismiss())
	assert.False(t, s.Dismiss())
	assert.False(t, s.RecommendationVisible)
	assert.True(t, s.RecommendationShown)
}
