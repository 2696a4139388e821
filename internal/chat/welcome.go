package chat

import (
	"strings"

	"github.com/elliotchance/pie/v2"
)

// FallbackReply is shown when the completion collaborator fails.
const FallbackReply = "I'm having trouble connecting right now. Please try again in a moment."

const welcomeBody = "I'm FitMind—your AI wellness guide. I'm here to help with sleep, recovery, energy, and more. " +
	"What's one thing you've been struggling with lately—fatigue, stress, soreness, or something else?"

// Welcome returns the opening assistant message, personalised when the first
// name is known.
func Welcome(firstName string) string {
	firstName = strings.TrimSpace(firstName)
	if firstName == "" {
		return "Hi, " + welcomeBody
	}
	return "Hi " + firstName + ", " + welcomeBody
}

// QuickReply is a suggested first message that tags the conversation goal.
type QuickReply struct {
	Label string `json:"label"`
	Goal  string `json:"goal"`
}

// QuickReplies are offered under the opening message.
var QuickReplies = []QuickReply{
	{Label: "Reduce stress", Goal: "stress"},
	{Label: "Sleep better", Goal: "sleep"},
	{Label: "More energy", Goal: "energy"},
	{Label: "Less inflammation", Goal: "inflammation"},
	{Label: "Pain relief", Goal: "pain"},
	{Label: "Emotional balance", Goal: "emotional_balance"},
}

// GoalFor returns the goal tag of a quick reply label.
func GoalFor(text string) (string, bool) {
	text = strings.TrimSpace(text)
	i := pie.FindFirstUsing(QuickReplies, func(q QuickReply) bool {
		return strings.EqualFold(q.Label, text)
	})
	if i < 0 {
		return "", false
	}
	return QuickReplies[i].Goal, true
}
