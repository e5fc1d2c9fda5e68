package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGateCheck(t *testing.T) {
	gate := NewGate(nil)

	tests := []struct {
		name       string
		utterance  string
		overridden bool
		category   TriggerCategory
		transfer   bool
	}{
		{"emergency chest pain", "I'm having chest pain right now", true, TriggerEmergency, false},
		{"emergency 911", "should I call 911", true, TriggerEmergency, false},
		{"breathing trouble", "my mom can't breathe properly", true, TriggerEmergency, false},
		{"explicit human", "I want to talk to a real person", true, TriggerHumanRequest, true},
		{"transfer me", "just transfer me please", true, TriggerHumanRequest, true},
		{"no robots", "I don't want to talk to a robot", true, TriggerHumanRequest, true},
		{"profanity", "this is fucking useless", true, TriggerProfanity, true},
		{"medical advice", "should I stop taking my blood thinners", true, TriggerDisallowed, false},
		{"normal booking", "I'd like to book an appointment for tomorrow", false, TriggerNone, false},
		{"empty", "", false, TriggerNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := gate.Check("call-1", tt.utterance)
			assert.Equal(t, tt.overridden, got.Overridden)
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, tt.transfer, got.ShouldTransfer)
			if tt.overridden {
				assert.NotEmpty(t, got.ForcedReply)
				assert.NotEmpty(t, got.ForcedIntent)
			}
		})
	}
}

func TestGuardReply(t *testing.T) {
	t.Run("clean reply passes", func(t *testing.T) {
		got := GuardReply("Our first opening tomorrow is at 9am. Does that work?", false, false)
		assert.False(t, got.Blocked)
		assert.Equal(t, "Our first opening tomorrow is at 9am. Does that work?", got.Text)
	})

	t.Run("unverified success claim rewritten", func(t *testing.T) {
		got := GuardReply("Great news, you're all booked for Tuesday at 2pm!", false, false)
		assert.True(t, got.Blocked)
		assert.Contains(t, got.Reasons, "guard:unverified_success_claim")
		assert.NotContains(t, got.Text, "booked for Tuesday")
		assert.Contains(t, got.Text, "reception")
	})

	t.Run("verified success claim allowed", func(t *testing.T) {
		got := GuardReply("You're all booked for Tuesday at 2pm.", false, true)
		assert.False(t, got.Blocked)
	})

	t.Run("terminal lock blocks rebook prompt", func(t *testing.T) {
		got := GuardReply("Would you like to book another appointment?", true, true)
		assert.True(t, got.Blocked)
		assert.Contains(t, got.Reasons, "guard:terminal_rebook_prompt")
	})

	t.Run("terminal lock allows faq answer", func(t *testing.T) {
		faq := "We're open Monday to Friday, 8am to 6pm, and parking is free behind the building."
		got := GuardReply(faq, true, true)
		assert.False(t, got.Blocked)
		assert.Equal(t, faq, got.Text)
	})

	t.Run("empty reply untouched", func(t *testing.T) {
		got := GuardReply("", true, false)
		assert.False(t, got.Blocked)
	})
}
