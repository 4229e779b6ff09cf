package prompt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/soyeahso/roster/internal/domain"
)

var when = time.Date(2025, time.March, 14, 15, 9, 0, 0, time.UTC)

func TestBuildSystemInstructions(t *testing.T) {
	agent := domain.AgentRecord{ID: "paul", Name: "Paul", Personality: "Dry wit.", Voice: domain.Voice("Fenrir")}
	got := BuildSystemInstructions(agent, User{Name: "Ana", Info: "Likes chess."}, when)

	assert.Contains(t, got, "Your name is Paul and you are in a conversation with the user (Ana).\n")
	assert.Contains(t, got, "described like this:\nDry wit.\nHere is some information about Ana:\nLikes chess.\n")
	assert.Contains(t, got, "Use this information to make your response more personal.")
	assert.Contains(t, got, "Today's date is Friday, March 14, 2025 at 3:09 PM.")
	assert.Contains(t, got, "Emotional Mirror")
}

func TestBuildSystemInstructionsAnonymousUser(t *testing.T) {
	agent := domain.AgentRecord{Name: "Penny", Personality: "Cheerful."}

	got := BuildSystemInstructions(agent, User{}, when)
	assert.Contains(t, got, "conversation with the user.\n")
	assert.NotContains(t, got, "Here is some information")

	got = BuildSystemInstructions(agent, User{Info: "Tired today."}, when)
	assert.Contains(t, got, "Here is some information about the user:\nTired today.")
}

func TestBuildSystemInstructionsIsDeterministic(t *testing.T) {
	agent := domain.DefaultPresets()[0]
	u := User{Name: "Ana"}
	assert.Equal(t, BuildSystemInstructions(agent, u, when), BuildSystemInstructions(agent, u, when))
}
