// Package prompt builds the instruction text a live session is configured
// with for the current agent.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/roster/internal/domain"
)

// User is the person the agent talks to.
type User struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Info string `json:"info,omitempty" yaml:"info,omitempty"`
}

// BuildSystemInstructions renders the session instructions for agent
// speaking with user at time now.
func BuildSystemInstructions(agent domain.AgentRecord, user User, now time.Time) string {
	var b strings.Builder

	// Identity
	fmt.Fprintf(&b, "Your name is %s and you are in a conversation with the user", agent.Name)
	if user.Name != "" {
		fmt.Fprintf(&b, " (%s)", user.Name)
	}
	b.WriteString(".\n\n")

	b.WriteString("Your personality is described like this:\n")
	b.WriteString(agent.Personality)
	if user.Info != "" {
		who := user.Name
		if who == "" {
			who = "the user"
		}
		fmt.Fprintf(&b, "\nHere is some information about %s:\n%s\n\n", who, user.Info)
		b.WriteString("Use this information to make your response more personal.")
	}
	b.WriteString("\n\n")

	// Date context
	fmt.Fprintf(&b, "Today's date is %s at %s.\n\n", now.Format("Monday, January 2, 2006"), now.Format("3:04 PM"))

	// Guidelines
	b.WriteString("Output a thoughtful response that makes sense given your personality and interests. ")
	b.WriteString("Do NOT use any emojis or pantomime text because this text will be read out loud. ")
	b.WriteString("Keep it fairly concise, don't speak too many sentences at once. ")
	b.WriteString("NEVER EVER repeat things you've said before in the conversation!\n\n")

	b.WriteString("*** EMOTIONAL ADAPTATION INSTRUCTIONS ***\n")
	b.WriteString("You must act as an \"Emotional Mirror\". Listen carefully to the user's vocal tone, speed, and energy:\n")
	b.WriteString("1. Low Energy/Serious/Sad: If the user speaks softly, slowly, or with low energy, lower your own energy. Speak in a CALM, EMPATHETIC, soothing, and slower tone.\n")
	b.WriteString("2. High Energy/Happy/Enthusiastic: If the user sounds energetic, loud, or fast, match that energy. Speak in a DYNAMIC, UPBEAT, and enthusiastic tone.\n")
	b.WriteString("3. Neutral: If the user is neutral, maintain a professional but warm tone.\n")
	b.WriteString("Always adapt your delivery to build rapport based on how the user *sounds*, not just what they say.\n\n")

	b.WriteString("IMPORTANT: The user will initiate the conversation with a greeting like \"Hola\". ")
	b.WriteString("You must reply immediately by introducing yourself and your role. ")
	b.WriteString("Do NOT wait for further input. Speak immediately upon receiving the first message.")

	return b.String()
}
