package domain

import "fmt"

// Voice selects the synthesized voice of a live session.
type Voice string

const (
	VoiceAoede  Voice = "Aoede"
	VoiceCharon Voice = "Charon"
	VoiceFenrir Voice = "Fenrir"
	VoiceKore   Voice = "Kore"
	VoiceLeda   Voice = "Leda"
	VoiceOrus   Voice = "Orus"
	VoicePuck   Voice = "Puck"
	VoiceZephyr Voice = "Zephyr"
)

var voices = []Voice{
	VoiceAoede,
	VoiceCharon,
	VoiceFenrir,
	VoiceKore,
	VoiceLeda,
	VoiceOrus,
	VoicePuck,
	VoiceZephyr,
}

// Voices returns the closed set of voices in display order.
func Voices() []Voice {
	out := make([]Voice, len(voices))
	copy(out, voices)
	return out
}

// Valid reports whether v belongs to the closed voice set.
func (v Voice) Valid() bool {
	for _, known := range voices {
		if v == known {
			return true
		}
	}
	return false
}

// ParseVoice validates a voice name.
func ParseVoice(s string) (Voice, error) {
	v := Voice(s)
	if !v.Valid() {
		return "", fmt.Errorf("unknown voice %q", s)
	}
	return v, nil
}
