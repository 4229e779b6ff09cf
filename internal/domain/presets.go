package domain

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed presets/bukai-evaluator.txt
var bukaiPersonality string

// DefaultCurrentID is the preset that is current before any pointer arrives.
const DefaultCurrentID = "bukai-evaluator"

// DefaultPresets returns the built-in presets in their curated order. Each
// call returns a fresh slice.
func DefaultPresets() []AgentRecord {
	return []AgentRecord{
		{
			ID:          DefaultCurrentID,
			Name:        "👔 BukAI",
			Personality: strings.TrimSpace(bukaiPersonality),
			BodyColor:   "#4285f4",
			Voice:       VoiceKore,
		},
		{
			ID:          "paul",
			Name:        "Paul",
			Personality: "You are a calm and logical assistant.",
			BodyColor:   "#217bfe",
			Voice:       VoiceFenrir,
		},
		{
			ID:          "charlotte",
			Name:        "Charlotte",
			Personality: "You are a helpful and friendly assistant.",
			BodyColor:   "#f538a0",
			Voice:       VoiceAoede,
		},
		{
			ID:          "shane",
			Name:        "Shane",
			Personality: "You are an energetic and enthusiastic assistant.",
			BodyColor:   "#34a853",
			Voice:       VoicePuck,
		},
		{
			ID:          "penny",
			Name:        "Penny",
			Personality: "You are a creative and imaginative assistant.",
			BodyColor:   "#fbbc04",
			Voice:       VoiceKore,
		},
	}
}

// LoadPresets reads an ordered preset list from a YAML file:
//
//	- id: paul
//	  name: Paul
//	  personality: You are a calm and logical assistant.
//	  bodyColor: "#217bfe"
//	  voice: Fenrir
func LoadPresets(path string) ([]AgentRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var presets []AgentRecord
	if err := yaml.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("parsing presets %s: %w", path, err)
	}
	if err := ValidatePresets(presets); err != nil {
		return nil, fmt.Errorf("presets %s: %w", path, err)
	}
	return presets, nil
}

// ValidatePresets checks that a preset list is non-empty, ids are present and
// unique, and every voice belongs to the closed set.
func ValidatePresets(presets []AgentRecord) error {
	if len(presets) == 0 {
		return fmt.Errorf("no presets defined")
	}
	seen := make(map[string]bool, len(presets))
	for i, p := range presets {
		if p.ID == "" {
			return fmt.Errorf("preset %d: id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("preset %d: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
		if !p.Voice.Valid() {
			return fmt.Errorf("preset %q: unknown voice %q", p.ID, p.Voice)
		}
	}
	return nil
}
