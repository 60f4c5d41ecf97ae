package persona

// Supported tone settings shared by the default personas
const (
	ToneProfessional = "professional"
	ToneFriendly     = "friendly"
	ToneDirect       = "direct"
)

// DefaultPersonas returns the built-in companion definitions
func DefaultPersonas() []*Persona {
	return []*Persona{
		{
			ID:          "ccc",
			Name:        "Commercial Strategy Companion",
			Description: "Helps consultants qualify deals, review accounts and build client proposals.",
			SystemPrompt: "You are a commercial strategy companion for a consulting firm. " +
				"You help consultants win and grow client work: qualifying opportunities, " +
				"reviewing account health and drafting persuasive, well-structured proposals. " +
				"Be concrete, commercially sharp and grounded in what the user has told you.",
			Tones:       []string{ToneProfessional, ToneFriendly, ToneDirect},
			DefaultTone: ToneProfessional,
			Enabled:     true,
		},
		{
			ID:          "mcc",
			Name:        "Marketing Companion",
			Description: "Helps marketers plan campaigns and build content calendars.",
			SystemPrompt: "You are a marketing companion. You help marketers turn briefs into " +
				"campaign concepts, channel plans and content calendars. Favour clear, " +
				"actionable recommendations over generalities.",
			Tones:       []string{ToneProfessional, ToneFriendly},
			DefaultTone: ToneFriendly,
			Enabled:     true,
		},
	}
}
