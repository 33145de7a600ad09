package domain

// Persona is a simulated peer identity produced by the matchmaking
// model for the instant-match flow. SystemInstruction drives all of the
// persona's replies; Fallback marks the hardcoded identity used when
// generation fails.
type Persona struct {
	Name              string `json:"name"`
	SystemInstruction string `json:"systemInstruction"`
	Fallback          bool   `json:"-"`
}
