package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/quietline/quietline/internal/domain"
	"github.com/quietline/quietline/lib/logger/sl"
)

const (
	// Fallback identity used when persona generation fails outright.
	fallbackName        = "Alex"
	fallbackInstruction = "You are a kind listener. Ask the user how they are."

	// Canned reply substituted when a single message call fails.
	fallbackReply = "I'm having a bit of trouble with my connection... can you repeat that?"

	// Balanced for creativity and coherence.
	chatTemperature = 0.9
)

type Service struct {
	gen Generator
	log *slog.Logger
}

func NewService(gen Generator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{gen: gen, log: log}
}

// GeneratePersona asks the model for a complementary peer persona.
// It never fails: any generation or parse error yields the fixed
// fallback identity so onboarding is never blocked.
func (s *Service) GeneratePersona(ctx context.Context, profile *domain.Profile) *domain.Persona {
	const op = "persona.generate"

	raw, err := s.gen.Complete(ctx, Request{
		Turns: []Turn{{Role: "user", Content: setupPrompt(profile)}},
	})
	if err != nil {
		s.log.Warn("persona generation failed, using fallback", slog.String("op", op), sl.Err(err))
		return fallbackPersona()
	}

	var parsed struct {
		Name              string `json:"name"`
		SystemInstruction string `json:"systemInstruction"`
	}
	if err := json.Unmarshal(extractJSON(raw), &parsed); err != nil {
		s.log.Warn("persona response unparseable, using fallback", slog.String("op", op), sl.Err(err))
		return fallbackPersona()
	}

	persona := &domain.Persona{
		Name:              parsed.Name,
		SystemInstruction: parsed.SystemInstruction,
	}
	if persona.Name == "" {
		persona.Name = "Peer"
	}
	if persona.SystemInstruction == "" {
		persona.SystemInstruction = "You are a helpful peer listener."
	}
	return persona
}

func fallbackPersona() *domain.Persona {
	return &domain.Persona{
		Name:              fallbackName,
		SystemInstruction: fallbackInstruction,
		Fallback:          true,
	}
}

// Conversation is one running persona chat. It keeps the full history
// so every reply stays in character.
type Conversation struct {
	gen     Generator
	persona *domain.Persona
	log     *slog.Logger

	mu    sync.Mutex
	turns []Turn
}

func (s *Service) StartConversation(persona *domain.Persona) *Conversation {
	return &Conversation{gen: s.gen, persona: persona, log: s.log}
}

func (c *Conversation) Persona() *domain.Persona {
	return c.persona
}

// Send forwards the user's text and returns the persona's reply. A
// failed model call returns the canned apology instead of an error; the
// session keeps going either way.
func (c *Conversation) Send(ctx context.Context, text string) string {
	const op = "persona.send"

	c.mu.Lock()
	c.turns = append(c.turns, Turn{Role: "user", Content: text})
	history := append([]Turn(nil), c.turns...)
	c.mu.Unlock()

	reply, err := c.gen.Complete(ctx, Request{
		SystemInstruction: c.persona.SystemInstruction,
		Turns:             history,
		Temperature:       chatTemperature,
	})
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			c.log.Warn("persona reply failed, using canned response", slog.String("op", op), sl.Err(err))
		}
		return fallbackReply
	}

	c.mu.Lock()
	c.turns = append(c.turns, Turn{Role: "assistant", Content: reply})
	c.mu.Unlock()
	return reply
}

func setupPrompt(p *domain.Profile) string {
	need := "to vent"
	if p.Role == domain.RoleSpeaker {
		need = "a Listener"
	}
	return fmt.Sprintf(`You are a Backend Matchmaker for a mental health app.
I have a user with the following profile:
- Role: %s (Needs %s)
- Age: %s
- Mood: %s
- Bio: %q
- Interests: %s

Please generate a compatible fictional persona for them to talk to.

If User is SPEAKER, generate a "Listener" persona who is empathetic, patient, and good at active listening.
If User is LISTENER, generate a "Speaker" persona who has a specific, realistic problem related to the interests above, but is willing to talk.

Output JSON ONLY:
{
  "name": "First Name Only",
  "systemInstruction": "Full system instruction for the AI to roleplay this person. Include personality traits, current situation, and conversation style. The AI should NOT mention they are AI. They should act exactly like a human on a video chat app."
}`,
		p.Role, need, p.AgeRange, p.Mood, p.Bio, strings.Join(p.Topics, ", "))
}

// extractJSON tolerates models that wrap the JSON object in code fences
// or prose.
func extractJSON(raw string) []byte {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return []byte(raw)
	}
	return []byte(raw[start : end+1])
}
