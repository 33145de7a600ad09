package domain

type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
)

// SignalEnvelope carries one session-description or ICE-candidate
// payload through the realtime channel. Offers and answers are
// single-slot (last write wins per type); candidates are appended to a
// per-sender list.
type SignalEnvelope struct {
	Type    SignalType `json:"type"`
	Payload string     `json:"payload"`
	Sender  PeerRole   `json:"sender"`
}
