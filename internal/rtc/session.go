// Package rtc manages one WebRTC peer session per room. The nested
// callback flow of browser-style negotiation is expressed as an explicit
// state machine with one handler per inbound event type, which keeps the
// candidate-buffering invariant testable in isolation.
package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/quietline/quietline/internal/domain"
	"github.com/quietline/quietline/lib/logger/sl"
)

type State string

const (
	StateIdle           State = "idle"
	StateAwaitingPeer   State = "awaiting-peer"
	StateNegotiating    State = "negotiating"
	StateMediaConnected State = "media-connected"
	StateClosed         State = "closed"
)

var ErrUnexpectedSignal = errors.New("signal not valid for this role")

// Signaler publishes outbound envelopes to the realtime channel.
type Signaler interface {
	Send(ctx context.Context, env domain.SignalEnvelope) error
}

// MediaSource supplies the local capture tracks for a session. A source
// that cannot acquire its devices returns an error from Tracks; the
// session then proceeds without local media instead of failing.
type MediaSource interface {
	Tracks(ctx context.Context) ([]webrtc.TrackLocal, error)
	Close() error
}

// PeerConnection is the slice of *webrtc.PeerConnection the session
// drives. Tests substitute a recording fake.
type PeerConnection interface {
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	Close() error
}

// Session owns the peer connection for one room. The host side always
// creates the offer; the guest side always waits for one. That
// asymmetry fixes the negotiation direction, and no renegotiation or
// role switch exists.
//
// Session is safe for concurrent use.
type Session struct {
	role     domain.PeerRole
	signaler Signaler
	media    MediaSource
	log      *slog.Logger
	newConn  func() (PeerConnection, error)

	mu        sync.Mutex
	state     State
	pc        PeerConnection
	pending   []webrtc.ICECandidateInit
	remoteSet bool
	closed    bool
}

func NewSession(role domain.PeerRole, signaler Signaler, media MediaSource, stunServers []string, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		role:     role,
		signaler: signaler,
		media:    media,
		log:      log.With(slog.String("role", string(role))),
		state:    StateIdle,
		newConn: func() (PeerConnection, error) {
			return webrtc.NewPeerConnection(webrtc.Configuration{
				ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
			})
		},
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HandleStatus reacts to one room status observation. waiting parks the
// session, connected triggers the (idempotent) peer connection setup,
// ended tears everything down.
func (s *Session) HandleStatus(ctx context.Context, status domain.RoomStatus) error {
	switch status {
	case domain.RoomWaiting:
		s.mu.Lock()
		if s.state == StateIdle {
			s.state = StateAwaitingPeer
		}
		s.mu.Unlock()
		return nil
	case domain.RoomConnected:
		return s.start(ctx)
	case domain.RoomEnded:
		return s.Close()
	default:
		return fmt.Errorf("unknown room status %q", status)
	}
}

// HandleSignal dispatches one inbound envelope from the counterpart.
func (s *Session) HandleSignal(ctx context.Context, env domain.SignalEnvelope) error {
	switch env.Type {
	case domain.SignalOffer:
		return s.handleOffer(ctx, env.Payload)
	case domain.SignalAnswer:
		return s.handleAnswer(env.Payload)
	case domain.SignalCandidate:
		return s.handleCandidate(env.Payload)
	default:
		return fmt.Errorf("unknown signal type %q", env.Type)
	}
}

// Run drives the session from a status stream and a signal stream until
// the room ends, either stream closes, or ctx is cancelled. The session
// is closed on exit.
func (s *Session) Run(ctx context.Context, statuses <-chan domain.RoomStatus, signals <-chan domain.SignalEnvelope) error {
	defer s.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case status, ok := <-statuses:
			if !ok {
				return nil
			}
			if err := s.HandleStatus(ctx, status); err != nil {
				return err
			}
			if status == domain.RoomEnded {
				return nil
			}
		case env, ok := <-signals:
			if !ok {
				return nil
			}
			if err := s.HandleSignal(ctx, env); err != nil {
				s.log.Warn("signal handling failed", slog.String("type", string(env.Type)), sl.Err(err))
			}
		}
	}
}

// start constructs the peer connection. Guarded so a re-fired connected
// status never builds a second session object.
func (s *Session) start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.pc != nil {
		return nil
	}

	pc, err := s.newConn()
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}

	tracks, err := s.media.Tracks(ctx)
	if err != nil {
		// Degrade: the session continues as receive-only.
		s.log.Warn("local media unavailable, continuing without it", sl.Err(err))
	}
	for _, track := range tracks {
		if _, err := pc.AddTrack(track); err != nil {
			pc.Close()
			return fmt.Errorf("add local track: %w", err)
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		payload, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		env := domain.SignalEnvelope{
			Type:    domain.SignalCandidate,
			Payload: string(payload),
			Sender:  s.role,
		}
		if err := s.signaler.Send(context.Background(), env); err != nil {
			s.log.Warn("candidate publish failed", sl.Err(err))
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.log.Info("peer connection state", slog.String("state", state.String()))
		if state == webrtc.PeerConnectionStateConnected {
			s.mu.Lock()
			if !s.closed {
				s.state = StateMediaConnected
			}
			s.mu.Unlock()
		}
	})

	s.pc = pc
	s.state = StateNegotiating

	if s.role == domain.RoleHost {
		return s.sendOfferLocked(ctx)
	}
	return nil
}

func (s *Session) sendOfferLocked(ctx context.Context) error {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	payload, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("marshal offer: %w", err)
	}
	return s.signaler.Send(ctx, domain.SignalEnvelope{
		Type:    domain.SignalOffer,
		Payload: string(payload),
		Sender:  s.role,
	})
}

// handleOffer is valid on the guest side only. Applying the remote
// description releases any buffered candidates before the answer goes
// out.
func (s *Session) handleOffer(ctx context.Context, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != domain.RoleGuest {
		return ErrUnexpectedSignal
	}
	if s.closed || s.pc == nil || s.remoteSet {
		return nil
	}

	var offer webrtc.SessionDescription
	if err := json.Unmarshal([]byte(payload), &offer); err != nil {
		return fmt.Errorf("decode offer: %w", err)
	}
	if err := s.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	s.remoteSet = true
	s.flushPendingLocked()

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	data, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}
	return s.signaler.Send(ctx, domain.SignalEnvelope{
		Type:    domain.SignalAnswer,
		Payload: string(data),
		Sender:  s.role,
	})
}

// handleAnswer is valid on the host side only.
func (s *Session) handleAnswer(payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != domain.RoleHost {
		return ErrUnexpectedSignal
	}
	if s.closed || s.pc == nil || s.remoteSet {
		return nil
	}

	var answer webrtc.SessionDescription
	if err := json.Unmarshal([]byte(payload), &answer); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}
	if err := s.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	s.remoteSet = true
	s.flushPendingLocked()
	return nil
}

// handleCandidate applies the candidate immediately once the remote
// description is known; before that it is queued, because adding a
// candidate without a remote description fails.
func (s *Session) handleCandidate(payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(payload), &candidate); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}

	if !s.remoteSet || s.pc == nil {
		s.pending = append(s.pending, candidate)
		return nil
	}
	if err := s.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}
	return nil
}

// flushPendingLocked replays buffered candidates in arrival order. None
// are dropped; individual apply failures are logged and the rest still
// go through.
func (s *Session) flushPendingLocked() {
	for _, candidate := range s.pending {
		if err := s.pc.AddICECandidate(candidate); err != nil {
			s.log.Warn("buffered candidate rejected", sl.Err(err))
		}
	}
	s.pending = nil
}

// Close stops local media, closes the peer connection and clears all
// references. Safe to call any number of times, from the cleanup path
// and the explicit end-call action alike.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.state = StateClosed
	s.pending = nil
	s.remoteSet = false

	if err := s.media.Close(); err != nil {
		s.log.Warn("media source close failed", sl.Err(err))
	}
	if s.pc != nil {
		err := s.pc.Close()
		s.pc = nil
		if err != nil {
			return fmt.Errorf("close peer connection: %w", err)
		}
	}
	return nil
}
