// Headless room peer: joins a room over the websocket feed and runs the
// WebRTC negotiation the way a browser client would. Useful for
// exercising a deployment end to end and as the second party when
// testing against a single browser.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"

	"github.com/quietline/quietline/internal/config"
	"github.com/quietline/quietline/internal/domain"
	"github.com/quietline/quietline/internal/rtc"
	"github.com/quietline/quietline/lib/logger/sl"
)

// feedFrame mirrors the server's websocket feed frames.
type feedFrame struct {
	Type     string                 `json:"type"`
	Status   domain.RoomStatus      `json:"status,omitempty"`
	Peer     *domain.Profile        `json:"peer,omitempty"`
	Messages []domain.Message       `json:"messages,omitempty"`
	Signal   *domain.SignalEnvelope `json:"signal,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

type outboundFrame struct {
	Type   string                 `json:"type"`
	Signal *domain.SignalEnvelope `json:"signal,omitempty"`
}

// wsSignaler publishes the session's envelopes over the feed socket.
type wsSignaler struct {
	conn *websocket.Conn
}

func (s *wsSignaler) Send(_ context.Context, env domain.SignalEnvelope) error {
	return s.conn.WriteJSON(outboundFrame{Type: "signal", Signal: &env})
}

func main() {
	var (
		serverURL  = flag.String("server", "ws://localhost:8080", "server base URL (ws:// or wss://)")
		code       = flag.String("code", "", "6-digit room code")
		roleFlag   = flag.String("role", "guest", "host or guest")
		configPath = flag.String("config", "config/local.yaml", "path to config file")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	role := domain.PeerRole(*roleFlag)
	if *code == "" || !role.Valid() {
		log.Error("usage: peer -code 123456 -role host|guest")
		os.Exit(2)
	}

	cfg := config.MustLoadPath(*configPath)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	url := *serverURL + "/api/rooms/" + *code + "/ws?role=" + string(role)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		log.Error("feed dial failed", slog.String("url", url), sl.Err(err))
		os.Exit(1)
	}
	defer conn.Close()

	media, err := rtc.NewSampleSource()
	var source rtc.MediaSource = media
	if err != nil {
		log.Warn("local media unavailable", sl.Err(err))
		source = rtc.DeniedSource{Reason: err}
	}

	session := rtc.NewSession(role, &wsSignaler{conn: conn}, source, cfg.WebRTC.STUNServers, log)

	statuses := make(chan domain.RoomStatus, 16)
	signals := make(chan domain.SignalEnvelope, 64)

	go func() {
		defer cancel()
		defer close(statuses)
		defer close(signals)
		for {
			var frame feedFrame
			if err := conn.ReadJSON(&frame); err != nil {
				log.Info("feed closed", sl.Err(err))
				return
			}
			switch frame.Type {
			case "status":
				log.Info("room status", slog.String("status", string(frame.Status)))
				statuses <- frame.Status
			case "signal":
				if frame.Signal != nil {
					signals <- *frame.Signal
				}
			case "messages":
				for _, msg := range frame.Messages {
					log.Info("chat", slog.String("sender", string(msg.Sender)), slog.String("text", msg.Text))
				}
			case "error":
				log.Warn("feed error", slog.String("error", frame.Error))
			}
		}
	}()

	if err := session.Run(ctx, statuses, signals); err != nil && ctx.Err() == nil {
		log.Error("session failed", sl.Err(err))
		os.Exit(1)
	}
	log.Info("session finished", slog.String("state", string(session.State())))
}
