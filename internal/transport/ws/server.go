package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"npcsim.ai/internal/protocol"
)

// Submitter accepts external events; *kernel.Kernel is one.
type Submitter interface {
	Submit(ctx context.Context, ev protocol.Event) error
}

type Options struct {
	// Observer queue length in frames.
	QueueSize int
	// Accept INPUT frames from non-loopback peers.
	AllowRemoteInput bool
	// Upper bound on how long one INPUT may wait for the kernel inbox.
	SubmitTimeout time.Duration
}

type Server struct {
	hub    *Hub
	submit Submitter
	log    *slog.Logger
	opts   Options

	input    *jsonschema.Schema
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, submit Submitter, log *slog.Logger, opts Options) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 2 * time.Second
	}
	schema, err := protocol.CompileSchema(protocol.SchemaInput)
	if err != nil {
		return nil, err
	}
	return &Server{
		hub:    hub,
		submit: submit,
		log:    log,
		opts:   opts,
		input:  schema,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}, nil
}

// Handler serves one observer per connection: MESSAGES frames out, INPUT
// frames in.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		canInput := s.opts.AllowRemoteInput || IsLoopbackRemote(r.RemoteAddr)
		id, out := s.hub.Subscribe(s.opts.QueueSize)
		log := s.log.With("observer", id, "remote", r.RemoteAddr)
		log.Info("observer connected")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine owns all writes after this point.
		replies := make(chan []byte, 8)
		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			for {
				var b []byte
				select {
				case <-ctx.Done():
					return
				case b = <-replies:
				case frame, ok := <-out:
					if !ok {
						return
					}
					b = frame
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if code, text := s.handleFrame(ctx, msg, canInput); code != "" {
				b, _ := json.Marshal(protocol.ErrorMsg{
					Type:            protocol.TypeError,
					ProtocolVersion: protocol.Version,
					Code:            code,
					Message:         text,
				})
				select {
				case replies <- b:
				default:
				}
			}
		}

		s.hub.Unsubscribe(id)
		cancel()
		select {
		case <-writeDone:
		case <-time.After(500 * time.Millisecond):
		}
		log.Info("observer disconnected")
	}
}

// handleFrame returns an error code and text when the frame is rejected.
func (s *Server) handleFrame(ctx context.Context, msg []byte, canInput bool) (code, text string) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.ErrBadRequest, "bad json"
	}
	if base.Type != protocol.TypeInput {
		return protocol.ErrBadRequest, "unsupported frame type"
	}
	if !canInput {
		return protocol.ErrConflict, "input is only accepted from loopback"
	}
	var doc any
	if err := json.Unmarshal(msg, &doc); err != nil {
		return protocol.ErrBadRequest, "bad json"
	}
	if err := s.input.Validate(doc); err != nil {
		return protocol.ErrBadRequest, "invalid INPUT frame"
	}
	var in protocol.InputMsg
	if err := json.Unmarshal(msg, &in); err != nil {
		return protocol.ErrBadRequest, "bad json"
	}
	if in.ProtocolVersion != protocol.Version {
		return protocol.ErrBadRequest, "bad protocol_version"
	}

	sctx, cancel := context.WithTimeout(ctx, s.opts.SubmitTimeout)
	defer cancel()
	if err := s.submit.Submit(sctx, protocol.NewInput(strings.TrimSpace(in.Text))); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return protocol.ErrRateLimit, "input queue full"
		}
		return protocol.ErrConflict, err.Error()
	}
	return "", ""
}

// IsLoopbackRemote reports whether an http.Request RemoteAddr is a loopback peer.
func IsLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
