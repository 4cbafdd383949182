// Package ws is the websocket front-end: block-change feeds come in as
// SET_BLOCK / LOAD_SECTION messages and verified matches go out as MATCH.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"blockpatterns.dev/internal/detect"
	"blockpatterns.dev/internal/encoding"
	"blockpatterns.dev/internal/metrics"
	"blockpatterns.dev/internal/protocol"
	"blockpatterns.dev/internal/tuning"
	"blockpatterns.dev/internal/verify"
	"blockpatterns.dev/internal/voxel"
	"blockpatterns.dev/internal/worldstore"
)

type Config struct {
	Engine *detect.Engine
	Worlds *worldstore.Set
	// Digests reports the catalogs currently in effect for WELCOME.
	Digests   func() protocol.CatalogDigests
	Transport tuning.Transport
	Metrics   *metrics.Metrics
	Logger    *log.Logger
}

type Server struct {
	cfg Config
	log *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	id       string
	out      chan []byte
	worlds   map[string]bool
	patterns map[string]bool
	limiter  *rate.Limiter
}

func (s *session) wants(m verify.Match) bool {
	if len(s.worlds) > 0 && !s.worlds[m.World] {
		return false
	}
	if len(s.patterns) > 0 && !s.patterns[m.PatternID] {
		return false
	}
	return true
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.Digests == nil {
		cfg.Digests = func() protocol.CatalogDigests { return protocol.CatalogDigests{} }
	}
	return &Server{
		cfg: cfg,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		sessions: map[string]*session{},
	}
}

// Sessions is the number of connected clients.
func (s *Server) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Emit implements detect.Sink: the match is queued to every interested
// session. Slow sessions lose matches rather than stalling detection.
func (s *Server) Emit(m verify.Match) {
	b, err := json.Marshal(protocol.MatchMsg{Type: protocol.TypeMatch, ProtocolVersion: protocol.Version, Match: m})
	if err != nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if !sess.wants(m) {
			continue
		}
		select {
		case sess.out <- b:
		default:
			s.cfg.Metrics.SinkDrop("ws")
		}
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if n := s.cfg.Transport.MaxMessageBytes; n > 0 {
			conn.SetReadLimit(n)
		}

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		defer s.unregister(sess)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if reply := s.handle(sess, msg); reply != nil {
				s.send(sess, reply)
			}
			if ctx.Err() != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) unregister(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
}

// send queues a direct reply. Replies wait briefly for room instead of being
// dropped like broadcast matches.
func (s *Server) send(sess *session, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case sess.out <- b:
	case <-time.After(time.Second):
		s.log.Printf("session %s: reply dropped, queue full", sess.id)
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}
	closeWith := func(code, text string) {
		_ = writeJSON(conn, protocol.NewError("", code, text))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, text), time.Now().Add(time.Second))
	}

	base, err := protocol.ValidateInbound(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(protocol.ErrProtoHandshake, "expected HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(protocol.ErrProtoBadRequest, "bad HELLO")
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(protocol.ErrProtoVersion, "bad protocol_version")
		return nil
	}

	tr := s.cfg.Transport
	sess := &session{
		id:       fmt.Sprintf("S%d", s.nextID.Add(1)),
		out:      make(chan []byte, max(tr.SendQueue, 1)),
		worlds:   set(hello.Worlds),
		patterns: set(hello.Patterns),
		limiter:  rate.NewLimiter(rate.Limit(tr.TriggersPerSecond), max(tr.TriggerBurst, 1)),
	}
	if tr.TriggersPerSecond <= 0 {
		sess.limiter.SetLimit(rate.Inf)
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		Catalogs:        s.cfg.Digests(),
	}
	if s.cfg.Engine != nil {
		welcome.IndexVersion = s.cfg.Engine.Index().Version
	}
	if s.cfg.Worlds != nil {
		for _, id := range s.cfg.Worlds.IDs() {
			st, _ := s.cfg.Worlds.Store(id)
			c := st.Config()
			welcome.Worlds = append(welcome.Worlds, protocol.WorldRef{WorldID: id, MinY: c.MinY, MaxY: c.MaxY, BoundaryR: c.BoundaryR})
		}
	}
	// Registered before WELCOME so no match after the handshake is missed.
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	if err := writeJSON(conn, welcome); err != nil {
		s.unregister(sess)
		return nil
	}
	s.log.Printf("session %s: %s connected", sess.id, hello.ClientName)
	return sess
}

// handle processes one client message and returns the direct reply.
func (s *Server) handle(sess *session, msg []byte) any {
	base, err := protocol.ValidateInbound(msg)
	if err != nil {
		return protocol.NewError("", protocol.ErrProtoBadRequest, err.Error())
	}
	if base.ProtocolVersion != "" && base.ProtocolVersion != protocol.Version {
		return protocol.NewError("", protocol.ErrProtoVersion, "bad protocol_version")
	}
	switch base.Type {
	case protocol.TypeSetBlock:
		var m protocol.SetBlockMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return protocol.NewError("", protocol.ErrProtoBadRequest, err.Error())
		}
		if !sess.limiter.Allow() {
			return protocol.NewError(m.ReqID, protocol.ErrRateLimit, "trigger budget exceeded")
		}
		return s.setBlock(m)
	case protocol.TypeLoadSection:
		var m protocol.LoadSectionMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return protocol.NewError("", protocol.ErrProtoBadRequest, err.Error())
		}
		return s.loadSection(m)
	}
	return protocol.NewError("", protocol.ErrBadRequest, "unexpected "+base.Type)
}

func (s *Server) store(id string) (*worldstore.Store, bool) {
	if s.cfg.Worlds == nil {
		return nil, false
	}
	return s.cfg.Worlds.Store(id)
}

func (s *Server) setBlock(m protocol.SetBlockMsg) any {
	st, ok := s.store(m.World)
	if !ok {
		return protocol.NewError(m.ReqID, protocol.ErrWorldNotFound, "unknown world "+m.World)
	}
	state, err := protocol.ParseBlockState(st.Registry(), m.Block)
	if err != nil {
		return protocol.NewError(m.ReqID, protocol.ErrUnknownBlock, err.Error())
	}
	pos := voxel.FromArray(m.Pos)
	if _, err := st.SetBlock(pos, state); err != nil {
		switch {
		case errors.Is(err, worldstore.ErrOutOfWorld):
			return protocol.NewError(m.ReqID, protocol.ErrOutOfWorld, err.Error())
		case errors.Is(err, worldstore.ErrStateTableFull):
			return protocol.NewError(m.ReqID, protocol.ErrBadRequest, err.Error())
		}
		return protocol.NewError(m.ReqID, protocol.ErrInternal, err.Error())
	}
	kind := detect.Placed
	switch m.Kind {
	case "broken":
		kind = detect.Broken
	case "updated":
		kind = detect.Updated
	}
	var n int
	if s.cfg.Engine != nil {
		n = len(s.cfg.Engine.Handle(detect.Trigger{Kind: kind, Pos: pos, World: m.World, State: &state}))
	}
	return protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, AckFor: m.ReqID, Matches: n}
}

func (s *Server) loadSection(m protocol.LoadSectionMsg) any {
	st, ok := s.store(m.World)
	if !ok {
		return protocol.NewError(m.ReqID, protocol.ErrWorldNotFound, "unknown world "+m.World)
	}
	if m.PaletteDigest != "" {
		if want := s.cfg.Digests().BlockPalette.Digest; want != "" && want != m.PaletteDigest {
			return protocol.NewError(m.ReqID, protocol.ErrBadRequest, "palette digest mismatch")
		}
	}
	mats, err := encoding.DecodeExact(m.RLE, worldstore.SectionVolume)
	if err != nil {
		return protocol.NewError(m.ReqID, protocol.ErrBadRequest, "rle: "+err.Error())
	}
	sp := voxel.SectionPos{X: m.Section[0], Y: m.Section[1], Z: m.Section[2]}
	if err := st.LoadSection(sp, mats); err != nil {
		if errors.Is(err, worldstore.ErrStateTableFull) {
			return protocol.NewError(m.ReqID, protocol.ErrBadRequest, err.Error())
		}
		return protocol.NewError(m.ReqID, protocol.ErrUnknownBlock, err.Error())
	}
	return protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, AckFor: m.ReqID}
}

func set(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
