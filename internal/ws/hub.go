package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	diag "github.com/coreman2200/funtimes-hexbreath/internal/diagnostics"
	"github.com/coreman2200/funtimes-hexbreath/internal/whm"
)

const (
	writeWait = 200 * time.Millisecond
	sendQueue = 8 // frames buffered per subscriber before dropping
)

// Control commands accepted on /ws/control.
const (
	CmdStart = "start"
	CmdStop  = "stop"
	CmdAbort = "abort"
)

type Command struct {
	Cmd string `json:"cmd"`
}

type reply struct {
	OK    bool   `json:"ok"`
	Cmd   string `json:"cmd,omitempty"`
	Error string `json:"error,omitempty"`
}

// subscriber is one streaming client. Its writer goroutine owns the
// connection's write side.
type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub streams snapshots and diagnostics to browser clients and queues
// control commands for the tick loop. Commands are never applied here.
// Publishing never blocks: a subscriber that falls behind loses frames.
type Hub struct {
	mu          sync.Mutex
	clients     map[*subscriber]bool
	diagClients map[*subscriber]bool
	dropped     uint64

	commands  chan Command
	log       zerolog.Logger
	upgrader  websocket.Upgrader
	frameID   uint64
	phase     whm.Phase
	startTime time.Time
}

func NewHub(log zerolog.Logger, queue int) *Hub {
	if queue < 1 {
		queue = 8
	}
	return &Hub{
		clients:     map[*subscriber]bool{},
		diagClients: map[*subscriber]bool{},
		commands:    make(chan Command, queue),
		log:         log,
		upgrader:    websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		startTime:   time.Now(),
	}
}

// Commands is drained by the loop goroutine.
func (h *Hub) Commands() <-chan Command { return h.commands }

func (h *Hub) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/frames", h.HandleFramesWS)
	mux.HandleFunc("/ws/diag", h.HandleDiagWS)
	mux.HandleFunc("/ws/control", h.HandleControlWS)
	mux.HandleFunc("/healthz", h.HandleHealth)
	return mux
}

func (h *Hub) HandleFramesWS(w http.ResponseWriter, r *http.Request) {
	h.subscribe(w, r, h.clients)
}

func (h *Hub) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	h.subscribe(w, r, h.diagClients)
}

func (h *Hub) subscribe(w http.ResponseWriter, r *http.Request, set map[*subscriber]bool) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sub := &subscriber{conn: conn, send: make(chan []byte, sendQueue)}
	h.mu.Lock()
	set[sub] = true
	h.mu.Unlock()

	go sub.writeLoop(h.log)
	go func() {
		defer func() {
			h.mu.Lock()
			delete(set, sub)
			close(sub.send)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *subscriber) writeLoop(log zerolog.Logger) {
	for b := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Debug().Err(err).Msg("write to subscriber")
			s.conn.Close()
			return
		}
	}
}

// offer queues b for every subscriber in set without waiting. Callers hold
// h.mu.
func (h *Hub) offer(set map[*subscriber]bool, b []byte) {
	for s := range set {
		select {
		case s.send <- b:
		default:
			h.dropped++
		}
	}
}

func (h *Hub) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		rep := h.enqueue(data)
		b, _ := json.Marshal(rep)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

func (h *Hub) enqueue(data []byte) reply {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return reply{Error: fmt.Sprintf("bad message: %v", err)}
	}
	switch cmd.Cmd {
	case CmdStart, CmdStop, CmdAbort:
	default:
		h.PushDiag(diag.Diagnostic{
			Severity: diag.Warn, Code: "CONTROL.UNKNOWN", Summary: "Unknown control command",
			Evidence: map[string]any{"cmd": cmd.Cmd},
		})
		return reply{Cmd: cmd.Cmd, Error: "unknown command"}
	}
	select {
	case h.commands <- cmd:
		h.log.Debug().Str("cmd", cmd.Cmd).Msg("control queued")
		return reply{OK: true, Cmd: cmd.Cmd}
	default:
		return reply{Cmd: cmd.Cmd, Error: "busy"}
	}
}

func (h *Hub) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	resp := map[string]any{
		"frame_id": h.frameID,
		"uptime_s": time.Since(h.startTime).Seconds(),
		"clients":  len(h.clients),
		"dropped":  h.dropped,
		"phase":    h.phase.String(),
	}
	h.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Clients counts snapshot subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends one tick's snapshot to every frame subscriber.
func (h *Hub) Broadcast(s whm.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frameID++
	h.phase = s.Phase
	if len(h.clients) == 0 {
		return
	}
	type frame struct {
		T       int64        `json:"t"`
		FrameID uint64       `json:"frame_id"`
		State   whm.Snapshot `json:"state"`
	}
	b, err := json.Marshal(frame{T: time.Now().UnixNano(), FrameID: h.frameID, State: s})
	if err != nil {
		h.log.Error().Err(err).Msg("marshal snapshot")
		return
	}
	h.offer(h.clients, b)
}

// PushDiag fans d out to diagnostic subscribers. It has the diagnostics.Sink
// signature.
func (h *Hub) PushDiag(d diag.Diagnostic) {
	b, _ := json.Marshal(d)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.offer(h.diagClients, b)
}

// Dropped counts messages discarded because a subscriber was behind.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
