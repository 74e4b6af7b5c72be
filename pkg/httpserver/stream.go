package httpserver

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mselser95/crossvenue-arb/internal/storage"
	"github.com/mselser95/crossvenue-arb/pkg/eventbus"
)

const (
	streamHistoryLimit = 10
	streamWriteTimeout = 10 * time.Second
	streamBuffer       = 64
)

// streamFrame is the wire shape of one push-feed message. Error frames
// carry the message top-level; data frames carry the event payload.
type streamFrame struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// streamHandler upgrades /api/stream connections and forwards bus events.
type streamHandler struct {
	bus      *eventbus.Bus
	storage  storage.Storage
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func newStreamHandler(bus *eventbus.Bus, store storage.Storage, logger *zap.Logger) *streamHandler {
	return &streamHandler{
		bus:     bus,
		storage: store,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// handle serves one push-feed connection: a connected frame, the recent
// opportunity history newest first, then live events until either side
// closes. Client input is not part of the protocol; anything received gets
// an error frame back.
func (s *streamHandler) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("stream-upgrade-failed", zap.Error(err))
		return
	}
	defer conn.Close()

	StreamClientsConnected.Inc()
	defer StreamClientsConnected.Dec()

	err = s.writeFrame(conn, streamFrame{Type: "connected"})
	if err != nil {
		return
	}

	history, err := s.storage.GetOpportunities(r.Context(), streamHistoryLimit)
	if err != nil {
		s.logger.Warn("stream-history-load-failed", zap.Error(err))
	}
	for _, opp := range history {
		err = s.writeFrame(conn, streamFrame{Type: eventbus.TypeOpportunity, Data: opp})
		if err != nil {
			return
		}
	}

	events, cancel := s.bus.Subscribe(streamBuffer)
	defer cancel()

	clientInput := make(chan struct{}, 1)
	clientGone := make(chan struct{})
	go s.readLoop(conn, clientInput, clientGone)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-clientGone:
			return
		case <-clientInput:
			err = s.writeFrame(conn, streamFrame{
				Type:  "error",
				Error: "stream is read-only",
			})
			if err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			err = s.writeFrame(conn, streamFrame{Type: ev.Type, Data: ev.Data})
			if err != nil {
				return
			}
			StreamFramesSentTotal.WithLabelValues(ev.Type).Inc()
		}
	}
}

// readLoop drains the client side so control frames are processed and
// reports any data frames the client sends.
func (s *streamHandler) readLoop(conn *websocket.Conn, input chan<- struct{}, gone chan<- struct{}) {
	defer close(gone)

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case input <- struct{}{}:
		default:
		}
	}
}

func (s *streamHandler) writeFrame(conn *websocket.Conn, frame streamFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error("stream-frame-marshal-failed", zap.Error(err))
		return err
	}

	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}
