package http

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quizhub-service/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// serveStatsWS streams live quiz stats to a subscriber. The client picks the
// quiz with ?quizId=...; every finalized attempt pushes a fresh aggregate.
func (h *Handler) serveStatsWS(w http.ResponseWriter, r *http.Request) {
	quizID, err := parseQuery(r, "quizId")
	if err != nil {
		badRequest(w, "missing or invalid quizId")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	snapshot, err := h.stats.QuizStats(r.Context(), quizID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorBody]{Type: "error", Payload: errorBody{Error: err.Error()}})
		return
	}

	updates, cancel := h.stats.Subscribe(quizID)
	defer cancel()

	send := make(chan outboundMessage[domain.QuizStats], 16)
	readerDone := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write failed", zap.Error(err))
				return
			}
		}
	}()

	// Reads are discarded; the loop only notices the peer going away.
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send <- outboundMessage[domain.QuizStats]{Type: "stats", Payload: snapshot}

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				close(send)
				<-writerDone
				return
			}
			select {
			case send <- outboundMessage[domain.QuizStats]{Type: "stats", Payload: update}:
			default:
				// Slow consumer; skip this update rather than block the feed.
			}
		case <-readerDone:
			close(send)
			<-writerDone
			return
		case <-writerDone:
			return
		}
	}
}
