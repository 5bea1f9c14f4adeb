package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"signal-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamTopics are the lifecycle topics fanned out to websocket clients.
var streamTopics = []events.Event{
	events.EventTradeOpened,
	events.EventTradeClosed,
	events.EventTradeMerged,
	events.EventBracketReplaced,
	events.EventAuditReport,
	events.EventReconcileMatched,
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	merged := make(chan envelope, 256)
	done := make(chan struct{})
	defer close(done)
	for _, topic := range streamTopics {
		stream, unsub := s.Bus.Subscribe(topic, 64)
		defer unsub()
		go func(topic events.Event, stream <-chan any) {
			for {
				select {
				case <-done:
					return
				case msg, ok := <-stream:
					if !ok {
						return
					}
					select {
					case merged <- envelope{Topic: string(topic), Payload: msg}:
					case <-done:
						return
					}
				}
			}
		}(topic, stream)
	}

	for ev := range merged {
		if err := conn.WriteJSON(ev); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}

type envelope struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}
