package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"wheeltracker/internal/events"
	"wheeltracker/internal/portfolio"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage wraps every push so the client can route on topic: "summary"
// carries the caller's recomputed dashboard, "quote" a refreshed mark price.
type wsMessage struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

// websocket streams the caller's summary updates and quote refreshes.
// Browsers cannot set an Authorization header on the upgrade request, so the
// token rides in the query string.
func (s *Server) websocket(c *gin.Context) {
	token := c.Query("token")
	userID, err := parseToken(token, s.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":  "INVALID_TOKEN",
			"error": "invalid or expired token",
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Log.Warn().Err(err).Msg("ws upgrade error")
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	summaries, unsubSummaries := s.Bus.Subscribe(events.EventSummaryUpdated, 100)
	defer unsubSummaries()
	quotes, unsubQuotes := s.Bus.Subscribe(events.EventQuoteUpdated, 100)
	defer unsubQuotes()

	for {
		var out wsMessage
		select {
		case msg, ok := <-summaries:
			if !ok {
				return
			}
			update, ok := msg.(portfolio.SummaryUpdate)
			if !ok || update.UserID != userID {
				continue
			}
			out = wsMessage{Topic: "summary", Data: update}

		case msg, ok := <-quotes:
			if !ok {
				return
			}
			// Quotes are shared marks, not per-user state, so every
			// connection gets them.
			out = wsMessage{Topic: "quote", Data: msg}
		}

		if err := conn.WriteJSON(out); err != nil {
			s.Log.Warn().Err(err).Msg("ws write error")
			return
		}
	}
}
