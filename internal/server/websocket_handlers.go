package server

import (
	"context"
	"log/slog"

	"marketplace/internal/middleware"
	"marketplace/internal/notifications"
	"marketplace/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// NotificationsWebSocket handles GET /ws/notifications?token=...
// The socket is a receive-only session: it gets new notifications and unseen counts.
func (s *Server) NotificationsWebSocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		token := conn.Query("token")
		if token == "" {
			token, _ = conn.Locals("token").(string)
		}

		connID := uuid.NewString()
		client := notifications.NewClient(s.registry, conn, connID)
		userID, err := s.registry.OnSessionStart(connID, token, client)
		if err != nil {
			middleware.Logger.Warn("websocket session rejected",
				slog.String("conn_id", connID), observability.ErrAttr(err))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}

		go client.WritePump()

		ctx := context.WithValue(context.Background(), observability.UserIDKey, userID)
		if err := s.delivery.PushUnseen(ctx, userID); err != nil {
			middleware.Logger.WarnContext(ctx, "failed to push initial unseen count", observability.ErrAttr(err))
		}

		client.ReadPump()
	})
}
