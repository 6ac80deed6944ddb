package server

import (
	"marketplace/internal/middleware"
	"marketplace/internal/models"
	"marketplace/internal/service"

	"github.com/gofiber/fiber/v2"
)

type subscriptionRequest struct {
	Type              string             `json:"type"`
	Query             models.SearchQuery `json:"query"`
	Merchand          string             `json:"merchand"`
	WithNotifications *bool              `json:"withNotifications"`
}

func (req subscriptionRequest) input(userID uint, requireType bool) (service.SubscriptionInput, error) {
	in := service.SubscriptionInput{
		UserID:            userID,
		Query:             req.Query,
		Merchand:          req.Merchand,
		WithNotifications: req.WithNotifications,
	}
	if req.Type == "" && !requireType {
		return in, nil
	}
	p, err := models.ParsePostType(req.Type)
	if err != nil {
		return in, err
	}
	in.Type = p
	return in, nil
}

// ListSubscriptions handles GET /api/subscriptions
func (s *Server) ListSubscriptions(c *fiber.Ctx) error {
	subs, err := s.subscriptions.List(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respond(c, err)
	}
	if subs == nil {
		subs = []models.SearchSubscription{}
	}
	return c.JSON(subs)
}

// CreateSubscription handles POST /api/subscriptions
func (s *Server) CreateSubscription(c *fiber.Ctx) error {
	var req subscriptionRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	in, err := req.input(middleware.UserID(c), true)
	if err != nil {
		return respond(c, err)
	}
	sub, err := s.subscriptions.Create(c.UserContext(), in)
	if err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

// UpdateSubscription handles PUT /api/subscriptions/:id
func (s *Server) UpdateSubscription(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req subscriptionRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	in, err := req.input(middleware.UserID(c), false)
	if err != nil {
		return respond(c, err)
	}
	sub, err := s.subscriptions.Update(c.UserContext(), id, in)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(sub)
}

// DeleteSubscription handles DELETE /api/subscriptions/:id
func (s *Server) DeleteSubscription(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.subscriptions.Delete(c.UserContext(), middleware.UserID(c), id); err != nil {
		return respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListNotifications handles GET /api/notifications?page=&limit=
func (s *Server) ListNotifications(c *fiber.Ctx) error {
	out, err := s.notifications.List(c.UserContext(), middleware.UserID(c), c.QueryInt("page", 1), c.QueryInt("limit", 0))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(out)
}

// UnseenCount handles GET /api/notifications/unseen
func (s *Server) UnseenCount(c *fiber.Ctx) error {
	n, err := s.notifications.Unseen(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"unseen": n})
}

// MarkNotificationSeen handles POST /api/notifications/:id/seen
func (s *Server) MarkNotificationSeen(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.notifications.MarkSeen(c.UserContext(), middleware.UserID(c), id); err != nil {
		return respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MarkAllNotificationsSeen handles POST /api/notifications/seen
func (s *Server) MarkAllNotificationsSeen(c *fiber.Ctx) error {
	n, err := s.notifications.MarkAllSeen(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"updated": n})
}

type deviceRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// RegisterDevice handles POST /api/push-subscriptions with a browser PushSubscription body.
func (s *Server) RegisterDevice(c *fiber.Ctx) error {
	var req deviceRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	sub, err := s.notifications.RegisterDevice(c.UserContext(), service.DeviceInput{
		UserID:   middleware.UserID(c),
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	})
	if err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

// UnregisterDevice handles DELETE /api/push-subscriptions
func (s *Server) UnregisterDevice(c *fiber.Ctx) error {
	var req deviceRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	if err := s.notifications.UnregisterDevice(c.UserContext(), middleware.UserID(c), req.Endpoint); err != nil {
		return respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
