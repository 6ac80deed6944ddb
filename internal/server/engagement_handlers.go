package server

import (
	"strings"

	"marketplace/internal/middleware"
	"marketplace/internal/models"
	"marketplace/internal/service"

	"github.com/gofiber/fiber/v2"
)

type reactionRequest struct {
	Type string `json:"type"`
}

func (req reactionRequest) likeType() (models.LikeType, error) {
	switch models.LikeType(strings.ToUpper(strings.TrimSpace(req.Type))) {
	case models.LikeTypeLike:
		return models.LikeTypeLike, nil
	case models.LikeTypeDislike:
		return models.LikeTypeDislike, nil
	}
	return "", models.NewValidationError("Reaction type must be LIKE or DISLIKE")
}

func (s *Server) react(c *fiber.Ctx, p models.PostType, id uint) error {
	var req reactionRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	t, err := req.likeType()
	if err != nil {
		return respond(c, err)
	}

	res, err := s.engagement.React(c.UserContext(), service.ReactInput{
		ActorID:  middleware.UserID(c),
		PostID:   id,
		PostType: p,
		Type:     t,
	})
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(res)
}

// ReactToContent handles POST /api/content/:type/:id/reactions
func (s *Server) ReactToContent(c *fiber.Ctx) error {
	p, id, err := parseTarget(c)
	if err != nil {
		return nil
	}
	return s.react(c, p, id)
}

// ReactToComment handles POST /api/comments/:id/reactions
func (s *Server) ReactToComment(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	return s.react(c, models.PostTypeComment, id)
}

// GetComments handles GET /api/content/:type/:id/comments
func (s *Server) GetComments(c *fiber.Ctx) error {
	p, id, err := parseTarget(c)
	if err != nil {
		return nil
	}
	out, err := s.engagement.Comments(c.UserContext(), p, id, c.QueryInt("page", 1), c.QueryInt("limit", 0))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(out)
}

// AddComment handles POST /api/content/:type/:id/comments
func (s *Server) AddComment(c *fiber.Ctx) error {
	p, id, err := parseTarget(c)
	if err != nil {
		return nil
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	comment, err := s.engagement.AddComment(c.UserContext(), service.CommentInput{
		ActorID:  middleware.UserID(c),
		PostID:   id,
		PostType: p,
		Text:     req.Text,
	})
	if err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// RemoveComment handles DELETE /api/comments/:id
func (s *Server) RemoveComment(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.engagement.RemoveComment(c.UserContext(), middleware.UserID(c), id); err != nil {
		return respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AddFavorite handles POST /api/content/:type/:id/favorite
func (s *Server) AddFavorite(c *fiber.Ctx) error {
	p, id, err := parseTarget(c)
	if err != nil {
		return nil
	}
	in := service.FavoriteInput{ActorID: middleware.UserID(c), PostID: id, PostType: p}
	if err := s.engagement.AddFavorite(c.UserContext(), in); err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"post_id": id, "post_type": p, "favorited": true})
}

// RemoveFavorite handles DELETE /api/content/:type/:id/favorite
func (s *Server) RemoveFavorite(c *fiber.Ctx) error {
	p, id, err := parseTarget(c)
	if err != nil {
		return nil
	}
	in := service.FavoriteInput{ActorID: middleware.UserID(c), PostID: id, PostType: p}
	if err := s.engagement.RemoveFavorite(c.UserContext(), in); err != nil {
		return respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
