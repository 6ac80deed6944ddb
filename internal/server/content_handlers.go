package server

import (
	"log/slog"

	"marketplace/internal/middleware"
	"marketplace/internal/models"
	"marketplace/internal/observability"
	"marketplace/internal/service"

	"github.com/gofiber/fiber/v2"
)

// SearchByKeyword handles GET /api/search?keyword=...&page=&limit=
func (s *Server) SearchByKeyword(c *fiber.Ctx) error {
	out, err := s.search.SearchByKeyword(c.UserContext(), c.Query("keyword"), c.QueryInt("page", 1), c.QueryInt("limit", 0))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(out)
}

// SearchRanked handles GET /api/search/ranked?keyword=&type=&sortBy=&page=&limit=
func (s *Server) SearchRanked(c *fiber.Ctx) error {
	in := service.SearchInput{
		Keyword:  c.Query("keyword"),
		SortBy:   c.Query("sortBy"),
		Page:     c.QueryInt("page", 1),
		Limit:    c.QueryInt("limit", 0),
		ViewerID: middleware.UserID(c),
	}
	if raw := c.Query("type"); raw != "" {
		p, err := models.ParsePostType(raw)
		if err != nil {
			return respond(c, err)
		}
		in.PostType = p
	}

	out, err := s.search.SearchByKeywordAndType(c.UserContext(), in)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(out)
}

// GetContent handles GET /api/content/:type/:id and counts the view.
func (s *Server) GetContent(c *fiber.Ctx) error {
	p, id, err := parseTarget(c)
	if err != nil {
		return nil
	}
	ctx := c.UserContext()

	item, err := s.content.Get(ctx, p, id)
	if err != nil {
		return respond(c, err)
	}
	if err := s.content.RecordView(ctx, p, id, visitorKey(c)); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to record view",
			slog.Uint64("post_id", uint64(id)), slog.String("post_type", string(p)), observability.ErrAttr(err))
	}
	return c.JSON(item)
}

// PublishContent handles POST /api/content/:type
func (s *Server) PublishContent(c *fiber.Ctx) error {
	p, err := parseContentType(c)
	if err != nil {
		return nil
	}
	item, err := models.NewContent(p)
	if err != nil {
		return respond(c, err)
	}
	if err := parseBody(c, item); err != nil {
		return nil
	}
	item.Item().PostType = p

	out, err := s.content.Publish(c.UserContext(), service.PublishInput{UserID: middleware.UserID(c), Content: item})
	if err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// UpdateContentStatus handles PATCH /api/content/:type/:id/status
func (s *Server) UpdateContentStatus(c *fiber.Ctx) error {
	p, id, err := parseTarget(c)
	if err != nil {
		return nil
	}
	var req struct {
		Status models.Status `json:"status"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	out, err := s.content.UpdateStatus(c.UserContext(), service.UpdateStatusInput{
		UserID:   middleware.UserID(c),
		PostType: p,
		PostID:   id,
		Status:   req.Status,
	})
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(out)
}

// ReportContent handles POST /api/content/:type/:id/report
func (s *Server) ReportContent(c *fiber.Ctx) error {
	p, id, err := parseTarget(c)
	if err != nil {
		return nil
	}
	if err := s.content.Report(c.UserContext(), p, id); err != nil {
		return respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// PublishCatalogue handles POST /api/catalogues
func (s *Server) PublishCatalogue(c *fiber.Ctx) error {
	var req struct {
		Merchand string `json:"merchand"`
		Label    string `json:"label"`
		Category string `json:"category"`
		ImageURL string `json:"image_url"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	cat, err := s.alerts.PublishCatalogue(c.UserContext(), service.CatalogueInput{
		Merchand: req.Merchand,
		Label:    req.Label,
		Category: req.Category,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"catalogue": cat, "url": cat.URL()})
}
