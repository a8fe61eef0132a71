package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/pulsar-labs/pulse/internal/domain"
	"github.com/pulsar-labs/pulse/internal/resource"
	"github.com/pulsar-labs/pulse/internal/resource/filter"
)

// ResourceHandler exposes one engine kind over HTTP. The same handler
// serves every registered kind; only the adapter behind the engine
// differs.
type ResourceHandler[S any, I any, U any, O any] struct {
	engine *resource.Engine[S, I, U, O]
}

func NewResourceHandler[S any, I any, U any, O any](engine *resource.Engine[S, I, U, O]) *ResourceHandler[S, I, U, O] {
	return &ResourceHandler[S, I, U, O]{engine: engine}
}

// Register mounts the CRUD and filter routes on a kind group. The
// filter routes go first so they never collide with the :id matcher.
func (h *ResourceHandler[S, I, U, O]) Register(r fiber.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/filter", h.Filter)
	r.Post("/filter/paginated", h.FilterPaginated)
	r.Get("/:id", h.Get)
	r.Patch("/:id", h.Update)
	r.Delete("/:id", h.Delete)
}

func parseID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return 0, domain.ErrBadRequest.WithError(err)
	}
	return id, nil
}

func (h *ResourceHandler[S, I, U, O]) List(c *fiber.Ctx) error {
	skip := c.QueryInt("skip", 0)
	limit := c.QueryInt("limit", filter.DefaultLimit)

	items, err := h.engine.GetAll(c.Context(), skip, limit)
	if err != nil {
		return err
	}
	return c.JSON(h.project(items))
}

func (h *ResourceHandler[S, I, U, O]) Get(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	s, err := h.engine.GetByID(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(h.engine.Project(s))
}

func (h *ResourceHandler[S, I, U, O]) Create(c *fiber.Ctx) error {
	var in I
	if err := c.BodyParser(&in); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	s, err := h.engine.Create(c.Context(), &in, true)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(h.engine.Project(s))
}

func (h *ResourceHandler[S, I, U, O]) Update(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var up U
	if err := c.BodyParser(&up); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	s, err := h.engine.Update(c.Context(), id, &up, true)
	if err != nil {
		return err
	}
	return c.JSON(h.engine.Project(s))
}

func (h *ResourceHandler[S, I, U, O]) Delete(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	deleted, err := h.engine.Delete(c.Context(), id, true)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ResourceHandler[S, I, U, O]) Filter(c *fiber.Ctx) error {
	var q filter.Query
	if err := c.BodyParser(&q); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	items, err := h.engine.Filter(c.Context(), &q)
	if err != nil {
		return err
	}
	return c.JSON(h.project(items))
}

func (h *ResourceHandler[S, I, U, O]) FilterPaginated(c *fiber.Ctx) error {
	var q filter.Query
	if err := c.BodyParser(&q); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	page, err := h.engine.FilterPaginated(c.Context(), &q)
	if err != nil {
		return err
	}
	if page.Data == nil {
		page.Data = []*O{}
	}
	return c.JSON(page)
}

func (h *ResourceHandler[S, I, U, O]) project(items []*S) []*O {
	out := make([]*O, len(items))
	for i, s := range items {
		out[i] = h.engine.Project(s)
	}
	return out
}
