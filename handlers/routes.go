package handlers

import (
	"time"

	"quiz-elimination-engine/middleware"

	"github.com/gofiber/fiber/v2"
)

func SetupMatchRoutes(app *fiber.App, h *MatchHandler, requestTimeout time.Duration) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// The deadline only bounds handler work; the SSE stream writer outlives it.
	api := app.Group("/matches/:match",
		middleware.OperatorContextMiddleware(),
		middleware.RequestTimeout(requestTimeout),
	)
	api.Get("/events", h.StreamEvents)
	api.Get("", h.GetMatch)
	api.Post("/question", h.AdvanceQuestion)

	// Participation state
	api.Post("/contestants/batch", h.ApplyBatch)
	api.Post("/contestants/completed-to-eliminated", h.CompletedToEliminated)
	api.Get("/contestants/eliminated", h.ListEliminated)
	api.Post("/contestants/:contestant/transition", h.TransitionContestant)

	// Rescues
	api.Get("/rescues", h.ListRescues)
	api.Post("/rescues/recompute", h.RecomputeRescues)
	api.Get("/rescues/candidates", h.RankCandidates)
	api.Post("/rescues/:rescue/invoke", h.InvokeRescue)
	api.Put("/rescues/:rescue/targets", h.SetRescueTargets)
	api.Post("/rescues/:rescue/support-answers", h.SubmitSupportAnswer)
}
