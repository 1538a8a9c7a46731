package handlers

import (
	"log"

	"quiz-elimination-engine/services"

	"github.com/gofiber/fiber/v2"
)

var statusByKind = map[services.ErrorKind]int{
	services.KindNotFound:            fiber.StatusNotFound,
	services.KindInvalidTransition:   fiber.StatusConflict,
	services.KindValidation:          fiber.StatusBadRequest,
	services.KindConcurrencyConflict: fiber.StatusConflict,
	services.KindInternal:            fiber.StatusInternalServerError,
}

func respondError(c *fiber.Ctx, err error) error {
	kind := services.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = fiber.StatusInternalServerError
	}
	if status == fiber.StatusInternalServerError {
		log.Printf("ERROR %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(status).JSON(fiber.Map{"error": "internal error", "kind": kind})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error(), "kind": kind})
}

// respondBatch renders the three batch outcomes distinctly: 200 fully succeeded,
// 207 partially succeeded, 422 nothing succeeded.
func respondBatch(c *fiber.Ctx, summary *services.BatchSummary) error {
	switch summary.Outcome {
	case services.OutcomePartial:
		return c.Status(fiber.StatusMultiStatus).JSON(summary)
	case services.OutcomeFailed:
		return c.Status(fiber.StatusUnprocessableEntity).JSON(summary)
	}
	return c.JSON(summary)
}
