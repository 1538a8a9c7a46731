package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"quiz-elimination-engine/middleware"
	"quiz-elimination-engine/models"
	"quiz-elimination-engine/services"

	"github.com/gofiber/fiber/v2"
)

// MatchHandler exposes the elimination & rescue engine over HTTP.
type MatchHandler struct {
	Participations *services.ParticipationService
	Rescues        *services.RescueService
	Broadcaster    *services.Broadcaster
	KeepAlive      time.Duration
}

func NewMatchHandler(p *services.ParticipationService, r *services.RescueService, b *services.Broadcaster) *MatchHandler {
	return &MatchHandler{Participations: p, Rescues: r, Broadcaster: b, KeepAlive: 15 * time.Second}
}

type statusRequest struct {
	Status models.ParticipationStatus `json:"status"`
}

type batchRequest struct {
	ContestantIDs []uint                     `json:"contestant_ids"`
	Status        models.ParticipationStatus `json:"status"`
}

type questionRequest struct {
	CurrentQuestionOrder *int `json:"current_question_order"`
}

type contestantsRequest struct {
	ContestantIDs []uint `json:"contestant_ids"`
}

type supportAnswerRequest struct {
	ContestantID uint   `json:"contestant_id"`
	Answer       string `json:"answer"`
}

func (h *MatchHandler) matchID(c *fiber.Ctx) (uint, error) {
	m, err := h.Participations.ResolveMatch(c.UserContext(), c.Params("match"))
	if err != nil {
		return 0, err
	}
	return m.ID, nil
}

func (h *MatchHandler) GetMatch(c *fiber.Ctx) error {
	m, err := h.Participations.ResolveMatch(c.UserContext(), c.Params("match"))
	if err != nil {
		return respondError(c, err)
	}
	competing, err := h.Participations.CompetingCount(c.UserContext(), m.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"match":                 m,
		"remaining_contestants": competing,
		"live_viewers":          h.Broadcaster.Subscribers(m.ID),
	})
}

func (h *MatchHandler) TransitionContestant(c *fiber.Ctx) error {
	matchID, err := h.matchID(c)
	if err != nil {
		return respondError(c, err)
	}
	contestantID, err := positiveParam(c, "contestant")
	if err != nil {
		return respondError(c, err)
	}
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	rec, err := h.Participations.TransitionContestant(c.UserContext(), matchID, contestantID, req.Status)
	if err != nil {
		log.Printf("[Engine] transition by %s failed: %v", middleware.Operator(c), err)
		return respondError(c, err)
	}
	return c.JSON(rec)
}

func (h *MatchHandler) ApplyBatch(c *fiber.Ctx) error {
	matchID, err := h.matchID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	summary, err := h.Participations.ApplyBatch(c.UserContext(), matchID, req.ContestantIDs, req.Status)
	if err != nil {
		return respondError(c, err)
	}
	return respondBatch(c, summary)
}

func (h *MatchHandler) CompletedToEliminated(c *fiber.Ctx) error {
	matchID, err := h.matchID(c)
	if err != nil {
		return respondError(c, err)
	}
	summary, err := h.Participations.UpdateAllCompletedToEliminated(c.UserContext(), matchID)
	if err != nil {
		return respondError(c, err)
	}
	return respondBatch(c, summary)
}

func (h *MatchHandler) ListEliminated(c *fiber.Ctx) error {
	matchID, err := h.matchID(c)
	if err != nil {
		return respondError(c, err)
	}

	var f services.EliminatedFilter
	if f.GroupID, err = optionalUint(c, "group_id"); err != nil {
		return respondError(c, err)
	}
	if f.FromOrder, err = optionalInt(c, "from_order"); err != nil {
		return respondError(c, err)
	}
	if f.ToOrder, err = optionalInt(c, "to_order"); err != nil {
		return respondError(c, err)
	}
	f.Page = c.QueryInt("page", 1)
	f.PageSize = c.QueryInt("page_size", 0)

	page, err := h.Participations.ListEliminated(c.UserContext(), matchID, f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

func (h *MatchHandler) AdvanceQuestion(c *fiber.Ctx) error {
	matchID, err := h.matchID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req questionRequest
	if err := c.BodyParser(&req); err != nil || req.CurrentQuestionOrder == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "current_question_order is required"})
	}

	match, rescues, err := h.Rescues.AdvanceQuestion(c.UserContext(), matchID, *req.CurrentQuestionOrder)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"match": match, "rescues": rescues})
}

func (h *MatchHandler) RecomputeRescues(c *fiber.Ctx) error {
	matchID, err := h.matchID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req questionRequest
	if err := c.BodyParser(&req); err != nil || req.CurrentQuestionOrder == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "current_question_order is required"})
	}

	rescues, err := h.Rescues.RecomputeRescueWindows(c.UserContext(), matchID, *req.CurrentQuestionOrder)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"rescues": rescues})
}

func (h *MatchHandler) ListRescues(c *fiber.Ctx) error {
	matchID, err := h.matchID(c)
	if err != nil {
		return respondError(c, err)
	}
	rescues, err := h.Rescues.ListRescues(c.UserContext(), matchID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"rescues": rescues})
}

func (h *MatchHandler) RankCandidates(c *fiber.Ctx) error {
	matchID, err := h.matchID(c)
	if err != nil {
		return respondError(c, err)
	}
	limit, err := optionalInt(c, "limit")
	if err != nil {
		return respondError(c, err)
	}

	result, err := h.Rescues.RankRescueCandidates(c.UserContext(), matchID, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

func (h *MatchHandler) InvokeRescue(c *fiber.Ctx) error {
	matchID, err := h.matchID(c)
	if err != nil {
		return respondError(c, err)
	}
	rescueID, err := positiveParam(c, "rescue")
	if err != nil {
		return respondError(c, err)
	}
	var req contestantsRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
		}
	}

	inv, err := h.Rescues.InvokeRescue(c.UserContext(), matchID, rescueID, req.ContestantIDs)
	if err != nil {
		log.Printf("[Engine] rescue %d invoked by %s failed: %v", rescueID, middleware.Operator(c), err)
		return respondError(c, err)
	}
	return c.JSON(inv)
}

func (h *MatchHandler) SetRescueTargets(c *fiber.Ctx) error {
	matchID, err := h.matchID(c)
	if err != nil {
		return respondError(c, err)
	}
	rescueID, err := positiveParam(c, "rescue")
	if err != nil {
		return respondError(c, err)
	}
	var req contestantsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	def, err := h.Rescues.SetRescueTargets(c.UserContext(), matchID, rescueID, req.ContestantIDs)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(def)
}

func (h *MatchHandler) SubmitSupportAnswer(c *fiber.Ctx) error {
	matchID, err := h.matchID(c)
	if err != nil {
		return respondError(c, err)
	}
	rescueID, err := positiveParam(c, "rescue")
	if err != nil {
		return respondError(c, err)
	}
	var req supportAnswerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	def, err := h.Rescues.SubmitSupportAnswer(c.UserContext(), matchID, rescueID, req.ContestantID, req.Answer)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(def)
}

// StreamEvents pushes committed engine events of one match to live viewers over SSE.
func (h *MatchHandler) StreamEvents(c *fiber.Ctx) error {
	matchID, err := h.matchID(c)
	if err != nil {
		return respondError(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	events, unsubscribe := h.Broadcaster.Subscribe(matchID)
	keepAlive := h.KeepAlive

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				payload, err := json.Marshal(ev)
				if err != nil {
					log.Printf("SSE marshal error for match %d: %v", matchID, err)
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			case <-ticker.C:
				w.WriteString(":\n\n")
			}

			if err := w.Flush(); err != nil {
				// client disconnected
				return
			}
		}
	})
	return nil
}

func positiveParam(c *fiber.Ctx, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || v == 0 {
		return 0, &services.EngineError{Kind: services.KindValidation, Message: fmt.Sprintf("%s must be a positive integer", name)}
	}
	return uint(v), nil
}

func optionalInt(c *fiber.Ctx, name string) (*int, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &services.EngineError{Kind: services.KindValidation, Message: fmt.Sprintf("%s must be an integer", name)}
	}
	return &v, nil
}

func optionalUint(c *fiber.Ctx, name string) (*uint, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		return nil, &services.EngineError{Kind: services.KindValidation, Message: fmt.Sprintf("%s must be a positive integer", name)}
	}
	u := uint(v)
	return &u, nil
}
