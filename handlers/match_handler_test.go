package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"quiz-elimination-engine/models"
	"quiz-elimination-engine/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testServer struct {
	app *fiber.App
	db  *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "api.db")), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	broadcaster := services.NewBroadcaster()
	scope := services.NewMatchScope(db, services.NewLocalMatchLocker(), time.Second)
	participations := services.NewParticipationService(scope, broadcaster, 100)
	rescues := services.NewRescueService(scope, nil, broadcaster, participations)

	app := fiber.New()
	SetupMatchRoutes(app, NewMatchHandler(participations, rescues, broadcaster), 5*time.Second)
	return &testServer{app: app, db: db}
}

// seed creates "Quarter Final" at question 6: contestant 1 in progress, 2 and 3
// eliminated, 4 not started, plus an open resurrection rescue.
func (s *testServer) seed(t *testing.T) (models.Match, models.RescueDefinition) {
	t.Helper()
	m := models.Match{Name: "Quarter Final", Slug: "quarter-final", Status: models.MatchStatusInProgress, CurrentQuestionOrder: 6, TotalQuestions: 10}
	require.NoError(t, s.db.Create(&m).Error)

	three, four := 3, 4
	for _, p := range []models.Participation{
		{MatchID: m.ID, ContestantID: 1, RegistrationNumber: 1, Status: models.StatusInProgress},
		{MatchID: m.ID, ContestantID: 2, RegistrationNumber: 2, Status: models.StatusEliminated, EliminatedAtQuestionOrder: &four},
		{MatchID: m.ID, ContestantID: 3, RegistrationNumber: 3, Status: models.StatusEliminated, EliminatedAtQuestionOrder: &three},
		{MatchID: m.ID, ContestantID: 4, RegistrationNumber: 4, Status: models.StatusNotStarted},
	} {
		require.NoError(t, s.db.Create(&p).Error)
	}
	require.NoError(t, s.db.Create(&models.Result{MatchID: m.ID, ContestantID: 3, QuestionOrder: 1, IsCorrect: true}).Error)

	r := models.RescueDefinition{
		MatchID: m.ID, RescueType: models.RescueTypeResurrected,
		QuestionFrom: 5, QuestionTo: 8, RemainingContestantsThreshold: 2,
		WindowState: models.WindowPending, Status: models.RescueStatusNotUsed, Version: 1,
	}
	require.NoError(t, s.db.Create(&r).Error)
	return m, r
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "judge-7")

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestGetMatch_BySlugAndID(t *testing.T) {
	s := newTestServer(t)
	m, _ := s.seed(t)

	code, body := s.do(t, http.MethodGet, "/matches/quarter-final", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["remaining_contestants"])
	match := body["match"].(map[string]interface{})
	assert.EqualValues(t, m.ID, match["id"])

	code, _ = s.do(t, http.MethodGet, "/matches/1", nil)
	assert.Equal(t, http.StatusOK, code)

	code, body = s.do(t, http.MethodGet, "/matches/semi-final", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", body["kind"])
}

func TestApplyBatch_StatusCodes(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)

	code, body := s.do(t, http.MethodPost, "/matches/quarter-final/contestants/batch",
		fiber.Map{"contestant_ids": []uint{1, 404}, "status": "eliminated"})
	assert.Equal(t, http.StatusMultiStatus, code)
	assert.Equal(t, "partial", body["outcome"])
	assert.EqualValues(t, 1, body["updated_count"])
	assert.Equal(t, []interface{}{float64(404)}, body["not_found_ids"])

	code, body = s.do(t, http.MethodPost, "/matches/quarter-final/contestants/batch",
		fiber.Map{"contestant_ids": []uint{4}, "status": "rescued"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "failed", body["outcome"])

	code, body = s.do(t, http.MethodPost, "/matches/quarter-final/contestants/batch",
		fiber.Map{"contestant_ids": []uint{1}, "status": "eliminated"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "succeeded", body["outcome"])
	assert.EqualValues(t, 0, body["updated_count"])

	code, body = s.do(t, http.MethodPost, "/matches/quarter-final/contestants/batch",
		fiber.Map{"contestant_ids": []uint{}, "status": "eliminated"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", body["kind"])

	code, _ = s.do(t, http.MethodPost, "/matches/99/contestants/batch",
		fiber.Map{"contestant_ids": []uint{1}, "status": "eliminated"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTransitionContestant_InvalidIsConflict(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)

	code, body := s.do(t, http.MethodPost, "/matches/quarter-final/contestants/4/transition", fiber.Map{"status": "completed"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "invalid_transition", body["kind"])

	code, body = s.do(t, http.MethodPost, "/matches/quarter-final/contestants/4/transition", fiber.Map{"status": "in_progress"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "in_progress", body["status"])

	code, _ = s.do(t, http.MethodPost, "/matches/quarter-final/contestants/abc/transition", fiber.Map{"status": "in_progress"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRescueFlow(t *testing.T) {
	s := newTestServer(t)
	_, r := s.seed(t)
	base := "/matches/quarter-final/rescues"

	code, body := s.do(t, http.MethodPost, base+"/recompute", fiber.Map{"current_question_order": 6})
	require.Equal(t, http.StatusOK, code)
	rescues := body["rescues"].([]interface{})
	require.Len(t, rescues, 1)
	first := rescues[0].(map[string]interface{})
	assert.Equal(t, "open", first["window_state"])
	assert.Equal(t, true, first["is_triggerable"])

	code, _ = s.do(t, http.MethodPost, base+"/recompute", fiber.Map{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(t, http.MethodGet, base+"/candidates?limit=1", nil)
	require.Equal(t, http.StatusOK, code)
	candidates := body["candidates"].([]interface{})
	require.Len(t, candidates, 1)
	assert.EqualValues(t, 3, candidates[0].(map[string]interface{})["contestant_id"])
	assert.EqualValues(t, 2, body["meta"].(map[string]interface{})["total_eligible"])

	code, _ = s.do(t, http.MethodGet, base+"/candidates?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	invoke := base + "/" + itoa(r.ID) + "/invoke"
	code, body = s.do(t, http.MethodPost, invoke, fiber.Map{"contestant_ids": []uint{3}})
	require.Equal(t, http.StatusOK, code)
	rescue := body["rescue"].(map[string]interface{})
	assert.Equal(t, "used", rescue["status"])
	assert.Equal(t, []interface{}{float64(3)}, rescue["student_ids"])

	code, body = s.do(t, http.MethodPost, invoke, fiber.Map{"contestant_ids": []uint{2}})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "concurrency_conflict", body["kind"])

	code, body = s.do(t, http.MethodGet, "/matches/quarter-final/contestants/eliminated", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["total"])
}

func TestCompletedToEliminatedRoute(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)

	code, _ := s.do(t, http.MethodPost, "/matches/quarter-final/contestants/batch",
		fiber.Map{"contestant_ids": []uint{1}, "status": "completed"})
	require.Equal(t, http.StatusOK, code)

	code, body := s.do(t, http.MethodPost, "/matches/quarter-final/contestants/completed-to-eliminated", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []interface{}{float64(1)}, body["updated_ids"])
}

func TestAdvanceQuestionRoute(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)

	code, body := s.do(t, http.MethodPost, "/matches/quarter-final/question", fiber.Map{"current_question_order": 9})
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 9, body["match"].(map[string]interface{})["current_question_order"])
	rescue := body["rescues"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "passed", rescue["status"])

	code, _ = s.do(t, http.MethodPost, "/matches/quarter-final/question", fiber.Map{"current_question_order": 3})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRequestIDEchoed(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)

	req := httptest.NewRequest(http.MethodGet, "/matches/quarter-final/rescues", nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
}

func itoa(id uint) string {
	return fmt.Sprint(id)
}
