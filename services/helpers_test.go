package services

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"quiz-elimination-engine/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a migrated sqlite database in a temp dir.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) Types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

type testEngine struct {
	db             *gorm.DB
	participations *ParticipationService
	rescues        *RescueService
	events         *recordingNotifier
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	db := newTestDB(t)
	events := &recordingNotifier{}
	scope := NewMatchScope(db, NewLocalMatchLocker(), 0)
	p := NewParticipationService(scope, events, 50)
	r := NewRescueService(scope, NewGormResultLedger(db), events, p)
	return &testEngine{db: db, participations: p, rescues: r, events: events}
}

func (e *testEngine) seedMatch(t *testing.T, currentOrder int, priority *uint) *models.Match {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.Match{}).Count(&n).Error)
	m := &models.Match{
		Name:                 fmt.Sprintf("Match %d", n+1),
		Slug:                 fmt.Sprintf("match-%d", n+1),
		Status:               models.MatchStatusInProgress,
		CurrentQuestionOrder: currentOrder,
		TotalQuestions:       20,
		PriorityContestantID: priority,
	}
	require.NoError(t, e.db.Create(m).Error)
	return m
}

func (e *testEngine) seedParticipation(t *testing.T, matchID, contestantID uint, status models.ParticipationStatus, eliminatedAt *int) *models.Participation {
	t.Helper()
	p := &models.Participation{
		MatchID:                   matchID,
		ContestantID:              contestantID,
		RegistrationNumber:        int(contestantID),
		Status:                    status,
		EliminatedAtQuestionOrder: eliminatedAt,
	}
	require.NoError(t, e.db.Create(p).Error)
	return p
}

func (e *testEngine) seedCorrect(t *testing.T, matchID, contestantID uint, correct, wrong int) {
	t.Helper()
	order := 1
	for i := 0; i < correct; i++ {
		require.NoError(t, e.db.Create(&models.Result{MatchID: matchID, ContestantID: contestantID, QuestionOrder: order, IsCorrect: true}).Error)
		order++
	}
	for i := 0; i < wrong; i++ {
		require.NoError(t, e.db.Create(&models.Result{MatchID: matchID, ContestantID: contestantID, QuestionOrder: order, IsCorrect: false}).Error)
		order++
	}
}

func (e *testEngine) seedRescue(t *testing.T, matchID uint, kind models.RescueType, from, to, threshold int) *models.RescueDefinition {
	t.Helper()
	r := &models.RescueDefinition{
		MatchID:                       matchID,
		RescueType:                    kind,
		QuestionFrom:                  from,
		QuestionTo:                    to,
		RemainingContestantsThreshold: threshold,
		WindowState:                   models.WindowPending,
		Status:                        models.RescueStatusNotUsed,
		Version:                       1,
	}
	require.NoError(t, e.db.Create(r).Error)
	return r
}

func (e *testEngine) participation(t *testing.T, matchID, contestantID uint) models.Participation {
	t.Helper()
	var p models.Participation
	require.NoError(t, e.db.Where("match_id = ? AND contestant_id = ?", matchID, contestantID).First(&p).Error)
	return p
}

func (e *testEngine) rescue(t *testing.T, id uint) models.RescueDefinition {
	t.Helper()
	var r models.RescueDefinition
	require.NoError(t, e.db.First(&r, id).Error)
	return r
}

func intPtr(v int) *int    { return &v }
func uintPtr(v uint) *uint { return &v }
