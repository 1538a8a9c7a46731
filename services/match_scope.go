package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"quiz-elimination-engine/models"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MatchScope is the per-match mutual-exclusion unit: match lock, then one DB transaction
// holding the match row FOR UPDATE. Every writer of participations and rescues goes
// through it.
type MatchScope struct {
	DB       *gorm.DB
	Locker   MatchLocker
	LockWait time.Duration
}

func NewMatchScope(db *gorm.DB, locker MatchLocker, lockWait time.Duration) *MatchScope {
	if locker == nil {
		locker = NewLocalMatchLocker()
	}
	return &MatchScope{DB: db, Locker: locker, LockWait: lockWait}
}

func (m *MatchScope) withMatch(ctx context.Context, matchID uint, fn func(tx *gorm.DB, match *models.Match) error) error {
	if matchID == 0 {
		return validationError("match id must be positive")
	}

	lockCtx := ctx
	if m.LockWait > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, m.LockWait)
		defer cancel()
	}
	unlock, err := m.Locker.Lock(lockCtx, matchID)
	if err != nil {
		return err
	}
	defer unlock()

	err = m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var match models.Match
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&match, matchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("match %d not found", matchID)
			}
			return internalError("load match", err)
		}
		return fn(tx, &match)
	})
	if err != nil {
		return internalError("match transaction", err)
	}
	return nil
}

func (m *MatchScope) loadMatch(ctx context.Context, matchID uint) (*models.Match, error) {
	if matchID == 0 {
		return nil, validationError("match id must be positive")
	}
	var match models.Match
	if err := m.DB.WithContext(ctx).First(&match, matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("match %d not found", matchID)
		}
		return nil, internalError("load match", err)
	}
	return &match, nil
}

// ResolveMatch looks a match up by numeric id or by slug.
func (m *MatchScope) ResolveMatch(ctx context.Context, ref string) (*models.Match, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, validationError("match reference is required")
	}
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return m.loadMatch(ctx, uint(id))
	}

	var match models.Match
	if err := m.DB.WithContext(ctx).Where("slug = ?", slug.Make(ref)).First(&match).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("match %q not found", ref)
		}
		return nil, internalError("load match by slug", err)
	}
	return &match, nil
}

// CompetingCount is recomputed from the store on every call; nothing caches it.
func (m *MatchScope) CompetingCount(ctx context.Context, matchID uint) (int64, error) {
	n, err := countCompeting(m.DB.WithContext(ctx), matchID)
	if err != nil {
		return 0, internalError("count competing contestants", err)
	}
	return n, nil
}

func countCompeting(db *gorm.DB, matchID uint) (int64, error) {
	var n int64
	err := db.Model(&models.Participation{}).
		Where("match_id = ? AND status IN ?", matchID, models.CompetingStatuses).
		Count(&n).Error
	return n, err
}

// MatchSlug builds the lookup slug for a match name.
func MatchSlug(name string) string {
	return slug.Make(name)
}
