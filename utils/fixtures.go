// utils/fixtures.go
package utils

import (
	"fmt"
	"os"

	"quiz-elimination-engine/models"
	"quiz-elimination-engine/services"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// Fixture is a YAML description of matches prepared by the (external) setup step,
// used to seed local and demo databases.
type Fixture struct {
	Matches []MatchFixture `yaml:"matches"`
}

type MatchFixture struct {
	Name                 string `yaml:"name"`
	Slug                 string `yaml:"slug"`
	TotalQuestions       int    `yaml:"total_questions"`
	CurrentQuestionOrder int    `yaml:"current_question_order"`
	Status               string `yaml:"status"`
	PriorityContestantID *uint  `yaml:"priority_contestant_id"`

	Participations []ParticipationFixture `yaml:"participations"`
	Rescues        []RescueFixture        `yaml:"rescues"`
	Results        []ResultFixture        `yaml:"results"`
}

type ParticipationFixture struct {
	ContestantID              uint   `yaml:"contestant_id"`
	RegistrationNumber        int    `yaml:"registration_number"`
	Status                    string `yaml:"status"`
	GroupID                   *uint  `yaml:"group_id"`
	EliminatedAtQuestionOrder *int   `yaml:"eliminated_at_question_order"`
}

type RescueFixture struct {
	RescueType                    string `yaml:"rescue_type"`
	QuestionFrom                  int    `yaml:"question_from"`
	QuestionTo                    int    `yaml:"question_to"`
	RemainingContestantsThreshold int    `yaml:"remaining_contestants_threshold"`
}

type ResultFixture struct {
	ContestantID  uint `yaml:"contestant_id"`
	QuestionOrder int  `yaml:"question_order"`
	IsCorrect     bool `yaml:"is_correct"`
}

func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixture) Validate() error {
	for i, m := range f.Matches {
		if m.Name == "" {
			return fmt.Errorf("match %d: name is required", i)
		}
		seen := map[uint]bool{}
		for _, p := range m.Participations {
			if p.ContestantID == 0 {
				return fmt.Errorf("match %q: contestant_id must be positive", m.Name)
			}
			if seen[p.ContestantID] {
				return fmt.Errorf("match %q: contestant %d listed twice", m.Name, p.ContestantID)
			}
			seen[p.ContestantID] = true
			if p.Status != "" && !services.ValidStatus(models.ParticipationStatus(p.Status)) {
				return fmt.Errorf("match %q: contestant %d has unknown status %q", m.Name, p.ContestantID, p.Status)
			}
			if p.Status == string(models.StatusEliminated) && p.EliminatedAtQuestionOrder == nil {
				return fmt.Errorf("match %q: eliminated contestant %d needs eliminated_at_question_order", m.Name, p.ContestantID)
			}
		}
		for _, r := range m.Rescues {
			if r.QuestionFrom > r.QuestionTo {
				return fmt.Errorf("match %q: rescue window %d-%d is inverted", m.Name, r.QuestionFrom, r.QuestionTo)
			}
			switch models.RescueType(r.RescueType) {
			case models.RescueTypeResurrected, models.RescueTypeLifelineUsed:
			default:
				return fmt.Errorf("match %q: unknown rescue type %q", m.Name, r.RescueType)
			}
		}
	}
	return nil
}

// Apply inserts every match of the fixture in one transaction and returns them.
func (f *Fixture) Apply(db *gorm.DB) ([]models.Match, error) {
	created := make([]models.Match, 0, len(f.Matches))
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, mf := range f.Matches {
			match := models.Match{
				Name:                 mf.Name,
				Slug:                 mf.Slug,
				TotalQuestions:       mf.TotalQuestions,
				CurrentQuestionOrder: mf.CurrentQuestionOrder,
				Status:               mf.Status,
				PriorityContestantID: mf.PriorityContestantID,
			}
			if match.Slug == "" {
				match.Slug = slug.Make(mf.Name)
			}
			if match.Status == "" {
				match.Status = models.MatchStatusPending
			}
			if err := tx.Create(&match).Error; err != nil {
				return fmt.Errorf("create match %q: %w", mf.Name, err)
			}

			for _, pf := range mf.Participations {
				status := models.ParticipationStatus(pf.Status)
				if status == "" {
					status = models.StatusNotStarted
				}
				p := models.Participation{
					MatchID:                   match.ID,
					ContestantID:              pf.ContestantID,
					RegistrationNumber:        pf.RegistrationNumber,
					Status:                    status,
					GroupID:                   pf.GroupID,
					EliminatedAtQuestionOrder: pf.EliminatedAtQuestionOrder,
				}
				if err := tx.Create(&p).Error; err != nil {
					return fmt.Errorf("create participation %d: %w", pf.ContestantID, err)
				}
			}

			for _, rf := range mf.Rescues {
				r := models.RescueDefinition{
					MatchID:                       match.ID,
					RescueType:                    models.RescueType(rf.RescueType),
					QuestionFrom:                  rf.QuestionFrom,
					QuestionTo:                    rf.QuestionTo,
					RemainingContestantsThreshold: rf.RemainingContestantsThreshold,
					StudentIDs:                    []uint{},
					SupportAnswers:                []models.SupportAnswer{},
					Version:                       1,
				}
				services.ApplyWindow(&r, match.CurrentQuestionOrder)
				if err := tx.Create(&r).Error; err != nil {
					return fmt.Errorf("create rescue: %w", err)
				}
			}

			for _, res := range mf.Results {
				row := models.Result{
					MatchID:       match.ID,
					ContestantID:  res.ContestantID,
					QuestionOrder: res.QuestionOrder,
					IsCorrect:     res.IsCorrect,
				}
				if err := tx.Create(&row).Error; err != nil {
					return fmt.Errorf("create result: %w", err)
				}
			}
			created = append(created, match)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
