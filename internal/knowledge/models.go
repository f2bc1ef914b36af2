// Package knowledge implements the shared knowledge store: free-text
// entries with keyword indexing, relevance-scored search, pattern
// matching against known failure categories, and validation-driven
// confidence scoring.
package knowledge

import (
	"time"

	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// Entry types.
const (
	TypeSolution               = "solution"
	TypeTroubleshootingPattern = "troubleshooting_pattern"
	TypeBestPractice           = "best_practice"
	TypeLessonLearned          = "lesson_learned"
)

// confidenceRanks orders confidence levels for minimum-confidence
// filtering.
var confidenceRanks = map[v1.ConfidenceLevel]int{
	v1.ConfidenceLow:      0,
	v1.ConfidenceMedium:   1,
	v1.ConfidenceHigh:     2,
	v1.ConfidenceVerified: 3,
}

// confidenceBonus feeds the search relevance score.
var confidenceBonus = map[v1.ConfidenceLevel]float64{
	v1.ConfidenceLow:      0,
	v1.ConfidenceMedium:   0.05,
	v1.ConfidenceHigh:     0.1,
	v1.ConfidenceVerified: 0.15,
}

// ConfidenceFor derives the confidence level from the validation count
// and success rate. Every tier requires a minimum number of validations;
// a single confirmation never lifts an entry past low.
func ConfidenceFor(validationCount int, successRate float64) v1.ConfidenceLevel {
	switch {
	case validationCount >= 10 && successRate >= 0.9:
		return v1.ConfidenceVerified
	case validationCount >= 5 && successRate >= 0.7:
		return v1.ConfidenceHigh
	case validationCount >= 2 && successRate >= 0.5:
		return v1.ConfidenceMedium
	default:
		return v1.ConfidenceLow
	}
}

// Entry is one knowledge record.
type Entry struct {
	ID              string             `db:"id"`
	Type            string             `db:"type"`
	Title           string             `db:"title"`
	Description     string             `db:"description"`
	Content         string             `db:"content"`
	Tags            []string           `db:"-"`
	Keywords        []string           `db:"-"`
	Confidence      v1.ConfidenceLevel `db:"confidence"`
	CreatedBy       string             `db:"created_by"`
	ValidationCount int                `db:"validation_count"`
	SuccessRate     float64            `db:"success_rate"`
	RelatedEntries  []string           `db:"-"`
	LastValidatedAt *time.Time         `db:"last_validated_at"`
	CreatedAt       time.Time          `db:"created_at"`
	UpdatedAt       time.Time          `db:"updated_at"`
}

// LearningEvent is one record in the bounded learning log.
type LearningEvent struct {
	ID        string         `db:"id"`
	Type      string         `db:"type"`
	Context   map[string]any `db:"-"`
	Outcome   string         `db:"outcome"`
	Agents    []string       `db:"-"`
	CreatedAt time.Time      `db:"created_at"`
}

// SearchResult pairs an entry with its relevance score.
type SearchResult struct {
	Entry *Entry
	Score float64
}

// PatternMatch is one pattern-matching hit against an issue description.
type PatternMatch struct {
	Category         string   `json:"category"`
	EntryID          string   `json:"entry_id,omitempty"`
	Confidence       float64  `json:"confidence"`
	SuggestedActions []string `json:"suggested_actions"`
}
