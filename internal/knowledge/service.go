package knowledge

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crewmesh/crewmesh/internal/common/config"
	"github.com/crewmesh/crewmesh/internal/common/errors"
	"github.com/crewmesh/crewmesh/internal/common/logger"
	"github.com/crewmesh/crewmesh/internal/events"
	"github.com/crewmesh/crewmesh/internal/events/bus"
	"github.com/crewmesh/crewmesh/internal/observability"
	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// EMA weight applied to the newest validation sample.
const emaWeight = 0.3

// Search scoring weights and cutoff.
const (
	keywordWeight     = 0.4
	titleWeight       = 0.3
	descriptionWeight = 0.2
	successRateWeight = 0.1
	scoreThreshold    = 0.1
)

// Cross-linking thresholds.
const (
	relatedMinShared     = 3
	relatedMinSimilarity = 0.3
	relatedCap           = 5
)

const decayFactor = 0.95

// builtinPattern is one entry in the fixed failure taxonomy.
type builtinPattern struct {
	category         string
	keywords         []string
	suggestedActions []string
}

// Built-in confidence weight for taxonomy matches; learned patterns
// carry their own success rate instead.
const builtinWeight = 0.6

var builtinPatterns = []builtinPattern{
	{
		category: "dependency_error",
		keywords: []string{"import", "module", "dependency", "package", "version", "missing", "install"},
		suggestedActions: []string{
			"check the dependency is declared and installed",
			"verify version constraints are compatible",
			"rebuild with a clean module cache",
		},
	},
	{
		category: "configuration_error",
		keywords: []string{"config", "configuration", "environment", "variable", "setting", "credential", "permission"},
		suggestedActions: []string{
			"diff the failing configuration against a known-good one",
			"check required environment variables are set",
			"verify credentials and file permissions",
		},
	},
	{
		category: "connection_error",
		keywords: []string{"connection", "timeout", "network", "refused", "unreachable", "socket", "dns"},
		suggestedActions: []string{
			"check the target service is running and reachable",
			"verify host, port and DNS resolution",
			"retry with a longer timeout to rule out slow starts",
		},
	},
	{
		category: "concurrency_error",
		keywords: []string{"race", "deadlock", "lock", "concurrent", "conflict", "stale", "contention"},
		suggestedActions: []string{
			"check for overlapping resource claims",
			"look for lock ordering differences between code paths",
			"re-run with the race detector enabled",
		},
	},
}

// Service manages knowledge entries and the learning log.
type Service struct {
	store    Store
	eventBus bus.EventBus
	logger   *logger.Logger

	decayAfter time.Duration
	decaySweep time.Duration
	eventLimit int
}

// NewService creates a knowledge service.
func NewService(store Store, eventBus bus.EventBus, log *logger.Logger, cfg config.KnowledgeConfig) *Service {
	return &Service{
		store:      store,
		eventBus:   eventBus,
		logger:     log,
		decayAfter: time.Duration(cfg.DecayAfterDays) * 24 * time.Hour,
		decaySweep: time.Duration(cfg.DecaySweepHours) * time.Hour,
		eventLimit: cfg.LearningEventLimit,
	}
}

// CreateRequest carries the fields for a new knowledge entry.
// Keywords are extracted automatically when left empty.
type CreateRequest struct {
	Type        string
	Title       string
	Description string
	Content     string
	Tags        []string
	Keywords    []string
	Confidence  v1.ConfidenceLevel
	CreatedBy   string
}

// CreateEntry records a new entry and cross-links it with existing
// entries that share enough keywords and description similarity.
func (s *Service) CreateEntry(ctx context.Context, req CreateRequest) (*Entry, error) {
	if req.Title == "" {
		return nil, errors.ValidationError("title", "must not be empty")
	}
	if req.Type == "" {
		return nil, errors.ValidationError("type", "must not be empty")
	}
	if req.Confidence == "" {
		req.Confidence = v1.ConfidenceMedium
	}
	if _, ok := confidenceRanks[req.Confidence]; !ok {
		return nil, errors.ValidationError("confidence", "unknown confidence: "+string(req.Confidence))
	}
	keywords := req.Keywords
	if len(keywords) == 0 {
		keywords = ExtractKeywords(req.Title + " " + req.Description + " " + req.Content)
	}

	now := time.Now().UTC()
	entry := &Entry{
		ID:          uuid.New().String(),
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		Content:     req.Content,
		Tags:        req.Tags,
		Keywords:    keywords,
		Confidence:  req.Confidence,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateEntry(ctx, entry); err != nil {
		return nil, err
	}

	// Cross-link only once the entry exists, so candidates never point
	// at an id that was rolled back.
	s.linkRelated(ctx, entry)
	if len(entry.RelatedEntries) > 0 {
		if err := s.store.UpdateEntry(ctx, entry); err != nil {
			s.logger.Error("cross-link update failed",
				zap.String("entry_id", entry.ID), zap.Error(err))
		}
	}

	s.publish(ctx, events.KnowledgeCreated, entry)
	s.logger.Info("knowledge entry created",
		zap.String("entry_id", entry.ID),
		zap.String("type", entry.Type),
		zap.Int("keywords", len(entry.Keywords)),
		zap.Int("related", len(entry.RelatedEntries)))
	return entry, nil
}

// linkRelated cross-links the new entry with existing ones sharing at
// least relatedMinShared keywords and a description similarity above
// relatedMinSimilarity, capped at relatedCap per entry, both directions.
func (s *Service) linkRelated(ctx context.Context, entry *Entry) {
	existing, err := s.store.ListEntries(ctx, "")
	if err != nil {
		s.logger.Error("cross-link scan failed", zap.Error(err))
		return
	}

	for _, candidate := range existing {
		if len(entry.RelatedEntries) >= relatedCap {
			break
		}
		if candidate.ID == entry.ID {
			continue
		}
		if sharedKeywords(entry.Keywords, candidate.Keywords) < relatedMinShared {
			continue
		}
		if SimilarityRatio(entry.Description, candidate.Description) <= relatedMinSimilarity {
			continue
		}

		entry.RelatedEntries = append(entry.RelatedEntries, candidate.ID)
		if len(candidate.RelatedEntries) < relatedCap {
			candidate.RelatedEntries = append(candidate.RelatedEntries, entry.ID)
			candidate.UpdatedAt = time.Now().UTC()
			if err := s.store.UpdateEntry(ctx, candidate); err != nil {
				s.logger.Error("cross-link update failed",
					zap.String("entry_id", candidate.ID), zap.Error(err))
			}
		}
	}
}

// GetEntry returns the entry by id.
func (s *Service) GetEntry(ctx context.Context, id string) (*Entry, error) {
	return s.store.GetEntry(ctx, id)
}

// SearchRequest narrows a search.
type SearchRequest struct {
	Query         string
	Type          string
	Tags          []string
	MinConfidence v1.ConfidenceLevel
}

// Search scores entries against the query and returns those above the
// relevance threshold, best first. Ties break on success rate.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]*SearchResult, error) {
	entries, err := s.store.ListEntries(ctx, req.Type)
	if err != nil {
		return nil, err
	}

	queryKeywords := ExtractKeywords(req.Query)
	minRank := confidenceRanks[req.MinConfidence]

	var results []*SearchResult
	for _, entry := range entries {
		if req.MinConfidence != "" && confidenceRanks[entry.Confidence] < minRank {
			continue
		}
		if len(req.Tags) > 0 && !tagsIntersect(entry.Tags, req.Tags) {
			continue
		}

		score := keywordWeight*overlapRatio(queryKeywords, entry.Keywords) +
			titleWeight*SimilarityRatio(req.Query, entry.Title) +
			descriptionWeight*SimilarityRatio(req.Query, entry.Description) +
			confidenceBonus[entry.Confidence] +
			successRateWeight*entry.SuccessRate
		if score < scoreThreshold {
			continue
		}
		results = append(results, &SearchResult{Entry: entry, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entry.SuccessRate > results[j].Entry.SuccessRate
	})
	return results, nil
}

func tagsIntersect(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, tag := range a {
		set[tag] = true
	}
	for _, tag := range b {
		if set[tag] {
			return true
		}
	}
	return false
}

// FindMatchingPatterns scores the issue text against the built-in
// failure taxonomy and learned troubleshooting patterns, returning the
// top five matches by confidence.
func (s *Service) FindMatchingPatterns(ctx context.Context, issueText string) ([]*PatternMatch, error) {
	issueKeywords := ExtractKeywords(issueText)

	var matches []*PatternMatch
	for _, pattern := range builtinPatterns {
		overlap := overlapRatio(pattern.keywords, issueKeywords)
		if overlap == 0 {
			continue
		}
		matches = append(matches, &PatternMatch{
			Category:         pattern.category,
			Confidence:       overlap * builtinWeight,
			SuggestedActions: pattern.suggestedActions,
		})
	}

	learned, err := s.store.ListEntries(ctx, TypeTroubleshootingPattern)
	if err != nil {
		return nil, err
	}
	for _, entry := range learned {
		overlap := overlapRatio(entry.Keywords, issueKeywords)
		if overlap == 0 {
			continue
		}
		matches = append(matches, &PatternMatch{
			Category:         entry.Title,
			EntryID:          entry.ID,
			Confidence:       overlap * (entry.SuccessRate + 0.1),
			SuggestedActions: []string{entry.Content},
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	if len(matches) > 5 {
		matches = matches[:5]
	}
	return matches, nil
}

// Validate records a validation sample for the entry: the success rate
// moves by EMA toward the sample, the confidence level is recomputed,
// and a learning event is logged. The first sample sets the rate
// outright.
func (s *Service) Validate(ctx context.Context, entryID string, success bool, feedback string) bool {
	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		s.logger.Warn("validate failed: entry lookup",
			zap.String("entry_id", entryID), zap.Error(err))
		return false
	}

	sample := 0.0
	if success {
		sample = 1.0
	}
	if entry.ValidationCount == 0 {
		entry.SuccessRate = sample
	} else {
		entry.SuccessRate = emaWeight*sample + (1-emaWeight)*entry.SuccessRate
	}
	entry.ValidationCount++
	entry.Confidence = ConfidenceFor(entry.ValidationCount, entry.SuccessRate)
	now := time.Now().UTC()
	entry.LastValidatedAt = &now
	entry.UpdatedAt = now

	if err := s.store.UpdateEntry(ctx, entry); err != nil {
		s.logger.Error("validate failed: entry update",
			zap.String("entry_id", entryID), zap.Error(err))
		return false
	}

	eventContext := map[string]any{
		"entry_id": entry.ID,
		"success":  success,
	}
	if feedback != "" {
		eventContext["feedback"] = feedback
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	if _, err := s.RecordLearningEvent(ctx, "knowledge_validation", eventContext, outcome, nil); err != nil {
		s.logger.Error("validation learning event failed", zap.Error(err))
	}

	s.publish(ctx, events.KnowledgeValidated, entry)
	s.logger.Info("knowledge entry validated",
		zap.String("entry_id", entry.ID),
		zap.Bool("success", success),
		zap.Float64("success_rate", entry.SuccessRate),
		zap.String("confidence", string(entry.Confidence)))
	return true
}

// RecordLearningEvent appends to the bounded learning log.
func (s *Service) RecordLearningEvent(ctx context.Context, eventType string, eventContext map[string]any, outcome string, agents []string) (*LearningEvent, error) {
	if eventType == "" {
		return nil, errors.ValidationError("type", "must not be empty")
	}
	event := &LearningEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Context:   eventContext,
		Outcome:   outcome,
		Agents:    agents,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AppendLearningEvent(ctx, event, s.eventLimit); err != nil {
		return nil, err
	}
	return event, nil
}

// LearningEvents returns the learning log, newest first.
func (s *Service) LearningEvents(ctx context.Context) ([]*LearningEvent, error) {
	return s.store.ListLearningEvents(ctx)
}

// SweepDecay degrades the success rate of entries left unvalidated past
// the decay window and returns how many entries were touched. Entries
// that were never validated decay from their creation time.
func (s *Service) SweepDecay(ctx context.Context) int {
	entries, err := s.store.ListEntries(ctx, "")
	if err != nil {
		s.logger.Error("decay sweep failed", zap.Error(err))
		return 0
	}

	cutoff := time.Now().UTC().Add(-s.decayAfter)
	decayed := 0
	for _, entry := range entries {
		reference := entry.CreatedAt
		if entry.LastValidatedAt != nil {
			reference = *entry.LastValidatedAt
		}
		if !reference.Before(cutoff) || entry.SuccessRate == 0 {
			continue
		}

		entry.SuccessRate *= decayFactor
		entry.Confidence = ConfidenceFor(entry.ValidationCount, entry.SuccessRate)
		entry.UpdatedAt = time.Now().UTC()
		if err := s.store.UpdateEntry(ctx, entry); err != nil {
			s.logger.Error("decay update failed",
				zap.String("entry_id", entry.ID), zap.Error(err))
			continue
		}
		decayed++
	}
	if decayed > 0 {
		s.logger.Info("stale knowledge decayed", zap.Int("count", decayed))
	}
	return decayed
}

// RunDecaySweeper runs the decay sweep on its configured interval until
// ctx is cancelled.
func (s *Service) RunDecaySweeper(ctx context.Context) {
	ticker := time.NewTicker(s.decaySweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.SweepRuns.WithLabelValues("knowledge_decay").Inc()
			s.SweepDecay(ctx)
		}
	}
}

func (s *Service) publish(ctx context.Context, eventType string, entry *Entry) {
	if s.eventBus == nil {
		return
	}
	event := bus.NewEvent(eventType, "knowledge-store", map[string]any{
		"entry_id":   entry.ID,
		"type":       entry.Type,
		"confidence": string(entry.Confidence),
	})
	if err := s.eventBus.Publish(ctx, eventType, event); err != nil {
		s.logger.Debug("knowledge event publish failed", zap.Error(err))
	}
}
