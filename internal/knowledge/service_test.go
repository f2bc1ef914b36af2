package knowledge

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewmesh/crewmesh/internal/common/config"
	"github.com/crewmesh/crewmesh/internal/common/logger"
	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)
	cfg := config.KnowledgeConfig{DecayAfterDays: 30, DecaySweepHours: 24, LearningEventLimit: 1000}
	return NewService(NewMemoryStore(), nil, log, cfg)
}

func TestExtractKeywords(t *testing.T) {
	keywords := ExtractKeywords("The database connection timeout happens because the database pool is exhausted")
	assert.Contains(t, keywords, "database")
	assert.Contains(t, keywords, "connection")
	assert.Contains(t, keywords, "timeout")
	assert.NotContains(t, keywords, "the", "stop words dropped")
	assert.NotContains(t, keywords, "is", "short tokens dropped")
	// "database" appears twice so it ranks first.
	assert.Equal(t, "database", keywords[0])
}

func TestSimilarityRatio(t *testing.T) {
	assert.Equal(t, 1.0, SimilarityRatio("abc", "abc"))
	assert.Equal(t, 0.0, SimilarityRatio("abc", "xyz"))
	assert.Equal(t, 1.0, SimilarityRatio("", ""))
	ratio := SimilarityRatio("database timeout", "database timeouts")
	assert.Greater(t, ratio, 0.9)
	assert.Less(t, ratio, 1.0)
}

func TestConfidenceFor_ThresholdTable(t *testing.T) {
	cases := []struct {
		count int
		rate  float64
		want  v1.ConfidenceLevel
	}{
		{0, 0.0, v1.ConfidenceLow},
		{1, 0.4, v1.ConfidenceLow},
		{1, 1.0, v1.ConfidenceLow},
		{2, 0.4, v1.ConfidenceLow},
		{2, 0.5, v1.ConfidenceMedium},
		{4, 1.0, v1.ConfidenceMedium},
		{5, 0.7, v1.ConfidenceHigh},
		{9, 1.0, v1.ConfidenceHigh},
		{10, 0.89, v1.ConfidenceHigh},
		{10, 0.9, v1.ConfidenceVerified},
		{20, 1.0, v1.ConfidenceVerified},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ConfidenceFor(tc.count, tc.rate),
			"count=%d rate=%v", tc.count, tc.rate)
	}
}

func TestService_ValidateScenario(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	entry, err := svc.CreateEntry(ctx, CreateRequest{
		Type:        TypeSolution,
		Title:       "restart the indexer",
		Description: "fixes stuck indexing jobs",
		CreatedBy:   "agent-1",
	})
	require.NoError(t, err)
	require.Equal(t, 0, entry.ValidationCount)

	require.True(t, svc.Validate(ctx, entry.ID, true, ""))
	got, err := svc.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.SuccessRate)
	assert.Equal(t, v1.ConfidenceLow, got.Confidence, "one validation is not enough")

	for i := 0; i < 4; i++ {
		require.True(t, svc.Validate(ctx, entry.ID, true, ""))
	}
	got, err = svc.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.ValidationCount)
	assert.Equal(t, 1.0, got.SuccessRate)
	assert.Equal(t, v1.ConfidenceHigh, got.Confidence)
}

func TestService_ValidateEMABounds(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	entry, err := svc.CreateEntry(ctx, CreateRequest{
		Type: TypeSolution, Title: "flaky fix", CreatedBy: "agent-1",
	})
	require.NoError(t, err)

	// Alternate outcomes; the rate must stay within [0,1] throughout.
	for i := 0; i < 20; i++ {
		require.True(t, svc.Validate(ctx, entry.ID, i%2 == 0, ""))
		got, err := svc.GetEntry(ctx, entry.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.SuccessRate, 0.0)
		assert.LessOrEqual(t, got.SuccessRate, 1.0)
	}

	// EMA with weight 0.3 after success then failure: 0.7*1.0.
	fresh, err := svc.CreateEntry(ctx, CreateRequest{
		Type: TypeSolution, Title: "ema check", CreatedBy: "agent-1",
	})
	require.NoError(t, err)
	require.True(t, svc.Validate(ctx, fresh.ID, true, ""))
	require.True(t, svc.Validate(ctx, fresh.ID, false, ""))
	got, err := svc.GetEntry(ctx, fresh.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, got.SuccessRate, 1e-9)
}

func TestService_ValidateEmitsLearningEvent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	entry, err := svc.CreateEntry(ctx, CreateRequest{
		Type: TypeSolution, Title: "observed fix", CreatedBy: "agent-1",
	})
	require.NoError(t, err)
	require.True(t, svc.Validate(ctx, entry.ID, true, "worked on staging"))

	events, err := svc.LearningEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "knowledge_validation", events[0].Type)
	assert.Equal(t, "success", events[0].Outcome)
	assert.Equal(t, entry.ID, events[0].Context["entry_id"])
}

func TestService_LearningLogBounded(t *testing.T) {
	ctx := context.Background()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)
	svc := NewService(NewMemoryStore(), nil, log,
		config.KnowledgeConfig{DecayAfterDays: 30, DecaySweepHours: 24, LearningEventLimit: 5})

	for i := 0; i < 8; i++ {
		_, err := svc.RecordLearningEvent(ctx, "observation",
			map[string]any{"n": i}, "noted", nil)
		require.NoError(t, err)
	}

	events, err := svc.LearningEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestService_SearchScoring(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	relevant, err := svc.CreateEntry(ctx, CreateRequest{
		Type:        TypeSolution,
		Title:       "database connection timeout fix",
		Description: "increase the connection pool size when database timeouts appear",
		CreatedBy:   "agent-1",
	})
	require.NoError(t, err)

	_, err = svc.CreateEntry(ctx, CreateRequest{
		Type:        TypeSolution,
		Title:       "frontend bundle size reduction",
		Description: "tree shaking configuration reduces shipped javascript",
		CreatedBy:   "agent-1",
	})
	require.NoError(t, err)

	results, err := svc.Search(ctx, SearchRequest{Query: "database connection timeout"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, relevant.ID, results[0].Entry.ID)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.1)
	}
}

func TestService_SearchMinConfidenceFilter(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.CreateEntry(ctx, CreateRequest{
		Type:        TypeSolution,
		Title:       "database timeout workaround",
		Description: "database timeout workaround",
		Confidence:  v1.ConfidenceLow,
		CreatedBy:   "agent-1",
	})
	require.NoError(t, err)

	results, err := svc.Search(ctx, SearchRequest{
		Query:         "database timeout",
		MinConfidence: v1.ConfidenceHigh,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestService_CrossLinking(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	first, err := svc.CreateEntry(ctx, CreateRequest{
		Type:        TypeSolution,
		Title:       "database connection timeout fix",
		Description: "database connection timeout resolved by raising pool limits",
		CreatedBy:   "agent-1",
	})
	require.NoError(t, err)

	second, err := svc.CreateEntry(ctx, CreateRequest{
		Type:        TypeSolution,
		Title:       "database connection timeout during migration",
		Description: "database connection timeout resolved by raising pool ceiling",
		CreatedBy:   "agent-2",
	})
	require.NoError(t, err)
	assert.Contains(t, second.RelatedEntries, first.ID)
	assert.NotContains(t, second.RelatedEntries, second.ID)

	// The link is bidirectional.
	got, err := svc.GetEntry(ctx, first.ID)
	require.NoError(t, err)
	assert.Contains(t, got.RelatedEntries, second.ID)
}

// failingCreateStore rejects entry creation while leaving the rest of
// the store operational.
type failingCreateStore struct {
	Store
	fail bool
}

func (s *failingCreateStore) CreateEntry(ctx context.Context, entry *Entry) error {
	if s.fail {
		return fmt.Errorf("disk full")
	}
	return s.Store.CreateEntry(ctx, entry)
}

func TestService_CreateEntryFailureLeavesNoDanglingLinks(t *testing.T) {
	ctx := context.Background()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)
	store := &failingCreateStore{Store: NewMemoryStore()}
	svc := NewService(store, nil, log,
		config.KnowledgeConfig{DecayAfterDays: 30, DecaySweepHours: 24, LearningEventLimit: 1000})

	first, err := svc.CreateEntry(ctx, CreateRequest{
		Type:        TypeSolution,
		Title:       "database connection timeout fix",
		Description: "database connection timeout resolved by raising pool limits",
		CreatedBy:   "agent-1",
	})
	require.NoError(t, err)

	store.fail = true
	_, err = svc.CreateEntry(ctx, CreateRequest{
		Type:        TypeSolution,
		Title:       "database connection timeout during migration",
		Description: "database connection timeout resolved by raising pool ceiling",
		CreatedBy:   "agent-2",
	})
	require.Error(t, err)

	// The surviving entry must not reference the entry that was never
	// written.
	got, err := svc.GetEntry(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, got.RelatedEntries)
}

func TestService_CrossLinkingCap(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	for i := 0; i < relatedCap+2; i++ {
		_, err := svc.CreateEntry(ctx, CreateRequest{
			Type:        TypeSolution,
			Title:       fmt.Sprintf("database connection timeout fix %d", i),
			Description: "database connection timeout resolved by raising pool limits",
			CreatedBy:   "agent-1",
		})
		require.NoError(t, err)
	}

	last, err := svc.CreateEntry(ctx, CreateRequest{
		Type:        TypeSolution,
		Title:       "database connection timeout final",
		Description: "database connection timeout resolved by raising pool limits",
		CreatedBy:   "agent-1",
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(last.RelatedEntries), relatedCap)
}

func TestService_FindMatchingPatterns(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	learned, err := svc.CreateEntry(ctx, CreateRequest{
		Type:        TypeTroubleshootingPattern,
		Title:       "sqlite busy during migration",
		Description: "sqlite database locked connection busy during schema migration",
		Content:     "serialize migrations through the coordinator lock",
		CreatedBy:   "agent-1",
	})
	require.NoError(t, err)
	require.True(t, svc.Validate(ctx, learned.ID, true, ""))

	matches, err := svc.FindMatchingPatterns(ctx,
		"connection timeout to the database, network unreachable during migration")
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.LessOrEqual(t, len(matches), 5)

	categories := make([]string, 0, len(matches))
	for _, m := range matches {
		categories = append(categories, m.Category)
		assert.NotEmpty(t, m.SuggestedActions)
	}
	assert.Contains(t, categories, "connection_error")

	// Sorted by confidence descending.
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Confidence, matches[i].Confidence)
	}
}

func TestService_DecaySweep(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	store := svc.store.(*MemoryStore)

	entry, err := svc.CreateEntry(ctx, CreateRequest{
		Type: TypeSolution, Title: "aging fix", CreatedBy: "agent-1",
	})
	require.NoError(t, err)
	require.True(t, svc.Validate(ctx, entry.ID, true, ""))

	// Fresh entries do not decay.
	assert.Equal(t, 0, svc.SweepDecay(ctx))

	// Age the validation far past the decay window.
	aged, err := store.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	old := aged.CreatedAt.AddDate(0, 0, -60)
	aged.LastValidatedAt = &old
	require.NoError(t, store.UpdateEntry(ctx, aged))

	assert.Equal(t, 1, svc.SweepDecay(ctx))
	got, err := svc.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.95, got.SuccessRate, 1e-9)
}
