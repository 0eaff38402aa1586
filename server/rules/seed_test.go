package rules

import (
	"context"
	"testing"

	"github.com/okapimail/okapi/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRulesCatalogue(t *testing.T) {
	ruleSet := DefaultRules()
	require.Len(t, ruleSet, 7)

	names := make([]string, len(ruleSet))
	for i, r := range ruleSet {
		names[i] = r.Name
		assert.True(t, r.Enabled, "rule %s should be enabled", r.Name)
		assert.True(t, r.IsSystem, "rule %s should be marked system", r.Name)
		assert.Equal(t, db.MatchAny, r.MatchMode)
		assert.NotEmpty(t, r.Conditions, "rule %s needs conditions", r.Name)
		assert.NotEmpty(t, r.Actions, "rule %s needs actions", r.Name)
	}
	assert.Equal(t, []string{
		"Security Alerts", "Finance", "Shopping", "Social",
		"Marketing", "Mailing Lists", "Notifications",
	}, names)

	// Priorities strictly ascend so evaluation order is total.
	for i := 1; i < len(ruleSet); i++ {
		assert.Greater(t, ruleSet[i].Priority, ruleSet[i-1].Priority)
	}

	assert.False(t, ruleSet[0].StopProcessing, "security alerts must allow further processing")
	for _, r := range ruleSet[1:] {
		assert.True(t, r.StopProcessing, "rule %s should stop processing", r.Name)
	}
}

type fakeStore struct {
	rules       map[string][]db.Rule
	seedCalls   int
	hasRulesErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rules: make(map[string][]db.Rule)}
}

func (s *fakeStore) HasRules(_ context.Context, user string) (bool, error) {
	if s.hasRulesErr != nil {
		return false, s.hasRulesErr
	}
	return len(s.rules[user]) > 0, nil
}

func (s *fakeStore) SeedDefaultRules(_ context.Context, user string, ruleSet []db.Rule) error {
	s.seedCalls++
	if len(s.rules[user]) > 0 {
		return nil
	}
	s.rules[user] = ruleSet
	return nil
}

func (s *fakeStore) GetRules(_ context.Context, user string) ([]db.Rule, error) {
	return s.rules[user], nil
}

func TestLoadRulesSeedsEmptyMailbox(t *testing.T) {
	store := newFakeStore()

	ruleSet, err := LoadRules(context.Background(), store, "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, ruleSet, 7)
	assert.Equal(t, 1, store.seedCalls)

	// Second load finds the rules and does not seed again.
	ruleSet, err = LoadRules(context.Background(), store, "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, ruleSet, 7)
	assert.Equal(t, 1, store.seedCalls)
}

func TestLoadRulesKeepsExistingRules(t *testing.T) {
	store := newFakeStore()
	custom := []db.Rule{{Name: "mine", Priority: 1, MatchMode: db.MatchAny, Enabled: true}}
	store.rules["bob@example.com"] = custom

	ruleSet, err := LoadRules(context.Background(), store, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, custom, ruleSet)
	assert.Zero(t, store.seedCalls)
}
