package rules

import (
	"testing"

	"github.com/okapimail/okapi/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateBankStatement(t *testing.T) {
	facts := Facts{
		Sender:  "statements@mybank.example",
		Subject: "Your Monthly Statement",
	}

	result := Evaluate(DefaultRules(), facts)

	require.NotNil(t, result.TargetFolder)
	assert.Equal(t, "Finance", *result.TargetFolder)
	assert.True(t, result.Flagged)
	assert.False(t, result.Deleted)
	assert.Empty(t, result.Labels)
}

func TestEvaluateMarketingSubject(t *testing.T) {
	facts := Facts{
		Sender:  "deals@shop.example",
		Subject: "50% Off Sale This Weekend",
	}

	result := Evaluate(DefaultRules(), facts)

	require.NotNil(t, result.TargetFolder)
	assert.Equal(t, "Marketing", *result.TargetFolder)
	assert.False(t, result.Flagged)
}

func TestEvaluateSecurityAlertContinuesProcessing(t *testing.T) {
	// The security rule flags and labels but does not stop, so a sender
	// match later in the chain still files the message.
	facts := Facts{
		Sender:  "noreply@github.com",
		Subject: "Password reset requested",
	}

	result := Evaluate(DefaultRules(), facts)

	assert.True(t, result.Flagged)
	assert.Equal(t, []string{"Security"}, result.Labels)
	require.NotNil(t, result.TargetFolder)
	assert.Equal(t, "Notifications", *result.TargetFolder)
}

func TestEvaluateStopProcessingHalts(t *testing.T) {
	// Finance stops, so the later Marketing rule never sees the message
	// even though the subject contains "Sale".
	facts := Facts{
		Sender:  "alerts@bank.example",
		Subject: "Statement ready: Summer Sale edition",
	}

	result := Evaluate(DefaultRules(), facts)

	require.NotNil(t, result.TargetFolder)
	assert.Equal(t, "Finance", *result.TargetFolder)
}

func TestEvaluateLastMoveWins(t *testing.T) {
	folder := func(name string) []db.RuleAction {
		return []db.RuleAction{{Action: db.ActionMoveToFolder, Target: name}}
	}
	cond := []db.RuleCondition{{Field: db.FieldSubject, Operator: db.OperatorContains, Value: "hello"}}

	ruleSet := []db.Rule{
		{Name: "first", Priority: 1, MatchMode: db.MatchAny, Enabled: true, Conditions: cond, Actions: folder("A")},
		{Name: "second", Priority: 2, MatchMode: db.MatchAny, Enabled: true, Conditions: cond, Actions: folder("B")},
	}

	result := Evaluate(ruleSet, Facts{Subject: "hello world"})
	require.NotNil(t, result.TargetFolder)
	assert.Equal(t, "B", *result.TargetFolder)
}

func TestEvaluateLabelsAccumulate(t *testing.T) {
	// Labels keep their casing and duplicates; display-side dedup is the
	// consumer's job.
	cond := []db.RuleCondition{{Field: db.FieldSubject, Operator: db.OperatorContains, Value: "x"}}
	ruleSet := []db.Rule{
		{Name: "a", Priority: 1, MatchMode: db.MatchAny, Enabled: true, Conditions: cond,
			Actions: []db.RuleAction{{Action: db.ActionAddLabel, Target: "One"}}},
		{Name: "b", Priority: 2, MatchMode: db.MatchAny, Enabled: true, Conditions: cond,
			Actions: []db.RuleAction{{Action: db.ActionAddLabel, Target: "two"}, {Action: db.ActionAddLabel, Target: "one"}}},
	}

	result := Evaluate(ruleSet, Facts{Subject: "x"})
	assert.Equal(t, []string{"One", "two", "one"}, result.Labels)
}

func TestEvaluateDeleteAction(t *testing.T) {
	ruleSet := []db.Rule{
		{Name: "purge", Priority: 1, MatchMode: db.MatchAny, Enabled: true, StopProcessing: true,
			Conditions: []db.RuleCondition{{Field: db.FieldFrom, Operator: db.OperatorContains, Value: "spammer"}},
			Actions:    []db.RuleAction{{Action: db.ActionDelete}}},
	}

	result := Evaluate(ruleSet, Facts{Sender: "spammer@example.com"})
	assert.True(t, result.Deleted)
	assert.True(t, result.StopProcessing)
}

func TestEvaluateDeleteWithoutStopKeepsAggregating(t *testing.T) {
	cond := []db.RuleCondition{{Field: db.FieldSubject, Operator: db.OperatorContains, Value: "digest"}}
	ruleSet := []db.Rule{
		{Name: "mark", Priority: 1, MatchMode: db.MatchAny, Enabled: true, Conditions: cond,
			Actions: []db.RuleAction{{Action: db.ActionDelete}}},
		{Name: "file", Priority: 2, MatchMode: db.MatchAny, Enabled: true, Conditions: cond,
			Actions: []db.RuleAction{{Action: db.ActionMoveToFolder, Target: "Digests"}}},
	}

	result := Evaluate(ruleSet, Facts{Subject: "weekly digest"})
	assert.True(t, result.Deleted)
	assert.False(t, result.StopProcessing)
	require.NotNil(t, result.TargetFolder)
	assert.Equal(t, "Digests", *result.TargetFolder)
}

func TestEvaluateDisabledRuleSkipped(t *testing.T) {
	ruleSet := []db.Rule{
		{Name: "off", Priority: 1, MatchMode: db.MatchAny, Enabled: false,
			Conditions: []db.RuleCondition{{Field: db.FieldSubject, Operator: db.OperatorContains, Value: "hello"}},
			Actions:    []db.RuleAction{{Action: db.ActionFlag}}},
	}

	result := Evaluate(ruleSet, Facts{Subject: "hello"})
	assert.False(t, result.Flagged)
}

func TestEvaluateAllModeRequiresEveryCondition(t *testing.T) {
	ruleSet := []db.Rule{
		{Name: "strict", Priority: 1, MatchMode: db.MatchAll, Enabled: true,
			Conditions: []db.RuleCondition{
				{Field: db.FieldFrom, Operator: db.OperatorContains, Value: "billing"},
				{Field: db.FieldSubject, Operator: db.OperatorContains, Value: "overdue"},
			},
			Actions: []db.RuleAction{{Action: db.ActionFlag}}},
	}

	partial := Evaluate(ruleSet, Facts{Sender: "billing@x.example", Subject: "welcome"})
	assert.False(t, partial.Flagged)

	full := Evaluate(ruleSet, Facts{Sender: "billing@x.example", Subject: "payment overdue"})
	assert.True(t, full.Flagged)
}

func TestEvaluateConditionOperators(t *testing.T) {
	tests := []struct {
		name  string
		cond  db.RuleCondition
		facts Facts
		want  bool
	}{
		{
			name:  "contains is case insensitive",
			cond:  db.RuleCondition{Field: db.FieldSubject, Operator: db.OperatorContains, Value: "SALE"},
			facts: Facts{Subject: "big sale today"},
			want:  true,
		},
		{
			name:  "regex matches list id presence",
			cond:  db.RuleCondition{Field: db.FieldListID, Operator: db.OperatorRegex, Value: ".+"},
			facts: Facts{ListID: "dev.lists.example.com"},
			want:  true,
		},
		{
			name:  "regex misses empty list id",
			cond:  db.RuleCondition{Field: db.FieldListID, Operator: db.OperatorRegex, Value: ".+"},
			facts: Facts{},
			want:  false,
		},
		{
			name:  "invalid regex never matches",
			cond:  db.RuleCondition{Field: db.FieldSubject, Operator: db.OperatorRegex, Value: "("},
			facts: Facts{Subject: "anything"},
			want:  false,
		},
		{
			name:  "is on auto generated flag",
			cond:  db.RuleCondition{Field: db.FieldAutoGenerated, Operator: db.OperatorIs, Value: "true"},
			facts: Facts{AutoGenerated: true},
			want:  true,
		},
		{
			name:  "is compares case insensitively",
			cond:  db.RuleCondition{Field: db.FieldFrom, Operator: db.OperatorIs, Value: "Bot@Example.COM"},
			facts: Facts{Sender: "bot@example.com"},
			want:  true,
		},
		{
			name:  "unknown field never matches",
			cond:  db.RuleCondition{Field: "body", Operator: db.OperatorContains, Value: "x"},
			facts: Facts{Subject: "x"},
			want:  false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, evalCondition(tc.cond, tc.facts))
		})
	}
}

func TestEvaluateEmptyConditionsNeverFire(t *testing.T) {
	ruleSet := []db.Rule{
		{Name: "empty", Priority: 1, MatchMode: db.MatchAny, Enabled: true,
			Actions: []db.RuleAction{{Action: db.ActionFlag}}},
	}
	result := Evaluate(ruleSet, Facts{Subject: "anything"})
	assert.False(t, result.Flagged)
}

func TestEvaluateDeterministic(t *testing.T) {
	facts := Facts{Sender: "noreply@github.com", Subject: "Build failed"}
	first := Evaluate(DefaultRules(), facts)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Evaluate(DefaultRules(), facts))
	}
}
