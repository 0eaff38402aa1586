package rules

import (
	"context"
	"fmt"

	"github.com/okapimail/okapi/db"
	"github.com/okapimail/okapi/logger"
)

// DefaultRules returns the rule set installed for a mailbox on its first
// delivery. The security rule deliberately does not stop processing, so a
// flagged alert can still be filed by a later rule.
func DefaultRules() []db.Rule {
	return []db.Rule{
		{
			Name:           "Security Alerts",
			Priority:       10,
			MatchMode:      db.MatchAny,
			Enabled:        true,
			StopProcessing: false,
			IsSystem:       true,
			Conditions: []db.RuleCondition{
				{Field: db.FieldSubject, Operator: db.OperatorContains, Value: "Verification code"},
				{Field: db.FieldSubject, Operator: db.OperatorContains, Value: "Password reset"},
				{Field: db.FieldSubject, Operator: db.OperatorContains, Value: "Suspicious sign in"},
			},
			Actions: []db.RuleAction{
				{Action: db.ActionFlag},
				{Action: db.ActionAddLabel, Target: "Security"},
			},
		},
		{
			Name:           "Finance",
			Priority:       11,
			MatchMode:      db.MatchAny,
			Enabled:        true,
			StopProcessing: true,
			IsSystem:       true,
			Conditions: []db.RuleCondition{
				{Field: db.FieldFrom, Operator: db.OperatorContains, Value: "bank"},
				{Field: db.FieldSubject, Operator: db.OperatorContains, Value: "Statement"},
			},
			Actions: []db.RuleAction{
				{Action: db.ActionMoveToFolder, Target: "Finance"},
				{Action: db.ActionFlag},
			},
		},
		{
			Name:           "Shopping",
			Priority:       12,
			MatchMode:      db.MatchAny,
			Enabled:        true,
			StopProcessing: true,
			IsSystem:       true,
			Conditions: []db.RuleCondition{
				{Field: db.FieldSubject, Operator: db.OperatorContains, Value: "Order confirmation"},
				{Field: db.FieldSubject, Operator: db.OperatorContains, Value: "Receipt"},
				{Field: db.FieldSubject, Operator: db.OperatorContains, Value: "Invoice"},
				{Field: db.FieldSubject, Operator: db.OperatorContains, Value: "Dispatch"},
			},
			Actions: []db.RuleAction{
				{Action: db.ActionMoveToFolder, Target: "Shopping"},
			},
		},
		{
			Name:           "Social",
			Priority:       13,
			MatchMode:      db.MatchAny,
			Enabled:        true,
			StopProcessing: true,
			IsSystem:       true,
			Conditions: []db.RuleCondition{
				{Field: db.FieldFrom, Operator: db.OperatorContains, Value: "facebookmail.com"},
				{Field: db.FieldFrom, Operator: db.OperatorContains, Value: "linkedin.com"},
				{Field: db.FieldFrom, Operator: db.OperatorContains, Value: "twitter.com"},
				{Field: db.FieldFrom, Operator: db.OperatorContains, Value: "instagram.com"},
			},
			Actions: []db.RuleAction{
				{Action: db.ActionMoveToFolder, Target: "Social"},
			},
		},
		{
			Name:           "Marketing",
			Priority:       14,
			MatchMode:      db.MatchAny,
			Enabled:        true,
			StopProcessing: true,
			IsSystem:       true,
			Conditions: []db.RuleCondition{
				{Field: db.FieldFrom, Operator: db.OperatorContains, Value: "offers@"},
				{Field: db.FieldFrom, Operator: db.OperatorContains, Value: "promo@"},
				{Field: db.FieldSubject, Operator: db.OperatorContains, Value: "Sale"},
				{Field: db.FieldSubject, Operator: db.OperatorContains, Value: "Discount"},
			},
			Actions: []db.RuleAction{
				{Action: db.ActionMoveToFolder, Target: "Marketing"},
			},
		},
		{
			Name:           "Mailing Lists",
			Priority:       15,
			MatchMode:      db.MatchAny,
			Enabled:        true,
			StopProcessing: true,
			IsSystem:       true,
			Conditions: []db.RuleCondition{
				// fires whenever a List-Id header is present
				{Field: db.FieldListID, Operator: db.OperatorRegex, Value: ".+"},
			},
			Actions: []db.RuleAction{
				{Action: db.ActionMoveToFolder, Target: "Mailing Lists"},
			},
		},
		{
			Name:           "Notifications",
			Priority:       16,
			MatchMode:      db.MatchAny,
			Enabled:        true,
			StopProcessing: true,
			IsSystem:       true,
			Conditions: []db.RuleCondition{
				{Field: db.FieldFrom, Operator: db.OperatorContains, Value: "github.com"},
				{Field: db.FieldFrom, Operator: db.OperatorContains, Value: "azure.com"},
				{Field: db.FieldFrom, Operator: db.OperatorContains, Value: "atlassian.net"},
				{Field: db.FieldFrom, Operator: db.OperatorContains, Value: "noreply"},
				{Field: db.FieldAutoGenerated, Operator: db.OperatorIs, Value: "true"},
			},
			Actions: []db.RuleAction{
				{Action: db.ActionMoveToFolder, Target: "Notifications"},
			},
		},
	}
}

// Store is the persistence surface the rule loader needs.
type Store interface {
	HasRules(ctx context.Context, userAddress string) (bool, error)
	SeedDefaultRules(ctx context.Context, userAddress string, rules []db.Rule) error
	GetRules(ctx context.Context, userAddress string) ([]db.Rule, error)
}

// LoadRules returns the user's rules, installing the default set first if
// the mailbox has none. Seeding is serialized per user in the store, so
// concurrent deliveries for the same new mailbox end up with one rule set.
func LoadRules(ctx context.Context, store Store, userAddress string) ([]db.Rule, error) {
	has, err := store.HasRules(ctx, userAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to check rules for %s: %w", userAddress, err)
	}
	if !has {
		if err := store.SeedDefaultRules(ctx, userAddress, DefaultRules()); err != nil {
			return nil, fmt.Errorf("failed to seed rules for %s: %w", userAddress, err)
		}
		logger.Infof("seeded default rules for %s", userAddress)
	}
	return store.GetRules(ctx, userAddress)
}
