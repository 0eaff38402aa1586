package db

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/okapimail/okapi/consts"
	"github.com/okapimail/okapi/helpers"
	"github.com/okapimail/okapi/pkg/metrics"
)

// MatchMode decides how a rule's conditions combine.
type MatchMode string

const (
	MatchAll MatchMode = "all"
	MatchAny MatchMode = "any"
)

// ConditionField names the message fact a condition inspects.
type ConditionField string

const (
	FieldFrom          ConditionField = "from"
	FieldSubject       ConditionField = "subject"
	FieldListID        ConditionField = "list_id"
	FieldAutoGenerated ConditionField = "auto_generated"
)

// ConditionOperator names the comparison a condition applies.
type ConditionOperator string

const (
	OperatorContains ConditionOperator = "contains"
	OperatorRegex    ConditionOperator = "regex"
	OperatorIs       ConditionOperator = "is"
)

// ActionKind names an effect a firing rule applies to the message.
type ActionKind string

const (
	ActionMoveToFolder ActionKind = "move_to_folder"
	ActionAddLabel     ActionKind = "add_label"
	ActionMarkAsRead   ActionKind = "mark_as_read"
	ActionFlag         ActionKind = "flag"
	ActionDelete       ActionKind = "delete"
)

// Rule is a user's routing rule with its conditions and actions loaded.
type Rule struct {
	ID             int64
	UserAddress    string
	Name           string
	Priority       int
	MatchMode      MatchMode
	Enabled        bool
	StopProcessing bool
	IsSystem       bool
	Conditions     []RuleCondition
	Actions        []RuleAction
}

type RuleCondition struct {
	ID       int64
	RuleID   int64
	Position int
	Field    ConditionField
	Operator ConditionOperator
	Value    string
}

type RuleAction struct {
	ID     int64
	RuleID int64
	Action ActionKind
	Target string
}

// GetRules returns all of a user's rules ordered by ascending priority,
// ID breaking ties, with conditions and actions attached.
func (db *Database) GetRules(ctx context.Context, userAddress string) ([]Rule, error) {
	userAddress = helpers.NormalizeAddress(userAddress)

	rows, err := db.TimedQuery(ctx, "rules_list", `
		SELECT id, user_address, name, priority, match_mode, enabled, stop_processing, is_system
		FROM rules
		WHERE user_address = $1
		ORDER BY priority ASC, id ASC
	`, userAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	byID := make(map[int64]*Rule)
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.ID, &r.UserAddress, &r.Name, &r.Priority,
			&r.MatchMode, &r.Enabled, &r.StopProcessing, &r.IsSystem); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	for i := range rules {
		byID[rules[i].ID] = &rules[i]
	}
	if len(rules) == 0 {
		return rules, nil
	}

	condRows, err := db.ReadPool.Query(ctx, `
		SELECT c.id, c.rule_id, c.position, c.field, c.operator, c.value
		FROM rule_conditions c
		JOIN rules r ON r.id = c.rule_id
		WHERE r.user_address = $1
		ORDER BY c.rule_id, c.position, c.id
	`, userAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule conditions: %w", err)
	}
	defer condRows.Close()
	for condRows.Next() {
		var c RuleCondition
		if err := condRows.Scan(&c.ID, &c.RuleID, &c.Position, &c.Field, &c.Operator, &c.Value); err != nil {
			return nil, fmt.Errorf("failed to scan rule condition: %w", err)
		}
		if r, ok := byID[c.RuleID]; ok {
			r.Conditions = append(r.Conditions, c)
		}
	}
	if err := condRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule conditions: %w", err)
	}

	actRows, err := db.ReadPool.Query(ctx, `
		SELECT a.id, a.rule_id, a.action, a.target
		FROM rule_actions a
		JOIN rules r ON r.id = a.rule_id
		WHERE r.user_address = $1
		ORDER BY a.rule_id, a.id
	`, userAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule actions: %w", err)
	}
	defer actRows.Close()
	for actRows.Next() {
		var a RuleAction
		if err := actRows.Scan(&a.ID, &a.RuleID, &a.Action, &a.Target); err != nil {
			return nil, fmt.Errorf("failed to scan rule action: %w", err)
		}
		if r, ok := byID[a.RuleID]; ok {
			r.Actions = append(r.Actions, a)
		}
	}
	if err := actRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule actions: %w", err)
	}

	return rules, nil
}

// HasRules reports whether the user owns at least one rule.
func (db *Database) HasRules(ctx context.Context, userAddress string) (bool, error) {
	var exists bool
	err := db.ReadPool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM rules WHERE user_address = $1)
	`, helpers.NormalizeAddress(userAddress)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for rules: %w", err)
	}
	return exists, nil
}

// AddRule inserts a rule with its conditions and actions atomically and
// returns the assigned ID.
func (db *Database) AddRule(ctx context.Context, rule *Rule) (int64, error) {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return 0, consts.ErrDBBeginTransactionFailed
	}
	defer tx.Rollback(ctx)

	id, err := insertRuleTx(ctx, tx, rule)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("[DB] failed to commit rule insert: %v", err)
		return 0, consts.ErrDBCommitTransactionFailed
	}
	return id, nil
}

func insertRuleTx(ctx context.Context, tx pgx.Tx, rule *Rule) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO rules (user_address, name, priority, match_mode, enabled, stop_processing, is_system)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, helpers.NormalizeAddress(rule.UserAddress), rule.Name, rule.Priority,
		rule.MatchMode, rule.Enabled, rule.StopProcessing, rule.IsSystem).Scan(&id)
	if err != nil {
		return 0, consts.ErrDBInsertFailed
	}

	for i, c := range rule.Conditions {
		_, err := tx.Exec(ctx, `
			INSERT INTO rule_conditions (rule_id, position, field, operator, value)
			VALUES ($1, $2, $3, $4, $5)
		`, id, i, c.Field, c.Operator, c.Value)
		if err != nil {
			return 0, consts.ErrDBInsertFailed
		}
	}
	for _, a := range rule.Actions {
		_, err := tx.Exec(ctx, `
			INSERT INTO rule_actions (rule_id, action, target)
			VALUES ($1, $2, $3)
		`, id, a.Action, a.Target)
		if err != nil {
			return 0, consts.ErrDBInsertFailed
		}
	}
	return id, nil
}

// UpdateRule replaces a rule's definition, conditions and actions included,
// in one transaction. Ownership is part of the predicate so a user cannot
// touch another user's rule.
func (db *Database) UpdateRule(ctx context.Context, rule *Rule) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return consts.ErrDBBeginTransactionFailed
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE rules
		SET name = $3, priority = $4, match_mode = $5, enabled = $6, stop_processing = $7
		WHERE id = $1 AND user_address = $2
	`, rule.ID, helpers.NormalizeAddress(rule.UserAddress), rule.Name,
		rule.Priority, rule.MatchMode, rule.Enabled, rule.StopProcessing)
	if err != nil {
		return consts.ErrDBUpdateFailed
	}
	if tag.RowsAffected() == 0 {
		return consts.ErrRuleNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM rule_conditions WHERE rule_id = $1`, rule.ID); err != nil {
		return consts.ErrDBUpdateFailed
	}
	if _, err := tx.Exec(ctx, `DELETE FROM rule_actions WHERE rule_id = $1`, rule.ID); err != nil {
		return consts.ErrDBUpdateFailed
	}

	for i, c := range rule.Conditions {
		_, err := tx.Exec(ctx, `
			INSERT INTO rule_conditions (rule_id, position, field, operator, value)
			VALUES ($1, $2, $3, $4, $5)
		`, rule.ID, i, c.Field, c.Operator, c.Value)
		if err != nil {
			return consts.ErrDBInsertFailed
		}
	}
	for _, a := range rule.Actions {
		_, err := tx.Exec(ctx, `
			INSERT INTO rule_actions (rule_id, action, target)
			VALUES ($1, $2, $3)
		`, rule.ID, a.Action, a.Target)
		if err != nil {
			return consts.ErrDBInsertFailed
		}
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("[DB] failed to commit rule update: %v", err)
		return consts.ErrDBCommitTransactionFailed
	}
	return nil
}

// DeleteRule removes a rule; conditions and actions go with it by cascade.
func (db *Database) DeleteRule(ctx context.Context, userAddress string, id int64) error {
	tag, err := db.WritePool.Exec(ctx, `
		DELETE FROM rules WHERE id = $1 AND user_address = $2
	`, id, helpers.NormalizeAddress(userAddress))
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return consts.ErrRuleNotFound
	}
	return nil
}

// SeedDefaultRules installs the given rule set and its target folders for a
// user who has none. The per-user advisory lock serializes concurrent
// deliveries for the same mailbox, and the emptiness check is repeated
// under the lock, so racing seeders produce exactly one rule set.
func (db *Database) SeedDefaultRules(ctx context.Context, userAddress string, rules []Rule) error {
	userAddress = helpers.NormalizeAddress(userAddress)

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return consts.ErrDBBeginTransactionFailed
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userAddress); err != nil {
		return fmt.Errorf("failed to take seeding lock: %w", err)
	}

	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM rules WHERE user_address = $1)
	`, userAddress).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to re-check rules under lock: %w", err)
	}
	if exists {
		return nil
	}

	for i := range rules {
		r := rules[i]
		r.UserAddress = userAddress
		if _, err := insertRuleTx(ctx, tx, &r); err != nil {
			return fmt.Errorf("failed to seed rule %q: %w", r.Name, err)
		}
		for _, a := range r.Actions {
			if a.Action == ActionMoveToFolder && a.Target != "" {
				if err := createFolderTx(ctx, tx, userAddress, a.Target); err != nil {
					return fmt.Errorf("failed to create folder %q for seeded rule: %w", a.Target, err)
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("[DB] failed to commit rule seeding for %s: %v", userAddress, err)
		return consts.ErrDBCommitTransactionFailed
	}

	metrics.RuleSetsSeeded.Inc()
	return nil
}
