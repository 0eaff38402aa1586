// Package rules evaluates a user's routing rules against an inbound
// message and seeds the default rule set for new mailboxes.
package rules

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/okapimail/okapi/db"
	"github.com/okapimail/okapi/logger"
	"github.com/okapimail/okapi/pkg/metrics"
)

// Facts are the message attributes rule conditions inspect. They are
// extracted once per message and shared across all recipients' rule runs.
type Facts struct {
	Sender        string
	Subject       string
	ListID        string
	AutoGenerated bool
}

// Result is the aggregated outcome of a rule run. TargetFolder is nil when
// no rule filed the message. Labels keep the rules' casing and order,
// duplicates included; consumers dedup for display if they care.
// StopProcessing records that a firing rule halted the run.
type Result struct {
	TargetFolder   *string
	Labels         []string
	MarkAsRead     bool
	Flagged        bool
	Deleted        bool
	StopProcessing bool
}

// Evaluate runs rules in priority order and aggregates their actions.
// Later move actions override earlier ones; labels accumulate; boolean
// actions stick once set. A firing rule with stop-processing set halts the
// run after its own actions are applied. Disabled rules are skipped.
func Evaluate(ruleSet []db.Rule, facts Facts) Result {
	metrics.RuleEvaluationsTotal.Inc()

	var result Result

	for i := range ruleSet {
		rule := &ruleSet[i]
		if !rule.Enabled {
			continue
		}
		if !matches(rule, facts) {
			continue
		}
		metrics.RuleMatchesTotal.WithLabelValues(rule.Name).Inc()

		for _, action := range rule.Actions {
			switch action.Action {
			case db.ActionMoveToFolder:
				target := action.Target
				result.TargetFolder = &target
			case db.ActionAddLabel:
				if label := strings.TrimSpace(action.Target); label != "" {
					result.Labels = append(result.Labels, label)
				}
			case db.ActionMarkAsRead:
				result.MarkAsRead = true
			case db.ActionFlag:
				result.Flagged = true
			case db.ActionDelete:
				result.Deleted = true
			default:
				logger.Warnf("rules: unknown action %q in rule %q", action.Action, rule.Name)
			}
		}

		if rule.StopProcessing {
			result.StopProcessing = true
			break
		}
	}
	return result
}

// matches applies the rule's conditions under its match mode. A rule with
// no conditions never fires.
func matches(rule *db.Rule, facts Facts) bool {
	if len(rule.Conditions) == 0 {
		return false
	}
	switch rule.MatchMode {
	case db.MatchAll:
		for _, c := range rule.Conditions {
			if !evalCondition(c, facts) {
				return false
			}
		}
		return true
	default:
		for _, c := range rule.Conditions {
			if evalCondition(c, facts) {
				return true
			}
		}
		return false
	}
}

func evalCondition(c db.RuleCondition, facts Facts) bool {
	var value string
	switch c.Field {
	case db.FieldFrom:
		value = facts.Sender
	case db.FieldSubject:
		value = facts.Subject
	case db.FieldListID:
		value = facts.ListID
	case db.FieldAutoGenerated:
		value = strconv.FormatBool(facts.AutoGenerated)
	default:
		return false
	}

	switch c.Operator {
	case db.OperatorContains:
		return strings.Contains(strings.ToLower(value), strings.ToLower(c.Value))
	case db.OperatorRegex:
		re, err := regexp.Compile(c.Value)
		if err != nil {
			logger.Warnf("rules: invalid pattern %q: %v", c.Value, err)
			return false
		}
		return re.MatchString(value)
	case db.OperatorIs:
		return strings.EqualFold(value, c.Value)
	default:
		return false
	}
}
