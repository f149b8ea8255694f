package service

import (
	"time"

	"github.com/irb-determination-server/internal/domain"
)

// ConsistencyChecker runs every consistency rule against a snapshot.
// Rules are independent and all of them run on every call.
type ConsistencyChecker struct {
	rules []*ConsistencyRule
	now   func() time.Time
}

// NewConsistencyChecker creates a checker that uses the wall clock for
// temporal rules.
func NewConsistencyChecker() *ConsistencyChecker {
	return &ConsistencyChecker{
		rules: consistencyRules(),
		now:   time.Now,
	}
}

// WithClock returns a copy of the checker that reads the time from now.
func (c *ConsistencyChecker) WithClock(now func() time.Time) *ConsistencyChecker {
	return &ConsistencyChecker{rules: c.rules, now: now}
}

// Check evaluates the snapshot against the current time.
func (c *ConsistencyChecker) Check(snapshot *domain.AnswerSnapshot) []domain.ConsistencyIssue {
	return c.CheckAt(snapshot, c.now())
}

// CheckAt evaluates the snapshot against an explicit reference time. Issues
// are returned in rule declaration order; the snapshot is never modified.
func (c *ConsistencyChecker) CheckAt(snapshot *domain.AnswerSnapshot, now time.Time) []domain.ConsistencyIssue {
	if snapshot == nil {
		snapshot = domain.NewSnapshot()
	}

	issues := make([]domain.ConsistencyIssue, 0)
	for _, rule := range c.rules {
		f := rule.Check(snapshot, now)
		if f == nil {
			continue
		}
		issues = append(issues, domain.ConsistencyIssue{
			RuleID:   rule.ID,
			Severity: f.severity,
			Section:  rule.Section,
			Field:    rule.Field,
			Title:    f.title,
			Message:  f.message,
		})
	}
	return issues
}

// Rules lists the consistency rules in declaration order.
func (c *ConsistencyChecker) Rules() []ConsistencyRuleInfo {
	out := make([]ConsistencyRuleInfo, 0, len(c.rules))
	for _, rule := range c.rules {
		out = append(out, ConsistencyRuleInfo{
			ID:      rule.ID,
			Class:   rule.Class,
			Section: rule.Section,
			Field:   rule.Field,
		})
	}
	return out
}
