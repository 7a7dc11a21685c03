package campaign

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// Status of a campaign. Anything but active never matches.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

// Condition is a closed set of header match operators. Unknown conditions
// are rejected at construction time via ParseCondition, never silently
// treated as a non-match at evaluation time.
type Condition string

const (
	CondEquals     Condition = "equals"
	CondContains   Condition = "contains"
	CondStartsWith Condition = "startsWith"
	CondEndsWith   Condition = "endsWith"
	CondMatches    Condition = "matches"
	CondExists     Condition = "exists"
	CondNotExists  Condition = "notExists"
)

func ParseCondition(s string) (Condition, error) {
	switch Condition(s) {
	case CondEquals, CondContains, CondStartsWith, CondEndsWith, CondMatches, CondExists, CondNotExists:
		return Condition(s), nil
	}
	return "", fmt.Errorf("unknown condition %q", s)
}

// RequiresValue reports whether the condition needs a comparison value.
func (c Condition) RequiresValue() bool {
	return c != CondExists && c != CondNotExists
}

// HeaderRule is one header-based targeting condition. Header names match
// case-insensitively; all rules of a campaign must pass (logical AND).
type HeaderRule struct {
	HeaderName string    `json:"header_name"`
	Condition  Condition `json:"condition"`
	Value      string    `json:"value,omitempty"`
	Negate     bool      `json:"negate,omitempty"`
}

func (r HeaderRule) Validate() error {
	if r.HeaderName == "" {
		return fmt.Errorf("header rule: header_name is required")
	}
	if _, err := ParseCondition(string(r.Condition)); err != nil {
		return fmt.Errorf("header rule %q: %w", r.HeaderName, err)
	}
	if r.Condition.RequiresValue() && r.Value == "" {
		return fmt.Errorf("header rule %q: condition %s requires a value", r.HeaderName, r.Condition)
	}
	if r.Condition == CondMatches {
		if _, err := regexp.Compile(r.Value); err != nil {
			return fmt.Errorf("header rule %q: invalid pattern: %w", r.HeaderName, err)
		}
	}
	return nil
}

// UnmarshalJSON enforces the closed condition set on decode, so malformed
// stored rules surface when read rather than evaluating to false.
func (r *HeaderRule) UnmarshalJSON(data []byte) error {
	type plain HeaderRule
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if _, err := ParseCondition(string(p.Condition)); err != nil {
		return err
	}
	*r = HeaderRule(p)
	return nil
}

// IdentityRule accepts or denies a user email against a glob pattern
// ("*" matches any sequence). Deny rules take precedence.
type IdentityRule struct {
	Pattern string `json:"pattern"`
	Allow   bool   `json:"allow"`
}

// Campaign binds a product/discount subset to a targeting rule set.
// The engine treats campaigns as read-only per request.
type Campaign struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`

	ProductIDs  []int64      `json:"product_ids"`
	DiscountIDs []int64      `json:"discount_ids"`
	HeaderRules []HeaderRule `json:"header_target_rules,omitempty"`

	// TargetAuthenticated is tri-state: nil means no constraint, true
	// requires an identified user, false requires an anonymous caller.
	TargetAuthenticated *bool          `json:"target_authenticated_user,omitempty"`
	IdentityRules       []IdentityRule `json:"target_user_identity_rules,omitempty"`
	IPRanges            []string       `json:"target_ip_ranges,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c Campaign) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("campaign: name is required")
	}
	switch c.Status {
	case StatusDraft, StatusActive, StatusPaused:
	default:
		return fmt.Errorf("campaign: unknown status %q", c.Status)
	}
	if c.StartDate != nil && c.EndDate != nil && c.EndDate.Before(*c.StartDate) {
		return fmt.Errorf("campaign: end_date before start_date")
	}
	for _, r := range c.HeaderRules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("campaign: %w", err)
		}
	}
	for _, r := range c.IdentityRules {
		if r.Pattern == "" {
			return fmt.Errorf("campaign: identity rule pattern is required")
		}
	}
	return nil
}

// InWindow reports whether now falls inside the campaign's date window.
// Comparison is date-only and inclusive on both ends: any time of day on
// the boundary dates counts as in-window. Nil bounds are open.
func (c Campaign) InWindow(now time.Time) bool {
	day := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	today := day(now)
	if c.StartDate != nil && today.Before(day(*c.StartDate)) {
		return false
	}
	if c.EndDate != nil && today.After(day(*c.EndDate)) {
		return false
	}
	return true
}
