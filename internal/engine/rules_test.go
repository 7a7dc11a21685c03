package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"agent-pricing-engine/internal/campaign"
)

func ctxWithHeaders(headers map[string]string) RequestContext {
	return NewRequestContext(headers, "", "", time.Now())
}

func TestEvaluateRule_Conditions(t *testing.T) {
	headers := map[string]string{
		"User-Agent":   "ChatGPT-Agent/1.0",
		"X-Session-Id": "abc123",
	}

	tests := []struct {
		name string
		rule campaign.HeaderRule
		want bool
	}{
		{"equals match", campaign.HeaderRule{HeaderName: "X-Session-Id", Condition: campaign.CondEquals, Value: "abc123"}, true},
		{"equals is case-sensitive on value", campaign.HeaderRule{HeaderName: "X-Session-Id", Condition: campaign.CondEquals, Value: "ABC123"}, false},
		{"contains", campaign.HeaderRule{HeaderName: "User-Agent", Condition: campaign.CondContains, Value: "GPT"}, true},
		{"contains miss", campaign.HeaderRule{HeaderName: "User-Agent", Condition: campaign.CondContains, Value: "Claude"}, false},
		{"startsWith", campaign.HeaderRule{HeaderName: "User-Agent", Condition: campaign.CondStartsWith, Value: "ChatGPT"}, true},
		{"startsWith with trailing wildcard", campaign.HeaderRule{HeaderName: "User-Agent", Condition: campaign.CondStartsWith, Value: "ChatGPT*"}, true},
		{"endsWith", campaign.HeaderRule{HeaderName: "User-Agent", Condition: campaign.CondEndsWith, Value: "/1.0"}, true},
		{"endsWith with leading wildcard", campaign.HeaderRule{HeaderName: "User-Agent", Condition: campaign.CondEndsWith, Value: "*/1.0"}, true},
		{"contains with wildcards", campaign.HeaderRule{HeaderName: "User-Agent", Condition: campaign.CondContains, Value: "*Agent*"}, true},
		{"matches search semantics", campaign.HeaderRule{HeaderName: "User-Agent", Condition: campaign.CondMatches, Value: "(ChatGPT|Claude)"}, true},
		{"matches anchored by pattern", campaign.HeaderRule{HeaderName: "User-Agent", Condition: campaign.CondMatches, Value: "^Claude"}, false},
		{"exists", campaign.HeaderRule{HeaderName: "User-Agent", Condition: campaign.CondExists}, true},
		{"notExists", campaign.HeaderRule{HeaderName: "X-Missing", Condition: campaign.CondNotExists}, true},
		{"missing header cannot equal", campaign.HeaderRule{HeaderName: "X-Missing", Condition: campaign.CondEquals, Value: ""}, false},
		{"missing header cannot contain", campaign.HeaderRule{HeaderName: "X-Missing", Condition: campaign.CondContains, Value: "x"}, false},
		{"missing header cannot match regex", campaign.HeaderRule{HeaderName: "X-Missing", Condition: campaign.CondMatches, Value: ".*"}, false},
		{"invalid regex degrades to non-match", campaign.HeaderRule{HeaderName: "User-Agent", Condition: campaign.CondMatches, Value: "(["}, false},
		{"empty required value degrades to non-match", campaign.HeaderRule{HeaderName: "User-Agent", Condition: campaign.CondContains, Value: ""}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateRule(tt.rule, ctxWithHeaders(headers)))
		})
	}
}

func TestEvaluateRule_HeaderLookupIsCaseInsensitive(t *testing.T) {
	rctx := ctxWithHeaders(map[string]string{"X-Foo": "bar"})

	rule := campaign.HeaderRule{HeaderName: "x-foo", Condition: campaign.CondEquals, Value: "bar"}
	assert.True(t, EvaluateRule(rule, rctx))

	rule.HeaderName = "X-FOO"
	assert.True(t, EvaluateRule(rule, rctx))
}

func TestEvaluateRule_ExistenceIgnoresValue(t *testing.T) {
	rctx := ctxWithHeaders(map[string]string{"X-Foo": "bar"})

	for _, value := range []string{"", "bar", "anything at all"} {
		assert.True(t, EvaluateRule(campaign.HeaderRule{HeaderName: "X-Foo", Condition: campaign.CondExists, Value: value}, rctx))
		assert.False(t, EvaluateRule(campaign.HeaderRule{HeaderName: "X-Foo", Condition: campaign.CondNotExists, Value: value}, rctx))
		assert.False(t, EvaluateRule(campaign.HeaderRule{HeaderName: "X-Bar", Condition: campaign.CondExists, Value: value}, rctx))
		assert.True(t, EvaluateRule(campaign.HeaderRule{HeaderName: "X-Bar", Condition: campaign.CondNotExists, Value: value}, rctx))
	}
}

func TestEvaluateRule_NegateInvertsExactly(t *testing.T) {
	headers := map[string]string{"User-Agent": "ChatGPT-Agent/1.0"}
	rctx := ctxWithHeaders(headers)

	conditions := []campaign.Condition{
		campaign.CondEquals, campaign.CondContains, campaign.CondStartsWith,
		campaign.CondEndsWith, campaign.CondMatches, campaign.CondExists, campaign.CondNotExists,
	}
	for _, cond := range conditions {
		for _, header := range []string{"User-Agent", "X-Missing"} {
			rule := campaign.HeaderRule{HeaderName: header, Condition: cond, Value: "ChatGPT"}
			base := EvaluateRule(rule, rctx)
			rule.Negate = true
			assert.Equal(t, !base, EvaluateRule(rule, rctx), "condition %s header %s", cond, header)
		}
	}
}

func TestEvaluateAll(t *testing.T) {
	rctx := ctxWithHeaders(map[string]string{"User-Agent": "Claude/2.0", "Accept": "application/json"})

	t.Run("empty rule list matches everything", func(t *testing.T) {
		assert.True(t, EvaluateAll(nil, rctx))
	})

	t.Run("all rules must pass", func(t *testing.T) {
		rules := []campaign.HeaderRule{
			{HeaderName: "User-Agent", Condition: campaign.CondContains, Value: "Claude"},
			{HeaderName: "Accept", Condition: campaign.CondEquals, Value: "application/json"},
		}
		assert.True(t, EvaluateAll(rules, rctx))

		rules = append(rules, campaign.HeaderRule{HeaderName: "X-Missing", Condition: campaign.CondExists})
		assert.False(t, EvaluateAll(rules, rctx))
	})

	t.Run("one invalid rule does not abort the others", func(t *testing.T) {
		rules := []campaign.HeaderRule{
			{HeaderName: "User-Agent", Condition: campaign.CondMatches, Value: "([", Negate: true}, // broken pattern, negated non-match passes
			{HeaderName: "Accept", Condition: campaign.CondExists},
		}
		assert.True(t, EvaluateAll(rules, rctx))
	})
}
