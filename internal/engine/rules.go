package engine

import (
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"agent-pricing-engine/internal/campaign"
)

// patternCache holds compiled regexes keyed by pattern text so the hot
// request path never recompiles a rule's pattern. Failed compilations are
// cached too.
var patternCache sync.Map // string -> patternEntry

type patternEntry struct {
	re  *regexp.Regexp
	err error
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if v, ok := patternCache.Load(pattern); ok {
		e := v.(patternEntry)
		return e.re, e.err
	}
	re, err := regexp.Compile(pattern)
	patternCache.Store(pattern, patternEntry{re: re, err: err})
	return re, err
}

// EvaluateRule applies a single header targeting rule to the request
// context. A malformed rule (invalid regex) degrades to a non-match and is
// logged; it never fails the request or other rules.
func EvaluateRule(r campaign.HeaderRule, rctx RequestContext) bool {
	value, present := rctx.Header(r.HeaderName)

	var result bool
	if r.Condition.RequiresValue() && r.Value == "" {
		log.Warn().
			Str("header", r.HeaderName).
			Str("condition", string(r.Condition)).
			Msg("rule missing required value, treating as non-match")
		if r.Negate {
			return true
		}
		return false
	}
	switch r.Condition {
	case campaign.CondExists:
		result = present
	case campaign.CondNotExists:
		result = !present
	case campaign.CondEquals:
		result = present && value == r.Value
	case campaign.CondContains:
		result = present && strings.Contains(value, trimWildcards(r.Value, true, true))
	case campaign.CondStartsWith:
		result = present && strings.HasPrefix(value, trimWildcards(r.Value, false, true))
	case campaign.CondEndsWith:
		result = present && strings.HasSuffix(value, trimWildcards(r.Value, true, false))
	case campaign.CondMatches:
		if present {
			re, err := compilePattern(r.Value)
			if err != nil {
				log.Warn().
					Str("header", r.HeaderName).
					Str("pattern", r.Value).
					Err(err).
					Msg("invalid rule pattern, treating as non-match")
			} else {
				// Search semantics: match anywhere unless the pattern anchors itself.
				result = re.MatchString(value)
			}
		}
	default:
		// Unreachable for rules built through ParseCondition; stored data
		// that bypassed validation still must not silently pass.
		log.Warn().Str("condition", string(r.Condition)).Msg("unknown rule condition")
	}

	if r.Negate {
		return !result
	}
	return result
}

// EvaluateAll is the logical AND over all rules. An empty rule list matches
// every context ("target all traffic").
func EvaluateAll(rules []campaign.HeaderRule, rctx RequestContext) bool {
	for _, r := range rules {
		if !EvaluateRule(r, rctx) {
			return false
		}
	}
	return true
}

// trimWildcards strips "*" placeholders from the ends of a rule value so it
// can be used in a plain substring/prefix/suffix test.
func trimWildcards(v string, leading, trailing bool) string {
	if leading {
		v = strings.TrimLeft(v, "*")
	}
	if trailing {
		v = strings.TrimRight(v, "*")
	}
	return v
}
