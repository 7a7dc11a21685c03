package engine

import (
	"net/netip"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"agent-pricing-engine/internal/campaign"
)

// Resolve returns the campaigns applicable to the request, most recently
// started first. Callers typically treat the first entry as the winner;
// personalization unions discounts across all of them.
func Resolve(campaigns []campaign.Campaign, rctx RequestContext) []campaign.Campaign {
	var out []campaign.Campaign
	for _, c := range campaigns {
		if c.Status != campaign.StatusActive {
			continue
		}
		if !c.InWindow(rctx.Now) {
			continue
		}
		if !EvaluateAll(c.HeaderRules, rctx) {
			continue
		}
		if !authConstraintOK(c, rctx) {
			continue
		}
		if !identityRulesOK(c.IdentityRules, rctx.UserEmail) {
			continue
		}
		if !ipRangesOK(c.IPRanges, rctx.ClientIP) {
			continue
		}
		out = append(out, c)
	}

	// Tie-break: most recent start date wins; equal dates fall back to ID
	// so the order is fully deterministic.
	slices.SortStableFunc(out, func(a, b campaign.Campaign) int {
		at, bt := startOf(a), startOf(b)
		if at.After(bt) {
			return -1
		}
		if bt.After(at) {
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func startOf(c campaign.Campaign) time.Time {
	if c.StartDate != nil {
		return *c.StartDate
	}
	return time.Time{}
}

func authConstraintOK(c campaign.Campaign, rctx RequestContext) bool {
	if c.TargetAuthenticated == nil {
		return true
	}
	if *c.TargetAuthenticated {
		return rctx.UserEmail != ""
	}
	return rctx.UserEmail == ""
}

// identityRulesOK requires at least one matching allow rule and no matching
// deny rule. Deny wins on conflict.
func identityRulesOK(rules []campaign.IdentityRule, email string) bool {
	if len(rules) == 0 {
		return true
	}

	allowed := false
	for _, r := range rules {
		if !matchGlob(r.Pattern, email) {
			continue
		}
		if !r.Allow {
			return false
		}
		allowed = true
	}
	return allowed
}

func ipRangesOK(ranges []string, clientIP string) bool {
	if len(ranges) == 0 {
		return true
	}
	addr, err := netip.ParseAddr(clientIP)
	if err != nil {
		return false
	}
	for _, r := range ranges {
		prefix, err := netip.ParsePrefix(r)
		if err != nil {
			// Tolerate bare addresses as single-host ranges.
			if single, serr := netip.ParseAddr(r); serr == nil {
				if single == addr {
					return true
				}
				continue
			}
			log.Warn().Str("range", r).Msg("unparseable IP range, skipping")
			continue
		}
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// matchGlob matches s against a pattern where "*" means any sequence.
// Matching is case-insensitive, as emails are.
func matchGlob(pattern, s string) bool {
	pattern = strings.ToLower(pattern)
	s = strings.ToLower(s)

	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return s == pattern
	}

	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]

	last := parts[len(parts)-1]
	if !strings.HasSuffix(s, last) {
		return false
	}
	s = s[:len(s)-len(last)]

	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		idx := strings.Index(s, part)
		if idx < 0 {
			return false
		}
		s = s[idx+len(part):]
	}
	return true
}
