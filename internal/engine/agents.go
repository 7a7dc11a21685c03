package engine

import (
	"regexp"
	"strings"

	"agent-pricing-engine/internal/campaign"
)

var groupPattern = regexp.MustCompile(`\((.*?)\)`)

// EligibleAgents extracts AI agent names from User-Agent regex rules of the
// common alternation form ".*(ChatGPT|Claude).*". Used to annotate campaign
// reads on the admin API; best-effort, purely informational.
func EligibleAgents(rules []campaign.HeaderRule) []string {
	var names []string
	for _, r := range rules {
		if !strings.EqualFold(r.HeaderName, "user-agent") || r.Condition != campaign.CondMatches {
			continue
		}
		for _, group := range groupPattern.FindAllStringSubmatch(r.Value, -1) {
			for _, name := range strings.Split(group[1], "|") {
				if name = strings.TrimSpace(name); name != "" {
					names = append(names, name)
				}
			}
		}
	}
	return names
}
