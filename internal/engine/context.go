package engine

import (
	"strings"
	"time"
)

// RequestContext carries everything the resolver needs about one inbound
// call. Header keys are canonicalized to lowercase at construction so all
// lookups are case-insensitive. Now is injected for testability.
type RequestContext struct {
	headers   map[string]string
	UserEmail string
	ClientIP  string
	Now       time.Time
}

func NewRequestContext(headers map[string]string, userEmail, clientIP string, now time.Time) RequestContext {
	lower := make(map[string]string, len(headers))
	for k, v := range headers {
		lower[strings.ToLower(k)] = v
	}
	return RequestContext{headers: lower, UserEmail: userEmail, ClientIP: clientIP, Now: now}
}

// Header returns the value for a header name, matched case-insensitively.
func (c RequestContext) Header(name string) (string, bool) {
	v, ok := c.headers[strings.ToLower(name)]
	return v, ok
}
