package middleware

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/venikman/ui-morn/pkg/domain"
	"github.com/venikman/ui-morn/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

type piiMiddleware struct {
	next     ports.MirrorStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks values of data part keys
// matching any of the patterns before events reach the mirror. Live
// subscribers still see the original event.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		patterns[i] = re
	}
	return func(next ports.MirrorStore) ports.MirrorStore {
		if len(patterns) == 0 {
			return next
		}
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Publish(ctx context.Context, ev domain.Event) error {
	// Parts are shared with the in-memory log; copy before masking.
	parts := make([]domain.Part, len(ev.Parts))
	for i, p := range ev.Parts {
		parts[i] = p
		if p.Data == nil {
			continue
		}
		var payload any
		if err := json.Unmarshal(p.Data.Payload, &payload); err != nil {
			continue
		}
		if !maskValue(payload, m.patterns) {
			continue
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data := *p.Data
		data.Payload = raw
		parts[i].Data = &data
	}
	ev.Parts = parts
	return m.next.Publish(ctx, ev)
}

func (m *piiMiddleware) Events(ctx context.Context, ownerID string) ([]domain.Event, error) {
	return m.next.Events(ctx, ownerID)
}

// maskValue masks matching keys in place and reports whether anything changed.
func maskValue(v any, patterns []*regexp.Regexp) bool {
	changed := false
	switch t := v.(type) {
	case map[string]any:
		for k, sub := range t {
			if matchAny(k, patterns) {
				t[k] = Mask
				changed = true
				continue
			}
			if maskValue(sub, patterns) {
				changed = true
			}
		}
	case []any:
		for _, sub := range t {
			if maskValue(sub, patterns) {
				changed = true
			}
		}
	}
	return changed
}

func matchAny(key string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
