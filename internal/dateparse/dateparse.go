// Package dateparse normalises the heterogeneous timestamp strings the
// platform emits into UTC instants.
package dateparse

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// layouts in priority order. The first four cover what the platform's
// <time datetime="..."> attribute and API leftovers actually produce; the
// bare forms are assumed UTC.
var layouts = []string{
	"2006-01-02T15:04:05Z",
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	time.RFC3339Nano,
	"Mon Jan 2 15:04:05 -0700 2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Parser converts timestamp strings to UTC instants with a deterministic
// fallback. The zero-value Parser is usable but silent.
type Parser struct {
	logger *zap.Logger

	// now is swappable for tests.
	now func() time.Time
}

func New(logger *zap.Logger) *Parser {
	return &Parser{logger: logger, now: time.Now}
}

// Parse returns the UTC instant described by s, at whole-second precision;
// fractional seconds in the input are dropped. Unparseable input resolves
// to the current time; a WARN diagnostic is emitted but Parse never fails.
func (p *Parser) Parse(s string) time.Time {
	s = strings.TrimSpace(s)
	if s != "" {
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC().Truncate(time.Second)
			}
		}
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC()
		}
	}

	if p.logger != nil {
		p.logger.Warn("unparseable timestamp, falling back to now", zap.String("input", s))
	}
	if p.now != nil {
		return p.now().UTC()
	}
	return time.Now().UTC()
}
