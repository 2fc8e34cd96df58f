package dateparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			name:  "iso with Z",
			input: "2024-01-15T10:30:00Z",
			want:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:  "iso with numeric offset",
			input: "2024-01-15T10:30:00+02:00",
			want:  time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC),
		},
		{
			name:  "iso with milliseconds dropped",
			input: "2024-01-15T10:30:00.123Z",
			want:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:  "iso with nanoseconds dropped",
			input: "2024-01-15T10:30:00.123456789Z",
			want:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:  "legacy ctime form",
			input: "Mon Jan 15 10:30:00 +0000 2024",
			want:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:  "space separated datetime",
			input: "2024-01-15 10:30:00",
			want:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:  "t separated datetime without zone",
			input: "2024-01-15T10:30:00",
			want:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:  "bare date",
			input: "2024-01-15",
			want:  time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "epoch seconds",
			input: "1705314600",
			want:  time.Unix(1705314600, 0).UTC(),
		},
		{
			name:  "padded input",
			input: "  2024-01-15T10:30:00Z  ",
			want:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
	}

	p := New(zap.NewNop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Parse(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseFallsBackToNow(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	p := New(zap.NewNop())
	p.now = func() time.Time { return fixed }

	for _, input := range []string{"", "garbage", "15th of January", "2024-99-99"} {
		assert.Equal(t, fixed, p.Parse(input), "input %q", input)
	}
}

func TestParseZeroValueParser(t *testing.T) {
	var p Parser
	got := p.Parse("not a date")
	assert.WithinDuration(t, time.Now().UTC(), got, 5*time.Second)
}
