package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingT struct {
	messages []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.messages = append(r.messages, fmt.Sprintf(format, args...))
}

func TestTextAsserter_Defaults(t *testing.T) {
	opts := NewTextAsserter(t).Options()

	assert.True(t, opts.TrimSpace, "TrimSpace MUST default to true")
	assert.True(t, opts.IgnoreTrailingWhitespace, "IgnoreTrailingWhitespace MUST default to true")
	assert.False(t, opts.IgnoreEmptyLines, "IgnoreEmptyLines MUST default to false")
	assert.False(t, opts.EnableColors, "EnableColors MUST default to false")
}

func TestTextAsserter_Normalization(t *testing.T) {
	tests := []struct {
		name     string
		opts     []TextOption
		actual   string
		expected string
		equal    bool
	}{
		{name: "identical", actual: "a\nb", expected: "a\nb", equal: true},
		{name: "trailing whitespace ignored", actual: "a  \nb\t", expected: "a\nb", equal: true},
		{name: "surrounding newlines trimmed", actual: "\n\na\nb\n", expected: "a\nb", equal: true},
		{name: "empty lines significant by default", actual: "a\n\nb", expected: "a\nb", equal: false},
		{name: "empty lines ignored", opts: []TextOption{WithIgnoreEmptyLines(true)}, actual: "a\n\nb", expected: "a\nb", equal: true},
		{name: "trim disabled", opts: []TextOption{WithTrimSpace(false)}, actual: "\na", expected: "a", equal: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := &recordingT{}
			ok := NewTextAsserter(rt, tt.opts...).Assert(tt.actual, tt.expected)
			assert.Equal(t, tt.equal, ok)
			assert.Equal(t, tt.equal, len(rt.messages) == 0)
		})
	}
}

func TestTextAsserter_ReportsUnifiedDiff(t *testing.T) {
	rt := &recordingT{}
	NewTextAsserter(rt).Assert("heart_rate: 88 bpm", "heart_rate: 72 bpm")

	require.Len(t, rt.messages, 1)
	assert.Contains(t, rt.messages[0], "--- expected")
	assert.Contains(t, rt.messages[0], "+++ actual")
	assert.Contains(t, rt.messages[0], "-heart_rate: 72 bpm")
	assert.Contains(t, rt.messages[0], "+heart_rate: 88 bpm")
}
