package chart

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Week(t *testing.T) {
	s := Generate(Week, DefaultSeed)

	assert.Equal(t, Week, s.View)
	assert.Equal(t, []int{48, 36, 10, 19, 57, 8, 19}, s.Values)
	assert.Equal(t, 28, s.Average)
	assert.Equal(t, []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}, s.Labels)
	assert.Equal(t, s.Labels, s.AxisLabels())
}

func TestGenerate_Views(t *testing.T) {
	day := Generate(Day, DefaultSeed)
	assert.Len(t, day.Values, 24)
	assert.Equal(t, Values(24, DefaultSeed), day.Values)
	assert.Equal(t, 40, day.Average)
	assert.Equal(t, "00h", day.AxisLabels()[0])
	assert.Equal(t, "24h", day.AxisLabels()[23])

	month := Generate(Month, DefaultSeed)
	assert.Len(t, month.Values, 30)
	assert.Equal(t, Values(30, DefaultSeed+3), month.Values)
	assert.Equal(t, 34, month.Average)
	assert.Equal(t, []string{"W1", "W2", "W3", "W4", "W5"}, month.Labels)

	assert.Equal(t, Week, Generate("bogus", 1).View, "unknown view MUST fall back to week")
}

func TestValues_Deterministic(t *testing.T) {
	assert.Equal(t, Values(30, 42), Values(30, 42))
	assert.NotEqual(t, Values(7, 1), Values(7, 2))

	for _, v := range Values(100, 5) {
		assert.GreaterOrEqual(t, v, 5)
		assert.LessOrEqual(t, v, 65)
	}
	assert.Empty(t, Values(0, 1))
}

func TestParseView(t *testing.T) {
	for in, want := range map[string]View{"": Week, "day": Day, " Month ": Month, "WEEK": Week} {
		got, err := ParseView(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseView("year")
	assert.ErrorContains(t, err, `unknown chart view "year"`)
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Generate(Day, 3).Render(&buf, "Activity"))

	html := buf.String()
	assert.Contains(t, html, "<html")
	assert.Contains(t, html, "Activity")
	assert.Contains(t, html, "echarts")
}
