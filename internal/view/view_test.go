package view

import (
	"bytes"
	"strings"
	"testing"

	"pricecomparator/internal/comparator"
	"pricecomparator/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(current, target *float64, input string) models.Snapshot {
	return models.Snapshot{
		Version:      7,
		CurrentPrice: current,
		TargetPrice:  target,
		TargetInput:  input,
		Comparison:   comparator.Compare(current, target),
	}
}

func ptr(v float64) *float64 { return &v }

func TestRenderNeedsToRise(t *testing.T) {
	m := Render(snapshot(ptr(50000), ptr(55000), "55000"))

	assert.Equal(t, "50000.00", m.CurrentPriceText)
	assert.Equal(t, "55000", m.TargetPriceText)
	require.True(t, m.ShowResult)
	require.NotNil(t, m.Result)

	assert.Equal(t, DirectionRise, m.Result.Direction)
	assert.Equal(t, "Price needs to rise", m.Result.Headline)
	assert.Equal(t, colorRise, m.Result.Color)
	assert.Equal(t, iconRise, m.Result.Icon)
	assert.Equal(t, "$5000.00", m.Result.DifferenceText)
	assert.Equal(t, "10.00%", m.Result.PercentageText)
	assert.Equal(t, dinnerBelowTarget, m.Result.Dinner.Message)
	assert.Equal(t, colorBuyer, m.Result.Dinner.Color)
}

func TestRenderNeedsToFall(t *testing.T) {
	m := Render(snapshot(ptr(60000), ptr(54000), "54000"))

	require.True(t, m.ShowResult)
	assert.Equal(t, DirectionFall, m.Result.Direction)
	assert.Equal(t, "Price needs to fall", m.Result.Headline)
	assert.Equal(t, colorFall, m.Result.Color)
	assert.Equal(t, iconFall, m.Result.Icon)
	assert.Equal(t, "$6000.00", m.Result.DifferenceText)
	assert.Equal(t, "10.00%", m.Result.PercentageText)
	assert.Equal(t, dinnerAtOrAbove, m.Result.Dinner.Message)
}

func TestRenderEqualPricesFall(t *testing.T) {
	m := Render(snapshot(ptr(42000), ptr(42000), "42000"))

	require.True(t, m.ShowResult)
	assert.Equal(t, DirectionFall, m.Result.Direction)
	assert.Equal(t, "$0.00", m.Result.DifferenceText)
	assert.Equal(t, "0.00%", m.Result.PercentageText)
	assert.Equal(t, dinnerAtOrAbove, m.Result.Dinner.Message)
}

func TestRenderHidesResultWithoutBothPrices(t *testing.T) {
	tests := []struct {
		name    string
		current *float64
		target  *float64
		input   string
	}{
		{"no current price", nil, ptr(55000), "55000"},
		{"no target price", ptr(50000), nil, ""},
		{"non-numeric target", ptr(50000), comparator.ParseTarget("abc"), "abc"},
		{"nothing", nil, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Render(snapshot(tt.current, tt.target, tt.input))
			assert.False(t, m.ShowResult)
			assert.Nil(t, m.Result)
			assert.Equal(t, tt.input, m.TargetPriceText)
		})
	}
}

func TestRenderCurrentPriceEmptyBeforeFirstFetch(t *testing.T) {
	m := Render(models.Snapshot{})
	assert.Empty(t, m.CurrentPriceText)
	assert.Equal(t, StaticFooter, m.Footer)
	assert.Equal(t, Title, m.Title)
}

func TestRenderRoundsToTwoDecimals(t *testing.T) {
	m := Render(snapshot(ptr(63123.4567), ptr(70000), "70000"))

	assert.Equal(t, "63123.46", m.CurrentPriceText)
	assert.Equal(t, "$6876.54", m.Result.DifferenceText)
	assert.Equal(t, "10.89%", m.Result.PercentageText)
}

func TestFixed2RoundsBinaryValue(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1.005, "1.00"},
		{2.675, "2.67"},
		{1.015, "1.01"},
		{0.125, "0.13"},
		{50000, "50000.00"},
		{63123.4567, "63123.46"},
		{0, "0.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Fixed2(tt.in), "Fixed2(%v)", tt.in)
	}
}

func TestRenderZeroCurrentPrice(t *testing.T) {
	m := Render(snapshot(ptr(0), ptr(100), "100"))

	require.True(t, m.ShowResult)
	assert.Equal(t, "$100.00", m.Result.DifferenceText)
	assert.Equal(t, undefinedPercentage, m.Result.PercentageText)
	assert.Equal(t, DirectionRise, m.Result.Direction)
}

func TestWritePage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePage(&buf, Render(snapshot(ptr(50000), ptr(55000), "55000")), "page-1"))
	page := buf.String()

	assert.Contains(t, page, "<title>Live Bitcoin Price Comparator</title>")
	assert.Contains(t, page, `value="50000.00"`)
	assert.Contains(t, page, `value="55000"`)
	assert.Contains(t, page, "Price needs to rise")
	assert.Contains(t, page, "$5000.00")
	assert.Contains(t, page, "10.00%")
	assert.Contains(t, page, "Lexander invites for dinner")
	assert.Contains(t, page, "© 2024 All rights reserved")
	assert.NotContains(t, page, `class="result" hidden`)
	assert.Contains(t, page, `var session = "page-1";`)
}

func TestWritePageScriptFollowsStreamedTarget(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePage(&buf, Render(snapshot(ptr(50000), nil, "")), "page-1"))
	page := buf.String()

	// Another tab may change the shared target; the field follows unless this
	// tab is editing it.
	assert.Contains(t, page, `if (document.activeElement !== target) { target.value = m.target_price; }`)
	assert.Contains(t, page, `JSON.stringify({ value: target.value, session: session, seq: seq })`)
}

func TestWritePageHiddenPanelAndEscaping(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePage(&buf, Render(snapshot(nil, nil, `"><script>x</script>`)), "page-1"))
	page := buf.String()

	assert.Contains(t, page, `class="result" hidden`)
	assert.NotContains(t, page, "<script>x</script>")
	assert.Equal(t, 1, strings.Count(page, "<script>"))
}
