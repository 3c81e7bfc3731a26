package output

import (
	"fmt"

	"github.com/fatih/color"
)

// Tone is the semantic color of a piece of console text.
type Tone int

const (
	TonePlain Tone = iota
	ToneGood
	ToneBad
	ToneWarn
	ToneMuted
	ToneStrong
	ToneHeading
)

var palette = map[Tone]*color.Color{
	ToneGood:    color.New(color.FgGreen),
	ToneBad:     color.New(color.FgRed),
	ToneWarn:    color.New(color.FgYellow),
	ToneMuted:   color.New(color.FgHiBlack),
	ToneStrong:  color.New(color.Bold),
	ToneHeading: color.New(color.FgCyan, color.Bold),
}

// ColorHelper paints console text by tone. Output is plain when color.NoColor
// was set at construction.
type ColorHelper struct {
	enabled bool
}

// NewColorHelper creates a color helper honoring color.NoColor.
func NewColorHelper() *ColorHelper {
	return &ColorHelper{
		enabled: !color.NoColor,
	}
}

// Paint renders text in the given tone.
func (c *ColorHelper) Paint(tone Tone, text string) string {
	attrs, ok := palette[tone]
	if !c.enabled || !ok {
		return text
	}

	return attrs.Sprint(text)
}

func (c *ColorHelper) Success(text string) string { return c.Paint(ToneGood, text) }
func (c *ColorHelper) Failure(text string) string { return c.Paint(ToneBad, text) }
func (c *ColorHelper) Warning(text string) string { return c.Paint(ToneWarn, text) }
func (c *ColorHelper) Muted(text string) string   { return c.Paint(ToneMuted, text) }
func (c *ColorHelper) Bold(text string) string    { return c.Paint(ToneStrong, text) }
func (c *ColorHelper) Header(text string) string  { return c.Paint(ToneHeading, text) }

// FormatStatus labels a run or attempt as passed or failed.
func (c *ColorHelper) FormatStatus(passed bool) string {
	if passed {
		return c.Paint(ToneGood, "✓ PASS")
	}

	return c.Paint(ToneBad, "✗ FAIL")
}

// FormatAssertions renders a passed/total counter: green when complete, red
// when nothing passed, yellow in between.
func (c *ColorHelper) FormatAssertions(passed, total int) string {
	tone := ToneWarn

	switch passed {
	case total:
		tone = ToneGood
	case 0:
		tone = ToneBad
	}

	return c.Paint(tone, fmt.Sprintf("%d/%d", passed, total))
}

// FormatRate colors a success rate label: green at 100, yellow from 90,
// red below. ok is false for the no-assertions marker, which stays muted.
func (c *ColorHelper) FormatRate(label string, value float64, ok bool) string {
	return c.Paint(rateTone(value, ok), label)
}

func rateTone(value float64, ok bool) Tone {
	switch {
	case !ok:
		return ToneMuted
	case value == 100.0:
		return ToneGood
	case value >= 90.0:
		return ToneWarn
	default:
		return ToneBad
	}
}

// FormatDirection renders a trend direction as an arrow.
func (c *ColorHelper) FormatDirection(up bool) string {
	if up {
		return c.Paint(ToneGood, "↑ up")
	}

	return c.Paint(ToneBad, "↓ down")
}
