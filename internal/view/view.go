// Package view turns widget state into what the browser shows. Render is a
// pure function of a snapshot; the page template and the streamed JSON both
// consume its Model.
package view

import (
	"math"

	"pricecomparator/internal/models"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionRise Direction = "rise"
	DirectionFall Direction = "fall"
)

const (
	Title       = "Live Bitcoin Price Comparator"
	Description = "Compare live Bitcoin price with your target"

	colorRise   = "#16a34a"
	colorFall   = "#dc2626"
	colorBuyer  = "#2563eb"
	colorSeller = "#16a34a"

	iconRise   = "↑"
	iconFall   = "↓"
	iconDinner = "🍴"

	dinnerBelowTarget = "Lexander invites for dinner"
	dinnerAtOrAbove   = "Michael invites for dinner"

	undefinedPercentage = "n/a"
)

type Model struct {
	Version          uint64  `json:"version"`
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	CurrentPriceText string  `json:"current_price"`
	TargetPriceText  string  `json:"target_price"`
	ShowResult       bool    `json:"show_result"`
	Result           *Result `json:"result,omitempty"`
	Footer           Footer  `json:"footer"`
}

type Result struct {
	Direction      Direction `json:"direction"`
	Headline       string    `json:"headline"`
	Color          string    `json:"color"`
	Icon           string    `json:"icon"`
	DifferenceText string    `json:"difference"`
	PercentageText string    `json:"percentage"`
	Dinner         Dinner    `json:"dinner"`
}

type Dinner struct {
	Message string `json:"message"`
	Color   string `json:"color"`
	Icon    string `json:"icon"`
}

type Footer struct {
	BuiltBy   string `json:"built_by"`
	Copyright string `json:"copyright"`
}

// StaticFooter is the same on every render.
var StaticFooter = Footer{
	BuiltBy:   "Lexander",
	Copyright: "© 2024 All rights reserved",
}

// Render maps a snapshot to its view model.
func Render(s models.Snapshot) Model {
	m := Model{
		Version:         s.Version,
		Title:           Title,
		Description:     Description,
		TargetPriceText: s.TargetInput,
		Footer:          StaticFooter,
	}
	if s.CurrentPrice != nil {
		m.CurrentPriceText = Fixed2(*s.CurrentPrice)
	}

	if s.Comparison == nil || s.CurrentPrice == nil || s.TargetPrice == nil {
		return m
	}

	m.ShowResult = true
	m.Result = renderResult(*s.Comparison, *s.CurrentPrice, *s.TargetPrice)
	return m
}

func renderResult(cmp models.Comparison, current, target float64) *Result {
	r := &Result{
		DifferenceText: "$" + Fixed2(math.Abs(cmp.Difference)),
		PercentageText: undefinedPercentage,
		Dinner:         dinnerFor(current, target),
	}
	if cmp.PercentageDefined {
		r.PercentageText = Fixed2(math.Abs(cmp.Percentage)) + "%"
	}

	if cmp.Difference > 0 {
		r.Direction = DirectionRise
		r.Headline = "Price needs to rise"
		r.Color = colorRise
		r.Icon = iconRise
	} else {
		r.Direction = DirectionFall
		r.Headline = "Price needs to fall"
		r.Color = colorFall
		r.Icon = iconFall
	}
	return r
}

func dinnerFor(current, target float64) Dinner {
	if current < target {
		return Dinner{Message: dinnerBelowTarget, Color: colorBuyer, Icon: iconDinner}
	}
	return Dinner{Message: dinnerAtOrAbove, Color: colorSeller, Icon: iconDinner}
}

// Fixed2 formats v with exactly two decimal places, rounding the exact binary
// value of v half away from zero. 1.005 is stored as 1.00499... and gives "1.00".
func Fixed2(v float64) string {
	return decimal.NewFromFloatWithExponent(v, -2).StringFixed(2)
}
