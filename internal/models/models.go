package models

import (
	"time"
)

// Trigger names the mutation that produced a snapshot.
type Trigger string

const (
	TriggerPrice  Trigger = "price"
	TriggerTarget Trigger = "target"
)

// Quote is one successful reading of the price feed
type Quote struct {
	Symbol    string    `json:"symbol"`
	Source    string    `json:"source"`
	Price     float64   `json:"price"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Comparison is the derived difference between the target and current price.
// PercentageDefined is false when the current price is zero.
type Comparison struct {
	Difference        float64 `json:"difference"`
	Percentage        float64 `json:"percentage"`
	PercentageDefined bool    `json:"percentage_defined"`
}

// Snapshot is an immutable copy of the widget state taken after a mutation.
type Snapshot struct {
	Version      uint64      `json:"version"`
	Trigger      Trigger     `json:"trigger,omitempty"`
	CurrentPrice *float64    `json:"current_price,omitempty"`
	TargetPrice  *float64    `json:"target_price,omitempty"`
	TargetInput  string      `json:"target_input"`
	Comparison   *Comparison `json:"comparison,omitempty"`
	Symbol       string      `json:"symbol,omitempty"`
	Source       string      `json:"source,omitempty"`
	UpdatedAt    *time.Time  `json:"updated_at,omitempty"`
	LastError    string      `json:"last_error,omitempty"`
}
