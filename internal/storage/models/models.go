package models

import "time"

// PriceRecord is one scraped mandi quote kept for the price-history tier.
type PriceRecord struct {
	ID         int64
	Commodity  string
	State      string
	District   string
	Market     string
	Variety    string
	Date       string
	MinPrice   float64
	MaxPrice   float64
	ModalPrice float64
	RecordedAt time.Time
}

type TraceRecord struct {
	QueryID     string
	UserID      string
	Question    string
	Language    string
	IntentLabel string
	FinalState  string
	Outcome     string
	ErrorKind   string
	Degraded    bool
	Confidence  float64
	Sources     []string
	Transitions []Transition
	ToolResults []ToolCallRecord
	StartedAt   time.Time
	LatencyMS   int64
}

type Transition struct {
	From    string    `json:"from"`
	To      string    `json:"to"`
	Verdict string    `json:"verdict,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

type ToolCallRecord struct {
	Kind   string `json:"kind"`
	Status string `json:"status"`
	Tier   string `json:"tier,omitempty"`
	Error  string `json:"error,omitempty"`
}
