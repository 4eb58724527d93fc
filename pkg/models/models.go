package models

import (
	"time"

	"github.com/google/uuid"
)

// Device is one dispatch unit. It lives for a single worker's processing of a
// single device and is discarded once its output lines are emitted.
type Device struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// ResultLine is one physical line of the report.
type ResultLine struct {
	Device string `json:"device"`
	Text   string `json:"text"`
}

// OctetFamily holds the four addresses derived from a resolved address.
type OctetFamily struct {
	Octet0 string `json:"octet0" bson:"octet0"`
	Octet1 string `json:"octet1" bson:"octet1"`
	Octet2 string `json:"octet2" bson:"octet2"`
	Octet3 string `json:"octet3" bson:"octet3"`
}

// Facts are the per-device values harvested from one session.
type Facts struct {
	RunID       uuid.UUID    `json:"runId" bson:"runId"`
	Name        string       `json:"name" bson:"name"`
	Address     string       `json:"address" bson:"address"`
	Version     string       `json:"version,omitempty" bson:"version,omitempty"`
	Serial      string       `json:"serial,omitempty" bson:"serial,omitempty"`
	Info        string       `json:"info" bson:"info"`
	Octets      *OctetFamily `json:"octets,omitempty" bson:"octets,omitempty"`
	CollectedAt time.Time    `json:"collectedAt" bson:"collectedAt"`
}

// Outcome classifies how processing of one device ended.
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeUnreachable   Outcome = "unreachable"
	OutcomeAuthFailure   Outcome = "auth_failure"
	OutcomePromptTimeout Outcome = "prompt_timeout"
	OutcomeFailed        Outcome = "failed"
)
