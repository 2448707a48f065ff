// Package errs defines the engine-wide error taxonomy.
//
// Every failure path in the settlement core surfaces as a Code. Codes are
// stable across releases: external callers and the HTTP wrapper key off the
// numeric value, so existing codes are never renumbered or reused.
package errs

import "fmt"

// Category groups codes by the kind of failure.
type Category int

const (
	Validation Category = iota
	Authorization
	State
	Resource
	System
)

func (c Category) String() string {
	switch c {
	case Validation:
		return "validation"
	case Authorization:
		return "authorization"
	case State:
		return "state"
	case Resource:
		return "resource"
	case System:
		return "system"
	}
	return "unknown"
}

// Severity indicates how alarming a failure is. System errors indicate bugs
// or corruption and are always High.
type Severity int

const (
	Low Severity = iota
	Medium
	High
)

func (s Severity) String() string {
	switch s {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	}
	return "unknown"
}

// Code is an enumerated engine error. Code values are stable.
type Code uint32

const (
	AlreadyInitialized            Code = 1
	NotInitialized                Code = 2
	Unauthorized                  Code = 3
	ContractPaused                Code = 4
	InvalidAmount                 Code = 5
	InvalidFeeBps                 Code = 6
	InvalidAddress                Code = 7
	AgentNotRegistered            Code = 8
	RemittanceNotFound            Code = 9
	InvalidStatus                 Code = 10
	InvalidStateTransition        Code = 11
	SettlementExpired             Code = 12
	DuplicateSettlement           Code = 13
	RateLimitExceeded             Code = 14
	NoFeesToWithdraw              Code = 15
	CannotRemoveLastAdmin         Code = 16
	AdminAlreadyExists            Code = 17
	AdminNotFound                 Code = 18
	InvalidBatchSize              Code = 19
	NetSettlementValidationFailed Code = 20
	Overflow                      Code = 21
	Underflow                     Code = 22
	SettlementCounterOverflow     Code = 23
	DataCorruption                Code = 24
	InvalidSymbol                 Code = 25
	IndexOutOfBounds              Code = 26
	EmptyCollection               Code = 27
	StringConversionFailed        Code = 28
	KeyNotFound                   Code = 29
	TokenNotWhitelisted           Code = 30
	TokenAlreadyWhitelisted       Code = 31
	MigrationInProgress           Code = 32
	InvalidMigrationBatch         Code = 33
	InvalidMigrationHash          Code = 34
	DailySendLimitExceeded        Code = 35
	IdempotencyConflict           Code = 36
)

type info struct {
	name     string
	category Category
	severity Severity
}

var codes = map[Code]info{
	AlreadyInitialized:            {"already_initialized", State, Low},
	NotInitialized:                {"not_initialized", State, Medium},
	Unauthorized:                  {"unauthorized", Authorization, Medium},
	ContractPaused:                {"contract_paused", State, Low},
	InvalidAmount:                 {"invalid_amount", Validation, Low},
	InvalidFeeBps:                 {"invalid_fee_bps", Validation, Low},
	InvalidAddress:                {"invalid_address", Validation, Low},
	AgentNotRegistered:            {"agent_not_registered", Resource, Low},
	RemittanceNotFound:            {"remittance_not_found", Resource, Low},
	InvalidStatus:                 {"invalid_status", State, Low},
	InvalidStateTransition:        {"invalid_state_transition", State, Medium},
	SettlementExpired:             {"settlement_expired", State, Low},
	DuplicateSettlement:           {"duplicate_settlement", State, Medium},
	RateLimitExceeded:             {"rate_limit_exceeded", State, Low},
	NoFeesToWithdraw:              {"no_fees_to_withdraw", State, Low},
	CannotRemoveLastAdmin:         {"cannot_remove_last_admin", State, Medium},
	AdminAlreadyExists:            {"admin_already_exists", Resource, Low},
	AdminNotFound:                 {"admin_not_found", Resource, Low},
	InvalidBatchSize:              {"invalid_batch_size", Validation, Low},
	NetSettlementValidationFailed: {"net_settlement_validation_failed", System, High},
	Overflow:                      {"overflow", System, High},
	Underflow:                     {"underflow", System, High},
	SettlementCounterOverflow:     {"settlement_counter_overflow", System, High},
	DataCorruption:                {"data_corruption", System, High},
	InvalidSymbol:                 {"invalid_symbol", Validation, Low},
	IndexOutOfBounds:              {"index_out_of_bounds", Validation, Low},
	EmptyCollection:               {"empty_collection", Validation, Low},
	StringConversionFailed:        {"string_conversion_failed", Validation, Low},
	KeyNotFound:                   {"key_not_found", Resource, Low},
	TokenNotWhitelisted:           {"token_not_whitelisted", Resource, Low},
	TokenAlreadyWhitelisted:       {"token_already_whitelisted", Resource, Low},
	MigrationInProgress:           {"migration_in_progress", State, Medium},
	InvalidMigrationBatch:         {"invalid_migration_batch", Validation, Low},
	InvalidMigrationHash:          {"invalid_migration_hash", System, High},
	DailySendLimitExceeded:        {"daily_send_limit_exceeded", State, Low},
	IdempotencyConflict:           {"idempotency_conflict", State, Medium},
}

// Error implements the error interface. Codes compare with errors.Is against
// other Codes, so callers write `errors.Is(err, errs.InvalidAmount)`.
func (c Code) Error() string {
	if i, ok := codes[c]; ok {
		return i.name
	}
	return fmt.Sprintf("error_code_%d", uint32(c))
}

// Category returns the failure category for the code.
func (c Code) Category() Category {
	return codes[c].category
}

// Severity returns the severity for the code.
func (c Code) Severity() Severity {
	return codes[c].severity
}

// Valid reports whether the code is a registered engine error.
func (c Code) Valid() bool {
	_, ok := codes[c]
	return ok
}

// All returns every registered code. Order is unspecified.
func All() []Code {
	out := make([]Code, 0, len(codes))
	for c := range codes {
		out = append(out, c)
	}
	return out
}
