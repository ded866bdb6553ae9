package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInstanceNotFound = errors.New("instance not found")
	ErrNotPending       = errors.New("symbol has no pending trigger")
	ErrUnknownSymbol    = errors.New("unknown symbol")
)

// ConfigError means a bot configuration was rejected before an instance existed.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config rejected: %s %s", e.Field, e.Reason)
}

// PreflightError means a live-mode exchange precondition was not met.
type PreflightError struct {
	Step string
	Err  error
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("preflight %s failed: %v", e.Step, e.Err)
}

func (e *PreflightError) Unwrap() error { return e.Err }

// ExecutionError means one entry/exit attempt was rejected and abandoned.
type ExecutionError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
