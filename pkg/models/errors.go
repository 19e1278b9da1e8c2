package models

import (
	"errors"
	"fmt"
)

// Stage names the step of a load that produced an error
type Stage string

const (
	StageConfig  Stage = "config"
	StageConnect Stage = "connect"
	StageParse   Stage = "parse"
	StageSchema  Stage = "schema"
	StageInsert  Stage = "insert"
)

// Sentinel errors, one per stage. Match them with errors.Is.
var (
	ErrConfig     = errors.New("config error")
	ErrConnection = errors.New("connection error")
	ErrParse      = errors.New("parse error")
	ErrSchema     = errors.New("schema error")
	ErrInsert     = errors.New("insert error")
)

var stageSentinels = map[Stage]error{
	StageConfig:  ErrConfig,
	StageConnect: ErrConnection,
	StageParse:   ErrParse,
	StageSchema:  ErrSchema,
	StageInsert:  ErrInsert,
}

// LoadError carries the failing stage and the underlying cause
type LoadError struct {
	Stage Stage
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's stage
func (e *LoadError) Is(target error) bool {
	return stageSentinels[e.Stage] == target
}

// NewConfigError creates an error for a bad or missing configuration
func NewConfigError(format string, args ...any) error {
	return &LoadError{Stage: StageConfig, Err: fmt.Errorf(format, args...)}
}

// NewConnectionError creates an error for a network or authentication failure
func NewConnectionError(format string, args ...any) error {
	return &LoadError{Stage: StageConnect, Err: fmt.Errorf(format, args...)}
}

// NewParseError creates an error for malformed CSV input
func NewParseError(format string, args ...any) error {
	return &LoadError{Stage: StageParse, Err: fmt.Errorf(format, args...)}
}

// NewSchemaError creates an error for an incompatible or uncreatable table
func NewSchemaError(format string, args ...any) error {
	return &LoadError{Stage: StageSchema, Err: fmt.Errorf(format, args...)}
}

// NewInsertError creates an error for a failed batch insert
func NewInsertError(format string, args ...any) error {
	return &LoadError{Stage: StageInsert, Err: fmt.Errorf(format, args...)}
}

// StageOf returns the stage recorded in err, or "" if err is not a LoadError
func StageOf(err error) Stage {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Stage
	}
	return ""
}
