/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduling holds the shared validation and error vocabulary of
// the scheduler. Every entry point that mutates plans, zones, patterns
// or programs runs the same Validator, so CLI, API and batch resolution
// cannot drift apart.
package scheduling

import "fmt"

// ValidationError is a domain rule violation with a stable, enumerable
// code. Identical input against identical state produces the identical
// error on every surface.
type ValidationError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Code, e.Message)
}

// NewValidationError builds a coded validation failure.
func NewValidationError(code, message string) *ValidationError {
	return &ValidationError{Code: code, Message: message}
}

// WithDetail attaches one key to the error's details and returns it.
func (e *ValidationError) WithDetail(key string, value any) *ValidationError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// NotFoundError marks an unresolved channel, plan, zone, pattern or
// program identifier.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// NewNotFound builds a NotFoundError.
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ConflictError marks an optimistic-lock version mismatch on update.
type ConflictError struct {
	Resource string
	ID       string
	Version  int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s changed concurrently (expected version %d)", e.Resource, e.ID, e.Version)
}

// SchedulingFailure is the legitimate terminal outcome of resolution:
// no matching plan, no eligible content, a day that cannot be built. It
// is not a bug and must propagate instead of being papered over.
type SchedulingFailure struct {
	Code    string
	Message string
}

func (e *SchedulingFailure) Error() string {
	return fmt.Sprintf("scheduling failed (%s): %s", e.Code, e.Message)
}

// NewSchedulingFailure builds a coded scheduling failure.
func NewSchedulingFailure(code, message string) *SchedulingFailure {
	return &SchedulingFailure{Code: code, Message: message}
}

// Warning is a non-fatal observation surfaced by validation or preview,
// the empty pattern being the canonical case.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result aggregates the outcome of validating a composite entity, used
// by preview surfaces that want every finding at once.
type Result struct {
	Valid    bool               `json:"valid"`
	Errors   []*ValidationError `json:"errors,omitempty"`
	Warnings []Warning          `json:"warnings,omitempty"`
}

// AddError appends a failure and flips Valid.
func (r *Result) AddError(e *ValidationError) {
	r.Valid = false
	r.Errors = append(r.Errors, e)
}

// AddWarning appends a non-fatal finding.
func (r *Result) AddWarning(code, message string) {
	r.Warnings = append(r.Warnings, Warning{Code: code, Message: message})
}
