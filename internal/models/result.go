/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "strings"

// Violation is one field-scoped invariant failure. An empty Field means the
// violation applies to the record as a whole.
type Violation struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// FullMessage renders the violation the way it is shown to callers, prefixing
// the humanized field name when there is one.
func (v Violation) FullMessage() string {
	if v.Field == "" {
		return v.Message
	}
	return humanize(v.Field) + " " + v.Message
}

// Violations is an ordered list of violations.
type Violations []Violation

// Add appends a field-scoped violation.
func (vs *Violations) Add(field, message string) {
	*vs = append(*vs, Violation{Field: field, Message: message})
}

// AddBase appends a record-level violation.
func (vs *Violations) AddBase(message string) {
	vs.Add("", message)
}

// Any reports whether at least one violation was recorded.
func (vs Violations) Any() bool {
	return len(vs) > 0
}

// FullMessages renders every violation in order.
func (vs Violations) FullMessages() []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.FullMessage())
	}
	return out
}

// Result is the outcome of one engine call. It is successful exactly when no
// error message was collected.
type Result struct {
	Errors []string `json:"errors"`
}

// Success reports whether the call completed without errors.
func (r *Result) Success() bool {
	return len(r.Errors) == 0
}

// AddError appends one message.
func (r *Result) AddError(message string) {
	r.Errors = append(r.Errors, message)
}

// AddViolations appends the full messages of vs in order.
func (r *Result) AddViolations(vs Violations) {
	r.Errors = append(r.Errors, vs.FullMessages()...)
}

// ErrorsSentence joins the messages for single-line display.
func (r *Result) ErrorsSentence() string {
	return strings.Join(r.Errors, ", ")
}

func humanize(field string) string {
	s := strings.ReplaceAll(strings.TrimSuffix(field, "_id"), "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
