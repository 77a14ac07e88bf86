// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package policy

import (
	"github.com/shellnoq/hafiz/s3"
)

// Request is one access decision to evaluate a document against.
type Request struct {
	// CallerIDs are the identifiers a Principal element may address the
	// caller by; nil means anonymous.
	CallerIDs []string
	Action    s3.Action
	Resource  string
	Context   RequestContext
}

// Decision is the outcome of an evaluation.
type Decision struct {
	Allowed bool
	// Matched reports whether any statement applied. When false the
	// document was silent and the caller applies its own default.
	Matched bool
	// StatementID carries the Sid of the deciding statement, when set.
	StatementID string
}

// Evaluate applies the document to a request. Every statement is
// consulted and any matching Deny wins over any matching Allow. When no
// statement matches, the decision is a non-matched deny.
func (doc *Document) Evaluate(req Request) Decision {
	var allow Decision
	for i := range doc.Statements {
		st := &doc.Statements[i]
		if !st.matches(req) {
			continue
		}
		if st.Effect == EffectDeny {
			return Decision{Allowed: false, Matched: true, StatementID: st.SID}
		}
		if !allow.Matched {
			allow = Decision{Allowed: true, Matched: true, StatementID: st.SID}
		}
	}
	return allow
}

func (st *Statement) matches(req Request) bool {
	if !st.Principal.Match(req.CallerIDs) {
		return false
	}
	if !anyValue(st.Action, func(pattern string) bool {
		return req.Action.Match(pattern)
	}) {
		return false
	}
	if !anyValue(st.Resource, func(pattern string) bool {
		return s3.MatchResource(pattern, req.Resource)
	}) {
		return false
	}
	return st.Condition.Eval(req.Context)
}
