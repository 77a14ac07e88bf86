// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

// Package policy implements IAM-style bucket policy documents and their
// deny-overrides evaluation.
package policy

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shellnoq/hafiz/s3"
)

// Versions a document may declare.
const (
	Version20121017 = "2012-10-17"
	Version20081017 = "2008-10-17"
)

// Effect is a statement's verdict.
type Effect string

// Effects.
const (
	EffectAllow Effect = "Allow"
	EffectDeny  Effect = "Deny"
)

// Document is a parsed bucket policy.
type Document struct {
	Version    string      `json:"Version"`
	ID         string      `json:"Id,omitempty"`
	Statements []Statement `json:"Statement"`
}

// Statement is one policy rule.
type Statement struct {
	SID       string        `json:"Sid,omitempty"`
	Effect    Effect        `json:"Effect"`
	Principal Principal     `json:"Principal"`
	Action    StringOrSlice `json:"Action"`
	Resource  StringOrSlice `json:"Resource"`
	Condition ConditionMap  `json:"Condition,omitempty"`
}

// Principal names who a statement applies to: everyone, or a set of
// account and access key identifiers.
type Principal struct {
	All bool
	IDs []string
}

// Match reports whether any of the caller's identifiers satisfies the
// principal. The wildcard matches everyone, anonymous callers included.
func (principal Principal) Match(callerIDs []string) bool {
	if principal.All {
		return true
	}
	for _, id := range principal.IDs {
		for _, caller := range callerIDs {
			if id == caller {
				return true
			}
		}
	}
	return false
}

// UnmarshalJSON accepts "*", "id", ["id", ...] and {"AWS": <any of those>}.
func (principal *Principal) UnmarshalJSON(data []byte) error {
	var direct json.RawMessage
	if err := json.Unmarshal(data, &direct); err != nil {
		return err
	}

	trimmed := bytes.TrimSpace(direct)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			AWS json.RawMessage `json:"AWS"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return err
		}
		if wrapped.AWS == nil {
			return s3.ErrMalformedPolicy.New("principal object must name AWS")
		}
		trimmed = bytes.TrimSpace(wrapped.AWS)
	}

	var ids StringOrSlice
	if err := json.Unmarshal(trimmed, &ids); err != nil {
		return err
	}
	if len(ids) == 1 && ids[0] == "*" {
		*principal = Principal{All: true}
		return nil
	}
	*principal = Principal{IDs: ids}
	return nil
}

// MarshalJSON renders the canonical form.
func (principal Principal) MarshalJSON() ([]byte, error) {
	if principal.All {
		return json.Marshal("*")
	}
	return json.Marshal(map[string][]string{"AWS": principal.IDs})
}

// StringOrSlice accepts both "x" and ["x", "y"] JSON forms.
type StringOrSlice []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *StringOrSlice) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringOrSlice{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = StringOrSlice(many)
	return nil
}

// MarshalJSON always renders the slice form.
func (s StringOrSlice) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(s))
}

// ConditionMap maps operator name to condition key to expected values.
type ConditionMap map[string]map[string]StringOrSlice

// Parse parses and validates a policy document. Unknown top-level or
// statement fields are rejected; unknown condition operators parse fine
// and simply never match.
func Parse(data []byte) (*Document, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	var doc Document
	if err := decoder.Decode(&doc); err != nil {
		return nil, s3.ErrMalformedPolicy.Wrap(err)
	}
	if decoder.More() {
		return nil, s3.ErrMalformedPolicy.New("trailing data after document")
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the document's shape.
func (doc *Document) Validate() error {
	switch doc.Version {
	case Version20121017, Version20081017:
	case "":
		return s3.ErrMalformedPolicy.New("missing Version")
	default:
		return s3.ErrMalformedPolicy.New("unsupported Version %q", doc.Version)
	}

	if len(doc.Statements) == 0 {
		return s3.ErrMalformedPolicy.New("document has no statements")
	}

	for i := range doc.Statements {
		if err := doc.Statements[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the statement's shape.
func (st *Statement) Validate() error {
	switch st.Effect {
	case EffectAllow, EffectDeny:
	default:
		return s3.ErrMalformedPolicy.New("effect must be Allow or Deny, got %q", string(st.Effect))
	}

	if !st.Principal.All && len(st.Principal.IDs) == 0 {
		return s3.ErrMalformedPolicy.New("statement names no principal")
	}

	if len(st.Action) == 0 {
		return s3.ErrMalformedPolicy.New("statement names no action")
	}
	for _, action := range st.Action {
		if action != "*" && !strings.HasPrefix(action, "s3:") {
			return s3.ErrMalformedPolicy.New("unsupported action %q", action)
		}
	}

	if len(st.Resource) == 0 {
		return s3.ErrMalformedPolicy.New("statement names no resource")
	}
	for _, resource := range st.Resource {
		if resource != "*" && !strings.HasPrefix(resource, "arn:") {
			return s3.ErrMalformedPolicy.New("unsupported resource %q", resource)
		}
	}

	for operator, keys := range st.Condition {
		if operator == "" {
			return s3.ErrMalformedPolicy.New("empty condition operator")
		}
		if len(keys) == 0 {
			return s3.ErrMalformedPolicy.New("condition operator %q has no keys", operator)
		}
		for key, values := range keys {
			if key == "" {
				return s3.ErrMalformedPolicy.New("condition operator %q has an empty key", operator)
			}
			if len(values) == 0 {
				return s3.ErrMalformedPolicy.New("condition key %q has no values", key)
			}
		}
	}
	return nil
}
