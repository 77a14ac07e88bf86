// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

// Package gateway composes signature verification, bucket-policy
// authorization and the lock-checked metadata operations into the fixed
// request order of the protocol: authenticate, authorize, lock check,
// operation. It is the only package that knows this ordering.
package gateway

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/shellnoq/hafiz/metabase"
	"github.com/shellnoq/hafiz/pkg/auth"
	"github.com/shellnoq/hafiz/pkg/policy"
	"github.com/shellnoq/hafiz/s3"
)

var (
	// Error is the default gateway error class.
	Error = errs.Class("gateway")

	mon = monkit.Package()
)

// Pipeline runs every operation through the fixed order. The policy cache
// holds parsed documents and is invalidated by the policy writes the
// pipeline itself performs.
type Pipeline struct {
	log      *zap.Logger
	db       *metabase.DB
	verifier *auth.Verifier
	policies *policyCache

	now func() time.Time
}

// NewPipeline creates a pipeline over the opened metabase.
func NewPipeline(log *zap.Logger, db *metabase.DB, verifier *auth.Verifier) *Pipeline {
	return &Pipeline{
		log:      log,
		db:       db,
		verifier: verifier,
		policies: newPolicyCache(db),
		now:      time.Now,
	}
}

// TestingSetNow overrides the clock behind time conditions.
func (pipeline *Pipeline) TestingSetNow(now func() time.Time) {
	pipeline.now = now
}

// AuthenticateAndAuthorize verifies the request signature and evaluates
// the bucket policy for action. An empty key authorizes against the
// bucket resource, otherwise against the object resource. The returned
// principal is only valid when err is nil.
func (pipeline *Pipeline) AuthenticateAndAuthorize(ctx context.Context, r *http.Request, action s3.Action, bucket, key string) (_ auth.Principal, err error) {
	defer mon.Task()(&ctx)(&err)
	return pipeline.authenticateAndAuthorize(ctx, r, action, bucket, key, false)
}

// authenticateAndAuthorize additionally supports owner-limited
// operations, for which the bucket owner never consults the policy. That
// keeps policy management itself out of the policy's reach: a document
// cannot lock the owner out of replacing or deleting it.
func (pipeline *Pipeline) authenticateAndAuthorize(ctx context.Context, r *http.Request, action s3.Action, bucket, key string, ownerLimited bool) (auth.Principal, error) {
	principal, err := pipeline.verifier.Verify(ctx, r)
	if err != nil {
		mon.Meter("authn_reject").Mark(1)
		return auth.Principal{}, err
	}
	if ownerLimited && principal.Root {
		mon.Meter("authz_owner_allow").Mark(1)
		return principal, nil
	}
	if err := pipeline.authorize(ctx, r, principal, action, bucket, key); err != nil {
		return auth.Principal{}, err
	}
	return principal, nil
}

// authorize applies the bucket policy. A matching Deny always wins, the
// owner included; a matching Allow grants; a silent or absent document
// falls back to the implicit ruling, which admits only the owner.
func (pipeline *Pipeline) authorize(ctx context.Context, r *http.Request, principal auth.Principal, action s3.Action, bucket, key string) (err error) {
	defer mon.Task()(&ctx)(&err)

	resource := s3.BucketARN(bucket)
	if key != "" {
		resource = s3.ObjectARN(bucket, key)
	}

	doc, err := pipeline.policies.get(ctx, bucket)
	if err != nil {
		return err
	}
	if doc != nil {
		decision := doc.Evaluate(policy.Request{
			CallerIDs: principal.Identifiers(),
			Action:    action,
			Resource:  resource,
			Context:   pipeline.requestContext(r, principal),
		})
		switch {
		case decision.Matched && !decision.Allowed:
			// the statement id goes to the log, never the client
			pipeline.log.Info("bucket policy denied request",
				zap.String("bucket", bucket),
				zap.String("action", string(action)),
				zap.String("statement", decision.StatementID))
			mon.Meter("authz_policy_deny").Mark(1)
			return s3.ErrAccessDenied.New("%s on %s", action, resource)
		case decision.Allowed:
			mon.Meter("authz_policy_allow").Mark(1)
			return nil
		}
	}
	if principal.Root {
		mon.Meter("authz_owner_allow").Mark(1)
		return nil
	}
	mon.Meter("authz_default_deny").Mark(1)
	return s3.ErrAccessDenied.New("%s on %s", action, resource)
}

// requestContext captures the condition attributes of the wire request.
func (pipeline *Pipeline) requestContext(r *http.Request, principal auth.Principal) policy.RequestContext {
	rctx := policy.RequestContext{
		SecureTransport: r.TLS != nil,
		CurrentTime:     pipeline.now().UTC(),
		Username:        principal.AccountID,
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	rctx.SourceIP = net.ParseIP(host)
	if prefix := r.URL.Query().Get("prefix"); prefix != "" {
		rctx.Keys = map[string]string{"s3:prefix": prefix}
	}
	return rctx
}

// bypassGovernanceHeader asks for a governance-retention bypass on
// deletes and retention rewrites.
const bypassGovernanceHeader = "X-Amz-Bypass-Governance-Retention"

// bypassGovernance reports whether the request both asks for the bypass
// and is permitted it. Callers lacking the permission proceed without the
// bypass and hit the ordinary lock check; the header alone grants nothing.
func (pipeline *Pipeline) bypassGovernance(ctx context.Context, r *http.Request, principal auth.Principal, bucket, key string) (bool, error) {
	if !strings.EqualFold(r.Header.Get(bypassGovernanceHeader), "true") {
		return false, nil
	}
	err := pipeline.authorize(ctx, r, principal, s3.ActionBypassGovernanceRetention, bucket, key)
	if err == nil {
		mon.Meter("governance_bypass").Mark(1)
		return true, nil
	}
	if s3.ErrAccessDenied.Has(err) {
		return false, nil
	}
	return false, err
}
