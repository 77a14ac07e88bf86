// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package auth

import (
	"context"
	"crypto/hmac"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spacemonkeygo/monkit/v3"

	"github.com/shellnoq/hafiz/s3"
)

var mon = monkit.Package()

// Config configures signature verification.
type Config struct {
	Region           string        `default:"us-east-1" help:"region accepted in credential scopes"`
	MaxClockSkew     time.Duration `default:"15m" help:"tolerated difference between request and server clocks"`
	MaxPresignExpiry time.Duration `default:"168h" help:"longest allowed presigned URL lifetime"`
}

// Verifier authenticates incoming requests by their AWS Signature
// Version 4, in either Authorization-header or presigned-query form.
type Verifier struct {
	config Config
	creds  CredentialStore
	now    func() time.Time
}

// NewVerifier creates a verifier resolving access keys through creds.
func NewVerifier(config Config, creds CredentialStore) *Verifier {
	return &Verifier{
		config: config,
		creds:  creds,
		now:    time.Now,
	}
}

// TestingSetNow overrides the verifier's clock.
func (verifier *Verifier) TestingSetNow(now func() time.Time) {
	verifier.now = now
}

// Verify authenticates the request and returns the principal that signed
// it. Requests carrying no authentication at all come back as Anonymous;
// everything malformed, stale or mismatched is an error. Failures never
// reveal whether the access key exists or which input broke the signature.
func (verifier *Verifier) Verify(ctx context.Context, r *http.Request) (_ Principal, err error) {
	defer mon.Task()(&ctx)(&err)

	authorization := r.Header.Get("Authorization")
	switch {
	case strings.HasPrefix(authorization, signingAlgorithm):
		return verifier.verifyHeader(ctx, r, authorization)
	case authorization != "":
		return Principal{}, s3.ErrInvalidArgument.New("unsupported authorization type")
	case r.URL.Query().Get("X-Amz-Algorithm") == signingAlgorithm:
		return verifier.verifyPresigned(ctx, r)
	case r.URL.Query().Get("X-Amz-Algorithm") != "":
		return Principal{}, s3.ErrInvalidArgument.New("unsupported signing algorithm")
	default:
		return Anonymous, nil
	}
}

func (verifier *Verifier) verifyHeader(ctx context.Context, r *http.Request, authorization string) (Principal, error) {
	credential, signedHeaders, presented, err := parseAuthorizationHeader(authorization)
	if err != nil {
		return Principal{}, err
	}

	accessKeyID, sc, err := parseCredential(credential)
	if err != nil {
		return Principal{}, err
	}

	amzDate := r.Header.Get("X-Amz-Date")
	if amzDate == "" {
		return Principal{}, s3.ErrInvalidArgument.New("missing X-Amz-Date header")
	}
	requestTime, err := time.Parse(amzDateFormat, amzDate)
	if err != nil {
		return Principal{}, s3.ErrInvalidArgument.New("malformed X-Amz-Date header")
	}
	if err := verifier.checkSkew(requestTime); err != nil {
		return Principal{}, err
	}
	if err := verifier.checkScope(sc, amzDate); err != nil {
		return Principal{}, err
	}

	payloadHash := r.Header.Get("X-Amz-Content-Sha256")
	if payloadHash == "" {
		return Principal{}, s3.ErrInvalidArgument.New("missing X-Amz-Content-Sha256 header")
	}

	cred, err := verifier.creds.Lookup(ctx, accessKeyID)
	if err != nil {
		mon.Meter("auth_unknown_key").Mark(1)
		return Principal{}, err
	}

	expected, err := computeSignature(cred.SecretAccessKey, r, r.URL.Query(), sc, amzDate, signedHeaders, payloadHash)
	if err != nil {
		return Principal{}, err
	}
	if !signaturesEqual(presented, expected) {
		mon.Meter("auth_signature_mismatch").Mark(1)
		return Principal{}, s3.ErrSignatureDoesNotMatch.New("request signature mismatch")
	}

	mon.Meter("auth_header_ok").Mark(1)
	return principalOf(cred), nil
}

func (verifier *Verifier) verifyPresigned(ctx context.Context, r *http.Request) (Principal, error) {
	query := r.URL.Query()

	credential := query.Get("X-Amz-Credential")
	amzDate := query.Get("X-Amz-Date")
	expiresRaw := query.Get("X-Amz-Expires")
	signedHeadersRaw := query.Get("X-Amz-SignedHeaders")
	presented := query.Get("X-Amz-Signature")
	if credential == "" || amzDate == "" || expiresRaw == "" || signedHeadersRaw == "" || presented == "" {
		return Principal{}, s3.ErrInvalidArgument.New("missing presigned query parameters")
	}

	accessKeyID, sc, err := parseCredential(credential)
	if err != nil {
		return Principal{}, err
	}

	requestTime, err := time.Parse(amzDateFormat, amzDate)
	if err != nil {
		return Principal{}, s3.ErrInvalidArgument.New("malformed X-Amz-Date parameter")
	}

	expires, err := strconv.ParseInt(expiresRaw, 10, 64)
	if err != nil || expires < 1 {
		return Principal{}, s3.ErrInvalidArgument.New("invalid X-Amz-Expires")
	}
	lifetime := time.Duration(expires) * time.Second
	if lifetime > verifier.config.MaxPresignExpiry {
		return Principal{}, s3.ErrInvalidArgument.New("X-Amz-Expires exceeds the maximum of %s", verifier.config.MaxPresignExpiry)
	}

	now := verifier.now()
	if now.After(requestTime.Add(lifetime)) {
		mon.Meter("auth_presigned_expired").Mark(1)
		return Principal{}, s3.ErrExpiredToken.New("presigned URL expired")
	}
	if requestTime.Sub(now) > verifier.config.MaxClockSkew {
		return Principal{}, s3.ErrExpiredToken.New("request time too far from server time")
	}
	if err := verifier.checkScope(sc, amzDate); err != nil {
		return Principal{}, err
	}

	cred, err := verifier.creds.Lookup(ctx, accessKeyID)
	if err != nil {
		mon.Meter("auth_unknown_key").Mark(1)
		return Principal{}, err
	}

	signedHeaders := strings.Split(signedHeadersRaw, ";")
	query.Del("X-Amz-Signature")

	expected, err := computeSignature(cred.SecretAccessKey, r, query, sc, amzDate, signedHeaders, UnsignedPayload)
	if err != nil {
		return Principal{}, err
	}
	if !signaturesEqual(presented, expected) {
		mon.Meter("auth_signature_mismatch").Mark(1)
		return Principal{}, s3.ErrSignatureDoesNotMatch.New("request signature mismatch")
	}

	mon.Meter("auth_presigned_ok").Mark(1)
	return principalOf(cred), nil
}

// checkSkew accepts request times within MaxClockSkew of the server
// clock, in either direction.
func (verifier *Verifier) checkSkew(requestTime time.Time) error {
	skew := verifier.now().Sub(requestTime)
	if skew < 0 {
		skew = -skew
	}
	if skew > verifier.config.MaxClockSkew {
		return s3.ErrExpiredToken.New("request time too far from server time")
	}
	return nil
}

func (verifier *Verifier) checkScope(sc scope, amzDate string) error {
	if sc.service != signingService {
		return s3.ErrSignatureDoesNotMatch.New("credential scope verification failed")
	}
	if sc.region != verifier.config.Region {
		return s3.ErrSignatureDoesNotMatch.New("credential scope verification failed")
	}
	if sc.date != amzDate[:len(scopeDateFormat)] {
		return s3.ErrSignatureDoesNotMatch.New("credential scope verification failed")
	}
	return nil
}

// parseAuthorizationHeader splits
//
//	AWS4-HMAC-SHA256 Credential=<scope>, SignedHeaders=<h;h>, Signature=<hex>
//
// into its three parts.
func parseAuthorizationHeader(authorization string) (credential string, signedHeaders []string, signature string, err error) {
	rest := strings.TrimPrefix(authorization, signingAlgorithm)
	if rest == authorization || (rest != "" && rest[0] != ' ') {
		return "", nil, "", s3.ErrInvalidArgument.New("malformed authorization header")
	}

	fields := map[string]string{}
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, found := strings.Cut(part, "=")
		if !found {
			return "", nil, "", s3.ErrInvalidArgument.New("malformed authorization header")
		}
		fields[name] = value
	}

	credential = fields["Credential"]
	headerList := fields["SignedHeaders"]
	signature = fields["Signature"]
	if credential == "" || headerList == "" || signature == "" {
		return "", nil, "", s3.ErrInvalidArgument.New("authorization header is missing components")
	}

	signedHeaders = strings.Split(headerList, ";")
	for _, name := range signedHeaders {
		if name == "host" {
			return credential, signedHeaders, signature, nil
		}
	}
	return "", nil, "", s3.ErrInvalidArgument.New("host header must be signed")
}

// signaturesEqual compares hex signatures in constant time.
func signaturesEqual(presented, expected string) bool {
	presentedRaw, err := hex.DecodeString(strings.ToLower(presented))
	if err != nil {
		return false
	}
	expectedRaw, err := hex.DecodeString(expected)
	if err != nil {
		return false
	}
	return hmac.Equal(presentedRaw, expectedRaw)
}
