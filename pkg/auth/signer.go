// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package auth

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shellnoq/hafiz/s3"
)

// Signer produces requests that Verify accepts: presigned URLs for
// sharing, and header-signed requests for tests and tooling.
type Signer struct {
	Credential Credential
	Region     string
}

func (signer *Signer) scopeAt(now time.Time) scope {
	return scope{
		date:    now.UTC().Format(scopeDateFormat),
		region:  signer.Region,
		service: signingService,
	}
}

// SignRequest signs r in place with header authentication, covering host,
// content-type when present and every x-amz-* header. An empty
// payloadHash signs an unsigned payload.
func (signer *Signer) SignRequest(r *http.Request, payloadHash string, now time.Time) error {
	if payloadHash == "" {
		payloadHash = UnsignedPayload
	}
	amzDate := now.UTC().Format(amzDateFormat)
	r.Header.Set("X-Amz-Date", amzDate)
	r.Header.Set("X-Amz-Content-Sha256", payloadHash)

	signedHeaders := signedHeaderNames(r)
	sc := signer.scopeAt(now)

	signature, err := computeSignature(signer.Credential.SecretAccessKey, r, r.URL.Query(), sc, amzDate, signedHeaders, payloadHash)
	if err != nil {
		return err
	}

	r.Header.Set("Authorization", fmt.Sprintf(
		"%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		signingAlgorithm,
		signer.Credential.AccessKeyID, sc,
		strings.Join(signedHeaders, ";"),
		signature,
	))
	return nil
}

func signedHeaderNames(r *http.Request) []string {
	names := []string{"host"}
	if r.Header.Get("Content-Type") != "" {
		names = append(names, "content-type")
	}
	for name := range r.Header {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "x-amz-") {
			names = append(names, lower)
		}
	}
	sort.Strings(names)
	return names
}

// PresignURL returns a copy of target that authorizes method for
// expires, starting at now. Only the host header is signed; the payload
// is unsigned.
func (signer *Signer) PresignURL(method string, target *url.URL, expires time.Duration, now time.Time) (*url.URL, error) {
	if expires < time.Second {
		return nil, s3.ErrInvalidArgument.New("expires must be at least a second")
	}

	presigned := *target
	amzDate := now.UTC().Format(amzDateFormat)
	sc := signer.scopeAt(now)

	query := presigned.Query()
	query.Set("X-Amz-Algorithm", signingAlgorithm)
	query.Set("X-Amz-Credential", signer.Credential.AccessKeyID+"/"+sc.String())
	query.Set("X-Amz-Date", amzDate)
	query.Set("X-Amz-Expires", strconv.FormatInt(int64(expires/time.Second), 10))
	query.Set("X-Amz-SignedHeaders", "host")

	r := &http.Request{
		Method: method,
		URL:    &presigned,
		Host:   presigned.Host,
		Header: http.Header{},
	}

	signature, err := computeSignature(signer.Credential.SecretAccessKey, r, query, sc, amzDate, []string{"host"}, UnsignedPayload)
	if err != nil {
		return nil, err
	}

	query.Set("X-Amz-Signature", signature)
	presigned.RawQuery = query.Encode()
	return &presigned, nil
}
