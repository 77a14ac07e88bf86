// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/shellnoq/hafiz/s3"
)

const (
	signingAlgorithm  = "AWS4-HMAC-SHA256"
	signingService    = "s3"
	requestTerminator = "aws4_request"

	// UnsignedPayload marks a body the signature does not cover.
	// Presigned requests always use it.
	UnsignedPayload = "UNSIGNED-PAYLOAD"

	amzDateFormat   = "20060102T150405Z"
	scopeDateFormat = "20060102"
)

// scope is the credential scope a signature was derived for.
type scope struct {
	date    string // YYYYMMDD
	region  string
	service string
}

func (sc scope) String() string {
	return strings.Join([]string{sc.date, sc.region, sc.service, requestTerminator}, "/")
}

// parseCredential splits "<accessKeyID>/<date>/<region>/<service>/aws4_request".
// The access key id itself never contains '/'.
func parseCredential(credential string) (accessKeyID string, sc scope, err error) {
	parts := strings.Split(credential, "/")
	if len(parts) != 5 {
		return "", scope{}, s3.ErrInvalidArgument.New("malformed credential scope")
	}
	if parts[4] != requestTerminator {
		return "", scope{}, s3.ErrInvalidArgument.New("credential scope must end in %s", requestTerminator)
	}
	sc = scope{date: parts[1], region: parts[2], service: parts[3]}
	if len(sc.date) != len(scopeDateFormat) {
		return "", scope{}, s3.ErrInvalidArgument.New("malformed credential scope date")
	}
	return parts[0], sc, nil
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(data)
	return mac.Sum(nil)
}

func sha256Hex(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}

// signingKey derives the per-scope signing key:
// HMAC("AWS4"+secret, date) chained through region, service and terminator.
func signingKey(secretAccessKey string, sc scope) []byte {
	key := hmacSHA256([]byte("AWS4"+secretAccessKey), []byte(sc.date))
	key = hmacSHA256(key, []byte(sc.region))
	key = hmacSHA256(key, []byte(sc.service))
	return hmacSHA256(key, []byte(requestTerminator))
}

// computeSignature derives the request signature for a secret. The query
// is passed separately so presigned verification can exclude
// X-Amz-Signature from the canonical form.
func computeSignature(secretAccessKey string, r *http.Request, query url.Values, sc scope, amzDate string, signedHeaders []string, payloadHash string) (string, error) {
	canonical, err := canonicalRequest(r, query, signedHeaders, payloadHash)
	if err != nil {
		return "", err
	}

	toSign := strings.Join([]string{
		signingAlgorithm,
		amzDate,
		sc.String(),
		sha256Hex([]byte(canonical)),
	}, "\n")

	signature := hmacSHA256(signingKey(secretAccessKey, sc), []byte(toSign))
	return hex.EncodeToString(signature), nil
}

// canonicalRequest assembles the canonical form:
// method, encoded path, sorted query, signed headers, header list, payload hash.
func canonicalRequest(r *http.Request, query url.Values, signedHeaders []string, payloadHash string) (string, error) {
	headers, err := canonicalHeaders(r, signedHeaders)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{
		strings.ToUpper(r.Method),
		EncodePath(r.URL.Path),
		canonicalQueryString(query),
		headers,
		strings.Join(signedHeaders, ";"),
		payloadHash,
	}, "\n"), nil
}

// canonicalQueryString sorts parameters by key, then value, and encodes
// both strictly.
func canonicalQueryString(query url.Values) string {
	type pair struct{ key, value string }
	pairs := make([]pair, 0, len(query))
	for key, values := range query {
		for _, value := range values {
			pairs = append(pairs, pair{key: key, value: value})
		}
	}
	sort.Slice(pairs, func(i, k int) bool {
		if pairs[i].key != pairs[k].key {
			return pairs[i].key < pairs[k].key
		}
		return pairs[i].value < pairs[k].value
	})

	var out strings.Builder
	for i, p := range pairs {
		if i > 0 {
			out.WriteByte('&')
		}
		out.WriteString(encodeURIComponent(p.key, true))
		out.WriteByte('=')
		out.WriteString(encodeURIComponent(p.value, true))
	}
	return out.String()
}

// canonicalHeaders renders one "name:value\n" line per signed header.
// Values are trimmed and inner whitespace runs collapse to one space;
// multiple values join with a comma.
func canonicalHeaders(r *http.Request, signedHeaders []string) (string, error) {
	var out strings.Builder
	for _, name := range signedHeaders {
		if name != strings.ToLower(name) {
			return "", s3.ErrInvalidArgument.New("signed header names must be lowercase")
		}

		var values []string
		switch name {
		case "host":
			values = []string{r.Host}
		case "content-length":
			values = r.Header.Values("Content-Length")
			if len(values) == 0 && r.ContentLength > 0 {
				values = []string{strconv.FormatInt(r.ContentLength, 10)}
			}
		default:
			values = r.Header.Values(name)
		}

		trimmed := make([]string, len(values))
		for i, value := range values {
			trimmed[i] = collapseSpaces(value)
		}

		out.WriteString(name)
		out.WriteByte(':')
		out.WriteString(strings.Join(trimmed, ","))
		out.WriteByte('\n')
	}
	return out.String(), nil
}

func collapseSpaces(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

// EncodePath URI-encodes a request path for the canonical form,
// preserving '/' between segments.
func EncodePath(path string) string {
	if path == "" {
		return "/"
	}
	return encodeURIComponent(path, false)
}

// encodeURIComponent percent-encodes everything except unreserved
// characters. Unlike url.QueryEscape, a space becomes %20 and '~' stays
// literal. With encodeSlash unset, '/' stays literal too.
func encodeURIComponent(s string, encodeSlash bool) string {
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			out.WriteByte(c)
		case c == '-' || c == '_' || c == '.' || c == '~':
			out.WriteByte(c)
		case c == '/' && !encodeSlash:
			out.WriteByte(c)
		default:
			out.WriteByte('%')
			out.WriteString(strings.ToUpper(hex.EncodeToString([]byte{c})))
		}
	}
	return out.String()
}
