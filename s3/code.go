// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

// Package s3 contains the protocol-level types shared across the system:
// error codes, actions, resource names, versioning state and object lock.
package s3

import (
	"net/http"

	"github.com/zeebo/errs"
)

// Code is the wire name of a protocol error condition, as S3-compatible
// clients expect to find it in the Code element of an error response.
type Code string

// Error codes surfaced to clients.
const (
	CodeAccessDenied          Code = "AccessDenied"
	CodeInvalidAccessKeyID    Code = "InvalidAccessKeyId"
	CodeSignatureDoesNotMatch Code = "SignatureDoesNotMatch"
	CodeExpiredToken          Code = "ExpiredToken"
	CodeNoSuchBucket          Code = "NoSuchBucket"
	CodeNoSuchKey             Code = "NoSuchKey"
	CodeNoSuchUpload          Code = "NoSuchUpload"
	CodeNoSuchBucketPolicy    Code = "NoSuchBucketPolicy"
	CodeInvalidPart           Code = "InvalidPart"
	CodeInvalidPartOrder      Code = "InvalidPartOrder"
	CodeEntityTooSmall        Code = "EntityTooSmall"
	CodeEntityTooLarge        Code = "EntityTooLarge"
	CodeBucketNotEmpty        Code = "BucketNotEmpty"
	CodeBucketAlreadyExists   Code = "BucketAlreadyExists"
	CodeInvalidObjectState    Code = "InvalidObjectState"
	CodeInvalidBucketState    Code = "InvalidBucketState"
	CodeInvalidBucketName     Code = "InvalidBucketName"
	CodeInvalidArgument       Code = "InvalidArgument"
	CodeMalformedPolicy       Code = "MalformedPolicy"
	CodeMethodNotAllowed      Code = "MethodNotAllowed"
	CodeInternalError         Code = "InternalError"
)

// One error class per code, so that a wrapped error anywhere in the stack
// still resolves to its wire code via CodeOf.
var (
	ErrAccessDenied          = errs.Class(string(CodeAccessDenied))
	ErrInvalidAccessKeyID    = errs.Class(string(CodeInvalidAccessKeyID))
	ErrSignatureDoesNotMatch = errs.Class(string(CodeSignatureDoesNotMatch))
	ErrExpiredToken          = errs.Class(string(CodeExpiredToken))
	ErrNoSuchBucket          = errs.Class(string(CodeNoSuchBucket))
	ErrNoSuchKey             = errs.Class(string(CodeNoSuchKey))
	ErrNoSuchUpload          = errs.Class(string(CodeNoSuchUpload))
	ErrNoSuchBucketPolicy    = errs.Class(string(CodeNoSuchBucketPolicy))
	ErrInvalidPart           = errs.Class(string(CodeInvalidPart))
	ErrInvalidPartOrder      = errs.Class(string(CodeInvalidPartOrder))
	ErrEntityTooSmall        = errs.Class(string(CodeEntityTooSmall))
	ErrEntityTooLarge        = errs.Class(string(CodeEntityTooLarge))
	ErrBucketNotEmpty        = errs.Class(string(CodeBucketNotEmpty))
	ErrBucketAlreadyExists   = errs.Class(string(CodeBucketAlreadyExists))
	ErrInvalidObjectState    = errs.Class(string(CodeInvalidObjectState))
	ErrInvalidBucketState    = errs.Class(string(CodeInvalidBucketState))
	ErrInvalidBucketName     = errs.Class(string(CodeInvalidBucketName))
	ErrInvalidArgument       = errs.Class(string(CodeInvalidArgument))
	ErrMalformedPolicy       = errs.Class(string(CodeMalformedPolicy))
	ErrMethodNotAllowed      = errs.Class(string(CodeMethodNotAllowed))
	ErrInternalError         = errs.Class(string(CodeInternalError))
)

var codeClasses = []struct {
	code  Code
	class *errs.Class
}{
	{CodeAccessDenied, &ErrAccessDenied},
	{CodeInvalidAccessKeyID, &ErrInvalidAccessKeyID},
	{CodeSignatureDoesNotMatch, &ErrSignatureDoesNotMatch},
	{CodeExpiredToken, &ErrExpiredToken},
	{CodeNoSuchBucket, &ErrNoSuchBucket},
	{CodeNoSuchKey, &ErrNoSuchKey},
	{CodeNoSuchUpload, &ErrNoSuchUpload},
	{CodeNoSuchBucketPolicy, &ErrNoSuchBucketPolicy},
	{CodeInvalidPart, &ErrInvalidPart},
	{CodeInvalidPartOrder, &ErrInvalidPartOrder},
	{CodeEntityTooSmall, &ErrEntityTooSmall},
	{CodeEntityTooLarge, &ErrEntityTooLarge},
	{CodeBucketNotEmpty, &ErrBucketNotEmpty},
	{CodeBucketAlreadyExists, &ErrBucketAlreadyExists},
	{CodeInvalidObjectState, &ErrInvalidObjectState},
	{CodeInvalidBucketState, &ErrInvalidBucketState},
	{CodeInvalidBucketName, &ErrInvalidBucketName},
	{CodeInvalidArgument, &ErrInvalidArgument},
	{CodeMalformedPolicy, &ErrMalformedPolicy},
	{CodeMethodNotAllowed, &ErrMethodNotAllowed},
	{CodeInternalError, &ErrInternalError},
}

// CodeOf reports the wire code of err, unwrapping as needed. Errors that
// carry no code map to InternalError, which is also what the HTTP layer
// should tell the client about causes it cannot classify.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	for _, entry := range codeClasses {
		if entry.class.Has(err) {
			return entry.code
		}
	}
	return CodeInternalError
}

// HTTPStatus reports the HTTP status associated with the code.
func (code Code) HTTPStatus() int {
	switch code {
	case CodeInvalidPart, CodeInvalidPartOrder, CodeEntityTooSmall,
		CodeEntityTooLarge, CodeInvalidBucketName, CodeInvalidArgument,
		CodeMalformedPolicy:
		return http.StatusBadRequest
	case CodeAccessDenied, CodeInvalidAccessKeyID, CodeSignatureDoesNotMatch,
		CodeExpiredToken, CodeInvalidObjectState:
		return http.StatusForbidden
	case CodeNoSuchBucket, CodeNoSuchKey, CodeNoSuchUpload,
		CodeNoSuchBucketPolicy:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeBucketNotEmpty, CodeBucketAlreadyExists, CodeInvalidBucketState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (code Code) String() string { return string(code) }
