// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package metabase

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shellnoq/hafiz/s3"
	"github.com/shellnoq/hafiz/storage"
)

// Part number bounds of the wire protocol.
const (
	MinPartNumber = 1
	MaxPartNumber = 10000
)

// MultipartUpload is an in-progress upload. Completed and aborted uploads
// have no record at all; their ids resolve to NoSuchUpload.
type MultipartUpload struct {
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	UploadID    string    `json:"upload_id"`
	InitiatedAt time.Time `json:"initiated_at"`
	// Completing marks an upload whose assembly has started. It survives a
	// crash mid-complete, and a repeated Complete call picks up from it.
	Completing   bool              `json:"completing,omitempty"`
	UserMetadata map[string]string `json:"user_metadata,omitempty"`
}

// Part is one uploaded part. Parts are records of their own so distinct
// part numbers upload in parallel without touching shared state.
type Part struct {
	PartNumber   int               `json:"part_number"`
	ETag         string            `json:"etag"`
	Size         int64             `json:"size"`
	ContentID    storage.ContentID `json:"content_id"`
	LastModified time.Time         `json:"last_modified"`
}

// CompletedPart names one part of a Complete request.
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// BeginUpload starts a multipart upload and returns its fresh id.
func (db *DB) BeginUpload(ctx context.Context, bucket, key string, metadata map[string]string) (_ MultipartUpload, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := validateObjectKey(key); err != nil {
		return MultipartUpload{}, err
	}
	if _, err := db.GetBucket(ctx, bucket); err != nil {
		return MultipartUpload{}, err
	}

	now := db.now().UTC()
	upload := MultipartUpload{
		Bucket:       bucket,
		Key:          key,
		UploadID:     newID(now),
		InitiatedAt:  now,
		UserMetadata: metadata,
	}
	value, err := encodeRecord(upload)
	if err != nil {
		return MultipartUpload{}, err
	}
	if err := db.kv.Put(ctx, uploadKey(bucket, key, upload.UploadID), value); err != nil {
		return MultipartUpload{}, Error.Wrap(err)
	}

	db.log.Debug("multipart upload started",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.String("upload", upload.UploadID))
	mon.Meter("multipart_begin").Mark(1)
	return upload, nil
}

// UploadPart streams one part into the blob store and publishes its
// record. Re-uploading a part number replaces the previous part; a failed
// stream publishes nothing, so the previous part stays intact. The part
// record lands only while the upload is still live.
func (db *DB) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, body io.Reader) (_ Part, err error) {
	defer mon.Task()(&ctx)(&err)

	if partNumber < MinPartNumber || partNumber > MaxPartNumber {
		return Part{}, s3.ErrInvalidArgument.New("part number must be within %d and %d", MinPartNumber, MaxPartNumber)
	}
	if _, err := db.getUpload(ctx, bucket, key, uploadID); err != nil {
		return Part{}, err
	}

	hasher := md5.New()
	contentID, size, err := db.blobs.Put(ctx, io.TeeReader(body, hasher))
	if err != nil {
		return Part{}, Error.Wrap(err)
	}

	part := Part{
		PartNumber:   partNumber,
		ETag:         hex.EncodeToString(hasher.Sum(nil)),
		Size:         size,
		ContentID:    contentID,
		LastModified: db.now().UTC(),
	}
	value, err := encodeRecord(part)
	if err != nil {
		return Part{}, err
	}

	// The streaming above runs unlocked so parts proceed in parallel; only
	// the publish is serialized against the upload's terminal transition.
	unlock := db.uploadLocks.Lock(bucket, uploadID)
	defer unlock()

	if _, err := db.getUpload(ctx, bucket, key, uploadID); err != nil {
		return Part{}, err
	}
	if err := db.kv.Put(ctx, partKey(bucket, uploadID, partNumber), value); err != nil {
		return Part{}, Error.Wrap(err)
	}

	mon.Meter("multipart_part_put").Mark(1)
	mon.IntVal("multipart_part_size").Observe(size)
	return part, nil
}

// CompleteUpload assembles the listed parts into a single new object
// version and retires the upload. Of concurrent completes exactly one
// wins; later calls observe NoSuchUpload. A crash mid-complete leaves the
// upload record behind with Completing set and the call is safe to repeat:
// the blob concat is content addressed and the chain append dedupes on the
// upload id.
func (db *DB) CompleteUpload(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) (_ ObjectVersion, err error) {
	defer mon.Task()(&ctx)(&err)

	if len(parts) == 0 {
		return ObjectVersion{}, s3.ErrInvalidArgument.New("part list is empty")
	}
	for i, part := range parts {
		if part.PartNumber < MinPartNumber || part.PartNumber > MaxPartNumber {
			return ObjectVersion{}, s3.ErrInvalidArgument.New("part number must be within %d and %d", MinPartNumber, MaxPartNumber)
		}
		if i > 0 && parts[i-1].PartNumber >= part.PartNumber {
			return ObjectVersion{}, s3.ErrInvalidPartOrder.New("part numbers must be strictly increasing")
		}
	}
	record, err := db.GetBucket(ctx, bucket)
	if err != nil {
		return ObjectVersion{}, err
	}

	unlock := db.uploadLocks.Lock(bucket, uploadID)
	defer unlock()

	upload, err := db.getUpload(ctx, bucket, key, uploadID)
	if err != nil {
		return ObjectVersion{}, err
	}
	if !upload.Completing {
		upload.Completing = true
		value, err := encodeRecord(upload)
		if err != nil {
			return ObjectVersion{}, err
		}
		if err := db.kv.Put(ctx, uploadKey(bucket, key, uploadID), value); err != nil {
			return ObjectVersion{}, Error.Wrap(err)
		}
	}

	stored, err := db.getParts(ctx, bucket, uploadID)
	if err != nil {
		return ObjectVersion{}, err
	}

	var digests bytes.Buffer
	ids := make([]storage.ContentID, 0, len(parts))
	for i, listed := range parts {
		part, ok := stored[listed.PartNumber]
		if !ok {
			return ObjectVersion{}, s3.ErrInvalidPart.New("part %d was never uploaded", listed.PartNumber)
		}
		if !etagsEqual(listed.ETag, part.ETag) {
			return ObjectVersion{}, s3.ErrInvalidPart.New("part %d etag does not match", listed.PartNumber)
		}
		if i < len(parts)-1 && part.Size < db.config.MinPartSize {
			return ObjectVersion{}, s3.ErrEntityTooSmall.New("part %d is %d bytes, minimum is %d", listed.PartNumber, part.Size, db.config.MinPartSize)
		}
		raw, err := hex.DecodeString(part.ETag)
		if err != nil {
			return ObjectVersion{}, Error.New("stored etag of part %d is corrupt: %v", listed.PartNumber, err)
		}
		digests.Write(raw)
		ids = append(ids, part.ContentID)
	}
	compositeDigest := md5.Sum(digests.Bytes())
	compositeETag := hex.EncodeToString(compositeDigest[:]) + "-" + strconv.Itoa(len(parts))

	contentID, size, err := db.blobs.Concat(ctx, ids)
	if err != nil {
		return ObjectVersion{}, Error.Wrap(err)
	}

	now := db.now().UTC()
	version := ObjectVersion{
		Bucket:         bucket,
		Key:            key,
		IsLatest:       true,
		VersionID:      s3.NullVersionID,
		ETag:           compositeETag,
		Size:           size,
		ContentID:      contentID,
		CreatedAt:      now,
		Retention:      record.ObjectLock.DefaultVersionRetention(now),
		UserMetadata:   upload.UserMetadata,
		SourceUploadID: uploadID,
	}
	if record.Versioning.Enabled() {
		version.VersionID = newID(now)
	}

	var final ObjectVersion
	err = db.updateChain(ctx, bucket, key, func(chain *chainRecord) error {
		// a crashed previous attempt may have appended already
		for i := range chain.Versions {
			if chain.Versions[i].SourceUploadID == uploadID {
				final = chain.Versions[i]
				return errChainUnchanged
			}
		}
		if !record.Versioning.Enabled() {
			if i := chain.find(s3.NullVersionID); i >= 0 {
				if err := MayDeleteOrOverwrite(chain.Versions[i], now, false); err != nil {
					return err
				}
				chain.remove(i)
			}
		}
		chain.insertLatest(version)
		final = version
		return nil
	})
	if err != nil {
		return ObjectVersion{}, err
	}

	if err := db.kv.Delete(ctx, uploadKey(bucket, key, uploadID)); err != nil && !storage.ErrKeyNotFound.Has(err) {
		return ObjectVersion{}, Error.Wrap(err)
	}
	if err := db.deleteParts(ctx, bucket, uploadID); err != nil {
		return ObjectVersion{}, err
	}

	db.log.Debug("multipart upload completed",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.String("upload", uploadID),
		zap.Int("parts", len(parts)),
		zap.Int64("size", size))
	mon.Meter("multipart_complete").Mark(1)
	return final, nil
}

// AbortUpload retires the upload and its part records. Aborting an
// unknown or already-retired upload succeeds.
func (db *DB) AbortUpload(ctx context.Context, bucket, key, uploadID string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := db.GetBucket(ctx, bucket); err != nil {
		return err
	}

	unlock := db.uploadLocks.Lock(bucket, uploadID)
	defer unlock()

	if err := db.kv.Delete(ctx, uploadKey(bucket, key, uploadID)); err != nil {
		if storage.ErrKeyNotFound.Has(err) {
			return nil
		}
		return Error.Wrap(err)
	}
	if err := db.deleteParts(ctx, bucket, uploadID); err != nil {
		return err
	}

	db.log.Debug("multipart upload aborted",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.String("upload", uploadID))
	mon.Meter("multipart_abort").Mark(1)
	return nil
}

// ListUploadsOptions select and window a ListUploads.
type ListUploadsOptions struct {
	Prefix         string
	KeyMarker      string
	UploadIDMarker string
	Limit          int
}

// ListUploadsResult is one page of in-progress uploads, ordered by key and
// then by initiation within a key.
type ListUploadsResult struct {
	Uploads            []MultipartUpload
	Truncated          bool
	NextKeyMarker      string
	NextUploadIDMarker string
}

// ListUploads pages through the bucket's in-progress uploads.
func (db *DB) ListUploads(ctx context.Context, bucket string, opts ListUploadsOptions) (result ListUploadsResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := db.GetBucket(ctx, bucket); err != nil {
		return ListUploadsResult{}, err
	}
	limit := clampLimit(opts.Limit)

	iterPrefix := storage.Key(string(uploadPrefix(bucket)) + opts.Prefix)
	var first storage.Key
	if opts.KeyMarker != "" {
		if opts.UploadIDMarker != "" {
			first = append(uploadKey(bucket, opts.KeyMarker, opts.UploadIDMarker), 0)
		} else {
			first = storage.AfterPrefix(storage.Key(string(uploadPrefix(bucket)) + opts.KeyMarker + keySeparator))
		}
	}

	err = db.kv.Iterate(ctx, storage.IterateOptions{Prefix: iterPrefix, First: first}, func(ctx context.Context, it storage.Iterator) error {
		var item storage.ListItem
		for it.Next(ctx, &item) {
			if len(result.Uploads) == limit {
				result.Truncated = true
				return nil
			}
			var upload MultipartUpload
			if err := decodeRecord(item.Value, &upload); err != nil {
				return err
			}
			result.Uploads = append(result.Uploads, upload)
		}
		return nil
	})
	if err != nil {
		return ListUploadsResult{}, Error.Wrap(err)
	}

	if result.Truncated && len(result.Uploads) > 0 {
		last := result.Uploads[len(result.Uploads)-1]
		result.NextKeyMarker = last.Key
		result.NextUploadIDMarker = last.UploadID
	}
	return result, nil
}

// ListPartsOptions window a ListParts.
type ListPartsOptions struct {
	PartNumberMarker int
	Limit            int
}

// ListPartsResult is one page of an upload's parts in part-number order.
type ListPartsResult struct {
	Parts                []Part
	Truncated            bool
	NextPartNumberMarker int
}

// ListParts pages through the upload's parts.
func (db *DB) ListParts(ctx context.Context, bucket, key, uploadID string, opts ListPartsOptions) (result ListPartsResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := db.getUpload(ctx, bucket, key, uploadID); err != nil {
		return ListPartsResult{}, err
	}
	limit := clampLimit(opts.Limit)

	var first storage.Key
	if opts.PartNumberMarker > 0 {
		first = partKey(bucket, uploadID, opts.PartNumberMarker+1)
	}
	err = db.kv.Iterate(ctx, storage.IterateOptions{Prefix: partPrefix(bucket, uploadID), First: first}, func(ctx context.Context, it storage.Iterator) error {
		var item storage.ListItem
		for it.Next(ctx, &item) {
			if len(result.Parts) == limit {
				result.Truncated = true
				return nil
			}
			var part Part
			if err := decodeRecord(item.Value, &part); err != nil {
				return err
			}
			result.Parts = append(result.Parts, part)
		}
		return nil
	})
	if err != nil {
		return ListPartsResult{}, Error.Wrap(err)
	}

	if result.Truncated && len(result.Parts) > 0 {
		result.NextPartNumberMarker = result.Parts[len(result.Parts)-1].PartNumber
	}
	return result, nil
}

func (db *DB) getUpload(ctx context.Context, bucket, key, uploadID string) (MultipartUpload, error) {
	raw, err := db.kv.Get(ctx, uploadKey(bucket, key, uploadID))
	if err != nil {
		if storage.ErrKeyNotFound.Has(err) {
			return MultipartUpload{}, s3.ErrNoSuchUpload.New("%s", uploadID)
		}
		return MultipartUpload{}, Error.Wrap(err)
	}
	var upload MultipartUpload
	if err := decodeRecord(raw, &upload); err != nil {
		return MultipartUpload{}, err
	}
	return upload, nil
}

func (db *DB) getParts(ctx context.Context, bucket, uploadID string) (map[int]Part, error) {
	parts := make(map[int]Part)
	err := db.kv.Iterate(ctx, storage.IterateOptions{Prefix: partPrefix(bucket, uploadID)}, func(ctx context.Context, it storage.Iterator) error {
		var item storage.ListItem
		for it.Next(ctx, &item) {
			var part Part
			if err := decodeRecord(item.Value, &part); err != nil {
				return err
			}
			parts[part.PartNumber] = part
		}
		return nil
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return parts, nil
}

func (db *DB) deleteParts(ctx context.Context, bucket, uploadID string) error {
	var keys []storage.Key
	err := db.kv.Iterate(ctx, storage.IterateOptions{Prefix: partPrefix(bucket, uploadID)}, func(ctx context.Context, it storage.Iterator) error {
		var item storage.ListItem
		for it.Next(ctx, &item) {
			keys = append(keys, storage.CloneKey(item.Key))
		}
		return nil
	})
	if err != nil {
		return Error.Wrap(err)
	}
	for _, key := range keys {
		if err := db.kv.Delete(ctx, key); err != nil && !storage.ErrKeyNotFound.Has(err) {
			return Error.Wrap(err)
		}
	}
	return nil
}

// formatPartNumber renders part numbers fixed-width so the byte order of
// part keys is their numeric order.
func formatPartNumber(partNumber int) string {
	return fmt.Sprintf("%05d", partNumber)
}

// etagsEqual compares etags ignoring the wire quoting.
func etagsEqual(a, b string) bool {
	return strings.Trim(a, `"`) == strings.Trim(b, `"`)
}
