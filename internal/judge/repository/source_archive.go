package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"nitz/internal/common/storage"
	appErr "nitz/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

const sourceContentType = "application/zstd"

// SourceArchive keeps the merged source of every judged submission.
type SourceArchive interface {
	Store(ctx context.Context, submissionID, languageID, source string) (string, error)
	Load(ctx context.Context, key string) (string, error)
}

// ObjectSourceArchive stores zstd-compressed sources in an object storage bucket.
type ObjectSourceArchive struct {
	storage storage.ObjectStorage
	bucket  string
	now     func() time.Time
}

// NewObjectSourceArchive creates an archive writing to bucket.
func NewObjectSourceArchive(store storage.ObjectStorage, bucket string) *ObjectSourceArchive {
	return &ObjectSourceArchive{storage: store, bucket: bucket, now: time.Now}
}

// Store compresses and uploads source, returning the object key.
func (a *ObjectSourceArchive) Store(ctx context.Context, submissionID, languageID, source string) (string, error) {
	if a == nil || a.storage == nil || a.bucket == "" {
		return "", appErr.New(appErr.ObjectStorageError).WithMessage("source archive is not configured")
	}
	if submissionID == "" {
		return "", appErr.ValidationError("submission_id", "required")
	}
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return "", appErr.Wrapf(err, appErr.InternalServerError, "create zstd encoder failed")
	}
	if _, err := io.WriteString(enc, source); err != nil {
		_ = enc.Close()
		return "", appErr.Wrapf(err, appErr.InternalServerError, "compress source failed")
	}
	if err := enc.Close(); err != nil {
		return "", appErr.Wrapf(err, appErr.InternalServerError, "compress source failed")
	}

	key := fmt.Sprintf("sources/%s/%s/%s.zst", a.now().UTC().Format("2006/01/02"), languageID, submissionID)
	if err := a.storage.PutObject(ctx, a.bucket, key, &buf, int64(buf.Len()), sourceContentType); err != nil {
		return "", appErr.Wrapf(err, appErr.ObjectStorageError, "upload source failed")
	}
	return key, nil
}

// Load downloads and decompresses an archived source.
func (a *ObjectSourceArchive) Load(ctx context.Context, key string) (string, error) {
	if a == nil || a.storage == nil || a.bucket == "" {
		return "", appErr.New(appErr.ObjectStorageError).WithMessage("source archive is not configured")
	}
	reader, err := a.storage.GetObject(ctx, a.bucket, key)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.ObjectStorageError, "download source failed")
	}
	defer reader.Close()

	dec, err := zstd.NewReader(reader)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.ObjectStorageError, "open zstd stream failed")
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.ObjectStorageError, "decompress source failed")
	}
	return string(data), nil
}
