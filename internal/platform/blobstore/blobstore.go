// Package blobstore stores the raw treatment text files. A Store addresses a
// single bucket by flat string keys; failures the callers branch on are
// reported as *Error with an S3-style code.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNoSuchKey    = "NoSuchKey"
	CodeNoSuchBucket = "NoSuchBucket"

	// TextPlain is the content type every treatment file is written with.
	TextPlain = "text/plain"
)

// Object is a fetched item.
type Object struct {
	Key           string
	Body          []byte
	ContentType   string
	ContentLength int64
	ETag          string
}

// ObjectInfo is one entry of a bucket listing.
type ObjectInfo struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// Store is the object storage contract. Writes overwrite any existing object
// under the same key.
type Store interface {
	CreateTextFile(ctx context.Context, key string, data []byte) error
	GetItem(ctx context.Context, key string) (*Object, error)
	UpdateItem(ctx context.Context, key string, data []byte) error
	GetObjects(ctx context.Context) ([]ObjectInfo, error)
	DeleteItem(ctx context.Context, key string) error
}

// Error is a storage failure. Code is set for the not-found variants and
// empty for anything else, in which case Err carries the cause.
type Error struct {
	Code       string
	StatusCode int
	Key        string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Code != "" && e.Key != "":
		return fmt.Sprintf("blobstore %s: %s", e.Code, e.Key)
	case e.Code != "":
		return "blobstore " + e.Code
	default:
		return fmt.Sprintf("blobstore: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func noSuchKey(key string) error {
	return &Error{Code: CodeNoSuchKey, StatusCode: http.StatusNotFound, Key: key}
}

func noSuchBucket() error {
	return &Error{Code: CodeNoSuchBucket, StatusCode: http.StatusNotFound}
}

func upstream(err error) error {
	return &Error{StatusCode: http.StatusInternalServerError, Err: err}
}

// Code returns the storage code carried by err, or "".
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsNoSuchKey(err error) bool    { return Code(err) == CodeNoSuchKey }
func IsNoSuchBucket(err error) bool { return Code(err) == CodeNoSuchBucket }

// HasKey reports whether key appears in a listing.
func HasKey(objects []ObjectInfo, key string) bool {
	for _, o := range objects {
		if o.Key == key {
			return true
		}
	}
	return false
}
