package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
)

type GCSUploader struct {
	client *gcs.Client
	bucket string
	public bool
}

// NewGCSUploader opens a client for bucket. When public is set, uploaded objects
// get an allUsers reader ACL so the SPA can play audio directly.
func NewGCSUploader(ctx context.Context, bucket string, public bool) (*GCSUploader, error) {
	if bucket == "" {
		return nil, errors.New("storage bucket is empty")
	}
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSUploader{client: c, bucket: bucket, public: public}, nil
}

func (u *GCSUploader) Close() error { return u.client.Close() }

func (u *GCSUploader) Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (string, error) {
	obj := u.client.Bucket(u.bucket).Object(objectName)

	w := obj.NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	if u.public {
		if err := obj.ACL().Set(ctx, gcs.AllUsers, gcs.RoleReader); err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucket, objectName), nil
}

// Delete accepts either an object name or the URL returned by Upload.
// Missing objects are not an error.
func (u *GCSUploader) Delete(ctx context.Context, objectName string) error {
	objectName = strings.TrimPrefix(objectName, fmt.Sprintf("https://storage.googleapis.com/%s/", u.bucket))
	err := u.client.Bucket(u.bucket).Object(objectName).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}
