package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/illarion/dekvault/internal/storage"
)

// S3 stores one object per identity under bucket/prefix
type S3 struct {
	client s3iface.S3API
	bucket string
	prefix string
}

// NewS3 wraps an existing client
func NewS3(client s3iface.S3API, bucket, prefix string) (*S3, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 backend requires a bucket")
	}
	return &S3{client: client, bucket: bucket, prefix: prefix}, nil
}

// NewS3FromConfig builds a client from the default AWS credential chain.
// A non-empty endpoint selects an S3-compatible service with path-style
// addressing.
func NewS3FromConfig(bucket, prefix, region, endpoint string) (*S3, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	if endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, unavailable("session", err)
	}
	return NewS3(s3.New(sess), bucket, prefix)
}

func (s *S3) objectKey(identity string) (string, error) {
	key, err := bundleKey(identity)
	if err != nil {
		return "", err
	}
	return path.Join(s.prefix, key+".json"), nil
}

func (s *S3) Get(ctx context.Context, identity string) (*storage.KeyBundle, error) {
	key, err := s.objectKey(identity)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(fmt.Sprintf("get s3://%s/%s", s.bucket, key), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxBundleSize+1))
	if err != nil {
		return nil, unavailable("read", err)
	}
	if len(data) > maxBundleSize {
		return nil, fmt.Errorf("%w: bundle too large", ErrUnavailable)
	}
	return decode(data)
}

func (s *S3) Put(ctx context.Context, identity string, bundle *storage.KeyBundle) error {
	key, err := s.objectKey(identity)
	if err != nil {
		return err
	}
	data, err := bundle.Marshal()
	if err != nil {
		return err
	}

	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return unavailable(fmt.Sprintf("put s3://%s/%s", s.bucket, key), err)
	}
	return nil
}

func (s *S3) Delete(ctx context.Context, identity string) error {
	key, err := s.objectKey(identity)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotExist(err) {
		return unavailable(fmt.Sprintf("delete s3://%s/%s", s.bucket, key), err)
	}
	return nil
}

func (s *S3) Close(context.Context) error {
	return nil
}

// isNotExist reports whether err is an S3 missing-object error. Code
// NotFound is not documented, but it's what HEAD-style requests return.
func isNotExist(err error) bool {
	aerr, ok := err.(awserr.Error)
	if !ok {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}
