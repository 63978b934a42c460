package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/lectorium/lectorium/internal/common"
)

// metadata keys on remote objects; the object key is the document id, the
// name and placement hints live in metadata so Rename never moves content.
const (
	metaName    = "doc-name"
	metaParents = "doc-parents"
)

// S3Store implements Store against an S3-compatible document store.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds a client for bucket in region. An endpoint override
// (minio and friends) switches to path-style addressing. Static credentials,
// when given, come from the external auth flow.
func NewS3Store(ctx context.Context, bucket, region, endpoint, accessKey, secretKey, sessionToken string) (*S3Store, error) {

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, sessionToken)))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: bucket}, nil
}

// mapError classifies a remote failure. Authorization problems must surface
// (credentials are refreshed by an external flow, never retried here);
// permission problems trigger copy-fallback; everything else is transient
// by exclusion and safe to retry through the durable queue.
func (s *S3Store) mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ExpiredToken", "TokenRefreshRequired", "InvalidToken",
			"InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %s", common.ErrUnauthorized, apiErr.ErrorCode())
		case "AccessDenied", "AllAccessDisabled":
			return fmt.Errorf("%w: %s", common.ErrPermission, apiErr.ErrorCode())
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%w: %s", common.ErrNotFound, apiErr.ErrorCode())
		}
	}
	return fmt.Errorf("%w: %v", common.ErrTransient, err)
}

func (s *S3Store) Download(ctx context.Context, id string) ([]byte, error) {

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	defer out.Body.Close()

	blob, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransient, err)
	}
	return blob, nil
}

func (s *S3Store) Upload(ctx context.Context, blob []byte, name string, parents []string, mimeType string) (string, error) {

	id := uuid.NewString()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(id),
		Body:        bytes.NewReader(blob),
		ContentType: aws.String(mimeType),
		Metadata: map[string]string{
			metaName:    name,
			metaParents: strings.Join(parents, ","),
		},
	})
	if err != nil {
		return "", s.mapError(err)
	}
	return id, nil
}

func (s *S3Store) Update(ctx context.Context, id string, blob []byte, mimeType string) error {

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(id),
		Body:        bytes.NewReader(blob),
		ContentType: aws.String(mimeType),
	})
	return s.mapError(err)
}

func (s *S3Store) Rename(ctx context.Context, id string, name string) error {

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(s.bucket),
		CopySource:        aws.String(s.bucket + "/" + id),
		Key:               aws.String(id),
		Metadata:          map[string]string{metaName: name},
		MetadataDirective: types.MetadataDirectiveReplace,
	})
	return s.mapError(err)
}

// Online probes reachability with a short HeadBucket. Authorization failures
// still count as online: the connection works, the credential does not.
func (s *S3Store) Online(ctx context.Context) bool {

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return true
	}
	mapped := s.mapError(err)
	return errors.Is(mapped, common.ErrUnauthorized) || errors.Is(mapped, common.ErrPermission)
}
