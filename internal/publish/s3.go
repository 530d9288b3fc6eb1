package publish

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-worker/internal/core"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	defaultRegion    = "us-east-1"
	contentTypeWAV   = "audio/wav"
	headerACL        = "x-amz-acl"
	aclPublicRead    = "public-read"
	schemeHTTPS      = "https"
	msgFmtUploadFail = "failed to upload audio: %v"
)

// ErrInvalidEndpoint is returned when the bucket endpoint URL has no host.
var ErrInvalidEndpoint = errors.New("invalid bucket endpoint url")

// S3Publisher uploads results to an S3-compatible bucket with a public-read ACL.
type S3Publisher struct {
	client      *minio.Client
	bucket      string
	endpointURL string
	log         *logger.Logger
}

// NewS3Publisher creates a publisher for the configured bucket using signature v4 and
// path-style addressing.
func NewS3Publisher(bucket BucketConfig, log *logger.Logger) (*S3Publisher, error) {
	endpoint, err := url.Parse(bucket.EndpointURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}

	if endpoint.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, bucket.EndpointURL)
	}

	client, err := minio.New(endpoint.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(bucket.AccessKeyID, bucket.SecretAccessKey, ""),
		Secure:       endpoint.Scheme == schemeHTTPS,
		Region:       defaultRegion,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client for %s: %w", endpoint.Host, err)
	}

	name := bucket.Name
	if name == "" {
		name = DefaultBucketName
	}

	return &S3Publisher{
		client:      client,
		bucket:      name,
		endpointURL: strings.TrimRight(bucket.EndpointURL, "/"),
		log:         log,
	}, nil
}

// Publish uploads localPath under its basename and returns the object URL.
func (p *S3Publisher) Publish(ctx context.Context, localPath string) (string, error) {
	objectName := filepath.Base(localPath)

	info, err := p.client.FPutObject(ctx, p.bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType:  contentTypeWAV,
		UserMetadata: map[string]string{headerACL: aclPublicRead},
	})
	if err != nil {
		p.log.Error("Failed to upload %s to bucket %s: %v", localPath, p.bucket, err)

		return "", core.Fail(core.ErrPublish, err, msgFmtUploadFail, err)
	}

	p.log.Info("Uploaded %s to bucket %s (%d bytes)", objectName, p.bucket, info.Size)

	return fmt.Sprintf("%s/%s/%s", p.endpointURL, p.bucket, objectName), nil
}
