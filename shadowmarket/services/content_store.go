package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ContentStore archives accepted submissions to a Spaces bucket so the
// marketplace keeps serving images after the source link dies.
type ContentStore struct {
	client *s3.Client
	bucket string
	region string
	root   string
}

func NewContentStore(spacesKey, spacesSecret, region, bucket, root string) *ContentStore {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.digitaloceanspaces.com", region),
		}, nil
	})

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(spacesKey, spacesSecret, "")),
		config.WithRegion(region),
	)
	if err != nil {
		panic(fmt.Sprintf("Unable to load Spaces config: %v", err))
	}

	return &ContentStore{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		region: region,
		root:   strings.Trim(root, "/"),
	}
}

// Archive stores the raw bytes under the item's fingerprint and
// returns the public URL.
func (s *ContentStore) Archive(ctx context.Context, hashHex string, contentType string, data []byte) (string, error) {
	key := fmt.Sprintf("%s/%s", s.root, hashHex)
	ext := extensionFor(contentType)
	if ext != "" {
		key += ext
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
		ACL:         "public-read",
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive content: %w", err)
	}

	return fmt.Sprintf("https://%s.%s.digitaloceanspaces.com/%s", s.bucket, s.region, key), nil
}

// Remove deletes an archived object. Used when a listing is purged.
func (s *ContentStore) Remove(ctx context.Context, hashHex string, contentType string) error {
	key := fmt.Sprintf("%s/%s%s", s.root, hashHex, extensionFor(contentType))
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("failed to delete archived content: %w", err)
	}
	return nil
}

func (s *ContentStore) GetBucket() string { return s.bucket }
func (s *ContentStore) GetRegion() string { return s.region }

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	default:
		return ""
	}
}
