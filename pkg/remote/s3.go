package remote

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store implements Store against one bucket/prefix.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store creates a store rooted at s3://bucket/prefix.
func NewS3Store(cfg aws.Config, bucket, prefix string) *S3Store {
	return &S3Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// ParseS3URI splits s3://bucket/prefix into its parts.
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(uri, "s3://") {
		return "", "", fmt.Errorf("URI must start with s3://")
	}

	path := strings.TrimPrefix(uri, "s3://")
	parts := strings.SplitN(path, "/", 2)

	bucket = parts[0]
	if len(parts) > 1 {
		prefix = parts[1]
	}

	if bucket == "" {
		return "", "", fmt.Errorf("bucket name cannot be empty")
	}

	return bucket, prefix, nil
}

func (c *S3Store) key(path string) string {
	if c.prefix == "" {
		return path
	}
	return c.prefix + "/" + path
}

func (c *S3Store) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object

	listPrefix := c.key(prefix)
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(listPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects in s3://%s/%s: %w", c.bucket, listPrefix, err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil || obj.Size == nil {
				continue
			}

			path := *obj.Key
			if c.prefix != "" {
				path = strings.TrimPrefix(path, c.prefix+"/")
			}

			objects = append(objects, Object{
				Path:    path,
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}

	return objects, nil
}

func (c *S3Store) Head(ctx context.Context, key string) (*Object, error) {
	resp, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:       aws.String(c.bucket),
		Key:          aws.String(c.key(key)),
		ChecksumMode: types.ChecksumModeEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("head object %s: %w", key, err)
	}

	obj := &Object{
		Path:    key,
		Size:    aws.ToInt64(resp.ContentLength),
		ModTime: aws.ToTime(resp.LastModified),
	}
	if resp.ChecksumSHA256 != nil {
		obj.ChecksumSHA256 = *resp.ChecksumSHA256
	}

	return obj, nil
}

func (c *S3Store) Put(ctx context.Context, in *PutInput) error {
	input := &s3.PutObjectInput{
		Bucket:            aws.String(c.bucket),
		Key:               aws.String(c.key(in.Key)),
		Body:              in.Body,
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
	}
	// A precomputed full-object checksum is only valid for single-part
	// uploads; multipart stores a composite digest instead.
	if in.ChecksumSHA256 != "" && (in.PartSize <= 0 || in.Size <= in.PartSize) {
		input.ChecksumSHA256 = aws.String(in.ChecksumSHA256)
	}
	if in.ContentType != "" {
		input.ContentType = aws.String(in.ContentType)
	}

	uploader := manager.NewUploader(c.client, func(u *manager.Uploader) {
		if in.PartSize > 0 {
			u.PartSize = in.PartSize
		}
	})

	if _, err := uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("put object %s: %w", in.Key, err)
	}

	return nil
}

func (c *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(key)),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return resp.Body, nil
}
