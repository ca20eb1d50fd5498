package storage

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"

	"github.com/cyderes/lakehouse-pipeline/internal/config"
)

// deleteBatchSize is the S3 limit of keys per DeleteObjects call.
const deleteBatchSize = 1000

// S3Storage implements ObjectStore on an S3-compatible API such as Cloudflare R2
type S3Storage struct {
	client   s3iface.S3API
	uploader *s3manager.Uploader
}

// NewS3Storage creates a new S3 storage instance
func NewS3Storage(cfg config.ObjectStoreConfig) (*S3Storage, error) {
	awsConfig := &aws.Config{
		Region:           aws.String(cfg.Region),
		Endpoint:         aws.String(cfg.EndpointURL()),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create AWS session")
	}

	return NewS3StorageWithClient(s3.New(sess)), nil
}

// NewS3StorageWithClient wraps an existing S3 client
func NewS3StorageWithClient(client s3iface.S3API) *S3Storage {
	return &S3Storage{
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
	}
}

// Put uploads body to bucket/key
func (s *S3Storage) Put(ctx context.Context, bucket, key string, body io.Reader, contentType string, metadata map[string]string) error {
	input := &s3manager.UploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if len(metadata) > 0 {
		input.Metadata = aws.StringMap(metadata)
	}

	if _, err := s.uploader.UploadWithContext(ctx, input); err != nil {
		return errors.Wrapf(err, "failed to upload %s", URL(bucket, key))
	}
	return nil
}

// Get downloads the object at bucket/key
func (s *S3Storage) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, errors.Wrap(ErrNotFound, URL(bucket, key))
		}
		return nil, errors.Wrapf(err, "failed to get %s", URL(bucket, key))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", URL(bucket, key))
	}
	return data, nil
}

// List returns every object under prefix
func (s *S3Storage) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	var objects []Object
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			objects = append(objects, Object{
				Key:          aws.StringValue(obj.Key),
				Size:         aws.Int64Value(obj.Size),
				LastModified: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", URL(bucket, prefix))
	}
	return objects, nil
}

// DeletePrefix removes every object under prefix and returns the number deleted
func (s *S3Storage) DeletePrefix(ctx context.Context, bucket, prefix string) (int, error) {
	objects, err := s.List(ctx, bucket, prefix)
	if err != nil {
		return 0, err
	}
	keys := make([]string, len(objects))
	for i, obj := range objects {
		keys[i] = obj.Key
	}
	return s.Delete(ctx, bucket, keys)
}

// Delete removes keys in batches of deleteBatchSize and returns the number
// deleted
func (s *S3Storage) Delete(ctx context.Context, bucket string, keys []string) (int, error) {
	deleted := 0
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}

		ids := make([]*s3.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			ids = append(ids, &s3.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &s3.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, errors.Wrapf(err, "failed to delete objects in %s", bucket)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return deleted, errors.Errorf("failed to delete %s: %s", aws.StringValue(first.Key), aws.StringValue(first.Message))
		}
		deleted += len(ids)
	}
	return deleted, nil
}

// Close closes the S3 client
func (s *S3Storage) Close() error {
	// S3 client doesn't need explicit closing
	return nil
}
