package destination

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// folderContentType marks the zero-byte objects that stand in for folders.
const folderContentType = "application/x-directory"

// S3Store mirrors backups into AWS S3 or S3-compatible storage. Containers
// are key prefixes, each materialised by a zero-byte "<prefix>/" marker
// object. Container IDs are prefixes relative to the configured path.
type S3Store struct {
	config   *Config
	s3Client *s3.S3
}

// NewS3Store creates a new S3 store
func NewS3Store(config *Config) (*S3Store, error) {
	// Build AWS config
	awsConfig := &aws.Config{
		Region: aws.String(config.S3Region),
	}
	if config.S3AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			config.S3AccessKey,
			config.S3SecretKey,
			"",
		)
	}

	// Custom endpoint for S3-compatible storage (MinIO, DigitalOcean Spaces, etc.)
	if config.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.S3Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	store := &S3Store{
		config:   config,
		s3Client: s3.New(sess),
	}

	log.Printf("[S3Dest] Initialized S3 destination: bucket=%s, region=%s",
		config.S3Bucket, config.S3Region)

	return store, nil
}

// FindOrCreateContainer writes a folder marker unless one already exists
func (sd *S3Store) FindOrCreateContainer(ctx context.Context, name, parentID string) (string, error) {
	id := path.Join(parentID, safeName(name))
	key := sd.key(id) + "/"

	_, err := sd.s3Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(sd.config.S3Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return id, nil
	}
	if !isNotFound(err) {
		return "", fmt.Errorf("failed to check folder '%s': %w", name, err)
	}

	_, err = sd.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(sd.config.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
		ContentType:   aws.String(folderContentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create folder '%s': %w", name, err)
	}

	log.Printf("[S3Dest] Created folder s3://%s/%s", sd.config.S3Bucket, key)
	return id, nil
}

// Upload uploads an artifact under the parent prefix
func (sd *S3Store) Upload(ctx context.Context, parentID, name string, reader io.Reader, contentType string) (string, error) {
	id := path.Join(parentID, safeName(name))
	key := sd.key(id)

	// PutObject needs a seekable body
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read data: %w", err)
	}

	log.Printf("[S3Dest] Uploading s3://%s/%s (%d bytes)", sd.config.S3Bucket, key, len(data))

	_, err = sd.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(sd.config.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		StorageClass:  aws.String("STANDARD"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return id, nil
}

// Type returns the destination type
func (sd *S3Store) Type() string {
	return TypeS3
}

// Close is a no-op; the AWS session holds no long-lived connections
func (sd *S3Store) Close() error {
	return nil
}

func (sd *S3Store) key(id string) string {
	return strings.TrimPrefix(path.Join(sd.config.Path, id), "/")
}

func isNotFound(err error) bool {
	if reqErr, ok := err.(awserr.RequestFailure); ok {
		return reqErr.StatusCode() == http.StatusNotFound
	}
	if aerr, ok := err.(awserr.Error); ok {
		return aerr.Code() == "NotFound" || aerr.Code() == s3.ErrCodeNoSuchKey
	}
	return false
}
