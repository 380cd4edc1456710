// Package storage загружает медиафайлы инцидентов в S3-совместимое хранилище.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// objectPutter - часть клиента S3, которой пользуется загрузчик
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options - параметры подключения к хранилищу
type S3Options struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

type S3Uploader struct {
	client  objectPutter
	bucket  string
	baseURL string
	now     func() time.Time
}

// NewS3Uploader создает клиент S3. Endpoint задается для MinIO и других совместимых хранилищ.
func NewS3Uploader(ctx context.Context, opts S3Options) (*S3Uploader, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Uploader(client, opts), nil
}

func newS3Uploader(client objectPutter, opts S3Options) *S3Uploader {
	return &S3Uploader{
		client:  client,
		bucket:  opts.Bucket,
		baseURL: publicBaseURL(opts),
		now:     time.Now,
	}
}

func publicBaseURL(opts S3Options) string {
	switch {
	case opts.PublicBaseURL != "":
		return strings.TrimRight(opts.PublicBaseURL, "/")
	case opts.Endpoint != "":
		return strings.TrimRight(opts.Endpoint, "/") + "/" + opts.Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
	}
}

// Upload кладет файл под ключом incidents/YYYY/MM/DD/<uuid><ext> и возвращает публичный URL
func (u *S3Uploader) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	key := fmt.Sprintf("incidents/%s/%s%s", u.now().UTC().Format("2006/01/02"), uuid.NewString(), ext)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := u.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return u.baseURL + "/" + key, nil
}
