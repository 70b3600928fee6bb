package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Original supplier report files are archived to S3 so a disputed bonus can
// be traced back to the exact spreadsheet the supplier sent.

const (
	defaultBucket = "salongdrift"
	reportPrefix  = "supplierreports/"
	defaultRegion = "eu-north-1"
)

func bucket() string {
	if b := strings.TrimSpace(os.Getenv("SUPPLIER_REPORT_S3_BUCKET")); b != "" {
		return b
	}
	return defaultBucket
}

func region() string {
	if r := strings.TrimSpace(os.Getenv("SUPPLIER_REPORT_S3_REGION")); r != "" {
		return r
	}
	return defaultRegion
}

func baseURL() string {
	if u := strings.TrimSpace(os.Getenv("SUPPLIER_REPORT_S3_BASE_URL")); u != "" {
		return strings.TrimSuffix(u, "/") + "/"
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", bucket(), region())
}

// Enabled reads SUPPLIER_REPORT_S3_ENABLED. Defaults to false so local and
// test runs never need AWS credentials.
func Enabled() bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv("SUPPLIER_REPORT_S3_ENABLED")))
	return v == "1" || v == "true" || v == "yes"
}

func sanitizePathSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "_", "\\", "_")
	return replacer.Replace(s)
}

// ReportKey builds the object key for one supplier report file.
func ReportKey(supplierName, fileHash, fileExt string) string {
	ext := strings.TrimSpace(fileExt)
	if ext == "" {
		ext = ".bin"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s%s/%s%s", reportPrefix, sanitizePathSegment(supplierName), fileHash, ext)
}

func DetectContentType(data []byte) string {
	if len(data) == 0 {
		return "application/octet-stream"
	}
	if len(data) > 512 {
		return http.DetectContentType(data[:512])
	}
	return http.DetectContentType(data)
}

// UploadReport stores the original file and returns its public URL.
func UploadReport(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region()))
	if err != nil {
		return "", fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket()),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3 (bucket %s, key %s): %w", bucket(), key, err)
	}
	return baseURL() + key, nil
}
