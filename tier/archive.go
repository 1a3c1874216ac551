// Cold-tier archive over local directories and S3 locations.
package tier

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config contains S3 authentication configuration for cold archives.
type S3Config struct {
	AccessKey string
	SecretKey string
	Region    string
	Endpoint  string // Optional: custom S3-compatible endpoint
}

// locationScheme represents the scheme of an archive location.
type locationScheme string

const (
	schemeFile  locationScheme = "file"
	schemeS3    locationScheme = "s3"
	schemeLocal locationScheme = "local" // no scheme, local path
)

// detectScheme detects the location scheme from a path string.
func detectScheme(location string) locationScheme {
	lower := strings.ToLower(location)
	switch {
	case strings.HasPrefix(lower, "s3://"):
		return schemeS3
	case strings.HasPrefix(lower, "file://"):
		return schemeFile
	default:
		return schemeLocal
	}
}

// parseS3Location parses s3://bucket/prefix into bucket and prefix parts.
func parseS3Location(location string) (bucket, prefix string, err error) {
	path := strings.TrimPrefix(location, "s3://")
	parts := strings.SplitN(path, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid S3 location: %s", location)
	}
	if len(parts) == 2 {
		prefix = strings.TrimSuffix(parts[1], "/")
	}
	return parts[0], prefix, nil
}

// Archive is the cold tier: payload objects stored under their reference in
// a local directory or an S3 bucket.
type Archive struct {
	scheme locationScheme
	dir    string
	bucket string
	prefix string
	client *s3.Client
}

// NewArchive opens a cold archive. Supported locations are a local
// directory path, file://<dir>, or s3://bucket/prefix. cfg applies to S3
// locations only and may be nil to use ambient AWS configuration.
func NewArchive(ctx context.Context, location string, cfg *S3Config) (*Archive, error) {
	switch detectScheme(location) {
	case schemeLocal, schemeFile:
		dir := strings.TrimPrefix(location, "file://")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
		return &Archive{scheme: schemeLocal, dir: dir}, nil

	case schemeS3:
		bucket, prefix, err := parseS3Location(location)
		if err != nil {
			return nil, err
		}
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Archive{scheme: schemeS3, bucket: bucket, prefix: prefix, client: client}, nil

	default:
		return nil, fmt.Errorf("unsupported archive location: %s", location)
	}
}

// newS3Client creates an S3 client with the given configuration.
func newS3Client(ctx context.Context, cfg *S3Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error

	if cfg != nil && cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg != nil && cfg.AccessKey != "" && cfg.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := []func(*s3.Options){}
	if cfg != nil && cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // For S3-compatible services
		})
	}

	return s3.NewFromConfig(awsCfg, clientOpts...), nil
}

// key maps a payload reference to its S3 object key.
func (a *Archive) key(ref string) string {
	if a.prefix == "" {
		return ref
	}
	return a.prefix + "/" + ref
}

// Put stores data under ref. Local writes go through a temp file and a
// rename so a concurrent Get never sees a partial object; S3 puts are
// atomic already.
func (a *Archive) Put(ctx context.Context, ref string, data []byte) error {
	switch a.scheme {
	case schemeLocal:
		target := filepath.Join(a.dir, ref)
		tmp, err := os.CreateTemp(a.dir, ref+".tmp-*")
		if err != nil {
			return fmt.Errorf("failed to create temp object: %w", err)
		}
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return fmt.Errorf("failed to write object: %w", err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmp.Name())
			return fmt.Errorf("failed to close object: %w", err)
		}
		if err := os.Rename(tmp.Name(), target); err != nil {
			os.Remove(tmp.Name())
			return fmt.Errorf("failed to publish object: %w", err)
		}
		return nil

	case schemeS3:
		_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(a.key(ref)),
			Body:   bytes.NewReader(data),
		})
		if err != nil {
			return fmt.Errorf("failed to upload to S3: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unsupported archive scheme: %s", a.scheme)
	}
}

// Get reads the payload bytes stored under ref.
func (a *Archive) Get(ctx context.Context, ref string) ([]byte, error) {
	switch a.scheme {
	case schemeLocal:
		data, err := os.ReadFile(filepath.Join(a.dir, ref))
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read object %s: %w", ref, err)
		}
		return data, nil

	case schemeS3:
		resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(a.key(ref)),
		})
		if err != nil {
			if isS3NotFound(err) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
			}
			return nil, fmt.Errorf("failed to get S3 object %s: %w", ref, err)
		}
		defer resp.Body.Close()

		var buf bytes.Buffer
		if _, err := buf.ReadFrom(resp.Body); err != nil {
			return nil, fmt.Errorf("failed to read S3 object %s: %w", ref, err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("unsupported archive scheme: %s", a.scheme)
	}
}

// Delete removes the object stored under ref.
func (a *Archive) Delete(ctx context.Context, ref string) error {
	switch a.scheme {
	case schemeLocal:
		err := os.Remove(filepath.Join(a.dir, ref))
		if os.IsNotExist(err) {
			return nil
		}
		return err

	case schemeS3:
		_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(a.key(ref)),
		})
		return err

	default:
		return fmt.Errorf("unsupported archive scheme: %s", a.scheme)
	}
}

// isS3NotFound reports whether err is an S3 missing-key error.
func isS3NotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "NotFound")
}
