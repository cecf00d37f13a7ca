// Package s3 implements a storage provider on top of AWS S3 and S3
// compatible servers such as MinIO.
package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"go.uber.org/zap"

	"github.com/ebogdum/cloudbox/backends"
)

const (
	// Kind identifies s3 configurations
	Kind = "s3"
	// TokenType identifies s3 credential tokens
	TokenType = "s3.StaticCredentials"

	defaultPresignTTL = 15 * time.Minute
	entryCacheTTL     = 30 * time.Second
	entryCacheSize    = 4096
)

// Configuration selects a bucket and the endpoint serving it.
type Configuration struct {
	Bucket               string        `mapstructure:"bucket" validate:"required"`
	Region               string        `mapstructure:"region" validate:"required"`
	Endpoint             string        `mapstructure:"endpoint" validate:"omitempty,url"`
	ServerSideEncryption string        `mapstructure:"server_side_encryption" validate:"omitempty,oneof=AES256 aws:kms"`
	ACL                  string        `mapstructure:"acl"`
	KMSKeyID             string        `mapstructure:"kms_key_id"`
	ForcePathStyle       bool          `mapstructure:"force_path_style"`
	DisableSSL           bool          `mapstructure:"disable_ssl"`
	TrustUnsecure        bool          `mapstructure:"trust_unsecure_ssl"`
	PresignTTL           time.Duration `mapstructure:"presign_ttl"`
}

// Kind implements backends.Configuration
func (c *Configuration) Kind() string { return Kind }

// TrustUnsecureSSLConnections implements backends.Configuration
func (c *Configuration) TrustUnsecureSSLConnections() bool { return c.TrustUnsecure }

// Token carries static S3 credentials. An empty token lets the SDK fall back
// to its default credential chain.
type Token struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// TokenType implements backends.AccessToken
func (t *Token) TokenType() string { return TokenType }

func (t *Token) isEmpty() bool {
	return t == nil || (t.AccessKeyID == "" && t.SecretAccessKey == "")
}

// Provider implements backends.Provider for S3 buckets
type Provider struct {
	client               s3iface.S3API
	uploader             *s3manager.Uploader
	bucketName           string
	serverSideEncryption string
	acl                  string
	kmsKeyID             string
	presignTTL           time.Duration
	cache                *backends.EntryCache
	logger               *zap.Logger

	// injected replaces the session-built client, used with fakes
	injected s3iface.S3API
}

// New creates an unopened S3 provider
func New(logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{logger: logger}
}

// NewWithClient creates a provider that talks to client instead of building
// one from the configuration on Open.
func NewWithClient(client s3iface.S3API, logger *zap.Logger) *Provider {
	p := New(logger)
	p.injected = client
	return p
}

// Open implements backends.Provider
func (p *Provider) Open(ctx context.Context, cfg backends.Configuration, token backends.AccessToken) (backends.AccessToken, error) {
	s3Cfg, ok := cfg.(*Configuration)
	if !ok || s3Cfg == nil || s3Cfg.Bucket == "" {
		return nil, backends.NewError(backends.CodeInvalidParameters, "S3 bucket name is required", nil)
	}

	creds, _ := token.(*Token)
	if token != nil && creds == nil {
		return nil, backends.NewError(backends.CodeInvalidParameters, fmt.Sprintf("s3 provider cannot use %T", token), nil)
	}

	client := p.injected
	if client == nil {
		sess, err := newSession(s3Cfg, creds)
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS session: %w", err)
		}
		client = s3.New(sess)
	}

	// Verify bucket access
	_, err := client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s3Cfg.Bucket),
	})
	if err != nil {
		return nil, classify(err, "failed to access S3 bucket "+s3Cfg.Bucket)
	}

	p.client = client
	p.uploader = s3manager.NewUploaderWithClient(client)
	p.bucketName = s3Cfg.Bucket
	p.serverSideEncryption = s3Cfg.ServerSideEncryption
	p.acl = s3Cfg.ACL
	p.kmsKeyID = s3Cfg.KMSKeyID
	p.presignTTL = s3Cfg.PresignTTL
	if p.presignTTL <= 0 {
		p.presignTTL = defaultPresignTTL
	}
	p.cache = backends.NewEntryCache(entryCacheTTL, entryCacheSize)

	p.logger.Debug("S3 session opened",
		zap.String("bucket", s3Cfg.Bucket),
		zap.String("region", s3Cfg.Region),
		zap.Bool("static_credentials", !creds.isEmpty()))

	if creds == nil {
		creds = &Token{}
	}
	return creds, nil
}

func newSession(cfg *Configuration, creds *Token) (*session.Session, error) {
	awsConfig := &aws.Config{
		Region:     aws.String(cfg.Region),
		DisableSSL: aws.Bool(cfg.DisableSSL),
		HTTPClient: backends.NewHTTPClient(cfg.TrustUnsecure, 0),
	}

	if !creds.isEmpty() {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			creds.AccessKeyID,
			creds.SecretAccessKey,
			creds.SessionToken,
		)
	}

	// Set custom endpoint if provided (for MinIO compatibility)
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
		awsConfig.S3DisableContentMD5Validation = aws.Bool(true)
	}
	if cfg.ForcePathStyle {
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	return session.NewSession(awsConfig)
}

// Close implements backends.Provider
func (p *Provider) Close() error {
	if p.cache != nil {
		p.cache.Close()
		p.cache = nil
	}
	p.client = nil
	p.uploader = nil
	return nil
}

// StoreToken implements backends.Provider
func (p *Provider) StoreToken(data map[string]string, token backends.AccessToken) error {
	t, ok := token.(*Token)
	if !ok || t == nil {
		return backends.NewError(backends.CodeInvalidParameters, fmt.Sprintf("s3 provider cannot store %T", token), nil)
	}
	data["AccessKeyID"] = t.AccessKeyID
	data["SecretAccessKey"] = t.SecretAccessKey
	if t.SessionToken != "" {
		data["SessionToken"] = t.SessionToken
	}
	return nil
}

// LoadToken implements backends.Provider
func (p *Provider) LoadToken(data map[string]string) (backends.AccessToken, error) {
	id, hasID := data["AccessKeyID"]
	secret, hasSecret := data["SecretAccessKey"]
	if !hasID || !hasSecret {
		return nil, backends.NewError(backends.CodeUnexpectedPayloadShape, "s3 token needs AccessKeyID and SecretAccessKey", nil)
	}
	return &Token{AccessKeyID: id, SecretAccessKey: secret, SessionToken: data["SessionToken"]}, nil
}

func (p *Provider) checkOpen() error {
	if p.client == nil {
		return backends.NewError(backends.CodeOpenedConnectionNeeded, "s3 provider is not open", nil)
	}
	return nil
}

// pathToKey converts a remote path to an S3 key
func (p *Provider) pathToKey(path string) string {
	return strings.TrimPrefix(path, "/")
}

// keyToPath converts an S3 key to a remote path
func (p *Provider) keyToPath(key string) string {
	key = strings.TrimSuffix(key, "/")
	if key == "" {
		return "/"
	}
	if !strings.HasPrefix(key, "/") {
		key = "/" + key
	}
	return key
}

// dirPrefix is the listing prefix of a folder
func (p *Provider) dirPrefix(path string) string {
	prefix := p.pathToKey(path)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

// isS3NotFound checks if an error indicates the object was not found
func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return true
		}
	}
	return false
}

func isS3Unauthorized(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return true
		}
	}
	return false
}

// classify maps SDK errors onto the storage error taxonomy
func classify(err error, msg string) error {
	switch {
	case isS3Unauthorized(err):
		return backends.NewError(backends.CodeUnauthorizedAccess, msg, err)
	case isS3NotFound(err):
		return backends.NewError(backends.CodeFileNotFound, msg, err)
	default:
		return backends.NewError(backends.CodeProviderFailure, msg, err)
	}
}
