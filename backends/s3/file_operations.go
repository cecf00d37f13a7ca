package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"go.uber.org/zap"

	"github.com/ebogdum/cloudbox/backends"
)

// CreateFile creates an empty object, replacing any existing content
func (p *Provider) CreateFile(ctx context.Context, parent *backends.DirectoryEntry, name string) (*backends.FileEntry, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if parent == nil || name == "" {
		return nil, backends.NewError(backends.CodeInvalidParameters, "parent and name are required", nil)
	}

	path := backends.ResolvePath(name, parent)
	putInput := &s3.PutObjectInput{
		Bucket: aws.String(p.bucketName),
		Key:    aws.String(p.pathToKey(path)),
		Body:   bytes.NewReader([]byte{}),
	}
	p.applyObjectOptions(path, &putInput.ServerSideEncryption, &putInput.SSEKMSKeyId, &putInput.ACL, &putInput.ContentType)

	if _, err := p.client.PutObjectWithContext(ctx, putInput); err != nil {
		return nil, classify(err, "failed to put object to S3")
	}
	p.cache.Invalidate(path)

	return backends.NewFileEntry(path, 0, time.Now()), nil
}

// objectReader keeps the content length of a GetObject body visible to the
// transfer engine.
type objectReader struct {
	io.ReadCloser
	size int64
}

func (r *objectReader) Size() int64 { return r.size }

// OpenRead implements backends.Provider
func (p *Provider) OpenRead(ctx context.Context, file *backends.FileEntry) (io.ReadCloser, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if file == nil {
		return nil, backends.NewError(backends.CodeInvalidParameters, "file is required", nil)
	}
	key := p.pathToKey(file.Path())

	result, err := p.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(err, "failed to get object from S3")
	}

	p.logger.Debug("File opened from S3",
		zap.String("bucket", p.bucketName),
		zap.String("key", key))

	if result.ContentLength == nil {
		return result.Body, nil
	}
	return &objectReader{ReadCloser: result.Body, size: *result.ContentLength}, nil
}

// objectWriter streams writes into a multipart upload running in the
// background. Close waits for the upload to finish.
type objectWriter struct {
	pw     *io.PipeWriter
	done   chan error
	closed bool
}

func (w *objectWriter) Write(b []byte) (int, error) {
	return w.pw.Write(b)
}

func (w *objectWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.pw.Close()
	return <-w.done
}

// OpenWrite implements backends.Provider
func (p *Provider) OpenWrite(ctx context.Context, file *backends.FileEntry) (io.WriteCloser, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if file == nil {
		return nil, backends.NewError(backends.CodeInvalidParameters, "file is required", nil)
	}

	path := file.Path()
	key := p.pathToKey(path)
	pr, pw := io.Pipe()

	input := &s3manager.UploadInput{
		Bucket: aws.String(p.bucketName),
		Key:    aws.String(key),
		Body:   pr,
	}
	p.applyObjectOptions(path, &input.ServerSideEncryption, &input.SSEKMSKeyId, &input.ACL, &input.ContentType)

	w := &objectWriter{pw: pw, done: make(chan error, 1)}
	uploader := p.uploader
	go func() {
		_, err := uploader.UploadWithContext(ctx, input)
		// Unblock a writer still feeding a failed upload
		pr.CloseWithError(err)
		if err != nil {
			w.done <- classify(err, fmt.Sprintf("failed to upload %s to S3", key))
			return
		}
		p.logger.Debug("File uploaded to S3",
			zap.String("bucket", p.bucketName),
			zap.String("key", key))
		w.done <- nil
	}()

	p.cache.Invalidate(path)
	return w, nil
}

func (p *Provider) applyObjectOptions(path string, sse, kmsKeyID, acl, contentType **string) {
	// Set server-side encryption if configured
	if p.serverSideEncryption != "" {
		*sse = aws.String(p.serverSideEncryption)
		if p.serverSideEncryption == "aws:kms" && p.kmsKeyID != "" {
			*kmsKeyID = aws.String(p.kmsKeyID)
		}
	}
	if p.acl != "" {
		*acl = aws.String(p.acl)
	}
	*contentType = aws.String(getContentType(path))
}

// getContentType guesses the object MIME type from the path extension
func getContentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
