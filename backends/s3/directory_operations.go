package s3

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"

	"github.com/ebogdum/cloudbox/backends"
	"github.com/ebogdum/cloudbox/internal/pathutil"
)

// deleteBatchSize is the S3 limit for DeleteObjects
const deleteBatchSize = 1000

// GetRoot implements backends.Provider
func (p *Provider) GetRoot(ctx context.Context) (*backends.DirectoryEntry, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	return backends.NewDirectoryEntry(pathutil.Delimiter, time.Time{}, p), nil
}

// GetFileSystemObject resolves an object key first and falls back to a
// folder prefix.
func (p *Provider) GetFileSystemObject(ctx context.Context, name string, parent *backends.DirectoryEntry) (backends.FileSystemEntry, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}

	path := backends.ResolvePath(name, parent)
	if path == pathutil.Delimiter {
		return p.GetRoot(ctx)
	}
	if entry, ok := p.cache.Get(path); ok {
		return entry, nil
	}

	entry, err := p.stat(ctx, path)
	if err != nil {
		return nil, err
	}
	p.cache.Set(entry)
	return entry, nil
}

func (p *Provider) stat(ctx context.Context, path string) (backends.FileSystemEntry, error) {
	key := p.pathToKey(path)

	head, err := p.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucketName),
		Key:    aws.String(key),
	})
	if err == nil {
		return backends.NewFileEntry(path, aws.Int64Value(head.ContentLength), aws.TimeValue(head.LastModified)), nil
	}
	if !isS3NotFound(err) {
		return nil, classify(err, "failed to stat object in S3")
	}

	// No object under the key itself; a folder exists if anything lives below it
	listed, err := p.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucketName),
		Prefix:  aws.String(key + "/"),
		MaxKeys: aws.Int64(1),
	})
	if err != nil {
		return nil, classify(err, "failed to list objects in S3")
	}
	if len(listed.Contents) == 0 && len(listed.CommonPrefixes) == 0 {
		return nil, backends.NewError(backends.CodeFileNotFound, path, nil)
	}

	var modified time.Time
	if len(listed.Contents) > 0 && aws.StringValue(listed.Contents[0].Key) == key+"/" {
		modified = aws.TimeValue(listed.Contents[0].LastModified)
	}
	return backends.NewDirectoryEntry(path, modified, p), nil
}

// ListChildren lists the contents of a folder
func (p *Provider) ListChildren(ctx context.Context, dir *backends.DirectoryEntry) ([]backends.FileSystemEntry, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if dir == nil {
		return nil, backends.NewError(backends.CodeInvalidParameters, "directory is required", nil)
	}

	prefix := p.dirPrefix(dir.Path())
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(p.bucketName),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}

	var results []backends.FileSystemEntry

	for {
		result, err := p.client.ListObjectsV2WithContext(ctx, input)
		if err != nil {
			return nil, classify(err, "failed to list objects in S3")
		}

		// Process directory objects (common prefixes)
		for _, commonPrefix := range result.CommonPrefixes {
			if commonPrefix.Prefix == nil {
				continue
			}
			dirName := strings.TrimSuffix(strings.TrimPrefix(*commonPrefix.Prefix, prefix), "/")
			if dirName == "" {
				continue
			}
			results = append(results, backends.NewDirectoryEntry(p.keyToPath(*commonPrefix.Prefix), time.Time{}, p))
		}

		// Process file objects
		for _, object := range result.Contents {
			if object.Key == nil || strings.HasSuffix(*object.Key, "/") {
				continue
			}
			fileName := strings.TrimPrefix(*object.Key, prefix)
			if fileName == "" || strings.Contains(fileName, "/") {
				continue
			}
			entry := backends.NewFileEntry(p.keyToPath(*object.Key), aws.Int64Value(object.Size), aws.TimeValue(object.LastModified))
			p.cache.Set(entry)
			results = append(results, entry)
		}

		if !aws.BoolValue(result.IsTruncated) || result.NextContinuationToken == nil {
			break
		}
		input.ContinuationToken = result.NextContinuationToken
	}

	return results, nil
}

// CreateFolder creates a folder marker object (S3 has no real directories)
func (p *Provider) CreateFolder(ctx context.Context, name string, parent *backends.DirectoryEntry) (*backends.DirectoryEntry, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, backends.NewError(backends.CodeInvalidParameters, "folder name is required", nil)
	}

	path := backends.ResolvePath(name, parent)
	key := p.dirPrefix(path)

	_, err := p.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader([]byte{}),
	})
	if err != nil {
		return nil, classify(err, "failed to create directory marker in S3")
	}

	p.logger.Debug("Directory created in S3",
		zap.String("bucket", p.bucketName),
		zap.String("key", key))

	entry := backends.NewDirectoryEntry(path, time.Now(), p)
	p.cache.Invalidate(path)
	return entry, nil
}

// Delete removes an object, or every object below a folder
func (p *Provider) Delete(ctx context.Context, entry backends.FileSystemEntry) (bool, error) {
	if err := p.checkOpen(); err != nil {
		return false, err
	}
	if entry == nil || entry.Path() == pathutil.Delimiter {
		return false, backends.NewError(backends.CodeInvalidParameters, "cannot delete the root", nil)
	}
	defer p.cache.Invalidate(entry.Path())

	if !entry.IsDirectory() {
		_, err := p.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(p.bucketName),
			Key:    aws.String(p.pathToKey(entry.Path())),
		})
		if err != nil {
			return false, classify(err, "failed to delete object from S3")
		}
		return true, nil
	}

	keys, err := p.listKeys(ctx, p.dirPrefix(entry.Path()))
	if err != nil {
		return false, err
	}
	if err := p.deleteKeys(ctx, keys); err != nil {
		return false, err
	}

	p.logger.Debug("Folder deleted from S3",
		zap.String("bucket", p.bucketName),
		zap.Int("objects", len(keys)))
	return true, nil
}

// Move implements backends.Provider
func (p *Provider) Move(ctx context.Context, entry backends.FileSystemEntry, newParent *backends.DirectoryEntry) (bool, error) {
	if entry == nil || newParent == nil {
		return false, backends.NewError(backends.CodeInvalidParameters, "entry and new parent are required", nil)
	}
	return p.relocate(ctx, entry, pathutil.Combine(newParent.Path(), entry.Name()), true)
}

// Copy implements backends.Provider
func (p *Provider) Copy(ctx context.Context, entry backends.FileSystemEntry, newParent *backends.DirectoryEntry) (bool, error) {
	if entry == nil || newParent == nil {
		return false, backends.NewError(backends.CodeInvalidParameters, "entry and new parent are required", nil)
	}
	return p.relocate(ctx, entry, pathutil.Combine(newParent.Path(), entry.Name()), false)
}

// Rename implements backends.Provider
func (p *Provider) Rename(ctx context.Context, entry backends.FileSystemEntry, newName string) (bool, error) {
	if entry == nil || newName == "" || strings.Contains(newName, "/") {
		return false, backends.NewError(backends.CodeInvalidParameters, "entry and a plain new name are required", nil)
	}
	return p.relocate(ctx, entry, pathutil.Combine(pathutil.ParentOrRoot(entry.Path()), newName), true)
}

// relocate copies every key of entry to the target path, server side, and
// removes the sources when move is set.
func (p *Provider) relocate(ctx context.Context, entry backends.FileSystemEntry, target string, move bool) (bool, error) {
	if err := p.checkOpen(); err != nil {
		return false, err
	}
	from := entry.Path()
	if from == pathutil.Delimiter || from == target || strings.HasPrefix(target, from+"/") {
		return false, backends.NewError(backends.CodeInvalidParameters, fmt.Sprintf("cannot relocate %s to %s", from, target), nil)
	}
	defer p.cache.Invalidate(from)
	defer p.cache.Invalidate(target)

	var sources []string
	if entry.IsDirectory() {
		keys, err := p.listKeys(ctx, p.dirPrefix(from))
		if err != nil {
			return false, err
		}
		sources = keys
	} else {
		sources = []string{p.pathToKey(from)}
	}

	fromKey, targetKey := p.pathToKey(from), p.pathToKey(target)
	for _, src := range sources {
		dst := targetKey + strings.TrimPrefix(src, fromKey)
		_, err := p.client.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(p.bucketName),
			CopySource: aws.String((&url.URL{Path: p.bucketName + "/" + src}).EscapedPath()),
			Key:        aws.String(dst),
		})
		if err != nil {
			return false, classify(err, "failed to copy object "+src)
		}
	}

	if move {
		if err := p.deleteKeys(ctx, sources); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (p *Provider) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := p.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucketName),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, object := range page.Contents {
			keys = append(keys, aws.StringValue(object.Key))
		}
		return true
	})
	if err != nil {
		return nil, classify(err, "failed to list objects in S3")
	}
	return keys, nil
}

func (p *Provider) deleteKeys(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}

		objects := make([]*s3.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, &s3.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := p.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(p.bucketName),
			Delete: &s3.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return classify(err, "failed to delete objects from S3")
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return backends.NewError(backends.CodeProviderFailure,
				fmt.Sprintf("failed to delete %s: %s", aws.StringValue(first.Key), aws.StringValue(first.Message)), nil)
		}
	}
	return nil
}

// GetFileSystemObjectURL returns a presigned GET URL for the object
func (p *Provider) GetFileSystemObjectURL(ctx context.Context, path string, parent *backends.DirectoryEntry) (*url.URL, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}

	req, _ := p.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(p.bucketName),
		Key:    aws.String(p.pathToKey(backends.ResolvePath(path, parent))),
	})
	req.SetContext(ctx)

	signed, err := req.Presign(p.presignTTL)
	if err != nil {
		return nil, classify(err, "failed to presign object URL")
	}
	return url.Parse(signed)
}

// GetFileSystemObjectPath implements backends.Provider
func (p *Provider) GetFileSystemObjectPath(entry backends.FileSystemEntry) string {
	if entry == nil {
		return ""
	}
	return entry.Path()
}
