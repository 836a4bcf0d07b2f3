// Package s3 implements Transport against an AWS S3 (or S3-compatible)
// bucket using github.com/aws/aws-sdk-go. Directories are simulated from
// "/"-delimited key prefixes, the conventional S3 pseudo-filesystem.
package s3

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/endpoints"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/hoppy-fm/hoppy/internal/fsentity"
	"github.com/hoppy-fm/hoppy/internal/params"
	"github.com/hoppy-fm/hoppy/internal/transport"
	"github.com/hoppy-fm/hoppy/internal/xfererr"
)

// Transport implements Transport against one S3 bucket. Bucket is fixed
// at Connect time; Pwd/ChangeDir operate purely on the key-prefix
// namespace within it.
type Transport struct {
	svc    *s3.S3
	bucket string
	cwd    string
}

// New returns a disconnected S3 Transport.
func New() *Transport {
	return &Transport{}
}

func (t *Transport) Connect(ctx context.Context, p params.ProtocolParams) (string, error) {
	if t.svc != nil {
		return "", nil
	}
	cfg := p.S3
	if cfg == nil {
		return "", xfererr.New(xfererr.BadAddress)
	}

	// Credential precedence per spec: explicit access-key+secret, then a
	// named profile, then a bare security/session token, then defer to
	// the environment (AuthenticationFailed surfaces at first operation
	// if nothing is actually set there).
	var creds *credentials.Credentials
	switch {
	case cfg.SecretAccessKey != nil:
		creds = credentials.NewStaticCredentials(cfg.AccessKey, *cfg.SecretAccessKey, sessionTokenOf(cfg))
	case cfg.Profile != "":
		creds = credentials.NewSharedCredentials("", cfg.Profile)
	case cfg.SecurityToken != nil || cfg.SessionToken != nil:
		creds = credentials.NewStaticCredentials(cfg.AccessKey, "", sessionTokenOf(cfg))
	default:
		creds = credentials.NewEnvCredentials()
	}

	awsCfg := aws.NewConfig().
		WithCredentials(creds).
		WithRegion(cfg.Region).
		WithS3ForcePathStyle(cfg.NewPathStyle)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint)
	}
	if cfg.Region == "" {
		awsCfg = awsCfg.WithRegion(endpoints.UsEast1RegionID)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return "", xfererr.Wrap(xfererr.ConnectionError, err, "could not build aws session")
	}
	svc := s3.New(sess)
	if _, err := svc.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return "", xfererr.Wrap(xfererr.AuthenticationFailed, err, "bucket not reachable")
	}

	t.svc = svc
	t.bucket = cfg.Bucket
	t.cwd = "/"
	return "", nil
}

func sessionTokenOf(cfg *params.S3) string {
	if cfg.SessionToken != nil {
		return *cfg.SessionToken
	}
	if cfg.SecurityToken != nil {
		return *cfg.SecurityToken
	}
	return ""
}

func (t *Transport) Disconnect() error {
	t.svc = nil
	return nil
}

func (t *Transport) IsConnected() bool { return t.svc != nil }

func (t *Transport) ensure() error {
	if t.svc == nil {
		return xfererr.New(xfererr.UninitializedSession)
	}
	return nil
}

func (t *Transport) Pwd() (string, error) {
	if err := t.ensure(); err != nil {
		return "", err
	}
	return t.cwd, nil
}

// key converts an absolute "/"-rooted path into an S3 key by stripping the
// leading slash; it adds no trailing slash.
func key(p string) string {
	return strings.TrimPrefix(p, "/")
}

func (t *Transport) resolve(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Clean(path.Join(t.cwd, p))
}

func (t *Transport) ChangeDir(dir string) (string, error) {
	if err := t.ensure(); err != nil {
		return "", err
	}
	resolved := t.resolve(dir)
	if resolved != "/" {
		prefix := key(resolved) + "/"
		out, err := t.svc.ListObjectsV2(&s3.ListObjectsV2Input{
			Bucket:  aws.String(t.bucket),
			Prefix:  aws.String(prefix),
			MaxKeys: aws.Int64(1),
		})
		if err != nil || (len(out.Contents) == 0 && len(out.CommonPrefixes) == 0) {
			return "", xfererr.New(xfererr.NoSuchFileOrDirectory)
		}
	}
	t.cwd = resolved
	return t.cwd, nil
}

func (t *Transport) ListDir(dir string) ([]fsentity.Entity, error) {
	if err := t.ensure(); err != nil {
		return nil, err
	}
	resolved := t.resolve(dir)
	prefix := key(resolved)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var out []fsentity.Entity
	err := t.svc.ListObjectsV2Pages(&s3.ListObjectsV2Input{
		Bucket:    aws.String(t.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(*cp.Prefix, prefix), "/")
			if name == "" {
				continue
			}
			e := fsentity.New(path.Join(resolved, name), fsentity.KindDirectory)
			out = append(out, e)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(*obj.Key, prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			e := fsentity.New(path.Join(resolved, name), fsentity.KindFile)
			e.Size = aws.Int64Value(obj.Size)
			if obj.LastModified != nil {
				e.ModTime = *obj.LastModified
				e.AccTime = *obj.LastModified
				e.CrtTime = *obj.LastModified
			}
			e.Ext = path.Ext(name)
			out = append(out, e)
		}
		return true
	})
	if err != nil {
		return nil, xfererr.Wrap(xfererr.DirStatFailed, err, "could not list "+resolved)
	}
	return out, nil
}

func (t *Transport) Stat(p string) (fsentity.Entity, error) {
	if err := t.ensure(); err != nil {
		return fsentity.Entity{}, err
	}
	resolved := t.resolve(p)
	head, err := t.svc.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key(resolved)),
	})
	if err != nil {
		if isNotFound(err) {
			// Might be a prefix (directory) instead of an object.
			listOut, listErr := t.svc.ListObjectsV2(&s3.ListObjectsV2Input{
				Bucket:  aws.String(t.bucket),
				Prefix:  aws.String(key(resolved) + "/"),
				MaxKeys: aws.Int64(1),
			})
			if listErr == nil && len(listOut.Contents) > 0 {
				return fsentity.New(resolved, fsentity.KindDirectory), nil
			}
			return fsentity.Entity{}, xfererr.New(xfererr.NoSuchFileOrDirectory)
		}
		return fsentity.Entity{}, xfererr.Wrap(xfererr.PexError, err, "head object failed")
	}
	e := fsentity.New(resolved, fsentity.KindFile)
	e.Size = aws.Int64Value(head.ContentLength)
	if head.LastModified != nil {
		e.ModTime = *head.LastModified
		e.AccTime = *head.LastModified
		e.CrtTime = *head.LastModified
	}
	e.Ext = path.Ext(resolved)
	return e, nil
}

func isNotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}

// Mkdir creates a zero-byte marker object at the prefix, the conventional
// way S3 consoles represent an empty "folder".
func (t *Transport) Mkdir(p string) error {
	if err := t.ensure(); err != nil {
		return err
	}
	resolved := t.resolve(p)
	if _, err := t.Stat(resolved); err == nil {
		return xfererr.New(xfererr.DirectoryAlreadyExists)
	}
	_, err := t.svc.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key(resolved) + "/"),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return xfererr.Wrap(xfererr.FileCreateDenied, err, "mkdir failed")
	}
	return nil
}

func (t *Transport) Remove(e fsentity.Entity) error {
	if err := t.ensure(); err != nil {
		return err
	}
	if e.IsDir() {
		prefix := key(e.AbsPath) + "/"
		var objs []*s3.ObjectIdentifier
		err := t.svc.ListObjectsV2Pages(&s3.ListObjectsV2Input{
			Bucket: aws.String(t.bucket),
			Prefix: aws.String(prefix),
		}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				objs = append(objs, &s3.ObjectIdentifier{Key: obj.Key})
			}
			return true
		})
		if err != nil {
			return xfererr.Wrap(xfererr.PexError, err, "list for delete failed")
		}
		for len(objs) > 0 {
			n := len(objs)
			if n > 1000 {
				n = 1000
			}
			if _, err := t.svc.DeleteObjects(&s3.DeleteObjectsInput{
				Bucket: aws.String(t.bucket),
				Delete: &s3.Delete{Objects: objs[:n]},
			}); err != nil {
				return xfererr.Wrap(xfererr.PexError, err, "batch delete failed")
			}
			objs = objs[n:]
		}
		return nil
	}
	if _, err := t.svc.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key(e.AbsPath)),
	}); err != nil {
		return xfererr.Wrap(xfererr.PexError, err, "delete failed")
	}
	return nil
}

func (t *Transport) Rename(e fsentity.Entity, dstPath string) error {
	if err := t.ensure(); err != nil {
		return err
	}
	if e.IsDir() {
		return xfererr.New(xfererr.UnsupportedFeature)
	}
	dst := t.resolve(dstPath)
	if err := t.Copy(e, dst); err != nil {
		return err
	}
	return t.Remove(e)
}

func (t *Transport) Copy(src fsentity.Entity, dstPath string) error {
	if err := t.ensure(); err != nil {
		return err
	}
	if src.IsDir() {
		return xfererr.New(xfererr.UnsupportedFeature)
	}
	dst := t.resolve(dstPath)
	source := t.bucket + "/" + key(src.AbsPath)
	if _, err := t.svc.CopyObject(&s3.CopyObjectInput{
		Bucket:     aws.String(t.bucket),
		CopySource: aws.String(source),
		Key:        aws.String(key(dst)),
	}); err != nil {
		return xfererr.Wrap(xfererr.ProtocolError, err, "copy object failed")
	}
	return nil
}

func (t *Transport) Exec(cmd string) (string, error) {
	return "", xfererr.New(xfererr.UnsupportedFeature)
}

func (t *Transport) SendFile(_ fsentity.Entity, remotePath string) (io.WriteCloser, error) {
	// S3's PutObject needs a known-length body; stream via a pipe would
	// require multipart upload plumbing, so callers use
	// SendFileNoStream instead. SendFile always reports UnsupportedFeature.
	return nil, xfererr.New(xfererr.UnsupportedFeature)
}

func (t *Transport) OnSent(sink io.WriteCloser) error {
	return sink.Close()
}

// SendFileNoStream implements transport.NoStreamSender: S3 uploads the
// whole object in a single PutObject call.
func (t *Transport) SendFileNoStream(localMeta fsentity.Entity, remotePath string, r io.Reader) error {
	if err := t.ensure(); err != nil {
		return err
	}
	body, err := ioutil.ReadAll(r)
	if err != nil {
		return xfererr.Wrap(xfererr.ProtocolError, err, "read source failed")
	}
	resolved := t.resolve(remotePath)
	if _, err := t.svc.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key(resolved)),
		Body:   bytes.NewReader(body),
	}); err != nil {
		return xfererr.Wrap(xfererr.FileCreateDenied, err, "put object failed")
	}
	return nil
}

func (t *Transport) RecvFile(meta fsentity.Entity) (io.ReadCloser, error) {
	if err := t.ensure(); err != nil {
		return nil, err
	}
	out, err := t.svc.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key(meta.AbsPath)),
	})
	if err != nil {
		return nil, xfererr.Wrap(xfererr.NoSuchFileOrDirectory, err, "get object failed")
	}
	return out.Body, nil
}

func (t *Transport) OnRecv(source io.ReadCloser) error {
	return source.Close()
}

// RecvFileNoStream implements transport.NoStreamReceiver for symmetry;
// GetObject already streams, so this simply copies through.
func (t *Transport) RecvFileNoStream(meta fsentity.Entity, w io.Writer) error {
	rc, err := t.RecvFile(meta)
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(w, rc)
	return err
}

func (t *Transport) Find(pattern string) ([]fsentity.Entity, error) {
	root, err := t.Pwd()
	if err != nil {
		return nil, err
	}
	return transport.DefaultFind(root, pattern, t.ListDir)
}
