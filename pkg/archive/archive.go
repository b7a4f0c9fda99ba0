// Package archive stores secondary copies of finished products.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"polcube/pkg/config"
)

// Archiver copies a local file to a secondary location and returns where
// the copy was placed.
type Archiver interface {
	Archive(ctx context.Context, filePath string) (string, error)
}

// New creates the archiver selected by the archive section of cfg.
func New(cfg *config.Config, logger *zap.Logger) (Archiver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Archive.Type {
	case "", config.ArchiveNone:
		return Nop{}, nil
	case config.ArchiveLocal:
		return &LocalDir{Dir: cfg.Input.DirArchive, logger: logger}, nil
	case config.ArchiveMinio:
		client, err := minio.New(cfg.Archive.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.Archive.AccessKey, cfg.Archive.SecretKey, ""),
			Secure: cfg.Archive.Secure,
		})
		if err != nil {
			return nil, fmt.Errorf("creating minio client for %s: %w", cfg.Archive.Endpoint, err)
		}
		return &Bucket{
			client: client,
			bucket: cfg.Archive.Bucket,
			prefix: cfg.Archive.Prefix,
			logger: logger,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown archive type %q", config.ErrInvalid, cfg.Archive.Type)
	}
}

// Nop skips archiving.
type Nop struct{}

// Archive does nothing and returns an empty location.
func (Nop) Archive(context.Context, string) (string, error) { return "", nil }

// LocalDir copies files verbatim into a directory.
type LocalDir struct {
	Dir    string
	logger *zap.Logger
}

// NewLocalDir creates an archiver for dir.
func NewLocalDir(dir string, logger *zap.Logger) *LocalDir {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalDir{Dir: dir, logger: logger}
}

// Archive copies filePath into the directory under its base name, creating
// the directory if needed. Copying a file onto itself is a no-op.
func (l *LocalDir) Archive(ctx context.Context, filePath string) (string, error) {
	dest := filepath.Join(l.Dir, filepath.Base(filePath))

	src, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("opening %s for archiving: %w", filePath, err)
	}
	defer src.Close()

	srcInfo, err := src.Stat()
	if err != nil {
		return "", err
	}
	if destInfo, err := os.Stat(dest); err == nil && os.SameFile(srcInfo, destInfo) {
		l.logger.Info("Archive copy is the source file, skipping", zap.String("path", dest))
		return dest, nil
	}

	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return "", fmt.Errorf("creating archive directory: %w", err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("creating archive copy: %w", err)
	}
	n, err := io.Copy(out, src)
	if err != nil {
		out.Close()
		return "", fmt.Errorf("copying %s to %s: %w", filePath, dest, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("closing archive copy: %w", err)
	}

	l.logger.Info("Archived file",
		zap.String("source", filePath),
		zap.String("destination", dest),
		zap.Int64("bytes", n),
	)
	return dest, nil
}

// Bucket uploads files to an S3 compatible object store.
type Bucket struct {
	client *minio.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// ObjectName returns the key a file is stored under.
func (b *Bucket) ObjectName(filePath string) string {
	return path.Join(b.prefix, filepath.Base(filePath))
}

// Archive uploads filePath, replacing an existing object of the same name.
func (b *Bucket) Archive(ctx context.Context, filePath string) (string, error) {
	object := b.ObjectName(filePath)
	info, err := b.client.FPutObject(ctx, b.bucket, object, filePath, minio.PutObjectOptions{
		ContentType: "application/fits",
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s to %s/%s: %w", filePath, b.bucket, object, err)
	}

	b.logger.Info("Archived file to object store",
		zap.String("source", filePath),
		zap.String("bucket", b.bucket),
		zap.String("object", object),
		zap.Int64("bytes", info.Size),
	)
	return b.bucket + "/" + object, nil
}
