// Package backupsvc snapshots the sqlite ledger and ships the snapshot off-site.
package backupsvc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ada/core"
)

var ErrUnsupportedEngine = errors.New("backups are only supported for sqlite; use pg_dump for postgres")

// Uploader stores a backup file under key.
type Uploader interface {
	Upload(ctx context.Context, key string, file *os.File) error
}

type S3Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ Uploader = (*S3Uploader)(nil)

// NewS3Uploader loads the AWS credentials from the environment/shared config.
func NewS3Uploader(ctx context.Context, conf core.BackupConfig) (*S3Uploader, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(conf.S3Region))
	if err != nil {
		return nil, errors.Wrap(err, "loading AWS config")
	}
	return &S3Uploader{client: s3.NewFromConfig(cfg), bucket: conf.S3Bucket, prefix: conf.S3Prefix}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, key string, file *os.File) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(u.prefix + key),
		Body:        file,
		ContentType: aws.String("application/vnd.sqlite3"),
	})
	return errors.Wrapf(err, "uploading %s to s3://%s", key, u.bucket)
}

type Service struct {
	db       *sqlx.DB
	dir      string
	uploader Uploader // optional
	logger   core.Logger
	now      func() time.Time
}

func NewService(db *sqlx.DB, dir string, uploader Uploader, logger core.Logger) *Service {
	return &Service{db: db, dir: dir, uploader: uploader, logger: logger, now: time.Now}
}

// Dir is where snapshots are written.
func (svc *Service) Dir() string { return svc.dir }

// Run writes a consistent snapshot of the database to the backup dir and uploads it if an uploader is set.
// It returns the path of the snapshot.
func (svc *Service) Run(ctx context.Context) (string, error) {
	if svc.db.DriverName() != "sqlite" {
		return "", ErrUnsupportedEngine
	}
	if err := os.MkdirAll(svc.dir, 0o750); err != nil {
		return "", errors.Wrap(err, "creating backup directory")
	}

	name := fmt.Sprintf("ada-%s.db", svc.now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(svc.dir, name)
	if _, err := svc.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return "", errors.Wrap(err, "writing snapshot")
	}
	svc.logger.Info("database snapshot written", map[string]interface{}{"path": path})

	if svc.uploader == nil {
		return path, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "opening snapshot")
	}
	defer func() { _ = file.Close() }()

	if err = svc.uploader.Upload(ctx, name, file); err != nil {
		return "", err
	}
	svc.logger.Info("database snapshot uploaded", map[string]interface{}{"key": name})
	return path, nil
}
