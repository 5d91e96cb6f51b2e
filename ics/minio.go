package ics

import (
	"bytes"
	"context"
	"io/ioutil"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v6"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//MinioStore keeps states as objects in an S3 compatible bucket
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
	log    *zap.Logger
}

//NewMinioStore builds the client. It does not contact the server, see EnsureBucket.
func NewMinioStore(endpoint, accessKey, secretKey string, secure bool, bucket, prefix string, logger *zap.Logger) (*MinioStore, error) {
	if endpoint == "" {
		return nil, errors.New("minio store needs an endpoint")
	}
	if bucket == "" {
		bucket = "fxics"
	}
	client, err := minio.New(endpoint, accessKey, secretKey, secure)
	if err != nil {
		return nil, errors.Wrapf(err, "minio client for %s", endpoint)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MinioStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), log: logger}, nil
}

//EnsureBucket creates the bucket unless it already exists
func (m *MinioStore) EnsureBucket(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	exists, err := m.client.BucketExists(m.bucket)
	if err != nil {
		return errors.Wrapf(err, "check bucket %s", m.bucket)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(m.bucket, "us-east-1"); err != nil {
		return errors.Wrapf(err, "create bucket %s", m.bucket)
	}
	m.log.Info("created bucket", zap.String("bucket", m.bucket))
	return nil
}

func (m *MinioStore) object(key string) string {
	return path.Join(m.prefix, key+stateExt)
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

//Save uploads the state stream
func (m *MinioStore) Save(ctx context.Context, key string, s *State) error {
	if err := checkKey(key); err != nil {
		return err
	}
	data, err := marshalState(s)
	if err != nil {
		return err
	}
	_, err = m.client.PutObjectWithContext(ctx, m.bucket, m.object(key), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return errors.Wrapf(err, "save state %s", key)
	}
	m.log.Debug("saved state", zap.String("object", m.object(key)), zap.Int("bytes", len(data)))
	return nil
}

//Load downloads the state stored under key
func (m *MinioStore) Load(ctx context.Context, key string) (*State, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	obj, err := m.client.GetObjectWithContext(ctx, m.bucket, m.object(key), minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s", key)
		}
		return nil, errors.Wrapf(err, "load state %s", key)
	}
	defer obj.Close()
	//a missing object only shows up once it is read
	data, err := ioutil.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s", key)
		}
		return nil, errors.Wrapf(err, "load state %s", key)
	}
	return unmarshalState(data)
}

//Delete removes the object of key
func (m *MinioStore) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if _, err := m.client.StatObjectWithContext(ctx, m.bucket, m.object(key), minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return errors.Wrapf(ErrNotFound, "%s", key)
		}
		return errors.Wrapf(err, "delete state %s", key)
	}
	return m.client.RemoveObject(m.bucket, m.object(key))
}

//Keys lists the stored keys in order
func (m *MinioStore) Keys(ctx context.Context) ([]string, error) {
	done := make(chan struct{})
	defer close(done)
	prefix := ""
	if m.prefix != "" {
		prefix = m.prefix + "/"
	}
	var keys []string
	for info := range m.client.ListObjectsV2(m.bucket, prefix, false, done) {
		if info.Err != nil {
			return nil, info.Err
		}
		name := strings.TrimPrefix(info.Key, prefix)
		if strings.HasSuffix(name, stateExt) {
			keys = append(keys, strings.TrimSuffix(name, stateExt))
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	sort.Strings(keys)
	return keys, nil
}

//Close has nothing to release
func (m *MinioStore) Close() error {
	return nil
}
