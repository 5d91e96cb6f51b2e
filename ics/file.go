package ics

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const stateExt = ".fxs"

//FileStore keeps one state stream file per key in a directory
type FileStore struct {
	fs  afero.Fs
	dir string
	log *zap.Logger
}

//NewFileStore creates dir if needed
func NewFileStore(fs afero.Fs, dir string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := fs.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrapf(err, "create state directory %s", dir)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{fs: fs, dir: dir, log: logger}, nil
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dir, key+stateExt)
}

//Save writes the state to a temporary file and renames it over the old one
func (f *FileStore) Save(ctx context.Context, key string, s *State) error {
	if err := checkKey(key); err != nil {
		return err
	}
	data, err := marshalState(s)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp := f.path(key) + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, data, 0600); err != nil {
		return errors.Wrapf(err, "save state %s", key)
	}
	if err := f.fs.Rename(tmp, f.path(key)); err != nil {
		f.fs.Remove(tmp)
		return errors.Wrapf(err, "save state %s", key)
	}
	f.log.Debug("saved state", zap.String("path", f.path(key)), zap.Int("bytes", len(data)))
	return nil
}

//Load reads the state stored under key
func (f *FileStore) Load(ctx context.Context, key string) (*State, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(f.fs, f.path(key))
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrNotFound, "%s", key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load state %s", key)
	}
	return unmarshalState(data)
}

//Delete removes the file of key
func (f *FileStore) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := f.fs.Stat(f.path(key)); os.IsNotExist(err) {
		return errors.Wrapf(ErrNotFound, "%s", key)
	}
	return f.fs.Remove(f.path(key))
}

//Keys lists the stored keys in order
func (f *FileStore) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(f.fs, f.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || !strings.HasSuffix(name, stateExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, stateExt))
	}
	sort.Strings(keys)
	return keys, nil
}

//Close has nothing to release
func (f *FileStore) Close() error {
	return nil
}
