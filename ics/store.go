package ics

import (
	"context"
	"regexp"

	"github.com/pkg/errors"
	"github.com/sensepost/fxics/fxstream"
	"github.com/sensepost/fxics/idset"
	"github.com/sensepost/fxics/utils"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var (
	//ErrNotFound no state is stored under the key
	ErrNotFound = errors.New("state not found")
	//ErrTransientForm a REPLID form IDSET cannot be persisted
	ErrTransientForm = errors.New("REPLID form IDSETs are transient and cannot be persisted")
	//ErrInvalidKey keys are 1 to 128 letters, digits, dots, dashes or underscores
	ErrInvalidKey = errors.New("invalid state key")
	//ErrUnknownBackend the configured store backend does not exist
	ErrUnknownBackend = errors.New("unknown store backend")
)

//Store keeps synchronization states between sessions, usually one per synchronized folder
type Store interface {
	Save(ctx context.Context, key string, s *State) error
	Load(ctx context.Context, key string) (*State, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

func checkKey(key string) error {
	if !keyPattern.MatchString(key) || key == "." || key == ".." {
		return errors.Wrapf(ErrInvalidKey, "%q", key)
	}
	return nil
}

//marshalState checks the sets are in REPLGUID form and writes the state stream
func marshalState(s *State) ([]byte, error) {
	for _, set := range []*idset.IDSET{s.IdsetGiven, s.CnsetSeen, s.CnsetSeenFAI, s.CnsetRead} {
		if set != nil && set.Form != idset.FormReplGUID {
			return nil, ErrTransientForm
		}
	}
	return s.Stream()
}

//unmarshalState reads back what marshalState wrote, strictly
func unmarshalState(buf []byte) (*State, error) {
	return ParseState(buf, fxstream.DefaultOptions(), idset.DefaultOptions())
}

//NewStore opens the backend named in the configuration. fs is used by the file backend.
func NewStore(ctx context.Context, cfg utils.StoreConfig, fs afero.Fs, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case "", "bolt":
		b, err := OpenBolt(cfg.Path, cfg.Bucket, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "file":
		f, err := NewFileStore(fs, cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return f, nil
	case "minio":
		m, err := NewMinioStore(cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.Secure, cfg.Bucket, cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		if err := m.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, errors.Wrapf(ErrUnknownBackend, "%q", cfg.Backend)
}
