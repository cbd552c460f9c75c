package store

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

const (
	KindMemory   = "memory"
	KindFile     = "file"
	KindPostgres = "postgres"
)

type FactoryParams struct {
	Kind        string
	Path        string
	PostgresDSN string
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewFactory builds the store factory selected by params.Kind. The returned
// closer releases the backing database.
func NewFactory(params *FactoryParams, logger *logrus.Logger) (Factory, io.Closer, error) {
	switch params.Kind {
	case "", KindMemory:
		return NewInMemoryStoreFactory(logger), nopCloser{}, nil
	case KindFile:
		f, err := OpenBoltStoreFactory(&BoltStoreParams{Path: params.Path}, logger)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil
	case KindPostgres:
		f, err := OpenPostgresStoreFactory(&PostgresStoreParams{DSN: params.PostgresDSN}, logger)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil
	}
	return nil, nil, fmt.Errorf("unknown store kind %q", params.Kind)
}
