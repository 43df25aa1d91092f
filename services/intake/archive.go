package intake

import (
	"context"

	"referralpay/pkg/config"
	"referralpay/pkg/minio"
)

// Archiver stores processed payloads outside the database.
type Archiver interface {
	Archive(ctx context.Context, key string, payload []byte) error
}

type NopArchiver struct{}

func (NopArchiver) Archive(context.Context, string, []byte) error { return nil }

// ProvideArchiver returns the object-store archiver when one is configured.
func ProvideArchiver(cfg *config.Config) (Archiver, error) {
	if cfg.Minio.Endpoint == "" {
		return NopArchiver{}, nil
	}
	archiver, err := minio.NewArchiver(cfg)
	if err != nil {
		return nil, err
	}
	return archiver, nil
}
