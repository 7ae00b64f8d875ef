package storage

import (
	"context"

	"hidroweb-scraper/models"
)

// RecordWriter is the interface any consolidated-dataset sink must satisfy.
type RecordWriter interface {
	Write(records []models.CotaRecord) error
	Commit() error
	Close() error
}

// CotaStore is the slice of the destination database the loader needs.
type CotaStore interface {
	ResolveTable(ctx context.Context, explicit string) (string, error)
	Stats(ctx context.Context, table string) (models.TableStats, error)
	CountExisting(ctx context.Context, table string, keys [][]any) (int, error)
	Insert(ctx context.Context, table string, rows [][]any, opts InsertOptions) (InsertResult, error)
	AcquireLoadLock(ctx context.Context, table string) (func(), error)
}

// Publisher copies a finished dataset to long-term storage.
type Publisher interface {
	Publish(ctx context.Context, path string, meta map[string]string) (string, error)
}
