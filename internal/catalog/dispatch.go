package catalog

import (
	"context"
	"fmt"
)

// Write routes a record to the matching sink method.
func Write(ctx context.Context, sink Sink, record Record) error {
	switch r := record.(type) {
	case CatalogEntry:
		return sink.WriteCatalogEntry(ctx, r)
	case CastEntry:
		return sink.WriteCastEntry(ctx, r)
	default:
		return fmt.Errorf("unknown record kind %T", record)
	}
}
