// Package idgen produces primary keys for new rows.
//
// IDs come from a Source (time-ordered, so ORDER BY id follows creation
// order) and are checked against the target table inside the caller's
// transaction. A collision regenerates; after MaxAttempts collisions the
// generator gives up with apperror.KindIdentifierCollisionExhausted.
package idgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/xid"

	"github.com/sakif/reservations/internal/apperror"
	"github.com/sakif/reservations/internal/repository"
)

const DefaultMaxAttempts = 8

// Source returns a fresh candidate identifier.
type Source func() (string, error)

// UUIDv7 is the default source: 128 bits, millisecond timestamp prefix,
// random tail.
func UUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("idgen: uuid v7: %w", err)
	}
	return id.String(), nil
}

// XID is the compact alternative: 20 URL-safe chars, 96 bits, sortable.
func XID() (string, error) {
	return xid.New().String(), nil
}

// SourceByName maps a config value to a Source.
func SourceByName(name string) (Source, error) {
	switch strings.ToLower(name) {
	case "", "uuidv7", "uuid":
		return UUIDv7, nil
	case "xid":
		return XID, nil
	default:
		return nil, fmt.Errorf("idgen: unknown id source %q", name)
	}
}

type Generator struct {
	source      Source
	maxAttempts int
}

// New returns a Generator. maxAttempts <= 0 means DefaultMaxAttempts.
func New(source Source, maxAttempts int) *Generator {
	if source == nil {
		source = UUIDv7
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Generator{source: source, maxAttempts: maxAttempts}
}

// Generate returns an identifier not present in table as seen by checker.
// It inserts nothing; the caller inserts within the same transaction.
func (g *Generator) Generate(ctx context.Context, checker repository.IDChecker, table string) (string, error) {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		id, err := g.source()
		if err != nil {
			return "", apperror.StorageFailure("generating identifier", err)
		}

		taken, err := checker.IDExists(ctx, table, id)
		if err != nil {
			return "", apperror.StorageFailure("checking identifier", err)
		}
		if !taken {
			return id, nil
		}
	}
	return "", apperror.IdentifierCollisionExhausted(table, g.maxAttempts)
}
