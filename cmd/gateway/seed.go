package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/store"
)

// runSeed copies every record of a file store directory into the configured store.
func runSeed(ctx context.Context, dir, driver, dsn string) error {
	src, err := store.NewFileStore(dir)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	students, sessions := src.Snapshot()
	if len(students) == 0 && len(sessions) == 0 {
		slog.Info("nothing to seed", "dir", dir)
		return nil
	}

	dst, err := store.Open(ctx, driver, dsn)
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	defer dst.Close()

	imp, ok := dst.(store.Importer)
	if !ok {
		return fmt.Errorf("store driver %q does not support import", driver)
	}

	for i := range students {
		if err = imp.PutStudent(ctx, &students[i]); err != nil {
			return fmt.Errorf("put student %s: %w", students[i].UID, err)
		}
	}
	for _, s := range sessions {
		if err = imp.SaveSession(ctx, s); err != nil {
			return fmt.Errorf("save session %s: %w", s.SessionID, err)
		}
	}
	slog.Info("seeded", "students", len(students), "sessions", len(sessions), "driver", driver)
	return nil
}
