// Package migrations embeds the schema for every supported database driver.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"accident-forecast/pkg/database"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Direction selects the migration files to run
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Scripts returns the migration scripts for driver in execution order.
// Down migrations run in reverse.
func Scripts(driver string, direction Direction) ([]string, error) {
	if direction != Up && direction != Down {
		return nil, fmt.Errorf("invalid migration direction %q", direction)
	}

	suffix := "." + string(direction) + ".sql"
	names, err := fs.Glob(files, driver+"/*"+suffix)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no %s migrations for driver %q", direction, driver)
	}

	sort.Strings(names)
	if direction == Down {
		sort.Sort(sort.Reverse(sort.StringSlice(names)))
	}

	scripts := make([]string, 0, len(names))
	for _, name := range names {
		content, err := files.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		scripts = append(scripts, string(content))
	}
	return scripts, nil
}

// Apply runs every migration for db's driver in the given direction.
// Statements are split on ';' so drivers without multi-statement support work too.
func Apply(ctx context.Context, db *database.DB, direction Direction) (int, error) {
	scripts, err := Scripts(db.DriverName(), direction)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, script := range scripts {
		for _, stmt := range strings.Split(script, ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := db.ExecContext(ctx, "migration", stmt); err != nil {
				return applied, fmt.Errorf("failed to execute migration: %w", err)
			}
		}
		applied++
	}
	return applied, nil
}
