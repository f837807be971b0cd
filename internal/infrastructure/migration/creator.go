package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"text/template"
	"time"
)

const upTemplate = `-- Migration: {{.Name}}
-- Description: {{.Description}}
-- Created: {{.Created}}

`

const downTemplate = `-- Migration: {{.Name}} (Rollback)

`

var migrationFile = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)

// MigrationFile describes a pair of up and down migration files
type MigrationFile struct {
	Version     uint
	Name        string
	Description string
	Created     string
	UpPath      string
	DownPath    string
}

// CreateMigration writes an empty up/down pair numbered after the highest
// migration already in dir
func CreateMigration(dir, name, description string) (*MigrationFile, error) {
	name = sanitizeName(name)
	if name == "" {
		return nil, fmt.Errorf("migration name must contain letters or digits")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}
	existing, err := ListMigrations(dir)
	if err != nil {
		return nil, err
	}
	var next uint = 1
	if len(existing) > 0 {
		next = existing[len(existing)-1].Version + 1
	}

	base := fmt.Sprintf("%06d_%s", next, name)
	mf := &MigrationFile{
		Version:     next,
		Name:        name,
		Description: description,
		Created:     time.Now().Format(time.RFC3339),
		UpPath:      filepath.Join(dir, base+".up.sql"),
		DownPath:    filepath.Join(dir, base+".down.sql"),
	}
	if err := writeTemplate(mf.UpPath, upTemplate, mf); err != nil {
		return nil, err
	}
	if err := writeTemplate(mf.DownPath, downTemplate, mf); err != nil {
		_ = os.Remove(mf.UpPath)
		return nil, err
	}
	return mf, nil
}

// ListMigrations returns the migrations in dir that have an up file, by version
func ListMigrations(dir string) ([]MigrationFile, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var out []MigrationFile
	for _, e := range entries {
		match := migrationFile.FindStringSubmatch(e.Name())
		if e.IsDir() || match == nil || match[3] != "up" {
			continue
		}
		version, err := strconv.ParseUint(match[1], 10, 32)
		if err != nil {
			continue
		}
		out = append(out, MigrationFile{
			Version:  uint(version),
			Name:     match[2],
			UpPath:   filepath.Join(dir, e.Name()),
			DownPath: filepath.Join(dir, strings.TrimSuffix(e.Name(), ".up.sql")+".down.sql"),
		})
	}
	slices.SortFunc(out, func(a, b MigrationFile) int { return int(a.Version) - int(b.Version) })
	return out, nil
}

func writeTemplate(path, text string, data *MigrationFile) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	return template.Must(template.New(filepath.Base(path)).Parse(text)).Execute(f, data)
}

// sanitizeName lower-cases name and collapses everything that is not a
// letter or digit into single underscores
func sanitizeName(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			pendingSep = true
		}
	}
	return b.String()
}
