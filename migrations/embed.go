package main

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

//go:embed *.sql
var embeddedMigrations embed.FS

// 001_create_dimensions.up.sql
var migrationFilenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

const (
	directionUp   = "up"
	directionDown = "down"
)

var (
	// ErrNoMigrations is returned when the migration set holds no SQL files.
	ErrNoMigrations = errors.New("no migration files found")

	// ErrUnpairedMigration is returned when an up or down file has no counterpart.
	ErrUnpairedMigration = errors.New("unpaired migration")

	// ErrSequenceGap is returned when sequence numbers do not run 001, 002, ... without gaps.
	ErrSequenceGap = errors.New("gap in migration sequence")

	// ErrChecksumMismatch is returned when a file changed since it was first validated.
	ErrChecksumMismatch = errors.New("migration file modified")
)

type (
	// MigrationSet is the SQL schema of the warehouse, embedded in the binary by default.
	MigrationSet struct {
		fs        fs.FS
		checksums map[string]string
	}

	// MigrationFile is one parsed migration filename.
	MigrationFile struct {
		Sequence  int
		Name      string
		Direction string
		Filename  string
	}
)

// NewMigrationSet wraps filesystem. Nil selects the embedded warehouse migrations.
func NewMigrationSet(filesystem fs.FS) *MigrationSet {
	if filesystem == nil {
		filesystem = embeddedMigrations
	}

	return &MigrationSet{fs: filesystem, checksums: make(map[string]string)}
}

// FS returns the underlying filesystem for the iofs source driver.
func (s *MigrationSet) FS() fs.FS {
	return s.fs
}

// Files lists the well-formed migration filenames in apply order. Other files are ignored.
func (s *MigrationSet) Files() ([]string, error) {
	entries, err := fs.ReadDir(s.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}

		if migrationFilenameRegex.MatchString(entry.Name()) {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)

	return files, nil
}

// Latest returns the highest sequence number, 0 when there are no migrations.
func (s *MigrationSet) Latest() (int, error) {
	files, err := s.Files()
	if err != nil {
		return 0, err
	}

	latest := 0

	for _, name := range files {
		if m, err := ParseMigrationFilename(name); err == nil && m.Sequence > latest {
			latest = m.Sequence
		}
	}

	return latest, nil
}

// Validate checks that every migration is readable and paired, that sequences start at
// 001 without gaps, and that no file changed since the previous call.
func (s *MigrationSet) Validate() error {
	files, err := s.Files()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return ErrNoMigrations
	}

	parsed := make([]MigrationFile, 0, len(files))
	checksums := make(map[string]string, len(files))

	for _, name := range files {
		m, err := ParseMigrationFilename(name)
		if err != nil {
			return err
		}

		content, err := fs.ReadFile(s.fs, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		sum := sha256.Sum256(content)
		checksums[name] = hex.EncodeToString(sum[:])

		if previous, ok := s.checksums[name]; ok && previous != checksums[name] {
			return fmt.Errorf("%w: %s", ErrChecksumMismatch, name)
		}

		parsed = append(parsed, m)
	}

	if err := validatePairing(parsed); err != nil {
		return err
	}

	if err := validateSequence(parsed); err != nil {
		return err
	}

	s.checksums = checksums

	return nil
}

// ParseMigrationFilename splits a name like 002_create_facts.down.sql into its parts.
func ParseMigrationFilename(name string) (MigrationFile, error) {
	matches := migrationFilenameRegex.FindStringSubmatch(name)
	if len(matches) != 4 {
		return MigrationFile{}, fmt.Errorf("invalid migration filename %s (expected 001_name.up.sql)", name)
	}

	sequence, err := strconv.Atoi(matches[1])
	if err != nil {
		return MigrationFile{}, fmt.Errorf("invalid sequence in %s: %w", name, err)
	}

	return MigrationFile{Sequence: sequence, Name: matches[2], Direction: matches[3], Filename: name}, nil
}

func validatePairing(files []MigrationFile) error {
	directions := make(map[string]map[string]bool)

	for _, m := range files {
		key := fmt.Sprintf("%03d_%s", m.Sequence, m.Name)
		if directions[key] == nil {
			directions[key] = make(map[string]bool, 2)
		}

		directions[key][m.Direction] = true
	}

	keys := make([]string, 0, len(directions))
	for key := range directions {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		switch {
		case !directions[key][directionUp]:
			return fmt.Errorf("%w: %s has no up migration", ErrUnpairedMigration, key)
		case !directions[key][directionDown]:
			return fmt.Errorf("%w: %s has no down migration", ErrUnpairedMigration, key)
		}
	}

	return nil
}

func validateSequence(files []MigrationFile) error {
	seen := make(map[int]bool)

	var sequences []int

	for _, m := range files {
		if !seen[m.Sequence] {
			seen[m.Sequence] = true
			sequences = append(sequences, m.Sequence)
		}
	}

	sort.Ints(sequences)

	for i, seq := range sequences {
		if seq != i+1 {
			return fmt.Errorf("%w: expected %03d, found %03d", ErrSequenceGap, i+1, seq)
		}
	}

	return nil
}
