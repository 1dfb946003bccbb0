// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

// Package snapshot persists engine state snapshots to disk as versioned,
// gzip-compressed files with integrity checksums.
//
// Files are named snapshot_v{version}.snap and contain a JSON wrapper with
// metadata (version, timestamp, sha256 checksum of the uncompressed payload,
// size) and the compressed payload. Versions increase monotonically; Prune
// removes old generations.
package snapshot

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Metadata describes one stored snapshot.
type Metadata struct {
	// Version is the snapshot version, monotonically increasing.
	Version int `json:"version"`

	// SavedAt is when the snapshot was written.
	SavedAt time.Time `json:"saved_at"`

	// Checksum is the hex sha256 of the uncompressed payload.
	Checksum string `json:"checksum"`

	// SizeBytes is the compressed payload size.
	SizeBytes int64 `json:"size_bytes"`
}

// storedFile is the on-disk wrapper format.
type storedFile struct {
	Metadata       Metadata `json:"metadata"`
	CompressedData []byte   `json:"compressed_data"`
}

const (
	filePrefix = "snapshot_v"
	fileSuffix = ".snap"
)

// Store reads and writes versioned snapshot files under one directory.
type Store struct {
	mu      sync.RWMutex
	baseDir string
	latest  int
	logger  zerolog.Logger
}

// NewStore opens (and if needed creates) the snapshot directory and scans it
// for the latest existing version.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewStore(baseDir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	s := &Store{
		baseDir: baseDir,
		logger:  logger.With().Str("component", "snapshot").Logger(),
	}
	if err := s.scan(); err != nil {
		return nil, err
	}
	return s, nil
}

// scan finds the highest snapshot version on disk.
func (s *Store) scan() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("scan snapshot directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, ok := parseFilename(entry.Name())
		if !ok {
			continue
		}
		if version > s.latest {
			s.latest = version
		}
	}
	return nil
}

// parseFilename extracts the version from "snapshot_v{N}.snap".
func parseFilename(name string) (int, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return 0, false
	}
	var version int
	numeric := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	if _, err := fmt.Sscanf(numeric, "%d", &version); err != nil || version < 1 {
		return 0, false
	}
	return version, true
}

func (s *Store) path(version int) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s%d%s", filePrefix, version, fileSuffix))
}

// Save compresses and writes the payload as the next snapshot version,
// returning the version written. The write goes through a temp file and
// rename so a crash never leaves a half-written snapshot behind.
func (s *Store) Save(ctx context.Context, payload []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hash := sha256.Sum256(payload)

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(payload); err != nil {
		return 0, fmt.Errorf("compress snapshot: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return 0, fmt.Errorf("finalize compression: %w", err)
	}

	version := s.latest + 1
	wrapper := storedFile{
		Metadata: Metadata{
			Version:   version,
			SavedAt:   time.Now().UTC(),
			Checksum:  hex.EncodeToString(hash[:]),
			SizeBytes: int64(compressed.Len()),
		},
		CompressedData: compressed.Bytes(),
	}

	data, err := json.Marshal(&wrapper)
	if err != nil {
		return 0, fmt.Errorf("encode snapshot file: %w", err)
	}

	final := s.path(version)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return 0, fmt.Errorf("write snapshot file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return 0, fmt.Errorf("publish snapshot file: %w", err)
	}

	s.latest = version
	s.logger.Info().
		Int("version", version).
		Int64("size_bytes", wrapper.Metadata.SizeBytes).
		Msg("snapshot saved")
	return version, nil
}

// Load reads one snapshot version, verifies its checksum and returns the
// uncompressed payload. Version 0 selects the latest.
func (s *Store) Load(ctx context.Context, version int) ([]byte, *Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if version == 0 {
		if s.latest == 0 {
			return nil, nil, os.ErrNotExist
		}
		version = s.latest
	}

	data, err := os.ReadFile(s.path(version))
	if err != nil {
		return nil, nil, fmt.Errorf("read snapshot file: %w", err)
	}

	var wrapper storedFile
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, nil, fmt.Errorf("decode snapshot file: %w", err)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(wrapper.CompressedData))
	if err != nil {
		return nil, nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	defer func() { _ = gzr.Close() }()

	payload, err := io.ReadAll(gzr)
	if err != nil {
		return nil, nil, fmt.Errorf("read decompressed snapshot: %w", err)
	}

	hash := sha256.Sum256(payload)
	if checksum := hex.EncodeToString(hash[:]); checksum != wrapper.Metadata.Checksum {
		return nil, nil, fmt.Errorf("snapshot %d checksum mismatch: expected %s, got %s",
			version, wrapper.Metadata.Checksum, checksum)
	}

	return payload, &wrapper.Metadata, nil
}

// LatestVersion returns the newest stored version, or false when the
// directory holds no snapshots.
func (s *Store) LatestVersion() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latest > 0
}

// List returns metadata for every stored snapshot, oldest first. Unreadable
// files are skipped.
func (s *Store) List(ctx context.Context) ([]Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("list snapshot directory: %w", err)
	}

	var all []Metadata
	for _, entry := range entries {
		version, ok := parseFilename(entry.Name())
		if !ok {
			continue
		}
		data, err := os.ReadFile(s.path(version))
		if err != nil {
			continue
		}
		var wrapper storedFile
		if err := json.Unmarshal(data, &wrapper); err != nil {
			continue
		}
		all = append(all, wrapper.Metadata)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Version < all[j].Version })
	return all, nil
}

// Prune deletes all but the newest keep snapshot generations.
func (s *Store) Prune(ctx context.Context, keep int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if keep < 1 {
		return fmt.Errorf("keep must be positive, got %d", keep)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("prune snapshot directory: %w", err)
	}

	var versions []int
	for _, entry := range entries {
		if version, ok := parseFilename(entry.Name()); ok {
			versions = append(versions, version)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(versions)))

	for _, version := range versions[min(keep, len(versions)):] {
		if err := os.Remove(s.path(version)); err != nil {
			return fmt.Errorf("remove snapshot %d: %w", version, err)
		}
		s.logger.Debug().Int("version", version).Msg("snapshot pruned")
	}
	return nil
}
