// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

package snapshot

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	payload := []byte(`{"stories":{},"users":{}}`)

	version, err := s.Save(ctx, payload)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if version != 1 {
		t.Errorf("first version = %d, want 1", version)
	}

	got, meta, err := s.Load(ctx, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch: %q vs %q", got, payload)
	}
	if meta.Version != 1 || meta.Checksum == "" {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestStore_VersionsIncrement(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		version, err := s.Save(ctx, []byte{byte(i)})
		if err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
		if version != i {
			t.Errorf("version = %d, want %d", version, i)
		}
	}

	// Version 0 selects the latest.
	got, meta, err := s.Load(ctx, 0)
	if err != nil {
		t.Fatalf("Load latest: %v", err)
	}
	if meta.Version != 3 || got[0] != 3 {
		t.Errorf("latest = v%d payload %v", meta.Version, got)
	}

	// Older versions stay addressable.
	got, _, err = s.Load(ctx, 2)
	if err != nil {
		t.Fatalf("Load v2: %v", err)
	}
	if got[0] != 2 {
		t.Errorf("v2 payload = %v", got)
	}
}

func TestStore_ScanOnOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	s1, err := NewStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := s1.Save(ctx, []byte("one")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s1.Save(ctx, []byte("two")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh store over the same directory continues the version sequence.
	s2, err := NewStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen NewStore: %v", err)
	}
	if latest, ok := s2.LatestVersion(); !ok || latest != 2 {
		t.Errorf("LatestVersion after reopen = %d/%v, want 2/true", latest, ok)
	}
	if version, err := s2.Save(ctx, []byte("three")); err != nil || version != 3 {
		t.Errorf("Save after reopen = %d, %v, want 3, nil", version, err)
	}
}

func TestStore_LoadMissing(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if _, _, err := s.Load(context.Background(), 0); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load on empty store = %v, want ErrNotExist", err)
	}
}

func TestStore_ChecksumMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()
	s, err := NewStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := s.Save(ctx, []byte("trustworthy")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Corrupt the stored checksum.
	path := filepath.Join(dir, "snapshot_v1.snap")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	corrupted := bytes.Replace(data, []byte(`"checksum":"`), []byte(`"checksum":"00`), 1)
	if err := os.WriteFile(path, corrupted, 0o640); err != nil {
		t.Fatalf("write corrupted snapshot: %v", err)
	}

	if _, _, err := s.Load(ctx, 1); err == nil {
		t.Fatal("Load of corrupted snapshot succeeded")
	}
}

func TestStore_Prune(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.Save(ctx, []byte{byte(i)}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	if err := s.Prune(ctx, 2); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Version != 4 || list[1].Version != 5 {
		t.Errorf("surviving snapshots = %+v, want v4 and v5", list)
	}

	// Pruning more than exist is a no-op.
	if err := s.Prune(ctx, 10); err != nil {
		t.Fatalf("Prune beyond count: %v", err)
	}

	if err := s.Prune(ctx, 0); err == nil {
		t.Error("Prune(0) accepted")
	}
}
