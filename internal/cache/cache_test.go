package cache

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

const testHash = "0123456789abcdef0123456789abcdef01234567"

func TestPutGet(t *testing.T) {
	c := New(t.TempDir())

	if err := c.Put(1, testHash, []byte("payload")); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	data, ok, err := c.Get(1, testHash)
	if err != nil || !ok {
		t.Fatalf("expected cached entry, got ok=%v err=%v", ok, err)
	}
	if string(data) != "payload" {
		t.Errorf("unexpected data: %q", data)
	}

	// Uppercase keys address the same entry.
	_, ok, err = c.Get(1, strings.ToUpper(testHash))
	if err != nil || !ok {
		t.Errorf("case-insensitive lookup failed: ok=%v err=%v", ok, err)
	}

	// Other instances don't see it.
	_, ok, _ = c.Get(2, testHash)
	if ok {
		t.Error("entry leaked across instances")
	}
}

func TestInvalidHashRejected(t *testing.T) {
	c := New(t.TempDir())

	bad := []string{
		"",
		"short",
		"../../../../etc/passwd",
		"0123456789abcdef0123456789abcdef0123456g", // non-hex
		testHash + "00", // too long
	}
	for _, hash := range bad {
		if err := c.Put(1, hash, []byte("x")); !errors.Is(err, ErrInvalidHash) {
			t.Errorf("Put(%q) error = %v, want ErrInvalidHash", hash, err)
		}
		if _, _, err := c.Get(1, hash); !errors.Is(err, ErrInvalidHash) {
			t.Errorf("Get(%q) error = %v, want ErrInvalidHash", hash, err)
		}
	}
}

func TestWriteOutputSanitizes(t *testing.T) {
	c := New(t.TempDir())

	path, err := c.WriteOutput(1, testHash, `Weird/Name: "quoted"?`, []byte("x"))
	if err != nil {
		t.Fatalf("failed to write output: %v", err)
	}
	base := filepath.Base(path)
	if strings.ContainsAny(base, `/\:*?"<>|`) {
		t.Errorf("output filename not sanitized: %q", base)
	}
	if !strings.Contains(base, testHash[:8]) {
		t.Errorf("output filename missing hash fragment: %q", base)
	}
}

func TestStatsAndClear(t *testing.T) {
	c := New(t.TempDir())

	if err := c.Put(1, testHash, []byte("12345")); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	if _, err := c.WriteOutput(1, testHash, "Name", []byte("123")); err != nil {
		t.Fatalf("failed to write output: %v", err)
	}

	stats, err := c.Stats(1)
	if err != nil {
		t.Fatalf("failed to stat: %v", err)
	}
	if stats.TorrentCount != 1 || stats.OutputCount != 1 || stats.TotalBytes != 8 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	if err := c.Clear(1); err != nil {
		t.Fatalf("failed to clear: %v", err)
	}
	stats, err = c.Stats(1)
	if err != nil {
		t.Fatalf("failed to stat after clear: %v", err)
	}
	if stats.TorrentCount != 0 || stats.OutputCount != 0 {
		t.Errorf("cache not empty after clear: %+v", stats)
	}
}

func TestStatsEmptyInstance(t *testing.T) {
	c := New(t.TempDir())
	stats, err := c.Stats(42)
	if err != nil {
		t.Fatalf("stats on untouched instance should not error: %v", err)
	}
	if stats.TorrentCount != 0 || stats.TotalBytes != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}
}
