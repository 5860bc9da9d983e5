package admission

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParallelLimitForMemory(t *testing.T) {
	tests := []struct {
		name  string
		total uint64
		want  int64
	}{
		{"32GiB", 32 * gib, 4},
		{"exactly 16GiB", 16 * gib, 4},
		{"12GiB", 12 * gib, 2},
		{"exactly 8GiB", 8 * gib, 2},
		{"4GiB", 4 * gib, 1},
		{"zero", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parallelLimitForMemory(tt.total); got != tt.want {
				t.Errorf("parallelLimitForMemory(%d) = %d, want %d", tt.total, got, tt.want)
			}
		})
	}
}

func TestDefaultParallelLimitFromMeminfo(t *testing.T) {
	dir := t.TempDir()

	writeMeminfo := func(content string) string {
		path := filepath.Join(dir, "meminfo")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	orig := meminfoPath
	defer func() { meminfoPath = orig }()

	// 16 GiB = 16777216 kB
	meminfoPath = writeMeminfo("MemTotal:       16777216 kB\nMemFree:        1234 kB\n")
	if got := DefaultParallelLimit(); got != 4 {
		t.Errorf("limit = %d, want 4", got)
	}

	meminfoPath = writeMeminfo("MemTotal:       8388608 kB\n")
	if got := DefaultParallelLimit(); got != 2 {
		t.Errorf("limit = %d, want 2", got)
	}

	meminfoPath = writeMeminfo("MemTotal:       2097152 kB\n")
	if got := DefaultParallelLimit(); got != 1 {
		t.Errorf("limit = %d, want 1", got)
	}

	// Unreadable file falls back to the most conservative tier.
	meminfoPath = filepath.Join(dir, "does-not-exist")
	if got := DefaultParallelLimit(); got != 1 {
		t.Errorf("limit with missing meminfo = %d, want 1", got)
	}
}
