package admission

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// meminfoPath is a variable so tests can point it at a fixture.
var meminfoPath = "/proc/meminfo"

const gib = 1024 * 1024 * 1024

// DefaultParallelLimit derives the default per-model parallel limit from
// total system memory, computed once at startup:
//
//	>= 16 GiB -> 4
//	>=  8 GiB -> 2
//	otherwise -> 1
//
// If memory cannot be determined the most conservative tier applies.
func DefaultParallelLimit() int64 {
	total, err := totalMemoryBytes()
	if err != nil {
		return 1
	}
	return parallelLimitForMemory(total)
}

func parallelLimitForMemory(totalBytes uint64) int64 {
	switch {
	case totalBytes >= 16*gib:
		return 4
	case totalBytes >= 8*gib:
		return 2
	default:
		return 1
	}
}

// totalMemoryBytes reads MemTotal from /proc/meminfo.
func totalMemoryBytes() (uint64, error) {
	f, err := os.Open(meminfoPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return kb * 1024, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, os.ErrNotExist
}
