package mixvol

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCrashlog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	now := time.Date(2026, 10, 16, 13, 4, 5, 0, time.UTC)

	path, err := writeCrashlog(dir, now, "boom", []byte("goroutine 1 [running]"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "mixvol-crash-2026.10.16-13.04.05.log"), path)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "Panic occurred: boom")
	assert.Contains(t, string(contents), "goroutine 1 [running]")
}
