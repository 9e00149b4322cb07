package lockedfile

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fastOptions(timeout time.Duration) Options {
	return Options{Timeout: timeout, RetryInterval: 10 * time.Millisecond}
}

func requireLocking(t *testing.T) {
	t.Helper()
	if !lockingSupported {
		t.Skip("file locking not supported on " + runtime.GOOS)
	}
}

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestBlankPathRejected(t *testing.T) {
	ctx := context.Background()
	for _, path := range []string{"", "   ", "\r\t "} {
		_, err := ReadFile(ctx, path, DefaultOptions())
		assert.ErrorIs(t, err, ErrBlankPath)

		_, err = Open(ctx, path, Exclusive, DefaultOptions())
		assert.ErrorIs(t, err, ErrBlankPath)

		err = WriteFile(ctx, path, []byte("x"), 0644, DefaultOptions())
		assert.ErrorIs(t, err, ErrBlankPath)
	}
}

func TestWriteThenRead(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "config.xml")

	require.NoError(t, WriteFile(ctx, path, []byte("first"), 0644, DefaultOptions()))
	require.NoError(t, WriteFile(ctx, path, []byte("second"), 0644, DefaultOptions()))

	data, err := ReadFile(ctx, path, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestReadMissingFileIsNotLockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.xml")

	_, err := ReadFile(context.Background(), path, fastOptions(time.Second))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.False(t, errors.Is(err, ErrLockTimeout))
}

func TestConcurrentReadersDoNotBlock(t *testing.T) {
	requireLocking(t)
	ctx := context.Background()
	path := writeFixture(t, "shared.txt", "payload")

	holder, err := Open(ctx, path, Shared, DefaultOptions())
	require.NoError(t, err)
	defer holder.Close()

	start := time.Now()
	data, err := ReadFile(ctx, path, fastOptions(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestReadTimesOutUnderExclusiveLock(t *testing.T) {
	requireLocking(t)
	ctx := context.Background()
	path := writeFixture(t, "locked.txt", "payload")

	holder, err := Open(ctx, path, Exclusive, DefaultOptions())
	require.NoError(t, err)
	defer holder.Close()

	budget := 200 * time.Millisecond
	data, err := ReadFile(ctx, path, fastOptions(budget))
	require.Error(t, err)
	assert.Nil(t, data, "no partial result on timeout")
	assert.ErrorIs(t, err, ErrLockTimeout)

	var timeout *LockTimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, path, timeout.Path)
	assert.GreaterOrEqual(t, timeout.Waited, budget)
	assert.Greater(t, timeout.Attempts, 1)
	assert.Contains(t, err.Error(), path)
}

func TestReadSucceedsOnceLockClears(t *testing.T) {
	requireLocking(t)
	ctx := context.Background()
	path := writeFixture(t, "transient.txt", "payload")

	holder, err := Open(ctx, path, Exclusive, DefaultOptions())
	require.NoError(t, err)

	released := make(chan struct{})
	go func() {
		defer close(released)
		time.Sleep(100 * time.Millisecond)
		holder.Close()
	}()

	data, err := ReadFile(ctx, path, fastOptions(2*time.Second))
	<-released
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	requireLocking(t)
	path := writeFixture(t, "cancel.txt", "payload")

	holder, err := Open(context.Background(), path, Exclusive, DefaultOptions())
	require.NoError(t, err)
	defer holder.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = ReadFile(ctx, path, fastOptions(5*time.Second))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWriteWhileSharedReadHeld(t *testing.T) {
	requireLocking(t)
	if runtime.GOOS == "windows" {
		t.Skip("windows cannot rename over an open file; see TestWriteWhileSharedReadHeldWindows")
	}
	ctx := context.Background()
	path := writeFixture(t, "config.xml", "old")

	reader, err := Open(ctx, path, Shared, DefaultOptions())
	require.NoError(t, err)
	defer reader.Close()

	require.NoError(t, WriteFile(ctx, path, []byte("new"), 0644, fastOptions(time.Second)))

	data, err := ReadFile(ctx, path, fastOptions(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestWriteWhileSharedReadHeldWindows(t *testing.T) {
	if runtime.GOOS != "windows" {
		t.Skip("rename over an open file succeeds on " + runtime.GOOS)
	}
	ctx := context.Background()
	path := writeFixture(t, "config.xml", "old")

	reader, err := Open(ctx, path, Shared, DefaultOptions())
	require.NoError(t, err)

	err = WriteFile(ctx, path, []byte("new"), 0644, fastOptions(100*time.Millisecond))
	assert.ErrorIs(t, err, ErrLockTimeout)
	require.NoError(t, reader.Close())

	// The failed attempt leaves neither the target nor temp files behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, WriteFile(ctx, path, []byte("new"), 0644, fastOptions(time.Second)))
	data, err := ReadFile(ctx, path, fastOptions(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestReadLines(t *testing.T) {
	content := "\xEF\xBB\xBFa.cs\r\nb.cs\n\n   \r\nsub dir/c.cs\n"
	path := writeFixture(t, "files.txt", content)

	lines, err := ReadLines(context.Background(), path, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.cs", "b.cs", "sub dir/c.cs"}, lines)
}

func TestReadLinesEmptyFile(t *testing.T) {
	path := writeFixture(t, "empty.txt", "")

	lines, err := ReadLines(context.Background(), path, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "shared", Shared.String())
	assert.Equal(t, "exclusive", Exclusive.String())
}
