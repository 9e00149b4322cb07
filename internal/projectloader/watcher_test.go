package projectloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanbridge/internal/projectinfo"
)

func TestWatcher_ReaggregatesOnNewProject(t *testing.T) {
	dump := t.TempDir()
	staging := t.TempDir()

	results := make(chan *Result, 16)
	w, err := NewWatcher(newLoader(t), dump, 50*time.Millisecond, func(res *Result, err error) {
		if err != nil {
			return
		}
		select {
		case results <- res:
		default:
		}
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// Build the folder elsewhere and move it in so the watcher sees one event.
	// The list lives outside the moved folder so its recorded path stays valid.
	list := filepath.Join(staging, "compile.txt")
	require.NoError(t, os.WriteFile(list, []byte("a.cs\nb.cs\n"), 0644))
	p := newProject(t, staging, "Arrived", projectinfo.ProjectTypeTest)
	p.info.AddAnalysisResult(projectinfo.ManagedCompilerInputs, list)
	p.save()
	require.NoError(t, os.Rename(p.dir, filepath.Join(dump, "Arrived")))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case res := <-results:
			if len(res.Projects) == 1 {
				assert.Equal(t, "Arrived", res.Projects[0].Name)
				assert.GreaterOrEqual(t, w.Stats().Runs, 1)
				return
			}
		case <-deadline:
			t.Fatalf("no aggregation observed; stats %+v", w.Stats())
		}
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(newLoader(t), t.TempDir(), 0, nil, nil)
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}

func TestWatcher_StartFailsForMissingDir(t *testing.T) {
	w, err := NewWatcher(newLoader(t), filepath.Join(t.TempDir(), "gone"), 0, nil, nil)
	require.NoError(t, err)
	assert.Error(t, w.Start(context.Background()))
	w.Stop()
}
