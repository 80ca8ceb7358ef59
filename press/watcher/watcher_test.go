package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recorder) task(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
}

func (r *recorder) seen(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.names {
		if n == name {
			return true
		}
	}
	return false
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names)
}

func suffix(ext string) func(string) bool {
	return func(name string) bool { return strings.HasSuffix(name, ext) }
}

func TestBindingsReceiveMatchingChanges(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, `src`, `assets`), 0o755))

	var styles, scripts recorder
	wr, err := Start(
		Root(root),
		Directory(`src`),
		Bind(
			Binding{Name: `styles`, Match: suffix(`.scss`), Task: styles.task},
			Binding{Name: `scripts`, Match: suffix(`.js`), Task: scripts.task},
		),
	)
	require.NoError(t, err)
	defer wr.Shutdown()

	require.NoError(t, os.WriteFile(filepath.Join(root, `src`, `assets`, `main.scss`), []byte(`a{}`), 0o644))
	assert.Eventually(t, func() bool { return styles.seen(`src/assets/main.scss`) }, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, scripts.count())
}

func TestNewDirectoriesAreWatched(t *testing.T) {
	root := t.TempDir()
	var scripts recorder
	wr, err := Start(Root(root), Bind(Binding{Name: `scripts`, Match: suffix(`.js`), Task: scripts.task}))
	require.NoError(t, err)
	defer wr.Shutdown()

	dir := filepath.Join(root, `lib`)
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, `util.js`), []byte(`1`), 0o644))
	assert.Eventually(t, func() bool { return scripts.seen(`lib/util.js`) }, 5*time.Second, 10*time.Millisecond)
}

func TestMovedInDirectoriesDispatchTheirFiles(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(outside, `icons`, `ui`), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outside, `icons`, `a.png`), []byte(`a`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(outside, `icons`, `ui`, `b.png`), []byte(`b`), 0o644))

	var images recorder
	wr, err := Start(Root(root), Bind(Binding{Name: `images`, Match: suffix(`.png`), Task: images.task}))
	require.NoError(t, err)
	defer wr.Shutdown()

	require.NoError(t, os.Rename(filepath.Join(outside, `icons`), filepath.Join(root, `icons`)))
	assert.Eventually(t, func() bool {
		return images.seen(`icons/a.png`) && images.seen(`icons/ui/b.png`)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMissingDirectoriesAreWatchedOnceCreated(t *testing.T) {
	root := t.TempDir()
	var scripts recorder
	wr, err := Start(
		Root(root),
		Directory(`src`),
		Bind(Binding{Name: `scripts`, Match: suffix(`.js`), Task: scripts.task}),
	)
	require.NoError(t, err)
	defer wr.Shutdown()

	// files outside the watched directory are not reported even though its parent is observed.
	require.NoError(t, os.WriteFile(filepath.Join(root, `outside.js`), []byte(`1`), 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(root, `src`, `js`), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, `src`, `js`, `app.js`), []byte(`1`), 0o644))
	assert.Eventually(t, func() bool { return scripts.seen(`src/js/app.js`) }, 5*time.Second, 10*time.Millisecond)

	assert.False(t, scripts.seen(`outside.js`))
}

func TestExcludedFilesAreIgnored(t *testing.T) {
	root := t.TempDir()
	var all, marker recorder
	wr, err := Start(
		Root(root),
		Bind(
			Binding{Name: `all`, Match: func(string) bool { return true }, Task: all.task},
			Binding{Name: `marker`, Match: suffix(`marker.txt`), Task: marker.task},
		),
	)
	require.NoError(t, err)
	defer wr.Shutdown()

	require.NoError(t, os.WriteFile(filepath.Join(root, `.main.scss.swp`), []byte(`x`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, `main.scss~`), []byte(`x`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, `marker.txt`), []byte(`x`), 0o644))
	require.Eventually(t, func() bool { return marker.seen(`marker.txt`) }, 5*time.Second, 10*time.Millisecond)

	assert.False(t, all.seen(`.main.scss.swp`))
	assert.False(t, all.seen(`main.scss~`))
}

func TestCustomExcludes(t *testing.T) {
	root := t.TempDir()
	var all recorder
	wr, err := Start(
		Root(root),
		Exclude(`*.bak`),
		Bind(Binding{Name: `all`, Match: func(string) bool { return true }, Task: all.task}),
	)
	require.NoError(t, err)
	defer wr.Shutdown()

	require.NoError(t, os.WriteFile(filepath.Join(root, `main.scss.bak`), []byte(`x`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, `.hidden`), []byte(`x`), 0o644))
	require.Eventually(t, func() bool { return all.seen(`.hidden`) }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, all.seen(`main.scss.bak`))
}

func TestBindRequiresMatcherAndTask(t *testing.T) {
	_, err := Start(Root(t.TempDir()), Bind(Binding{Name: `broken`}))
	assert.Error(t, err)
}

func TestShutdownIsIdempotent(t *testing.T) {
	wr, err := Start(Root(t.TempDir()))
	require.NoError(t, err)
	wr.Shutdown()
	wr.Shutdown()
}
