package press

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swdunlop/press-go/press/paths"
	"github.com/swdunlop/press-go/press/report"
	"github.com/swdunlop/press-go/press/serve"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(body), 0o644))
	}
}

func pngBytes(t *testing.T) string {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 16), uint8(y * 16), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.String()
}

func project(t *testing.T) (*Config, *report.Collector) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		`src/index.html`:                 "---\ntitle: Home\n---\n<h1>{{title}}</h1>\n",
		`src/tpl/layouts/default.html`:   "<html><head><title>{{title}}</title></head><body>{{> body}}</body></html>\n",
		`src/assets/scss/main.scss`:      "$c: #123456;\nbody { color: $c; }\n",
		`src/assets/scss/_partial.scss`:  "a { color: red; }\n",
		`src/assets/js/app.js`:           "//= lib/util.js\nconsole.log(greet('world'));\n",
		`src/assets/js/lib/util.js`:      "function greet(name) { return 'hello ' + name; }\n",
		`src/assets/images/logo.png`:     pngBytes(t),
		`src/assets/fonts/sans/a.woff2`:  "font-data",
		`src/assets/images/icons/x.json`: "{ \"a\" : 1 }\n",
	})
	reg, err := paths.New(root, `src`, `docs`)
	require.NoError(t, err)
	problems := new(report.Collector)
	cfg, err := New(Registry(reg), Reporter(problems))
	require.NoError(t, err)
	return cfg, problems
}

func snapshot(t *testing.T, dir string) map[string]string {
	files := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestBuildProducesEveryOutput(t *testing.T) {
	cfg, problems := project(t)
	require.NoError(t, cfg.Build(context.Background()))
	assert.Empty(t, problems.Problems())

	files := snapshot(t, cfg.Registry().Dist())
	var names []string
	for name := range files {
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{
		`index.html`,
		`assets/css/main.css`,
		`assets/css/main.min.css`,
		`assets/js/app.js`,
		`assets/js/app.min.js`,
		`assets/images/logo.png`,
		`assets/images/icons/x.json`,
		`assets/fonts/sans/a.woff2`,
	}, names)
	assert.Contains(t, files[`index.html`], `<title>Home</title>`)
	assert.Contains(t, files[`index.html`], `<h1>Home</h1>`)
	assert.Contains(t, files[`assets/js/app.js`], `function greet(name)`)
	assert.Equal(t, `{"a":1}`, files[`assets/images/icons/x.json`])
	assert.Equal(t, `font-data`, files[`assets/fonts/sans/a.woff2`])
}

func TestBuildIsIdempotent(t *testing.T) {
	cfg, _ := project(t)
	require.NoError(t, cfg.Build(context.Background()))
	first := snapshot(t, cfg.Registry().Dist())
	require.NoError(t, cfg.Build(context.Background()))
	assert.Equal(t, first, snapshot(t, cfg.Registry().Dist()))
}

func TestBuildRemovesStaleOutputs(t *testing.T) {
	cfg, _ := project(t)
	stale := filepath.Join(cfg.Registry().Dist(), `assets`, `js`, `old.js`)
	writeTree(t, cfg.Registry().Root(), map[string]string{`docs/assets/js/old.js`: `old`})
	require.FileExists(t, stale)
	require.NoError(t, cfg.Build(context.Background()))
	assert.NoFileExists(t, stale)
}

func TestBuildWithoutSources(t *testing.T) {
	reg, err := paths.New(t.TempDir(), `src`, `docs`)
	require.NoError(t, err)
	cfg, err := New(Registry(reg), Reporter(nil))
	require.NoError(t, err)
	assert.ErrorIs(t, cfg.Build(context.Background()), fs.ErrNotExist)
}

func TestBuildContinuesPastProblems(t *testing.T) {
	cfg, problems := project(t)
	writeTree(t, cfg.Registry().Root(), map[string]string{
		`src/assets/scss/broken.scss`: "body { color: ",
		`src/assets/js/broken.js`:     "//= missing.js\n",
	})
	require.NoError(t, cfg.Build(context.Background()))

	var stages []string
	for _, p := range problems.Problems() {
		stages = append(stages, p.Stage)
	}
	assert.ElementsMatch(t, []string{`scss`, `include`}, stages)
	dist := cfg.Registry().Dist()
	assert.FileExists(t, filepath.Join(dist, `assets`, `css`, `main.css`))
	assert.FileExists(t, filepath.Join(dist, `assets`, `js`, `app.js`))
	assert.NoFileExists(t, filepath.Join(dist, `assets`, `css`, `broken.css`))
	assert.NoFileExists(t, filepath.Join(dist, `assets`, `js`, `broken.js`))
}

func TestCleanRefusesToRemoveSources(t *testing.T) {
	root := t.TempDir()
	reg, err := paths.New(root, `src`, `.`)
	require.NoError(t, err)
	cfg, err := New(Registry(reg))
	require.NoError(t, err)
	assert.Error(t, cfg.Clean(context.Background()))
}

func TestCleanWithoutOutput(t *testing.T) {
	cfg, _ := project(t)
	assert.NoError(t, cfg.Clean(context.Background()))
	assert.NoDirExists(t, cfg.Registry().Dist())
}

func TestRunNotifiesSubscribers(t *testing.T) {
	cfg, _ := project(t)
	var mu sync.Mutex
	var results []Result
	cfg.OnComplete(func(res Result) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, res)
	})
	res, err := cfg.Run(context.Background(), paths.Scripts)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, paths.Scripts, results[0].Category)
	assert.Equal(t, res.Written, results[0].Written)
	assert.Len(t, res.Written, 2)

	_, err = cfg.Run(context.Background(), `sounds`)
	assert.Error(t, err)
	assert.Len(t, results, 1)
}

func TestURLs(t *testing.T) {
	cfg, _ := project(t)
	dist := cfg.Registry().Dist()
	assert.Equal(t,
		[]string{`/index.html`, `/assets/css/main.css`},
		cfg.urls([]string{filepath.Join(dist, `index.html`), filepath.Join(dist, `assets`, `css`, `main.css`)}),
	)
}

func TestBindingsCoverEveryCategory(t *testing.T) {
	cfg, _ := project(t)
	bindings := cfg.Bindings(context.Background())
	require.Len(t, bindings, len(paths.Categories))
	owner := func(name string) []string {
		var seq []string
		for _, b := range bindings {
			if b.Match(name) {
				seq = append(seq, b.Name)
			}
		}
		return seq
	}
	assert.Equal(t, []string{`markup`}, owner(`src/tpl/partials/nav.html`))
	assert.Equal(t, []string{`styles`}, owner(`src/assets/scss/base/_reset.scss`))
	assert.Equal(t, []string{`scripts`}, owner(`src/assets/js/lib/util.js`))
	assert.Equal(t, []string{`images`}, owner(`src/assets/images/a/b.gif`))
	assert.Equal(t, []string{`fonts`}, owner(`src/assets/fonts/x.eot`))
	assert.Empty(t, owner(`src/notes.txt`))
}

type testListener struct{ addr chan net.Addr }

func (tl testListener) Listen(ctx context.Context) (net.Listener, error) {
	lr, err := net.Listen(`tcp`, `127.0.0.1:0`)
	if err == nil {
		tl.addr <- lr.Addr()
	}
	return lr, err
}

func TestWatchRebuildsChangedCategory(t *testing.T) {
	cfg, _ := project(t)
	var mu sync.Mutex
	var results []Result
	cfg.OnComplete(func(res Result) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, res)
	})

	ctx, cancel := context.WithCancel(context.Background())
	tl := testListener{addr: make(chan net.Addr, 1)}
	done := make(chan error, 1)
	go func() { done <- cfg.Watch(ctx, serve.Hook(tl)) }()
	defer func() {
		cancel()
		<-done
	}()

	addr := <-tl.addr
	rsp, err := http.Get(`http://` + addr.String() + serve.Prefix + `metrics`)
	require.NoError(t, err)
	body, err := io.ReadAll(rsp.Body)
	rsp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `press_task_runs_total{result="success",task="scripts"} 1`)

	mu.Lock()
	initial := len(results)
	mu.Unlock()
	assert.Equal(t, len(Tasks), initial)

	out := filepath.Join(cfg.Registry().Dist(), `assets`, `js`, `app.js`)
	require.FileExists(t, out)

	src := filepath.Join(cfg.Registry().Root(), `src`, `assets`, `js`, `lib`, `util.js`)
	require.Eventually(t, func() bool {
		_ = os.WriteFile(src, []byte("function greet(name) { return 'goodbye ' + name; }\n"), 0o644)
		data, _ := os.ReadFile(out)
		return strings.Contains(string(data), `goodbye`)
	}, 10*time.Second, 100*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	rebuilt := results[initial:]
	require.NotEmpty(t, rebuilt)
	for _, res := range rebuilt {
		assert.Equal(t, paths.Scripts, res.Category)
	}
}

func TestWatchWaitsForMissingSources(t *testing.T) {
	reg, err := paths.New(t.TempDir(), `src`, `docs`)
	require.NoError(t, err)
	cfg, err := New(Registry(reg), Reporter(nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tl := testListener{addr: make(chan net.Addr, 1)}
	done := make(chan error, 1)
	go func() { done <- cfg.Watch(ctx, serve.Hook(tl)) }()

	select {
	case <-tl.addr:
	case err := <-done:
		t.Fatalf(`watch returned before serving: %v`, err)
	}

	writeTree(t, reg.Root(), map[string]string{`src/assets/js/app.js`: "console.log('hello');\n"})
	out := filepath.Join(reg.Dist(), `assets`, `js`, `app.min.js`)
	assert.Eventually(t, func() bool {
		_, err := os.Stat(out)
		return err == nil
	}, 10*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestIgnoreAddsPatterns(t *testing.T) {
	reg, err := paths.New(t.TempDir(), `src`, `docs`)
	require.NoError(t, err)
	cfg, err := New(Registry(reg), Ignore(`*.bak`), Ignore(`*.orig`))
	require.NoError(t, err)
	assert.Equal(t, []string{`*.bak`, `*.orig`}, cfg.ignore)
}
