package markup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swdunlop/press-go/press/asset"
	"github.com/swdunlop/press-go/press/paths"
	"github.com/swdunlop/press-go/press/report"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(body), 0o644))
	}
}

var site = map[string]string{
	`src/tpl/layouts/default.html`:   "<html><title>{{title}}</title><body>{{> nav}}{{> body}}</body></html>",
	`src/tpl/layouts/plain.html`:     "<main>{{> body}}</main>",
	`src/tpl/partials/nav.html`:      "<nav>{{#ifpage \"index\"}}home{{else}}other{{/ifpage}}</nav>",
	`src/tpl/partials/ui/button.hbs`: "<button>{{label}}</button>",
	`src/tpl/data/site.yml`:          "name: Example\n",
}

func TestRunRendersLayoutsPartialsAndData(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, site)
	writeTree(t, root, map[string]string{
		`src/index.html`: "---\ntitle: Home\n---\n<h1>{{site.name}} {{page}}</h1>{{> button label=\"Go\"}}",
		`src/about.html`: "---\nlayout: plain\n---\n<p>about</p>",
		`src/raw.html`:   "---\nlayout: none\n---\n<p>{{#repeat 3}}{{@index}}{{#if @last}}.{{/if}}{{/repeat}}</p>",
	})
	reg, err := paths.New(root, `src`, `docs`)
	require.NoError(t, err)

	var problems report.Collector
	written, err := Run(context.Background(), reg, &problems)
	require.NoError(t, err)
	assert.Empty(t, problems.Problems())
	assert.Len(t, written, 3)

	read := func(name string) string {
		data, err := os.ReadFile(filepath.Join(reg.Dist(), name))
		require.NoError(t, err)
		return string(data)
	}
	assert.Equal(t,
		"<html><title>Home</title><body><nav>home</nav><h1>Example index</h1><button>Go</button></body></html>",
		read(`index.html`))
	assert.Equal(t, "<main><p>about</p></main>", read(`about.html`))
	assert.Equal(t, "<p>012.</p>", read(`raw.html`))
	assert.NoDirExists(t, filepath.Join(reg.Dist(), `tpl`))
}

func TestRunIsFailSoft(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		`src/good.html`: "<p>good</p>",
		`src/bad.html`:  "<p>{{> missing}}</p>",
	})
	reg, err := paths.New(root, `src`, `docs`)
	require.NoError(t, err)

	var problems report.Collector
	written, err := Run(context.Background(), reg, &problems)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(reg.Dist(), `good.html`)}, written)

	got := problems.Problems()
	require.Len(t, got, 1)
	assert.Equal(t, `src/bad.html`, got[0].File)
	assert.Equal(t, `template`, got[0].Stage)
	assert.Contains(t, got[0].Message, `missing`)

	data, err := os.ReadFile(filepath.Join(reg.Dist(), `good.html`))
	require.NoError(t, err)
	assert.Equal(t, `<p>good</p>`, string(data))
	assert.NoFileExists(t, filepath.Join(reg.Dist(), `bad.html`))
}

func TestRenderUnknownLayout(t *testing.T) {
	root := t.TempDir()
	reg, err := paths.New(root, `src`, `docs`)
	require.NoError(t, err)
	s := Load(context.Background(), asset.NewJob(reg, paths.Markup, nil))
	_, err = s.Render(`src/x.html`, []byte("---\nlayout: fancy\n---\nhi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `fancy`)
}

func TestLoadReportsBrokenLayouts(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		`src/tpl/layouts/default.html`: "{{> body}}",
		`src/tpl/layouts/broken.html`:  "{{#if}}",
		`src/tpl/partials/body.html`:   "reserved",
	})
	reg, err := paths.New(root, `src`, `docs`)
	require.NoError(t, err)

	var problems report.Collector
	s := Load(context.Background(), asset.NewJob(reg, paths.Markup, &problems))
	assert.Equal(t, []string{`default`}, s.Layouts())

	var files []string
	for _, p := range problems.Problems() {
		files = append(files, p.File)
	}
	assert.ElementsMatch(t, []string{`src/tpl/layouts/broken.html`, `src/tpl/partials/body.html`}, files)
}

func TestSplitFrontMatter(t *testing.T) {
	meta, body, err := splitFrontMatter([]byte("---\ntitle: x\nlayout: plain\n---\nbody"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{`title`: `x`, `layout`: `plain`}, meta)
	assert.Equal(t, `body`, string(body))

	meta, body, err = splitFrontMatter([]byte("---\r\n---\r\nbody"))
	require.NoError(t, err)
	assert.Empty(t, meta)
	assert.Equal(t, `body`, string(body))

	meta, body, err = splitFrontMatter([]byte(`<p>plain</p>`))
	require.NoError(t, err)
	assert.Nil(t, meta)
	assert.Equal(t, `<p>plain</p>`, string(body))

	_, _, err = splitFrontMatter([]byte("---\ntitle: x\nbody"))
	assert.ErrorIs(t, err, ErrMissingClosingDelimiter)
}

func TestMarkdownHelper(t *testing.T) {
	reg, err := paths.New(t.TempDir(), `src`, `docs`)
	require.NoError(t, err)
	s := Load(context.Background(), asset.NewJob(reg, paths.Markup, nil))
	out, err := s.Render(`src/notes.html`, []byte("---\ntitle: Notes\n---\n"+
		"<div>\n  {{#markdown}}\n    # {{title}}\n\n    Some *emphasis* and a <b>tag</b>.\n  {{/markdown}}\n</div>"))
	require.NoError(t, err)
	assert.Contains(t, out, `<h1>Notes</h1>`)
	assert.Contains(t, out, `<p>Some <em>emphasis</em> and a <b>tag</b>.</p>`)
	assert.NotContains(t, out, `<pre>`)
}

func TestDedent(t *testing.T) {
	assert.Equal(t, "a\n  b\n\nc", dedent("    a\n      b\n\n    c"))
	assert.Equal(t, "a\nb", dedent("a\nb"))
}
