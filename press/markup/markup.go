// Package markup renders root level HTML pages with Handlebars layouts, partials and data.
//
// A page may start with YAML front matter.  The "layout" key selects a layout from the layouts directory (default
// "default", or "none" for no layout); the page itself is available to the layout as the "body" partial.  Partials
// are named by the base name of their file and data files are exposed under their base name.
package markup

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/mailgun/raymond/v2"
	"github.com/swdunlop/html-go/hog"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"

	"github.com/swdunlop/press-go/press/asset"
	"github.com/swdunlop/press-go/press/paths"
	"github.com/swdunlop/press-go/press/report"
)

// Directories holding templates, relative to the source root.
const (
	LayoutsDir  = `tpl/layouts`
	PartialsDir = `tpl/partials`
	DataDir     = `tpl/data`
)

// DefaultLayout is used by pages that do not name a layout.
const DefaultLayout = `default`

// Run renders every root level page.  Layouts, partials and data are reloaded on every run so edits to them are picked
// up by the watcher.
func Run(ctx context.Context, reg *paths.Registry, reporter report.Reporter) ([]string, error) {
	job := asset.NewJob(reg, paths.Markup, reporter)
	names, err := job.Sources()
	if err != nil {
		return nil, err
	}
	if err = job.Prepare(); err != nil {
		return nil, err
	}
	site := Load(ctx, job)
	for _, name := range names {
		if ctx.Err() != nil {
			return job.Written(), ctx.Err()
		}
		src, err := job.Read(name)
		if err != nil {
			job.Problem(ctx, name, `template`, err)
			continue
		}
		html, err := site.Render(name, src)
		if err != nil {
			job.Problem(ctx, name, `template`, err)
			continue
		}
		out, err := job.Output(name)
		if err != nil {
			return job.Written(), err
		}
		if err = job.Write(out, []byte(html)); err != nil {
			return job.Written(), fmt.Errorf(`%w while writing %s`, err, out)
		}
	}
	hog.From(ctx).Debug().Int(`pages`, len(names)).Int(`layouts`, len(site.layouts)).Int(`partials`, len(site.partials)).
		Msg(`rendered pages`)
	return job.Written(), nil
}

// A Site holds the layouts, partials and data shared by every page of a run.
type Site struct {
	layouts  map[string]*raymond.Template
	partials map[string]string
	data     map[string]any
}

// Load reads the layouts, partials and data of the source tree.  Files that cannot be read or parsed are reported and
// left out of the site.
func Load(ctx context.Context, job *asset.Job) *Site {
	site := &Site{
		layouts:  map[string]*raymond.Template{},
		partials: map[string]string{},
		data:     map[string]any{},
	}
	src := job.Registry.Src()
	fsys := job.Registry.FS()

	each(ctx, job, fsys, path.Join(src, LayoutsDir, `*.html`), func(name string, body []byte) error {
		tpl, err := raymond.Parse(string(body))
		if err != nil {
			return err
		}
		site.layouts[baseName(name)] = tpl
		return nil
	})
	each(ctx, job, fsys, path.Join(src, PartialsDir, `**/*.{html,hbs,handlebars}`), func(name string, body []byte) error {
		partial := baseName(name)
		if partial == `body` {
			return fmt.Errorf(`the partial name %q is reserved for page content`, partial)
		}
		site.partials[partial] = string(body)
		return nil
	})
	each(ctx, job, fsys, path.Join(src, DataDir, `*.{yml,yaml,json}`), func(name string, body []byte) error {
		var value any
		if err := yaml.Unmarshal(body, &value); err != nil {
			return err
		}
		site.data[baseName(name)] = value
		return nil
	})
	return site
}

func each(ctx context.Context, job *asset.Job, fsys fs.FS, pattern string, fn func(name string, body []byte) error) {
	names, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		job.Problem(ctx, pattern, `template`, err)
		return
	}
	for _, name := range names {
		body, err := fs.ReadFile(fsys, name)
		if err == nil {
			err = fn(name, body)
		}
		if err != nil {
			job.Problem(ctx, name, `template`, err)
		}
	}
}

func baseName(name string) string {
	base := path.Base(name)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Render renders a single page.  The name is used for the "page" variable and the ifpage helpers.
func (site *Site) Render(name string, src []byte) (string, error) {
	meta, body, err := splitFrontMatter(src)
	if err != nil {
		return ``, fmt.Errorf(`%w in front matter`, err)
	}
	page := baseName(name)

	vars := make(map[string]any, len(site.data)+len(meta)+2)
	for k, v := range site.data {
		vars[k] = v
	}
	for k, v := range meta {
		vars[k] = v
	}
	vars[`page`] = page
	vars[`root`] = ``

	pageTpl, err := raymond.Parse(string(body))
	if err != nil {
		return ``, err
	}

	layoutName := DefaultLayout
	if v, ok := meta[`layout`]; ok {
		layoutName = fmt.Sprint(v)
	}
	layout := site.layouts[layoutName]
	switch {
	case layout != nil:
	case layoutName == `none` || layoutName == DefaultLayout:
		site.prepare(pageTpl, page)
		return pageTpl.Exec(vars)
	default:
		return ``, fmt.Errorf(`layout not found: %s`, layoutName)
	}

	tpl := layout.Clone()
	site.prepare(tpl, page)
	tpl.RegisterPartialTemplate(`body`, pageTpl)
	return tpl.Exec(vars)
}

// prepare registers the partials and helpers of the site on a template.
func (site *Site) prepare(tpl *raymond.Template, page string) {
	tpl.RegisterPartials(site.partials)
	tpl.RegisterHelpers(map[string]any{
		`ifpage`: func(pages string, options *raymond.Options) string {
			if matchPage(page, pages) {
				return options.Fn()
			}
			return options.Inverse()
		},
		`unlesspage`: func(pages string, options *raymond.Options) string {
			if !matchPage(page, pages) {
				return options.Fn()
			}
			return options.Inverse()
		},
		`markdown`: func(options *raymond.Options) raymond.SafeString {
			src := options.Fn()
			out, err := Markdown(src)
			if err != nil {
				return raymond.SafeString(src)
			}
			return raymond.SafeString(out)
		},
		`repeat`: func(n int, options *raymond.Options) string {
			var buf strings.Builder
			for i := 0; i < n; i++ {
				frame := options.NewDataFrame()
				frame.Set(`index`, i)
				frame.Set(`first`, i == 0)
				frame.Set(`last`, i == n-1)
				buf.WriteString(options.FnData(frame))
			}
			return buf.String()
		},
	})
}

// markdown converts GitHub flavored Markdown, passing raw HTML through.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// Markdown renders a block of Markdown, removing the indentation common to its lines first so blocks can be indented
// along with the surrounding HTML.
func Markdown(src string) (string, error) {
	var buf bytes.Buffer
	err := markdown.Convert([]byte(dedent(src)), &buf)
	if err != nil {
		return ``, err
	}
	return buf.String(), nil
}

func dedent(src string) string {
	lines := strings.Split(src, "\n")
	prefix := ``
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == `` {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			prefix, first = indent, false
			continue
		}
		for !strings.HasPrefix(indent, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	if prefix == `` {
		return src
	}
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.Join(lines, "\n")
}

// matchPage reports whether page is one of the comma separated page names.
func matchPage(page, pages string) bool {
	for _, p := range strings.Split(pages, `,`) {
		if strings.TrimSpace(p) == page {
			return true
		}
	}
	return false
}

// Layouts returns the names of the layouts that were loaded, sorted.
func (site *Site) Layouts() []string {
	seq := make([]string, 0, len(site.layouts))
	for name := range site.layouts {
		seq = append(seq, name)
	}
	sort.Strings(seq)
	return seq
}
