// Package paths describes where each category of asset is read from, watched and written to.
package paths

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// A Category names one kind of asset handled by its own pipeline.
type Category string

const (
	Markup  Category = `markup`
	Styles  Category = `styles`
	Scripts Category = `scripts`
	Images  Category = `images`
	Fonts   Category = `fonts`
)

// Categories lists every category in the order the pipelines are declared.
var Categories = []Category{Markup, Styles, Scripts, Images, Fonts}

const (
	imageExts = `{jpg,jpeg,svg,png,webp,xml,gif,ico,json}`
	fontExts  = `{eot,woff,woff2,ttf,svg}`
)

// An Entry describes the paths of a single category.  Source, Watch and Base are slash separated and relative to the
// registry root; Dest is an absolute directory.
type Entry struct {
	Category Category
	Source   string // pattern of files read by a build
	Watch    string // pattern of files that trigger a rebuild
	Base     string // directory that relative output paths are computed from
	Dest     string // directory that outputs are written to
}

// Match reports whether the slash separated, root relative name matches the watch pattern.
func (e Entry) Match(name string) bool {
	return doublestar.MatchUnvalidated(e.Watch, name)
}

// Sources returns the root relative names of all files matching the source pattern, sorted lexically.
func (e Entry) Sources(fsys fs.FS) ([]string, error) {
	names, err := doublestar.Glob(fsys, e.Source, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf(`%w while listing %s sources`, err, e.Category)
	}
	return names, nil
}

// Rel returns the name relative to the base directory of the entry.
func (e Entry) Rel(name string) (string, error) {
	rel, err := filepath.Rel(filepath.FromSlash(e.Base), filepath.FromSlash(name))
	if err != nil {
		return ``, err
	}
	return filepath.ToSlash(rel), nil
}

// Output returns the absolute destination path for a root relative source name.
func (e Entry) Output(name string) (string, error) {
	rel, err := e.Rel(name)
	if err != nil {
		return ``, err
	}
	return filepath.Join(e.Dest, filepath.FromSlash(rel)), nil
}

// A Registry is the fixed set of entries for a project.  It is built once and never modified.
type Registry struct {
	root    string
	src     string
	dist    string
	entries map[Category]Entry
}

// Default returns the standard registry for a project whose sources live in src and whose output goes to dist.  Both
// are interpreted relative to the working directory.
func Default(src, dist string) (*Registry, error) {
	root, err := filepath.Abs(`.`)
	if err != nil {
		return nil, err
	}
	return New(root, src, dist)
}

// New returns the standard registry for the project in root.
func New(root, src, dist string) (*Registry, error) {
	if !filepath.IsAbs(dist) {
		dist = filepath.Join(root, dist)
	}
	if filepath.IsAbs(src) {
		rel, err := filepath.Rel(root, src)
		if err != nil {
			return nil, fmt.Errorf(`%w while resolving source directory`, err)
		}
		src = rel
	}
	src = path.Clean(filepath.ToSlash(src))
	scss := path.Join(src, `assets/scss`)
	js := path.Join(src, `assets/js`)
	images := path.Join(src, `assets/images`)
	fonts := path.Join(src, `assets/fonts`)
	for _, pattern := range []string{src, scss, js, images, fonts} {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf(`invalid source directory %q`, pattern)
		}
	}
	reg := &Registry{root: root, src: src, dist: filepath.Clean(dist)}
	reg.entries = map[Category]Entry{
		Markup: {
			Category: Markup,
			Source:   src + `/*.html`,
			Watch:    src + `/**/*.html`,
			Base:     src,
			Dest:     reg.dist,
		},
		Styles: {
			Category: Styles,
			Source:   scss + `/*.scss`,
			Watch:    scss + `/**/*.scss`,
			Base:     scss,
			Dest:     filepath.Join(reg.dist, `assets`, `css`),
		},
		Scripts: {
			Category: Scripts,
			Source:   js + `/*.js`,
			Watch:    js + `/**/*.js`,
			Base:     js,
			Dest:     filepath.Join(reg.dist, `assets`, `js`),
		},
		Images: {
			Category: Images,
			Source:   images + `/**/*.` + imageExts,
			Watch:    images + `/**/*.` + imageExts,
			Base:     images,
			Dest:     filepath.Join(reg.dist, `assets`, `images`),
		},
		Fonts: {
			Category: Fonts,
			Source:   fonts + `/**/*.` + fontExts,
			Watch:    fonts + `/**/*.` + fontExts,
			Base:     fonts,
			Dest:     filepath.Join(reg.dist, `assets`, `fonts`),
		},
	}
	return reg, nil
}

// Lookup returns the entry for a category.  An unknown category is a programming error and panics.
func (reg *Registry) Lookup(category Category) Entry {
	entry, ok := reg.entries[category]
	if !ok {
		panic(fmt.Sprintf(`paths: unknown category %q`, category))
	}
	return entry
}

// Entries returns every entry in category order.
func (reg *Registry) Entries() []Entry {
	seq := make([]Entry, 0, len(Categories))
	for _, category := range Categories {
		seq = append(seq, reg.entries[category])
	}
	return seq
}

// Root returns the absolute project directory that patterns are relative to.
func (reg *Registry) Root() string { return reg.root }

// Src returns the slash separated source root relative to Root.
func (reg *Registry) Src() string { return reg.src }

// Dist returns the absolute output directory.
func (reg *Registry) Dist() string { return reg.dist }

// FS returns a file system rooted at the project directory.
func (reg *Registry) FS() fs.FS { return os.DirFS(reg.root) }

// Abs converts a root relative, slash separated name into an absolute path.
func (reg *Registry) Abs(name string) string {
	return filepath.Join(reg.root, filepath.FromSlash(name))
}

// Relative converts an absolute path into a root relative, slash separated name.  The second result is false if the
// path is outside the root.
func (reg *Registry) Relative(abs string) (string, bool) {
	rel, err := filepath.Rel(reg.root, abs)
	if err != nil {
		return ``, false
	}
	rel = filepath.ToSlash(rel)
	if rel == `..` || strings.HasPrefix(rel, `../`) {
		return ``, false
	}
	return rel, true
}
