package fonts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swdunlop/press-go/press/paths"
	"github.com/swdunlop/press-go/press/report"
)

func TestRunPreservesStructure(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		`src/assets/fonts/roboto/regular.woff2`: `woff2`,
		`src/assets/fonts/roboto/bold/bold.ttf`: `ttf`,
		`src/assets/fonts/icons.svg`:            `<svg/>`,
		`src/assets/fonts/LICENSE.txt`:          `ignored`,
	}
	for name, body := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(body), 0o644))
	}
	reg, err := paths.New(root, `src`, `docs`)
	require.NoError(t, err)

	var problems report.Collector
	written, err := Run(context.Background(), reg, &problems)
	require.NoError(t, err)
	assert.Empty(t, problems.Problems())
	assert.Len(t, written, 3)

	dest := reg.Lookup(paths.Fonts).Dest
	for _, rel := range []string{`roboto/regular.woff2`, `roboto/bold/bold.ttf`, `icons.svg`} {
		data, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(rel)))
		require.NoError(t, err, rel)
		assert.Equal(t, files[`src/assets/fonts/`+rel], string(data))
	}
	assert.NoFileExists(t, filepath.Join(dest, `LICENSE.txt`))
}

func TestRunWithoutFonts(t *testing.T) {
	reg, err := paths.New(t.TempDir(), `src`, `docs`)
	require.NoError(t, err)
	written, err := Run(context.Background(), reg, nil)
	require.NoError(t, err)
	assert.Empty(t, written)
}
