package scripts

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// directive matches "//= file.js", "//= include file.js" and "/*= file.js */" on a line of its own.
var directive = regexp.MustCompile(`^(\s*)(?://=\s*(?:include\s+)?(\S+)|/\*=\s*(?:include\s+)?(\S+?)\s*\*/)\s*$`)

// An IncludeError describes a directive that could not be resolved.
type IncludeError struct {
	File string // file containing the directive
	Line int
	Err  error
}

func (err *IncludeError) Error() string {
	return fmt.Sprintf(`%s:%d: %v`, err.File, err.Line, err.Err)
}

func (err *IncludeError) Unwrap() error { return err.Err }

// Resolve reads the file at path and splices the contents of every included file in place of its directive, recursively.
// Included paths are relative to the including file.  Each spliced line keeps the indentation of the directive.
func Resolve(path string) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err = resolve(&buf, abs, ``, map[string]bool{})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func resolve(buf *bytes.Buffer, path, indent string, active map[string]bool) error {
	if active[path] {
		return fmt.Errorf(`include cycle through %s`, path)
	}
	active[path] = true
	defer delete(active, path)

	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	scanner := bufio.NewScanner(bytes.NewReader(src))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		m := directive.FindStringSubmatch(text)
		if m == nil {
			if text != `` {
				buf.WriteString(indent)
			}
			buf.WriteString(text)
			buf.WriteByte('\n')
			continue
		}
		target := m[2]
		if target == `` {
			target = m[3]
		}
		target = strings.Trim(target, `"'`)
		err = resolve(buf, filepath.Join(filepath.Dir(path), filepath.FromSlash(target)), indent+m[1], active)
		if err != nil {
			var inner *IncludeError
			if errors.As(err, &inner) {
				return err
			}
			return &IncludeError{File: path, Line: line, Err: err}
		}
	}
	return scanner.Err()
}
