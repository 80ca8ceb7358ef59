package markup

import (
	"bytes"
	"errors"

	"gopkg.in/yaml.v3"
)

// ErrMissingClosingDelimiter is returned when front matter is opened but never closed.
var ErrMissingClosingDelimiter = errors.New(`front matter is missing its closing delimiter`)

// splitFrontMatter separates YAML front matter delimited by "---" lines from the rest of a page.  Pages without front
// matter return a nil map and the full content.
func splitFrontMatter(content []byte) (map[string]any, []byte, error) {
	nl := []byte("\n")
	if bytes.HasPrefix(content, []byte("---\r\n")) {
		nl = []byte("\r\n")
	} else if !bytes.HasPrefix(content, []byte("---\n")) {
		return nil, content, nil
	}
	open := append([]byte(`---`), nl...)
	rest := content[len(open):]

	var raw, body []byte
	if bytes.HasPrefix(rest, open) {
		body = rest[len(open):]
	} else {
		closing := append(append([]byte{}, nl...), open...)
		idx := bytes.Index(rest, closing)
		if idx < 0 {
			if !bytes.HasSuffix(rest, append(append([]byte{}, nl...), `---`...)) {
				return nil, nil, ErrMissingClosingDelimiter
			}
			idx = len(rest) - len(nl) - 3
			raw, body = rest[:idx], nil
		} else {
			raw, body = rest[:idx], rest[idx+len(closing):]
		}
	}

	meta := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := yaml.Unmarshal(raw, &meta); err != nil {
			return nil, nil, err
		}
	}
	return meta, body, nil
}
