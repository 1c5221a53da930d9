package workflow

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/boardindex/bpt/internal/domain"
)

// RenderTemplate substitutes {name} placeholders in tmpl. Doubled braces
// stand for literal braces, which is how JSON objects are written in
// templates. Placeholders with format specs or conversions are rejected.
func RenderTemplate(tmpl string, values map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unmatched '{' at offset %d", domain.ErrTemplate, i)
			}
			field := tmpl[i+1 : i+1+end]
			if strings.ContainsAny(field, "{:!") {
				return "", fmt.Errorf("%w: unsupported placeholder {%s}", domain.ErrTemplate, field)
			}
			value, ok := values[field]
			if !ok {
				return "", fmt.Errorf("%w: unknown placeholder {%s}", domain.ErrTemplate, field)
			}
			b.WriteString(value)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w: single '}' at offset %d", domain.ErrTemplate, i)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// renderPlatform renders tmpl and checks the result is a JSON object.
func renderPlatform(tmpl string, values map[string]string) ([]byte, error) {
	out, err := RenderTemplate(tmpl, values)
	if err != nil {
		return nil, err
	}
	if !gjson.Valid(out) || !gjson.Parse(out).IsObject() {
		return nil, fmt.Errorf("%w: rendered template is not a JSON object", domain.ErrTemplate)
	}
	return []byte(out), nil
}
