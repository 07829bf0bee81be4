package questdb

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Render substitutes $1..$N placeholders in sql with escaped literal values.
//
// The renderer walks the string once instead of using regex replacement, so
// $1 never matches inside $10: a placeholder is the longest run of digits
// following the dollar sign. Placeholders inside single-quoted string
// literals are copied verbatim.
func Render(sql string, params ...any) (string, error) {
	if len(params) == 0 {
		return sql, nil
	}

	var b strings.Builder
	b.Grow(len(sql) + 16*len(params))

	inString := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]

		if ch == '\'' {
			inString = !inString
			b.WriteByte(ch)
			continue
		}

		if ch != '$' || inString {
			b.WriteByte(ch)
			continue
		}

		// Consume the full digit run after '$'.
		j := i + 1
		for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
			j++
		}
		if j == i+1 {
			// Bare '$' with no index.
			b.WriteByte(ch)
			continue
		}

		n, err := strconv.Atoi(sql[i+1 : j])
		if err != nil || n < 1 || n > len(params) {
			return "", fmt.Errorf("questdb: placeholder $%s out of range (have %d params)", sql[i+1:j], len(params))
		}

		lit, err := Literal(params[n-1])
		if err != nil {
			return "", err
		}
		b.WriteString(lit)
		i = j - 1
	}

	return b.String(), nil
}

// Literal renders a single parameter value as a SQL literal.
//
// Strings are single-quoted with internal quotes doubled; nil renders as
// NULL; times render as ISO-8601 UTC strings in single quotes; numbers and
// booleans use their canonical textual form.
func Literal(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case time.Time:
		return "'" + x.UTC().Format("2006-01-02T15:04:05.000000Z") + "'", nil
	case *time.Time:
		if x == nil {
			return "NULL", nil
		}
		return "'" + x.UTC().Format("2006-01-02T15:04:05.000000Z") + "'", nil
	default:
		return "", fmt.Errorf("questdb: unsupported parameter type %T", v)
	}
}
