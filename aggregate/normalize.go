package aggregate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/scrivano/scrivano/core"
)

// dateLayouts are the spellings a date value may arrive in. Candidates
// that resolve to the same calendar date group together regardless of
// spelling.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"2 January 2006",
	"January 2, 2006",
}

// NormalizeValue maps a candidate value to its grouping key. Strings fold
// case and collapse whitespace; dates resolve to ISO calendar dates;
// numbers drop formatting noise. The key is only ever compared for
// equality, never shown.
func NormalizeValue(node *core.SchemaNode, value any) string {
	switch v := value.(type) {
	case string:
		s := strings.Join(strings.Fields(strings.ToLower(v)), " ")
		if node != nil && node.Format == "date" {
			if resolved, ok := resolveDate(v); ok {
				return resolved
			}
		}
		return s
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return "null"
	}
	return fmt.Sprintf("%v", value)
}

// resolveDate tries the known layouts and returns the canonical ISO form.
func resolveDate(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
