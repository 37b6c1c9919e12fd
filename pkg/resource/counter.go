package resource

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCounter interprets resource content as a numeric counter.
// Empty or missing content counts as zero.
func ParseCounter(content string) (int64, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return 0, nil
	}

	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("resource is not a counter: %q", trimmed)
	}
	return n, nil
}

func FormatCounter(n int64) string {
	return strconv.FormatInt(n, 10)
}
