package worker

import (
	"fmt"
	"strings"
	"time"

	"github.com/mvcruz/lockstep/pkg/resource"
)

// Increment treats the resource as a numeric counter and adds one.
func Increment(current string) (string, error) {
	n, err := resource.ParseCounter(current)
	if err != nil {
		return "", err
	}
	return resource.FormatCounter(n + 1), nil
}

// AppendAccessLine records who touched the resource and when,
// one line per access.
func AppendAccessLine(id string) Mutation {
	return func(current string) (string, error) {
		line := fmt.Sprintf("%s accessed at %s\n", id, time.Now().Format(time.RFC3339))

		if current != "" && !strings.HasSuffix(current, "\n") {
			current += "\n"
		}
		return current + line, nil
	}
}
