package frame

import (
	"fmt"
	"strings"
)

// FormatError is returned when a frame reaches a stage that cannot handle
// its dtype.
type FormatError struct {
	Stage string
	Got   DType
	Want  []DType
}

func (e *FormatError) Error() string {
	want := make([]string, len(e.Want))
	for i, d := range e.Want {
		want[i] = d.String()
	}
	return fmt.Sprintf("%s: unsupported dtype %s (want %s)", e.Stage, e.Got, strings.Join(want, " or "))
}
