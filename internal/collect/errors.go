package collect

import (
	"fmt"
	"strings"
)

// MixedProjectsError is returned when the metadata hits span more than one
// project. Collecting across projects is not supported.
type MixedProjectsError struct {
	Projects []string
}

func (e *MixedProjectsError) Error() string {
	return fmt.Sprintf("multiple projects found: %s; only one project may be collected per run",
		strings.Join(e.Projects, ", "))
}
