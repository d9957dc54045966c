package prompts

import (
	"errors"
	"fmt"
)

// ErrPromptNotFound means a template name is not in the catalog, either
// because it is outside the known set or its backing file was absent at
// load time. Always a programming or deployment error.
var ErrPromptNotFound = errors.New("prompts: prompt not found")

// MissingParameterError reports a placeholder the template declares but
// the caller did not supply. Formatting never emits a prompt with
// unsubstituted placeholders.
type MissingParameterError struct {
	Template  string
	Parameter string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("prompts: template %q missing parameter %q", e.Template, e.Parameter)
}
