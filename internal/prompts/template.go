package prompts

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Template is one named prompt, immutable once loaded. Placeholders in
// the user prompt use {snake_case} names.
type Template struct {
	Name        string
	Version     int
	Description string
	System      string
	User        string

	// params are the placeholder names the user prompt declares,
	// derived at parse time.
	params []string
}

// FormattedPrompt is the render result handed to a provider.
type FormattedPrompt struct {
	System string
	User   string
}

var placeholderRE = regexp.MustCompile(`\{([a-z][a-z0-9_]*)\}`)

// Parameters returns the placeholder names the template requires.
func (t *Template) Parameters() []string {
	out := make([]string, len(t.params))
	copy(out, t.params)
	return out
}

// Format substitutes every declared placeholder. A declared placeholder
// with no matching argument fails; arguments the template never declares
// are ignored, so call sites can pass a superset of common fields.
func (t *Template) Format(args map[string]string) (*FormattedPrompt, error) {
	user := t.User
	for _, name := range t.params {
		value, ok := args[name]
		if !ok {
			return nil, &MissingParameterError{Template: t.Name, Parameter: name}
		}
		user = strings.ReplaceAll(user, "{"+name+"}", value)
	}
	return &FormattedPrompt{System: t.System, User: user}, nil
}

// parseTemplate reads the prompt file format:
//
//	# version: 2 - extracts profile details from tutoring transcripts
//	SYSTEM:
//	...system prompt text...
//	USER:
//	...user prompt text with {placeholders}...
func parseTemplate(name string, raw []byte) (*Template, error) {
	t := &Template{Name: name, Version: 1}
	lines := strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n")

	section := ""
	var system, user []string
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case i == 0 && strings.HasPrefix(trimmed, "# version:"):
			header := strings.TrimSpace(strings.TrimPrefix(trimmed, "# version:"))
			fields := strings.SplitN(header, " - ", 2)
			version, err := strconv.Atoi(strings.TrimSpace(fields[0]))
			if err != nil {
				return nil, fmt.Errorf("prompts: template %q has a bad version header: %w", name, err)
			}
			t.Version = version
			if len(fields) == 2 {
				t.Description = strings.TrimSpace(fields[1])
			}
		case trimmed == "SYSTEM:":
			section = "system"
		case trimmed == "USER:":
			section = "user"
		case section == "system":
			system = append(system, line)
		case section == "user":
			user = append(user, line)
		}
	}

	t.System = strings.TrimSpace(strings.Join(system, "\n"))
	t.User = strings.TrimSpace(strings.Join(user, "\n"))
	if t.User == "" {
		return nil, fmt.Errorf("prompts: template %q has no USER section", name)
	}

	seen := map[string]bool{}
	for _, m := range placeholderRE.FindAllStringSubmatch(t.User, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			t.params = append(t.params, m[1])
		}
	}
	return t, nil
}
