// Package prompts loads the fixed set of analysis prompt templates from
// disk and selects the right one per call type and subject.
package prompts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/wolfman30/tutoring-ai-platform/internal/calltype"
	"github.com/wolfman30/tutoring-ai-platform/pkg/logging"
)

// Known template names. Files on disk outside this set are never loaded;
// a known name with no backing file is simply absent from the catalog.
const (
	PromptIntroductoryCall = "introductory_call"
	PromptTutoringSession  = "tutoring_session"
	PromptMathTutoring     = "math_tutoring"
	PromptReadingTutoring  = "reading_tutoring"
	PromptQuickAssessment  = "quick_assessment"
)

var knownTemplates = []string{
	PromptIntroductoryCall,
	PromptTutoringSession,
	PromptMathTutoring,
	PromptReadingTutoring,
	PromptQuickAssessment,
}

const templateSuffix = ".prompt.txt"

var (
	mathKeywords = []string{
		"math", "algebra", "geometry", "arithmetic", "fractions",
		"multiplication", "division", "decimals", "calculus", "numbers",
	}
	readingKeywords = []string{
		"reading", "phonics", "literacy", "writing", "spelling",
		"vocabulary", "grammar", "language", "comprehension",
	}
)

// Catalog is the process-wide template registry, populated from a prompt
// directory at startup and rebuilt only by an explicit Reload.
type Catalog struct {
	dir string
	log *logging.Logger

	mu        sync.RWMutex
	templates map[string]*Template
}

// NewCatalog loads the known templates from dir. Missing files are
// logged and skipped; a file that exists but fails to parse is an error.
func NewCatalog(dir string, log *logging.Logger) (*Catalog, error) {
	if dir == "" {
		panic("prompts: template directory required")
	}
	if log == nil {
		log = logging.Default()
	}
	c := &Catalog{dir: dir, log: log.Named("prompts")}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload rebuilds the registry from disk. A running process never sees
// file edits otherwise.
func (c *Catalog) Reload() error {
	loaded := make(map[string]*Template, len(knownTemplates))
	for _, name := range knownTemplates {
		path := filepath.Join(c.dir, name+templateSuffix)
		raw, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			c.log.Warn("prompt template file absent", "template", name, "path", path)
			continue
		}
		if err != nil {
			return fmt.Errorf("prompts: read %s: %w", path, err)
		}
		t, err := parseTemplate(name, raw)
		if err != nil {
			return err
		}
		loaded[name] = t
	}

	c.mu.Lock()
	c.templates = loaded
	c.mu.Unlock()
	c.log.Info("prompt catalog loaded", "templates", len(loaded), "dir", c.dir)
	return nil
}

// Get returns a template by name.
func (c *Catalog) Get(name string) (*Template, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPromptNotFound, name)
	}
	return t, nil
}

// Format renders one template with the given arguments.
func (c *Catalog) Format(name string, args map[string]string) (*FormattedPrompt, error) {
	t, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	return t.Format(args)
}

// SelectForCallType picks the template name for a classified call.
// Introductory and unknown calls always take the introductory template.
// Tutoring calls take a subject template when the hint matches; with no
// subject match, a short session downgrades to the quick assessment.
func (c *Catalog) SelectForCallType(ct calltype.CallType, subjectHint string, shortSession bool) string {
	if ct != calltype.CallTypeTutoring {
		return PromptIntroductoryCall
	}
	hint := strings.ToLower(subjectHint)
	if matchesAny(hint, mathKeywords) {
		return PromptMathTutoring
	}
	if matchesAny(hint, readingKeywords) {
		return PromptReadingTutoring
	}
	if shortSession {
		return PromptQuickAssessment
	}
	return PromptTutoringSession
}

func matchesAny(hint string, keywords []string) bool {
	if hint == "" {
		return false
	}
	for _, kw := range keywords {
		if strings.Contains(hint, kw) {
			return true
		}
	}
	return false
}

// Watch reloads the catalog when a known template file changes. Meant
// for development; production processes load once at startup.
func (c *Catalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("prompts: watcher: %w", err)
	}
	if err := watcher.Add(c.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("prompts: watch %s: %w", c.dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				if !strings.HasSuffix(event.Name, templateSuffix) {
					continue
				}
				if err := c.Reload(); err != nil {
					c.log.Error("prompt reload failed", "error", err, "file", event.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.log.Error("prompt watcher error", "error", err)
			}
		}
	}()
	return nil
}
