package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/studykit-backend/internal/domain"
	"github.com/yungbote/studykit-backend/internal/generation/schema"
)

type Task string

const (
	TaskMCQ       Task = "mcq"
	TaskFlashcard Task = "flashcard"
	TaskTest      Task = "test"
	TaskSummary   Task = "summary"
	TaskRAG       Task = "rag"
	TaskTopics    Task = "topics"
)

const (
	// MaxContextPassages bounds how many retrieved passages go into one prompt.
	MaxContextPassages = 6
	ContextSeparator   = "\n\n---\n\n"
)

// Input is a superset of the fields any template reads.
// Missing fields render as zero values.
type Input struct {
	Topic      string
	N          int
	Difficulty string
	Text       string
	Query      string
	K          int
	SampleText string
	Contexts   []domain.ContextPassage
}

// Prompt is a rendered system/user pair.
type Prompt struct {
	Name    string
	Version int
	Schema  schema.Kind
	System  string
	User    string
}

//go:embed templates.yaml
var templatesFS embed.FS

type yamlTemplates struct {
	Version int            `yaml:"version"`
	Prompts []yamlTemplate `yaml:"prompts"`
}

type yamlTemplate struct {
	Name   string `yaml:"name"`
	Schema string `yaml:"schema"`
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

type compiledTemplate struct {
	name    Task
	version int
	schema  schema.Kind
	system  *template.Template
	user    *template.Template
}

var (
	registryOnce sync.Once
	registry     map[Task]compiledTemplate
	registryErr  error
)

func loadRegistry() (map[Task]compiledTemplate, error) {
	registryOnce.Do(func() {
		registry, registryErr = compileTemplates()
	})
	return registry, registryErr
}

func compileTemplates() (map[Task]compiledTemplate, error) {
	data, err := templatesFS.ReadFile("templates.yaml")
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	var doc yamlTemplates
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if doc.Version <= 0 {
		return nil, fmt.Errorf("templates: invalid version %d", doc.Version)
	}
	out := make(map[Task]compiledTemplate, len(doc.Prompts))
	for _, p := range doc.Prompts {
		name := Task(strings.TrimSpace(p.Name))
		if name == "" {
			return nil, fmt.Errorf("templates: prompt without name")
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("templates: duplicate prompt %s", name)
		}
		kind := schema.Kind(strings.TrimSpace(p.Schema))
		if schema.Definition(kind) == nil {
			return nil, fmt.Errorf("templates: %s has unknown schema %q", name, p.Schema)
		}
		sysT, err := template.New(string(name) + ".system").Option("missingkey=zero").Parse(p.System)
		if err != nil {
			return nil, fmt.Errorf("%s system template parse: %w", name, err)
		}
		userT, err := template.New(string(name) + ".user").Option("missingkey=zero").Parse(p.User)
		if err != nil {
			return nil, fmt.Errorf("%s user template parse: %w", name, err)
		}
		out[name] = compiledTemplate{
			name:    name,
			version: doc.Version,
			schema:  kind,
			system:  sysT,
			user:    userT,
		}
	}
	return out, nil
}

func render(t *template.Template, in Input) (string, error) {
	var b bytes.Buffer
	if err := t.Execute(&b, in); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

// Build renders the template for task. Item tasks get a CONTEXT block when
// passages are supplied; RAG always gets a numbered passage block.
func Build(task Task, in Input) (Prompt, error) {
	reg, err := loadRegistry()
	if err != nil {
		return Prompt{}, err
	}
	t, ok := reg[task]
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt: %s", task)
	}
	if err := validateInput(task, in); err != nil {
		return Prompt{}, fmt.Errorf("%s: %w", task, err)
	}
	sys, err := render(t.system, in)
	if err != nil {
		return Prompt{}, fmt.Errorf("%s system render: %w", task, err)
	}
	user, err := render(t.user, in)
	if err != nil {
		return Prompt{}, fmt.Errorf("%s user render: %w", task, err)
	}

	switch task {
	case TaskMCQ, TaskFlashcard, TaskTest:
		if block := ContextBlock(in.Contexts); block != "" {
			user += "\n\n" + block
		}
	case TaskRAG:
		user += "\n\n" + NumberedContextBlock(in.Contexts)
	}

	return Prompt{
		Name:    string(t.name),
		Version: t.version,
		Schema:  t.schema,
		System:  sys,
		User:    user,
	}, nil
}

func validateInput(task Task, in Input) error {
	switch task {
	case TaskMCQ, TaskFlashcard, TaskTest:
		if strings.TrimSpace(in.Topic) == "" {
			return fmt.Errorf("missing topic")
		}
		if in.N < 1 {
			return fmt.Errorf("item count must be at least 1, got %d", in.N)
		}
		if task == TaskTest && !schema.IsDifficulty(in.Difficulty) {
			return fmt.Errorf("invalid difficulty %q", in.Difficulty)
		}
	case TaskSummary:
		if strings.TrimSpace(in.Text) == "" {
			return fmt.Errorf("missing text")
		}
	case TaskRAG:
		if strings.TrimSpace(in.Query) == "" {
			return fmt.Errorf("missing query")
		}
		if len(in.Contexts) == 0 {
			return fmt.Errorf("no context passages")
		}
	case TaskTopics:
		if strings.TrimSpace(in.SampleText) == "" {
			return fmt.Errorf("missing sample text")
		}
		if in.K < 1 {
			return fmt.Errorf("k must be at least 1, got %d", in.K)
		}
	}
	return nil
}

func firstPassages(contexts []domain.ContextPassage) []domain.ContextPassage {
	if len(contexts) > MaxContextPassages {
		return contexts[:MaxContextPassages]
	}
	return contexts
}

// ContextBlock joins up to MaxContextPassages passage texts under a CONTEXT:
// heading. It returns "" when there is nothing to show.
func ContextBlock(contexts []domain.ContextPassage) string {
	parts := make([]string, 0, MaxContextPassages)
	for _, p := range firstPassages(contexts) {
		if txt := strings.TrimSpace(p.Text); txt != "" {
			parts = append(parts, txt)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "CONTEXT:\n" + strings.Join(parts, ContextSeparator)
}

// NumberedContextBlock renders passages as "[i] source: label" entries so the
// model can cite labels.
func NumberedContextBlock(contexts []domain.ContextPassage) string {
	ps := firstPassages(contexts)
	parts := make([]string, 0, len(ps))
	for i, p := range ps {
		label := strings.TrimSpace(p.Label)
		if label == "" {
			label = fmt.Sprintf("passage-%d", i+1)
		}
		parts = append(parts, fmt.Sprintf("[%d] source: %s\n%s", i+1, label, strings.TrimSpace(p.Text)))
	}
	return "CONTEXT:\n" + strings.Join(parts, ContextSeparator)
}
