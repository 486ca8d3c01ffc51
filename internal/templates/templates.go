// Package templates loads auditor panels and prompt templates from YAML.
package templates

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Errors returned by the template engine.
var (
	ErrUnknownStage = errors.New("unknown stage")
	ErrInvalidFile  = errors.New("invalid template file")
)

// File is the YAML layout of a template file.
type File struct {
	SystemPrompt  string             `yaml:"system_prompt"`
	DefaultPrompt string             `yaml:"default_prompt"`
	Auditors      map[string]Auditor `yaml:"auditors"`
	Stages        []Stage            `yaml:"stages"`
}

// Auditor describes one reviewer role.
type Auditor struct {
	Persona string `yaml:"persona"`
	// Model overrides the configured model for this role.
	Model string `yaml:"model"`
}

// Stage lists the auditors of one stage and its prompt.
type Stage struct {
	Name     string   `yaml:"name"`
	Auditors []string `yaml:"auditors"`
	// Prompt overrides DefaultPrompt for this stage.
	Prompt string `yaml:"prompt"`
}

// PromptData is the data available to prompt templates.
type PromptData struct {
	Role     string
	Persona  string
	Stage    string
	Document string
}

// Engine resolves stage panels and renders prompts.
type Engine struct {
	file    File
	stages  map[string]*compiledStage
	ordered []string
}

type compiledStage struct {
	Stage
	source string
	tmpl   *template.Template
}

// Load reads a template file from path.
func Load(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template file: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in templates.
func Default() *Engine {
	e, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in templates: %v", err))
	}
	return e
}

// Parse builds an engine from YAML. Every stage prompt is compiled up front so
// a broken template fails at load rather than mid-audit.
func Parse(data []byte) (*Engine, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parsing YAML: %w", ErrInvalidFile, err)
	}

	e := &Engine{file: f, stages: make(map[string]*compiledStage, len(f.Stages))}
	for i, st := range f.Stages {
		name := strings.TrimSpace(st.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: stage %d has no name", ErrInvalidFile, i)
		}
		if _, dup := e.stages[name]; dup {
			return nil, fmt.Errorf("%w: duplicate stage %q", ErrInvalidFile, name)
		}
		src := st.Prompt
		if src == "" {
			src = f.DefaultPrompt
		}
		if strings.TrimSpace(src) == "" {
			return nil, fmt.Errorf("%w: stage %q has no prompt and no default_prompt is set", ErrInvalidFile, name)
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("%w: stage %q prompt: %w", ErrInvalidFile, name, err)
		}
		st.Name = name
		e.stages[name] = &compiledStage{Stage: st, source: src, tmpl: tmpl}
		e.ordered = append(e.ordered, name)
	}
	return e, nil
}

// Stages returns stage names in file order.
func (e *Engine) Stages() []string {
	return append([]string(nil), e.ordered...)
}

// SystemPrompt returns the shared system prompt, or "" when unset.
func (e *Engine) SystemPrompt() string { return e.file.SystemPrompt }

// StageAuditors returns the roles configured for stage. Unknown stages have none.
func (e *Engine) StageAuditors(stage string) []string {
	st, ok := e.stages[stage]
	if !ok {
		return nil
	}
	return append([]string(nil), st.Auditors...)
}

// AuditorModel returns the per-role model override, or "".
func (e *Engine) AuditorModel(role string) string {
	return e.file.Auditors[role].Model
}

// AuditorPrompt renders the prompt for role reviewing document at stage.
func (e *Engine) AuditorPrompt(stage, role, document string) (string, error) {
	st, ok := e.stages[stage]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	var b strings.Builder
	err := st.tmpl.Execute(&b, PromptData{
		Role:     role,
		Persona:  e.file.Auditors[role].Persona,
		Stage:    stage,
		Document: document,
	})
	if err != nil {
		return "", fmt.Errorf("render %s/%s prompt: %w", stage, role, err)
	}
	return b.String(), nil
}

// TemplateContent returns the template text that shapes role's prompt at
// stage: the system prompt, the stage prompt source and the role persona.
// It feeds the cache fingerprint, so editing any of them invalidates cached
// responses.
func (e *Engine) TemplateContent(stage, role string) string {
	st, ok := e.stages[stage]
	if !ok {
		return ""
	}
	return e.file.SystemPrompt + "\x00" + st.source + "\x00" + e.file.Auditors[role].Persona
}
