// Package skills implements the skill registry: markdown files
// with optional YAML frontmatter, loaded from a directory and injected into
// the agent's system prompt, reloadable at runtime via reload_skills.
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Skill is one loaded markdown skill file, ported from
// original_source/src/skills/loader.rs's Skill struct.
type Skill struct {
	Name        string
	Description string
	Content     string
	Tags        []string
}

// Registry holds the current set of loaded skills behind a reader/writer
// lock: read for every turn, write only for reload_skills.
type Registry struct {
	mu     sync.RWMutex
	dir    string
	skills []Skill
}

func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir}
}

// Reload re-scans the skills directory and atomically replaces the
// registry's contents. A missing directory is not an error — it yields an
// empty registry, matching original_source's "skipping" behavior on boot.
func (r *Registry) Reload() error {
	loaded, err := loadAll(r.dir)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.skills = loaded
	r.mu.Unlock()
	return nil
}

// All returns a snapshot of the currently loaded skills.
func (r *Registry) All() []Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Skill, len(r.skills))
	copy(out, r.skills)
	return out
}

// Render produces the system-prompt block carrying every loaded skill's
// actual content, or "" if none are loaded. Only Content is injected, per
// original_source/src/skills/mod.rs::build_context — Description is for
// catalog listings (list_knowledge-style tools), not the prompt itself.
func (r *Registry) Render() string {
	all := r.All()
	if len(all) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("You have the following skills available. When relevant, follow these instructions:\n\n")
	for _, s := range all {
		fmt.Fprintf(&b, "## Skill: %s\n%s\n\n", s.Name, s.Content)
	}
	return b.String()
}

func loadAll(dir string) ([]Skill, error) {
	if dir == "" {
		return nil, nil
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read skills directory %s: %w", dir, err)
	}

	var out []Skill
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())

		var skillPath string
		if e.IsDir() {
			candidate := filepath.Join(path, "SKILL.md")
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
			skillPath = candidate
		} else if strings.EqualFold(filepath.Ext(e.Name()), ".md") {
			skillPath = path
		} else {
			continue
		}

		skill, err := loadSkillFile(skillPath)
		if err != nil {
			continue // one bad skill file doesn't abort the load, per original_source behavior
		}
		out = append(out, skill)
	}
	return out, nil
}

type frontmatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

func loadSkillFile(path string) (Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, fmt.Errorf("failed to read skill file %s: %w", path, err)
	}
	content := string(data)

	if fm, body, ok := splitFrontmatter(content); ok {
		var parsed frontmatter
		if err := yaml.Unmarshal([]byte(fm), &parsed); err != nil {
			return Skill{}, fmt.Errorf("invalid frontmatter in %s: %w", path, err)
		}
		name := parsed.Name
		if name == "" {
			name = nameFromPath(path)
		}
		desc := parsed.Description
		if desc == "" {
			desc = firstLineOrHeading(body)
		}
		return Skill{Name: name, Description: desc, Content: body, Tags: parsed.Tags}, nil
	}

	return Skill{
		Name:        nameFromPath(path),
		Description: firstLineOrHeading(content),
		Content:     content,
	}, nil
}

// splitFrontmatter splits leading "---\n...\n---\n" YAML frontmatter from
// the remaining body. Returns ok=false if content has no frontmatter block.
func splitFrontmatter(content string) (fm, body string, ok bool) {
	const delim = "---"
	trimmed := strings.TrimPrefix(content, "﻿")
	if !strings.HasPrefix(trimmed, delim) {
		return "", "", false
	}
	rest := trimmed[len(delim):]
	idx := strings.Index(rest, delim)
	if idx < 0 {
		return "", "", false
	}
	fm = strings.TrimSpace(rest[:idx])
	body = strings.TrimSpace(rest[idx+len(delim):])
	return fm, body, true
}

func nameFromPath(path string) string {
	if filepath.Base(path) == "SKILL.md" {
		return filepath.Base(filepath.Dir(path))
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func firstLineOrHeading(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return strings.TrimSpace(strings.TrimLeft(line, "#"))
	}
	return "No description"
}

var (
	skillNameRE = regexp.MustCompile(`^[a-z0-9-]{1,64}$`)
)

// ValidateSkillName enforces the skill name rule: 1..64 chars of
// [a-z0-9-].
func ValidateSkillName(name string) error {
	if !skillNameRE.MatchString(name) {
		return fmt.Errorf("invalid skill name %q: must be 1-64 chars of [a-z0-9-]", name)
	}
	return nil
}

// ValidateRelativePath enforces the relative_path rule:
// non-empty, not absolute, no ".." path segment.
func ValidateRelativePath(relPath string) error {
	if relPath == "" {
		return fmt.Errorf("relative_path must not be empty")
	}
	if filepath.IsAbs(relPath) {
		return fmt.Errorf("relative_path must not be absolute: %q", relPath)
	}
	for _, seg := range strings.Split(filepath.ToSlash(relPath), "/") {
		if seg == ".." {
			return fmt.Errorf("relative_path must not contain '..': %q", relPath)
		}
	}
	return nil
}

// WriteSkillFile writes content into {skillsDir}/{skillName}/{relPath},
// creating parent directories as needed.
func WriteSkillFile(skillsDir, skillName, relPath, content string) (string, error) {
	if err := ValidateSkillName(skillName); err != nil {
		return "", err
	}
	if err := ValidateRelativePath(relPath); err != nil {
		return "", err
	}

	full := filepath.Join(skillsDir, skillName, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create skill directories: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write skill file %s: %w", full, err)
	}
	return full, nil
}
