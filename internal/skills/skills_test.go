package skills

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReloadLoadsStandaloneAndDirectorySkills(t *testing.T) {
	dir := t.TempDir()

	mustWrite(t, filepath.Join(dir, "weather.md"), "---\nname: weather\ndescription: Check the weather\ntags: [utility]\n---\n# Weather\n\nUse the fetch_url tool.\n")

	nested := filepath.Join(dir, "coding-review")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(nested, "SKILL.md"), "No frontmatter here.\nSecond line.\n")

	reg := NewRegistry(dir)
	if err := reg.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	all := reg.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 skills, got %d: %+v", len(all), all)
	}

	byName := map[string]Skill{}
	for _, s := range all {
		byName[s.Name] = s
	}

	weather, ok := byName["weather"]
	if !ok {
		t.Fatal("missing weather skill")
	}
	if weather.Description != "Check the weather" {
		t.Errorf("weather.Description = %q", weather.Description)
	}
	if len(weather.Tags) != 1 || weather.Tags[0] != "utility" {
		t.Errorf("weather.Tags = %v", weather.Tags)
	}

	review, ok := byName["coding-review"]
	if !ok {
		t.Fatal("missing coding-review skill derived from directory name")
	}
	if review.Description != "No frontmatter here." {
		t.Errorf("review.Description = %q", review.Description)
	}
}

func TestReloadMissingDirectoryYieldsEmptyRegistry(t *testing.T) {
	reg := NewRegistry(filepath.Join(t.TempDir(), "does-not-exist"))
	if err := reg.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if len(reg.All()) != 0 {
		t.Error("expected empty registry for missing directory")
	}
	if reg.Render() != "" {
		t.Error("expected empty render for missing directory")
	}
}

func TestValidateSkillName(t *testing.T) {
	valid := []string{"a", "weather-forecast", "skill123"}
	for _, v := range valid {
		if err := ValidateSkillName(v); err != nil {
			t.Errorf("ValidateSkillName(%q) = %v, want nil", v, err)
		}
	}
	invalid := []string{"", "Weather", "has space", "has_underscore", "has.dot"}
	for _, v := range invalid {
		if err := ValidateSkillName(v); err == nil {
			t.Errorf("ValidateSkillName(%q) = nil, want error", v)
		}
	}
}

func TestValidateRelativePathRejectsEscape(t *testing.T) {
	invalid := []string{"", "/abs/path", "../escape", "sub/../../escape"}
	for _, v := range invalid {
		if err := ValidateRelativePath(v); err == nil {
			t.Errorf("ValidateRelativePath(%q) = nil, want error", v)
		}
	}
	if err := ValidateRelativePath("notes/today.md"); err != nil {
		t.Errorf("ValidateRelativePath valid path: %v", err)
	}
}

func TestWriteSkillFileCreatesNestedDirectories(t *testing.T) {
	dir := t.TempDir()
	full, err := WriteSkillFile(dir, "demo-skill", "docs/notes.md", "hello")
	if err != nil {
		t.Fatalf("WriteSkillFile: %v", err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
