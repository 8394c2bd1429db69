package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go-pianoroll/notes"
)

const (
	saveExt        = ".json"
	saveTimeLayout = "2006-01-02_15-04-05"
	projectVersion = 1
)

// SaveInfo represents a saved project file (for listing)
type SaveInfo struct {
	Filename  string
	Name      string // parsed from filename (empty if unnamed)
	Timestamp time.Time
}

type savedClip struct {
	Clip  notes.Clip   `json:"clip"`
	Name  string       `json:"name"`
	Notes []notes.Note `json:"notes"`
}

type projectFile struct {
	Version int         `json:"version"`
	Clips   []savedClip `json:"clips"`
}

// Projects keeps timestamped JSON saves of Memory stores, one folder per
// project under Root
type Projects struct {
	Root string
	Now  func() time.Time
}

// DefaultProjectsDir returns ~/.config/go-pianoroll/projects
func DefaultProjectsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-pianoroll", "projects"), nil
}

func (p Projects) dir(project string) string {
	return filepath.Join(p.Root, project)
}

func (p Projects) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// List returns all project folder names
func (p Projects) List() ([]string, error) {
	entries, err := os.ReadDir(p.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var projects []string
	for _, entry := range entries {
		if entry.IsDir() {
			projects = append(projects, entry.Name())
		}
	}
	sort.Strings(projects)
	return projects, nil
}

// Saves returns the saves of a project, newest first
func (p Projects) Saves(project string) ([]SaveInfo, error) {
	entries, err := os.ReadDir(p.dir(project))
	if err != nil {
		if os.IsNotExist(err) {
			return []SaveInfo{}, nil
		}
		return nil, err
	}

	var saves []SaveInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if info, ok := parseSaveName(entry.Name()); ok {
			saves = append(saves, info)
		}
	}
	sort.Slice(saves, func(i, j int) bool {
		return saves[i].Timestamp.After(saves[j].Timestamp)
	})
	return saves, nil
}

// parseSaveName reads 2024-01-15_14-30-00.json or 2024-01-15_14-30-00_name.json
func parseSaveName(filename string) (SaveInfo, bool) {
	if !strings.HasSuffix(filename, saveExt) {
		return SaveInfo{}, false
	}
	base := strings.TrimSuffix(filename, saveExt)
	if len(base) < len(saveTimeLayout) {
		return SaveInfo{}, false
	}
	ts, err := time.Parse(saveTimeLayout, base[:len(saveTimeLayout)])
	if err != nil {
		return SaveInfo{}, false
	}
	name := ""
	if rest := base[len(saveTimeLayout):]; len(rest) > 1 && rest[0] == '_' {
		name = rest[1:]
	}
	return SaveInfo{Filename: filename, Name: name, Timestamp: ts}, true
}

// Save writes every clip of m into a new timestamped file of project
func (p Projects) Save(m *Memory, project, name string) (SaveInfo, error) {
	if project == "" {
		project = "untitled"
	}
	dir := p.dir(project)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return SaveInfo{}, fmt.Errorf("create project dir: %w", err)
	}

	data, err := json.MarshalIndent(projectFile{Version: projectVersion, Clips: m.snapshot()}, "", "  ")
	if err != nil {
		return SaveInfo{}, fmt.Errorf("encode project: %w", err)
	}

	ts := p.now()
	filename := ts.Format(saveTimeLayout)
	if name != "" {
		filename += "_" + sanitizeFilename(name)
	}
	filename += saveExt
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0644); err != nil {
		return SaveInfo{}, fmt.Errorf("write save: %w", err)
	}
	info, _ := parseSaveName(filename)
	return info, nil
}

// Load reads a save (the newest when filename is empty) into a new Memory store
func (p Projects) Load(project, filename string) (*Memory, error) {
	if filename == "" {
		saves, err := p.Saves(project)
		if err != nil {
			return nil, err
		}
		if len(saves) == 0 {
			return nil, fmt.Errorf("%w in project %s", ErrNoSaves, project)
		}
		filename = saves[0].Filename
	}

	data, err := os.ReadFile(filepath.Join(p.dir(project), filename))
	if err != nil {
		return nil, err
	}
	var pf projectFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	for _, c := range pf.Clips {
		for _, n := range c.Notes {
			if err := validNote(n); err != nil {
				return nil, fmt.Errorf("clip %s: %w", c.Clip, err)
			}
		}
	}

	m := NewMemory()
	m.restore(pf.Clips)
	return m, nil
}

// Delete removes a save file
func (p Projects) Delete(project, filename string) error {
	return os.Remove(filepath.Join(p.dir(project), filename))
}

// sanitizeFilename removes/replaces characters that are problematic in filenames
func sanitizeFilename(name string) string {
	return strings.NewReplacer(
		" ", "-", "/", "-", "\\", "-", ":", "-",
		"*", "", "?", "", "\"", "", "<", "", ">", "", "|", "",
	).Replace(name)
}
