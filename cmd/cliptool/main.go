// Command cliptool inspects and converts clips outside the editor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-pianoroll/config"
	"go-pianoroll/midi"
	"go-pianoroll/notes"
	"go-pianoroll/store"
)

func main() {
	fs := flag.NewFlagSet("cliptool", flag.ExitOnError)
	dbPath := fs.String("db", "", "sqlite note store")
	project := fs.String("project", "", "project of JSON saves (used when -db is not set)")
	bpm := fs.Float64("bpm", 120, "tempo written by export")
	fs.Usage = usage
	fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) == 0 {
		usage()
		return
	}

	t := &tool{dbPath: *dbPath, project: *project, bpm: *bpm}
	var err error
	switch args[0] {
	case "ports":
		err = listPorts()
	case "clips":
		err = t.clips()
	case "saves":
		err = t.saves()
	case "import":
		if len(args) < 2 {
			usage()
			return
		}
		name := strings.TrimSuffix(filepath.Base(args[1]), filepath.Ext(args[1]))
		if len(args) > 2 {
			name = args[2]
		}
		err = t.importSMF(args[1], name)
	case "export":
		if len(args) < 3 {
			usage()
			return
		}
		err = t.exportSMF(args[1], args[2])
	case "undo", "redo":
		err = t.history(args[0] == "undo")
	default:
		usage()
		return
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Clip Tool")
	fmt.Println("")
	fmt.Println("Usage: cliptool [-db file | -project name] command")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  ports                  - List MIDI input ports")
	fmt.Println("  clips                  - List clips and note counts")
	fmt.Println("  saves                  - List saves of a project")
	fmt.Println("  import <file> [name]   - Import a Standard MIDI File as a new clip")
	fmt.Println("  export <clip> <file>   - Write a clip as a Standard MIDI File")
	fmt.Println("  undo, redo             - Step the history of a sqlite store")
}

func listPorts() error {
	fmt.Println("=== MIDI Input Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	ch := make(chan []string, 1)
	go func() { ch <- midi.InPortNames() }()

	select {
	case names := <-ch:
		for i, n := range names {
			fmt.Printf("  %d: %s\n", i, n)
		}
		if len(names) == 0 {
			fmt.Println("  (none)")
		}
		return nil
	case <-time.After(3 * time.Second):
		return errors.New("port scan timed out")
	}
}

type tool struct {
	dbPath  string
	project string
	bpm     float64
}

// clipStore is what every command needs from either backend
type clipStore interface {
	ListAllNotes(ctx context.Context, clip notes.Clip) ([]notes.Note, error)
	Clips(ctx context.Context) ([]store.ClipInfo, error)
}

func (t *tool) projects() (store.Projects, string, error) {
	project := t.project
	cfg, err := config.Load()
	if err != nil {
		return store.Projects{}, "", err
	}
	if project == "" {
		project = cfg.Store.Project
	}
	root := cfg.Store.ProjectsDir
	if root == "" {
		if root, err = store.DefaultProjectsDir(); err != nil {
			return store.Projects{}, "", err
		}
	}
	return store.Projects{Root: root}, project, nil
}

// open returns the selected store. Memory stores are loaded from the newest
// save of the project and an empty one stands in when there is none.
func (t *tool) open() (clipStore, func() error, error) {
	if t.dbPath != "" {
		db, err := store.OpenSQLite(t.dbPath)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	}
	mem, _, _, err := t.memory()
	if err != nil {
		return nil, nil, err
	}
	return mem, func() error { return nil }, nil
}

func (t *tool) memory() (*store.Memory, store.Projects, string, error) {
	p, project, err := t.projects()
	if err != nil {
		return nil, p, "", err
	}
	mem, err := p.Load(project, "")
	if errors.Is(err, store.ErrNoSaves) {
		mem, err = store.NewMemory(), nil
	}
	return mem, p, project, err
}

func (t *tool) clips() error {
	s, closeFn, err := t.open()
	if err != nil {
		return err
	}
	defer closeFn()

	clips, err := s.Clips(context.Background())
	if err != nil {
		return err
	}
	for _, c := range clips {
		fmt.Printf("  %-24s %5d notes  %s\n", c.Name, c.Notes, c.Clip)
	}
	return nil
}

func (t *tool) saves() error {
	p, project, err := t.projects()
	if err != nil {
		return err
	}
	saves, err := p.Saves(project)
	if err != nil {
		return err
	}
	fmt.Printf("=== %s ===\n", project)
	for _, s := range saves {
		fmt.Printf("  %s  %-20s %s\n", s.Timestamp.Format("2006-01-02 15:04:05"), s.Name, s.Filename)
	}
	return nil
}

func (t *tool) findClip(ctx context.Context, s clipStore, name string) (store.ClipInfo, error) {
	clips, err := s.Clips(ctx)
	if err != nil {
		return store.ClipInfo{}, err
	}
	for _, c := range clips {
		if c.Name == name || string(c.Clip) == name {
			return c, nil
		}
	}
	return store.ClipInfo{}, fmt.Errorf("%w: %s", store.ErrUnknownClip, name)
}

func (t *tool) importSMF(path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	all, err := store.ReadSMF(f)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if t.dbPath != "" {
		db, err := store.OpenSQLite(t.dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		clip, err := db.CreateClip(ctx, name)
		if err != nil {
			return err
		}
		if err := db.ReplaceNotes(ctx, clip, name, all); err != nil {
			return err
		}
		fmt.Printf("imported %d notes into %s\n", len(all), name)
		return nil
	}

	mem, p, project, err := t.memory()
	if err != nil {
		return err
	}
	mem.ReplaceNotes(mem.CreateClip(name), name, all)
	info, err := p.Save(mem, project, "import "+name)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d notes into %s (%s)\n", len(all), name, info.Filename)
	return nil
}

func (t *tool) exportSMF(name, path string) error {
	s, closeFn, err := t.open()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := context.Background()
	info, err := t.findClip(ctx, s, name)
	if err != nil {
		return err
	}
	all, err := s.ListAllNotes(ctx, info.Clip)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := store.WriteSMF(f, all, t.bpm); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("wrote %d notes to %s\n", len(all), path)
	return nil
}

func (t *tool) history(undo bool) error {
	if t.dbPath == "" {
		return errors.New("history is only kept by sqlite stores, pass -db")
	}
	db, err := store.OpenSQLite(t.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	var label string
	if undo {
		label, err = db.Undo(ctx)
	} else {
		label, err = db.Redo(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", label)
	return nil
}
