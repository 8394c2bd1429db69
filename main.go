package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"go-pianoroll/commands"
	"go-pianoroll/config"
	"go-pianoroll/debug"
	"go-pianoroll/midi"
	"go-pianoroll/notes"
	"go-pianoroll/store"
	"go-pianoroll/theme"
	"go-pianoroll/tui"
)

// session is the store the editor works on
type session struct {
	store    tui.Store
	clip     notes.Clip
	clipName string
	save     func() (string, error)
	close    func() error
}

func main() {
	configPath := flag.String("config", "", "config file (default ~/.config/go-pianoroll/config.toml)")
	clipName := flag.String("clip", "", "clip to open (default the first clip)")
	flag.Parse()

	if err := run(*configPath, *clipName); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, clipName string) error {
	if configPath == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return err
		}
		configPath = p
	}
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}

	if err := debug.EnableFromEnv(); err != nil {
		return err
	}
	if cfg.Debug.Enabled {
		if err := debug.Enable(cfg.Debug.Path); err != nil {
			return err
		}
	}

	palette, err := theme.Resolve(cfg.Theme)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := openSession(ctx, cfg, clipName)
	if err != nil {
		return err
	}
	defer s.close()

	// Keyboards are detected in the background
	var rules []midi.PortRule
	for _, c := range cfg.AutoConnectControllers() {
		rules = append(rules, midi.PortRule{Match: c.PortName, Channel: c.InputChannel})
	}
	devices := midi.NewDeviceManager(rules...)
	go devices.Run(ctx)

	m, err := tui.New(ctx, tui.Options{
		Config:    cfg,
		Theme:     theme.New(palette),
		Store:     s.store,
		Clip:      s.clip,
		ClipName:  s.clipName,
		Clipboard: commands.NewClipboard(cfg.Editor.SystemClipboard),
		Devices:   devices,
		Save:      s.save,
	})
	if err != nil {
		return err
	}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	err = config.Watch(ctx, configPath, func(c *config.Config, err error) {
		p.Send(tui.ConfigMsg{Config: c, Err: err})
	})
	if err != nil {
		debug.Log("config", "not watching %s: %v", configPath, err)
	}

	_, err = p.Run()
	return err
}

// openSession opens the configured store and picks the clip to edit,
// creating one when the store is empty
func openSession(ctx context.Context, cfg *config.Config, clipName string) (*session, error) {
	switch cfg.Store.Backend {
	case config.StoreSQLite:
		path := cfg.Store.Path
		if path == "" {
			dir, err := config.ConfigDir()
			if err != nil {
				return nil, err
			}
			path = filepath.Join(dir, store.DefaultDBFile)
		}
		db, err := store.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		clips, err := db.Clips(ctx)
		if err != nil {
			db.Close()
			return nil, err
		}
		info, ok := pickClip(clips, clipName)
		if !ok {
			if clipName == "" {
				clipName = "clip 1"
			}
			clip, err := db.CreateClip(ctx, clipName)
			if err != nil {
				db.Close()
				return nil, err
			}
			info = store.ClipInfo{Clip: clip, Name: clipName}
		}
		return &session{store: db, clip: info.Clip, clipName: info.Name, close: db.Close}, nil

	default:
		root := cfg.Store.ProjectsDir
		if root == "" {
			dir, err := store.DefaultProjectsDir()
			if err != nil {
				return nil, err
			}
			root = dir
		}
		projects := store.Projects{Root: root}
		project := cfg.Store.Project

		mem, err := projects.Load(project, "")
		if errors.Is(err, store.ErrNoSaves) || errors.Is(err, os.ErrNotExist) {
			mem, err = store.NewMemory(), nil
		}
		if err != nil {
			return nil, err
		}
		clips, _ := mem.Clips(ctx)
		info, ok := pickClip(clips, clipName)
		if !ok {
			if clipName == "" {
				clipName = "clip 1"
			}
			info = store.ClipInfo{Clip: mem.CreateClip(clipName), Name: clipName}
		}
		save := func() (string, error) {
			si, err := projects.Save(mem, project, "")
			if err != nil {
				return "", err
			}
			return si.Filename, nil
		}
		return &session{store: mem, clip: info.Clip, clipName: info.Name, save: save, close: func() error { return nil }}, nil
	}
}

// pickClip finds the clip called name, or the first clip when name is empty
func pickClip(clips []store.ClipInfo, name string) (store.ClipInfo, bool) {
	for _, c := range clips {
		if name == "" || c.Name == name {
			return c, true
		}
	}
	return store.ClipInfo{}, false
}
