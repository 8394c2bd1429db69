package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"go-pianoroll/debug"
	"go-pianoroll/notes"
)

// DefaultDBFile is used when no path is configured
const DefaultDBFile = "pianoroll.sqlite3"

const errDBClientNil = "db client is nil"

type clipRow struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Name      string
	CreatedAt time.Time
}

func (clipRow) TableName() string { return "clips" }

type noteRow struct {
	ID       int64  `gorm:"primaryKey;autoIncrement:false"`
	ClipID   string `gorm:"type:varchar(36);index:idx_note_clip"`
	Channel  int
	Key      int
	Tick     int64
	Duration int64
	Velocity float64
	FineTune float64
	Selected bool
}

func (noteRow) TableName() string { return "notes" }

func (r noteRow) note() notes.Note {
	return notes.Note{
		ID: r.ID, Channel: r.Channel, Key: r.Key, Tick: r.Tick, Duration: r.Duration,
		Velocity: r.Velocity, FineTune: r.FineTune, Selected: r.Selected,
	}
}

func rowOf(clip notes.Clip, n notes.Note) noteRow {
	return noteRow{
		ID: n.ID, ClipID: string(clip), Channel: n.Channel, Key: n.Key, Tick: n.Tick,
		Duration: n.Duration, Velocity: n.Velocity, FineTune: n.FineTune, Selected: n.Selected,
	}
}

// historyRow is one undo step. Undone steps form the redo list until the
// next batch clears them.
type historyRow struct {
	ID        uint     `gorm:"primaryKey;autoIncrement"`
	ClipID    string   `gorm:"type:varchar(36);index:idx_history_clip"`
	Label     string
	Changes   []change `gorm:"type:text;serializer:json"`
	Undone    bool     `gorm:"index:idx_history_undone"`
	CreatedAt time.Time
}

func (historyRow) TableName() string { return "history" }

// SQLite is a NoteStore persisted with gorm in a sqlite file
type SQLite struct {
	notifier

	DB *gorm.DB
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at dbPath
func OpenSQLite(dbPath string) (*SQLite, error) {
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	db, err := gorm.Open(sqlite.Open(dbPath), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	// one writer keeps id allocation inside a transaction race free
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&clipRow{}, &noteRow{}, &historyRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	debug.Log("store", "opened sqlite store %s", dbPath)
	return &SQLite{DB: db, db: sqlDB}, nil
}

// Close releases the database
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) check() error {
	if s == nil || s.DB == nil {
		return errors.New(errDBClientNil)
	}
	return nil
}

// CreateClip adds an empty clip
func (s *SQLite) CreateClip(ctx context.Context, name string) (notes.Clip, error) {
	if err := s.check(); err != nil {
		return "", err
	}
	clip := notes.NewClip()
	if err := s.DB.WithContext(ctx).Create(&clipRow{ID: string(clip), Name: name}).Error; err != nil {
		return "", fmt.Errorf("creating clip: %w", err)
	}
	return clip, nil
}

// Clips lists clips in creation order
func (s *SQLite) Clips(ctx context.Context) ([]ClipInfo, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var rows []struct {
		ID    string
		Name  string
		Count int
	}
	err := s.DB.WithContext(ctx).Model(&clipRow{}).
		Select("clips.id, clips.name, COUNT(notes.id) AS count").
		Joins("LEFT JOIN notes ON notes.clip_id = clips.id").
		Group("clips.id, clips.name, clips.created_at").
		Order("clips.created_at, clips.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing clips: %w", err)
	}
	out := make([]ClipInfo, len(rows))
	for i, r := range rows {
		out[i] = ClipInfo{Clip: notes.Clip(r.ID), Name: r.Name, Notes: r.Count}
	}
	return out, nil
}

func clipExists(tx *gorm.DB, clip notes.Clip) error {
	var n int64
	if err := tx.Model(&clipRow{}).Where("id = ?", string(clip)).Count(&n).Error; err != nil {
		return fmt.Errorf("querying clip: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownClip, clip)
	}
	return nil
}

func listNotes(tx *gorm.DB, clip notes.Clip) ([]notes.Note, error) {
	var rows []noteRow
	if err := tx.Where("clip_id = ?", string(clip)).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying notes: %w", err)
	}
	out := make([]notes.Note, len(rows))
	for i, r := range rows {
		out[i] = r.note()
	}
	return out, nil
}

// ListAllNotes returns the notes of clip ordered by id
func (s *SQLite) ListAllNotes(ctx context.Context, clip notes.Clip) ([]notes.Note, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	tx := s.DB.WithContext(ctx)
	if err := clipExists(tx, clip); err != nil {
		return nil, err
	}
	return listNotes(tx, clip)
}

func writeChanges(tx *gorm.DB, clip notes.Clip, changes []change) error {
	for _, c := range changes {
		if c.After == nil {
			if err := tx.Delete(&noteRow{}, c.ID).Error; err != nil {
				return fmt.Errorf("deleting note %d: %w", c.ID, err)
			}
			continue
		}
		row := rowOf(clip, *c.After)
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("saving note %d: %w", c.ID, err)
		}
	}
	return nil
}

// ChangeBatch applies deltas in one transaction
func (s *SQLite) ChangeBatch(ctx context.Context, clip notes.Clip, deltas []notes.Note, undoLabel string) error {
	if err := s.check(); err != nil {
		return err
	}
	var count int
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := clipExists(tx, clip); err != nil {
			return err
		}
		current, err := listNotes(tx, clip)
		if err != nil {
			return err
		}
		var lastID int64
		if err := tx.Model(&noteRow{}).Select("COALESCE(MAX(id), 0)").Scan(&lastID).Error; err != nil {
			return fmt.Errorf("querying last note id: %w", err)
		}
		changes, err := plan(current, deltas, func() int64 {
			lastID++
			return lastID
		})
		if err != nil {
			return err
		}
		if err := writeChanges(tx, clip, changes); err != nil {
			return err
		}
		count = len(changes)

		label := undoLabelFor(undoLabel, changes)
		if label == "" || len(changes) == 0 {
			return nil
		}
		if err := tx.Where("undone = ?", true).Delete(&historyRow{}).Error; err != nil {
			return fmt.Errorf("clearing redo steps: %w", err)
		}
		h := historyRow{ClipID: string(clip), Label: label, Changes: changes}
		if err := tx.Create(&h).Error; err != nil {
			return fmt.Errorf("recording undo step: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("change batch on %s: %w", clip, err)
	}

	debug.Log("store", "sqlite batch on %s: %d deltas, %d changes, label=%q", clip, len(deltas), count, undoLabel)
	s.notify(Event{Clip: clip, Kind: EventBatch, Label: undoLabel, Count: count})
	return nil
}

// Undo reverts the latest step and returns its label
func (s *SQLite) Undo(ctx context.Context) (string, error) {
	return s.travel(ctx, EventUndo)
}

// Redo reapplies the oldest undone step and returns its label
func (s *SQLite) Redo(ctx context.Context) (string, error) {
	return s.travel(ctx, EventRedo)
}

func (s *SQLite) travel(ctx context.Context, kind EventKind) (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}
	var h historyRow
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("undone = ?", false).Order("id DESC")
		empty := ErrNothingToUndo
		if kind == EventRedo {
			q = tx.Where("undone = ?", true).Order("id ASC")
			empty = ErrNothingToRedo
		}
		if err := q.First(&h).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return empty
			}
			return fmt.Errorf("querying history: %w", err)
		}

		changes := h.Changes
		if kind == EventUndo {
			changes = inverted(h.Changes)
		}
		if err := writeChanges(tx, notes.Clip(h.ClipID), changes); err != nil {
			return err
		}
		return tx.Model(&h).Update("undone", kind == EventUndo).Error
	})
	if err != nil {
		return "", err
	}

	debug.Log("store", "sqlite %s %q on %s", kind, h.Label, h.ClipID)
	s.notify(Event{Clip: notes.Clip(h.ClipID), Kind: kind, Label: h.Label, Count: len(h.Changes)})
	return h.Label, nil
}

// ReplaceNotes swaps the whole content of clip, creating it when missing.
// Ids are reassigned and the clip's history is dropped.
func (s *SQLite) ReplaceNotes(ctx context.Context, clip notes.Clip, name string, all []notes.Note) error {
	if err := s.check(); err != nil {
		return err
	}
	for _, n := range all {
		if err := validNote(n); err != nil {
			return err
		}
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := clipRow{ID: string(clip)}
		if err := tx.Where(&row).Attrs(clipRow{Name: name}).FirstOrCreate(&row).Error; err != nil {
			return fmt.Errorf("finding clip: %w", err)
		}
		if name != "" && row.Name != name {
			if err := tx.Model(&row).Update("name", name).Error; err != nil {
				return fmt.Errorf("renaming clip: %w", err)
			}
		}
		if err := tx.Where("clip_id = ?", string(clip)).Delete(&noteRow{}).Error; err != nil {
			return fmt.Errorf("clearing notes: %w", err)
		}
		if err := tx.Where("clip_id = ?", string(clip)).Delete(&historyRow{}).Error; err != nil {
			return fmt.Errorf("clearing history: %w", err)
		}
		if len(all) == 0 {
			return nil
		}
		var lastID int64
		if err := tx.Model(&noteRow{}).Select("COALESCE(MAX(id), 0)").Scan(&lastID).Error; err != nil {
			return fmt.Errorf("querying last note id: %w", err)
		}
		rows := make([]noteRow, len(all))
		for i, n := range all {
			lastID++
			n.ID = lastID
			rows[i] = rowOf(clip, n)
		}
		if err := tx.CreateInBatches(rows, 500).Error; err != nil {
			return fmt.Errorf("inserting notes: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(Event{Clip: clip, Kind: EventReplace, Count: len(all)})
	return nil
}

// DeleteClip removes a clip with its notes and history
func (s *SQLite) DeleteClip(ctx context.Context, clip notes.Clip) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := clipExists(tx, clip); err != nil {
			return err
		}
		if err := tx.Where("clip_id = ?", string(clip)).Delete(&noteRow{}).Error; err != nil {
			return fmt.Errorf("deleting notes: %w", err)
		}
		if err := tx.Where("clip_id = ?", string(clip)).Delete(&historyRow{}).Error; err != nil {
			return fmt.Errorf("deleting history: %w", err)
		}
		if err := tx.Delete(&clipRow{ID: string(clip)}).Error; err != nil {
			return fmt.Errorf("deleting clip: %w", err)
		}
		return nil
	})
}
