package commands

import (
	"sync"

	"github.com/atotto/clipboard"
)

// Clipboard holds the JSON text of copied notes
type Clipboard interface {
	ReadText() (string, error)
	WriteText(text string) error
}

// ProcessClipboard keeps copied notes for the lifetime of the process
type ProcessClipboard struct {
	mu   sync.Mutex
	text string
}

func (c *ProcessClipboard) ReadText() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.text == "" {
		return "[]", nil
	}
	return c.text, nil
}

func (c *ProcessClipboard) WriteText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	return nil
}

// SystemClipboard shares copied notes through the desktop clipboard
type SystemClipboard struct{}

func (SystemClipboard) ReadText() (string, error) {
	return clipboard.ReadAll()
}

func (SystemClipboard) WriteText(text string) error {
	return clipboard.WriteAll(text)
}

// NewClipboard returns the system clipboard when requested and available,
// otherwise a process clipboard
func NewClipboard(system bool) Clipboard {
	if system && !clipboard.Unsupported {
		return SystemClipboard{}
	}
	return &ProcessClipboard{}
}
