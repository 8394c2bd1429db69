package commands

import (
	"errors"
	"fmt"
	"strings"
)

// Chord is a key code plus modifier bits
type Chord int

// Modifier bits added to a key code
const (
	Shift Chord = 0x1000
	Ctrl  Chord = 0x2000
	Alt   Chord = 0x4000

	codeMask = 0x0fff
)

// Key codes of the non-character keys the dispatcher binds
const (
	KeyBackspace = 8
	KeyTab       = 9
	KeyEnter     = 13
	KeyEscape    = 27
	KeySpace     = 32
	KeyLeft      = 37
	KeyUp        = 38
	KeyRight     = 39
	KeyDown      = 40
	KeyDelete    = 46
)

// ErrInvalidChord is returned by ParseChord
var ErrInvalidChord = errors.New("invalid key chord")

// MakeChord builds a chord from a key code and modifier state
func MakeChord(code int, shift, ctrl, alt bool) Chord {
	c := Chord(code) & codeMask
	if shift {
		c |= Shift
	}
	if ctrl {
		c |= Ctrl
	}
	if alt {
		c |= Alt
	}
	return c
}

// Letter returns the chord of an upper case letter key
func Letter(r rune) Chord {
	if r >= 'a' && r <= 'z' {
		r -= 'a' - 'A'
	}
	return Chord(r)
}

// Code returns the key code without modifiers
func (c Chord) Code() int {
	return int(c & codeMask)
}

// Has reports whether all bits of mod are set
func (c Chord) Has(mod Chord) bool {
	return c&mod == mod
}

// Without clears the bits of mod
func (c Chord) Without(mod Chord) Chord {
	return c &^ mod
}

var keyNames = map[int]string{
	KeyBackspace: "Backspace",
	KeyTab:       "Tab",
	KeyEnter:     "Enter",
	KeyEscape:    "Escape",
	KeySpace:     "Space",
	KeyLeft:      "Left",
	KeyUp:        "Up",
	KeyRight:     "Right",
	KeyDown:      "Down",
	KeyDelete:    "Delete",
}

var keyCodes = map[string]int{
	"backspace": KeyBackspace,
	"bs":        KeyBackspace,
	"tab":       KeyTab,
	"enter":     KeyEnter,
	"return":    KeyEnter,
	"escape":    KeyEscape,
	"esc":       KeyEscape,
	"space":     KeySpace,
	"left":      KeyLeft,
	"up":        KeyUp,
	"right":     KeyRight,
	"down":      KeyDown,
	"delete":    KeyDelete,
	"del":       KeyDelete,
}

// String returns a form like "Ctrl+Shift+A" that ParseChord accepts
func (c Chord) String() string {
	var parts []string
	if c.Has(Ctrl) {
		parts = append(parts, "Ctrl")
	}
	if c.Has(Alt) {
		parts = append(parts, "Alt")
	}
	if c.Has(Shift) {
		parts = append(parts, "Shift")
	}
	code := c.Code()
	if name, ok := keyNames[code]; ok {
		parts = append(parts, name)
	} else if code > KeySpace && code < 0x7f {
		parts = append(parts, string(rune(code)))
	} else {
		parts = append(parts, fmt.Sprintf("#%d", code))
	}
	return strings.Join(parts, "+")
}

// ParseChord parses "Ctrl+Shift+A", "Alt+Right" or "Q" (case-insensitive)
func ParseChord(s string) (Chord, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidChord)
	}
	parts := strings.Split(s, "+")
	var c Chord
	for _, p := range parts[:len(parts)-1] {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "ctrl", "control", "c":
			c |= Ctrl
		case "alt", "option", "opt", "a":
			c |= Alt
		case "shift", "s":
			c |= Shift
		default:
			return 0, fmt.Errorf("%w: unknown modifier %q in %q", ErrInvalidChord, p, s)
		}
	}

	key := strings.TrimSpace(parts[len(parts)-1])
	if code, ok := keyCodes[strings.ToLower(key)]; ok {
		return c | Chord(code), nil
	}
	if len(key) == 1 && key[0] > ' ' && key[0] < 0x7f {
		return c | Letter(rune(key[0])), nil
	}
	return 0, fmt.Errorf("%w: unknown key %q in %q", ErrInvalidChord, key, s)
}
