package theme

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

type RGB [3]uint8

type Palette struct {
	Name   string
	Colors []RGB
}

// builtins are the palettes available without a .gpl file
var builtins = map[string]*Palette{
	"plasma": {Name: "plasma", Colors: []RGB{
		{13, 8, 135}, {65, 4, 157}, {106, 0, 168}, {143, 13, 164},
		{177, 42, 144}, {204, 71, 120}, {225, 100, 98}, {242, 132, 75},
		{252, 166, 54}, {252, 206, 37}, {240, 249, 33},
	}},
	"mono": {Name: "mono", Colors: []RGB{
		{16, 16, 16}, {36, 36, 36}, {70, 70, 70}, {110, 110, 110},
		{170, 170, 170}, {200, 200, 200}, {220, 220, 220}, {235, 235, 235},
		{245, 245, 245}, {250, 250, 250}, {255, 255, 255},
	}},
}

// DefaultPalette is used when no palette is configured
const DefaultPalette = "plasma"

// Builtin returns a copy of a built-in palette
func Builtin(name string) (*Palette, bool) {
	p, ok := builtins[name]
	if !ok {
		return nil, false
	}
	return &Palette{Name: p.Name, Colors: append([]RGB(nil), p.Colors...)}, true
}

// BuiltinNames lists the built-in palettes
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the built-in palette called name, or loads name as a GIMP
// palette file. An empty name gives DefaultPalette.
func Resolve(name string) (*Palette, error) {
	if name == "" {
		name = DefaultPalette
	}
	if p, ok := Builtin(name); ok {
		return p, nil
	}
	if strings.EqualFold(filepath.Ext(name), ".gpl") {
		return LoadGPL(name)
	}
	return nil, fmt.Errorf("unknown palette %q (built in: %s)", name, strings.Join(BuiltinNames(), ", "))
}

func LoadGPL(path string) (*Palette, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := ParseGPL(f)
	if err != nil {
		return nil, fmt.Errorf("palette %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return p, nil
}

// ParseGPL reads a GIMP palette
func ParseGPL(r io.Reader) (*Palette, error) {
	p := &Palette{}
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "Name:") {
			p.Name = strings.TrimSpace(strings.TrimPrefix(line, "Name:"))
			continue
		}

		// Skip headers and comments
		if line == "" || line[0] == '#' || strings.HasPrefix(line, "GIMP") || strings.HasPrefix(line, "Columns") {
			continue
		}

		// first 3 fields are R G B, the rest is the color name
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		var c RGB
		ok := true
		for i := range c {
			v, err := strconv.Atoi(fields[i])
			if err != nil || v < 0 || v > 255 {
				ok = false
				break
			}
			c[i] = uint8(v)
		}
		if ok {
			p.Colors = append(p.Colors, c)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(p.Colors) == 0 {
		return nil, fmt.Errorf("no colors found")
	}
	return p, nil
}

// Lookup returns interpolated color for normalized value 0-1
func (p *Palette) Lookup(norm float64) RGB {
	if norm <= 0 || len(p.Colors) == 1 {
		return p.Colors[0]
	}
	if norm >= 1 {
		return p.Colors[len(p.Colors)-1]
	}

	pos := norm * float64(len(p.Colors)-1)
	i := int(pos)
	frac := pos - float64(i)

	c0 := p.Colors[i]
	c1 := p.Colors[i+1]

	return RGB{
		lerp(c0[0], c1[0], frac),
		lerp(c0[1], c1[1], frac),
		lerp(c0[2], c1[2], frac),
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a)*(1-t) + float64(b)*t)
}
