// Package tui hosts the piano roll in a terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"go-pianoroll/commands"
	"go-pianoroll/config"
	"go-pianoroll/debug"
	"go-pianoroll/editqueue"
	"go-pianoroll/layout"
	"go-pianoroll/midi"
	"go-pianoroll/notes"
	"go-pianoroll/store"
	"go-pianoroll/theme"
	"go-pianoroll/tools"
)

// Terminal cell size in CSS pixels. One row is one key.
const (
	cellW = 8.0
	cellH = layout.DefaultRowHeight

	gutterW   = 5 // key names
	headerH   = 1
	footerH   = 2 // status and help lines
	wheelRows = 3
)

// Store is what the editor needs from a note store
type Store interface {
	editqueue.NoteStore
	Undo(ctx context.Context) (string, error)
	Redo(ctx context.Context) (string, error)
	Subscribe(fn func(store.Event)) func()
}

// Options configure a Model
type Options struct {
	Config    *config.Config
	Theme     *theme.Theme
	Store     Store
	Clip      notes.Clip
	ClipName  string
	Clipboard commands.Clipboard
	Devices   *midi.DeviceManager     // nil without MIDI input
	Save      func() (string, error) // nil when the store saves itself
}

type Model struct {
	ctx   context.Context
	opts  Options
	theme *theme.Theme
	store Store

	queue      *editqueue.Queue
	dispatcher *commands.Dispatcher
	step       *midi.StepInput
	armed      bool
	tc         *tools.Context

	keys keyMap
	help help.Model

	columnsPerBeat int
	width, height  int

	kind      tools.Kind
	tool      tools.Tool // active drag tool, nil when idle
	last      tools.Pointer
	coalescer tools.Coalescer
	framing   bool

	cache   []notes.Note
	pointer *tools.Point

	message string
	err     error

	storeEvents chan store.Event
	unsubscribe func()
	quitting    bool
}

// Messages

type notesMsg struct {
	clip  notes.Clip
	notes []notes.Note
	err   error
}

type storeEventMsg store.Event

type cycleDoneMsg struct{ err error }

type frameMsg time.Time

type historyMsg struct {
	kind  store.EventKind
	label string
	err   error
}

type savedMsg struct {
	where string
	err   error
}

type deviceEventMsg midi.DeviceEvent

// ConfigMsg delivers a reloaded config file. The keymap and theme are applied
// to the running editor.
type ConfigMsg struct {
	Config *config.Config
	Err    error
}

// New creates the editor model. Store calls and the edit queue stop when ctx
// ends.
func New(ctx context.Context, opts Options) (*Model, error) {
	if opts.Store == nil {
		return nil, errors.New("tui: no store")
	}
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Theme == nil {
		p, _ := theme.Resolve("")
		opts.Theme = theme.New(p)
	}

	if opts.Clipboard == nil {
		opts.Clipboard = commands.NewClipboard(false)
	}
	d := commands.New(opts.Clipboard)
	if err := d.Rebind(opts.Config.Keymap); err != nil {
		return nil, err
	}

	m := &Model{
		ctx:            ctx,
		opts:           opts,
		theme:          opts.Theme,
		store:          opts.Store,
		dispatcher:     d,
		keys:           defaultKeyMap(),
		help:           help.New(),
		columnsPerBeat: opts.Config.Editor.ColumnsPerBeat,
		kind:           opts.Config.ToolKind(),
		storeEvents:    make(chan store.Event, 64),
	}
	m.queue = editqueue.New(ctx, opts.Store, editqueue.WithCommitHook(func(clip notes.Clip, deltas []notes.Note, label string) {
		debug.Log("tui", "commit %d deltas label=%q", len(deltas), label)
	}))
	m.step = midi.NewStepInput(m.queue)

	vp := opts.Config.Viewport()
	vp.TickScale = m.tickScale()
	vp.RowHeight = cellH
	// start with C6 on the top row
	vp.ScrollY = float64(layout.PianoKeys-1-84) * cellH
	m.tc = &tools.Context{
		Layout: layout.New(vp),
		Clip:   opts.Clip,
		Queue:  m.queue,
	}
	m.tc.SetNoteLength(opts.Config.Editor.NoteLength)

	m.unsubscribe = opts.Store.Subscribe(func(ev store.Event) {
		select {
		case m.storeEvents <- ev:
		default:
		}
	})
	return m, nil
}

func (m *Model) tickScale() float64 {
	return cellW * float64(m.columnsPerBeat) / float64(layout.PPQN)
}

// Close detaches the model from its store
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m *Model) listenStore() tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-m.storeEvents:
			return storeEventMsg(ev)
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) listenDevices() tea.Cmd {
	if m.opts.Devices == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-m.opts.Devices.Events()
		if !ok {
			return nil
		}
		return deviceEventMsg(ev)
	}
}

func (m *Model) refresh() tea.Cmd {
	clip := m.tc.Clip
	return func() tea.Msg {
		all, err := m.store.ListAllNotes(m.ctx, clip)
		return notesMsg{clip: clip, notes: all, err: err}
	}
}

func waitCycle(ctx context.Context, c *editqueue.Cycle) tea.Cmd {
	if c == nil {
		return nil
	}
	return func() tea.Msg {
		return cycleDoneMsg{err: c.Wait(ctx)}
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.listenStore(), m.listenDevices())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.setLayout(m.tc.Layout.WithSize(float64(m.gridCols())*cellW, float64(m.gridRows())*cellH))
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case tea.MouseMsg:
		return m, m.handleMouse(msg)

	case frameMsg:
		m.framing = false
		if m.tool == nil {
			return m, nil
		}
		p, ok := m.coalescer.Flush(time.Time(msg))
		if !ok {
			return m, nil
		}
		return m, m.drag(tools.Move, p)

	case cycleDoneMsg:
		if msg.err != nil {
			m.err = msg.err
			debug.Log("tui", "cycle failed: %v", msg.err)
		}
		return m, m.refresh()

	case storeEventMsg:
		var cmd tea.Cmd
		if msg.Clip == m.tc.Clip {
			cmd = m.refresh()
		}
		return m, tea.Batch(cmd, m.listenStore())

	case notesMsg:
		if msg.clip != m.tc.Clip {
			return m, nil
		}
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.cache = msg.notes
		return m, nil

	case historyMsg:
		m.err = msg.err
		if msg.err == nil {
			m.message = fmt.Sprintf("%s %s", msg.kind, msg.label)
		}
		return m, m.refresh()

	case savedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.message = "saved " + msg.where
		}
		return m, nil

	case ConfigMsg:
		if msg.Err != nil {
			m.err = fmt.Errorf("config: %w", msg.Err)
			return m, nil
		}
		m.err = m.applyConfig(msg.Config)
		if m.err == nil {
			m.message = "config reloaded"
		}
		return m, nil

	case deviceEventMsg:
		ev := midi.DeviceEvent(msg)
		switch ev.Type {
		case midi.DeviceConnected:
			m.message = "connected " + ev.ID
			go m.step.Run(m.ctx, ev.Controller.NoteEvents())
		case midi.DeviceDisconnected:
			m.message = "disconnected " + ev.ID
		}
		return m, m.listenDevices()
	}
	return m, nil
}

// applyConfig swaps the keymap and palette of a running editor
func (m *Model) applyConfig(cfg *config.Config) error {
	d := commands.New(m.opts.Clipboard)
	if err := d.Rebind(cfg.Keymap); err != nil {
		return err
	}
	p, err := theme.Resolve(cfg.Theme)
	if err != nil {
		return err
	}
	m.dispatcher = d
	m.theme = theme.New(p)
	m.opts.Config = cfg
	return nil
}

func (m *Model) gridCols() int { return max(m.width-gutterW, 1) }
func (m *Model) gridRows() int { return max(m.height-headerH-footerH, 1) }

// setLayout swaps in a new layout, clamping the vertical scroll
func (m *Model) setLayout(l *layout.Layout) {
	maxY := l.ContentHeight() - float64(m.gridRows())*cellH
	if y := l.YScroll(); y > maxY && maxY >= 0 {
		l = l.WithScroll(l.XScroll(), maxY)
	}
	m.tc.Layout = l
}

func (m *Model) scroll(dx, dy float64) {
	l := m.tc.Layout
	m.setLayout(l.WithScroll(max(l.XScroll()+dx, 0), max(l.YScroll()+dy, 0)))
}

func (m *Model) zoom(in bool) {
	cpb := m.columnsPerBeat
	if in && cpb < 16 {
		cpb *= 2
	} else if !in && cpb > 1 {
		cpb /= 2
	}
	if cpb == m.columnsPerBeat {
		return
	}
	m.columnsPerBeat = cpb
	m.setLayout(m.tc.Layout.WithZoom(m.tickScale(), 0))
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	m.message, m.err = "", nil
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		m.Close()
		return tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return nil
	case key.Matches(msg, m.keys.Escape):
		if m.tool != nil {
			return m.drag(tools.Cancel, m.last)
		}
		return waitCycle(m.ctx, m.dispatcher.Run(m.tc, commands.SelectNone, false))
	case key.Matches(msg, m.keys.Undo):
		return m.history(store.EventUndo)
	case key.Matches(msg, m.keys.Redo):
		return m.history(store.EventRedo)
	case key.Matches(msg, m.keys.Save):
		return m.save()
	case key.Matches(msg, m.keys.ToolSelect):
		m.kind = tools.KindSelect
		return nil
	case key.Matches(msg, m.keys.ToolHorizontal):
		m.kind = tools.KindHorizontal
		return nil
	case key.Matches(msg, m.keys.ToolPen):
		m.kind = tools.KindPen
		return nil
	case key.Matches(msg, m.keys.ToolEraser):
		m.kind = tools.KindEraser
		return nil
	case key.Matches(msg, m.keys.ZoomIn):
		m.zoom(true)
		return nil
	case key.Matches(msg, m.keys.ZoomOut):
		m.zoom(false)
		return nil
	case key.Matches(msg, m.keys.ScrollLeft, m.keys.ScrollRight):
		bar := m.barTicks()
		dx := float64(bar) * m.tc.Layout.TickScale()
		if key.Matches(msg, m.keys.ScrollLeft) {
			dx = -dx
		}
		m.scroll(dx, 0)
		return nil
	case key.Matches(msg, m.keys.ScrollUp):
		m.scroll(0, -12*cellH)
		return nil
	case key.Matches(msg, m.keys.ScrollDown):
		m.scroll(0, 12*cellH)
		return nil
	case key.Matches(msg, m.keys.StepInput):
		m.toggleStepInput()
		return nil
	}

	if m.tool != nil {
		return nil
	}
	chord, ok := chordFromKey(msg)
	if !ok {
		return nil
	}
	c, ok := m.dispatcher.KeyDown(m.tc, chord)
	if !ok {
		return nil
	}
	return waitCycle(m.ctx, c)
}

func (m *Model) beatTicks() int64 {
	vp := m.tc.Layout.Viewport()
	if vp.Denominator <= 0 {
		return layout.PPQN
	}
	return layout.PPQN * 4 / int64(vp.Denominator)
}

func (m *Model) barTicks() int64 {
	n := m.tc.Layout.Viewport().Numerator
	if n <= 0 {
		n = 4
	}
	return m.beatTicks() * int64(n)
}

// toggleStepInput arms MIDI step input after the selected notes, or at the
// left edge of the view
func (m *Model) toggleStepInput() {
	if m.armed {
		m.step.Disarm()
		m.armed = false
		m.message = "step input off"
		return
	}
	cursor := m.tc.Layout.Quantize(m.tc.Layout.TickFromX(0), false)
	if sel := notes.Filter(m.cache, notes.Selected); len(sel) > 0 {
		cursor = 0
		for _, n := range sel {
			cursor = max(cursor, n.End())
		}
	}
	length := m.tc.NoteLength()
	if length <= 0 {
		length = m.tc.Layout.Quantization()
	}
	m.step.SetTarget(m.tc.Clip, cursor, length)
	m.armed = true
	m.message = "step input on"
}

func (m *Model) history(kind store.EventKind) tea.Cmd {
	return func() tea.Msg {
		if err := m.queue.Flush(m.ctx); err != nil {
			return historyMsg{kind: kind, err: err}
		}
		var label string
		var err error
		if kind == store.EventUndo {
			label, err = m.store.Undo(m.ctx)
		} else {
			label, err = m.store.Redo(m.ctx)
		}
		return historyMsg{kind: kind, label: label, err: err}
	}
}

func (m *Model) save() tea.Cmd {
	if m.opts.Save == nil {
		m.message = "changes are saved automatically"
		return nil
	}
	return func() tea.Msg {
		if err := m.queue.Flush(m.ctx); err != nil {
			return savedMsg{err: err}
		}
		where, err := m.opts.Save()
		return savedMsg{where: where, err: err}
	}
}

// pointerAt converts a terminal cell to a pointer in canvas CSS pixels
func (m *Model) pointerAt(msg tea.MouseMsg) (tools.Pointer, bool) {
	col, row := msg.X-gutterW, msg.Y-headerH
	inside := col >= 0 && row >= 0 && col < m.gridCols() && row < m.gridRows()
	return tools.Pointer{
		X:     (float64(col) + 0.5) * cellW,
		Y:     (float64(row) + 0.5) * cellH,
		Shift: msg.Shift,
		Ctrl:  msg.Ctrl,
		Alt:   msg.Alt,
	}, inside
}

func (m *Model) handleMouse(msg tea.MouseMsg) tea.Cmd {
	p, inside := m.pointerAt(msg)
	if inside {
		m.pointer = &tools.Point{X: p.X, Y: p.Y}
	} else {
		m.pointer = nil
	}

	switch {
	case msg.Button == tea.MouseButtonWheelUp || msg.Button == tea.MouseButtonWheelDown:
		d := wheelRows * cellH
		if msg.Button == tea.MouseButtonWheelUp {
			d = -d
		}
		if msg.Shift {
			m.scroll(d, 0)
		} else {
			m.scroll(0, d)
		}
		if m.tool != nil {
			return m.drag(tools.Scroll, m.last)
		}
		return nil

	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		if !inside || m.tool != nil {
			return nil
		}
		m.message, m.err = "", nil
		l := m.tc.Layout
		m.tool = tools.ForHover(m.kind, l.TickFromX(p.X), l.MidinoteFromY(p.Y), m.cache)
		m.coalescer.Reset()
		debug.Log("tui", "drag start %T", m.tool)
		return m.drag(tools.Start, p)

	case msg.Action == tea.MouseActionMotion && m.tool != nil:
		merged, ok := m.coalescer.Add(time.Now(), p)
		if ok {
			return m.drag(tools.Move, merged)
		}
		m.last = p
		if m.framing {
			return nil
		}
		m.framing = true
		return tea.Tick(tools.FrameInterval, func(t time.Time) tea.Msg { return frameMsg(t) })

	case msg.Action == tea.MouseActionRelease && m.tool != nil:
		var cmds []tea.Cmd
		if merged, ok := m.coalescer.Flush(time.Now()); ok {
			cmds = append(cmds, m.drag(tools.Move, merged))
		}
		cmds = append(cmds, m.drag(tools.Stop, p))
		return tea.Batch(cmds...)
	}
	return nil
}

// drag forwards a phase to the active tool. Stop and Cancel end the drag.
func (m *Model) drag(mode tools.Mode, p tools.Pointer) tea.Cmd {
	t := m.tool
	if t == nil {
		return nil
	}
	m.last = p
	c := tools.Dispatch(t, mode, m.tc, p)
	if mode == tools.Stop || mode == tools.Cancel {
		m.tool = nil
		m.coalescer.Reset()
	}
	return waitCycle(m.ctx, c)
}
