package midi

import (
	"context"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"go-pianoroll/debug"
)

// DeviceEvent is emitted when controllers connect/disconnect
type DeviceEvent struct {
	Type       DeviceEventType
	Controller Controller
	ID         string
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

// PortRule picks input ports by a case-insensitive name fragment. An empty
// Match takes every port.
type PortRule struct {
	Match   string
	Channel int
}

// inPort is a named input port as seen by one scan
type inPort struct {
	name string
	in   drivers.In
}

// DeviceManager handles hot-plug detection of MIDI keyboards
type DeviceManager struct {
	controllers map[string]Controller
	mu          sync.RWMutex
	events      chan DeviceEvent
	pollRate    time.Duration
	rules       []PortRule

	listPorts func() []inPort
	open      func(id string, in drivers.In, channel int) (Controller, error)
}

// NewDeviceManager creates a device manager connecting the ports matched by
// rules. Without rules every input port except MIDI through ports is used.
func NewDeviceManager(rules ...PortRule) *DeviceManager {
	return &DeviceManager{
		controllers: make(map[string]Controller),
		events:      make(chan DeviceEvent, 16),
		pollRate:    time.Second,
		rules:       rules,
		listPorts:   systemPorts,
		open: func(id string, in drivers.In, channel int) (Controller, error) {
			return NewKeyboardController(id, in, channel)
		},
	}
}

func systemPorts() []inPort {
	var out []inPort
	for _, in := range gomidi.GetInPorts() {
		out = append(out, inPort{name: in.String(), in: in})
	}
	return out
}

// InPortNames lists the MIDI input ports of the system
func InPortNames() []string {
	var names []string
	for _, p := range systemPorts() {
		names = append(names, p.name)
	}
	return names
}

// Events returns a channel of device connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Controllers returns a snapshot of connected controllers
func (dm *DeviceManager) Controllers() map[string]Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	copy := make(map[string]Controller, len(dm.controllers))
	for k, v := range dm.controllers {
		copy[k] = v
	}
	return copy
}

// match returns the rule that takes the port called name
func (dm *DeviceManager) match(name string) (PortRule, bool) {
	lower := strings.ToLower(name)
	if len(dm.rules) == 0 {
		if strings.Contains(lower, "through") {
			return PortRule{}, false
		}
		return PortRule{Channel: AnyChannel}, true
	}
	for _, r := range dm.rules {
		if strings.Contains(lower, strings.ToLower(r.Match)) {
			return r, true
		}
	}
	return PortRule{}, false
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	// Initial scan
	dm.scan()

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.scan()
		}
	}
}

func (dm *DeviceManager) scan() {
	// Get current MIDI ports with timeout (CoreMIDI can hang)
	ch := make(chan []inPort, 1)
	go func() {
		ch <- dm.listPorts()
	}()

	var ports []inPort
	select {
	case ports = <-ch:
	case <-time.After(3 * time.Second):
		debug.Log("midi", "port scan timed out")
		return
	}

	seenIDs := make(map[string]bool)
	for _, p := range ports {
		rule, ok := dm.match(p.name)
		if !ok {
			continue
		}
		seenIDs[p.name] = true

		dm.mu.RLock()
		_, exists := dm.controllers[p.name]
		dm.mu.RUnlock()
		if exists {
			continue
		}

		c, err := dm.open(p.name, p.in, rule.Channel)
		if err != nil {
			debug.Log("midi", "open %s: %v", p.name, err)
			continue
		}

		dm.mu.Lock()
		dm.controllers[p.name] = c
		dm.mu.Unlock()

		debug.Log("midi", "connected %s", p.name)
		dm.events <- DeviceEvent{
			Type:       DeviceConnected,
			Controller: c,
			ID:         p.name,
		}
	}

	// Check for disconnects
	dm.mu.Lock()
	var toRemove []string
	for id := range dm.controllers {
		if !seenIDs[id] {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		c := dm.controllers[id]
		c.Close()
		delete(dm.controllers, id)
		debug.Log("midi", "disconnected %s", id)
		dm.events <- DeviceEvent{
			Type: DeviceDisconnected,
			ID:   id,
		}
	}
	dm.mu.Unlock()
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, c := range dm.controllers {
		c.Close()
	}
	dm.controllers = make(map[string]Controller)
}
