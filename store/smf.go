package store

import (
	"fmt"
	"io"
	"math"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"go-pianoroll/layout"
	"go-pianoroll/notes"
)

// SMFResolution is the ticks per quarter note written by ExportSMF
const SMFResolution = 960

// ReadSMF reads the notes of every track of a Standard MIDI File. Ticks are
// converted to the editor's resolution and velocity is scaled to 0..1.
func ReadSMF(r io.Reader) ([]notes.Note, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("reading midi file: %w", err)
	}
	mt, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok || mt == 0 {
		return nil, fmt.Errorf("midi file: unsupported time format %v", s.TimeFormat)
	}
	res := int64(mt)

	type pending struct {
		tick     int64
		velocity uint8
	}
	var out []notes.Note
	for _, track := range s.Tracks {
		open := make(map[[2]uint8][]pending)
		var abs int64
		for _, ev := range track {
			abs += int64(ev.Delta)
			msg := midi.Message(ev.Message)
			var ch, key, vel uint8
			switch {
			case msg.GetNoteStart(&ch, &key, &vel):
				k := [2]uint8{ch, key}
				open[k] = append(open[k], pending{tick: abs, velocity: vel})
			case msg.GetNoteEnd(&ch, &key):
				k := [2]uint8{ch, key}
				stack := open[k]
				if len(stack) == 0 {
					continue
				}
				p := stack[0]
				open[k] = stack[1:]
				if abs <= p.tick {
					continue
				}
				out = append(out, notes.Note{
					ID:       notes.NoID,
					Channel:  int(ch),
					Key:      int(key),
					Tick:     p.tick * layout.PPQN / res,
					Duration: (abs - p.tick) * layout.PPQN / res,
					Velocity: float64(p.velocity) / 127,
				})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Tick != out[j].Tick {
			return out[i].Tick < out[j].Tick
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// WriteSMF writes notes as a single track format 0 file
func WriteSMF(w io.Writer, all []notes.Note, bpm float64) error {
	type event struct {
		tick int64
		off  bool
		msg  midi.Message
	}
	var events []event
	for _, n := range all {
		if n.IsDeletion() {
			continue
		}
		start := n.Tick * SMFResolution / layout.PPQN
		end := n.End() * SMFResolution / layout.PPQN
		if end <= start {
			end = start + 1
		}
		ch, key := uint8(n.Channel&0x0f), uint8(n.Key&0x7f)
		events = append(events,
			event{tick: start, msg: midi.NoteOn(ch, key, velocityByte(n.Velocity))},
			event{tick: end, off: true, msg: midi.NoteOff(ch, key)},
		)
	}
	// note offs first so back to back notes on one key do not overlap
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return events[i].off && !events[j].off
	})

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(SMFResolution)

	var track smf.Track
	track.Add(0, smf.MetaMeter(4, 4))
	if bpm > 0 {
		track.Add(0, smf.MetaTempo(bpm))
	}
	var last int64
	for _, ev := range events {
		track.Add(uint32(ev.tick-last), ev.msg)
		last = ev.tick
	}
	track.Close(0)
	if err := s.Add(track); err != nil {
		return fmt.Errorf("adding track: %w", err)
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("writing midi file: %w", err)
	}
	return nil
}

func velocityByte(v float64) uint8 {
	b := math.Round(v * 127)
	if b < 1 {
		return 1
	}
	if b > 127 {
		return 127
	}
	return uint8(b)
}
