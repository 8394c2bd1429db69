package midi

// AnyChannel makes a keyboard listen on all channels
const AnyChannel = -1

// NoteEvent is sent when a key goes down or up on a keyboard
type NoteEvent struct {
	Note     uint8
	Velocity uint8
	Channel  uint8
	On       bool
}

// Accepts reports whether a keyboard listening on channel takes ev
func (ev NoteEvent) Accepts(channel int) bool {
	return channel == AnyChannel || int(ev.Channel) == channel
}
