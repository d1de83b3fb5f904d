// Package events implements assemble.Sink with a single channel of
// tagged events, the same shape as the teacher's client.Watch: one
// channel an embedder ranges over, rather than six separate callback
// methods to implement.
package events

import (
	"github.com/drand/assemble/assemble"
)

// Kind tags which of the six events an Event carries.
type Kind int

const (
	// KindPutDone reports a put operation's terminal outcome.
	KindPutDone Kind = iota
	// KindGetDone reports a get operation's terminal outcome.
	KindGetDone
	// KindRelayMessageDone reports a message relay's terminal outcome.
	KindRelayMessageDone
	// KindRelayURIDone reports a uri relay's terminal outcome.
	KindRelayURIDone
	// KindIncomingRelayURI reports an unsolicited uri announcement.
	KindIncomingRelayURI
	// KindIncomingRelayMessage reports an unsolicited opaque message.
	KindIncomingRelayMessage
)

// Event is the single value type every Sink method is translated into.
// Only the fields relevant to Kind are populated; the rest are zero.
type Event struct {
	Kind Kind

	URI     assemble.URI
	Sender  assemble.PubKey
	From    assemble.PubKey
	Ts      int64
	Payload []byte
	Err     assemble.ErrorCode
}

// ChannelSink implements assemble.Sink by posting one Event per call to
// a single buffered channel. Events are dropped, not blocked on, once
// the channel is full — a slow consumer loses history rather than
// stalling the engine's dispatch loop, since Sink methods must not
// block (assemble.Sink's contract).
type ChannelSink struct {
	events chan Event
}

// NewChannelSink returns a ChannelSink buffering up to capacity
// undelivered events.
func NewChannelSink(capacity int) *ChannelSink {
	return &ChannelSink{events: make(chan Event, capacity)}
}

// Events returns the channel every posted Event arrives on.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

func (s *ChannelSink) post(e Event) {
	select {
	case s.events <- e:
	default:
	}
}

// PutDone implements assemble.Sink.
func (s *ChannelSink) PutDone(uri assemble.URI, err assemble.ErrorCode) {
	s.post(Event{Kind: KindPutDone, URI: uri, Err: err})
}

// GetDone implements assemble.Sink.
func (s *ChannelSink) GetDone(sender assemble.PubKey, uri assemble.URI, ts int64, payload []byte, err assemble.ErrorCode) {
	s.post(Event{Kind: KindGetDone, Sender: sender, URI: uri, Ts: ts, Payload: payload, Err: err})
}

// RelayMessageDone implements assemble.Sink.
func (s *ChannelSink) RelayMessageDone(receiver assemble.PubKey, err assemble.ErrorCode) {
	s.post(Event{Kind: KindRelayMessageDone, Sender: receiver, Err: err})
}

// RelayURIDone implements assemble.Sink.
func (s *ChannelSink) RelayURIDone(receiver assemble.PubKey, uri assemble.URI, ts int64, err assemble.ErrorCode) {
	s.post(Event{Kind: KindRelayURIDone, Sender: receiver, URI: uri, Ts: ts, Err: err})
}

// IncomingRelayURI implements assemble.Sink.
func (s *ChannelSink) IncomingRelayURI(sender assemble.PubKey, uri assemble.URI, ts int64) {
	s.post(Event{Kind: KindIncomingRelayURI, Sender: sender, URI: uri, Ts: ts})
}

// IncomingRelayMessage implements assemble.Sink.
func (s *ChannelSink) IncomingRelayMessage(from assemble.PubKey, payload []byte) {
	s.post(Event{Kind: KindIncomingRelayMessage, From: from, Payload: payload})
}
