// Package events defines the typed events published to UI-facing collaborators.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/rbright/raindrop/internal/frame"
	"github.com/rbright/raindrop/internal/wire"
)

// Kind discriminates Event.
type Kind string

const (
	KindPeerDiscovered Kind = "peer-discovered"
	KindScanFinished   Kind = "scan-finished"
	KindInboundOffer   Kind = "inbound-offer"
	KindStatus         Kind = "status"
	KindError          Kind = "error"
	KindRelayClosed    Kind = "relay-closed"
	// KindAction forwards relay frames with titles this build does not know.
	KindAction Kind = "action"
)

// Sources.
const (
	SourceRelay = "relay"
	SourceScan  = "scan"
	SourceSend  = "send"
)

// Event is a tagged union keyed by Kind. Only the fields of that kind are set.
type Event struct {
	Kind    Kind               `json:"kind"`
	Source  string             `json:"source,omitempty"`
	Address string             `json:"address,omitempty"`
	Name    string             `json:"name,omitempty"`
	From    string             `json:"from,omitempty"`
	Files   []wire.OfferedFile `json:"files,omitempty"`
	Title   string             `json:"title,omitempty"`
	Message string             `json:"message,omitempty"`
	Payload any                `json:"payload,omitempty"`
}

func PeerDiscovered(address, name string) Event {
	return Event{Kind: KindPeerDiscovered, Source: SourceScan, Address: address, Name: name}
}

func ScanFinished() Event {
	return Event{Kind: KindScanFinished, Source: SourceScan}
}

func InboundOffer(offer wire.Offer) Event {
	return Event{Kind: KindInboundOffer, Source: SourceRelay, From: offer.From, Files: offer.Files}
}

func Status(source, message string) Event {
	return Event{Kind: KindStatus, Source: source, Message: message}
}

func Error(source, title, message string, payload any) Event {
	return Event{Kind: KindError, Source: source, Title: title, Message: message, Payload: payload}
}

func RelayClosed() Event {
	return Event{Kind: KindRelayClosed, Source: SourceRelay}
}

func Action(source, title string, data any) Event {
	return Event{Kind: KindAction, Source: source, Title: title, Payload: data}
}

// FromFailure converts an error envelope into an error event.
func FromFailure(source string, env frame.Envelope) Event {
	if env.Failure == nil {
		return Error(source, env.Title, "", nil)
	}
	return Error(source, env.Failure.Title, env.Failure.Message(), env.Failure.Error)
}

// Encodable returns e with a payload JSON can encode. A payload it cannot, such as
// one holding NaN or an infinity, is replaced by its %v text and ok is false.
func (e Event) Encodable() (out Event, ok bool) {
	if e.Payload == nil {
		return e, true
	}
	if _, err := json.Marshal(e.Payload); err == nil {
		return e, true
	}
	e.Payload = fmt.Sprintf("%v", e.Payload)
	return e, false
}
