package hook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/webhooks/v6/github"
)

// EventHeader is the lowercased header GitHub uses to name the delivered event.
const EventHeader = "x-github-event"

// Kind discriminates the decoded Event.
type Kind string

const (
	KindPing    Kind = Kind(github.PingEvent)
	KindPush    Kind = Kind(github.PushEvent)
	KindUnknown Kind = ""
)

// ErrMalformedPayload is returned when a verified body cannot be decoded.
var ErrMalformedPayload = errors.New("malformed payload")

// Ping is the liveness check GitHub sends when a hook is created.
type Ping struct {
	Zen string `json:"zen"`
}

// Push describes a push to a ref.
type Push struct {
	Ref    string `json:"ref"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// Branch returns the ref without its refs/heads/ prefix.
func (p Push) Branch() string {
	return strings.TrimPrefix(p.Ref, "refs/heads/")
}

// IssueNumber returns the text after the last '#' of the branch, or "" when the branch has none.
// Branches named like "dci#84" map to issue 84.
func (p Push) IssueNumber() string {
	branch := p.Branch()
	idx := strings.LastIndex(branch, "#")
	if idx < 0 {
		return ""
	}
	return branch[idx+1:]
}

// Event is a decoded delivery. Exactly one of Ping and Push is set for the known kinds.
type Event struct {
	Kind Kind
	// Name is the event name as declared by the sender, kept for unknown kinds.
	Name string
	Ping *Ping
	Push *Push
	// Document is the JSON payload after unwrapping.
	Document []byte
}

// UnwrapPayload extracts the JSON document from a webhook body. Form deliveries
// ("payload=<urlencoded json>", possibly percent-encoded as a whole) are unescaped and
// stripped of the payload= prefix; JSON deliveries are returned as-is.
func UnwrapPayload(body []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}
	if trimmed[0] == '{' {
		return trimmed, nil
	}
	unescaped, err := url.QueryUnescape(string(trimmed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return []byte(strings.TrimPrefix(unescaped, "payload=")), nil
}

// DecodeEvent decodes the body of a delivery whose x-github-event header is name.
// When name is empty the kind is inferred from the payload shape: a "zen" field means
// ping, "ref" together with "after" means push.
func DecodeEvent(name string, body []byte) (Event, error) {
	doc, err := UnwrapPayload(body)
	if err != nil {
		return Event{}, err
	}

	var shape struct {
		Zen   *string `json:"zen"`
		Ref   *string `json:"ref"`
		After *string `json:"after"`
	}
	if err := json.Unmarshal(doc, &shape); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	event := Event{Name: name, Document: doc}
	switch {
	case name != "":
		event.Kind = kindOf(name)
	case shape.Zen != nil:
		event.Kind = KindPing
	case shape.Ref != nil && shape.After != nil:
		event.Kind = KindPush
	default:
		event.Kind = KindUnknown
	}

	switch event.Kind {
	case KindPing:
		var ping Ping
		if err := json.Unmarshal(doc, &ping); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		event.Ping = &ping
	case KindPush:
		var push Push
		if err := json.Unmarshal(doc, &push); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		event.Push = &push
	}
	if event.Name == "" {
		event.Name = string(event.Kind)
	}
	return event, nil
}

func kindOf(name string) Kind {
	switch github.Event(strings.ToLower(strings.TrimSpace(name))) {
	case github.PingEvent:
		return KindPing
	case github.PushEvent:
		return KindPush
	default:
		return KindUnknown
	}
}
