package internal

import (
	"encoding/json"

	"hubhook/pkg/hook"
)

// Event is what gets published for a verified push.
type Event struct {
	Provider    string `json:"provider"`
	Name        string `json:"name"`
	RequestID   string `json:"request_id,omitempty"`
	Ref         string `json:"ref"`
	After       string `json:"after"`
	Branch      string `json:"branch"`
	IssueNumber string `json:"issue_number,omitempty"`

	// Data is the flattened payload the routing rules evaluate against.
	Data map[string]interface{} `json:"-"`
	// RawPayload is the unwrapped JSON document as sent by GitHub.
	RawPayload []byte `json:"-"`
	// RawObject is RawPayload decoded, used for $.path lookups in rules.
	RawObject interface{} `json:"-"`
}

// NewPushEvent builds the published Event for a decoded push.
func NewPushEvent(requestID string, push hook.Push, document []byte) Event {
	rawObject, data := rawObjectAndFlatten(document)
	event := Event{
		Provider:    "github",
		Name:        string(hook.KindPush),
		RequestID:   requestID,
		Ref:         push.Ref,
		After:       push.After,
		Branch:      push.Branch(),
		IssueNumber: push.IssueNumber(),
		Data:        data,
		RawPayload:  document,
		RawObject:   rawObject,
	}
	data["event"] = event.Name
	data["branch"] = event.Branch
	data["issue_number"] = event.IssueNumber
	return event
}

func rawObjectAndFlatten(raw []byte) (interface{}, map[string]interface{}) {
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, map[string]interface{}{}
	}
	objectMap, ok := out.(map[string]interface{})
	if !ok {
		return out, map[string]interface{}{}
	}
	return out, Flatten(objectMap)
}
