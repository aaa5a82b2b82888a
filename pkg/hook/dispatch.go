// Package hook verifies GitHub webhook deliveries and maps them to fixed responses.
//
// A delivery is accepted only when its x-hub-signature header carries the HMAC-SHA1 of the
// raw body under the shared secret. Accepted deliveries are decoded into an Event and
// answered by kind:
//
//	ping      200 "OK"
//	push      200 "Push from branch: <ref>, commit: <after>"
//	mismatch  500 "Err: x-hub-signature mismatch"
//
// The package has no state and performs no I/O; fetching the secret is the caller's job.
package hook

import (
	"fmt"
	"strings"
)

// InboundEvent is one delivery as received. RawBody must be the exact bytes the sender signed.
type InboundEvent struct {
	RawBody []byte
	Headers map[string]string
}

// NewInboundEvent builds an InboundEvent, lowercasing header names.
func NewInboundEvent(body []byte, headers map[string]string) InboundEvent {
	lowered := make(map[string]string, len(headers))
	for name, value := range headers {
		lowered[strings.ToLower(name)] = value
	}
	return InboundEvent{RawBody: body, Headers: lowered}
}

// Header returns the value of the lowercased header name.
func (e InboundEvent) Header(name string) string {
	return e.Headers[strings.ToLower(name)]
}

// Response is the status and body returned to the sender.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

var (
	ResponseOK                = Response{StatusCode: 200, Body: "OK"}
	ResponseSignatureMismatch = Response{StatusCode: 500, Body: "Err: x-hub-signature mismatch"}
	ResponseMalformedPayload  = Response{StatusCode: 400, Body: "Err: malformed payload"}
)

// PushResponse answers a verified push.
func PushResponse(push Push) Response {
	return Response{
		StatusCode: 200,
		Body:       fmt.Sprintf("Push from branch: %s, commit: %s", push.Ref, push.After),
	}
}

// UnknownEventResponse answers a verified delivery of a kind other than ping or push.
func UnknownEventResponse(name string) Response {
	if name == "" {
		name = "unspecified"
	}
	return Response{StatusCode: 400, Body: "Err: unknown event: " + name}
}

// Handle verifies in against secret and returns the response for it.
func Handle(in InboundEvent, secret string) Response {
	resp, _ := Process(in, secret)
	return resp
}

// Process is Handle that also returns the decoded event. The event is nil unless the
// signature matched and the body decoded.
func Process(in InboundEvent, secret string) (Response, *Event) {
	if !VerifySignature(secret, in.RawBody, in.Header(SignatureHeader)) {
		return ResponseSignatureMismatch, nil
	}

	event, err := DecodeEvent(in.Header(EventHeader), in.RawBody)
	if err != nil {
		return ResponseMalformedPayload, nil
	}

	switch event.Kind {
	case KindPing:
		return ResponseOK, &event
	case KindPush:
		return PushResponse(*event.Push), &event
	default:
		return UnknownEventResponse(event.Name), &event
	}
}
