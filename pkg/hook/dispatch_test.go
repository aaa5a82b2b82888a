package hook

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/quick"
)

const (
	testSecret     = "test-webhook-secret"
	pushRef        = "refs/heads/dci#84"
	pushAfter      = "90aa35428f689dbeff1a59b010be25420fa6fdd4"
	expectedPushOK = "Push from branch: refs/heads/dci#84, commit: 90aa35428f689dbeff1a59b010be25420fa6fdd4"
)

var (
	samplePing = []byte(`{"zen":"Keep it logically awesome.","hook_id":1}`)
	samplePush = []byte(`{"ref":"refs/heads/dci#84","after":"90aa35428f689dbeff1a59b010be25420fa6fdd4"}`)
)

// encodeURIComponent percent-encodes s the way browsers and node do; spaces become %20.
func encodeURIComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// signedEvent builds a delivery the way the hosting provider's test harness does:
// the whole "payload=<json>" form is percent-encoded, then signed.
func signedEvent(secret, name string, doc []byte) InboundEvent {
	body := []byte(encodeURIComponent("payload=" + string(doc)))
	return NewInboundEvent(body, map[string]string{
		"X-GitHub-Event":  name,
		"X-Hub-Signature": Sign(secret, body),
	})
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return data
}

func TestHandlePing(t *testing.T) {
	for _, doc := range [][]byte{samplePing, readFixture(t, "ping.json")} {
		resp := Handle(signedEvent(testSecret, "ping", doc), testSecret)
		if resp != ResponseOK {
			t.Fatalf("expected %+v, got %+v", ResponseOK, resp)
		}
	}
}

func TestHandlePush(t *testing.T) {
	for _, doc := range [][]byte{samplePush, readFixture(t, "push.json")} {
		resp := Handle(signedEvent(testSecret, "push", doc), testSecret)
		if resp.StatusCode != 200 {
			t.Fatalf("expected status 200, got %d (%s)", resp.StatusCode, resp.Body)
		}
		if resp.Body != expectedPushOK {
			t.Fatalf("unexpected body %q", resp.Body)
		}
	}
}

func TestHandleSignatureMismatch(t *testing.T) {
	cases := []struct {
		name string
		doc  []byte
	}{
		{"ping", samplePing},
		{"push", samplePush},
		{"ping", readFixture(t, "ping.json")},
		{"push", readFixture(t, "push.json")},
	}
	for _, tc := range cases {
		in := signedEvent("mismatchedSecretString", tc.name, tc.doc)
		resp := Handle(in, testSecret)
		if resp != ResponseSignatureMismatch {
			t.Fatalf("%s: expected mismatch response, got %+v", tc.name, resp)
		}
		if resp.StatusCode != 500 || resp.Body != "Err: x-hub-signature mismatch" {
			t.Fatalf("%s: mismatch response changed: %+v", tc.name, resp)
		}
	}
}

func TestHandleMissingSignature(t *testing.T) {
	in := NewInboundEvent([]byte("payload="+string(samplePing)), map[string]string{"X-GitHub-Event": "ping"})
	if resp := Handle(in, testSecret); resp != ResponseSignatureMismatch {
		t.Fatalf("expected mismatch for unsigned delivery, got %+v", resp)
	}
}

func TestHandleSignaturePropertyHolds(t *testing.T) {
	accepted := func(secret string, body []byte) bool {
		in := NewInboundEvent(body, map[string]string{"x-hub-signature": Sign(secret, body)})
		return Handle(in, secret) != ResponseSignatureMismatch
	}
	if err := quick.Check(accepted, nil); err != nil {
		t.Fatalf("correctly signed body rejected: %v", err)
	}

	rejected := func(s1, s2 string, body []byte) bool {
		if s1 == s2 {
			return true
		}
		in := NewInboundEvent(body, map[string]string{"x-hub-signature": Sign(s1, body)})
		return Handle(in, s2) == ResponseSignatureMismatch
	}
	if err := quick.Check(rejected, nil); err != nil {
		t.Fatalf("body signed with another secret accepted: %v", err)
	}
}

func TestHandleIdempotent(t *testing.T) {
	in := signedEvent(testSecret, "push", samplePush)
	first := Handle(in, testSecret)
	for i := 0; i < 5; i++ {
		if got := Handle(in, testSecret); got != first {
			t.Fatalf("call %d returned %+v, first returned %+v", i, got, first)
		}
	}
}

func TestHandleUnknownEvent(t *testing.T) {
	doc := []byte(`{"action":"opened","number":1}`)
	resp := Handle(signedEvent(testSecret, "pull_request", doc), testSecret)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400 for unknown event, got %d", resp.StatusCode)
	}
	if resp.Body != "Err: unknown event: pull_request" {
		t.Fatalf("unexpected body %q", resp.Body)
	}
}

func TestHandleMalformedPayload(t *testing.T) {
	body := []byte(encodeURIComponent("payload={not json"))
	in := NewInboundEvent(body, map[string]string{
		"X-GitHub-Event":  "push",
		"X-Hub-Signature": Sign(testSecret, body),
	})
	if resp := Handle(in, testSecret); resp != ResponseMalformedPayload {
		t.Fatalf("expected malformed payload response, got %+v", resp)
	}
}

func TestHandleRawJSONBody(t *testing.T) {
	in := NewInboundEvent(samplePush, map[string]string{
		"X-GitHub-Event":  "push",
		"X-Hub-Signature": Sign(testSecret, samplePush),
	})
	if resp := Handle(in, testSecret); resp.Body != expectedPushOK {
		t.Fatalf("unexpected body %q", resp.Body)
	}
}

func TestProcessReturnsEventOnlyWhenVerified(t *testing.T) {
	resp, event := Process(signedEvent(testSecret, "push", samplePush), testSecret)
	if resp.StatusCode != 200 || event == nil {
		t.Fatalf("expected verified push event, got %+v %v", resp, event)
	}
	if event.Kind != KindPush || event.Push.After != pushAfter {
		t.Fatalf("unexpected event %+v", event)
	}

	_, event = Process(signedEvent("other", "push", samplePush), testSecret)
	if event != nil {
		t.Fatalf("expected no event on signature mismatch")
	}
}
