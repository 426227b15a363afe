package providers

import (
	"errors"
	"testing"
)

func TestFirstJSONObjectGluedResponse(t *testing.T) {
	body := []byte(`{"ADD-PARCEL":{"RESULT":"SUCCESS"}}{"SESSION":{"EXPIRED":false}}`)
	first, err := firstJSONObject(body)
	if err != nil {
		t.Fatalf("firstJSONObject: %v", err)
	}
	if string(first) != `{"ADD-PARCEL":{"RESULT":"SUCCESS"}}` {
		t.Fatalf("got %s", first)
	}
}

func TestFirstJSONObjectGarbage(t *testing.T) {
	if _, err := firstJSONObject([]byte("<html>oops</html>")); err == nil {
		t.Fatal("expected error for non-JSON body")
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&TransportError{Op: "x", Err: errors.New("timeout")}, true},
		{&ProtocolError{Op: "x", Detail: "bad body"}, true},
		{&AuthError{Slug: "x", Detail: "nope"}, false},
		{ErrNotConfigured, false},
	}
	for _, c := range cases {
		if got := Retryable(c.err); got != c.want {
			t.Errorf("Retryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestOutcomeString(t *testing.T) {
	if OutcomeAccepted.String() != "accepted" || OutcomeRejected.String() != "rejected" || OutcomeUnknown.String() != "unknown" {
		t.Fatal("outcome labels drifted")
	}
}
