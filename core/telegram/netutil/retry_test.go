package netutil

import (
	"errors"
	"net"
	"net/url"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func TestShouldRetry(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	read := &net.OpError{Op: "read", Net: "tcp", Err: errors.New("reset")}
	cases := []struct {
		name  string
		err   error
		retry bool
		sent  bool
	}{
		{"nil", nil, false, false},
		{"dial", dial, true, false},
		{"wrapped dial", &url.Error{Op: "Post", URL: "https://api", Err: dial}, true, false},
		{"dns", &net.DNSError{Err: "no such host", Name: "api"}, true, false},
		{"read reset", read, false, true},
		{"flood", tele.FloodError{RetryAfter: 3}, true, true},
		{"server", &tele.Error{Code: 502, Description: "Bad Gateway"}, true, true},
		{"bad request", &tele.Error{Code: 400, Description: "chat not found"}, false, true},
		{"plain", errors.New("boom"), false, true},
	}
	for _, tc := range cases {
		if got := ShouldRetry(tc.err); got != tc.retry {
			t.Fatalf("%s: retry = %v, want %v", tc.name, got, tc.retry)
		}
		if tc.err != nil && NotSent(tc.err) == tc.sent {
			t.Fatalf("%s: not sent = %v", tc.name, !tc.sent)
		}
	}
}

func TestRetryAfter(t *testing.T) {
	if d := RetryAfter(tele.FloodError{RetryAfter: 4}); d != 4*time.Second {
		t.Fatalf("retry after = %v", d)
	}
	if d := RetryAfter(errors.New("x")); d != 0 {
		t.Fatalf("retry after = %v", d)
	}
}
