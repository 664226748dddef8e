package telegram

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
)

type scriptedRoundTripper struct {
	errs  []error
	calls int
	body  []string
}

func (s *scriptedRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	s.calls++
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		s.body = append(s.body, string(b))
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("{}"))}, nil
}

func TestRetryTransportRetriesDialFailures(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}
	base := &scriptedRoundTripper{errs: []error{dial, dial}}
	rt := &retryTransport{base: base, maxRetries: 3, backoff: 1}

	req, _ := http.NewRequest(http.MethodPost, "https://api.telegram.org/botX/sendMessage", strings.NewReader("text=hi"))
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	resp.Body.Close()
	if base.calls != 3 {
		t.Fatalf("calls = %d, want 3", base.calls)
	}
	for _, b := range base.body {
		if b != "text=hi" {
			t.Fatalf("body was not replayed: %q", base.body)
		}
	}
}

func TestRetryTransportDoesNotRepeatSentRequests(t *testing.T) {
	reset := &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset")}
	base := &scriptedRoundTripper{errs: []error{reset}}
	rt := &retryTransport{base: base, maxRetries: 3, backoff: 1}

	req, _ := http.NewRequest(http.MethodPost, "https://api.telegram.org/botX/sendMessage", strings.NewReader("text=hi"))
	if _, err := rt.RoundTrip(req); !errors.Is(err, reset) {
		t.Fatalf("err = %v, want the read error", err)
	}
	if base.calls != 1 {
		t.Fatalf("calls = %d, want 1", base.calls)
	}
}
