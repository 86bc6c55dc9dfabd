package rest

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/luciancaetano/knet"
)

const maxDiscard = 64 * 1024

// parseWindow reads a limit and a window length in milliseconds. It reports
// false unless both are present and positive.
func parseWindow(h http.Header, limitKey, windowKey string) (int, time.Duration, bool) {
	limit, err := strconv.Atoi(strings.TrimSpace(h.Get(limitKey)))
	if err != nil || limit <= 0 {
		return 0, 0, false
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(h.Get(windowKey)), 10, 64)
	if err != nil || ms <= 0 {
		return 0, 0, false
	}
	return limit, time.Duration(ms) * time.Millisecond, true
}

// isGlobal reports the X-RateLimit-IsGlobal flag. present is false when the
// header is missing or unparsable.
func isGlobal(h http.Header) (global, present bool) {
	v := strings.TrimSpace(h.Get(knet.HeaderIsGlobal))
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// resetsAt reads X-RateLimit-ResetsAt, an RFC 3339 timestamp.
func resetsAt(h http.Header) (time.Time, bool) {
	v := strings.TrimSpace(h.Get(knet.HeaderResetsAt))
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// discard drains and closes a response that is about to be retried so the
// connection can be reused.
func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxDiscard))
	resp.Body.Close()
}
