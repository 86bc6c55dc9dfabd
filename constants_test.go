package knet_test

import (
	"errors"
	"testing"

	"github.com/luciancaetano/knet"
)

// TestConstants verifies that all constants are defined with expected values
func TestConstants(t *testing.T) {
	t.Parallel()

	t.Run("close codes", func(t *testing.T) {
		codes := map[string]int{
			"CloseNormal":          knet.CloseNormal,
			"CloseUnsupportedData": knet.CloseUnsupportedData,
			"CloseAbnormal":        knet.CloseAbnormal,
			"CloseInvalidPayload":  knet.CloseInvalidPayload,
			"CloseInternalError":   knet.CloseInternalError,
		}
		want := map[string]int{
			"CloseNormal":          1000,
			"CloseUnsupportedData": 1003,
			"CloseAbnormal":        1006,
			"CloseInvalidPayload":  1007,
			"CloseInternalError":   1011,
		}
		for name, code := range codes {
			if code != want[name] {
				t.Errorf("%s = %d, want %d", name, code, want[name])
			}
		}
	})

	t.Run("error messages", func(t *testing.T) {
		errs := []struct {
			name string
			err  error
			msg  string
		}{
			{"ErrAddressRequired", knet.ErrAddressRequired, knet.ErrMsgAddressRequired},
			{"ErrIntentsRequired", knet.ErrIntentsRequired, knet.ErrMsgIntentsRequired},
			{"ErrAlreadyConnected", knet.ErrAlreadyConnected, knet.ErrMsgAlreadyConnected},
			{"ErrNotConnected", knet.ErrNotConnected, knet.ErrMsgNotConnected},
			{"ErrConnectionClosed", knet.ErrConnectionClosed, knet.ErrMsgConnectionClosed},
			{"ErrFragmentedSend", knet.ErrFragmentedSend, knet.ErrMsgFragmentedSend},
		}

		seen := make(map[string]bool)
		for _, e := range errs {
			t.Run(e.name, func(t *testing.T) {
				if e.msg == "" {
					t.Errorf("%s has an empty message", e.name)
				}
				if e.err.Error() != e.msg {
					t.Errorf("%s = %q, want %q", e.name, e.err.Error(), e.msg)
				}
			})
			if seen[e.msg] {
				t.Errorf("duplicate error message %q", e.msg)
			}
			seen[e.msg] = true
		}

		if errors.Is(knet.ErrNotConnected, knet.ErrConnectionClosed) {
			t.Error("ErrNotConnected should not match ErrConnectionClosed")
		}
	})

	t.Run("rate limit headers", func(t *testing.T) {
		headers := []string{
			knet.HeaderGlobalLimit,
			knet.HeaderGlobalWindow,
			knet.HeaderRouteLimit,
			knet.HeaderRouteWindow,
			knet.HeaderIsGlobal,
			knet.HeaderResetsAt,
		}
		seen := make(map[string]bool)
		for _, h := range headers {
			if h == "" || seen[h] {
				t.Errorf("header %q is empty or duplicated", h)
			}
			seen[h] = true
		}
	})
}
