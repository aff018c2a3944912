package wsloop

import (
	"context"
	"errors"
	"testing"

	gorilla "github.com/gorilla/websocket"
)

func TestDefaultProtocolErrorHandlerWritesProtocolErrorCloseByDefault(t *testing.T) {
	var gotPayload []byte
	h := NewDefaultProtocolErrorHandler(func(ctx context.Context, ch Channel, payload []byte) error {
		gotPayload = payload
		return nil
	})

	if h.Name() != "websocket-protocol-error-handler" {
		t.Fatalf("Name() = %q", h.Name())
	}

	concrete := h.(*defaultProtocolErrorHandler)
	_, err := concrete.HandleDecodeError(context.Background(), nil, errors.New("boom")).Get(context.Background())
	if err != nil {
		t.Fatalf("HandleDecodeError failed: %v", err)
	}

	code, reason := parseCloseMessage(t, gotPayload)
	if code != gorilla.CloseProtocolError {
		t.Errorf("code = %d, want %d", code, gorilla.CloseProtocolError)
	}
	if reason != "boom" {
		t.Errorf("reason = %q, want %q", reason, "boom")
	}
}

func TestDefaultProtocolErrorHandlerPropagatesCloseErrorCode(t *testing.T) {
	var gotPayload []byte
	h := NewDefaultProtocolErrorHandler(func(ctx context.Context, ch Channel, payload []byte) error {
		gotPayload = payload
		return nil
	})

	concrete := h.(*defaultProtocolErrorHandler)
	decodeErr := &gorilla.CloseError{Code: gorilla.CloseMessageTooBig, Text: "frame too large"}
	if _, err := concrete.HandleDecodeError(context.Background(), nil, decodeErr).Get(context.Background()); err != nil {
		t.Fatalf("HandleDecodeError failed: %v", err)
	}

	code, reason := parseCloseMessage(t, gotPayload)
	if code != gorilla.CloseMessageTooBig {
		t.Errorf("code = %d, want %d", code, gorilla.CloseMessageTooBig)
	}
	if reason != "frame too large" {
		t.Errorf("reason = %q, want %q", reason, "frame too large")
	}
}

func TestDefaultProtocolErrorHandlerPropagatesCloserFailure(t *testing.T) {
	closerErr := errors.New("closer failed")
	h := NewDefaultProtocolErrorHandler(func(ctx context.Context, ch Channel, payload []byte) error {
		return closerErr
	})

	concrete := h.(*defaultProtocolErrorHandler)
	_, err := concrete.HandleDecodeError(context.Background(), nil, errors.New("boom")).Get(context.Background())
	if !errors.Is(err, closerErr) {
		t.Errorf("err = %v, want %v", err, closerErr)
	}
}

func TestDefaultProtocolErrorHandlerNilCloserSucceeds(t *testing.T) {
	h := NewDefaultProtocolErrorHandler(nil)
	concrete := h.(*defaultProtocolErrorHandler)
	if _, err := concrete.HandleDecodeError(context.Background(), nil, errors.New("boom")).Get(context.Background()); err != nil {
		t.Errorf("nil closer should succeed, got %v", err)
	}
}

// parseCloseMessage undoes gorilla.FormatCloseMessage, whose own wire
// format (2-byte big-endian code followed by the UTF-8 reason) is part of
// RFC 6455 itself rather than anything this module owns.
func parseCloseMessage(t *testing.T, payload []byte) (int, string) {
	t.Helper()
	if len(payload) < 2 {
		t.Fatalf("payload too short: %v", payload)
	}
	code := int(payload[0])<<8 | int(payload[1])
	return code, string(payload[2:])
}
