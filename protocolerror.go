package wsloop

import (
	"context"

	gorilla "github.com/gorilla/websocket"

	"github.com/coregate/wsloop/future"
)

// defaultProtocolErrorHandler is installed immediately after the frame
// decoder when AutomaticErrorHandling is true. It translates a decode
// failure surfaced by the decoder into a close frame (the standard
// protocol-error close code, or the code carried by a *gorilla.CloseError)
// and hands it to its closer, which writes it and tears the connection
// down, so malformed frames after upgrade never reach user code.
type defaultProtocolErrorHandler struct {
	closer func(ctx context.Context, ch Channel, payload []byte) error
}

// NewDefaultProtocolErrorHandler builds the handler AutomaticErrorHandling
// installs. closer writes the close frame payload to the channel and tears
// the connection down; it is the only out-of-scope collaborator this
// handler needs.
func NewDefaultProtocolErrorHandler(closer func(ctx context.Context, ch Channel, payload []byte) error) ProtocolErrorHandler {
	return &defaultProtocolErrorHandler{closer: closer}
}

func (h *defaultProtocolErrorHandler) Name() string { return "websocket-protocol-error-handler" }

// HandleDecodeError maps a frame-decode failure to the RFC 6455 protocol
// error close code with the error text as reason, and asks the closer to
// deliver it. A *gorilla.CloseError keeps its own Code and Text instead.
func (h *defaultProtocolErrorHandler) HandleDecodeError(ctx context.Context, ch Channel, decodeErr error) *future.Future[struct{}] {
	code := gorilla.CloseProtocolError
	reason := decodeErr.Error()
	if ce, ok := decodeErr.(*gorilla.CloseError); ok {
		code = ce.Code
		reason = ce.Text
	}
	payload := gorilla.FormatCloseMessage(code, reason)
	if h.closer == nil {
		return future.Succeeded(struct{}{})
	}
	if err := h.closer(ctx, ch, payload); err != nil {
		return future.Failed[struct{}](err)
	}
	return future.Succeeded(struct{}{})
}
