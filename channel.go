package wsloop

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol"

	"github.com/coregate/wsloop/future"
)

// Channel is the opaque handle the Upgrader passes through to ShouldUpgrade
// and UpgradePipelineHandler. It is realized directly as a Hertz request
// context, the same type the teacher library hangs its whole Upgrade call
// off of.
type Channel = *app.RequestContext

// HTTPRequestHead carries method, URI, version and headers for the
// upgrade request. Realized directly as a Hertz request.
type HTTPRequestHead = *protocol.Request

// HTTPHeaders is a multimap from case-insensitive header name to ordered
// values, with replace-or-add and add semantics. Realized directly as a
// Hertz response header, the type the caller supplies as baseHeaders and
// the type BuildUpgradeResponse mutates and returns.
type HTTPHeaders = *protocol.ResponseHeader

// Handler is a marker for anything installable on a Pipeline: a frame
// encoder, a byte-to-message frame decoder, or a protocol error handler.
// The wire format of these handlers, and the byte/message framing they
// operate on, are out of scope for this module (spec §1) — only their
// installation order is.
type Handler interface {
	Name() string
}

// Pipeline is the ordered chain of handlers processing bytes and messages
// on a connection. It is an external collaborator (spec §6); this module
// only ever appends handlers to it, in order, and awaits completion of
// each append before issuing the next.
type Pipeline interface {
	AddHandler(ctx context.Context, h Handler) *future.Future[struct{}]
}

// FrameEncoder serializes outgoing WebSocket messages onto the pipeline.
// The encoding itself is out of scope; this module only installs one.
type FrameEncoder interface {
	Handler
}

// FrameDecoder wraps a byte-to-message decoder bounded by MaxFrameSize.
// The decoding itself is out of scope; this module only installs one,
// built by the configured factory from MaxFrameSize alone. The Upgrader
// does not configure the decoder's own error handling; whether decode
// failures reach a ProtocolErrorHandler downstream depends on the decoder
// the factory returns.
type FrameDecoder interface {
	Handler
	MaxFrameSize() uint32
}

// ProtocolErrorHandler reacts to decode failures surfaced by the
// FrameDecoder by writing an appropriate close frame and tearing down the
// connection. Installed immediately after the decoder when
// AutomaticErrorHandling is enabled.
type ProtocolErrorHandler interface {
	Handler
}
