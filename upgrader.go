package wsloop

import (
	"context"

	"github.com/gravitational/trace"
	"go.uber.org/zap"

	"github.com/coregate/wsloop/future"
)

// ShouldUpgradeFunc decides whether a request may be upgraded. A nil
// *protocol.ResponseHeader (HTTPHeaders) return rejects the upgrade; a
// non-nil one is merged verbatim into the handshake response.
type ShouldUpgradeFunc func(ctx context.Context, ch Channel, req HTTPRequestHead) *future.Future[HTTPHeaders]

// UpgradePipelineHandlerFunc runs after the frame codecs (and, if enabled,
// the protocol error handler) are installed on the pipeline.
type UpgradePipelineHandlerFunc func(ctx context.Context, ch Channel, req HTTPRequestHead) *future.Future[struct{}]

// Upgrader negotiates the RFC 6455 server-side handshake and rewires a
// Pipeline from HTTP framing to WebSocket framing. It holds no mutable
// state after construction, so the same Upgrader may be shared across
// connections and goroutines.
type Upgrader struct {
	maxFrameSize            uint32
	automaticErrorHandling  bool
	shouldUpgrade           ShouldUpgradeFunc
	upgradePipelineHandler  UpgradePipelineHandlerFunc
	newFrameEncoder         func() FrameEncoder
	newFrameDecoder         func(maxFrameSize uint32) FrameDecoder
	newProtocolErrorHandler func() ProtocolErrorHandler
	logger                  *zap.Logger
}

// Option configures an Upgrader at construction time.
type Option func(*Upgrader)

// WithMaxFrameSize overrides the default 16384-byte frame size cap passed
// to the frame decoder. Per spec §9's resolved open question, the cap is
// represented as a uint32 (1..2^32-1); zero is rejected at construction.
func WithMaxFrameSize(n uint32) Option {
	return func(u *Upgrader) { u.maxFrameSize = n }
}

// WithAutomaticErrorHandling toggles whether a protocol-error handler is
// installed automatically after the frame decoder. Defaults to true.
func WithAutomaticErrorHandling(enabled bool) Option {
	return func(u *Upgrader) { u.automaticErrorHandling = enabled }
}

// WithShouldUpgrade sets the async predicate consulted before accepting
// the handshake. Required.
func WithShouldUpgrade(fn ShouldUpgradeFunc) Option {
	return func(u *Upgrader) { u.shouldUpgrade = fn }
}

// WithUpgradePipelineHandler sets the hook invoked once frame codecs are
// installed. Required.
func WithUpgradePipelineHandler(fn UpgradePipelineHandlerFunc) Option {
	return func(u *Upgrader) { u.upgradePipelineHandler = fn }
}

// WithFrameEncoderFactory supplies the constructor for the outbound frame
// encoder installed at the tail of the pipeline. Required.
func WithFrameEncoderFactory(fn func() FrameEncoder) Option {
	return func(u *Upgrader) { u.newFrameEncoder = fn }
}

// WithFrameDecoderFactory supplies the constructor for the inbound
// byte-to-message frame decoder, parameterized by MaxFrameSize. Required.
func WithFrameDecoderFactory(fn func(maxFrameSize uint32) FrameDecoder) Option {
	return func(u *Upgrader) { u.newFrameDecoder = fn }
}

// WithProtocolErrorHandlerFactory supplies the constructor for the
// protocol-error handler installed when AutomaticErrorHandling is true.
// Required in that case; ignored otherwise.
func WithProtocolErrorHandlerFactory(fn func() ProtocolErrorHandler) Option {
	return func(u *Upgrader) { u.newProtocolErrorHandler = fn }
}

// WithLogger attaches a structured logger; defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(u *Upgrader) {
		if l != nil {
			u.logger = l
		}
	}
}

// NewUpgrader builds an Upgrader, applying the spec's §4.1 defaults
// (MaxFrameSize 16384, AutomaticErrorHandling true) before opts run.
func NewUpgrader(opts ...Option) (*Upgrader, error) {
	u := &Upgrader{
		maxFrameSize:           16384,
		automaticErrorHandling: true,
		logger:                 zap.NewNop(),
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.maxFrameSize == 0 {
		return nil, trace.BadParameter("maxFrameSize must be at least 1, got 0")
	}
	if u.shouldUpgrade == nil {
		return nil, trace.BadParameter("ShouldUpgrade is required")
	}
	if u.upgradePipelineHandler == nil {
		return nil, trace.BadParameter("UpgradePipelineHandler is required")
	}
	if u.newFrameEncoder == nil {
		return nil, trace.BadParameter("a frame encoder factory is required")
	}
	if u.newFrameDecoder == nil {
		return nil, trace.BadParameter("a frame decoder factory is required")
	}
	if u.automaticErrorHandling && u.newProtocolErrorHandler == nil {
		return nil, trace.BadParameter("a protocol error handler factory is required when AutomaticErrorHandling is enabled")
	}
	return u, nil
}

// SupportedProtocol is the single Upgrade token this component advertises.
func (u *Upgrader) SupportedProtocol() string { return "websocket" }

// RequiredUpgradeHeaders is empty: the RFC does not require clients to
// list Sec-WebSocket-* headers in the Upgrade header, so the Upgrader
// validates them itself in BuildUpgradeResponse rather than asking the
// enclosing HTTP upgrade framework to pre-validate their presence.
func (u *Upgrader) RequiredUpgradeHeaders() []string { return nil }

// BuildUpgradeResponse validates the handshake request and computes the
// merged response headers. It commits no pipeline mutation; on failure the
// caller (the enclosing HTTP upgrade framework) is expected to respond
// with an HTTP error status and close the connection.
func (u *Upgrader) BuildUpgradeResponse(ctx context.Context, ch Channel, req HTTPRequestHead, baseHeaders HTTPHeaders) *future.Future[HTTPHeaders] {
	p := future.NewPromise[HTTPHeaders]()
	go func() {
		headers, err := u.buildUpgradeResponse(ctx, ch, req, baseHeaders)
		if err != nil {
			u.logger.Debug("rejected websocket upgrade", zap.Error(err))
			p.Fail(err)
			return
		}
		p.Succeed(headers)
	}()
	return p.Future()
}

func (u *Upgrader) buildUpgradeResponse(ctx context.Context, ch Channel, req HTTPRequestHead, baseHeaders HTTPHeaders) (HTTPHeaders, error) {
	if !tokenListContainsValue(&req.Header, "Connection", "upgrade") {
		return nil, newInvalidHeaderError(`Connection header must contain the "upgrade" token`)
	}
	if !tokenListContainsValue(&req.Header, "Upgrade", "websocket") {
		return nil, newInvalidHeaderError(`Upgrade header must contain the "websocket" token`)
	}

	key, ok := canonicalSingleValue(&req.Header, "Sec-WebSocket-Key")
	if !ok {
		return nil, newInvalidHeaderError("Sec-WebSocket-Key must be present exactly once")
	}

	version, ok := canonicalSingleValue(&req.Header, "Sec-WebSocket-Version")
	if !ok || version != "13" {
		return nil, newInvalidHeaderError(`Sec-WebSocket-Version must equal "13"`)
	}

	extra, err := u.shouldUpgrade(ctx, ch, req).Get(ctx)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if extra == nil {
		return nil, newUnsupportedTargetError("ShouldUpgrade declined the request")
	}

	accept := computeAcceptKey(key)
	baseHeaders.Set("Upgrade", "websocket")
	baseHeaders.Add("Sec-WebSocket-Accept", accept)
	baseHeaders.Set("Connection", "upgrade")
	for _, kv := range extra.GetHeaders() {
		baseHeaders.Add(string(kv.GetKey()), string(kv.GetValue()))
	}
	return baseHeaders, nil
}

// Upgrade installs the WebSocket frame codecs (and, if enabled, the
// protocol error handler) on pipeline, in order, then invokes
// UpgradePipelineHandler. Must only be called after the enclosing HTTP
// upgrade framework has flushed the 101 response built from
// BuildUpgradeResponse. A failure at any step leaves already-installed
// handlers in place; pipeline teardown is the pipeline's responsibility,
// not the Upgrader's.
func (u *Upgrader) Upgrade(ctx context.Context, ch Channel, pipeline Pipeline, req HTTPRequestHead) *future.Future[struct{}] {
	p := future.NewPromise[struct{}]()
	go func() {
		if err := u.installPipeline(ctx, ch, pipeline, req); err != nil {
			p.Fail(err)
			return
		}
		p.Succeed(struct{}{})
	}()
	return p.Future()
}

func (u *Upgrader) installPipeline(ctx context.Context, ch Channel, pipeline Pipeline, req HTTPRequestHead) error {
	encoder := u.newFrameEncoder()
	if _, err := pipeline.AddHandler(ctx, encoder).Get(ctx); err != nil {
		return trace.Wrap(err)
	}

	decoder := u.newFrameDecoder(u.maxFrameSize)
	if _, err := pipeline.AddHandler(ctx, decoder).Get(ctx); err != nil {
		return trace.Wrap(err)
	}

	if u.automaticErrorHandling {
		errHandler := u.newProtocolErrorHandler()
		if _, err := pipeline.AddHandler(ctx, errHandler).Get(ctx); err != nil {
			return trace.Wrap(err)
		}
	}

	if _, err := u.upgradePipelineHandler(ctx, ch, req).Get(ctx); err != nil {
		return trace.Wrap(err)
	}
	u.logger.Debug("websocket pipeline installed")
	return nil
}
