// Package wsloop implements the server side of the RFC 6455 WebSocket
// handshake on top of a Hertz request context, and a deterministic,
// virtual-time event loop (see the virtualloop subpackage) for driving the
// asynchronous code that depends on it in tests and simulations.
//
// The two halves do not depend on each other at runtime. They share the
// future/promise substrate in the future subpackage.
package wsloop
