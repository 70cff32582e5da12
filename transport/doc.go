// Package transport provides the duplex message channels that carry the
// tool-invocation protocol between an agent-side client and a tool server.
//
// All bindings implement the Channel interface and preserve FIFO ordering in
// both directions. A channel that loses its peer (process exit, connection
// drop, idle timeout) fails subsequent operations with TRANSPORT_CLOSED and
// never reconnects on its own; callers decide whether to open a fresh channel.
package transport
