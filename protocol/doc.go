// Package protocol implements the tool-invocation protocol spoken over a
// transport.Channel: capability negotiation, tool listing and invocation,
// prompt templates, resource reads, and the elicitation sub-protocol.
//
// A session moves through Uninitialized -> Negotiating -> Ready -> Closed and
// never reopens. ClientSession is the agent side; ServerSession serves a
// Registry of tools, prompts and resources to one connected peer.
package protocol
