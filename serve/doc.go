// Package serve exposes agents and workflow engines as protocol servers, so a
// second process can drive them through tool calls over stdio or HTTP.
//
// A served agent advertises a "send" tool and a "conversation_history" prompt.
// The prompt returns the agent's exported conversation, which makes context
// transfer between processes an observable protocol call instead of an
// out-of-band copy.
package serve
