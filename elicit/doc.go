// Package elicit implements the human-input sub-protocol: a tool server may
// pause mid-call and ask the human operating the client for structured input.
//
// The Controller is the client-side owner of these requests. It is an explicit
// object handed to each session, never a package singleton, so two sessions
// can run different policies side by side. Every request resolves exactly
// once: answered, cancelled, or timed out.
package elicit
