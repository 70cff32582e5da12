// Package agent implements the conversational agent: one model, one owned
// conversation, and any number of protocol sessions providing tools.
//
// An agent is single-writer. Send drives the model/tool loop to completion
// while holding the conversation; a concurrent Send is rejected with
// AGENT_BUSY rather than queued.
package agent
