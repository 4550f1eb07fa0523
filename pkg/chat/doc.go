// Package chat holds the client-side conversation state.
//
// Store is the active conversation: an append-only message list plus the
// pending flag, the last error and the input buffer. It has two states, idle
// and awaiting-reply:
//   - Begin appends the user message and moves to awaiting-reply.
//   - Complete appends the reply (or a fallback apology on failure) and moves
//     back to idle.
//   - SubmitUserText does both around an asynchronous Gateway call.
//
// Catalog is the sidebar history. Selecting an entry copies its messages into
// the store, so editing the active conversation never touches the catalog.
package chat
