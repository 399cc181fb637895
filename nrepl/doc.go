// Package nrepl talks to nREPL servers over their bencode framing.
//
// A connection is driven by a Sender, which owns the write half and the
// request counter, and a Receiver, which owns the read half. NewSenderReceiver
// performs the startup handshake: it clones a session, records the session id
// on both halves and turns off namespaced map printing.
package nrepl
