package nrepl

import (
	"io"
	"log/slog"

	"github.com/zylisp/bridge/protocol"
)

// NewSenderReceiver runs the startup handshake over an established
// connection and returns the two halves sharing one session id.
//
// The handshake clones a session, then evaluates DisableNamespaceMapsCode and
// expects the value/done pair any evaluation produces. Any other reply aborts
// the handshake.
func NewSenderReceiver(r io.Reader, w io.Writer) (*Sender, *Receiver, error) {
	sender := NewSender(w)
	receiver := NewReceiver(r)

	slog.Debug("Starting new nREPL session")

	if err := sender.Send(protocol.NewSession{}); err != nil {
		return nil, nil, err
	}

	resp, err := receiver.Receive()
	if err != nil {
		return nil, nil, err
	}
	created, ok := resp.(protocol.SessionCreated)
	if !ok {
		return nil, nil, protocol.ProtocolError("handshake", "unexpected handshake response to clone: %#v", resp)
	}
	if created.ID == "" {
		return nil, nil, protocol.ProtocolError("handshake", "server returned an empty session id")
	}

	// Both halves hold the id before either is handed out.
	sender.sessionID = created.ID
	receiver.sessionID = created.ID

	if err := DisableNamespaceMaps(sender, receiver); err != nil {
		return nil, nil, err
	}

	slog.Debug("nREPL session ready", "session", created.ID)
	return sender, receiver, nil
}

// DisableNamespaceMaps turns off namespaced map printing and consumes the
// value and done status the evaluation produces.
func DisableNamespaceMaps(sender protocol.Sender, receiver protocol.Receiver) error {
	if err := sender.Send(protocol.DisableNamespaceMaps{}); err != nil {
		return err
	}

	resp, err := receiver.Receive()
	if err != nil {
		return err
	}
	if _, ok := resp.(protocol.Value); !ok {
		return protocol.ProtocolError("handshake", "unexpected handshake response when disabling ns-maps: %#v", resp)
	}

	resp, err = receiver.Receive()
	if err != nil {
		return err
	}
	status, ok := resp.(protocol.Status)
	if !ok {
		return protocol.ProtocolError("handshake", "unexpected handshake response when disabling ns-maps: %#v", resp)
	}
	if !status.Has(protocol.StatusDone) {
		return protocol.ProtocolError("handshake", "unable to disable ns-maps: status %v", status.Tokens)
	}

	return nil
}
