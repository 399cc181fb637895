package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zylisp/bridge/internal/fakerepl"
	"github.com/zylisp/bridge/protocol"
)

func startServer(t *testing.T, h fakerepl.Handler) *fakerepl.Server {
	t.Helper()
	server := fakerepl.NewServer(h)
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Stop(ctx)
	})
	return server
}

func scriptedNREPL() *fakerepl.NREPL {
	return &fakerepl.NREPL{Eval: func(code string) []fakerepl.Message {
		switch code {
		case "(+ 1 2)":
			return []fakerepl.Message{fakerepl.OutReply("adding\n"), fakerepl.ValueReply("3", "user"), fakerepl.StatusReply("done")}
		case "(/ 1 0)":
			return []fakerepl.Message{
				fakerepl.ErrReply("Divide by zero\n"),
				{"ex": "class java.lang.ArithmeticException"},
				fakerepl.StatusReply("eval-error"),
				fakerepl.StatusReply("done"),
			}
		case "(loop [] (recur))":
			return nil
		default:
			return []fakerepl.Message{fakerepl.ValueReply("nil", "user"), fakerepl.StatusReply("done")}
		}
	}}
}

func TestClientEvalNREPL(t *testing.T) {
	fake := scriptedNREPL()
	server := startServer(t, fake)

	c, err := Connect(context.Background(), server.Addr(), "")
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, protocol.DialectNREPL, c.Dialect())
	assert.Equal(t, fake.SessionID(), c.SessionID())

	result, err := c.Eval(context.Background(), "(+ 1 2)")
	require.NoError(t, err)
	assert.Equal(t, &Result{Value: "3", NS: "user", Output: "adding\n", Status: []string{"done"}}, result)
}

func TestClientEvalException(t *testing.T) {
	server := startServer(t, scriptedNREPL())

	c, err := Connect(context.Background(), server.Addr(), protocol.DialectNREPL)
	require.NoError(t, err)
	defer c.Close()

	result, err := c.Eval(context.Background(), "(/ 1 0)")
	require.NoError(t, err)
	assert.Empty(t, result.Value)
	assert.Equal(t, "Divide by zero\n", result.Error)
	assert.Equal(t, "class java.lang.ArithmeticException", result.Exception)
	assert.Equal(t, []string{"eval-error", "done"}, result.Status)
}

func TestClientEvalPREPL(t *testing.T) {
	fake := &fakerepl.PREPL{Eval: func(code string) []string {
		if code == "(+ 1 2)" {
			return []string{`{:tag :out :val "adding\n"}`, fakerepl.RetLine("3")}
		}
		return []string{fakerepl.RetLine("nil")}
	}}
	server := startServer(t, fake)

	c, err := Connect(context.Background(), server.Addr(), "")
	require.NoError(t, err)

	result, err := c.Eval(context.Background(), "(+ 1 2)")
	require.NoError(t, err)
	assert.Equal(t, &Result{Value: "3", NS: "user", Output: "adding\n"}, result)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.Eval(context.Background(), "1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClientEvalTimeout(t *testing.T) {
	server := startServer(t, scriptedNREPL())

	c, err := Connect(context.Background(), server.Addr(), protocol.DialectNREPL)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.Eval(ctx, "(loop [] (recur))")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientEvalAfterCancelledContext(t *testing.T) {
	server := startServer(t, scriptedNREPL())

	c, err := Connect(context.Background(), server.Addr(), protocol.DialectNREPL)
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = c.Eval(ctx, "(loop [] (recur))")
		assert.ErrorIs(t, err, context.Canceled)

		result, err := c.Eval(context.Background(), "(+ 1 2)")
		require.NoError(t, err)
		assert.Equal(t, "3", result.Value)
	}
}

func TestClientServerHangup(t *testing.T) {
	server := startServer(t, scriptedNREPL())

	c, err := Connect(context.Background(), server.Addr(), protocol.DialectNREPL)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))

	_, err = c.Eval(context.Background(), "1")
	require.Error(t, err)
}

func TestConnectRefused(t *testing.T) {
	server := startServer(t, scriptedNREPL())
	addr := server.Addr()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))

	_, err := Connect(context.Background(), addr, protocol.DialectNREPL)
	require.Error(t, err)
}
