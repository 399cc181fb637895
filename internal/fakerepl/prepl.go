package fakerepl

import (
	"bufio"
	"net"
	"strings"
	"sync"
)

// QuitToken ends a pREPL session.
const QuitToken = ":repl/quit"

// PREPL answers source lines the way a socket pREPL does, one EDN map per line.
type PREPL struct {
	// Eval scripts the EDN lines written for a source line. Nil answers every
	// line with a :ret of nil.
	Eval func(code string) []string

	mu    sync.Mutex
	lines []string
}

// RetLine is a :ret message for val.
func RetLine(val string) string {
	return `{:tag :ret :val "` + val + `" :ns "user" :ms 1 :form "x"}`
}

// Lines returns the source lines received so far.
func (p *PREPL) Lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.lines))
	copy(out, p.lines)
	return out
}

// Serve reads lines until the client quits or disconnects.
func (p *PREPL) Serve(conn net.Conn) {
	r := bufio.NewReader(conn)

	// A bencode probe is not a line. Answer it as a reader failure.
	if b, err := r.Peek(1); err == nil && b[0] == 'd' {
		conn.Write([]byte(`{:tag :ret :exception true :val "{:cause \"probe\"}" :ns "user" :ms 0 :form "d"}` + "\n"))
		return
	}

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		p.mu.Lock()
		p.lines = append(p.lines, line)
		p.mu.Unlock()

		if line == QuitToken {
			return
		}

		replies := []string{RetLine("nil")}
		if p.Eval != nil {
			replies = p.Eval(line)
		}
		for _, reply := range replies {
			if _, err := conn.Write([]byte(reply + "\n")); err != nil {
				return
			}
		}
	}
}

// Raw answers the first read on a connection with reply and hangs up.
func Raw(reply []byte) Handler {
	return HandlerFunc(func(conn net.Conn) {
		buf := make([]byte, 512)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		conn.Write(reply)
	})
}
