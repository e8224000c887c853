package ws

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

var errWriterClosed = errors.New("connection writer closed")

type closeFrame struct {
	code   int
	reason string
}

type outFrame struct {
	json   any
	binary []byte
	ping   bool
	close  *closeFrame
}

// frameWriter serializes all writes to one connection through a single
// goroutine fed by a bounded channel. Producers that outrun the transport
// block on the channel, which is the backpressure mechanism; there is no
// unbounded buffering of outbound audio.
type frameWriter struct {
	conn      *websocket.Conn
	ch        chan outFrame
	closed    chan struct{}
	closeOnce sync.Once
}

func newFrameWriter(conn *websocket.Conn, buffer int) *frameWriter {
	w := &frameWriter{
		conn:   conn,
		ch:     make(chan outFrame, buffer),
		closed: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *frameWriter) run() {
	for {
		select {
		case <-w.closed:
			return
		case f := <-w.ch:
			w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			var err error
			switch {
			case f.close != nil:
				msg := websocket.FormatCloseMessage(f.close.code, f.close.reason)
				w.conn.WriteMessage(websocket.CloseMessage, msg)
				w.conn.Close()
				w.shutdown()
				return
			case f.ping:
				err = w.conn.WriteMessage(websocket.PingMessage, nil)
			case f.binary != nil:
				err = w.conn.WriteMessage(websocket.BinaryMessage, f.binary)
			default:
				err = w.conn.WriteJSON(f.json)
			}
			if err != nil {
				slog.Warn("connection write failed", "error", err)
			}
		}
	}
}

func (w *frameWriter) send(f outFrame) error {
	select {
	case w.ch <- f:
		return nil
	case <-w.closed:
		return errWriterClosed
	}
}

func (w *frameWriter) sendJSON(v any) error      { return w.send(outFrame{json: v}) }
func (w *frameWriter) sendBinary(b []byte) error { return w.send(outFrame{binary: b}) }
func (w *frameWriter) sendPing() error           { return w.send(outFrame{ping: true}) }

// close delivers a close frame with the given code and then stops the
// writer. Later sends fail with errWriterClosed.
func (w *frameWriter) close(code int, reason string) {
	_ = w.send(outFrame{close: &closeFrame{code: code, reason: reason}})
}

// shutdown stops the writer without a close handshake, for paths where the
// transport is already gone.
func (w *frameWriter) shutdown() {
	w.closeOnce.Do(func() { close(w.closed) })
}
