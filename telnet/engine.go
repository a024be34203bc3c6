// Package telnet implements the per-connection byte-level Telnet
// state engine: option negotiation, CR/LF and IAC canonicalization,
// GO-AHEAD backpressure, TIMING-MARK acknowledgement, and CSI
// arrow-key decoding feeding a line editor.
package telnet

import (
	"bufio"
	"net"
	"sync"

	"parlor/editor"
)

// Handler receives events from the engine's read loop. A session
// implements Handler; the engine holds no session-level knowledge of
// its own.
type Handler interface {
	// Line is called once per accepted input line (editor Accept()).
	Line(text string)
	// Welcome is called exactly once, when the connect-time option
	// negotiation barrier (TIMING-MARK probe, LSGA, ECHO) completes.
	Welcome()
	// Acknowledge is called when the remote answers a TIMING-MARK,
	// advancing the attached output stream's ack cursor.
	Acknowledge()
	// RequestShutdown is called when the private SHUTDOWN byte (0x18)
	// arrives after IAC, used only over the loopback hand-off
	// connection.
	RequestShutdown()
}

// Engine wraps one TCP connection's Telnet decode/encode state and
// the line editor that sits on top of it. Reads happen on the
// goroutine that calls Run; writes are safe from any goroutine.
type Engine struct {
	conn   net.Conn
	reader *bufio.Reader
	h      Handler

	editor *editor.Buffer

	mu      sync.Mutex
	cmdQ    []byte
	dataQ   []byte
	blocked bool

	echo tristate
	lsga tristate
	rsga tristate

	acknowledging bool // true once the TIMING-MARK probe has settled
	barrier       *welcomeBarrier

	state decoderState
}

// New creates an Engine over conn. width selects the assumed terminal
// width for the line editor (0 selects editor.DefaultWidth).
func New(conn net.Conn, width int, h Handler) *Engine {
	e := &Engine{
		conn:    conn,
		reader:  bufio.NewReaderSize(conn, 4096),
		h:       h,
		editor:  editor.New(width),
		barrier: newWelcomeBarrier(),
	}
	return e
}

// Buffer exposes the line editor so the session can set prompts and
// toggle password masking.
func (e *Engine) Buffer() *editor.Buffer { return e.editor }

// SetHandler installs the event handler. It exists so a Connection and
// its Session can be constructed in either order: build the Engine
// with a nil Handler, construct the Session (which needs a
// Connection), then call SetHandler before Negotiate/Run. It is also
// used to rebind a connection to a different Session on reattach.
func (e *Engine) SetHandler(h Handler) { e.h = h }

// Handler returns the event handler currently installed, reflecting
// any rebind done by SetHandler since the Engine was constructed.
func (e *Engine) Handler() Handler { return e.h }

// RemoteAddr returns the underlying connection's remote address.
func (e *Engine) RemoteAddr() net.Addr { return e.conn.RemoteAddr() }

// Negotiate sends the connect-time option probes: a TIMING-MARK
// probe, then WILL LSGA, DO RSGA, WILL ECHO. The probe is phrased as
// WILL (not DO) so that the client's DO/DONT reply lands in the
// decoder's SAW_DO/SAW_DONT branch, which is where TIMING-MARK
// acknowledgement is handled.
func (e *Engine) Negotiate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sendCommandLocked(Will, OptTimingMark)
	e.sendCommandLocked(Will, OptSGA)
	e.lsga.setWe(true)
	e.sendCommandLocked(Do, OptSGA)
	e.rsga.setWe(true)
	e.sendCommandLocked(Will, OptEcho)
	e.echo.setWe(true)
}

// Run drives the read loop until the connection closes or a fatal
// read error occurs. It returns the terminating error, which is io.EOF
// when the peer closes the connection.
func (e *Engine) Run() error {
	for {
		c, err := e.reader.ReadByte()
		if err != nil {
			return err
		}
		e.decode(c)
	}
}

// Close closes the underlying connection.
func (e *Engine) Close() error { return e.conn.Close() }

// --- outstream.Sink / outstream.MarkSink ---

// WriteLine implements outstream.Sink: it appends one line of
// rendered output, applying the CR/LF and IAC-doubling encoding rules
// before queuing for transmission.
func (e *Engine) WriteLine(s string) {
	e.mu.Lock()
	e.appendDataLocked(s + "\n")
	e.flushLocked()
	e.mu.Unlock()
}

// Mark implements outstream.MarkSink: it queues a TIMING-MARK command
// after the object just rendered, so the remote's reply acknowledges
// delivery up to this point.
func (e *Engine) Mark() {
	e.mu.Lock()
	e.sendCommandLocked(Will, OptTimingMark)
	e.mu.Unlock()
}

// --- editor.Sink ---

// WriteString implements editor.Sink: raw redraw bytes (cursor moves,
// prompt repaint) are encoded and queued exactly like line output.
func (e *Engine) WriteString(s string) {
	e.mu.Lock()
	e.appendDataLocked(s)
	e.flushLocked()
	e.mu.Unlock()
}

// Bell implements editor.Sink by queuing the terminal bell byte as
// ordinary data.
func (e *Engine) Bell() {
	e.mu.Lock()
	e.dataQ = append(e.dataQ, Bell)
	e.flushLocked()
	e.mu.Unlock()
}

// --- encoding ---

func (e *Engine) appendDataLocked(s string) {
	e.dataQ = append(e.dataQ, Encode(s)...)
}

func (e *Engine) sendCommandLocked(cmd, opt byte) {
	e.cmdQ = append(e.cmdQ, IAC, cmd, opt)
	e.flushLocked()
}

// flushLocked writes the command queue unconditionally (it bypasses
// blocked), then, if output is eligible, the data queue. Eligibility
// requires blocked == false AND command queue empty AND data queue
// non-empty.
func (e *Engine) flushLocked() {
	if len(e.cmdQ) > 0 {
		e.conn.Write(e.cmdQ)
		e.cmdQ = e.cmdQ[:0]
	}
	if e.blocked || len(e.dataQ) == 0 {
		return
	}
	e.conn.Write(e.dataQ)
	e.dataQ = e.dataQ[:0]
	if !e.lsga.enabled() {
		e.cmdQ = append(e.cmdQ, IAC, GoAhead)
		e.conn.Write(e.cmdQ)
		e.cmdQ = e.cmdQ[:0]
		if !e.rsga.enabled() {
			e.blocked = true
		}
	}
}

// --- decode ---

func (e *Engine) decode(c byte) {
	switch e.state {
	case stateData:
		e.decodeData(c)
	case stateIAC:
		e.decodeIAC(c)
	case stateWill:
		e.decodeWillWont(c, true)
	case stateWont:
		e.decodeWillWont(c, false)
	case stateDo:
		e.decodeDoDont(c, true)
	case stateDont:
		e.decodeDoDont(c, false)
	case stateCR:
		e.state = stateData // discard the byte following CR (LF or NUL)
	case stateEsc:
		if c == '[' {
			e.state = stateCSI
		} else {
			e.editor.Bell(e)
			e.state = stateData
		}
	case stateCSI:
		e.decodeCSI(c)
		e.state = stateData
	}
}

func (e *Engine) decodeData(c byte) {
	switch c {
	case IAC:
		e.state = stateIAC
	case '\r':
		e.state = stateCR
		e.handleInputByte(c)
	case 0x1b:
		e.state = stateEsc
	default:
		e.handleInputByte(c)
	}
}

func (e *Engine) decodeIAC(c byte) {
	e.state = stateData
	switch c {
	case Shutdown:
		e.mu.Lock()
		e.cmdQ = append(e.cmdQ, IAC, Shutdown)
		e.flushLocked()
		e.mu.Unlock()
		e.h.RequestShutdown()
	case AbortOutput:
		e.mu.Lock()
		e.dataQ = e.dataQ[:0]
		e.mu.Unlock()
	case AreYouThere:
		e.WriteLine("[Yes]")
	case EraseChar:
		e.editor.EraseCharBeforePoint(e)
	case EraseLine:
		e.editor.BeginningOfLine(e)
		e.editor.KillToEnd(e)
	case GoAhead:
		e.mu.Lock()
		e.blocked = false
		e.flushLocked()
		e.mu.Unlock()
	case Will:
		e.state = stateWill
	case Wont:
		e.state = stateWont
	case Do:
		e.state = stateDo
	case Dont:
		e.state = stateDont
	case IAC:
		e.handleInputByte(IAC)
	default:
		// unrecognised command: silently swallowed
	}
}

// decodeWillWont handles the option byte following IAC WILL/WONT: it
// updates the remote SUPPRESS-GO-AHEAD tri-state and refuses unknown
// options. It does not count toward the welcome barrier.
func (e *Engine) decodeWillWont(opt byte, will bool) {
	e.state = stateData
	e.mu.Lock()
	defer e.mu.Unlock()

	switch opt {
	case OptSGA:
		e.rsga.setThey(will)
		if will && !e.lsga.weProposed() {
			e.sendCommandLocked(Will, OptSGA)
			e.lsga.setWe(true)
		}
		if e.rsga.enabled() && e.lsga.enabled() {
			e.blocked = false
		}
	default:
		if will {
			e.sendCommandLocked(Dont, opt)
		}
	}
}

// decodeDoDont handles the option byte following IAC DO/DONT: ECHO
// and SUPPRESS-GO-AHEAD local tri-states, and TIMING-MARK
// acknowledgement. All other options are refused.
func (e *Engine) decodeDoDont(opt byte, do bool) {
	e.state = stateData
	e.mu.Lock()
	defer e.mu.Unlock()

	switch opt {
	case OptEcho:
		e.echo.setThey(do)
		if e.barrier.arrive() {
			e.fireWelcomeLocked()
		}
	case OptSGA:
		e.lsga.setThey(do)
		if do && !e.rsga.weProposed() {
			e.sendCommandLocked(Do, OptSGA)
			e.rsga.setWe(true)
		}
		if e.lsga.enabled() && e.rsga.enabled() {
			e.blocked = false
		}
		if e.barrier.arrive() {
			e.fireWelcomeLocked()
		}
	case OptTimingMark:
		if e.acknowledging {
			go e.h.Acknowledge()
		} else {
			e.acknowledging = true
			if e.barrier.arrive() {
				e.fireWelcomeLocked()
			}
		}
	default:
		if do {
			e.sendCommandLocked(Wont, opt)
		}
	}
}

func (e *Engine) fireWelcomeLocked() {
	go e.h.Welcome()
}

func (e *Engine) decodeCSI(c byte) {
	switch c {
	case 'A':
		// previous-line: no multi-line history kept, bell.
		e.editor.Bell(e)
	case 'B':
		e.editor.Bell(e)
	case 'C':
		e.editor.ForwardChar(e)
	case 'D':
		e.editor.BackwardChar(e)
	default:
		e.editor.Bell(e)
	}
}

// handleInputByte dispatches one logical input byte (after Telnet
// command stripping) to the line editor, or accepts the current line.
func (e *Engine) handleInputByte(c byte) {
	switch c {
	case 0x01: // Control-A
		e.editor.BeginningOfLine(e)
	case 0x02: // Control-B
		e.editor.BackwardChar(e)
	case 0x04: // Control-D
		e.editor.DeleteChar(e)
	case 0x05: // Control-E
		e.editor.EndOfLine(e)
	case 0x06: // Control-F
		e.editor.ForwardChar(e)
	case 0x0b: // Control-K
		e.editor.KillToEnd(e)
	case 0x0c: // Control-L
		e.editor.UndrawInput(e)
		e.editor.RedrawInput(e)
	case 0x14: // Control-T
		e.editor.TransposeChars(e)
	case 0x08, 0x7f: // Backspace, Delete
		e.editor.EraseCharBeforePoint(e)
	case '\r', '\n':
		line := e.editor.Accept()
		e.h.Line(line)
	case '\t':
		e.editor.InsertChar(e, ' ')
	default:
		if c >= 0x20 && c < 0x7f {
			e.editor.InsertChar(e, c)
		} else {
			e.editor.Bell(e)
		}
	}
}
