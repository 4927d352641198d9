/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package atparser demultiplexes the radio's line-oriented AT byte stream
// into command terminators, synchronous response lines, and unsolicited
// events, and switches into a binary sub-mode to capture +IPD payloads.
package atparser

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/sabouaram/goesp/pbuf"
)

// Terminator is a line that completes the in-flight command.
type Terminator int

const (
	TermNone Terminator = iota
	TermOK
	TermError
	TermFail
	TermSendOK
	TermSendFail
	TermAlreadyConnected
	TermBusy
)

// String names the terminator, used in log lines and test failure messages.
func (t Terminator) String() string {
	switch t {
	case TermOK:
		return "OK"
	case TermError:
		return "ERROR"
	case TermFail:
		return "FAIL"
	case TermSendOK:
		return "SEND OK"
	case TermSendFail:
		return "SEND FAIL"
	case TermAlreadyConnected:
		return "ALREADY CONNECTED"
	case TermBusy:
		return "BUSY"
	default:
		return "NONE"
	}
}

// IPDFrame describes one +IPD notification, possibly with the sentinel
// AvailOnly set for the manual-receive short form (no payload attached).
type IPDFrame struct {
	Conn      int
	Len       int
	Src       string // raw ip, empty if not present
	Port      int
	AvailOnly bool
}

// Hooks are the callbacks a Parser dispatches to. Any of them may be nil.
type Hooks struct {
	// OnTerminator fires when a command-completing line is recognized.
	OnTerminator func(t Terminator, raw string)
	// OnSyncResponse fires for a line belonging to a named synchronous
	// response family (e.g. "+CWJAP", "+CIFSR").
	OnSyncResponse func(tag string, raw string)
	// OnEvent fires for an unsolicited notification line.
	OnEvent func(raw string)
	// OnPrompt fires when the bare '>' data-send prompt line is seen.
	OnPrompt func()
	// OnIPDStart fires when a +IPD header line is recognized, before any
	// payload bytes (if any) are read.
	OnIPDStart func(f IPDFrame)
	// OnIPDData fires once an IPD payload has been fully captured.
	OnIPDData func(conn int, data *pbuf.Buffer)
}

// mode tracks whether the parser is reading AT text lines or IPD binary payload.
type mode int

const (
	modeLine mode = iota
	modeIPD
)

// Parser holds the incremental state needed to process bytes delivered in
// arbitrary chunks from the platform's ingestion path.
type Parser struct {
	hooks Hooks

	m    mode
	line bytes.Buffer

	ipdConn  int
	ipdWant  int
	ipdGot   int
	ipdBuf   *pbuf.Buffer
	ipdNode  *pbuf.Buffer
}

// New creates a Parser that dispatches to hooks.
func New(hooks Hooks) *Parser {
	return &Parser{hooks: hooks}
}

// Feed processes p, which may contain any number of complete or partial
// lines and/or IPD payload bytes, in any chunking the caller likes — the
// parser's behavior must not depend on how p is split across calls.
func (p *Parser) Feed(data []byte) {
	i := 0

	for i < len(data) {
		if p.m == modeIPD {
			n := p.ipdWant - p.ipdGot
			if n > len(data)-i {
				n = len(data) - i
			}

			p.appendIPD(data[i : i+n])
			i += n

			if p.ipdGot >= p.ipdWant {
				p.finishIPD()
			}

			continue
		}

		b := data[i]
		i++

		if b == '\r' {
			continue
		}

		if b == '\n' {
			p.dispatchLine(p.line.String())
			p.line.Reset()
			continue
		}

		p.line.WriteByte(b)

		// The data-mode IPD header ends at the first ':' outside quotes (an
		// IPv6 source address carries colons of its own); the payload follows
		// immediately with no CRLF, so binary mode starts here.
		if b == ':' && strings.HasPrefix(p.line.String(), "+IPD,") && strings.Count(p.line.String(), `"`)%2 == 0 {
			p.startIPD(p.line.String())
			p.line.Reset()
			continue
		}

		if p.line.Len() == 1 && p.line.String() == ">" {
			// Bare '>' prompt: the radio is waiting for send payload; it has
			// no CRLF terminator of its own. Treat it as a complete line now.
			p.dispatchLine(">")
			p.line.Reset()
		}
	}
}

func (p *Parser) appendIPD(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	n := pbuf.FromBytes(chunk)
	if p.ipdBuf == nil {
		p.ipdBuf = n
		p.ipdNode = n
	} else {
		_ = pbuf.Cat(p.ipdNode, n)
		p.ipdNode = n
	}

	p.ipdGot += len(chunk)
}

func (p *Parser) finishIPD() {
	conn := p.ipdConn
	buf := p.ipdBuf

	p.ipdBuf = nil
	p.ipdNode = nil
	p.ipdWant = 0
	p.ipdGot = 0
	p.m = modeLine

	if p.hooks.OnIPDData != nil {
		p.hooks.OnIPDData(conn, buf)
	} else {
		pbuf.Free(buf)
	}
}

// DropIPD aborts the in-progress IPD capture. Already-captured bytes are
// freed; the parser returns to line mode. Nothing in the engine calls it: a
// packet is always captured whole, and a netconn whose receive mailbox is
// full drops the completed packet in its callback instead.
func (p *Parser) DropIPD() {
	if p.m != modeIPD {
		return
	}

	pbuf.Free(p.ipdBuf)
	p.ipdBuf = nil
	p.ipdNode = nil
	p.ipdWant = 0
	p.ipdGot = 0
	p.m = modeLine
}

func (p *Parser) dispatchLine(line string) {
	if line == "" {
		return
	}

	if line == ">" {
		if p.hooks.OnPrompt != nil {
			p.hooks.OnPrompt()
		}

		return
	}

	if t := classifyTerminator(line); t != TermNone {
		if p.hooks.OnTerminator != nil {
			p.hooks.OnTerminator(t, line)
		}

		return
	}

	if strings.HasPrefix(line, "+IPD,") {
		p.startIPD(line)
		return
	}

	if isSyncResponse(line) {
		tag := line
		if i := strings.IndexAny(line, ",:"); i > 0 {
			tag = line[:i]
		}

		if p.hooks.OnSyncResponse != nil {
			p.hooks.OnSyncResponse(tag, line)
		}

		return
	}

	if p.hooks.OnEvent != nil {
		p.hooks.OnEvent(line)
	}
}

func (p *Parser) startIPD(line string) {
	// +IPD,<conn>,<len>[,<ip>,<port>]:<data>   (data-mode form)
	// +IPD,<conn>,<avail>                       (manual-receive short form)
	body := strings.TrimPrefix(line, "+IPD,")

	colon := strings.LastIndex(body, ":")
	header := body
	if colon >= 0 {
		header = body[:colon]
	}

	fields := strings.Split(header, ",")

	f := IPDFrame{}
	if len(fields) > 0 {
		f.Conn, _ = ParseNumber(fields[0])
	}
	if len(fields) > 1 {
		f.Len, _ = ParseNumber(fields[1])
	}
	if len(fields) > 2 {
		f.Src = ParseQuotedOrBare(fields[2])
	}
	if len(fields) > 3 {
		f.Port, _ = ParseNumber(fields[3])
	}

	if colon < 0 {
		f.AvailOnly = true

		if p.hooks.OnIPDStart != nil {
			p.hooks.OnIPDStart(f)
		}

		return
	}

	if p.hooks.OnIPDStart != nil {
		p.hooks.OnIPDStart(f)
	}

	p.ipdConn = f.Conn
	p.ipdWant = f.Len
	p.ipdGot = 0
	p.ipdBuf = nil
	p.ipdNode = nil
	p.m = modeIPD

	// Any payload bytes already present after the colon on this same line
	// (rare, but the radio is allowed to pack them) feed directly in.
	if rest := body[colon+1:]; rest != "" {
		p.appendIPD([]byte(rest))
		if p.ipdGot >= p.ipdWant {
			p.finishIPD()
		}
	}
}

func classifyTerminator(line string) Terminator {
	switch {
	case line == "OK":
		return TermOK
	case line == "ERROR":
		return TermError
	case line == "FAIL":
		return TermFail
	case line == "SEND OK":
		return TermSendOK
	case line == "SEND FAIL":
		return TermSendFail
	case line == "ALREADY CONNECTED":
		return TermAlreadyConnected
	case strings.HasPrefix(line, "busy"):
		return TermBusy
	default:
		return TermNone
	}
}

var syncPrefixes = []string{
	"+CWLAP", "+CWJAP", "+CWSAP", "+CWLIF", "+CIFSR", "+CIPSTATUS",
	"+CIPSTATE", "+CIPDOMAIN", "+CIPSNTPCFG", "+CIPSNTPTIME", "+CIPSNTPINTV",
	"+CWHOSTNAME", "+CWDHCP", "+CIPRECVLEN", "+time",
}

func isSyncResponse(line string) bool {
	for _, pfx := range syncPrefixes {
		if strings.HasPrefix(line, pfx) {
			return true
		}
	}

	return false
}

// ParseNumber parses a leading decimal integer from s, as used by most
// comma-separated AT response fields.
func ParseNumber(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}

	return n, true
}

// ParseHex parses s as 0x/0X-prefixed hex, 0b-prefixed binary, 0-prefixed
// octal, or plain decimal, matching the source's permissive number reader.
func ParseHex(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	base := 10
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		s = s[2:]
		base = 16
	case strings.HasPrefix(s, "0b"), strings.HasPrefix(s, "0B"):
		s = s[2:]
		base = 2
	case strings.HasPrefix(s, "0") && len(s) > 1:
		s = s[1:]
		base = 8
	}

	v, err := strconv.ParseInt(s, base, 64)
	if err != nil {
		return 0, false
	}

	return v, true
}

// ParseQuotedOrBare extracts a string field that may be quoted ("...") or
// bare, trimming a single leading separator and surrounding whitespace.
func ParseQuotedOrBare(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, ",")
	s = strings.TrimSpace(s)

	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}

	return s
}
