package httpconn

import (
	"strconv"
	"strings"

	"github.com/golang/glog"
)

type state int

const (
	stateStatusLine state = iota
	stateStatusCode
	stateStatusReason
	stateLineStart
	stateField
	stateValue
	stateContent
	stateFinished
)

func (s state) String() string {
	switch s {
	case stateStatusLine:
		return "STATUS-LINE"
	case stateStatusCode:
		return "STATUS-CODE"
	case stateStatusReason:
		return "STATUS-REASON"
	case stateLineStart:
		return "LINE-START"
	case stateField:
		return "FIELD"
	case stateValue:
		return "VALUE"
	case stateContent:
		return "CONTENT"
	case stateFinished:
		return "FINISHED"
	}
	return "UNKNOWN"
}

// maxHeader bounds header field names and values. Longer ones are truncated.
const maxHeader = 128

// parser consumes a response head one byte at a time, so it does not care
// how the transport splits it into packets.
type parser struct {
	state         state
	code          int
	statusCode    int
	contentLength int
	field         []byte
	value         []byte
}

func newParser() parser {
	return parser{
		statusCode: -1,
		field:      make([]byte, 0, maxHeader),
		value:      make([]byte, 0, maxHeader),
	}
}

// feed runs the state machine over pkt and returns how many bytes belonged
// to the head. It stops at the first body byte.
func (p *parser) feed(pkt []byte) int {
	for i := 0; i < len(pkt); i++ {
		if p.state >= stateContent {
			return i
		}
		p.step(pkt[i])
	}
	return len(pkt)
}

func (p *parser) step(c byte) {
	switch p.state {
	case stateStatusLine:
		if c == ' ' {
			p.state = stateStatusCode
		}
	case stateStatusCode:
		switch {
		case c >= '0' && c <= '9':
			p.code = p.code*10 + int(c-'0')
		case c == ' ':
			p.statusCode = p.code
			p.state = stateStatusReason
		case c == '\n':
			p.statusCode = p.code
			p.state = stateLineStart
		}
	case stateStatusReason:
		if c == '\n' {
			p.state = stateLineStart
		}
	case stateLineStart:
		switch c {
		case '\r':
		case '\n':
			p.state = stateContent
		default:
			p.field = append(p.field[:0], c)
			p.state = stateField
		}
	case stateField:
		switch c {
		case ':':
			p.value = p.value[:0]
			p.state = stateValue
		case '\n':
			p.state = stateLineStart
		case '\r':
		default:
			if len(p.field) < maxHeader {
				p.field = append(p.field, c)
			}
		}
	case stateValue:
		switch c {
		case '\r':
		case '\n':
			p.header()
			p.state = stateLineStart
		case ' ', '\t':
			if len(p.value) == 0 {
				break
			}
			fallthrough
		default:
			if len(p.value) < maxHeader {
				p.value = append(p.value, c)
			}
		}
	}
}

func (p *parser) header() {
	field, value := string(p.field), strings.TrimSpace(string(p.value))
	glog.V(2).Infof("%s: %s", field, value)
	if !strings.EqualFold(field, "Content-Length") {
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		glog.Warningf("Ignoring bad Content-Length %q", value)
		return
	}
	p.contentLength = n
}
