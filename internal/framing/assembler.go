// Package framing reassembles wire records from the arbitrary chunks a serial
// link delivers.
//
// The band firmware has shipped with newline, carriage return and START/END
// framing, and it is not known which one a given unit emits, so the boundary
// rule is a Strategy. StrategyAuto tries each convention in turn against the
// accumulated buffer.
package framing

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/banshee-data/bandlink/internal/telemetry"
)

// Strategy selects how packet boundaries are recognised.
type Strategy string

const (
	StrategyAuto           Strategy = "auto"
	StrategyNewline        Strategy = "newline"
	StrategyCarriageReturn Strategy = "cr"
	StrategyMarkers        Strategy = "markers"
	StrategyRaw            Strategy = "raw"
)

const (
	startMarker = "START"
	endMarker   = "END"
)

var markerSpan = regexp.MustCompile(`(?s)START(.*?)END`)

// ParseStrategy validates a strategy name. An empty name selects StrategyAuto.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StrategyAuto, nil
	case StrategyAuto, StrategyNewline, StrategyCarriageReturn, StrategyMarkers, StrategyRaw:
		return st, nil
	default:
		return "", fmt.Errorf("unknown framing strategy %q", s)
	}
}

// Assembler accumulates chunks and yields complete packets in stream order.
// It is not safe for concurrent use; the live pipeline serialises calls.
type Assembler struct {
	strategy Strategy
	buf      string
}

// NewAssembler returns an Assembler using the given strategy.
func NewAssembler(strategy Strategy) *Assembler {
	if strategy == "" {
		strategy = StrategyAuto
	}
	return &Assembler{strategy: strategy}
}

// Strategy returns the assembler's framing strategy.
func (a *Assembler) Strategy() Strategy { return a.strategy }

// Remainder returns the buffered bytes not yet part of a complete packet.
func (a *Assembler) Remainder() string { return a.buf }

// Reset discards the buffered remainder.
func (a *Assembler) Reset() { a.buf = "" }

// Push appends chunk to the buffer and returns every packet it completes.
func (a *Assembler) Push(chunk string) []string {
	buffer := a.buf + chunk

	switch a.strategy {
	case StrategyNewline:
		return a.splitIfPresent(buffer, "\n")
	case StrategyCarriageReturn:
		return a.splitIfPresent(buffer, "\r")
	case StrategyMarkers:
		if hasMarkers(buffer) {
			return a.extractSpans(buffer)
		}
		a.buf = buffer
		return nil
	case StrategyRaw:
		return a.raw(buffer, chunk)
	default:
		return a.auto(buffer, chunk)
	}
}

func (a *Assembler) auto(buffer, chunk string) []string {
	switch {
	case strings.Contains(buffer, "\n"):
		return a.split(buffer, "\n")
	case strings.Contains(buffer, "\r"):
		return a.split(buffer, "\r")
	case hasMarkers(buffer):
		return a.extractSpans(buffer)
	default:
		return a.raw(buffer, chunk)
	}
}

// raw emits chunk on its own when it already holds a full record. The earlier
// remainder is kept as it was.
func (a *Assembler) raw(buffer, chunk string) []string {
	if strings.Count(chunk, ",")+1 == telemetry.FieldCount {
		return compact([]string{chunk})
	}
	a.buf = buffer
	return nil
}

func (a *Assembler) splitIfPresent(buffer, delim string) []string {
	if !strings.Contains(buffer, delim) {
		a.buf = buffer
		return nil
	}
	return a.split(buffer, delim)
}

// split treats every segment but the last as complete; the last one may have
// been cut mid-packet and becomes the new remainder.
func (a *Assembler) split(buffer, delim string) []string {
	segments := strings.Split(buffer, delim)
	last := len(segments) - 1
	a.buf = segments[last]
	return compact(segments[:last])
}

func (a *Assembler) extractSpans(buffer string) []string {
	var packets []string
	for _, m := range markerSpan.FindAllStringSubmatch(buffer, -1) {
		packets = append(packets, m[1])
	}
	a.buf = buffer[strings.LastIndex(buffer, endMarker)+len(endMarker):]
	return compact(packets)
}

func hasMarkers(buffer string) bool {
	return strings.Contains(buffer, startMarker) && strings.Contains(buffer, endMarker)
}

func compact(segments []string) []string {
	var out []string
	for _, s := range segments {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
