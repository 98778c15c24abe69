package telnet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
	"unicode/utf8"
)

const readChunkSize = 4096

// readProbe is the per-read deadline. It is kept well under any realistic
// maxWait so the loop stays responsive to the overall deadline.
const readProbe = time.Second

// pagerContinue is the keystroke that answers an interactive pager.
var pagerContinue = []byte(" ")

// pagerMarkers are the interstitial "more" prompts devices emit when output
// pagination could not be disabled.
var pagerMarkers = [][]byte{
	[]byte("--More--"),
	[]byte("-- More --"),
	[]byte("---- More ----"),
	[]byte("<--- More --->"),
	[]byte("Press any key to continue"),
}

// Response is one prompt-delimited reply from a device.
type Response struct {
	Text string
	// Partial is set when the deadline elapsed before the prompt arrived;
	// Text carries whatever was accumulated and may be truncated.
	Partial bool
}

// readState names the phases of one readUntilPrompt invocation.
type readState int

const (
	stateAwaitingData      readState = iota // nothing received yet
	stateAwaitingPrompt                     // data buffered, prompt still outstanding
	statePagerInterstitial                  // pager answered, more output expected
	stateDone                               // terminating condition met
	stateTimedOutPartial                    // deadline elapsed with promptless data
)

// promptReader frames free-text responses out of a raw byte stream. State is
// per invocation; nothing persists across calls.
type promptReader struct {
	conn   Conn
	prompt []byte
	clock  Clock
}

// readUntilPrompt accumulates transport chunks until the configured prompt
// appears, or, when requirePrompt is false, until any payload bytes arrive
// (used for banner reads that have no reliable prompt). Negotiation sequences
// are answered in-band and pager interstitials are stripped and acknowledged
// along the way.
func (r *promptReader) readUntilPrompt(requirePrompt bool, maxWait time.Duration) (Response, error) {
	var buf []byte
	state := stateAwaitingData
	start := r.clock.Now()
	chunk := make([]byte, readChunkSize)

	for {
		switch state {
		case stateDone:
			return Response{Text: decodeText(buf)}, nil
		case stateTimedOutPartial:
			return Response{Text: decodeText(buf), Partial: true}, nil
		}

		probe := readProbe
		if maxWait > 0 && maxWait < probe {
			probe = maxWait
		}
		if err := r.conn.SetReadDeadline(time.Now().Add(probe)); err != nil {
			return Response{}, fmt.Errorf("set read deadline: %w", err)
		}
		n, err := r.conn.Read(chunk)

		if n > 0 {
			cleaned, reply := filterNegotiation(chunk[:n])
			if len(reply) > 0 {
				if _, werr := r.conn.Write(reply); werr != nil {
					return Response{}, fmt.Errorf("write negotiation reply: %w", werr)
				}
			}
			buf = append(buf, cleaned...)

			if stripped, hit := stripPagerMarkers(buf); hit {
				buf = stripped
				if _, werr := r.conn.Write(pagerContinue); werr != nil {
					return Response{}, fmt.Errorf("answer pager: %w", werr)
				}
				// Never a terminating event; the device has more to say.
				state = statePagerInterstitial
				continue
			}

			switch {
			case bytes.Contains(buf, r.prompt):
				state = stateDone
			case !requirePrompt && len(cleaned) > 0:
				state = stateDone
			default:
				state = stateAwaitingPrompt
			}
			continue
		}

		if err == nil || errors.Is(err, io.EOF) {
			// Peer closed the stream. Whatever is buffered is the response;
			// silence is a hard failure.
			if len(buf) > 0 {
				state = stateDone
				continue
			}
			return Response{}, &NoResponseError{Wait: r.clock.Now().Sub(start), Err: err}
		}

		if isTimeout(err) {
			elapsed := r.clock.Now().Sub(start)
			switch {
			case len(buf) == 0 && elapsed < maxWait:
				state = stateAwaitingData
			case len(buf) == 0:
				return Response{}, &NoResponseError{Wait: maxWait}
			case !requirePrompt:
				state = stateDone
			case elapsed >= maxWait:
				state = stateTimedOutPartial
			default:
				state = stateAwaitingPrompt
			}
			continue
		}

		return Response{}, err
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// stripPagerMarkers removes every pager interstitial currently in buf and
// reports whether any was found.
func stripPagerMarkers(buf []byte) ([]byte, bool) {
	hit := false
	for _, marker := range pagerMarkers {
		if bytes.Contains(buf, marker) {
			buf = bytes.ReplaceAll(buf, marker, nil)
			hit = true
		}
	}
	return buf, hit
}

// decodeText converts raw device output to text, replacing undecodable bytes
// rather than failing, and trims surrounding whitespace.
func decodeText(buf []byte) string {
	s := string(buf)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, string(utf8.RuneError))
	}
	return strings.TrimSpace(s)
}
