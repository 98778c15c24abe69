package telnet

// Telnet in-band control bytes (RFC 854/855 subset).
const (
	iac     byte = 255 // escape introducing a control sequence
	cmdDont byte = 254
	cmdDo   byte = 253
	cmdWont byte = 252
	cmdWill byte = 251
	cmdSB   byte = 250 // begin subnegotiation
	cmdSE   byte = 240 // end subnegotiation
)

// filterNegotiation strips option negotiation from an inbound chunk and
// produces the control bytes to echo back. This client advertises no
// capabilities: every DO is answered WONT, every WILL is answered DONT,
// and DONT/WONT are consumed silently. Subnegotiation blocks are removed;
// an unterminated block is dropped to the end of the chunk (state is not
// carried across chunks). An escape followed by an unknown verb passes
// through unchanged rather than corrupting the stream.
func filterNegotiation(chunk []byte) (cleaned, reply []byte) {
	cleaned = make([]byte, 0, len(chunk))
	for i := 0; i < len(chunk); {
		b := chunk[i]
		if b != iac {
			cleaned = append(cleaned, b)
			i++
			continue
		}
		if i+1 >= len(chunk) {
			// Escape with nothing after it; pass through.
			cleaned = append(cleaned, b)
			i++
			continue
		}
		verb := chunk[i+1]
		switch verb {
		case cmdDo, cmdWill, cmdDont, cmdWont:
			if i+2 >= len(chunk) {
				// Truncated triplet at chunk end; pass through.
				cleaned = append(cleaned, chunk[i:]...)
				i = len(chunk)
				continue
			}
			opt := chunk[i+2]
			switch verb {
			case cmdDo:
				reply = append(reply, iac, cmdWont, opt)
			case cmdWill:
				reply = append(reply, iac, cmdDont, opt)
			}
			i += 3
		case cmdSB:
			j := i + 2
			for j < len(chunk) {
				if chunk[j] == iac && j+1 < len(chunk) {
					if chunk[j+1] == cmdSE {
						break
					}
					j += 2 // escape-prefixed byte inside the block
					continue
				}
				j++
			}
			if j >= len(chunk) {
				// End marker never arrived; drop the remainder.
				i = len(chunk)
				continue
			}
			i = j + 2
		case iac:
			// Escaped literal 0xFF data byte.
			cleaned = append(cleaned, iac)
			i += 2
		default:
			cleaned = append(cleaned, iac, verb)
			i += 2
		}
	}
	return cleaned, reply
}
