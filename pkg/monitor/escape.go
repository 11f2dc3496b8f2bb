package monitor

// escapeState tracks where the stripper is inside an escape sequence.
type escapeState int

const (
	stateText escapeState = iota
	stateEscape
	stateCSI
	stateOSC
	stateOSCEscape
	stateCharset
)

// EscapeStripper removes ANSI escape sequences from terminal output. It keeps
// state between calls so sequences split across chunks are still removed.
type EscapeStripper struct {
	state escapeState
}

// NewEscapeStripper creates a stripper positioned in plain text.
func NewEscapeStripper() *EscapeStripper {
	return &EscapeStripper{}
}

// Strip returns data without escape sequences. The returned slice does not
// alias data.
func (s *EscapeStripper) Strip(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		switch s.state {
		case stateText:
			if b == 0x1b {
				s.state = stateEscape
				continue
			}
			out = append(out, b)
		case stateEscape:
			switch b {
			case '[':
				s.state = stateCSI
			case ']':
				s.state = stateOSC
			case '(', ')', '*', '+':
				s.state = stateCharset
			default:
				// two-byte sequence such as ESC c or ESC =
				s.state = stateText
			}
		case stateCSI:
			// parameters and intermediates run until a final byte
			if b >= 0x40 && b <= 0x7e {
				s.state = stateText
			}
		case stateOSC:
			switch b {
			case 0x07:
				s.state = stateText
			case 0x1b:
				s.state = stateOSCEscape
			}
		case stateOSCEscape:
			if b == '\\' {
				s.state = stateText
			} else {
				s.state = stateOSC
			}
		case stateCharset:
			s.state = stateText
		}
	}
	return out
}

// Reset drops any partial sequence.
func (s *EscapeStripper) Reset() {
	s.state = stateText
}
