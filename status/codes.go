package status

// Code classifies an engine-level failure. It deliberately carries no HTTP
// semantics: mapping onto response codes is the job of whatever protocol
// layer sits on top of the engine.
type Code uint8

const (
	Unknown Code = iota
	// Timeout covers both transport idleness and blocked application reads.
	Timeout
	// EarlyEOF means the peer closed before delivering everything it promised.
	EarlyEOF
	// Closed means the connection or producer was torn down mid-use.
	Closed
	// TooLarge means a configured size limit was exceeded.
	TooLarge
	// BadChunk means malformed chunk-encoded data.
	BadChunk
	// Unsupported means the payload cannot be interpreted as requested.
	Unsupported
)

func (c Code) String() string {
	switch c {
	case Timeout:
		return "timeout"
	case EarlyEOF:
		return "early EOF"
	case Closed:
		return "closed"
	case TooLarge:
		return "too large"
	case BadChunk:
		return "bad chunk"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}
