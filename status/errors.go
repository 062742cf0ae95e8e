package status

type Error struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return Error{
		Code:    code,
		Message: message,
	}
}

func (e Error) Error() string {
	return e.Message
}

var (
	ErrTimeout              = NewError(Timeout, "idle timeout")
	ErrBlockingTimeout      = NewError(Timeout, "timeout waiting for content")
	ErrEarlyEOF             = NewError(EarlyEOF, "early EOF")
	ErrClosed               = NewError(Closed, "connection closed")
	ErrRecycled             = NewError(Closed, "recycled before content was consumed")
	ErrBodyTooLarge         = NewError(TooLarge, "request body is too large")
	ErrBadChunk             = NewError(BadChunk, "malformed chunk-encoded data")
	ErrUnsupportedMediaType = NewError(Unsupported, "unsupported media type")
)
