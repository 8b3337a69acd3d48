package vault

import "fmt"

// UnknownTopicError is returned when a log's topic0 matches no known vault event.
type UnknownTopicError struct {
	Topic0 string
}

func (e *UnknownTopicError) Error() string {
	return "unknown topic0: " + e.Topic0
}

// DecodeError is returned when a log matches a known signature (or cannot be matched at all)
// but its topics or data are malformed.
type DecodeError struct {
	Event string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("decode log: %v", e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Event, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
