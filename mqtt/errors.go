package mqtt

// NotConnectedError is returned when a publish is attempted before the
// connection manager exists.
type NotConnectedError struct{}

func (e *NotConnectedError) Error() string {
	return "mqtt client is not connected"
}
