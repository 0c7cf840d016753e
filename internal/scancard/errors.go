package scancard

import (
	"errors"
	"fmt"
	"net"
)

var (
	// ErrNoResponse is returned when the device closes the connection
	// without sending any bytes.
	ErrNoResponse = errors.New("no response received")
	// ErrNoObject is returned when the reply holds no complete JSON object.
	ErrNoObject = errors.New("no complete JSON object in response")
	// ErrMissingRet is returned when the reply object has no integer ret field.
	ErrMissingRet = errors.New("response has no ret field")
)

// TransportError indicates the request never completed a round trip:
// connect, write, or read failed or timed out.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a timeout. A connection closed
// without any reply is treated as one.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, ErrNoResponse) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// DecodeError indicates the device replied but the reply could not be parsed.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DeviceError indicates a well-formed reply whose ret is not success.
type DeviceError struct {
	Command string
	Ret     int
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s: ret %d: %s", e.Command, e.Ret, ErrorDescription(e.Ret))
}

// Description returns the human-readable meaning of the ret code.
func (e *DeviceError) Description() string {
	return ErrorDescription(e.Ret)
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsDecode reports whether err is a DecodeError.
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsDevice reports whether err is a DeviceError.
func IsDevice(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}
