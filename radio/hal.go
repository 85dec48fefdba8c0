package radio

import (
	"context"
	"errors"
	"fmt"
	"runtime"
)

// Session level codes reported in ErrorReport.RadioCode.
const (
	CodePowerOn int32 = -(iota + 1)
	CodePowerOff
	CodeConnect
	CodeTimeout
	CodeProtocol
	CodeTransfer
	CodeStorage
)

// HALError is a failure of the modem layer.
type HALError struct {
	Code   int32
	Line   int32
	Vendor int32
	Err    error
}

// NewHALError records the line of the caller as the failing HAL line.
func NewHALError(code, vendor int32, err error) *HALError {
	_, _, line, _ := runtime.Caller(1)
	return &HALError{Code: code, Line: int32(line), Vendor: vendor, Err: err}
}

func (e *HALError) Error() string {
	return fmt.Sprintf("hal error %d (vendor %d) at line %d: %v", e.Code, e.Vendor, e.Line, e.Err)
}

func (e *HALError) Unwrap() error { return e.Err }

// Report builds the error report of err failing with code, the HAL details
// are filled when err wraps a HALError.
func Report(code int32, err error) ErrorReport {
	if errors.Is(err, context.DeadlineExceeded) {
		code = CodeTimeout
	}
	r := ErrorReport{RadioCode: code}
	var he *HALError
	if errors.As(err, &he) {
		r.HALCode = he.Code
		r.HALLine = he.Line
		r.VendorCode = he.Vendor
	}
	return r
}
