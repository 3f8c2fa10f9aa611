// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned before any I/O when a count, value or
	// slave id is outside the legal bounds of the function.
	ErrInvalidArgument = errors.New("modbus: invalid argument")

	// ErrNoResponse is returned when nothing arrived within the poll budget.
	ErrNoResponse = errors.New("modbus: no response from slave")

	// ErrFrameCorruption is returned for a non-empty response whose CRC does
	// not match or which is too short to be a frame.
	ErrFrameCorruption = errors.New("modbus: frame corruption")

	ErrAddressMismatch  = errors.New("modbus: response slave id does not match request")
	ErrFunctionMismatch = errors.New("modbus: response function code does not match request")

	// ErrDecode is returned when a payload does not fit the requested quantity.
	ErrDecode = errors.New("modbus: decode error")
)

// ExceptionError is returned when the slave answered with an exception response.
type ExceptionError struct {
	FunctionCode byte
	Code         byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus: slave exception %d (%s) for %s", e.Code, ExceptionName(e.Code), FunctionName(e.FunctionCode))
}

// ExceptionName returns the Modbus name of an exception code.
func ExceptionName(code byte) string {
	switch code {
	case ExceptionCodeIllegalFunction:
		return "illegal function"
	case ExceptionCodeIllegalDataAddress:
		return "illegal data address"
	case ExceptionCodeIllegalDataValue:
		return "illegal data value"
	case ExceptionCodeServerDeviceFailure:
		return "server device failure"
	case ExceptionCodeAcknowledge:
		return "acknowledge"
	case ExceptionCodeServerDeviceBusy:
		return "server device busy"
	case ExceptionCodeMemoryParityError:
		return "memory parity error"
	case ExceptionCodeGatewayPathUnavailable:
		return "gateway path unavailable"
	case ExceptionCodeGatewayTargetDeviceFailedToRespond:
		return "gateway target device failed to respond"
	}
	return "unknown exception"
}

// AsException unwraps err into an *ExceptionError if it carries one.
func AsException(err error) (*ExceptionError, bool) {
	var e *ExceptionError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
