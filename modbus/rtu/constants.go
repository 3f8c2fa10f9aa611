// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

const (
	MinSize = 4
	MaxSize = 256

	ExceptionSize = 5
	// WriteEchoSize is slave id, function, address, value or count and CRC.
	WriteEchoSize = 8

	crcSize = 2
	// readHeaderSize is slave id, function and byte count.
	readHeaderSize = 3
	// headerSize is slave id and function.
	headerSize = 2
)
