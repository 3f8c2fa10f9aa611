// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"unsafe"

	"github.com/ffutop/modbus-master/internal/local-slave/model"
)

// region is the byte range one table occupies in the backing file.
type region struct {
	offset, size int
}

// Tables are laid out back to back in TableType order:
// coils and discrete inputs take one byte per address,
// holding and input registers two bytes per address.
var layout = func() [4]region {
	sizes := [4]int{
		model.TableCoils:            model.MaxAddress + 1,
		model.TableDiscreteInputs:   model.MaxAddress + 1,
		model.TableHoldingRegisters: (model.MaxAddress + 1) * 2,
		model.TableInputRegisters:   (model.MaxAddress + 1) * 2,
	}
	var regions [4]region
	offset := 0
	for i, size := range sizes {
		regions[i] = region{offset: offset, size: size}
		offset += size
	}
	return regions
}()

var totalSize = layout[model.TableInputRegisters].offset + layout[model.TableInputRegisters].size

func (r region) slice(data []byte) []byte {
	return data[r.offset : r.offset+r.size]
}

// mapBytesToModel constructs a DataModel backed by data without copying.
// Registers are viewed in host byte order, so a file is only portable
// between hosts of the same endianness.
func mapBytesToModel(data []byte) *model.DataModel {
	holding := layout[model.TableHoldingRegisters].slice(data)
	input := layout[model.TableInputRegisters].slice(data)
	return &model.DataModel{
		Coils:            layout[model.TableCoils].slice(data),
		DiscreteInputs:   layout[model.TableDiscreteInputs].slice(data),
		HoldingRegisters: unsafe.Slice((*uint16)(unsafe.Pointer(&holding[0])), len(holding)/2),
		InputRegisters:   unsafe.Slice((*uint16)(unsafe.Pointer(&input[0])), len(input)/2),
	}
}
