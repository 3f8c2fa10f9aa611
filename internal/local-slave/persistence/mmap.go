// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/ffutop/modbus-master/internal/local-slave/model"
)

// MmapStorage backs the data model with a memory-mapped file laid out as
// described by layout. Writes mark their table dirty; dirty tables are
// flushed after each write when sync is set, and on Save or Close otherwise.
type MmapStorage struct {
	path string
	sync bool

	file  *os.File
	data  mmap.MMap
	dirty [len(layout)]bool
}

// NewMmapStorage creates an MmapStorage over the file at path.
func NewMmapStorage(path string, sync bool) *MmapStorage {
	return &MmapStorage{path: path, sync: sync}
}

// Load maps the file, creating or resizing it to totalSize. Later calls
// return a model over the same mapping.
func (ms *MmapStorage) Load() (*model.DataModel, error) {
	if ms.data == nil {
		f, err := openSized(ms.path, int64(totalSize))
		if err != nil {
			return nil, err
		}
		data, err := mmap.Map(f, mmap.RDWR, 0)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("mmap %s: %w", ms.path, err)
		}
		ms.file, ms.data = f, data
	}
	return mapBytesToModel(ms.data), nil
}

// Save flushes the tables written since the last flush.
func (ms *MmapStorage) Save(*model.DataModel) error {
	if ms.data == nil {
		return errors.New("mmap storage is not loaded")
	}
	return ms.flush()
}

// OnWrite records that table changed and flushes it in sync mode.
func (ms *MmapStorage) OnWrite(table model.TableType, address, quantity uint16) {
	if ms.data == nil || table < 0 || int(table) >= len(layout) {
		return
	}
	ms.dirty[table] = true
	if !ms.sync {
		return
	}
	if err := ms.flush(); err != nil {
		slog.Error("Failed to flush mmap", "table", table, "address", address, "quantity", quantity, "err", err)
	}
}

// Close flushes pending writes, unmaps and closes the file.
func (ms *MmapStorage) Close() error {
	var errs []error
	if ms.data != nil {
		errs = append(errs, ms.flush(), ms.data.Unmap())
		ms.data = nil
	}
	if ms.file != nil {
		errs = append(errs, ms.file.Close())
		ms.file = nil
	}
	return errors.Join(errs...)
}

// pending reports whether any table has unflushed writes.
func (ms *MmapStorage) pending() bool {
	for _, d := range ms.dirty {
		if d {
			return true
		}
	}
	return false
}

func (ms *MmapStorage) flush() error {
	if !ms.pending() {
		return nil
	}
	if err := ms.data.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", ms.path, err)
	}
	for table, d := range ms.dirty {
		if d {
			r := layout[table]
			slog.Debug("mmap flushed", "table", model.TableType(table), "offset", r.offset, "size", r.size)
		}
	}
	ms.dirty = [len(layout)]bool{}
	return nil
}

// openSized opens or creates path and makes it exactly size bytes long.
func openSized(path string, size int64) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("resize %s: %w", path, err)
		}
	}
	return f, nil
}
