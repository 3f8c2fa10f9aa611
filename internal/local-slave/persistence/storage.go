// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package persistence keeps the simulated slave's tables across runs.
package persistence

import (
	"fmt"
	"log/slog"

	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/internal/local-slave/model"
)

const (
	TypeMemory = "memory"
	TypeMmap   = "mmap"
)

// Storage defines the interface for persisting the local slave data model.
type Storage interface {
	// Load returns the data model, creating an empty one if nothing was stored.
	Load() (*model.DataModel, error)

	// Save saves the current data model to storage.
	Save(model *model.DataModel) error

	// OnWrite is called after every successful write request.
	OnWrite(table model.TableType, address, quantity uint16)

	Close() error
}

// New returns the storage selected by cfg.
func New(cfg config.PersistenceConfig) (Storage, error) {
	switch cfg.Type {
	case "", TypeMemory:
		return NewMemoryStorage(), nil
	case TypeMmap:
		if cfg.Path == "" {
			return nil, fmt.Errorf("mmap persistence requires a path")
		}
		slog.Info("Initializing local slave with MMAP persistence", "path", cfg.Path, "sync", cfg.Sync)
		return NewMmapStorage(cfg.Path, cfg.Sync), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %q", cfg.Type)
	}
}
