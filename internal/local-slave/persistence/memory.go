// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import "github.com/ffutop/modbus-master/internal/local-slave/model"

// MemoryStorage holds the data model for the lifetime of the process.
// Every Load returns the same tables, so a reopened device keeps its values.
type MemoryStorage struct {
	m *model.DataModel
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (ms *MemoryStorage) Load() (*model.DataModel, error) {
	if ms.m == nil {
		ms.m = model.NewDataModel()
	}
	return ms.m, nil
}

// Save adopts m as the model returned by later loads.
func (ms *MemoryStorage) Save(m *model.DataModel) error {
	ms.m = m
	return nil
}

func (ms *MemoryStorage) OnWrite(model.TableType, uint16, uint16) {}

func (ms *MemoryStorage) Close() error { return nil }
