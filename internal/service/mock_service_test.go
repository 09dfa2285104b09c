// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

package service

import "context"

type mockService struct {
	name string
}

func (m *mockService) Name() string {
	return m.name
}

// mockInitShutdown implements Initializer and Shutdowner
type mockInitShutdown struct {
	mockService
	initFn        func() error
	shutdownFn    func() error
	initCount     int
	shutdownCount int
}

func (m *mockInitShutdown) Init() error {
	m.initCount++
	if m.initFn != nil {
		return m.initFn()
	}
	return nil
}

func (m *mockInitShutdown) Shutdown() error {
	m.shutdownCount++
	if m.shutdownFn != nil {
		return m.shutdownFn()
	}
	return nil
}

// mockRunner implements Runner and Shutdowner
type mockRunner struct {
	mockService
	runFn         func(ctx context.Context) error
	runCount      int
	shutdownCount int
}

func (m *mockRunner) Run(ctx context.Context) error {
	m.runCount++
	if m.runFn != nil {
		return m.runFn(ctx)
	}
	return nil
}

func (m *mockRunner) Shutdown() error {
	m.shutdownCount++
	return nil
}
