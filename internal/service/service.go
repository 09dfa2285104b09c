// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

package service

import "context"

// Service is the interface all services must implement
type Service interface {
	// Name returns the name of the service
	Name() string
}

// Initializer is implemented by services that need one-time setup before Run
type Initializer interface {
	Service
	Init() error
}

// Runner is implemented by services that run in the background
type Runner interface {
	Service
	// Run blocks until ctx is cancelled or the service fails
	Run(ctx context.Context) error
}

// Shutdowner is implemented by services that hold resources to release
type Shutdowner interface {
	Service
	Shutdown() error
}
