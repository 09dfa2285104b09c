// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"fmt"
	"log/slog"
	"os"
)

// Init initializes every service implementing Initializer, in order. If one
// fails, services initialized so far are shut down in reverse order and the
// failure is returned.
func Init(logger *slog.Logger, services []Service) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	var initialized []Shutdowner
	for _, s := range services {
		ini, ok := s.(Initializer)
		if !ok {
			continue
		}

		logger.Info("Initializing service", "service", s.Name())
		if err := ini.Init(); err != nil {
			shutdownAll(logger, initialized)
			return fmt.Errorf("failed to initialize service %s: %w", s.Name(), err)
		}

		if sd, ok := s.(Shutdowner); ok {
			initialized = append(initialized, sd)
		}
	}

	return nil
}

func shutdownAll(logger *slog.Logger, services []Shutdowner) {
	for i := len(services) - 1; i >= 0; i-- {
		s := services[i]
		if err := s.Shutdown(); err != nil {
			logger.Error("failed to shutdown service", "service", s.Name(), "error", err)
		}
	}
}
