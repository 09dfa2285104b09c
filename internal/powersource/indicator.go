// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

package powersource

import (
	"fmt"
	"os"
	"strings"
)

// Indicator reports the current power source synchronously.
type Indicator interface {
	Current() (State, error)
}

// SysfsIndicator reads a boolean-like sysfs attribute such as
// /sys/class/power_supply/AC/online. A missing file means the platform has
// no AC supply object at all, which is treated as battery.
type SysfsIndicator struct {
	path string
}

var _ Indicator = (*SysfsIndicator)(nil)

func NewSysfsIndicator(path string) *SysfsIndicator {
	return &SysfsIndicator{path: path}
}

func (s *SysfsIndicator) Current() (State, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Battery, nil
	}
	if err != nil {
		return Battery, fmt.Errorf("failed to read power source indicator: %w", err)
	}

	if strings.TrimSpace(string(data)) == "1" {
		return AC, nil
	}
	return Battery, nil
}
