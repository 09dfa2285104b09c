// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

// Package powersource watches whether the machine runs on AC or battery
// power and emits a deduplicated stream of transitions, preferring event
// subscription over polling.
package powersource

// State is the current power source.
type State int

const (
	Battery State = iota
	AC
)

func (s State) String() string {
	switch s {
	case AC:
		return "AC"
	case Battery:
		return "battery"
	default:
		return "unknown"
	}
}
