// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

package powersource

import (
	"context"
	"errors"
	"fmt"
)

// ErrMalformedEvent reports a notification that does not match the expected
// property-change shape. The monitor treats it as a protocol error and falls
// back to polling.
var ErrMalformedEvent = errors.New("malformed power source event")

// onlineProperty is the boolean/integer property carried by change
// notifications for the AC power object.
const onlineProperty = "Online"

// Event is one property-change notification scoped to the AC power object.
type Event struct {
	// Props maps changed property names to their new values.
	Props map[string]any
}

// EventSource delivers property-change notifications for the AC power
// object. The returned channel is closed when the subscription ends.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
	Close() error
}

// stateFromEvent maps the event's Online property to a power state:
// zero/false means battery, anything else AC.
func stateFromEvent(ev Event) (State, error) {
	val, ok := ev.Props[onlineProperty]
	if !ok {
		return Battery, fmt.Errorf("%w: missing %q property", ErrMalformedEvent, onlineProperty)
	}

	var online bool
	switch v := val.(type) {
	case bool:
		online = v
	case int:
		online = v != 0
	case int16:
		online = v != 0
	case int32:
		online = v != 0
	case int64:
		online = v != 0
	case uint16:
		online = v != 0
	case uint32:
		online = v != 0
	case uint64:
		online = v != 0
	default:
		return Battery, fmt.Errorf("%w: %q has unexpected type %T", ErrMalformedEvent, onlineProperty, val)
	}

	if online {
		return AC, nil
	}
	return Battery, nil
}
