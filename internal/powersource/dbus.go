// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

package powersource

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	propsInterface    = "org.freedesktop.DBus.Properties"
	propsChangedName  = propsInterface + ".PropertiesChanged"
	acLinePowerObject = "/org/freedesktop/UPower/devices/line_power_AC"
)

// DBusEventSource subscribes to PropertiesChanged signals for the UPower AC
// line-power object on the system bus.
type DBusEventSource struct {
	objectPath dbus.ObjectPath
	conn       *dbus.Conn
}

var _ EventSource = (*DBusEventSource)(nil)

func NewDBusEventSource() *DBusEventSource {
	return &DBusEventSource{objectPath: dbus.ObjectPath(acLinePowerObject)}
}

func (s *DBusEventSource) Subscribe(ctx context.Context) (<-chan Event, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(propsInterface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchObjectPath(s.objectPath),
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to add signal match: %w", err)
	}
	s.conn = conn

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)

	events := make(chan Event)
	go pump(ctx, signals, events)
	return events, nil
}

func (s *DBusEventSource) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// pump converts raw signals into Events until the subscription ends.
func pump(ctx context.Context, signals <-chan *dbus.Signal, events chan<- Event) {
	defer close(events)

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			select {
			case events <- eventFromSignal(sig):
			case <-ctx.Done():
				return
			}
		}
	}
}

// eventFromSignal extracts the changed-properties map from a
// PropertiesChanged signal body: [interface, changed, invalidated].
// Anything else yields an event with no properties, which the monitor
// rejects as a protocol error.
func eventFromSignal(sig *dbus.Signal) Event {
	if sig.Name != propsChangedName || len(sig.Body) < 2 {
		return Event{}
	}

	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return Event{}
	}

	props := make(map[string]any, len(changed))
	for name, variant := range changed {
		props[name] = variant.Value()
	}
	return Event{Props: props}
}
