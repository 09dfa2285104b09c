// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

package powersource

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateFromEvent(t *testing.T) {
	tests := []struct {
		name     string
		props    map[string]any
		expected State
		wantErr  bool
	}{
		{name: "bool true", props: map[string]any{"Online": true}, expected: AC},
		{name: "bool false", props: map[string]any{"Online": false}, expected: Battery},
		{name: "nonzero int64", props: map[string]any{"Online": int64(1)}, expected: AC},
		{name: "zero int64", props: map[string]any{"Online": int64(0)}, expected: Battery},
		{name: "nonzero uint32", props: map[string]any{"Online": uint32(2)}, expected: AC},
		{name: "missing property", props: map[string]any{"IconName": "ac-adapter"}, wantErr: true},
		{name: "no properties at all", props: nil, wantErr: true},
		{name: "unexpected type", props: map[string]any{"Online": "yes"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := stateFromEvent(Event{Props: tt.props})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, state)
		})
	}
}

func TestEventFromSignal(t *testing.T) {
	t.Run("properties-changed signal", func(t *testing.T) {
		sig := &dbus.Signal{
			Name: propsChangedName,
			Path: dbus.ObjectPath(acLinePowerObject),
			Body: []any{
				"org.freedesktop.UPower.Device",
				map[string]dbus.Variant{"Online": dbus.MakeVariant(true)},
				[]string{},
			},
		}

		ev := eventFromSignal(sig)
		assert.Equal(t, true, ev.Props["Online"])
	})

	t.Run("unrelated signal yields no properties", func(t *testing.T) {
		sig := &dbus.Signal{Name: "org.freedesktop.DBus.NameOwnerChanged", Body: []any{"x", "y", "z"}}
		assert.Nil(t, eventFromSignal(sig).Props)
	})

	t.Run("truncated body yields no properties", func(t *testing.T) {
		sig := &dbus.Signal{Name: propsChangedName, Body: []any{"org.freedesktop.UPower.Device"}}
		assert.Nil(t, eventFromSignal(sig).Props)
	})
}
