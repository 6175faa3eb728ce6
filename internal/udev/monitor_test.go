// SPDX-License-Identifier: GPL-3.0-only

package udev

import (
	"errors"
	"sync"
	"syscall"
	"testing"

	"github.com/pilebones/go-udev/netlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMonitor(t *testing.T) {
	called := false
	handler := func(event Event) {
		called = true
	}

	monitor := NewMonitor(handler)

	require.NotNil(t, monitor)
	assert.NotNil(t, monitor.handler)
	assert.False(t, called)
}

func TestCreateMatcher(t *testing.T) {
	monitor := NewMonitor(nil)
	rules := monitor.createMatcher()

	require.NotNil(t, rules)
	require.Len(t, rules.Rules, 1)

	rule := rules.Rules[0]
	require.NotNil(t, rule.Action)
	assert.Equal(t, "change", *rule.Action)
	assert.Equal(t, "^drm$", rule.Env["SUBSYSTEM"])
	assert.Equal(t, "^1$", rule.Env[HotplugEnvKey])
}

func TestHandleEvent(t *testing.T) {
	tests := []struct {
		name       string
		uevent     netlink.UEvent
		wantEvents []Event
	}{
		{
			name: "hot-plug change event dispatched",
			uevent: netlink.UEvent{
				Action: netlink.CHANGE,
				KObj:   "/devices/pci0000:00/0000:00:02.0/drm/card1",
				Env: map[string]string{
					"SUBSYSTEM":   "drm",
					HotplugEnvKey: "1",
				},
			},
			wantEvents: []Event{
				{DevPath: "/devices/pci0000:00/0000:00:02.0/drm/card1"},
			},
		},
		{
			name: "change without hotplug flag ignored",
			uevent: netlink.UEvent{
				Action: netlink.CHANGE,
				KObj:   "/devices/pci0000:00/0000:00:02.0/drm/card1",
				Env: map[string]string{
					"SUBSYSTEM": "drm",
				},
			},
			wantEvents: nil,
		},
		{
			name: "add event ignored",
			uevent: netlink.UEvent{
				Action: netlink.ADD,
				KObj:   "/devices/pci0000:00/0000:00:02.0/drm/card1",
				Env: map[string]string{
					"SUBSYSTEM":   "drm",
					HotplugEnvKey: "1",
				},
			},
			wantEvents: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				mu     sync.Mutex
				events []Event
			)
			monitor := NewMonitor(func(event Event) {
				mu.Lock()
				defer mu.Unlock()
				events = append(events, event)
			})

			monitor.handleEvent(tt.uevent)

			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, tt.wantEvents, events)
		})
	}
}

func TestHandleEventNilHandler(t *testing.T) {
	monitor := NewMonitor(nil)

	// Must not panic
	monitor.handleEvent(netlink.UEvent{
		Action: netlink.CHANGE,
		KObj:   "/devices/pci0000:00/0000:00:02.0/drm/card1",
		Env: map[string]string{
			HotplugEnvKey: "1",
		},
	})
}

func TestIsBufferOverflowError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "ENOBUFS",
			err:  syscall.ENOBUFS,
			want: true,
		},
		{
			name: "wrapped ENOBUFS",
			err:  errors.Join(errors.New("recv failed"), syscall.ENOBUFS),
			want: true,
		},
		{
			name: "message match",
			err:  errors.New("unable to read: No buffer space available"),
			want: true,
		},
		{
			name: "unrelated error",
			err:  errors.New("connection reset"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isBufferOverflowError(tt.err))
		})
	}
}

func TestSetRecoveryHandler(t *testing.T) {
	monitor := NewMonitor(nil)

	called := false
	monitor.SetRecoveryHandler(func() {
		called = true
	})

	monitor.mu.Lock()
	handler := monitor.recoveryHandler
	monitor.mu.Unlock()

	require.NotNil(t, handler)
	handler()
	assert.True(t, called)
}

func TestStopWithoutStart(t *testing.T) {
	monitor := NewMonitor(nil)
	assert.NoError(t, monitor.Stop())
}
