package systemd1

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	idbus "github.com/b0bbywan/go-systemctl-mqtt/backend/internal/dbus"
	"github.com/b0bbywan/go-systemctl-mqtt/cache"
)

// scriptedMonitor returns a monitor whose fetch pops states off a script
// and whose publish records what would have gone to MQTT.
func scriptedMonitor(unit string, script []string) (*Monitor, *[]string) {
	var published []string
	index := 0
	m := &Monitor{
		unit:   unit,
		path:   dbus.ObjectPath("/org/freedesktop/systemd1/unit/ssh_2eservice"),
		states: cache.New[string](),
		publish: func(_ context.Context, state string) error {
			published = append(published, state)
			return nil
		},
	}
	m.fetch = func() (string, error) {
		if index >= len(script) {
			return "", errors.New("script exhausted")
		}
		state := script[index]
		index++
		return state, nil
	}
	return m, &published
}

func TestMonitor_CollapsesConsecutiveDuplicates(t *testing.T) {
	// first value always published, consecutive duplicates suppressed,
	// returning to an earlier value published again
	script := []string{"active", "active", "inactive", "inactive", "active"}
	m, published := scriptedMonitor("ssh.service", script)

	ctx := context.Background()
	m.publishInitial(ctx)
	for i := 1; i < len(script); i++ {
		m.refresh(ctx)
	}

	want := []string{"active", "inactive", "active"}
	if len(*published) != len(want) {
		t.Fatalf("published = %v, want %v", *published, want)
	}
	for i := range want {
		if (*published)[i] != want[i] {
			t.Errorf("published[%d] = %q, want %q", i, (*published)[i], want[i])
		}
	}
}

func TestMonitor_InitialPublishUnconditional(t *testing.T) {
	m, published := scriptedMonitor("ssh.service", []string{"inactive"})

	m.publishInitial(context.Background())

	if len(*published) != 1 || (*published)[0] != "inactive" {
		t.Errorf("published = %v, want [inactive]", *published)
	}
}

func TestMonitor_FetchErrorSkipsPublish(t *testing.T) {
	var published []string
	m := &Monitor{
		unit:   "ssh.service",
		states: cache.New[string](),
		publish: func(_ context.Context, state string) error {
			published = append(published, state)
			return nil
		},
		fetch: func() (string, error) { return "", errors.New("no reply") },
	}

	m.publishInitial(context.Background())
	m.refresh(context.Background())

	if len(published) != 0 {
		t.Errorf("nothing should be published when the read fails, got %v", published)
	}
}

func TestMonitor_Matches(t *testing.T) {
	m := &Monitor{
		unit: "ssh.service",
		path: dbus.ObjectPath("/org/freedesktop/systemd1/unit/ssh_2eservice"),
	}

	tests := []struct {
		name string
		sig  *dbus.Signal
		want bool
	}{
		{
			"own PropertiesChanged",
			&dbus.Signal{Name: idbus.PROP_CHANGED_SIGNAL, Path: m.path},
			true,
		},
		{
			"other unit's path",
			&dbus.Signal{
				Name: idbus.PROP_CHANGED_SIGNAL,
				Path: dbus.ObjectPath("/org/freedesktop/systemd1/unit/cron_2eservice"),
			},
			false,
		},
		{
			"other signal name",
			&dbus.Signal{Name: "org.freedesktop.systemd1.Manager.UnitNew", Path: m.path},
			false,
		},
		{"nil signal", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.matches(tt.sig); got != tt.want {
				t.Errorf("matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMonitor_RunLoopProcessesSignalsSequentially(t *testing.T) {
	script := []string{"activating", "active"}
	m, published := scriptedMonitor("ssh.service", script)

	signals := make(chan *dbus.Signal, 2)
	signals <- &dbus.Signal{Name: idbus.PROP_CHANGED_SIGNAL, Path: m.path}
	signals <- &dbus.Signal{Name: idbus.PROP_CHANGED_SIGNAL, Path: m.path}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// cancel once both buffered signals have been drained
		for len(signals) > 0 {
			time.Sleep(5 * time.Millisecond)
		}
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := m.runLoop(ctx, signals)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("runLoop returned %v", err)
	}

	want := []string{"activating", "active"}
	if len(*published) != len(want) {
		t.Fatalf("published = %v, want %v", *published, want)
	}
	for i := range want {
		if (*published)[i] != want[i] {
			t.Errorf("published[%d] = %q, want %q", i, (*published)[i], want[i])
		}
	}
}

func TestMonitor_RunLoopChannelClose(t *testing.T) {
	m, _ := scriptedMonitor("ssh.service", nil)
	signals := make(chan *dbus.Signal)
	close(signals)

	if err := m.runLoop(context.Background(), signals); err == nil {
		t.Error("runLoop should fail when the signal channel closes")
	}
}
