package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
)

type scheduledShutdown struct {
	action string
	delay  time.Duration
}

type fakeLogin struct {
	inhibitFD    dbus.UnixFD
	inhibitErr   error
	inhibitCalls int

	scheduled []scheduledShutdown
	suspends  int
	locks     int

	preparing    bool
	preparingErr error
}

func (f *fakeLogin) InhibitShutdownDelay() (dbus.UnixFD, error) {
	f.inhibitCalls++
	return f.inhibitFD, f.inhibitErr
}

func (f *fakeLogin) ScheduleShutdown(action string, delay time.Duration) error {
	f.scheduled = append(f.scheduled, scheduledShutdown{action: action, delay: delay})
	return nil
}

func (f *fakeLogin) Suspend() error {
	f.suspends++
	return nil
}

func (f *fakeLogin) LockAllSessions() error {
	f.locks++
	return nil
}

func (f *fakeLogin) PreparingForShutdown() (bool, error) {
	return f.preparing, f.preparingErr
}

type publishRecord struct {
	topic   string
	payload string
	retain  bool
}

type fakePublisher struct {
	records []publishRecord
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, payload []byte, retain bool) error {
	f.records = append(f.records, publishRecord{topic: topic, payload: string(payload), retain: retain})
	return f.err
}

func newTestState(login *fakeLogin, units unitManager) (*State, *fakePublisher) {
	publisher := &fakePublisher{}
	s := &State{
		topicPrefix:       "systemctl/host",
		discoveryPrefix:   "homeassistant",
		discoveryObjectID: "host",
		hostname:          "host",
		poweroffDelay:     4 * time.Second,
		login:             login,
		units:             units,
		publisher:         publisher,
	}
	return s, publisher
}

// stubCloser replaces closeInhibitFD for the test's duration and counts
// which descriptors got closed.
func stubCloser(t *testing.T) *[]dbus.UnixFD {
	t.Helper()
	var closed []dbus.UnixFD
	orig := closeInhibitFD
	closeInhibitFD = func(fd dbus.UnixFD) error {
		closed = append(closed, fd)
		return nil
	}
	t.Cleanup(func() { closeInhibitFD = orig })
	return &closed
}

func TestAcquireShutdownLock(t *testing.T) {
	stubCloser(t)
	login := &fakeLogin{inhibitFD: 7}
	s, _ := newTestState(login, nil)

	if err := s.AcquireShutdownLock(); err != nil {
		t.Fatalf("AcquireShutdownLock() error: %v", err)
	}
	if !s.ShutdownLockHeld() {
		t.Error("lock should be held after acquire")
	}
	if login.inhibitCalls != 1 {
		t.Errorf("inhibit called %d times, want 1", login.inhibitCalls)
	}
}

func TestAcquireShutdownLock_Error(t *testing.T) {
	login := &fakeLogin{inhibitErr: errors.New("access denied")}
	s, _ := newTestState(login, nil)

	if err := s.AcquireShutdownLock(); err == nil {
		t.Fatal("AcquireShutdownLock() should fail when Inhibit fails")
	}
	if s.ShutdownLockHeld() {
		t.Error("lock must not be marked held after a failed acquire")
	}
}

func TestAcquireShutdownLock_TwicePanics(t *testing.T) {
	stubCloser(t)
	s, _ := newTestState(&fakeLogin{inhibitFD: 7}, nil)
	if err := s.AcquireShutdownLock(); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("second acquire should panic")
		}
	}()
	_ = s.AcquireShutdownLock()
}

func TestReleaseShutdownLock_ClosesDescriptorOnce(t *testing.T) {
	closed := stubCloser(t)
	s, _ := newTestState(&fakeLogin{inhibitFD: 7}, nil)
	if err := s.AcquireShutdownLock(); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	s.ReleaseShutdownLock()
	s.ReleaseShutdownLock()

	if len(*closed) != 1 || (*closed)[0] != 7 {
		t.Errorf("closed = %v, want [7]", *closed)
	}
	if s.ShutdownLockHeld() {
		t.Error("lock should not be held after release")
	}
}

func TestReleaseShutdownLock_UnheldIsNoop(t *testing.T) {
	closed := stubCloser(t)
	s, _ := newTestState(&fakeLogin{}, nil)

	s.ReleaseShutdownLock()

	if len(*closed) != 0 {
		t.Errorf("nothing should be closed, got %v", *closed)
	}
}

func TestHandlePreparingForShutdown_Sequence(t *testing.T) {
	// signal sequence [false, true, false] starting from a held lock:
	// every edge is published, and the lock toggles release-then-acquire
	// exactly at the true -> false boundary.
	closed := stubCloser(t)
	login := &fakeLogin{inhibitFD: 7}
	s, publisher := newTestState(login, nil)
	if err := s.AcquireShutdownLock(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	login.inhibitCalls = 0

	ctx := context.Background()
	for _, active := range []bool{false, true, false} {
		if err := s.HandlePreparingForShutdown(ctx, active); err != nil {
			t.Fatalf("HandlePreparingForShutdown(%v) error: %v", active, err)
		}
	}

	wantPayloads := []string{"false", "true", "false"}
	if len(publisher.records) != len(wantPayloads) {
		t.Fatalf("published %v, want payloads %v", publisher.records, wantPayloads)
	}
	for i, record := range publisher.records {
		if record.topic != "systemctl/host/preparing-for-shutdown" {
			t.Errorf("records[%d].topic = %q", i, record.topic)
		}
		if record.payload != wantPayloads[i] {
			t.Errorf("records[%d].payload = %q, want %q", i, record.payload, wantPayloads[i])
		}
		if !record.retain {
			t.Errorf("records[%d] must be retained", i)
		}
	}

	// first false: lock already held, no re-acquire; true: release;
	// final false: acquire again
	if len(*closed) != 1 {
		t.Errorf("release count = %d, want 1", len(*closed))
	}
	if login.inhibitCalls != 1 {
		t.Errorf("acquire count = %d, want 1", login.inhibitCalls)
	}
	if !s.ShutdownLockHeld() {
		t.Error("lock should be held again after the cancelled shutdown")
	}
}

func TestHandlePreparingForShutdown_PublishFailureStillReleases(t *testing.T) {
	closed := stubCloser(t)
	s, publisher := newTestState(&fakeLogin{inhibitFD: 7}, nil)
	if err := s.AcquireShutdownLock(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	publisher.err = errors.New("broker gone")

	if err := s.HandlePreparingForShutdown(context.Background(), true); err != nil {
		t.Fatalf("HandlePreparingForShutdown() error: %v", err)
	}
	if len(*closed) != 1 {
		t.Error("lock must be released even when the publish fails")
	}
}

func TestPublishPreparingForShutdown_Snapshot(t *testing.T) {
	s, publisher := newTestState(&fakeLogin{preparing: true}, nil)

	s.PublishPreparingForShutdown(context.Background())

	if len(publisher.records) != 1 {
		t.Fatalf("records = %v, want one publish", publisher.records)
	}
	record := publisher.records[0]
	if record.topic != "systemctl/host/preparing-for-shutdown" || record.payload != "true" || !record.retain {
		t.Errorf("record = %+v", record)
	}
}

func TestPublishPreparingForShutdown_ReadErrorSkipsPublish(t *testing.T) {
	s, publisher := newTestState(&fakeLogin{preparingErr: errors.New("no reply")}, nil)

	s.PublishPreparingForShutdown(context.Background())

	if len(publisher.records) != 0 {
		t.Errorf("nothing should be published on a read failure, got %v", publisher.records)
	}
}

func TestPublishUnitActiveState(t *testing.T) {
	s, publisher := newTestState(&fakeLogin{}, nil)

	if err := s.PublishUnitActiveState(context.Background(), "ssh.service", "active"); err != nil {
		t.Fatalf("PublishUnitActiveState() error: %v", err)
	}
	record := publisher.records[0]
	if record.topic != "systemctl/host/unit/system/ssh.service/active-state" {
		t.Errorf("topic = %q", record.topic)
	}
	if record.payload != "active" || !record.retain {
		t.Errorf("record = %+v", record)
	}
}
