package netboot

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/muurk/devadmin/internal/core"
)

type fakeStack struct {
	mu       sync.Mutex
	address  net.IP
	linked   string
	apIP     net.IP
	apErr    error
	joins    []string
	apStarts int
	apStops  int
	lastAP   AccessPointConfig
	networks []Network
	disconns int
}

func (s *fakeStack) JoinStation(ctx context.Context, ssid, passphrase string) error {
	s.mu.Lock()
	s.joins = append(s.joins, ssid)
	s.mu.Unlock()
	return nil
}

func (s *fakeStack) StationAddress(ctx context.Context, ssid string) (net.IP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.linked != ssid {
		return nil, nil
	}
	return s.address, nil
}

func (s *fakeStack) StartAccessPoint(ctx context.Context, cfg AccessPointConfig) (net.IP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.apErr != nil {
		return nil, s.apErr
	}
	s.apStarts++
	s.lastAP = cfg
	return s.apIP, nil
}

func (s *fakeStack) StopAccessPoint(ctx context.Context) error {
	s.mu.Lock()
	s.apStops++
	s.mu.Unlock()
	return nil
}

func (s *fakeStack) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	s.disconns++
	s.mu.Unlock()
	return nil
}

func (s *fakeStack) Scan(ctx context.Context) ([]Network, error) {
	return s.networks, nil
}

func (s *fakeStack) linkUp(ssid, ip string) {
	s.mu.Lock()
	s.linked = ssid
	s.address = net.ParseIP(ip)
	s.mu.Unlock()
}

type fakeResponder struct {
	mu       sync.Mutex
	startErr error
	started  int
	stopped  int
	ip       net.IP
}

func (r *fakeResponder) Start(ip net.IP) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.started++
	r.ip = ip
	return nil
}

func (r *fakeResponder) Run(ctx context.Context) { <-ctx.Done() }

func (r *fakeResponder) Stop() error {
	r.mu.Lock()
	r.stopped++
	r.mu.Unlock()
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	dev   *core.Device
	stack *fakeStack
	dns   *fakeResponder
	clock *fakeClock
	boot  *Bootstrapper
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		dev:   core.NewDevice("tap", ""),
		stack: &fakeStack{apIP: net.ParseIP("192.168.4.1")},
		dns:   &fakeResponder{},
		clock: &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	h.boot = New(h.dev, h.stack, Options{
		Responder:   h.dns,
		Now:         h.clock.Now,
		AccessPoint: AccessPointConfig{SSID: "tap-setup", Passphrase: "letmein123"},
	})
	return h
}

func receive(t *testing.T, ch <-chan Result) (Result, bool) {
	t.Helper()
	select {
	case r, ok := <-ch:
		return r, ok
	case <-time.After(time.Second):
		t.Fatal("result channel neither delivered nor closed")
		return Result{}, false
	}
}

func pending(ch <-chan Result) bool {
	select {
	case <-ch:
		return false
	default:
		return true
	}
}

func TestConnectSucceeds(t *testing.T) {
	h := newHarness(t)

	ch := h.boot.Connect("home", "secret", 5*time.Second)
	if got := h.dev.Mode(); got != core.ModeConnectingStation {
		t.Fatalf("Mode() = %v, want %v", got, core.ModeConnectingStation)
	}

	h.boot.Poll()
	if !pending(ch) {
		t.Fatal("attempt settled before link-up")
	}

	h.stack.linkUp("home", "192.168.1.20")
	h.clock.Advance(time.Second)
	h.boot.Poll()

	r, ok := receive(t, ch)
	if !ok {
		t.Fatal("channel closed without result")
	}
	if r.Err != nil || r.Fallback {
		t.Fatalf("Result = %+v, want station success", r)
	}
	if !r.Address.Equal(net.ParseIP("192.168.1.20")) {
		t.Errorf("Address = %v, want 192.168.1.20", r.Address)
	}
	if h.dev.Mode() != core.ModeConnected {
		t.Errorf("Mode() = %v, want %v", h.dev.Mode(), core.ModeConnected)
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after its single result")
	}
	if _, ok := h.boot.Pending(); ok {
		t.Error("no attempt should remain after success")
	}
}

func TestConnectIgnoresOtherNetworkLink(t *testing.T) {
	h := newHarness(t)
	h.stack.linkUp("home", "192.168.1.20")

	ch := h.boot.ConnectNoFallback("office", "secret", 5*time.Second)
	h.clock.Advance(time.Second)
	h.boot.Poll()

	if !pending(ch) {
		t.Fatal("attempt for office settled on the existing home link")
	}
	if h.dev.Mode() != core.ModeConnectingStation {
		t.Errorf("Mode() = %v, want %v", h.dev.Mode(), core.ModeConnectingStation)
	}

	h.stack.linkUp("office", "10.1.0.9")
	h.boot.Poll()

	r, ok := receive(t, ch)
	if !ok || r.Err != nil {
		t.Fatalf("Result = %+v, %v, want office success", r, ok)
	}
	if !r.Address.Equal(net.ParseIP("10.1.0.9")) {
		t.Errorf("Address = %v, want 10.1.0.9", r.Address)
	}
}

func TestConnectTimeoutFallsBack(t *testing.T) {
	h := newHarness(t)

	ch := h.boot.Connect("home", "secret", 5000*time.Millisecond)

	h.clock.Advance(4999 * time.Millisecond)
	h.boot.Poll()
	if h.dev.Mode() != core.ModeConnectingStation {
		t.Fatalf("Mode() = %v before deadline, want connecting", h.dev.Mode())
	}

	h.clock.Advance(time.Millisecond)
	h.boot.Poll()

	r, ok := receive(t, ch)
	if !ok {
		t.Fatal("channel closed without result")
	}
	if !r.Fallback || r.Err != nil {
		t.Fatalf("Result = %+v, want fallback", r)
	}
	if !r.Address.Equal(net.ParseIP("192.168.4.1")) {
		t.Errorf("Address = %v, want access point address", r.Address)
	}
	if h.dev.Mode() != core.ModeAccessPointFallback {
		t.Errorf("Mode() = %v, want %v", h.dev.Mode(), core.ModeAccessPointFallback)
	}
	if !h.dev.Address().Equal(net.ParseIP("192.168.4.1")) {
		t.Errorf("device Address() = %v", h.dev.Address())
	}
	if h.dns.started != 1 || !h.boot.CaptiveDNSActive() {
		t.Errorf("captive DNS started %d times, active=%v", h.dns.started, h.boot.CaptiveDNSActive())
	}
	ap, ok := h.boot.AccessPoint()
	if !ok || ap.SSID != "tap-setup" || ap.RedirectTargetHost != "192.168.4.1" {
		t.Errorf("AccessPoint() = %+v, %v", ap, ok)
	}
	if h.stack.lastAP.Passphrase != "letmein123" {
		t.Errorf("access point passphrase = %q, want caller-supplied", h.stack.lastAP.Passphrase)
	}
}

func TestFallbackHappensOnce(t *testing.T) {
	h := newHarness(t)
	h.boot.Connect("home", "secret", time.Second)

	for i := 0; i < 10; i++ {
		h.clock.Advance(time.Second)
		h.boot.Poll()
	}

	if h.stack.apStarts != 1 {
		t.Errorf("access point started %d times, want 1", h.stack.apStarts)
	}
	if h.dns.started != 1 {
		t.Errorf("DNS responder started %d times, want 1", h.dns.started)
	}

	// A late link-up does not pull the device out of fallback on its own.
	h.stack.linkUp("home", "192.168.1.20")
	h.boot.Poll()
	if h.dev.Mode() != core.ModeAccessPointFallback {
		t.Errorf("Mode() = %v, want to stay in fallback", h.dev.Mode())
	}
}

func TestConnectNoFallbackTimesOut(t *testing.T) {
	h := newHarness(t)

	ch := h.boot.ConnectNoFallback("home", "secret", time.Second)
	h.clock.Advance(2 * time.Second)
	h.boot.Poll()

	r, ok := receive(t, ch)
	if !ok {
		t.Fatal("channel closed without result")
	}
	if !core.IsNetworkError(r.Err) {
		t.Fatalf("Err = %v, want network error", r.Err)
	}
	if h.dev.Mode() != core.ModeUnconfigured {
		t.Errorf("Mode() = %v, want %v", h.dev.Mode(), core.ModeUnconfigured)
	}
	if h.stack.apStarts != 0 || h.dns.started != 0 {
		t.Error("no-fallback variant must not start the access point")
	}
}

func TestSecondConnectCancelsFirst(t *testing.T) {
	h := newHarness(t)

	first := h.boot.Connect("first", "a", 5*time.Second)
	second := h.boot.Connect("second", "b", 5*time.Second)

	if r, ok := receive(t, first); ok {
		t.Fatalf("first attempt settled with %+v, want closed without value", r)
	}

	h.stack.linkUp("second", "10.0.0.7")
	h.boot.Poll()

	r, ok := receive(t, second)
	if !ok || r.Err != nil {
		t.Fatalf("second attempt = %+v, %v", r, ok)
	}
	a, ok := h.boot.Pending()
	if ok {
		t.Errorf("Pending() = %+v, want none", a)
	}
}

func TestMixedVariantsCancel(t *testing.T) {
	h := newHarness(t)

	first := h.boot.ConnectNoFallback("first", "a", time.Second)
	second := h.boot.Connect("second", "b", time.Second)

	if _, ok := receive(t, first); ok {
		t.Fatal("first attempt should be cancelled")
	}

	h.clock.Advance(2 * time.Second)
	h.boot.Poll()

	r, _ := receive(t, second)
	if !r.Fallback {
		t.Errorf("second attempt = %+v, want its own fallback outcome", r)
	}
}

func TestConnectLeavesFallback(t *testing.T) {
	h := newHarness(t)
	h.boot.Connect("home", "secret", time.Second)
	h.clock.Advance(time.Second)
	h.boot.Poll()

	h.boot.Connect("home", "new-secret", time.Second)
	if h.stack.apStops != 1 {
		t.Errorf("access point stopped %d times, want 1", h.stack.apStops)
	}
	if h.dns.stopped != 1 || h.boot.CaptiveDNSActive() {
		t.Errorf("captive DNS stopped %d times, active=%v", h.dns.stopped, h.boot.CaptiveDNSActive())
	}
	if h.dev.Mode() != core.ModeConnectingStation {
		t.Errorf("Mode() = %v, want %v", h.dev.Mode(), core.ModeConnectingStation)
	}
}

func TestEmptySSIDFallsBackImmediately(t *testing.T) {
	h := newHarness(t)

	ch := h.boot.Connect("", "", time.Minute)
	h.boot.Poll()

	r, _ := receive(t, ch)
	if !r.Fallback {
		t.Errorf("Result = %+v, want immediate fallback", r)
	}
	if len(h.stack.joins) != 0 {
		t.Errorf("joined %v, want no station join", h.stack.joins)
	}
}

func TestAccessPointStartFailure(t *testing.T) {
	h := newHarness(t)
	h.stack.apErr = errors.New("radio busy")

	ch := h.boot.Connect("home", "secret", time.Second)
	h.clock.Advance(time.Second)
	h.boot.Poll()

	r, _ := receive(t, ch)
	if !core.IsNetworkError(r.Err) {
		t.Fatalf("Err = %v, want network error", r.Err)
	}
	if h.dev.Mode() != core.ModeUnconfigured {
		t.Errorf("Mode() = %v, want %v", h.dev.Mode(), core.ModeUnconfigured)
	}
}

func TestCaptureErrorKeepsAccessPoint(t *testing.T) {
	h := newHarness(t)
	h.dns.startErr = core.NewCaptureError("bind :53", errors.New("address in use"))

	ch := h.boot.Connect("home", "secret", time.Second)
	h.clock.Advance(time.Second)
	h.boot.Poll()

	r, _ := receive(t, ch)
	if !r.Fallback || r.Err != nil {
		t.Fatalf("Result = %+v, want fallback despite DNS failure", r)
	}
	if h.dev.Mode() != core.ModeAccessPointFallback {
		t.Errorf("Mode() = %v, want %v", h.dev.Mode(), core.ModeAccessPointFallback)
	}
	if h.boot.CaptiveDNSActive() {
		t.Error("captive DNS should not be reported active")
	}
}

func TestReset(t *testing.T) {
	h := newHarness(t)
	h.boot.Connect("home", "secret", time.Second)
	h.clock.Advance(time.Second)
	h.boot.Poll()

	h.boot.Reset()
	if h.dev.Mode() != core.ModeUnconfigured {
		t.Errorf("Mode() = %v, want %v", h.dev.Mode(), core.ModeUnconfigured)
	}
	if _, ok := h.boot.AccessPoint(); ok {
		t.Error("access point should be gone after Reset")
	}
	if h.dns.stopped != 1 {
		t.Errorf("captive DNS stopped %d times, want 1", h.dns.stopped)
	}
}

func TestRunPollsUntilCancelled(t *testing.T) {
	dev := core.NewDevice("tap", "")
	stack := &fakeStack{apIP: net.ParseIP("192.168.4.1")}
	boot := New(dev, stack, Options{PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		boot.Run(ctx)
		close(done)
	}()

	ch := boot.Connect("home", "secret", 50*time.Millisecond)
	r, ok := receive(t, ch)
	if !ok || !r.Fallback {
		t.Errorf("Result = %+v, %v, want fallback from Run", r, ok)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestGeneratedAccessPoint(t *testing.T) {
	dev := core.NewDevice("tap", "")
	boot := New(dev, &fakeStack{}, Options{})

	cfg := boot.FallbackConfig()
	if len(cfg.SSID) != len("tap-")+4 || cfg.SSID[:4] != "tap-" {
		t.Errorf("generated SSID = %q", cfg.SSID)
	}
	if len(cfg.Passphrase) < 8 {
		t.Errorf("generated passphrase %q is too short for WPA2", cfg.Passphrase)
	}
}

func TestScanWrapsErrors(t *testing.T) {
	h := newHarness(t)
	h.stack.networks = []Network{{SSID: "home", Signal: 70}}

	got, err := h.boot.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(got) != 1 || got[0].SSID != "home" {
		t.Errorf("Scan() = %+v", got)
	}
}
