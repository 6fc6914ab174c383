package netboot

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/devadmin/internal/core"
	"github.com/muurk/devadmin/internal/logging"
)

const (
	// DefaultPollInterval is how often Run checks the link and the deadline
	DefaultPollInterval = 250 * time.Millisecond

	// DefaultConnectTimeout is the station timeout used when none is given
	DefaultConnectTimeout = 10 * time.Second

	stackCallTimeout = 30 * time.Second
)

// Result is the single outcome of a connection attempt.
type Result struct {
	Address  net.IP
	Fallback bool
	Err      error
}

// Attempt is an in-flight station connection attempt.
type Attempt struct {
	SSID       string
	Passphrase string `json:"-"`
	Deadline   time.Time
	StartedAt  time.Time

	fallback bool
	result   chan Result
	cancel   context.CancelFunc
}

func (a *Attempt) settle(r Result) {
	a.cancel()
	a.result <- r
	close(a.result)
}

func (a *Attempt) discard() {
	a.cancel()
	close(a.result)
}

// Options configures a Bootstrapper
type Options struct {
	Logger *zap.Logger

	PollInterval time.Duration

	// AccessPoint is the fallback network. A zero value is replaced by
	// GenerateAccessPointConfig for the device hostname.
	AccessPoint AccessPointConfig

	// Responder is armed on fallback. Nil disables captive DNS.
	Responder Responder

	// Now is the clock used for deadlines
	Now func() time.Time
}

// Bootstrapper brings the device onto a network: it joins a station
// network and falls back to a self-hosted access point when the join does
// not complete before the deadline.
//
// It is the only writer of the device's NetworkMode.
type Bootstrapper struct {
	dev    *core.Device
	mode   *core.ModeWriter
	stack  Stack
	opts   Options
	logger *zap.Logger

	mu        sync.Mutex
	attempt   *Attempt
	ap        *AccessPointConfig
	dnsCancel context.CancelFunc
}

// New creates a Bootstrapper for dev. It claims the device's mode writer,
// so only one Bootstrapper may exist per Device.
func New(dev *core.Device, stack Stack, opts Options) *Bootstrapper {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AccessPoint.SSID == "" {
		generated := GenerateAccessPointConfig(dev.Hostname)
		if opts.AccessPoint.Passphrase == "" {
			opts.AccessPoint.Passphrase = generated.Passphrase
		}
		opts.AccessPoint.SSID = generated.SSID
	}
	return &Bootstrapper{
		dev:    dev,
		mode:   dev.ClaimModeWriter(),
		stack:  stack,
		opts:   opts,
		logger: logging.OrNop(opts.Logger),
	}
}

// Connect starts a station attempt that falls back to access point mode on
// timeout. Any attempt already in flight is cancelled first: its channel is
// closed without a value.
//
// The returned channel yields exactly one Result and is then closed.
func (b *Bootstrapper) Connect(ssid, passphrase string, timeout time.Duration) <-chan Result {
	return b.begin(ssid, passphrase, timeout, true)
}

// ConnectNoFallback starts a station attempt that reports a NetworkError on
// timeout and leaves the device Unconfigured. Unattended devices should use
// Connect instead, since a failure here leaves the device unreachable.
func (b *Bootstrapper) ConnectNoFallback(ssid, passphrase string, timeout time.Duration) <-chan Result {
	return b.begin(ssid, passphrase, timeout, false)
}

func (b *Bootstrapper) begin(ssid, passphrase string, timeout time.Duration, fallback bool) <-chan Result {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if prev := b.attempt; prev != nil {
		b.logger.Info("cancelling connection attempt", zap.String("ssid", prev.SSID))
		prev.discard()
		b.attempt = nil
	}
	b.stopFallbackLocked()

	now := b.opts.Now()
	ctx, cancel := context.WithCancel(context.Background())
	a := &Attempt{
		SSID:       ssid,
		Passphrase: passphrase,
		StartedAt:  now,
		Deadline:   now.Add(timeout),
		fallback:   fallback,
		result:     make(chan Result, 1),
		cancel:     cancel,
	}
	if ssid == "" {
		// Nothing to join: the first poll settles the attempt.
		a.Deadline = now
	}
	b.attempt = a
	b.setMode(core.ModeConnectingStation, nil)

	b.logger.Info("connecting to station network",
		zap.String("ssid", ssid),
		zap.Duration("timeout", timeout),
		zap.Bool("fallback", fallback),
	)

	if ssid != "" {
		go b.join(ctx, ssid, passphrase)
	}
	return a.result
}

func (b *Bootstrapper) join(ctx context.Context, ssid, passphrase string) {
	if err := b.stack.JoinStation(ctx, ssid, passphrase); err != nil && ctx.Err() == nil {
		// The deadline decides the outcome; a failed join just means no link-up.
		b.logger.Warn("station join failed", zap.String("ssid", ssid), zap.Error(err))
	}
}

// Poll checks the link state and the attempt deadline once. It never
// blocks beyond a single stack status query.
func (b *Bootstrapper) Poll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	a := b.attempt
	if a == nil {
		return
	}

	if a.SSID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), stackCallTimeout)
		addr, err := b.stack.StationAddress(ctx, a.SSID)
		cancel()
		if err != nil {
			b.logger.Debug("link status query failed", zap.Error(err))
		}
		if addr != nil {
			b.attempt = nil
			b.setMode(core.ModeConnected, addr)
			b.logger.Info("station connected",
				zap.String("ssid", a.SSID),
				zap.String("address", addr.String()),
				zap.Duration("elapsed", b.opts.Now().Sub(a.StartedAt)),
			)
			a.settle(Result{Address: addr})
			return
		}
	}

	if b.opts.Now().Before(a.Deadline) {
		return
	}

	b.attempt = nil
	a.cancel()
	b.disconnectLocked()

	if !a.fallback {
		b.setMode(core.ModeUnconfigured, nil)
		b.logger.Warn("station connection timed out", zap.String("ssid", a.SSID))
		a.settle(Result{Err: core.NewNetworkError("connect", "timed out joining "+quote(a.SSID), nil)})
		return
	}

	a.settle(b.fallbackLocked(a))
}

// fallbackLocked starts the access point and arms captive DNS. A DNS bind
// failure is logged and the device stays in access point mode.
func (b *Bootstrapper) fallbackLocked(a *Attempt) Result {
	cfg := b.opts.AccessPoint

	ctx, cancel := context.WithTimeout(context.Background(), stackCallTimeout)
	defer cancel()

	ip, err := b.stack.StartAccessPoint(ctx, cfg)
	if err != nil {
		b.setMode(core.ModeUnconfigured, nil)
		b.logger.Error("access point start failed", zap.String("ssid", cfg.SSID), zap.Error(err))
		return Result{Err: core.NewNetworkError("access_point", "failed to start access point "+quote(cfg.SSID), err)}
	}

	if cfg.RedirectTargetHost == "" {
		cfg.RedirectTargetHost = ip.String()
	}
	b.ap = &cfg
	b.setMode(core.ModeAccessPointFallback, ip)

	b.logger.Info("access point fallback active",
		zap.String("failed_ssid", a.SSID),
		zap.String("ap_ssid", cfg.SSID),
		zap.String("address", ip.String()),
	)

	if b.opts.Responder != nil {
		if err := b.opts.Responder.Start(ip); err != nil {
			b.logger.Warn("captive DNS unavailable", zap.Error(err))
		} else {
			dnsCtx, dnsCancel := context.WithCancel(context.Background())
			b.dnsCancel = dnsCancel
			go b.opts.Responder.Run(dnsCtx)
		}
	}

	return Result{Address: ip, Fallback: true}
}

func (b *Bootstrapper) stopFallbackLocked() {
	if b.dnsCancel != nil {
		b.dnsCancel()
		b.dnsCancel = nil
		if err := b.opts.Responder.Stop(); err != nil {
			b.logger.Warn("captive DNS stop failed", zap.Error(err))
		}
	}
	if b.ap != nil {
		ctx, cancel := context.WithTimeout(context.Background(), stackCallTimeout)
		defer cancel()
		if err := b.stack.StopAccessPoint(ctx); err != nil {
			b.logger.Warn("access point stop failed", zap.Error(err))
		}
		b.ap = nil
	}
}

func (b *Bootstrapper) disconnectLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), stackCallTimeout)
	defer cancel()
	if err := b.stack.Disconnect(ctx); err != nil {
		b.logger.Debug("station disconnect failed", zap.Error(err))
	}
}

// setMode must only be called with b.mu held. Transition listeners run
// synchronously and must not call back into the Bootstrapper.
func (b *Bootstrapper) setMode(mode core.NetworkMode, addr net.IP) {
	b.mode.Set(mode, addr)
}

// Reset cancels any attempt, tears down access point mode and returns the
// device to Unconfigured.
func (b *Bootstrapper) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attempt != nil {
		b.attempt.discard()
		b.attempt = nil
	}
	b.stopFallbackLocked()
	b.disconnectLocked()
	b.setMode(core.ModeUnconfigured, nil)
	b.logger.Info("network reset")
}

// Run polls every PollInterval until ctx is done. Any attempt still in
// flight is cancelled and the captive DNS responder is stopped on return.
func (b *Bootstrapper) Run(ctx context.Context) {
	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			if b.attempt != nil {
				b.attempt.discard()
				b.attempt = nil
			}
			if b.dnsCancel != nil {
				b.dnsCancel()
				b.dnsCancel = nil
				_ = b.opts.Responder.Stop()
			}
			b.mu.Unlock()
			return
		case <-ticker.C:
			b.Poll()
		}
	}
}

// Scan lists visible wireless networks.
func (b *Bootstrapper) Scan(ctx context.Context) ([]Network, error) {
	networks, err := b.stack.Scan(ctx)
	if err != nil {
		return nil, core.NewNetworkError("scan", "wireless scan failed", err)
	}
	return networks, nil
}

// Pending returns a copy of the in-flight attempt, if any.
func (b *Bootstrapper) Pending() (Attempt, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attempt == nil {
		return Attempt{}, false
	}
	return Attempt{
		SSID:      b.attempt.SSID,
		Deadline:  b.attempt.Deadline,
		StartedAt: b.attempt.StartedAt,
	}, true
}

// AccessPoint returns the active fallback network, if any.
func (b *Bootstrapper) AccessPoint() (AccessPointConfig, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ap == nil {
		return AccessPointConfig{}, false
	}
	return *b.ap, true
}

// FallbackConfig returns the access point configuration used on fallback.
func (b *Bootstrapper) FallbackConfig() AccessPointConfig {
	return b.opts.AccessPoint
}

// CaptiveDNSActive reports whether the captive DNS responder is armed.
func (b *Bootstrapper) CaptiveDNSActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dnsCancel != nil
}

func quote(ssid string) string {
	return "\"" + ssid + "\""
}
