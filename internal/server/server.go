package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/devadmin/internal/captive"
	"github.com/muurk/devadmin/internal/config"
	"github.com/muurk/devadmin/internal/core"
	"github.com/muurk/devadmin/internal/discovery"
	"github.com/muurk/devadmin/internal/fsbrowser"
	"github.com/muurk/devadmin/internal/logging"
	"github.com/muurk/devadmin/internal/netboot"
	"github.com/muurk/devadmin/internal/options"
	"github.com/muurk/devadmin/internal/ota"
	"github.com/muurk/devadmin/internal/push"
)

const shutdownTimeout = 10 * time.Second

// Options wires an AdminServer. Only Config is required; every nil
// dependency is built from it.
type Options struct {
	Config *config.Config

	// ConfigPath is where credentials are saved after a successful
	// /connect. Empty disables persistence.
	ConfigPath string

	Logger *zap.Logger

	Stack     netboot.Stack
	Responder netboot.Responder
	Flash     ota.FlashWriter
	Restarter ota.Restarter
	Liveness  ota.Liveness
}

// AdminServer is the device administration service. It owns the network
// bootstrap, the firmware channel and the HTTP surface of one device.
type AdminServer struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	device     *core.Device
	boot       *netboot.Bootstrapper
	channel    *ota.Channel
	flash      ota.FlashWriter
	redirector *captive.Redirector
	hub        *push.Hub
	files      *fsbrowser.Browser
	store      *options.Store
	advertiser *discovery.Advertiser
	watchdog   *ota.Watchdog
	tlsConfig  *tls.Config
	handler    http.Handler

	lastMode atomic.Int32
	cfgMu    sync.Mutex

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server
	ready    chan struct{}
}

// New creates an AdminServer. Nothing is started until Run.
func New(opts Options) (*AdminServer, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := opts.Config
	logger := logging.OrNop(opts.Logger)

	hostname := cfg.Device.Hostname
	if hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("failed to determine hostname: %w", err)
		}
		hostname = h
	}

	s := &AdminServer{
		cfg:        cfg,
		configPath: opts.ConfigPath,
		logger:     logger,
		ready:      make(chan struct{}),
	}

	s.device = core.NewDevice(hostname, cfg.Device.SetupPath)
	s.device.FirmwareVersion = cfg.Device.FirmwareVersion

	files, err := fsbrowser.New(cfg.Filesystem.Root)
	if err != nil {
		return nil, err
	}
	s.files = files

	store, err := options.Open(filepath.Join(files.Root, "config", "config.json"), logger.Named("options"))
	if err != nil {
		return nil, err
	}
	for _, oc := range cfg.Setup.Options {
		opt := options.Option{
			Key:     oc.Key,
			Label:   oc.Label,
			Kind:    options.Kind(oc.Kind),
			Group:   oc.Group,
			Choices: oc.Choices,
			Min:     oc.Min,
			Max:     oc.Max,
			Value:   oc.Default,
		}
		if err := store.Define(opt); err != nil {
			return nil, fmt.Errorf("setup option: %w", err)
		}
	}
	s.store = store

	if err := s.buildFirmware(opts); err != nil {
		return nil, err
	}
	s.buildNetwork(opts)

	if cfg.HTTP.CertFile != "" {
		tlsConfig, err := NewTLSConfig(cfg.HTTP.CertFile, cfg.HTTP.KeyFile)
		if err != nil {
			return nil, err
		}
		s.tlsConfig = tlsConfig
	}

	if cfg.Discovery.Advertise {
		s.advertiser = discovery.NewAdvertiser(logger.Named("mdns"))
	}

	s.redirector = captive.NewRedirector(s.device, captive.RedirectorOptions{
		TargetHost: s.redirectHost,
		Listen:     cfg.HTTP.Listen,
		TLS:        s.tlsConfig != nil,
	}, logger.Named("captive"))
	s.hub = push.NewHub(logger.Named("push"))
	s.device.OnTransition(s.onTransition)
	s.handler = s.routes()

	return s, nil
}

func (s *AdminServer) buildFirmware(opts Options) error {
	cfg := s.cfg

	flash := opts.Flash
	if flash == nil {
		magic, err := cfg.Firmware.MagicBytes()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Firmware.ImagePath), 0755); err != nil {
			return fmt.Errorf("creating firmware directory: %w", err)
		}
		flash = ota.NewFileRegion(ota.RegionConfig{
			ImagePath: cfg.Firmware.ImagePath,
			Capacity:  cfg.Firmware.Capacity,
			Magic:     magic,
			Logger:    s.logger.Named("flash"),
		})
	}
	s.flash = flash

	restarter := opts.Restarter
	if restarter == nil {
		r, err := ota.NewRestarter(cfg.Firmware.RestartMethod, cfg.Firmware.RestartCommand)
		if err != nil {
			return err
		}
		restarter = r
	}

	liveness := opts.Liveness
	if liveness == nil && cfg.Firmware.Watchdog != "" {
		wd, err := ota.OpenWatchdog(cfg.Firmware.Watchdog, s.logger.Named("watchdog"))
		if err != nil {
			return err
		}
		s.watchdog = wd
		liveness = wd
	}

	s.channel = ota.NewChannel(flash, ota.Options{
		Logger:       s.logger.Named("ota"),
		Liveness:     liveness,
		Restarter:    restarter,
		RestartDelay: cfg.Firmware.RestartDelay,
		Notify: func(msg string) {
			if s.hub != nil {
				s.hub.Broadcast(msg)
			}
		},
	})
	return nil
}

func (s *AdminServer) buildNetwork(opts Options) {
	cfg := s.cfg

	stack := opts.Stack
	if stack == nil {
		nm := netboot.NewNMCLIStack(cfg.Network.Interface, s.logger.Named("nmcli"))
		nm.JoinWait = cfg.Network.ConnectTimeout
		stack = nm
	}

	responder := opts.Responder
	if responder == nil && cfg.Network.DNSListen != config.DNSDisabled {
		responder = captive.NewDNSResponder(cfg.Network.DNSListen, s.logger.Named("dns"))
	}

	var ap netboot.AccessPointConfig
	if c := cfg.Network.AccessPoint; c != nil {
		ap.SSID = c.SSID
		ap.Passphrase = c.Passphrase
		ap.RedirectTargetHost = c.RedirectHost
	}

	s.boot = netboot.New(s.device, stack, netboot.Options{
		Logger:       s.logger.Named("netboot"),
		PollInterval: cfg.Network.PollInterval,
		AccessPoint:  ap,
		Responder:    responder,
	})
}

// redirectHost is the captive redirect target of the active access point.
func (s *AdminServer) redirectHost() string {
	ap, ok := s.boot.AccessPoint()
	if !ok {
		return ""
	}
	return ap.RedirectTargetHost
}

// Device returns the device context
func (s *AdminServer) Device() *core.Device { return s.device }

// Handler returns the HTTP handler of the admin surface
func (s *AdminServer) Handler() http.Handler { return s.handler }

// Ready is closed once the HTTP listener accepts connections.
func (s *AdminServer) Ready() <-chan struct{} { return s.ready }

// Addr returns the listener address, or nil before Run is serving.
func (s *AdminServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start runs the server until SIGINT or SIGTERM.
func (s *AdminServer) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run brings the device onto a network, then serves HTTP until ctx is done.
// The network comes first: the saved station is tried with access point
// fallback, or the access point starts straight away when nothing is saved.
func (s *AdminServer) Run(ctx context.Context) error {
	s.logger.Info("starting devadmin",
		zap.String("hostname", s.device.Hostname),
		zap.String("version", s.device.FirmwareVersion),
		zap.String("listen", s.cfg.HTTP.Listen),
	)

	go s.hub.Run(ctx)
	go s.boot.Run(ctx)

	select {
	case res, ok := <-s.bootstrap():
		if ok {
			s.logResult(res)
		}
	case <-ctx.Done():
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.HTTP.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.HTTP.Listen, err)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.listener = ln
	s.httpSrv = srv
	s.mu.Unlock()
	close(s.ready)

	fields := []zap.Field{zap.String("addr", ln.Addr().String())}
	if s.tlsConfig != nil {
		fields = append(fields, tlsFields(s.tlsConfig)...)
	}
	s.logger.Info("admin server listening", fields...)

	if s.advertiser != nil {
		s.advertise(ln.Addr())
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown requested")
		return s.Shutdown()
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// bootstrap starts the initial connection attempt
func (s *AdminServer) bootstrap() <-chan netboot.Result {
	s.cfgMu.Lock()
	station := s.cfg.Network.Station
	s.cfgMu.Unlock()

	if station == nil || station.SSID == "" {
		s.logger.Info("no saved network, starting access point")
		return s.boot.Connect("", "", 0)
	}
	return s.boot.Connect(station.SSID, station.Passphrase, s.cfg.Network.ConnectTimeout)
}

func (s *AdminServer) logResult(res netboot.Result) {
	switch {
	case res.Err != nil:
		s.logger.Error("network bootstrap failed", zap.Error(res.Err))
	case res.Fallback:
		ap := s.boot.FallbackConfig()
		s.logger.Info("serving setup on access point",
			zap.String("ssid", ap.SSID),
			zap.String("address", res.Address.String()),
		)
	default:
		s.logger.Info("network ready", zap.String("address", res.Address.String()))
	}
}

func (s *AdminServer) advertise(addr net.Addr) {
	port := discovery.DefaultPort
	if tcp, ok := addr.(*net.TCPAddr); ok {
		port = tcp.Port
	}
	err := s.advertiser.Start(discovery.Announcement{
		Instance:  s.device.Hostname,
		Port:      port,
		Version:   s.device.FirmwareVersion,
		SetupPath: s.device.SetupPath,
		Mode:      s.device.Mode().String(),
	})
	if err != nil {
		s.logger.Warn("mDNS advertisement unavailable", zap.Error(err))
	}
}

// onTransition runs synchronously inside the bootstrapper and must not
// call back into it.
func (s *AdminServer) onTransition(mode core.NetworkMode, addr net.IP) {
	from := core.NetworkMode(s.lastMode.Swap(int32(mode)))
	address := ""
	if addr != nil {
		address = addr.String()
	}
	logging.LogModeTransition(from.String(), mode.String(), address)

	s.hub.Broadcast("mode " + mode.String() + " " + address)
	if s.advertiser != nil {
		s.advertiser.SetMode(mode.String())
	}
}

// Shutdown stops the HTTP server and releases the device.
func (s *AdminServer) Shutdown() error {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()

	var err error
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err = srv.Shutdown(ctx); err != nil {
			s.logger.Warn("shutdown timeout, forcing close", zap.Error(err))
			_ = srv.Close()
		}
	}

	if s.advertiser != nil {
		s.advertiser.Shutdown()
	}
	if s.watchdog != nil {
		if cerr := s.watchdog.Close(); cerr != nil {
			s.logger.Warn("watchdog close failed", zap.Error(cerr))
		}
	}

	s.logger.Info("admin server stopped")
	_ = s.logger.Sync()
	return err
}
