package captive

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/muurk/devadmin/internal/core"
	"github.com/muurk/devadmin/internal/logging"
)

const (
	// DefaultDNSAddr is the standard DNS port on all interfaces
	DefaultDNSAddr = ":53"

	// DefaultTTL is kept short since the device may leave access point mode
	DefaultTTL = 10

	// pollWait bounds how long ServeNextQuery waits for a datagram
	pollWait = 5 * time.Millisecond
)

// DNSResponder answers every A query with the device's own address.
type DNSResponder struct {
	Addr string
	TTL  uint32

	logger *zap.Logger

	mu   sync.Mutex
	conn net.PacketConn
	ip   net.IP
}

// NewDNSResponder creates a responder that binds addr on Start.
func NewDNSResponder(addr string, logger *zap.Logger) *DNSResponder {
	if addr == "" {
		addr = DefaultDNSAddr
	}
	return &DNSResponder{
		Addr:   addr,
		TTL:    DefaultTTL,
		logger: logging.OrNop(logger),
	}
}

// Start binds the UDP socket and answers with ip from now on. Starting an
// already started responder only changes the answered address.
func (r *DNSResponder) Start(ip net.IP) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ip = ip.To4()
	if r.conn != nil {
		return nil
	}

	conn, err := net.ListenPacket("udp", r.Addr)
	if err != nil {
		return core.NewCaptureError("cannot bind "+r.Addr, err)
	}
	r.conn = conn
	r.logger.Info("captive DNS started",
		zap.String("listen", conn.LocalAddr().String()),
		zap.String("answer", ip.String()),
	)
	return nil
}

// Stop releases the socket. It is safe to call on a stopped responder.
func (r *DNSResponder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	r.logger.Info("captive DNS stopped")
	return err
}

// LocalAddr returns the bound address, or nil when stopped.
func (r *DNSResponder) LocalAddr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// ServeNextQuery handles at most one pending query and returns without
// waiting for one to arrive. It reports whether a datagram was consumed.
func (r *DNSResponder) ServeNextQuery() (bool, error) {
	r.mu.Lock()
	conn, ip := r.conn, r.ip
	r.mu.Unlock()

	if conn == nil {
		return false, net.ErrClosed
	}

	buf := make([]byte, 1500)
	_ = conn.SetReadDeadline(time.Now().Add(pollWait))
	n, from, err := conn.ReadFrom(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return false, nil
		}
		return false, err
	}

	req := new(dns.Msg)
	if err := req.Unpack(buf[:n]); err != nil {
		r.logger.Debug("dropping malformed DNS query", zap.String("from", from.String()), zap.Error(err))
		return true, nil
	}

	reply := r.answer(req, ip)
	out, err := reply.Pack()
	if err != nil {
		return true, err
	}
	if _, err := conn.WriteTo(out, from); err != nil {
		return true, err
	}
	return true, nil
}

func (r *DNSResponder) answer(req *dns.Msg, ip net.IP) *dns.Msg {
	reply := new(dns.Msg)
	reply.SetReply(req)
	reply.Authoritative = true

	for _, q := range req.Question {
		if q.Qclass != dns.ClassINET || (q.Qtype != dns.TypeA && q.Qtype != dns.TypeANY) {
			continue
		}
		reply.Answer = append(reply.Answer, &dns.A{
			Hdr: dns.RR_Header{
				Name:   q.Name,
				Rrtype: dns.TypeA,
				Class:  dns.ClassINET,
				Ttl:    r.TTL,
			},
			A: ip,
		})
		r.logger.Debug("captive DNS answer", zap.String("name", q.Name), zap.String("ip", ip.String()))
	}
	return reply
}

// Run serves queries until ctx is done or the responder is stopped.
func (r *DNSResponder) Run(ctx context.Context) {
	for ctx.Err() == nil {
		served, err := r.ServeNextQuery()
		if errors.Is(err, net.ErrClosed) {
			return
		}
		if err != nil {
			r.logger.Warn("captive DNS error", zap.Error(err))
		} else if served {
			r.logger.Debug("captive DNS query served")
		}
	}
}
