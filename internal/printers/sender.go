// Package printers transmits rendered ZPL to network label printers over
// raw TCP. Transmission is a single blocking write with no retry: a
// failed physical print is reported to the operator, never silently
// re-sent.
package printers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orrn/labelflow/internal/store"
)

var (
	ErrConnectionFailed = errors.New("printer connection failed")
	ErrSendFailed       = errors.New("printer send failed")
)

const defaultTimeout = 10 * time.Second

// Sender is the transport capability the engine depends on.
type Sender interface {
	Send(ctx context.Context, zpl string, printer *store.Printer) error
}

// TCPSender writes jobs to port-9100-style raw printer sockets and keeps
// a per-printer send counter for the status endpoints.
type TCPSender struct {
	timeout time.Duration
	log     *logrus.Entry

	mu    sync.Mutex
	sends map[string]int64
}

func NewTCPSender(timeout time.Duration, log *logrus.Logger) *TCPSender {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &TCPSender{
		timeout: timeout,
		log:     log.WithField("component", "printers"),
		sends:   make(map[string]int64),
	}
}

func (s *TCPSender) Send(ctx context.Context, zpl string, printer *store.Printer) error {
	address := printer.Address()

	dialer := net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConnectionFailed, address, err)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(s.timeout))

	if _, err := conn.Write([]byte(zpl)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSendFailed, address, err)
	}

	s.mu.Lock()
	s.sends[printer.Name]++
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"printer": printer.Name,
		"address": address,
		"bytes":   len(zpl),
	}).Info("label sent")

	return nil
}

// Probe reports whether the printer's socket accepts a connection.
func (s *TCPSender) Probe(printer *store.Printer) error {
	conn, err := net.DialTimeout("tcp", printer.Address(), s.timeout)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConnectionFailed, printer.Address(), err)
	}
	return conn.Close()
}

// SendCount returns how many jobs went to the named printer since start.
func (s *TCPSender) SendCount(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sends[name]
}
