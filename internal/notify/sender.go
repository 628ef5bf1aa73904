// Package notify pushes print events to configured webhook endpoints.
// Delivery is fire-and-forget through a worker pool: a slow or dead
// endpoint must never hold up a print.
package notify

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Event string

const (
	EventPrintCompleted Event = "print_completed"
	EventPrintFailed    Event = "print_failed"
)

type Payload struct {
	Event     Event     `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Profile   string    `json:"profile"`
	Printer   string    `json:"printer"`
	Labels    int       `json:"labels"`
	Error     string    `json:"error,omitempty"`
	Signature string    `json:"signature,omitempty"`
}

type Config struct {
	Endpoints   []string
	Secret      string
	Timeout     time.Duration
	RetryCount  int
	RetryDelay  time.Duration
	WorkerCount int
	QueueSize   int
}

type task struct {
	endpoint string
	payload  *Payload
}

type Sender struct {
	cfg        Config
	httpClient *http.Client
	queue      chan *task
	stopCh     chan struct{}
	wg         sync.WaitGroup
	log        *logrus.Entry
}

func NewSender(cfg Config, log *logrus.Logger) *Sender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}

	return &Sender{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		queue:      make(chan *task, cfg.QueueSize),
		stopCh:     make(chan struct{}),
		log:        log.WithField("component", "notify"),
	}
}

func (s *Sender) Start() {
	for i := 0; i < s.cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

func (s *Sender) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// PrintCompleted and PrintFailed enqueue an event for every configured
// endpoint. A full queue drops the event rather than blocking the caller.
func (s *Sender) PrintCompleted(profile, printer string, labels int) {
	s.enqueue(&Payload{Event: EventPrintCompleted, Profile: profile, Printer: printer, Labels: labels})
}

func (s *Sender) PrintFailed(profile, printer string, labels int, errMsg string) {
	s.enqueue(&Payload{Event: EventPrintFailed, Profile: profile, Printer: printer, Labels: labels, Error: errMsg})
}

func (s *Sender) enqueue(p *Payload) {
	p.Timestamp = time.Now().UTC()
	for _, endpoint := range s.cfg.Endpoints {
		select {
		case s.queue <- &task{endpoint: endpoint, payload: p}:
		default:
			s.log.WithField("endpoint", endpoint).Warn("webhook queue full, event dropped")
		}
	}
}

func (s *Sender) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case t := <-s.queue:
			s.deliver(t)
		}
	}
}

func (s *Sender) deliver(t *task) {
	body, err := json.Marshal(t.payload)
	if err != nil {
		return
	}
	if s.cfg.Secret != "" {
		t.payload.Signature = sign(body, s.cfg.Secret)
		body, _ = json.Marshal(t.payload)
	}

	for attempt := 0; attempt <= s.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-s.stopCh:
				return
			case <-time.After(s.cfg.RetryDelay):
			}
		}

		resp, err := s.httpClient.Post(t.endpoint, "application/json", bytes.NewReader(body))
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return
		}
	}

	s.log.WithFields(logrus.Fields{
		"endpoint": t.endpoint,
		"event":    t.payload.Event,
	}).Warn("webhook delivery failed after retries")
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
