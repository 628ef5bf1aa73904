package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestDeliversEvents(t *testing.T) {
	var mu sync.Mutex
	var payloads []Payload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var p Payload
		require.NoError(t, json.Unmarshal(body, &p))
		mu.Lock()
		payloads = append(payloads, p)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(Config{Endpoints: []string{srv.URL}}, testLogger())
	s.Start()
	defer s.Stop()

	s.PrintCompleted("wine", "zebra1", 3)
	s.PrintFailed("wine", "zebra1", 1, "connection refused")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(payloads) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	events := map[Event]Payload{}
	for _, p := range payloads {
		events[p.Event] = p
	}

	completed := events[EventPrintCompleted]
	assert.Equal(t, "wine", completed.Profile)
	assert.Equal(t, "zebra1", completed.Printer)
	assert.Equal(t, 3, completed.Labels)
	assert.False(t, completed.Timestamp.IsZero())

	failed := events[EventPrintFailed]
	assert.Equal(t, 1, failed.Labels)
	assert.Equal(t, "connection refused", failed.Error)
}

func TestSignsPayloadWithSecret(t *testing.T) {
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(Config{Endpoints: []string{srv.URL}, Secret: "hunter2"}, testLogger())
	s.Start()
	defer s.Stop()

	s.PrintCompleted("wine", "zebra1", 1)

	var body []byte
	select {
	case body = <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
	}

	var p Payload
	require.NoError(t, json.Unmarshal(body, &p))
	require.NotEmpty(t, p.Signature)

	// The signature covers the payload serialized without it.
	sig := p.Signature
	p.Signature = ""
	unsigned, err := json.Marshal(&p)
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte("hunter2"))
	mac.Write(unsigned)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), sig)
}

func TestRetriesFailedDelivery(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(Config{
		Endpoints:  []string{srv.URL},
		RetryCount: 2,
		RetryDelay: 10 * time.Millisecond,
	}, testLogger())
	s.Start()
	defer s.Stop()

	s.PrintCompleted("wine", "zebra1", 1)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFullQueueDropsInsteadOfBlocking(t *testing.T) {
	s := NewSender(Config{
		Endpoints: []string{"http://127.0.0.1:1/hook"},
		QueueSize: 1,
	}, testLogger())
	// Workers never started: the queue fills and further events drop.

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			s.PrintCompleted("wine", "zebra1", 1)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
}
