package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mr1hm/guard-dispatch/internal/config"
	"github.com/mr1hm/guard-dispatch/internal/dispatch"
	"github.com/mr1hm/guard-dispatch/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockSubmitter implements Submitter for testing
type mockSubmitter struct {
	mu      sync.Mutex
	signals []dispatch.SignalInput
	count   atomic.Int64
	err     error
}

func (m *mockSubmitter) Submit(ctx context.Context, in dispatch.SignalInput) (dispatch.SubmitResult, error) {
	if m.err != nil {
		return dispatch.SubmitResult{}, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, in)
	m.count.Add(1)
	return dispatch.SubmitResult{IncidentID: "I1", Created: len(m.signals) == 1}, nil
}

func (m *mockSubmitter) last() dispatch.SignalInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signals[len(m.signals)-1]
}

// fakeMessage implements mqtt.Message for testing
type fakeMessage struct {
	topic   string
	payload []byte
}

func (f fakeMessage) Duplicate() bool   { return false }
func (f fakeMessage) Qos() byte         { return 1 }
func (f fakeMessage) Retained() bool    { return false }
func (f fakeMessage) Topic() string     { return f.topic }
func (f fakeMessage) MessageID() uint16 { return 1 }
func (f fakeMessage) Payload() []byte   { return f.payload }
func (f fakeMessage) Ack()              {}

func testConfig() (config.MQTTConfig, config.WorkerConfig) {
	return config.MQTTConfig{Topic: "beacons/+/signals"}, config.WorkerConfig{Count: 2, BufferSize: 100}
}

func TestManager_StartStop(t *testing.T) {
	mqttCfg, workers := testConfig()
	mgr := NewManager(mqttCfg, workers, &mockSubmitter{})

	ctx, cancel := context.WithCancel(context.Background())

	// Without a broker Start only runs the pool.
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	cancel()
	mgr.Stop()
}

func TestManager_Handle(t *testing.T) {
	mqttCfg, workers := testConfig()
	sub := &mockSubmitter{}
	mgr := NewManager(mqttCfg, workers, sub)

	msg := message{topic: "beacons/B7/signals", payload: []byte(`{"type":"sos","source":"panic-button-7"}`)}
	if err := mgr.handle(context.Background(), msg); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	got := sub.last()
	if got.BeaconID != "B7" || got.Type != models.SignalPanic || got.Source != "panic-button-7" || got.Priority != "" {
		t.Errorf("unexpected signal: %+v", got)
	}
}

func TestManager_HandlePriorityAndDefaultSource(t *testing.T) {
	mqttCfg, workers := testConfig()
	sub := &mockSubmitter{}
	mgr := NewManager(mqttCfg, workers, sub)

	msg := message{topic: "beacons/B2/signals", payload: []byte(`{"type":"motion","priority":"high"}`)}
	if err := mgr.handle(context.Background(), msg); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	got := sub.last()
	if got.Type != models.SignalSensorDetection || got.Priority != models.PriorityHigh || got.Source != "mqtt" {
		t.Errorf("unexpected signal: %+v", got)
	}
}

func TestManager_MalformedDropped(t *testing.T) {
	mqttCfg, workers := testConfig()
	sub := &mockSubmitter{}
	mgr := NewManager(mqttCfg, workers, sub)

	bad := []message{
		{topic: "beacons/B1/signals", payload: []byte(`not json`)},
		{topic: "beacons/B1/signals", payload: []byte(`{"type":"doorbell"}`)},
		{topic: "beacons/B1/signals", payload: []byte(`{"type":"panic","priority":"urgent"}`)},
		{topic: "beacons//signals", payload: []byte(`{"type":"panic"}`)},
		{topic: "devices/B1/signals", payload: []byte(`{"type":"panic"}`)},
		{topic: "beacons/B1/signals/extra", payload: []byte(`{"type":"panic"}`)},
	}
	for _, msg := range bad {
		if err := mgr.handle(context.Background(), msg); err != nil {
			t.Errorf("malformed message %q should be dropped, got %v", msg.payload, err)
		}
	}
	if sub.count.Load() != 0 {
		t.Errorf("expected nothing submitted, got %d", sub.count.Load())
	}
}

func TestManager_SubmitErrorReturned(t *testing.T) {
	mqttCfg, workers := testConfig()
	mgr := NewManager(mqttCfg, workers, &mockSubmitter{err: dispatch.ErrValidation})

	err := mgr.handle(context.Background(), message{topic: "beacons/B9/signals", payload: []byte(`{"type":"panic"}`)})
	if !errors.Is(err, dispatch.ErrValidation) {
		t.Errorf("expected wrapped ErrValidation, got %v", err)
	}
}

func TestBeaconFromTopic(t *testing.T) {
	id, err := beaconFromTopic("site/north/+/signals", "site/north/lobby-2/signals")
	if err != nil || id != "lobby-2" {
		t.Errorf("expected lobby-2, got %q (%v)", id, err)
	}
	if _, err := beaconFromTopic("beacons/+/signals", "beacons/B1/status"); !errors.Is(err, ErrBadTopic) {
		t.Errorf("expected ErrBadTopic, got %v", err)
	}
}

func TestManager_ConcurrentMessages(t *testing.T) {
	mqttCfg, workers := testConfig()
	workers.Count = 4
	workers.BufferSize = 500
	sub := &mockSubmitter{}
	mgr := NewManager(mqttCfg, workers, sub)

	ctx, cancel := context.WithCancel(context.Background())
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var wg sync.WaitGroup
	numGoroutines := 10
	numPerGoroutine := 40

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()
			for j := 0; j < numPerGoroutine; j++ {
				mgr.onMessage(nil, fakeMessage{
					topic:   fmt.Sprintf("beacons/B%d/signals", goroutineID),
					payload: []byte(`{"type":"panic","source":"test"}`),
				})
			}
		}(i)
	}
	wg.Wait()

	// Stop drains what is queued.
	mgr.Stop()
	cancel()

	expected := int64(numGoroutines * numPerGoroutine)
	if got := sub.count.Load(); got != expected {
		t.Errorf("expected %d signals submitted, got %d", expected, got)
	}
}

func TestManager_FullPoolDrops(t *testing.T) {
	mqttCfg, workers := testConfig()
	workers.BufferSize = 1
	block := make(chan struct{})
	sub := &blockingSubmitter{release: block}
	mgr := NewManager(mqttCfg, workers, sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 20; i++ {
		mgr.onMessage(nil, fakeMessage{topic: "beacons/B1/signals", payload: []byte(`{"type":"fire"}`)})
	}
	close(block)
	mgr.Stop()

	// Two workers can hold one message each, plus one buffered.
	if got := sub.count.Load(); got < 1 || got > 3 {
		t.Errorf("expected most messages dropped, got %d submitted", got)
	}
}

type blockingSubmitter struct {
	release chan struct{}
	count   atomic.Int64
}

func (b *blockingSubmitter) Submit(ctx context.Context, in dispatch.SignalInput) (dispatch.SubmitResult, error) {
	<-b.release
	b.count.Add(1)
	return dispatch.SubmitResult{}, nil
}
