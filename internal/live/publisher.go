// Package live carries fire-and-forget telemetry from running
// pipelines to interested viewers: a websocket publisher on the
// pipeline side, the camflowd relay hub in the middle, and an optional
// Redis mirror of the latest committed bucket per camera. None of it
// participates in the durability contract; every failure here is
// logged and dropped.
package live

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/runger/camflow/internal/config"
	"github.com/runger/camflow/internal/detect"
	"github.com/runger/camflow/internal/pipeline"
	"github.com/runger/camflow/internal/video"
)

const (
	publishQueueSize = 256
	dialTimeout      = 2 * time.Second
	publishTimeout   = 2 * time.Second

	// After a failed dial the publisher drops events instead of
	// re-dialing on every frame.
	redialBackoff = 5 * time.Second
)

// Publisher forwards pipeline events to the camflowd ingest endpoint.
// Events are queued onto a bounded channel and written by a single
// background goroutine; when the queue is full or the relay is
// unreachable, events are dropped so the frame loop never blocks.
type Publisher struct {
	url    string
	logger *slog.Logger
	mirror *Mirror

	queue chan queuedEvent
	done  chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup
}

type queuedEvent struct {
	payload []byte
	bucket  *BucketEvent
}

// NewPublisher creates a Publisher for the given live configuration.
// The connection is established lazily on the first event.
func NewPublisher(cfg config.LiveConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		url:    cfg.WebsocketURL,
		logger: logger,
		queue:  make(chan queuedEvent, publishQueueSize),
		done:   make(chan struct{}),
	}
	if cfg.RedisAddr != "" {
		p.mirror = NewMirror(cfg.RedisAddr, logger)
	}
	p.wg.Add(1)
	go p.writeLoop()
	return p
}

// PublishFrame implements pipeline.EventSink.
func (p *Publisher) PublishFrame(cameraID, runID string, frame video.Frame, detections []detect.Detection) {
	event := newDetectionEvent(cameraID, runID, frame, detections)
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Debug("marshaling detection event failed", "error", err)
		return
	}
	p.enqueue(queuedEvent{payload: payload})
}

// PublishBucket implements pipeline.EventSink.
func (p *Publisher) PublishBucket(cameraID, runID string, payload *pipeline.BucketPayload) {
	event := newBucketEvent(cameraID, runID, payload)
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Debug("marshaling bucket event failed", "error", err)
		return
	}
	p.enqueue(queuedEvent{payload: data, bucket: &event})
}

func (p *Publisher) enqueue(ev queuedEvent) {
	select {
	case p.queue <- ev:
	case <-p.done:
	default:
		p.logger.Debug("live event dropped, queue full")
	}
}

// Close stops the background writer and closes the relay connection
// and Redis client. Queued events are flushed best-effort.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
	if p.mirror != nil {
		return p.mirror.Close()
	}
	return nil
}

func (p *Publisher) writeLoop() {
	defer p.wg.Done()

	var conn *websocket.Conn
	var lastDialFail time.Time
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	send := func(ev queuedEvent) {
		if ev.bucket != nil && p.mirror != nil {
			p.mirror.PublishBucket(*ev.bucket)
		}
		if conn == nil {
			if time.Since(lastDialFail) < redialBackoff {
				return
			}
			dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
			c, _, err := dialer.Dial(p.url, nil)
			if err != nil {
				lastDialFail = time.Now()
				p.logger.Debug("live relay unreachable", "url", p.url, "error", err)
				return
			}
			conn = c
		}
		conn.SetWriteDeadline(time.Now().Add(publishTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, ev.payload); err != nil {
			p.logger.Debug("live publish failed", "error", err)
			conn.Close()
			conn = nil
			lastDialFail = time.Now()
		}
	}

	for {
		select {
		case ev := <-p.queue:
			send(ev)
		case <-p.done:
			// Flush whatever is already queued, then stop.
			for {
				select {
				case ev := <-p.queue:
					send(ev)
				default:
					return
				}
			}
		}
	}
}
