package log

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"traze.dev/internal/transport"
)

const filePrefix = "events"

// Entry is one recorded message. JSON payloads are kept inline; anything
// else is stored base64-encoded in Raw.
type Entry struct {
	At      time.Time       `json:"at"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Raw     []byte          `json:"raw,omitempty"`
}

func (e Entry) Bytes() []byte {
	if e.Payload != nil {
		return e.Payload
	}
	return e.Raw
}

func (e Entry) Message() transport.Message {
	return transport.Message{Topic: e.Topic, Payload: e.Bytes(), Received: e.At}
}

// Recorder writes every message it is handed to dir. Record has the
// transport.Handler signature so it can be installed as a Mux tap.
type Recorder struct {
	w   *JSONLZstdWriter
	log *zap.SugaredLogger

	written atomic.Uint64
	failed  atomic.Uint64
}

func NewRecorder(dir string, log *zap.SugaredLogger) *Recorder {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Recorder{w: NewJSONLZstdWriter(dir, filePrefix), log: log}
}

func (r *Recorder) Record(msg transport.Message) {
	e := Entry{At: msg.Received.UTC(), Topic: msg.Topic}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if len(msg.Payload) > 0 && json.Valid(msg.Payload) {
		e.Payload = append(json.RawMessage(nil), msg.Payload...)
	} else {
		e.Raw = append([]byte(nil), msg.Payload...)
	}
	if err := r.w.Write(e); err != nil {
		// only the first few failures are worth a line each
		if r.failed.Add(1) <= 3 {
			r.log.Warnw("recording failed", "topic", msg.Topic, "err", err)
		}
		return
	}
	r.written.Add(1)
}

// Written reports how many messages were recorded.
func (r *Recorder) Written() uint64 { return r.written.Load() }

func (r *Recorder) Flush() error { return r.w.Flush() }

func (r *Recorder) Close() error {
	r.log.Infow("recording closed", "written", r.written.Load(), "failed", r.failed.Load())
	return r.w.Close()
}
