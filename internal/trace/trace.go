// Package trace records inline suggestion events as a msgpack stream and
// reads them back.
//
// Each event becomes one Record. Records are written back to back with no
// framing, since msgpack values are self-delimiting:
//
//	{"n": 1, "t": 1718000000000, "k": "Request", "s": "5f0c...", "g": "explicit"}
//	{"n": 2, "t": 1718000000003, "k": "Show", "v": 0, "i": 0, "x": "Println("}
package trace

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dshills/ghostline/internal/inline/event"
	"github.com/dshills/ghostline/internal/logging"
)

// Record is one traced event. Fields that do not apply to the event's kind
// are left at their zero value.
type Record struct {
	Seq        uint64 `msgpack:"n"`
	Time       int64  `msgpack:"t"`
	Kind       string `msgpack:"k"`
	Session    string `msgpack:"s,omitempty"`
	Trigger    string `msgpack:"g,omitempty"`
	Variant    int    `msgpack:"v"`
	From       int    `msgpack:"f,omitempty"`
	Index      int    `msgpack:"i,omitempty"`
	Text       string `msgpack:"x,omitempty"`
	Element    string `msgpack:"e,omitempty"`
	LengthDiff int    `msgpack:"d,omitempty"`
	Explicit   bool   `msgpack:"xp,omitempty"`
	Finish     string `msgpack:"fi,omitempty"`
	Displaying bool   `msgpack:"dp,omitempty"`
	Cause      string `msgpack:"c,omitempty"`
	Cancelled  bool   `msgpack:"cc,omitempty"`
	Active     bool   `msgpack:"a,omitempty"`
}

// Timestamp returns the record time.
func (r Record) Timestamp() time.Time {
	return time.UnixMilli(r.Time)
}

// String returns a one-line description of the record.
func (r Record) String() string {
	switch r.Kind {
	case "Request":
		return fmt.Sprintf("#%d Request(%s) session=%s", r.Seq, r.Trigger, r.Session)
	case "VariantSwitched":
		return fmt.Sprintf("#%d VariantSwitched(%d,%d,%t)", r.Seq, r.From, r.Variant, r.Explicit)
	case "Computed", "Show":
		return fmt.Sprintf("#%d %s(%d,%q,%d)", r.Seq, r.Kind, r.Variant, r.Text, r.Index)
	case "Change":
		return fmt.Sprintf("#%d Change(%d,%d)", r.Seq, r.Variant, r.LengthDiff)
	case "Insert", "AfterInsert":
		return fmt.Sprintf("#%d %s(%d,%q)", r.Seq, r.Kind, r.Variant, r.Text)
	case "Hide":
		return fmt.Sprintf("#%d Hide(%s,%t)", r.Seq, r.Finish, r.Displaying)
	case "Completion":
		cause := "nil"
		switch {
		case r.Cancelled:
			cause = "cancelled"
		case r.Cause != "":
			cause = r.Cause
		}
		return fmt.Sprintf("#%d Completion(%s,%t)", r.Seq, cause, r.Active)
	case "NoVariants":
		return fmt.Sprintf("#%d NoVariants", r.Seq)
	default:
		return fmt.Sprintf("#%d %s(%d)", r.Seq, r.Kind, r.Variant)
	}
}

// FromEvent converts an event to a record without sequence or time.
func FromEvent(ev event.Event) Record {
	r := Record{Kind: ev.Kind().String(), Variant: -1}
	switch e := ev.(type) {
	case event.Request:
		r.Session = e.Request.ID.String()
		r.Trigger = e.Request.Trigger.String()
		r.Index = e.Request.Offset
	case event.VariantComputed:
		r.Variant = e.Variant
	case event.Empty:
		r.Variant = e.Variant
	case event.VariantSwitched:
		r.From, r.Variant, r.Explicit = e.From, e.To, e.Explicit
	case event.Computed:
		r.Variant, r.Index = e.Variant, e.Index
		r.Text, r.Element = e.Element.Text(), e.Element.Kind().String()
	case event.Show:
		r.Variant, r.Index = e.Variant, e.Index
		r.Text, r.Element = e.Element.Text(), e.Element.Kind().String()
	case event.Change:
		r.Variant, r.LengthDiff = e.Variant, e.LengthDiff
	case event.Invalidated:
		r.Variant = e.Variant
	case event.Insert:
		r.Variant, r.Text = e.Variant, e.Text
	case event.AfterInsert:
		r.Variant, r.Text = e.Variant, e.Text
	case event.Hide:
		r.Finish, r.Displaying = e.Finish.String(), e.Displaying
	case event.Completion:
		r.Active = e.IsActive
		if e.Cause != nil {
			r.Cause = e.Cause.Error()
			r.Cancelled = event.IsCancellation(e.Cause)
		}
	}
	return r
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the recorder logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// Recorder is an event.Listener that writes every event to a msgpack
// stream. Write errors are logged and counted; the first one is kept.
type Recorder struct {
	mu      sync.Mutex
	enc     *msgpack.Encoder
	logger  *log.Logger
	now     func() time.Time
	seq     uint64
	session string
	failed  int
	err     error
}

// NewRecorder creates a recorder writing to w.
func NewRecorder(w io.Writer, opts ...Option) *Recorder {
	r := &Recorder{
		enc:    msgpack.NewEncoder(w),
		logger: logging.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnEvent implements event.Listener.
func (r *Recorder) OnEvent(ev event.Event) {
	rec := FromEvent(ev)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	rec.Seq = r.seq
	rec.Time = r.now().UnixMilli()
	if rec.Kind == event.KindRequest.String() {
		r.session = rec.Session
	}
	rec.Session = r.session

	if err := r.enc.Encode(&rec); err != nil {
		r.failed++
		if r.err == nil {
			r.err = err
		}
		r.logger.Warn("trace write failed", "seq", rec.Seq, "err", err)
	}
}

// Len returns the number of events seen.
func (r *Recorder) Len() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Err returns the first write error.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Reader decodes records from a msgpack stream.
type Reader struct {
	dec *msgpack.Decoder
}

// NewReader creates a reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: msgpack.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the stream.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("decoding trace record: %w", err)
	}
	return rec, nil
}

// ReadAll returns every record of the stream.
func ReadAll(r io.Reader) ([]Record, error) {
	tr := NewReader(r)
	var out []Record
	for {
		rec, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
