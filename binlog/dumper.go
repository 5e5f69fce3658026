package binlog

import (
	"fmt"
	"sync"

	"github.com/flarerpc/flare/cmn/cos"
	"github.com/flarerpc/flare/cmn/mono"
)

// LogWriter is the per-sampled-call capture buffer spec.md §4.7
// describes: system/user tags and log lines are plain key/value pairs;
// packets are appended as they're observed and only serialized at
// Flush, which runs off the critical path.
type LogWriter struct {
	mu sync.Mutex

	correlationID uint64
	startNano     int64
	finishNano    int64
	status        string

	systemTags map[string]string
	userTags   map[string]string
	logLines   []string

	incoming []Packet
	outgoing []Packet

	systemContext []byte
}

func newLogWriter(correlationID uint64, systemTags map[string]string) *LogWriter {
	return &LogWriter{
		correlationID: correlationID,
		startNano:     mono.NanoTime(),
		systemTags:    systemTags,
		userTags:      make(map[string]string),
	}
}

func (w *LogWriter) Tag(key, value string) {
	w.mu.Lock()
	w.userTags[key] = value
	w.mu.Unlock()
}

func (w *LogWriter) Logf(format string, args ...any) {
	w.mu.Lock()
	w.logLines = append(w.logLines, fmt.Sprintf(format, args...))
	w.mu.Unlock()
}

func (w *LogWriter) AddIncoming(p Packet) {
	w.mu.Lock()
	w.incoming = append(w.incoming, p)
	w.mu.Unlock()
}

func (w *LogWriter) AddOutgoing(p Packet) {
	w.mu.Lock()
	w.outgoing = append(w.outgoing, p)
	w.mu.Unlock()
}

func (w *LogWriter) Finish(status string) {
	w.mu.Lock()
	w.finishNano = mono.NanoTime()
	w.status = status
	w.mu.Unlock()
}

// IncomingCallRecord is the flushed, serialization-ready shape of one
// sampled incoming call, spec.md §4.7.
type IncomingCallRecord struct {
	CorrelationID  uint64
	StartNano      int64
	FinishNano     int64
	ServiceName    string
	OperationName  string
	HandlerUUID    string
	LocalPeer      string
	RemotePeer     string
	Status         string
	UserTags       map[string]string
	LogLines       []string
	SystemContext  []byte
	IncomingPacket []Packet
	OutgoingPacket []Packet
}

// OutgoingCallRecord is spec.md §4.7's one-per-remote-call record; its
// correlation ID is derived (hashed) from the caller's correlation ID,
// the method's full name, the channel URL, and a per-call nonce.
type OutgoingCallRecord struct {
	CorrelationID uint64
	OperationName string
	URI           string
	StartNano     int64
	FinishNano    int64
	Status        string
	UserTags      map[string]string
	IncomingPacket []Packet
	OutgoingPacket []Packet
}

func (w *LogWriter) record() IncomingCallRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return IncomingCallRecord{
		CorrelationID:  w.correlationID,
		StartNano:      w.startNano,
		FinishNano:     w.finishNano,
		ServiceName:    w.systemTags["service_name"],
		OperationName:  w.systemTags["operation_name"],
		HandlerUUID:    w.systemTags["handler_uuid"],
		LocalPeer:      w.systemTags["local_peer"],
		RemotePeer:     w.systemTags["remote_peer"],
		Status:         w.status,
		UserTags:       w.userTags,
		LogLines:       w.logLines,
		SystemContext:  w.systemContext,
		IncomingPacket: w.incoming,
		OutgoingPacket: w.outgoing,
	}
}

// Sink receives flushed records; a real deployment backs this with a
// file or remote log shipper.
type Sink interface {
	WriteIncoming(IncomingCallRecord)
	WriteOutgoing(OutgoingCallRecord)
}

// Dumper is spec.md §4.7's capture-at-runtime hook: every RPC may
// acquire at most one sampling quota; a sampled call gets a LogWriter,
// and flush() is handed off to a single background worker goroutine
// through a buffered channel, so the caller's fast path does not run
// the sink itself.
type Dumper struct {
	sampler Sampler
	sink    Sink
	flushCh chan func()
	wg      sync.WaitGroup
}

func NewDumper(sampler Sampler, sink Sink) *Dumper {
	d := &Dumper{sampler: sampler, sink: sink, flushCh: make(chan func(), 256)}
	d.wg.Add(1)
	go d.flushLoop()
	return d
}

func (d *Dumper) flushLoop() {
	defer d.wg.Done()
	for f := range d.flushCh {
		f()
	}
}

// TryAcquire returns a LogWriter if this call was sampled, else nil —
// the zero-overhead "not sampled" path spec.md §4.7 requires.
func (d *Dumper) TryAcquire(correlationID uint64, systemTags map[string]string) *LogWriter {
	if !d.sampler.Sample() {
		return nil
	}
	return newLogWriter(correlationID, systemTags)
}

// FlushIncoming hands w's record off to the background worker.
func (d *Dumper) FlushIncoming(w *LogWriter) {
	if w == nil {
		return
	}
	rec := w.record()
	d.flushCh <- func() { d.sink.WriteIncoming(rec) }
}

func (d *Dumper) FlushOutgoing(rec OutgoingCallRecord) {
	d.flushCh <- func() { d.sink.WriteOutgoing(rec) }
}

func (d *Dumper) Close() {
	close(d.flushCh)
	d.wg.Wait()
}

// OutgoingCorrelationID derives an outgoing call's log correlation ID
// from the caller's correlation ID, method full name, channel URL and a
// per-call nonce, per spec.md §4.7. Delegates to cos.HashOutgoingCallID
// so the xxhash dependency has one call site instead of a second
// hand-rolled hash living next to it.
func OutgoingCorrelationID(callerCorrID uint64, methodFullName, channelURL string, nonce uint64) uint64 {
	return cos.HashOutgoingCallID(callerCorrID, methodFullName, channelURL, nonce)
}
