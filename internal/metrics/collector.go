package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector counts what happens to log entries between the front door and
// the durable sink. All methods are safe for concurrent use.
type Collector struct {
	// Entries accepted into a mailbox, by level
	acceptedByLevel sync.Map // map[int]*atomic.Uint64
	dropped         uint64

	// File sink
	linesWritten  uint64
	bytesWritten  uint64
	rotationCount uint64
	writeCount    uint64
	totalWriteNs  int64
	maxWriteNs    int64

	// Pub/sub sink
	batchesPublished uint64
	recordsPublished uint64
	publishFailures  uint64
	reconnects       uint64

	// Error metrics
	errorCount     uint64
	errorsBySource sync.Map // map[string]*atomic.Uint64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Metrics is a point in time snapshot of a Collector.
type Metrics struct {
	Accepted map[int]uint64 `json:"accepted"`
	Dropped  uint64         `json:"dropped"`

	QueueDepth       int     `json:"queue_depth"`
	QueueCapacity    int     `json:"queue_capacity"`
	QueueUtilization float64 `json:"queue_utilization"`

	LinesWritten     uint64        `json:"lines_written"`
	BytesWritten     uint64        `json:"bytes_written"`
	RotationCount    uint64        `json:"rotation_count"`
	AverageWriteTime time.Duration `json:"average_write_time"`
	MaxWriteTime     time.Duration `json:"max_write_time"`

	BatchesPublished uint64 `json:"batches_published"`
	RecordsPublished uint64 `json:"records_published"`
	PublishFailures  uint64 `json:"publish_failures"`
	Reconnects       uint64 `json:"reconnects"`

	ErrorCount     uint64            `json:"error_count"`
	ErrorsBySource map[string]uint64 `json:"errors_by_source"`
}

// GetMetrics returns current metrics snapshot.
func (c *Collector) GetMetrics(queueDepth, queueCapacity int) Metrics {
	m := Metrics{
		Accepted:         make(map[int]uint64),
		Dropped:          atomic.LoadUint64(&c.dropped),
		QueueDepth:       queueDepth,
		QueueCapacity:    queueCapacity,
		LinesWritten:     atomic.LoadUint64(&c.linesWritten),
		BytesWritten:     atomic.LoadUint64(&c.bytesWritten),
		RotationCount:    atomic.LoadUint64(&c.rotationCount),
		MaxWriteTime:     time.Duration(atomic.LoadInt64(&c.maxWriteNs)),
		BatchesPublished: atomic.LoadUint64(&c.batchesPublished),
		RecordsPublished: atomic.LoadUint64(&c.recordsPublished),
		PublishFailures:  atomic.LoadUint64(&c.publishFailures),
		Reconnects:       atomic.LoadUint64(&c.reconnects),
		ErrorCount:       atomic.LoadUint64(&c.errorCount),
		ErrorsBySource:   make(map[string]uint64),
	}

	if m.QueueCapacity > 0 {
		m.QueueUtilization = float64(m.QueueDepth) / float64(m.QueueCapacity)
	}

	c.acceptedByLevel.Range(func(key, value interface{}) bool {
		if count := value.(*atomic.Uint64).Load(); count > 0 {
			m.Accepted[key.(int)] = count
		}
		return true
	})

	c.errorsBySource.Range(func(key, value interface{}) bool {
		if count := value.(*atomic.Uint64).Load(); count > 0 {
			m.ErrorsBySource[key.(string)] = count
		}
		return true
	})

	if writes := atomic.LoadUint64(&c.writeCount); writes > 0 {
		m.AverageWriteTime = time.Duration(atomic.LoadInt64(&c.totalWriteNs)) / time.Duration(writes)
	}

	return m
}

// TrackAccepted counts an entry that made it into a mailbox.
func (c *Collector) TrackAccepted(level int) {
	val, _ := c.acceptedByLevel.LoadOrStore(level, &atomic.Uint64{})
	val.(*atomic.Uint64).Add(1)
}

// TrackDropped counts an entry or flush request lost at the mailbox.
func (c *Collector) TrackDropped() {
	atomic.AddUint64(&c.dropped, 1)
}

// TrackWrite records one line appended to the log file.
func (c *Collector) TrackWrite(bytes int, duration time.Duration) {
	atomic.AddUint64(&c.linesWritten, 1)
	atomic.AddUint64(&c.bytesWritten, uint64(bytes))
	atomic.AddUint64(&c.writeCount, 1)
	atomic.AddInt64(&c.totalWriteNs, int64(duration))

	for {
		oldMax := atomic.LoadInt64(&c.maxWriteNs)
		if int64(duration) <= oldMax {
			break
		}
		if atomic.CompareAndSwapInt64(&c.maxWriteNs, oldMax, int64(duration)) {
			break
		}
	}
}

// TrackRotation increments the rotation counter.
func (c *Collector) TrackRotation() {
	atomic.AddUint64(&c.rotationCount, 1)
}

// TrackPublish records a confirmed batch publish of n records.
func (c *Collector) TrackPublish(n int) {
	atomic.AddUint64(&c.batchesPublished, 1)
	atomic.AddUint64(&c.recordsPublished, uint64(n))
}

// TrackPublishFailure counts a failed publish attempt.
func (c *Collector) TrackPublishFailure() {
	atomic.AddUint64(&c.publishFailures, 1)
}

// TrackReconnect counts a successful broker reconnect.
func (c *Collector) TrackReconnect() {
	atomic.AddUint64(&c.reconnects, 1)
}

// TrackError increments the error counter and tracks by source.
func (c *Collector) TrackError(source string) {
	atomic.AddUint64(&c.errorCount, 1)

	val, _ := c.errorsBySource.LoadOrStore(source, &atomic.Uint64{})
	val.(*atomic.Uint64).Add(1)
}

// AcceptedCount returns the number of entries accepted at level.
func (c *Collector) AcceptedCount(level int) uint64 {
	if val, ok := c.acceptedByLevel.Load(level); ok {
		return val.(*atomic.Uint64).Load()
	}
	return 0
}

// DroppedCount returns the number of messages lost at the mailbox.
func (c *Collector) DroppedCount() uint64 {
	return atomic.LoadUint64(&c.dropped)
}
