package worker

import "sync/atomic"

// Counter counts jobs currently executing across every Processor of a
// process.
type Counter struct {
	n atomic.Int64
}

// Inc marks a job as started.
func (c *Counter) Inc() { c.n.Add(1) }

// Dec marks a job as finished.
func (c *Counter) Dec() { c.n.Add(-1) }

// Busy returns the number of jobs executing now.
func (c *Counter) Busy() int { return int(c.n.Load()) }
