// Package status provides in-process fan-out of job state transitions to
// live subscribers, filtered by job id.
package status

import (
	"sync"

	"github.com/smill0791/data-integration-platform/internal/logger"
	"github.com/smill0791/data-integration-platform/internal/models"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber
// that falls further behind than this drops events rather than blocking
// the publisher.
const subscriberBuffer = 16

type subscriber struct {
	jobID int64
	ch    chan *models.SyncJob
}

// Publisher broadcasts job snapshots to registered subscribers. Publish
// never blocks and never fails the caller. Constructed once at startup.
type Publisher struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

// NewPublisher creates an empty publisher.
func NewPublisher() *Publisher {
	return &Publisher{
		subs: make(map[int]*subscriber),
	}
}

// Publish broadcasts a snapshot of the job to every subscriber watching
// its id. Slow subscribers drop the event.
func (p *Publisher) Publish(job *models.SyncJob) {
	if job == nil {
		return
	}
	snapshot := job.Clone()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for _, sub := range p.subs {
		if sub.jobID != job.ID {
			continue
		}
		select {
		case sub.ch <- snapshot:
		default:
			logger.Warnf("Dropping status event for job %d: subscriber buffer full", job.ID)
		}
	}
}

// Subscribe registers a live view of the given job id. The returned
// channel receives every snapshot published for that job after the
// subscription attaches; events for other jobs are filtered out. The
// cancel func detaches the subscriber and closes the channel.
func (p *Publisher) Subscribe(jobID int64) (<-chan *models.SyncJob, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	sub := &subscriber{
		jobID: jobID,
		ch:    make(chan *models.SyncJob, subscriberBuffer),
	}
	if p.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	p.subs[id] = sub

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(sub.ch)
		}
	}
	return sub.ch, cancel
}

// Close detaches all subscribers and closes their channels. Further
// publishes are dropped and further subscriptions return closed channels.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, sub := range p.subs {
		delete(p.subs, id)
		close(sub.ch)
	}
}
