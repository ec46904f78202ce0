package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/nhle/inbox-triage/internal/email"
)

// DefaultInterval is the pause between ticks when none is configured.
const DefaultInterval = 30 * time.Second

// JobState represents the current state of a job.
type JobState int

const (
	JobIdle JobState = iota
	JobRunning
	JobError
)

func (s JobState) String() string {
	switch s {
	case JobRunning:
		return "running"
	case JobError:
		return "error"
	default:
		return "idle"
	}
}

// Job is one unit of work run on every tick. Tick returns how many items
// it handled (decisions absorbed, messages triaged).
type Job interface {
	Name() string
	Tick(ctx context.Context) (int, error)
}

// Func adapts a function to a Job.
func Func(name string, fn func(ctx context.Context) (int, error)) Job {
	return funcJob{name: name, fn: fn}
}

type funcJob struct {
	name string
	fn   func(ctx context.Context) (int, error)
}

func (j funcJob) Name() string                          { return j.name }
func (j funcJob) Tick(ctx context.Context) (int, error) { return j.fn(ctx) }

// Status holds the state of a single job.
type Status struct {
	Job       string
	State     JobState
	LastRun   time.Time
	LastCount int
	Error     error
}

// ResultMsg is a tea.Msg sent when a job finishes a tick.
type ResultMsg struct {
	Job   string
	Count int
	Error error

	// AuthError is set when the mail server rejected the credentials.
	AuthError bool
	At        time.Time
}

// Summary describes a polling session.
type Summary struct {
	Ticks     int
	Processed int
	Errors    int
	Started   time.Time
	Stopped   time.Time
}

// Poller runs registered jobs one after another on every tick. Ticks never
// overlap, whether driven by Run, by the TUI loop, or by Refresh.
type Poller struct {
	jobs      []Job
	statuses  map[string]*Status
	log       zerolog.Logger
	resultCh  chan ResultMsg
	triggerCh chan struct{}
	stopCh    chan struct{}

	// tickMu is held for the whole of a tick.
	tickMu gosync.Mutex

	mu      gosync.Mutex
	running bool
	summary Summary
}

// New creates a Poller for jobs.
func New(log zerolog.Logger, jobs ...Job) *Poller {
	p := &Poller{
		statuses:  make(map[string]*Status),
		log:       log,
		resultCh:  make(chan ResultMsg, 16),
		triggerCh: make(chan struct{}, 1),
	}
	for _, j := range jobs {
		p.Register(j)
	}
	return p
}

// Register adds a job. Jobs run in registration order.
func (p *Poller) Register(j Job) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.jobs = append(p.jobs, j)
	p.statuses[j.Name()] = &Status{Job: j.Name(), State: JobIdle}
}

// Tick runs every job once and returns one result per job.
func (p *Poller) Tick(ctx context.Context) []ResultMsg {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	p.mu.Lock()
	jobs := append([]Job(nil), p.jobs...)
	if p.summary.Started.IsZero() {
		p.summary.Started = time.Now()
	}
	p.mu.Unlock()

	results := make([]ResultMsg, 0, len(jobs))
	for _, j := range jobs {
		results = append(results, p.runJob(ctx, j))
	}

	p.mu.Lock()
	p.summary.Ticks++
	p.mu.Unlock()

	return results
}

func (p *Poller) runJob(ctx context.Context, j Job) ResultMsg {
	name := j.Name()
	p.setStatus(name, JobRunning, 0, nil)

	count, err := j.Tick(ctx)
	res := ResultMsg{Job: name, Count: count, Error: err, At: time.Now()}

	p.mu.Lock()
	p.summary.Processed += count
	if err != nil {
		p.summary.Errors++
	}
	p.mu.Unlock()

	if err != nil {
		res.AuthError = email.IsAuthError(err)
		p.setStatus(name, JobError, count, err)
		p.log.Error().Err(err).Str("job", name).Bool("auth", res.AuthError).Msg("tick failed")
		return res
	}

	p.setStatus(name, JobIdle, count, nil)
	if count > 0 {
		p.log.Info().Str("job", name).Int("count", count).Msg("tick complete")
	} else {
		p.log.Info().Str("job", name).Msg("tick complete, nothing new")
	}
	return res
}

// Run ticks until ctx is cancelled and returns the session summary.
// Cancellation is only observed between ticks; a tick that has started
// runs to completion.
func (p *Poller) Run(ctx context.Context, interval time.Duration) Summary {
	if interval <= 0 {
		interval = DefaultInterval
	}
	tickCtx := context.WithoutCancel(ctx)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.finish()
		case <-timer.C:
		}

		p.Tick(tickCtx)
		timer.Reset(interval)
	}
}

// Start returns a tea.Cmd that starts the polling goroutine and subscribes
// to results. Each job result arrives as a ResultMsg.
func (p *Poller) Start(interval time.Duration) tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	stop := make(chan struct{})
	p.stopCh = stop
	p.mu.Unlock()

	if interval <= 0 {
		interval = DefaultInterval
	}
	go p.loop(interval, stop)

	return p.waitForResult()
}

// Stop halts the polling goroutine started by Start.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.running = false
}

// Refresh asks the polling goroutine for an immediate tick.
func (p *Poller) Refresh() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
		// A refresh is already queued.
	}
}

// Statuses returns the job statuses in registration order.
func (p *Poller) Statuses() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]Status, 0, len(p.jobs))
	for _, j := range p.jobs {
		statuses = append(statuses, *p.statuses[j.Name()])
	}
	return statuses
}

// Summary returns the counters accumulated so far.
func (p *Poller) Summary() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summary
}

// WaitForNextResult returns a tea.Cmd that waits for the next job result.
// Call it after handling a ResultMsg to keep listening.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}

func (p *Poller) loop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.tickAndSend()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.tickAndSend()
		case <-p.triggerCh:
			p.tickAndSend()
		}
	}
}

func (p *Poller) tickAndSend() {
	for _, res := range p.Tick(context.Background()) {
		p.sendResult(res)
	}
}

func (p *Poller) finish() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summary.Stopped = time.Now()
	return p.summary
}

func (p *Poller) setStatus(job string, state JobState, count int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[job]
	if !ok {
		return
	}

	status.State = state
	status.Error = err
	if state != JobRunning {
		status.LastRun = time.Now()
		status.LastCount = count
	}
}

// sendResult sends a ResultMsg without blocking.
func (p *Poller) sendResult(msg ResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the poller
	}
}

func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-p.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

// String formats the summary for the end-of-session report.
func (s Summary) String() string {
	d := s.Stopped.Sub(s.Started).Round(time.Second)
	if s.Started.IsZero() || s.Stopped.IsZero() {
		d = 0
	}
	return fmt.Sprintf("%d ticks, %d processed, %d errors in %s", s.Ticks, s.Processed, s.Errors, d)
}
