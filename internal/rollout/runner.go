package rollout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fleetbridge/fleetbridge/internal/console"
	"github.com/fleetbridge/fleetbridge/internal/uplink"
	"github.com/fleetbridge/fleetbridge/pkg/plugin"
	"go.uber.org/zap"
)

// SessionBroker opens fileop sessions on devices and drives uploads and
// commands through them. The console module is the production
// implementation.
type SessionBroker interface {
	OpenFileOp(ctx context.Context, deviceID string) (console.Session, error)
	Upload(ctx context.Context, sessionID, remotePath string, src io.Reader, timeout time.Duration) (int64, error)
	Exec(ctx context.Context, sessionID, command string) (uplink.ExecResult, error)
	CloseSession(ctx context.Context, sessionID string) error
}

// Deployments waiting per device beyond this are rejected at submit.
const queueDepth = 16

var errQueueFull = errors.New("deployment queue full for device")

// runner executes deployments: one FIFO worker per device, a global slot
// semaphore bounding cross-device concurrency, and a single writer for
// every state transition. Store writes use a background context so a
// cancelled deployment still persists its terminal state.
type runner struct {
	logger    *zap.Logger
	cfg       Config
	store     *RolloutStore
	bus       plugin.EventBus
	broker    SessionBroker
	artifacts ArtifactSource

	ctx    context.Context
	cancel context.CancelFunc
	slots  chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	queues map[string]chan *Deployment
	active map[string]context.CancelCauseFunc
	closed bool
}

func newRunner(cfg Config, store *RolloutStore, bus plugin.EventBus, broker SessionBroker, artifacts ArtifactSource, logger *zap.Logger) *runner {
	ctx, cancel := context.WithCancel(context.Background())
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &runner{
		logger:    logger,
		cfg:       cfg,
		store:     store,
		bus:       bus,
		broker:    broker,
		artifacts: artifacts,
		ctx:       ctx,
		cancel:    cancel,
		slots:     make(chan struct{}, maxConcurrent),
		queues:    make(map[string]chan *Deployment),
		active:    make(map[string]context.CancelCauseFunc),
	}
}

// enqueue hands a queued deployment to its device worker, creating the
// worker on first use.
func (r *runner) enqueue(d *Deployment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("runner stopped")
	}
	q, ok := r.queues[d.DeviceID]
	if !ok {
		q = make(chan *Deployment, queueDepth)
		r.queues[d.DeviceID] = q
		r.wg.Add(1)
		go r.deviceLoop(q)
	}
	select {
	case q <- d:
		return nil
	default:
		return errQueueFull
	}
}

func (r *runner) stop() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}

// forceDisconnect cancels the in-flight deployment for a device, if any.
// The device worker performs the Failed transition, so racing offline and
// connection-closed events collapse into one outcome.
func (r *runner) forceDisconnect(deviceID string) {
	r.mu.Lock()
	cancel := r.active[deviceID]
	r.mu.Unlock()
	if cancel != nil {
		cancel(uplink.ErrDeviceDisconnected)
	}
}

func (r *runner) activeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

func (r *runner) deviceLoop(q chan *Deployment) {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case d := <-q:
			select {
			case r.slots <- struct{}{}:
			case <-r.ctx.Done():
				return
			}
			r.run(d)
			<-r.slots
		}
	}
}

// run drives one deployment through its step sequence.
func (r *runner) run(d *Deployment) {
	ctx, cancel := context.WithCancelCause(r.ctx)
	r.mu.Lock()
	r.active[d.DeviceID] = cancel
	r.mu.Unlock()
	deploymentsActive.Inc()
	defer func() {
		r.mu.Lock()
		delete(r.active, d.DeviceID)
		r.mu.Unlock()
		cancel(nil)
		deploymentsActive.Dec()
	}()

	now := time.Now().UTC()
	d.State = StateInProgress
	d.StartedAt = &now
	if err := r.store.MarkStarted(context.Background(), d.ID, now); err != nil {
		r.logger.Error("persist deployment start", zap.String("deployment_id", d.ID), zap.Error(err))
	}
	r.publishLifecycle(TopicDeploymentStarted, d)
	r.logger.Info("deployment started",
		zap.String("deployment_id", d.ID),
		zap.String("device_id", d.DeviceID),
		zap.String("artifact", d.ArtifactRef),
	)

	sess, err := r.broker.OpenFileOp(ctx, d.DeviceID)
	if err != nil {
		r.conclude(d, fmt.Sprintf("open session: %v", r.failureReason(ctx, err)))
		return
	}
	defer r.broker.CloseSession(context.Background(), sess.ID)

	for _, step := range []Step{StepUpload, StepInstall, StepStart} {
		if err := r.runStep(ctx, d, sess, step); err != nil {
			r.conclude(d, err.Error())
			return
		}
	}
	r.conclude(d, "")
}

// conclude records the terminal state. An empty errMsg means success.
func (r *runner) conclude(d *Deployment, errMsg string) {
	now := time.Now().UTC()
	d.FinishedAt = &now
	if errMsg == "" {
		d.State = StateSucceeded
	} else {
		d.State = StateFailed
		d.Error = errMsg
	}
	if err := r.store.MarkFinished(context.Background(), d); err != nil {
		r.logger.Error("persist deployment finish", zap.String("deployment_id", d.ID), zap.Error(err))
	}
	deploymentsTotal.WithLabelValues(string(d.State)).Inc()
	r.publishLifecycle(TopicDeploymentCompleted, d)

	if errMsg == "" {
		r.logger.Info("deployment succeeded",
			zap.String("deployment_id", d.ID),
			zap.String("device_id", d.DeviceID),
		)
	} else {
		r.logger.Warn("deployment failed",
			zap.String("deployment_id", d.ID),
			zap.String("device_id", d.DeviceID),
			zap.String("reason", errMsg),
		)
	}
}

func (r *runner) runStep(ctx context.Context, d *Deployment, sess console.Session, step Step) error {
	stepCtx, cancel := context.WithTimeout(ctx, r.cfg.StepTimeout)
	defer cancel()

	result := StepResult{Step: step, StartedAt: time.Now().UTC()}
	var err error
	if step == StepUpload {
		err = r.uploadStep(stepCtx, d, sess, &result)
	} else {
		err = r.execStep(stepCtx, d, sess, step, &result)
	}
	result.FinishedAt = time.Now().UTC()
	if err != nil {
		err = r.failureReason(stepCtx, err)
		result.Error = err.Error()
	}
	d.Steps = append(d.Steps, result)
	if err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}

// uploadStep pushes the artifact into the session's working directory.
// The artifact is reopened per attempt so a retry streams from the start.
func (r *runner) uploadStep(ctx context.Context, d *Deployment, sess console.Session, result *StepResult) error {
	attempt := func() (int64, error) {
		rc, size, err := r.artifacts.Open(d.ArtifactRef)
		if err != nil {
			return 0, err
		}
		defer rc.Close()

		timeout := r.cfg.UploadBaseTimeout
		if r.cfg.UploadBytesPerSec > 0 {
			timeout += time.Duration(size/r.cfg.UploadBytesPerSec) * time.Second
		}
		r.appendLog(d, StepUpload, fmt.Sprintf("uploading %s (%d bytes)", d.ArtifactRef, size))
		return r.broker.Upload(ctx, sess.ID, d.ArtifactRef, rc, timeout)
	}

	n, err := attempt()
	if transientIO(err) && ctx.Err() == nil {
		r.appendLog(d, StepUpload, "transient upload error, retrying: "+err.Error())
		result.Retried = true
		n, err = attempt()
	}
	if err != nil {
		return err
	}
	r.appendLog(d, StepUpload, fmt.Sprintf("upload complete (%d bytes)", n))
	return nil
}

func (r *runner) execStep(ctx context.Context, d *Deployment, sess console.Session, step Step, result *StepResult) error {
	cmd := r.stepCommand(d.ArtifactRef, sess.Cwd, step)
	r.appendLog(d, step, "$ "+cmd)

	attempt := func() (uplink.ExecResult, error) {
		ectx, cancel := context.WithTimeout(ctx, r.cfg.ExecTimeout)
		defer cancel()
		return r.broker.Exec(ectx, sess.ID, cmd)
	}

	res, err := attempt()
	if transientIO(err) && ctx.Err() == nil {
		r.appendLog(d, step, "transient exec error, retrying: "+err.Error())
		result.Retried = true
		res, err = attempt()
	}
	if err != nil {
		return err
	}

	result.ExitCode = res.ExitCode
	result.Stdout = res.Stdout
	result.Stderr = res.Stderr
	r.appendOutput(d, step, res.Stdout)
	r.appendOutput(d, step, res.Stderr)
	if res.ExitCode != 0 {
		return fmt.Errorf("command exited %d", res.ExitCode)
	}
	return nil
}

// stepCommand picks the per-artifact override when present, else the
// configured template. {artifact} is the uploaded file name, {dir} the
// session's working directory.
func (r *runner) stepCommand(ref, dir string, step Step) string {
	cmd, ok := r.artifacts.Command(ref, step)
	if !ok {
		switch step {
		case StepInstall:
			cmd = r.cfg.InstallCommand
		case StepStart:
			cmd = r.cfg.StartCommand
		}
	}
	cmd = strings.ReplaceAll(cmd, "{artifact}", ref)
	cmd = strings.ReplaceAll(cmd, "{dir}", dir)
	return cmd
}

// appendLog persists and publishes one log line. Appends run on the single
// device worker, so persisted order and published order agree.
func (r *runner) appendLog(d *Deployment, step Step, text string) {
	line := LogLine{
		Seq:  len(d.LogLines) + 1,
		Time: time.Now().UTC(),
		Step: step,
		Line: text,
	}
	d.LogLines = append(d.LogLines, line)
	if err := r.store.AppendLogLine(context.Background(), d.ID, line); err != nil {
		r.logger.Warn("persist log line", zap.String("deployment_id", d.ID), zap.Error(err))
	}
	if r.bus != nil {
		_ = r.bus.Publish(context.Background(), plugin.Event{
			Topic:     TopicDeploymentLog,
			Source:    "rollout",
			Timestamp: line.Time,
			Payload:   LogEvent{DeploymentID: d.ID, DeviceID: d.DeviceID, Line: line},
		})
	}
}

// appendOutput splits captured command output into individual log lines.
func (r *runner) appendOutput(d *Deployment, step Step, out string) {
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		r.appendLog(d, step, line)
	}
}

func (r *runner) publishLifecycle(topic string, d *Deployment) {
	if r.bus == nil {
		return
	}
	r.bus.PublishAsync(context.Background(), plugin.Event{
		Topic:     topic,
		Source:    "rollout",
		Timestamp: time.Now().UTC(),
		Payload: DeploymentEvent{
			DeploymentID: d.ID,
			DeviceID:     d.DeviceID,
			ArtifactRef:  d.ArtifactRef,
			State:        d.State,
			Error:        d.Error,
		},
	})
}

// failureReason prefers the disconnect cause over whatever error the
// cancelled operation surfaced.
func (r *runner) failureReason(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); errors.Is(cause, uplink.ErrDeviceDisconnected) {
		return uplink.ErrDeviceDisconnected
	}
	if errors.Is(err, uplink.ErrDeviceDisconnected) {
		return uplink.ErrDeviceDisconnected
	}
	return err
}

// transientIO reports whether err looks like a connection blip worth one
// retry. Timeouts, cancellations, exit codes, and anything already
// classified as a dead device or session are final.
func transientIO(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, uplink.ErrDeviceDisconnected) || errors.Is(err, console.ErrSessionClosed) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	return strings.Contains(err.Error(), "connection reset")
}
