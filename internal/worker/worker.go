// Package worker provides a NATS worker that serves voice clone jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-worker/internal/core"
	"github.com/book-expert/voice-clone-worker/internal/observability"
	"github.com/nats-io/nats.go"
)

const (
	msgFmtInvalidPayload = "Invalid job payload: %v"
	msgFmtReplyTooLarge  = "Failed to publish audio: result of %d bytes exceeds transport limit %d"
	msgFmtReplyNotSent   = "Failed to publish audio: %v"
)

var (
	// ErrSubjectEmpty indicates that no job subject was configured.
	ErrSubjectEmpty = errors.New("job subject cannot be empty")
	// ErrHandlerNil indicates that no job handler was supplied.
	ErrHandlerNil = errors.New("job handler cannot be nil")
)

// JobHandler turns one job into its single result.
type JobHandler interface {
	Handle(ctx context.Context, job *core.Job) core.Result
}

// NatsWorker listens for voice clone jobs on a NATS subject and answers each one.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	queueGroup     string
	jobTimeout     time.Duration
	handler        JobHandler
	metrics        *observability.Metrics
	log            *logger.Logger
}

// Option configures optional NatsWorker behaviour.
type Option func(*NatsWorker)

// WithMetrics records reply failures that happen after the handler has finished.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(w *NatsWorker) {
		w.metrics = metrics
	}
}

// NewNatsWorker creates a new instance of a NATS worker. Workers sharing queueGroup split
// the jobs between them; an empty queueGroup makes every worker receive every job. A zero
// jobTimeout leaves jobs unbounded.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject, queueGroup string,
	jobTimeout time.Duration,
	handler JobHandler,
	log *logger.Logger,
	opts ...Option,
) (*NatsWorker, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	if handler == nil {
		return nil, ErrHandlerNil
	}

	natsWorker := &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		queueGroup:     queueGroup,
		jobTimeout:     jobTimeout,
		handler:        handler,
		log:            log,
	}

	for _, opt := range opts {
		opt(natsWorker)
	}

	return natsWorker, nil
}

// Run subscribes and serves jobs until ctx is cancelled, then drains the subscription so
// in-flight jobs still get their reply.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.QueueSubscribe(w.subject, w.queueGroup, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for jobs on '%s' (queue group '%s')", w.subject, w.queueGroup)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx := context.Background()

	if w.jobTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	reply := w.processJob(ctx, msg.Data)

	err := w.publishReply(msg, reply)
	if err != nil {
		w.log.Error("Failed to publish reply for job %s: %v", reply.ID, err)
	}
}

// processJob decodes the payload and runs the handler. A payload that does not decode still
// gets an error reply.
func (w *NatsWorker) processJob(ctx context.Context, data []byte) core.Reply {
	var job core.Job

	err := json.Unmarshal(data, &job)
	if err != nil {
		w.log.Error("Failed to unmarshal job: %v", err)

		return core.Reply{Result: core.Result{Error: fmt.Sprintf(msgFmtInvalidPayload, err)}}
	}

	result := w.handler.Handle(ctx, &job)

	return core.Reply{ID: job.JobID(), Result: result}
}

// publishReply marshals and responds with the job reply. Messages without a reply subject
// only have their outcome logged. A reply the transport cannot carry is replaced by an error
// reply so the caller still receives exactly one result.
func (w *NatsWorker) publishReply(msg *nats.Msg, reply core.Reply) error {
	if msg.Reply == "" {
		w.log.Warn("Job %s has no reply subject; result: %s", reply.ID, describe(reply.Result))

		return nil
	}

	replyData, err := json.Marshal(reply)
	if err != nil {
		return w.respondWithFailure(msg, reply.ID, fmt.Sprintf(msgFmtReplyNotSent, err))
	}

	maxPayload := w.natsConnection.MaxPayload()
	if maxPayload > 0 && int64(len(replyData)) > maxPayload {
		w.log.Warn("Reply for job %s is %d bytes, over the %d byte limit", reply.ID, len(replyData), maxPayload)

		return w.respondWithFailure(msg, reply.ID, fmt.Sprintf(msgFmtReplyTooLarge, len(replyData), maxPayload))
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish reply for job %s, sending error reply: %v", reply.ID, err)

		return w.respondWithFailure(msg, reply.ID, fmt.Sprintf(msgFmtReplyNotSent, err))
	}

	return nil
}

// respondWithFailure sends a small error reply in place of a result that could not be delivered.
func (w *NatsWorker) respondWithFailure(msg *nats.Msg, jobID, message string) error {
	w.metrics.ObserveFailure(core.Fail(core.ErrPublish, nil, "%s", message))

	failureData, err := json.Marshal(core.Reply{ID: jobID, Result: core.Result{Error: message}})
	if err != nil {
		return fmt.Errorf("failed to marshal error reply: %w", err)
	}

	err = msg.Respond(failureData)
	if err != nil {
		return fmt.Errorf("failed to publish error reply: %w", err)
	}

	return nil
}

func describe(result core.Result) string {
	if result.Failed() {
		return "error: " + result.Error
	}

	const maxLogged = 120

	if len(result.OutputAudioPath) > maxLogged {
		return result.OutputAudioPath[:maxLogged] + "..."
	}

	return result.OutputAudioPath
}
