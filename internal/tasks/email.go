package tasks

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/userhub-api/backend/internal/mq"
)

// EmailChannel is the broker channel carrying email jobs.
const EmailChannel = "email.send"

const attrTaskID = "task_id"

// Email is the payload of a send-email job.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Enqueuer publishes email jobs to the broker. Fire-and-forget from the
// API's point of view: delivery and retries are the broker's problem.
type Enqueuer struct {
	queue *mq.MQ
}

func NewEnqueuer(queue *mq.MQ) *Enqueuer {
	return &Enqueuer{queue: queue}
}

// Enqueue publishes the job and returns the task id a client can poll.
func (e *Enqueuer) Enqueue(ctx context.Context, email Email) (string, error) {
	data, err := json.Marshal(email)
	if err != nil {
		return "", err
	}

	taskID := uuid.NewString()
	if _, err := e.queue.Publish(ctx, EmailChannel, data, map[string]string{attrTaskID: taskID}); err != nil {
		return "", err
	}
	return taskID, nil
}

// Worker consumes email jobs and records their outcome in the result
// store. Actual SMTP delivery is out of scope; the send is logged.
type Worker struct {
	queue   *mq.MQ
	results *ResultStore
	log     *slog.Logger
}

func NewWorker(queue *mq.MQ, results *ResultStore, log *slog.Logger) *Worker {
	return &Worker{queue: queue, results: results, log: log}
}

// Run blocks consuming the email channel until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("email worker started", "channel", EmailChannel)
	return w.queue.Subscribe(ctx, EmailChannel, w.Handle)
}

// Handle processes a single email job. A payload that cannot be decoded
// is acked rather than requeued, so a poison message cannot loop
// forever.
func (w *Worker) Handle(ctx context.Context, msg mq.Message) error {
	var email Email
	if err := json.Unmarshal(msg.Data, &email); err != nil {
		w.log.Error("discarding malformed email job", "message_id", msg.ID, "err", err)
		return nil
	}

	taskID := msg.Attributes[attrTaskID]
	if taskID == "" {
		taskID = msg.ID
	}

	w.log.Info("sent email", "to", email.To, "subject", email.Subject, "task_id", taskID)

	result := Result{
		Status:      StatusSent,
		To:          email.To,
		Subject:     email.Subject,
		CompletedAt: time.Now().UTC(),
	}
	if err := w.results.Set(ctx, taskID, result); err != nil {
		w.log.Error("failed to record task result", "task_id", taskID, "err", err)
		return err
	}
	return nil
}
