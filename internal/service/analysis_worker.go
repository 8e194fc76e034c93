package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/agriai/server/internal/models"
)

// TopicAnalysisJobs is the watermill topic carrying classification jobs.
const TopicAnalysisJobs = "analysis.jobs"

// AnalysisJob is the payload queued for the worker.
type AnalysisJob struct {
	AnalysisID string `json:"analysis_id"`
}

// Classifier produces ranked disease predictions for an image.
type Classifier interface {
	Classify(ctx context.Context, image []byte, contentType string) ([]models.Prediction, error)
}

// AdviceGenerator writes short treatment advice for a diagnosed disease.
type AdviceGenerator interface {
	GenerateAdvice(ctx context.Context, crop, disease string) (string, error)
}

// AnalysisWorker consumes analysis jobs and drives each record from pending
// through processing to completed or failed. Transient failures get exactly
// one redelivery; anything the classifier rejects fails immediately.
type AnalysisWorker struct {
	sub        message.Subscriber
	topic      string
	analyses   AnalysisRepository
	store      ObjectStore
	classifier Classifier
	advisor    AdviceGenerator
	log        *zap.Logger

	// Redeliveries arrive as fresh copies of the published message, so
	// attempts are counted here keyed by the UUID, which does survive.
	mu       sync.Mutex
	attempts map[string]int
}

// NewAnalysisWorker wires its dependencies.
func NewAnalysisWorker(sub message.Subscriber, topic string, analyses AnalysisRepository, store ObjectStore, classifier Classifier, advisor AdviceGenerator, log *zap.Logger) *AnalysisWorker {
	return &AnalysisWorker{
		sub:        sub,
		topic:      topic,
		analyses:   analyses,
		store:      store,
		classifier: classifier,
		advisor:    advisor,
		log:        log,
		attempts:   make(map[string]int),
	}
}

// Run subscribes to the job topic and processes messages until ctx ends.
func (w *AnalysisWorker) Run(ctx context.Context) error {
	messages, err := w.sub.Subscribe(ctx, w.topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			w.handle(ctx, msg)
		}
	}()
	return nil
}

func (w *AnalysisWorker) handle(ctx context.Context, msg *message.Message) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	var job AnalysisJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		w.log.Warn("dropping malformed analysis job", zap.String("uuid", msg.UUID), zap.Error(err))
		msg.Ack()
		return
	}

	id, err := primitive.ObjectIDFromHex(job.AnalysisID)
	if err != nil {
		w.log.Warn("dropping job with bad analysis id", zap.String("analysis_id", job.AnalysisID))
		msg.Ack()
		return
	}

	rec, err := w.analyses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Record deleted between enqueue and processing.
			w.log.Warn("analysis record gone, dropping job", zap.String("analysis_id", job.AnalysisID))
			w.drop(msg)
			return
		}
		w.retryOrFail(ctx, msg, id, err)
		return
	}

	if rec.Status == models.AnalysisCompleted || rec.Status == models.AnalysisFailed {
		// Redelivery of an already-finished job.
		w.drop(msg)
		return
	}

	if rec.Status == models.AnalysisPending {
		ok, err := w.analyses.MarkProcessing(ctx, id)
		if err != nil {
			w.retryOrFail(ctx, msg, id, err)
			return
		}
		if !ok {
			// Someone else claimed it since the read above.
			w.drop(msg)
			return
		}
	}

	image, err := w.store.Download(ctx, rec.ImageKey)
	if err != nil {
		w.retryOrFail(ctx, msg, id, err)
		return
	}

	preds, err := w.classifier.Classify(ctx, image, rec.ContentType)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			w.fail(ctx, msg, id, err)
			return
		}
		w.retryOrFail(ctx, msg, id, err)
		return
	}
	if len(preds) == 0 {
		w.fail(ctx, msg, id, errors.New("classifier returned no predictions"))
		return
	}

	// Advice is best effort: a completed classification without advice beats
	// a failed record.
	advice, err := w.advisor.GenerateAdvice(ctx, rec.Crop, preds[0].Label)
	if err != nil {
		w.log.Warn("advice generation failed",
			zap.String("analysis_id", job.AnalysisID), zap.Error(err))
		advice = ""
	}

	if err := w.analyses.MarkCompleted(ctx, id, preds, advice); err != nil {
		w.retryOrFail(ctx, msg, id, err)
		return
	}

	w.log.Info("analysis completed",
		zap.String("analysis_id", job.AnalysisID),
		zap.String("top_label", preds[0].Label),
		zap.Float64("confidence", preds[0].Confidence))
	w.drop(msg)
}

// retryOrFail Nacks the first transient failure for a single redelivery and
// fails the record for good on the second.
func (w *AnalysisWorker) retryOrFail(ctx context.Context, msg *message.Message, id primitive.ObjectID, cause error) {
	w.mu.Lock()
	w.attempts[msg.UUID]++
	n := w.attempts[msg.UUID]
	w.mu.Unlock()

	if n == 1 {
		w.log.Warn("analysis attempt failed, requeueing",
			zap.String("analysis_id", id.Hex()), zap.Error(cause))
		msg.Nack()
		return
	}
	w.fail(ctx, msg, id, cause)
}

func (w *AnalysisWorker) fail(ctx context.Context, msg *message.Message, id primitive.ObjectID, cause error) {
	w.log.Error("analysis failed", zap.String("analysis_id", id.Hex()), zap.Error(cause))
	if err := w.analyses.MarkFailed(ctx, id, cause.Error()); err != nil {
		w.log.Error("could not mark analysis failed",
			zap.String("analysis_id", id.Hex()), zap.Error(err))
	}
	w.drop(msg)
}

// drop acknowledges a message that must not come back.
func (w *AnalysisWorker) drop(msg *message.Message) {
	w.mu.Lock()
	delete(w.attempts, msg.UUID)
	w.mu.Unlock()
	msg.Ack()
}
