// Package ingest implements the asynchronous ingestion engine: an in-memory
// job table driven through a queued -> running -> succeeded|failed state
// machine by a bounded worker pool. Source resolution, PDF acquisition and
// parsing run sequentially inside one job; jobs are independent of each
// other.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scholartech/scholargraph/internal/fetch"
	"github.com/scholartech/scholargraph/internal/graph"
	"github.com/scholartech/scholargraph/internal/parser"
	"github.com/scholartech/scholargraph/pkg/logging"
	"github.com/scholartech/scholargraph/pkg/scholar"
)

const defaultQueueDepth = 256

// Options configures the engine.
type Options struct {
	WorkerCount     int // 0 means NumCPU
	QueueDepth      int // 0 means defaultQueueDepth
	AllowRemotePDFs bool
	AllowLocalPDFs  bool
}

// Engine owns the job and document tables exclusively. All reads hand out
// clones; other components reference documents by id only.
type Engine struct {
	graph  *graph.Aggregator
	client *fetch.Client
	chain  *parser.Chain
	opts   Options

	mu   sync.RWMutex
	jobs map[string]*scholar.IngestionJob
	docs map[string]*scholar.ParsedDocument

	queue   chan string // job ids
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	log zerolog.Logger
}

// NewEngine creates the engine and starts its worker pool. Call Shutdown to
// stop workers and cancel in-flight jobs.
func NewEngine(aggregator *graph.Aggregator, client *fetch.Client, chain *parser.Chain, opts Options) *Engine {
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = runtime.NumCPU()
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = defaultQueueDepth
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		graph:   aggregator,
		client:  client,
		chain:   chain,
		opts:    opts,
		jobs:    make(map[string]*scholar.IngestionJob),
		docs:    make(map[string]*scholar.ParsedDocument),
		queue:   make(chan string, opts.QueueDepth),
		baseCtx: ctx,
		cancel:  cancel,
		log:     logging.GetLogger("ingest"),
	}
	for i := 0; i < opts.WorkerCount; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Enqueue validates the source, creates a queued job and schedules it.
// Identical source seeds always yield the same document id, while every call
// gets its own job id.
func (e *Engine) Enqueue(source scholar.IngestionSource) (*scholar.IngestionJob, error) {
	if source.Empty() {
		return nil, &scholar.ValidationError{Message: "at least one of doi, paper_url, pdf_url or local_pdf_path is required"}
	}
	source.DOI = scholar.NormalizeDOI(source.DOI)
	if source.ParseMode == "" {
		source.ParseMode = string(parser.ModeAuto)
	}

	job := &scholar.IngestionJob{
		JobID:        "job_" + uuid.New().String(),
		DocumentID:   documentID(source),
		Status:       scholar.JobQueued,
		CreatedAt:    time.Now().UTC(),
		Source:       source,
		LicenseState: scholar.LicenseUnknown,
	}

	e.mu.Lock()
	e.jobs[job.JobID] = job
	e.mu.Unlock()

	select {
	case e.queue <- job.JobID:
	default:
		// Queue saturated: fail fast rather than block the caller.
		e.failJob(job.JobID, &scholar.IngestionError{Message: "Ingestion queue is full; retry later."})
	}

	e.log.Info().
		Str("job_id", job.JobID).
		Str("document_id", job.DocumentID).
		Msg("Ingestion job enqueued")
	return job.Clone(), nil
}

// GetJob returns a copy of the job record.
func (e *Engine) GetJob(jobID string) (*scholar.IngestionJob, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	job, ok := e.jobs[jobID]
	if !ok {
		return nil, &scholar.NotFoundError{Kind: "job", ID: jobID}
	}
	return job.Clone(), nil
}

// GetDocument returns the stored parsed document.
func (e *Engine) GetDocument(documentID string) (*scholar.ParsedDocument, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	doc, ok := e.docs[documentID]
	if !ok {
		return nil, &scholar.NotFoundError{Kind: "document", ID: documentID}
	}
	// Documents are immutable once stored; hand the pointer out as-is.
	return doc, nil
}

// Counts reports table sizes for the health endpoint.
func (e *Engine) Counts() (jobs, documents int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.jobs), len(e.docs)
}

// Shutdown cancels in-flight jobs and waits for workers to drain.
func (e *Engine) Shutdown() {
	e.cancel()
	close(e.queue)
	e.wg.Wait()
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for jobID := range e.queue {
		if e.baseCtx.Err() != nil {
			e.failJob(jobID, &scholar.IngestionError{Message: "Server shutting down before job execution."})
			continue
		}
		e.execute(jobID)
	}
}

// execute drives one job through the full pipeline. Any failure is absorbed
// into the job record; workers never die on job errors.
func (e *Engine) execute(jobID string) {
	job := e.startJob(jobID)
	if job == nil {
		return
	}
	log := logging.GetJobLogger(job.JobID, job.DocumentID)
	log.Info().Msg("Ingestion job started")

	pdfPath, licenseState, provenance, cleanup, err := e.resolveAndAcquire(e.baseCtx, job.Source)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		log.Warn().Err(err).Msg("Ingestion job failed during source resolution")
		e.failJob(jobID, err)
		return
	}
	e.setLicense(jobID, licenseState)

	out, warnings, err := e.chain.Run(e.baseCtx, parser.Mode(job.Source.ParseMode), pdfPath)
	e.addWarnings(jobID, warnings)
	if err != nil {
		log.Warn().Err(err).Msg("Ingestion job failed during parsing")
		e.failJob(jobID, err)
		return
	}

	doc := &scholar.ParsedDocument{
		DocumentID: job.DocumentID,
		Source:     job.Source,
		Parser: scholar.ParserInfo{
			Name:       out.ParserName,
			Version:    out.ParserVersion,
			Confidence: out.Confidence,
		},
		Title:      out.Title,
		Abstract:   out.Abstract,
		FullText:   out.FullText,
		Sections:   out.Sections,
		References: out.References,
		CreatedAt:  time.Now().UTC(),
		Provenance: provenance,
	}
	e.completeJob(jobID, doc, provenance)
	log.Info().
		Str("parser", out.ParserName).
		Float64("confidence", out.Confidence).
		Int("sections", len(out.Sections)).
		Int("references", len(out.References)).
		Msg("Ingestion job succeeded")
}

// startJob transitions queued -> running. Returns nil when the job already
// reached a terminal state (e.g. failed at enqueue time).
func (e *Engine) startJob(jobID string) *scholar.IngestionJob {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[jobID]
	if !ok || job.Status != scholar.JobQueued {
		return nil
	}
	now := time.Now().UTC()
	job.Status = scholar.JobRunning
	job.StartedAt = &now
	return job.Clone()
}

func (e *Engine) setLicense(jobID string, state scholar.LicenseState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if job, ok := e.jobs[jobID]; ok && !job.Status.Terminal() {
		job.LicenseState = state
	}
}

func (e *Engine) addWarnings(jobID string, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if job, ok := e.jobs[jobID]; ok && !job.Status.Terminal() {
		job.Warnings = append(job.Warnings, warnings...)
	}
}

func (e *Engine) failJob(jobID string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[jobID]
	if !ok || job.Status.Terminal() {
		return
	}
	now := time.Now().UTC()
	job.Status = scholar.JobFailed
	job.CompletedAt = &now
	job.Error = err.Error()
}

// completeJob stores the document and finalizes the job. The last completing
// succeeded job for a document id wins the overwrite.
func (e *Engine) completeJob(jobID string, doc *scholar.ParsedDocument, provenance []scholar.ProvenanceRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[jobID]
	if !ok || job.Status.Terminal() {
		return
	}
	now := time.Now().UTC()
	job.Status = scholar.JobSucceeded
	job.CompletedAt = &now
	job.ParserName = doc.Parser.Name
	job.ParserConfidence = doc.Parser.Confidence
	job.Provenance = provenance
	e.docs[doc.DocumentID] = doc
}

// documentID derives a stable id from the source seeds so identical inputs
// converge on one document.
func documentID(source scholar.IngestionSource) string {
	seed := fmt.Sprintf("doi=%s|paper=%s|pdf=%s|local=%s",
		scholar.NormalizeDOI(source.DOI), source.PaperURL, source.PDFURL, source.LocalPDFPath)
	sum := sha256.Sum256([]byte(seed))
	return "doc_" + hex.EncodeToString(sum[:12])
}
