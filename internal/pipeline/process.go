package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"wegtop/internal"
	"wegtop/internal/config"
	"wegtop/internal/ingest"
	"wegtop/internal/storage"
	"wegtop/internal/tops"
)

// Ingester turns a file into page text.
type Ingester interface {
	Ingest(ctx context.Context, path string) (internal.Document, error)
}

// Notifier receives the result of every successfully processed document.
type Notifier interface {
	NotifyDocument(ctx context.Context, res DocumentResult) error
}

type ProcessingService struct {
	db       *storage.DB
	cfg      config.Config
	ingest   Ingester
	engine   *tops.Engine
	log      *slog.Logger
	notifier Notifier
}

// NewProcessingService wires the ingestor and engine from cfg. db may be nil,
// in which case nothing is persisted.
func NewProcessingService(db *storage.DB, cfg config.Config, log *slog.Logger) (*ProcessingService, error) {
	if log == nil {
		log = slog.Default()
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &ProcessingService{
		db:     db,
		cfg:    cfg,
		ingest: ingest.NewIngestor(cfg.IngestOptions(), log),
		engine: tops.NewEngine(opts),
		log:    log,
	}, nil
}

func (s *ProcessingService) WithIngester(in Ingester) *ProcessingService {
	s.ingest = in
	return s
}

func (s *ProcessingService) WithNotifier(n Notifier) *ProcessingService {
	s.notifier = n
	return s
}

func (s *ProcessingService) Engine() *tops.Engine { return s.engine }

func (s *ProcessingService) Ingester() Ingester { return s.ingest }

// DocumentResult is the outcome for one input file. Err is set when the
// document failed; the other fields are then partial.
type DocumentResult struct {
	Path       string
	DocumentID int
	Document   internal.Document
	Tracker    tops.Tracker
	Rows       []internal.ExportRow
	QA         internal.QARow
	CorpusPath string
	Duration   time.Duration
	Err        error
}

func (r DocumentResult) Failed() bool { return r.Err != nil }

// BatchSummary describes a finished directory run.
type BatchSummary struct {
	TraceID   string
	Files     int
	Processed int
	Failed    int
	Tops      int
	Approved  int
	Outputs   []string
}

// CollectInputs lists the supported files of dir in name order.
func CollectInputs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	paths := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !ingest.IsSupported(name) {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// RunDir processes every supported file of inDir and writes the batch
// outputs into outDir.
func (s *ProcessingService) RunDir(ctx context.Context, inDir, outDir string) (BatchSummary, error) {
	paths, err := CollectInputs(inDir)
	if err != nil {
		return BatchSummary{}, err
	}
	if len(paths) == 0 {
		return BatchSummary{}, fmt.Errorf("no supported files found in: %s", inDir)
	}
	return s.RunFiles(ctx, paths, outDir, nil)
}

// RunFiles processes paths as one batch. With FailFast the first failure
// stops the batch and is returned after errors.jsonl has been written.
func (s *ProcessingService) RunFiles(ctx context.Context, paths []string, outDir string, mailID *int) (BatchSummary, error) {
	start := time.Now()
	summary := BatchSummary{TraceID: uuid.NewString(), Files: len(paths)}
	log := s.log.With("traceId", summary.TraceID)
	log.Info("batch started", "files", len(paths), "workers", s.cfg.Workers)

	results, batchErr := s.ProcessFiles(ctx, summary.TraceID, paths, filepath.Join(outDir, "corpus"), mailID)
	for _, r := range results {
		if r.Failed() {
			summary.Failed++
			continue
		}
		summary.Processed++
		summary.Tops += len(r.Rows)
		summary.Approved += r.QA.Approved
	}

	if batchErr != nil {
		if path, err := WriteErrors(outDir, results); err == nil && path != "" {
			summary.Outputs = append(summary.Outputs, path)
		}
		return summary, batchErr
	}

	outputs, err := WriteOutputs(outDir, results)
	summary.Outputs = append(summary.Outputs, outputs...)
	if err != nil {
		return summary, err
	}

	if s.db != nil {
		if err := s.db.InsertRun(summary.TraceID, 0,
			map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())},
			map[string]int{"files": summary.Files, "processed": summary.Processed, "failed": summary.Failed, "tops": summary.Tops, "approved": summary.Approved}); err != nil {
			log.Warn("run record failed", "err", err)
		}
	}
	log.Info("batch finished", "processed", summary.Processed, "failed", summary.Failed, "tops", summary.Tops, "approved", summary.Approved)
	return summary, nil
}

// ProcessFiles runs documents in parallel, up to Workers at a time. Results
// are returned in input order. The error is non-nil only when FailFast
// stopped the batch or ctx was cancelled.
func (s *ProcessingService) ProcessFiles(ctx context.Context, traceID string, paths []string, corpusDir string, mailID *int) ([]DocumentResult, error) {
	parent := ctx
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	results := make([]DocumentResult, len(paths))
	sem := make(chan struct{}, s.cfg.Workers)
	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error

	for i, path := range paths {
		wg.Add(1)
		go func(idx int, path string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[idx] = DocumentResult{Path: path, Err: fmt.Errorf("panic processing %s: %v", filepath.Base(path), r)}
				}
			}()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = DocumentResult{Path: path, Err: ctx.Err()}
				return
			}
			if ctx.Err() != nil {
				results[idx] = DocumentResult{Path: path, Err: ctx.Err()}
				return
			}

			res := s.ProcessDocument(ctx, traceID, path, corpusDir, mailID)
			results[idx] = res
			if res.Failed() && s.cfg.FailFast {
				once.Do(func() {
					firstErr = fmt.Errorf("%s: %w", filepath.Base(path), res.Err)
					cancel()
				})
			}
		}(i, path)
	}
	wg.Wait()

	if firstErr != nil {
		return results, firstErr
	}
	if err := parent.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// ProcessDocument runs one file through ingestion, the TOP engine and
// persistence. Errors are reported on the result, never returned.
func (s *ProcessingService) ProcessDocument(ctx context.Context, traceID, path, corpusDir string, mailID *int) DocumentResult {
	start := time.Now()
	res := DocumentResult{Path: path}
	log := s.log.With("file", filepath.Base(path))

	fail := func(err error) DocumentResult {
		res.Err = err
		res.Duration = time.Since(start)
		var integrity *tops.IntegrityError
		if errors.As(err, &integrity) {
			log.Error("integrity violation", "top", integrity.Number)
		} else {
			log.Error("document failed", "err", err)
		}
		if s.db != nil && res.DocumentID > 0 {
			_ = s.db.UpdateDocumentStatus(res.DocumentID, "failed", err.Error())
		}
		return res
	}

	if s.db != nil {
		hash, err := hashFile(path)
		if err != nil {
			return fail(err)
		}
		kind, _ := ingest.KindForFile(path)
		doc, err := s.db.UpsertDocument(path, hash, string(kind), mailID)
		if err != nil {
			return fail(err)
		}
		res.DocumentID = doc.ID
	}

	doc, err := s.ingest.Ingest(ctx, path)
	if err != nil {
		return fail(err)
	}
	res.Document = doc
	ingestDone := time.Now()

	if corpusDir != "" && doc.Kind != internal.SourceCorpus {
		corpusPath := filepath.Join(corpusDir, stem(path)+".json")
		if err := ingest.SaveCorpus(doc, corpusPath); err != nil {
			return fail(fmt.Errorf("save corpus: %w", err))
		}
		res.CorpusPath = corpusPath
	}

	tracker, err := s.engine.Parse(doc)
	if err != nil {
		return fail(err)
	}
	res.Tracker = tracker
	res.Rows = tracker.Rows()
	res.QA = BuildQARow(filepath.Base(path), doc, tracker)
	res.Duration = time.Since(start)

	if s.db != nil {
		if err := s.db.SaveDocumentResult(res.DocumentID, doc, tracker.MeetingDate, res.Rows); err != nil {
			return fail(fmt.Errorf("persist: %w", err))
		}
		if err := s.db.InsertRun(traceID, res.DocumentID,
			map[string]float64{
				"ingestMs": float64(ingestDone.Sub(start).Milliseconds()),
				"parseMs":  float64(time.Since(ingestDone).Milliseconds()),
				"totalMs":  float64(res.Duration.Milliseconds()),
			},
			map[string]int{"tops": len(res.Rows), "approved": res.QA.Approved, "rejected": res.QA.Rejected, "undetermined": res.QA.Undetermined}); err != nil {
			log.Warn("run record failed", "err", err)
		}
	}

	log.Info("document processed", "tops", len(res.Rows), "approved", res.QA.Approved, "ocr", doc.OCRUsed, "avgChars", doc.AvgCharsPerPage)

	if s.notifier != nil {
		if err := s.notifier.NotifyDocument(ctx, res); err != nil {
			log.Warn("notify failed", "err", err)
		}
	}
	return res
}

// AlreadyProcessed reports whether path is stored as processed with its
// current content.
func (s *ProcessingService) AlreadyProcessed(path string) bool {
	if s.db == nil {
		return false
	}
	row, err := s.db.GetDocumentByPath(path)
	if err != nil || row == nil || row.Status != "processed" {
		return false
	}
	hash, err := hashFile(path)
	return err == nil && hash == row.Hash
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
