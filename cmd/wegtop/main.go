package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"wegtop/internal"
	"wegtop/internal/api"
	"wegtop/internal/config"
	"wegtop/internal/connectors"
	gmailconnector "wegtop/internal/connectors/gmail"
	imapconnector "wegtop/internal/connectors/imap"
	"wegtop/internal/listener"
	"wegtop/internal/notify"
	"wegtop/internal/pipeline"
	"wegtop/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	log := cfg.Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		in := fs.String("in", cfg.InboxDir, "directory containing Protokolle")
		out := fs.String("out", cfg.OutputDir, "output directory")
		ocr := fs.Bool("ocr", cfg.OCREnabled, "OCR fallback for low-text PDFs")
		minAvg := fs.Float64("min-avg-chars", cfg.MinAvgChars, "layout/OCR trigger threshold")
		ocrDPI := fs.Int("ocr-dpi", cfg.OCRDPI, "OCR render DPI")
		maxOCR := fs.Int("max-ocr-pages", cfg.OCRMaxPages, "limit OCR pages for large PDFs (0 = all)")
		workers := fs.Int("workers", cfg.Workers, "documents processed in parallel")
		failFast := fs.Bool("fail-fast", cfg.FailFast, "stop on first document error")
		noDB := fs.Bool("no-db", false, "do not persist results")
		_ = fs.Parse(os.Args[2:])

		cfg.OCREnabled, cfg.MinAvgChars, cfg.OCRDPI, cfg.OCRMaxPages = *ocr, *minAvg, *ocrDPI, *maxOCR
		cfg.Workers, cfg.FailFast = max(*workers, 1), *failFast

		var db *storage.DB
		if !*noDB {
			db = openDB(cfg)
			defer db.Close()
		}
		proc := newProcessor(db, cfg, log)
		summary, err := proc.RunDir(ctx, *in, *out)
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "interrupted")
			os.Exit(130)
		}
		for _, p := range summary.Outputs {
			fmt.Printf("wrote %s\n", p)
		}
		must(err)
		if n := notify.NewSlack(cfg.SlackWebhookURL, log); n != nil {
			if err := n.NotifyBatch(ctx, summary); err != nil {
				log.Warn("batch notification failed", "err", err)
			}
		}
		fmt.Printf("run done files=%d processed=%d failed=%d tops=%d approved=%d trace=%s\n",
			summary.Files, summary.Processed, summary.Failed, summary.Tops, summary.Approved, summary.TraceID)
		if summary.Failed > 0 {
			fmt.Fprintf(os.Stderr, "%d file(s) failed, see %s\n", summary.Failed, filepath.Join(*out, pipeline.ErrorsJSONLName))
		}
	case "parse":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "Protokoll file (pdf, docx, html, md, txt or corpus json)")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}
		proc := newProcessor(nil, cfg, log)
		doc, err := proc.Ingester().Ingest(ctx, *file)
		must(err)
		tr, err := proc.Engine().Parse(doc)
		must(err)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		must(enc.Encode(tr.Rows()))
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.ListenerProvider, "gmail|imap")
		label := fs.String("label", cfg.ListenerLabel, "mailbox/label")
		maxMessages := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		db := openDB(cfg)
		defer db.Close()
		conn, err := makeConnector(ctx, cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn, log)
		result, err := fetch.FetchAndStore(ctx, *label, *maxMessages)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d known=%d\n", *provider, result.Fetched, result.Stored, result.Known)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "", "only mails of this provider")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])
		db := openDB(cfg)
		defer db.Close()
		proc := newProcessor(db, cfg, log)
		if strings.TrimSpace(*messageID) != "" {
			res, err := proc.ProcessByProviderMessageID(ctx, *provider, *messageID)
			must(err)
			fmt.Printf("processed mail id=%d attachments=%d\n", res.MailID, len(res.Attachments))
			return
		}
		mails, docs, err := proc.ProcessPendingMails(ctx, *batch, *provider)
		must(err)
		fmt.Printf("processed pending mails=%d documents=%d\n", mails, docs)
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		documentID := fs.Int("documentId", 0, "stored document id (0 = all documents)")
		out := fs.String("out", filepath.Join(cfg.OutputDir, pipeline.TrackerXLSXName), "output xlsx path")
		byYear := fs.String("by-year", "", "optional by-year workbook path")
		_ = fs.Parse(os.Args[2:])
		db := openDB(cfg)
		defer db.Close()
		n, err := exportStored(db, *documentID, *out, *byYear)
		must(err)
		fmt.Printf("exported %d TOPs to %s\n", n, *out)
	case "listen":
		db := openDB(cfg)
		defer db.Close()
		proc := newProcessor(db, cfg, log)
		must(listener.NewService(db, cfg, proc, log).Run(ctx))
	case "serve":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		addr := fs.String("addr", cfg.HTTPAddr, "listen address")
		_ = fs.Parse(os.Args[2:])
		db := openDB(cfg)
		defer db.Close()
		proc := newProcessor(db, cfg, log)
		must(serve(ctx, *addr, api.NewServer(proc, db, log, cfg), log))
	default:
		usage()
		os.Exit(1)
	}
}

func openDB(cfg config.Config) *storage.DB {
	db, err := storage.Open(cfg.DBPath)
	must(err)
	return db
}

func newProcessor(db *storage.DB, cfg config.Config, log *slog.Logger) *pipeline.ProcessingService {
	proc, err := pipeline.NewProcessingService(db, cfg, log)
	must(err)
	if n := notify.NewSlack(cfg.SlackWebhookURL, log); n != nil {
		proc.WithNotifier(n)
	}
	return proc
}

func exportStored(db *storage.DB, documentID int, out, byYear string) (int, error) {
	var docs []internal.DocumentRow
	if documentID > 0 {
		doc, err := db.GetDocumentByID(documentID)
		if err != nil {
			return 0, err
		}
		if doc == nil {
			return 0, fmt.Errorf("no document with id=%d", documentID)
		}
		docs = append(docs, *doc)
	} else {
		all, err := db.ListDocuments(100000)
		if err != nil {
			return 0, err
		}
		docs = all
	}

	rows := []internal.ExportRow{}
	qa := []internal.QARow{}
	for _, doc := range docs {
		if doc.Status != "processed" {
			continue
		}
		docRows, err := db.ListTops(doc.ID)
		if err != nil {
			return 0, err
		}
		rows = append(rows, docRows...)
		qa = append(qa, pipeline.QARowFromStored(doc, docRows))
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("no stored TOPs to export")
	}
	pipeline.SortRows(rows)
	if err := pipeline.ExportTrackerXLSX(pipeline.BuildTrackerRows(rows), qa, rows, out); err != nil {
		return 0, err
	}
	if byYear != "" {
		if err := pipeline.ExportByYearXLSX(rows, qa, byYear); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

func serve(ctx context.Context, addr string, handler http.Handler, log *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func makeConnector(ctx context.Context, cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func usage() {
	fmt.Println("usage: wegtop <command>")
	fmt.Println("commands:")
	fmt.Println("  run --in=./data/inbox --out=./out [--ocr] [--min-avg-chars=250] [--workers=4] [--fail-fast] [--no-db]")
	fmt.Println("  parse --file=protokoll.pdf")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process [--provider=gmail|imap] [--messageId=...] [--batch=20]")
	fmt.Println("  export:xlsx [--documentId=1] --out=./out/approved_TOPs_tracker.xlsx [--by-year=...xlsx]")
	fmt.Println("  listen")
	fmt.Println("  serve [--addr=:8080]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
