package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"wegtop/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}
	// Batch workers write concurrently; a single connection avoids SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS mails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS documents (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  path TEXT NOT NULL UNIQUE,
  hash TEXT NOT NULL,
  kind TEXT NOT NULL,
  mailId INTEGER,
  meetingDate TEXT,
  usedOcr INTEGER NOT NULL DEFAULT 0,
  usedLayout INTEGER NOT NULL DEFAULT 0,
  avgCharsPerPage REAL NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'new',
  error TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(mailId) REFERENCES mails(id)
);
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(hash);

CREATE TABLE IF NOT EXISTS tops (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  documentId INTEGER NOT NULL,
  topNumber INTEGER NOT NULL,
  topLabel TEXT NOT NULL,
  title TEXT NOT NULL,
  titleIssuesJson TEXT NOT NULL,
  verdict TEXT NOT NULL,
  confidence TEXT NOT NULL,
  region TEXT NOT NULL,
  votesYes INTEGER,
  votesNo INTEGER,
  votesAbstain INTEGER,
  pageStart INTEGER NOT NULL,
  pageEnd INTEGER NOT NULL,
  blockLen INTEGER NOT NULL,
  excerpt TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(documentId, topNumber),
  FOREIGN KEY(documentId) REFERENCES documents(id)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  documentId INTEGER,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(documentId) REFERENCES documents(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

const documentColumns = `d.id, d.path, d.hash, d.kind, d.mailId, COALESCE(d.meetingDate, ''), d.usedOcr, d.usedLayout,
  d.avgCharsPerPage, (SELECT COUNT(*) FROM tops t WHERE t.documentId = d.id), d.status, COALESCE(d.error, ''), d.updatedAt`

func scanDocument(scan func(dest ...any) error) (internal.DocumentRow, error) {
	var row internal.DocumentRow
	var mailID sql.NullInt64
	err := scan(&row.ID, &row.Path, &row.Hash, &row.Kind, &mailID, &row.MeetingDate, &row.OCRUsed, &row.LayoutUsed,
		&row.AvgCharsPerPage, &row.TopCount, &row.Status, &row.Error, &row.UpdatedAt)
	if mailID.Valid {
		id := int(mailID.Int64)
		row.MailID = &id
	}
	return row, err
}

// UpsertDocument registers a document by path. A changed hash resets its status to new.
func (d *DB) UpsertDocument(path, hash, kind string, mailID *int) (internal.DocumentRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO documents (path, hash, kind, mailId, status)
VALUES (?, ?, ?, ?, 'new')
ON CONFLICT(path) DO UPDATE SET
  status = CASE WHEN documents.hash = excluded.hash THEN documents.status ELSE 'new' END,
  hash = excluded.hash,
  kind = excluded.kind,
  mailId = COALESCE(excluded.mailId, documents.mailId),
  updatedAt = CURRENT_TIMESTAMP
`, path, hash, kind, mailID)
	if err != nil {
		return internal.DocumentRow{}, err
	}

	row, err := d.GetDocumentByPath(path)
	if err != nil {
		return internal.DocumentRow{}, err
	}
	if row == nil {
		return internal.DocumentRow{}, errors.New("failed to upsert document")
	}
	return *row, nil
}

func (d *DB) GetDocumentByPath(path string) (*internal.DocumentRow, error) {
	row, err := scanDocument(d.conn.QueryRow(`SELECT `+documentColumns+` FROM documents d WHERE d.path = ?`, path).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetDocumentByID(id int) (*internal.DocumentRow, error) {
	row, err := scanDocument(d.conn.QueryRow(`SELECT `+documentColumns+` FROM documents d WHERE d.id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListDocuments(limit int) ([]internal.DocumentRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.conn.Query(`SELECT `+documentColumns+` FROM documents d ORDER BY COALESCE(d.meetingDate, '9999-99-99') ASC, d.id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.DocumentRow{}
	for rows.Next() {
		row, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateDocumentStatus(documentID int, status, errMsg string) error {
	_, err := d.conn.Exec(`UPDATE documents SET status = ?, error = NULLIF(?, ''), updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, errMsg, documentID)
	return err
}

// SaveDocumentResult replaces the stored TOPs of a document and marks it processed.
func (d *DB) SaveDocumentResult(documentID int, doc internal.Document, meetingDate string, rows []internal.ExportRow) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM tops WHERE documentId = ?`, documentID); err != nil {
		return err
	}
	for _, r := range rows {
		issues, _ := json.Marshal(r.TitleIssues)
		if _, err := tx.Exec(`
INSERT INTO tops (documentId, topNumber, topLabel, title, titleIssuesJson, verdict, confidence, region,
  votesYes, votesNo, votesAbstain, pageStart, pageEnd, blockLen, excerpt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, documentID, r.TopNumber, r.TopLabel, r.TopTitle, string(issues), r.Verdict, r.Confidence, r.Region,
			r.VotesYes, r.VotesNo, r.VotesAbstain, r.PageStart, r.PageEnd, r.BlockLen, r.Excerpt); err != nil {
			return fmt.Errorf("insert TOP %d: %w", r.TopNumber, err)
		}
	}
	if _, err := tx.Exec(`
UPDATE documents SET meetingDate = NULLIF(?, ''), usedOcr = ?, usedLayout = ?, avgCharsPerPage = ?,
  status = 'processed', error = NULL, updatedAt = CURRENT_TIMESTAMP
WHERE id = ?
`, meetingDate, doc.OCRUsed, doc.LayoutUsed, doc.AvgCharsPerPage, documentID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListTops returns the stored TOPs of one document, or of all documents for documentID 0.
func (d *DB) ListTops(documentID int) ([]internal.ExportRow, error) {
	query := `
SELECT COALESCE(d.meetingDate, ''), d.path, t.topNumber, t.topLabel, t.title, t.titleIssuesJson, t.verdict,
  t.confidence, t.region, t.votesYes, t.votesNo, t.votesAbstain, t.pageStart, t.pageEnd, t.blockLen, t.excerpt
FROM tops t
JOIN documents d ON d.id = t.documentId
`
	args := []any{}
	if documentID > 0 {
		query += `WHERE t.documentId = ?
`
		args = append(args, documentID)
	}
	query += `ORDER BY COALESCE(d.meetingDate, '9999-99-99') ASC, d.path ASC, t.topNumber ASC`

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.ExportRow{}
	for rows.Next() {
		var r internal.ExportRow
		var path, issues string
		var yes, no, abstain sql.NullInt64
		if err := rows.Scan(&r.MeetingDate, &path, &r.TopNumber, &r.TopLabel, &r.TopTitle, &issues, &r.Verdict,
			&r.Confidence, &r.Region, &yes, &no, &abstain, &r.PageStart, &r.PageEnd, &r.BlockLen, &r.Excerpt); err != nil {
			return nil, err
		}
		r.SourceFile = filepath.Base(path)
		_ = json.Unmarshal([]byte(issues), &r.TitleIssues)
		r.VotesYes, r.VotesNo, r.VotesAbstain = nullInt(yes), nullInt(no), nullInt(abstain)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func (d *DB) UpsertMail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.MailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO mails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.MailRow{}, err
	}

	row, err := d.GetMailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.MailRow{}, err
	}
	if row == nil {
		return internal.MailRow{}, errors.New("failed to upsert mail")
	}
	return *row, nil
}

func (d *DB) GetMailByProviderMessageID(provider, messageID string) (*internal.MailRow, error) {
	var row internal.MailRow
	err := d.conn.QueryRow(`
SELECT id, provider, messageId, COALESCE(subject, ''), COALESCE(sender, ''), COALESCE(receivedAt, ''), hash, status, rawRef
FROM mails WHERE provider = ? AND messageId = ?
`, provider, messageID).Scan(
		&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) MustMailByProviderMessageID(provider, messageID string) (internal.MailRow, error) {
	row, err := d.GetMailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.MailRow{}, err
	}
	if row == nil {
		return internal.MailRow{}, fmt.Errorf("mail not found: provider=%s messageId=%s", provider, messageID)
	}
	return *row, nil
}

func (d *DB) ListMailsByStatus(status string, limit int) ([]internal.MailRow, error) {
	rows, err := d.conn.Query(`
SELECT id, provider, messageId, COALESCE(subject, ''), COALESCE(sender, ''), COALESCE(receivedAt, ''), hash, status, rawRef
FROM mails WHERE status = ? ORDER BY receivedAt ASC LIMIT ?
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.MailRow
	for rows.Next() {
		var row internal.MailRow
		if err := rows.Scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateMailStatus(mailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE mails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, mailID)
	return err
}

func (d *DB) InsertRun(traceID string, documentID int, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	var docID any
	if documentID > 0 {
		docID = documentID
	}
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, documentId, timingsJson, countsJson) VALUES (?, ?, ?, ?)`, traceID, docID, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) CountRuns(traceID string) (int, error) {
	var n int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM runs WHERE traceId = ?`, traceID).Scan(&n)
	return n, err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
