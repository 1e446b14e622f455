// Package auditlog persists a durable, after-the-fact record of completed
// requests to SQLite, independent of and never consulted by the live
// RFC 7234 cache. It exists purely for offline analysis through the admin
// API; losing it, or disabling it entirely, changes nothing about how the
// proxy forwards or caches traffic.
package auditlog

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rs/zerolog"
)

// Record is one completed request/response cycle as the connection driver
// observed it.
type Record struct {
	RequestID uint64
	ConnID    uint64
	Method    string
	URL       string
	Status    string
	Outcome   string // hit, stored, not-cacheable, bypass
	StartedAt time.Time
	ElapsedMS int64
}

// Sink accepts Records off the request path: Submit never blocks the
// caller on disk I/O, and a full buffer drops the oldest pending record
// rather than the request it describes.
type Sink struct {
	db     *sql.DB
	writeC chan Record
	log    zerolog.Logger
	wg     sync.WaitGroup
}

const submitBuffer = 256

// Open creates (if needed) the audit table at path and starts the
// background writer goroutine. Closing the returned Sink flushes and stops
// that goroutine.
func Open(path string, log zerolog.Logger) (*Sink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id INTEGER,
		conn_id INTEGER,
		method TEXT,
		url TEXT,
		status TEXT,
		outcome TEXT,
		started_at INTEGER,
		elapsed_ms INTEGER
	)`); err != nil {
		db.Close()
		return nil, err
	}

	s := &Sink{db: db, writeC: make(chan Record, submitBuffer), log: log}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

// Submit enqueues rec for durable persistence. It never blocks: if the
// buffer is full, the oldest pending record is dropped and a warning is
// logged — never the request currently in flight.
func (s *Sink) Submit(rec Record) {
	select {
	case s.writeC <- rec:
	default:
		select {
		case <-s.writeC:
			s.log.Warn().Msg("audit buffer full, dropped oldest pending record")
		default:
		}
		select {
		case s.writeC <- rec:
		default:
		}
	}
}

func (s *Sink) run() {
	defer s.wg.Done()
	for rec := range s.writeC {
		_, err := s.db.Exec(
			`INSERT INTO audit (request_id, conn_id, method, url, status, outcome, started_at, elapsed_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.RequestID, rec.ConnID, rec.Method, rec.URL, rec.Status, rec.Outcome,
			rec.StartedAt.Unix(), rec.ElapsedMS,
		)
		if err != nil {
			s.log.Error().Err(err).Msg("could not persist audit record")
		}
	}
}

// Recent returns the limit most recently submitted records, most recent
// first.
func (s *Sink) Recent(limit int) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT request_id, conn_id, method, url, status, outcome, started_at, elapsed_ms
		 FROM audit ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var startedAt int64
		if err := rows.Scan(&rec.RequestID, &rec.ConnID, &rec.Method, &rec.URL,
			&rec.Status, &rec.Outcome, &startedAt, &rec.ElapsedMS); err != nil {
			return nil, err
		}
		rec.StartedAt = time.Unix(startedAt, 0)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close stops the background writer and closes the database.
func (s *Sink) Close() error {
	close(s.writeC)
	s.wg.Wait()
	return s.db.Close()
}
