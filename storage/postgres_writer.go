package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/lib/pq"

	"hidroweb-scraper/models"
	"hidroweb-scraper/utils"
)

// CandidateTables are probed in order when no table is configured.
var CandidateTables = []string{
	"origem.ana_cotas_diaria_testing",
	"ana.ana_cota_diaria",
	"public.ana_cot_diaria_daniel_teste_copycomplete",
	"public.ana_cotas_diaria_inserir",
	"origem.ana_cota_dia",
	"public.ana_cota_dia",
	"ana_cota_diaria",
	"ana_cota_dia",
}

const (
	// DefaultMinBatchSize is the floor of the timeout back-off.
	DefaultMinBatchSize = 500
	// maxBindParams is PostgreSQL's limit of parameters per statement.
	maxBindParams = 65535
	// pgQueryCanceled is raised when statement_timeout fires.
	pgQueryCanceled = "57014"
)

var (
	ErrTableNotFound = errors.New("table does not exist")
	ErrNoTable       = errors.New("none of the candidate tables exist")
	ErrLoadLocked    = errors.New("another load is running against this table")
)

// PostgresStore loads cota rows into PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *utils.Logger
}

// OpenPostgres opens a connection and waits for the server to answer.
func OpenPostgres(ctx context.Context, dsn string, logger *utils.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(2)

	retry := &utils.RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, Logger: logger}
	err = retry.Do(ctx, "postgres ping", func(int) error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pctx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return NewPostgresStore(db, logger), nil
}

// NewPostgresStore wraps an existing handle.
func NewPostgresStore(db *sql.DB, logger *utils.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping runs a trivial query.
func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("postgres: test query: %w", err)
	}
	return nil
}

// QuoteTable quotes a possibly schema-qualified table name.
func QuoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// TableExists looks the table up in information_schema.
func (s *PostgresStore) TableExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	var err error
	if schema, table, ok := strings.Cut(name, "."); ok {
		err = s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
			schema, table).Scan(&exists)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
			name).Scan(&exists)
	}
	if err != nil {
		return false, fmt.Errorf("postgres: check table %s: %w", name, err)
	}
	return exists, nil
}

// ResolveTable returns explicit when it exists, otherwise the first existing
// candidate table.
func (s *PostgresStore) ResolveTable(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		ok, err := s.TableExists(ctx, explicit)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("postgres: %w: %s", ErrTableNotFound, explicit)
		}
		return explicit, nil
	}

	for _, name := range CandidateTables {
		ok, err := s.TableExists(ctx, name)
		if err != nil {
			return "", err
		}
		if ok {
			s.logger.Info("[postgres] Using detected table %s", name)
			return name, nil
		}
		s.logger.Debug("[postgres] Candidate table %s not found", name)
	}
	return "", fmt.Errorf("postgres: %w", ErrNoTable)
}

// Stats returns the row count, distinct stations and date range of table.
func (s *PostgresStore) Stats(ctx context.Context, table string) (models.TableStats, error) {
	st := models.TableStats{Table: table}
	query := fmt.Sprintf(`
		SELECT COUNT(*), COUNT(DISTINCT codigo_estacao),
		       COALESCE(MIN(data)::text, ''), COALESCE(MAX(data)::text, '')
		FROM %s`, QuoteTable(table))

	err := s.db.QueryRowContext(ctx, query).Scan(&st.Rows, &st.Stations, &st.MinDate, &st.MaxDate)
	if err != nil {
		return st, fmt.Errorf("postgres: stats %s: %w", table, err)
	}
	return st, nil
}

// CountExisting returns how many of the primary-key tuples in keys are
// already stored.
func (s *PostgresStore) CountExisting(ctx context.Context, table string, keys [][]any) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	width := len(models.PrimaryKeyColumns)
	tuples := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)*width)
	for _, k := range keys {
		if len(k) != width {
			return 0, fmt.Errorf("postgres: key has %d values, want %d", len(k), width)
		}
		tuples = append(tuples, placeholders(len(args), width))
		args = append(args, k...)
	}

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE (%s) IN (%s)`,
		QuoteTable(table), strings.Join(models.PrimaryKeyColumns, ", "), strings.Join(tuples, ","))

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count existing: %w", err)
	}
	return n, nil
}

// InsertOptions tunes Insert.
type InsertOptions struct {
	// BatchSize of 0 picks a size from the row count.
	BatchSize        int
	MinBatchSize     int
	StatementTimeout time.Duration
	Progress         func(committed, total int)
}

// InsertResult reports how far an insert got. RowsCommitted is accurate even
// when Insert returns an error.
type InsertResult struct {
	RowsCommitted  int
	Batches        int
	Shrinks        int
	FinalBatchSize int
}

// ChooseBatchSize picks the initial batch size for n rows.
func ChooseBatchSize(n int) int {
	switch {
	case n <= 1000:
		if n < 1 {
			return 1
		}
		return n
	case n < 5000:
		return 1000
	default:
		return 500
	}
}

// IsTimeout reports whether err means the statement ran out of time.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgQueryCanceled {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

// Insert writes rows in batches, one transaction per batch, skipping rows
// whose primary key already exists. A timed-out batch halves the batch size
// (never below the floor) and resumes at the first uncommitted row; a timeout
// at the floor or any other error stops the load, keeping committed batches.
func (s *PostgresStore) Insert(ctx context.Context, table string, rows [][]any, opts InsertOptions) (InsertResult, error) {
	var res InsertResult
	if len(rows) == 0 {
		return res, nil
	}

	size := opts.BatchSize
	if size <= 0 {
		size = ChooseBatchSize(len(rows))
	}
	floor := opts.MinBatchSize
	if floor <= 0 {
		floor = DefaultMinBatchSize
	}

	pos := 0
	for pos < len(rows) {
		end := pos + size
		if end > len(rows) {
			end = len(rows)
		}

		err := s.insertBatch(ctx, table, rows[pos:end], opts.StatementTimeout)
		if err == nil {
			pos = end
			res.Batches++
			res.RowsCommitted = pos
			if opts.Progress != nil {
				opts.Progress(pos, len(rows))
			}
			s.logger.Debug("[postgres] Batch %d committed (%d/%d rows)", res.Batches, pos, len(rows))
			continue
		}

		if ctx.Err() != nil {
			res.FinalBatchSize = size
			return res, fmt.Errorf("postgres: insert cancelled at row %d: %w", pos, ctx.Err())
		}
		if IsTimeout(err) && size > floor {
			next := size / 2
			if next < floor {
				next = floor
			}
			s.logger.Warn("[postgres] Batch at row %d timed out, shrinking batch %d -> %d", pos, size, next)
			size = next
			res.Shrinks++
			continue
		}

		res.FinalBatchSize = size
		return res, fmt.Errorf("postgres: batch at row %d: %w", pos, err)
	}

	res.FinalBatchSize = size
	return res, nil
}

func (s *PostgresStore) insertBatch(ctx context.Context, table string, batch [][]any, timeout time.Duration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if timeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", timeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	perStmt := maxBindParams / len(models.CotaColumns)
	for i := 0; i < len(batch); i += perStmt {
		end := i + perStmt
		if end > len(batch) {
			end = len(batch)
		}
		query, args, err := buildInsert(table, batch[i:end])
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func buildInsert(table string, rows [][]any) (string, []any, error) {
	width := len(models.CotaColumns)
	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*width)

	for _, r := range rows {
		if len(r) != width {
			return "", nil, fmt.Errorf("%w: got %d, want %d", models.ErrFieldCount, len(r), width)
		}
		values = append(values, placeholders(len(args), width))
		args = append(args, r...)
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s) DO NOTHING`,
		QuoteTable(table),
		strings.Join(models.CotaColumns, ", "),
		strings.Join(values, ","),
		strings.Join(models.PrimaryKeyColumns, ", "))
	return query, args, nil
}

// placeholders renders "($n+1,...,$n+width)".
func placeholders(offset, width int) string {
	var b strings.Builder
	b.WriteByte('(')
	for i := 1; i <= width; i++ {
		if i > 1 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "$%d", offset+i)
	}
	b.WriteByte(')')
	return b.String()
}

// LockInfo is one relation lock held on a matching table.
type LockInfo struct {
	Table   string
	Mode    string
	Granted bool
	State   string
}

// ActiveLocks lists relation locks on tables whose name matches any of the
// LIKE patterns.
func (s *PostgresStore) ActiveLocks(ctx context.Context, patterns []string) ([]LockInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.relation::regclass::text, l.mode, l.granted, COALESCE(a.state, '')
		FROM pg_locks l
		LEFT JOIN pg_stat_activity a ON l.pid = a.pid
		WHERE l.relation IS NOT NULL
		  AND l.relation::regclass::text LIKE ANY($1)
		ORDER BY l.granted, a.query_start`, pq.Array(patterns))
	if err != nil {
		return nil, fmt.Errorf("postgres: list locks: %w", err)
	}
	defer rows.Close()

	var out []LockInfo
	for rows.Next() {
		var li LockInfo
		if err := rows.Scan(&li.Table, &li.Mode, &li.Granted, &li.State); err != nil {
			return nil, fmt.Errorf("postgres: scan lock: %w", err)
		}
		out = append(out, li)
	}
	return out, rows.Err()
}

// QueryStation returns the latest rows of one station.
func (s *PostgresStore) QueryStation(ctx context.Context, table string, station int64, limit int) ([]models.StationRow, error) {
	query := fmt.Sprintf(`
		SELECT codigo_estacao, data::text, hora::text, cota_maxima, cota_minima, cota_media
		FROM %s
		WHERE codigo_estacao = $1
		ORDER BY data DESC, hora DESC
		LIMIT $2`, QuoteTable(table))

	rows, err := s.db.QueryContext(ctx, query, station, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: query station %d: %w", station, err)
	}
	defer rows.Close()

	var out []models.StationRow
	for rows.Next() {
		var r models.StationRow
		var hi, lo, avg sql.NullFloat64
		if err := rows.Scan(&r.Station, &r.Date, &r.Hour, &hi, &lo, &avg); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		r.Max, r.Min, r.Mean = nullable(hi), nullable(lo), nullable(avg)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// AcquireLoadLock takes a session-level advisory lock keyed on table so two
// loads cannot run against it at once. The returned func releases it.
func (s *PostgresStore) AcquireLoadLock(ctx context.Context, table string) (func(), error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: reserve connection: %w", err)
	}

	id := advisoryLockID("hidroweb-load:" + table)
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", id).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("postgres: advisory lock: %w", err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, fmt.Errorf("postgres: %w: %s", ErrLoadLocked, table)
	}

	return func() {
		if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", id); err != nil {
			s.logger.Warn("[postgres] Releasing load lock: %v", err)
		}
		_ = conn.Close()
	}, nil
}

func advisoryLockID(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}
