package persistence

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/volvoxlabs/weft/pkg/api"
)

// SQLiteInstanceStore is an InstanceStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteInstanceStore struct {
	db *sql.DB
}

// Ensure SQLiteInstanceStore implements InstanceStore.
var _ InstanceStore = (*SQLiteInstanceStore)(nil)

// NewSQLiteInstanceStore initializes the required schema in the given
// database and returns a new SQLiteInstanceStore.
func NewSQLiteInstanceStore(db *sql.DB) (*SQLiteInstanceStore, error) {
	s := &SQLiteInstanceStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteInstanceStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			graph_name TEXT NOT NULL,
			graph_version TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			current_node TEXT NOT NULL DEFAULT '',
			context BLOB,
			history BLOB,
			error TEXT,
			created_at INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL DEFAULT 0
		);`,
	)
	return err
}

func (s *SQLiteInstanceStore) SaveInstance(inst *api.WorkflowInstance) error {
	row, err := encodeRow(inst)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO runs (id, graph_name, graph_version, status, current_node, context, history, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID,
		inst.Graph,
		inst.GraphVersion,
		string(inst.Status),
		inst.Current,
		row.context,
		row.history,
		row.errStr,
		inst.CreatedAt.UnixNano(),
		inst.UpdatedAt.UnixNano(),
	)
	return err
}

func (s *SQLiteInstanceStore) UpdateInstance(inst *api.WorkflowInstance) error {
	row, err := encodeRow(inst)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE runs
		SET graph_name = ?, graph_version = ?, status = ?, current_node = ?, context = ?, history = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		inst.Graph,
		inst.GraphVersion,
		string(inst.Status),
		inst.Current,
		row.context,
		row.history,
		row.errStr,
		inst.UpdatedAt.UnixNano(),
		inst.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInstanceNotFound
	}
	return nil
}

func (s *SQLiteInstanceStore) GetInstance(id string) (*api.WorkflowInstance, error) {
	row := s.db.QueryRow(`
		SELECT id, graph_name, graph_version, status, current_node, context, history, error, created_at, updated_at
		FROM runs
		WHERE id = ?`,
		id,
	)
	inst, err := scanInstance(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return inst, nil
}

func (s *SQLiteInstanceStore) ListInstances(filter InstanceFilter) ([]*api.WorkflowInstance, error) {
	query := `
		SELECT id, graph_name, graph_version, status, current_node, context, history, error, created_at, updated_at
		FROM runs`
	var args []any
	var clauses []string

	if filter.Graph != "" {
		clauses = append(clauses, "graph_name = ?")
		args = append(args, filter.Graph)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*api.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows.Scan)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return instances, nil
}

func (s *SQLiteInstanceStore) DeleteInstance(id string) error {
	res, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInstanceNotFound
	}
	return nil
}

type instanceRow struct {
	context []byte
	history []byte
	errStr  string
}

func encodeRow(inst *api.WorkflowInstance) (instanceRow, error) {
	var row instanceRow

	var values map[string]any
	if inst.Context != nil {
		values = inst.Context.Snapshot()
	}
	contextBytes, err := EncodeContext(values)
	if err != nil {
		return row, err
	}
	historyBytes, err := EncodeHistory(inst.History)
	if err != nil {
		return row, err
	}

	row.context = contextBytes
	row.history = historyBytes
	if inst.Err != nil {
		row.errStr = inst.Err.Error()
	}
	return row, nil
}

func scanInstance(scan func(dest ...any) error) (*api.WorkflowInstance, error) {
	var (
		inst      api.WorkflowInstance
		statusStr string
		context   []byte
		history   []byte
		errStr    sql.NullString
		createdAt int64
		updatedAt int64
	)
	if err := scan(&inst.ID, &inst.Graph, &inst.GraphVersion, &statusStr, &inst.Current,
		&context, &history, &errStr, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	inst.Status = api.Status(statusStr)
	inst.CreatedAt = time.Unix(0, createdAt)
	inst.UpdatedAt = time.Unix(0, updatedAt)

	values, err := DecodeContext(context)
	if err != nil {
		return nil, err
	}
	inst.Context = api.NewContext(values)
	if inst.Status.Terminal() {
		inst.Context.Freeze()
	}

	records, err := DecodeHistory(history)
	if err != nil {
		return nil, err
	}
	inst.History = records

	if errStr.Valid && errStr.String != "" {
		inst.Err = errors.New(errStr.String)
	}
	return &inst, nil
}
