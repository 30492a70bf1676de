package evaluation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/easyops/convref-go/pkg/convref"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteResultStore 基于 SQLite 的预测存储
//
// 每次打开记为一次运行（UUID），预测按 (experiment, prefix, idx) 唯一，
// 跨运行续跑时沿用之前的预测。
type SQLiteResultStore struct {
	db         *sql.DB
	experiment string
	runID      string
}

// NewSQLiteResultStore 打开（或创建）数据库并登记本次运行
func NewSQLiteResultStore(dbPath, experiment string) (*SQLiteResultStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteResultStore{db: db, experiment: experiment, runID: uuid.NewString()}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	if _, err := db.Exec(`INSERT INTO runs (id, experiment, started_at) VALUES (?, ?, ?)`,
		s.runID, experiment, time.Now().UnixMilli()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to register run: %w", err)
	}
	return s, nil
}

func (s *SQLiteResultStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		experiment TEXT NOT NULL,
		started_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS predictions (
		experiment TEXT NOT NULL,
		prefix TEXT NOT NULL,
		idx INTEGER NOT NULL,
		label TEXT NOT NULL,
		run_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (experiment, prefix, idx)
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// RunID 返回本次运行的 ID
func (s *SQLiteResultStore) RunID() string {
	return s.runID
}

// Load 按顺序读取已保存的预测，遇到缺口时截止
func (s *SQLiteResultStore) Load(ctx context.Context, prefix string) ([]convref.Label, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, label FROM predictions WHERE experiment = ? AND prefix = ? ORDER BY idx`,
		s.experiment, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []convref.Label
	for rows.Next() {
		var (
			idx  int
			data string
		)
		if err := rows.Scan(&idx, &data); err != nil {
			return nil, err
		}
		if idx != len(labels) {
			break
		}
		var label convref.Label
		if err := json.Unmarshal([]byte(data), &label); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prediction %d: %w", idx, err)
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

// Append 保存一个预测
func (s *SQLiteResultStore) Append(ctx context.Context, prefix string, index int, label convref.Label) error {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM predictions WHERE experiment = ? AND prefix = ?`,
		s.experiment, prefix).Scan(&count); err != nil {
		return err
	}
	if index != count {
		return fmt.Errorf("%w: index %d with %d stored", ErrOutOfOrder, index, count)
	}

	data, err := json.Marshal(label)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO predictions (experiment, prefix, idx, label, run_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		s.experiment, prefix, index, string(data), s.runID, time.Now().UnixMilli())
	return err
}

// Runs 返回该实验的运行次数
func (s *SQLiteResultStore) Runs(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE experiment = ?`, s.experiment).Scan(&n)
	return n, err
}

// Close 关闭数据库
func (s *SQLiteResultStore) Close() error {
	return s.db.Close()
}

var _ ResultStore = (*SQLiteResultStore)(nil)
