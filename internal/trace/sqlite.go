// internal/trace/sqlite.go
package trace

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AshgroveGames/ParleyCore/internal/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS gateway_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	component   TEXT NOT NULL,
	purpose     TEXT NOT NULL,
	model_id    TEXT NOT NULL,
	sequence_no INTEGER NOT NULL,
	created_at  TEXT NOT NULL
);`

// SQLiteSink 把网关调用事件写入本地sqlite日志库
// 写入失败只记日志，绝不向上传播
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink 打开（或创建）遥测日志库
func NewSQLiteSink(dataDir string) (*SQLiteSink, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("创建遥测数据目录失败: %w", err)
	}

	dbPath := filepath.Join(dataDir, "trace.db")
	db, err := sql.Open("sqlite", "file:"+dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开遥测数据库失败: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化遥测表失败: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Record 写入一条网关调用事件
func (s *SQLiteSink) Record(event Event) {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO gateway_events(component, purpose, model_id, sequence_no, created_at) VALUES (?,?,?,?,?)`,
		event.Component, event.Purpose, event.ModelID, event.SequenceNo, ts.UTC().Format(time.RFC3339),
	)
	if err != nil {
		utils.GetLogger().Warn("写入遥测事件失败", map[string]interface{}{
			"component": event.Component,
			"error":     err.Error(),
		})
	}
}

// Close 关闭底层数据库
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
