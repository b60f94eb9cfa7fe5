package safeoutput

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
)

// RecordStore is the append-only Intent Record store. Exactly one writer per
// run; readers only run after the writer phase ends, so no locking is needed
// beyond what each backend already provides.
type RecordStore interface {
	Append(ctx context.Context, rec Record) error
	ReadAll(ctx context.Context) ([]Record, error)
}

// FileStore appends newline-delimited JSON records to a single file.
type FileStore struct {
	path string
}

// NewFileStore creates the parent directory eagerly so the first append
// cannot fail on a missing path mid-run.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("record store path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating record store dir: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Append(ctx context.Context, rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening record store: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending record: %w", err)
	}
	return nil
}

func (s *FileStore) ReadAll(ctx context.Context) ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading record store: %w", err)
	}
	doc, err := parseLines(bytes.TrimSpace(data))
	if err != nil {
		return nil, fmt.Errorf("parsing record store: %w", err)
	}
	return doc.Items, nil
}

// Path returns the backing file location.
func (s *FileStore) Path() string { return s.path }

// RedisStore appends records to a per-run Redis list, for runs whose agent
// and apply phases do not share a filesystem.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects and pings, mirroring how the rest of the system
// treats an unreachable Redis as a startup failure rather than a mid-run one.
func NewRedisStore(ctx context.Context, addr, password string, db int, runKey string) (*RedisStore, error) {
	if runKey == "" {
		return nil, fmt.Errorf("redis record store key is empty")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client, key: runKey}, nil
}

func (s *RedisStore) Append(ctx context.Context, rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	if err := s.client.RPush(ctx, s.key, line).Err(); err != nil {
		return fmt.Errorf("appending record to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) ReadAll(ctx context.Context) ([]Record, error) {
	lines, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading records from redis: %w", err)
	}
	out := make([]Record, 0, len(lines))
	for _, line := range lines {
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("parsing redis record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error { return s.client.Close() }

// MemoryStore keeps records in memory, for tests and previews.
type MemoryStore struct {
	records []Record
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Append(ctx context.Context, rec Record) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) ReadAll(ctx context.Context) ([]Record, error) {
	return append([]Record(nil), s.records...), nil
}
