package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chatlog-cli/internal/activity"
)

// FileSource 以 JSON lines 存储历史，每行一条 RawHistoryMessage，解码失败的行会跳过。
type FileSource struct {
	Path string
}

func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".chatlog", "history.jsonl"), nil
}

func NewFileSource(path string) (*FileSource, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrEmptyPath
	}
	return &FileSource{Path: path}, nil
}

func (s *FileSource) ensureDir() error {
	if s == nil || strings.TrimSpace(s.Path) == "" {
		return ErrEmptyPath
	}
	return os.MkdirAll(filepath.Dir(s.Path), 0o755)
}

// Append 把消息追加到文件末尾。
func (s *FileSource) Append(msgs ...activity.RawHistoryMessage) error {
	if s == nil {
		return errors.New("history source is nil")
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := s.ensureDir(); err != nil {
		return err
	}
	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode history message: %w", err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Load 按文件顺序返回所有可解码的消息，文件不存在视为空历史。
func (s *FileSource) Load(ctx context.Context) ([]activity.RawHistoryMessage, error) {
	if s == nil || strings.TrimSpace(s.Path) == "" {
		return nil, ErrEmptyPath
	}
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	var out []activity.RawHistoryMessage
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var m activity.RawHistoryMessage
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}
	return out, nil
}

func (s *FileSource) Page(ctx context.Context, before int64, limit int) (Page, error) {
	msgs, err := s.Load(ctx)
	if err != nil {
		return Page{}, err
	}
	return window(sequenced(msgs), before, limit), nil
}

// Ping 只在文件存在但无法读取时失败。
func (s *FileSource) Ping(context.Context) error {
	if s == nil || strings.TrimSpace(s.Path) == "" {
		return ErrEmptyPath
	}
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return f.Close()
}

func (s *FileSource) Close() error { return nil }
