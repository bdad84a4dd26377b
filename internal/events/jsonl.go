package events

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrSinkClosed 输出已关闭
var ErrSinkClosed = errors.New("事件输出已关闭")

type opType int

const (
	opWrite opType = iota
	opFlush
	opClose
)

type op struct {
	typ  opType
	ev   Event
	done chan error
}

// JSONLSink 异步 JSONL 文件输出
// Publish 只负责投递，编码与文件 I/O 在后台 goroutine 完成。
type JSONLSink struct {
	path   string
	ch     chan op
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
	sendMu    sync.Mutex
	wg        sync.WaitGroup
}

// NewJSONLSink 创建 JSONL 输出
// 参数 path: 输出文件路径，目录不存在时自动创建
// 参数 bufferSize: 投递缓冲区大小
func NewJSONLSink(path string, bufferSize int, logger *zap.Logger) (*JSONLSink, error) {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开输出文件失败: %w", err)
	}

	s := &JSONLSink{
		path:   path,
		ch:     make(chan op, bufferSize),
		logger: logger.Named("jsonl"),
	}
	s.wg.Add(1)
	go s.loop(f)
	return s, nil
}

// Publish 投递一条事件
func (s *JSONLSink) Publish(_ context.Context, ev Event) error {
	return s.send(op{typ: opWrite, ev: ev})
}

// Flush 等待已投递的事件写入文件
func (s *JSONLSink) Flush() error {
	done := make(chan error, 1)
	if err := s.send(op{typ: opFlush, done: done}); err != nil {
		return err
	}
	return <-done
}

func (s *JSONLSink) send(o op) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed.Load() {
		return ErrSinkClosed
	}
	s.ch <- o
	return nil
}

// Close 刷新并关闭文件
func (s *JSONLSink) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.sendMu.Lock()
		defer s.sendMu.Unlock()
		done := make(chan error, 1)
		s.ch <- op{typ: opClose, done: done}
		s.closeErr = <-done
		close(s.ch)
	})
	s.wg.Wait()
	return s.closeErr
}

func (s *JSONLSink) loop(f *os.File) {
	defer s.wg.Done()
	defer f.Close()

	bw := bufio.NewWriterSize(f, 64<<10)
	for req := range s.ch {
		switch req.typ {
		case opWrite:
			b, err := json.Marshal(req.ev)
			if err != nil {
				s.logger.Warn("编码事件失败", zap.Error(err))
				continue
			}
			b = append(b, '\n')
			if _, err := bw.Write(b); err != nil {
				s.logger.Warn("写入事件失败", zap.String("path", s.path), zap.Error(err))
			}
		case opFlush:
			req.done <- bw.Flush()
		case opClose:
			req.done <- bw.Flush()
			return
		}
	}
}
