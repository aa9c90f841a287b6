package keygen

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"dpk/internal/config"
	"dpk/pkg/logger"
	"dpk/pkg/partitionkey"
	"dpk/pkg/utils"
)

const initialLineBuffer = 64 * 1024

// Stats 一次批处理的统计
type Stats struct {
	Lines   int // 非空输入行数
	Derived int // 成功计算出 key 的行数
	Invalid int // 被跳过的非法行数
}

// Generator 从按行分隔的 JSON 事件流中批量计算 partition key，
// 每个非空输入行对应一行输出，顺序与输入一致。
type Generator struct {
	workers      int
	chunkSize    int
	maxLineBytes int
	skipInvalid  bool
}

func NewGenerator(c config.BatchConfig) *Generator {
	g := &Generator{
		workers:      c.Workers,
		chunkSize:    c.ChunkSize,
		maxLineBytes: c.MaxLineBytes,
		skipInvalid:  c.SkipInvalid,
	}
	if g.chunkSize <= 0 {
		g.chunkSize = 1
	}
	if g.maxLineBytes <= 0 {
		g.maxLineBytes = initialLineBuffer
	}
	return g
}

type line struct {
	no   int
	data []byte
}

type keyResult struct {
	line line
	key  string
	err  error
}

// Run 读取 r 中的事件并把 key 写入 w。
// 非法事件默认中止处理；开启 SkipInvalid 时记录日志并输出空行。
// ctx 在批次之间检查，已写出的结果会被 flush。
func (g *Generator) Run(ctx context.Context, r io.Reader, w io.Writer) (stats Stats, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(initialLineBuffer, g.maxLineBytes)), g.maxLineBytes)

	out := bufio.NewWriter(w)
	defer func() {
		if flushErr := out.Flush(); flushErr != nil && err == nil {
			err = fmt.Errorf("flush output: %w", flushErr)
		}
	}()

	chunk := make([]line, 0, g.chunkSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		// Scanner 会复用底层缓冲区，必须拷贝
		chunk = append(chunk, line{no: lineNo, data: bytes.Clone(data)})
		if len(chunk) < g.chunkSize {
			continue
		}
		if err := g.flushChunk(ctx, chunk, out, &stats); err != nil {
			return stats, err
		}
		chunk = chunk[:0]
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return stats, fmt.Errorf("line %d exceeds max_line_bytes (%d): %w", lineNo+1, g.maxLineBytes, err)
		}
		return stats, fmt.Errorf("read input: %w", err)
	}

	if len(chunk) > 0 {
		if err := g.flushChunk(ctx, chunk, out, &stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (g *Generator) flushChunk(ctx context.Context, chunk []line, out *bufio.Writer, stats *Stats) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("ctx cancelled: %w", err)
	}

	results := utils.ParallelMap(chunk, g.workers, derive)
	for _, res := range results {
		stats.Lines++
		if res.err != nil {
			if !g.skipInvalid {
				return fmt.Errorf("line %d: %w", res.line.no, res.err)
			}
			stats.Invalid++
			logger.Warnf("[keygen] skip invalid event at line %d: %v", res.line.no, res.err)
			if err := out.WriteByte('\n'); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			continue
		}

		stats.Derived++
		if _, err := out.WriteString(res.key); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		if err := out.WriteByte('\n'); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	logger.Debugf("[keygen] chunk done, lines=%d derived=%d invalid=%d", stats.Lines, stats.Derived, stats.Invalid)
	return nil
}

func derive(l line) keyResult {
	event, err := partitionkey.DecodeEvent(l.data)
	if err != nil {
		return keyResult{line: l, err: err}
	}
	key, err := partitionkey.Deterministic(event)
	return keyResult{line: l, key: key, err: err}
}
