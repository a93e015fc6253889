package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Report summarises one pass of Process over a line source.
type Report struct {
	Lines    int `json:"lines"`
	Rendered int `json:"rendered"`
	Failed   int `json:"failed"`
}

// LineResult is the outcome of rendering one line in RenderLines.
type LineResult struct {
	Index  int
	Output string
	Err    error
}

// Processor drives the classifier and generator over a line source.
// It holds no per-line state; all methods are concurrent-safe.
type Processor struct {
	logger *slog.Logger
	config *Config
	mu     sync.RWMutex
}

// NewProcessor creates a Processor. A nil config uses DefaultConfig.
func NewProcessor(logger *slog.Logger, config *Config) *Processor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Processor{logger: logger, config: config}
}

// SetConfig replaces the configuration used for subsequent calls.
func (p *Processor) SetConfig(config *Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config = config
}

// GetConfig returns a copy of the current configuration.
func (p *Processor) GetConfig() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return *p.config
}

// RenderLine classifies and renders a single line. A trailing newline is
// ignored. Unrecognized lines render as the configured marker.
func (p *Processor) RenderLine(line string, vars Context) (string, error) {
	line = strings.TrimRight(line, "\r\n")
	content, err := Classify(line)
	if err != nil {
		return "", err
	}
	if _, ok := content.(Unrecognized); ok {
		return p.GetConfig().UnrecognizedMarker, nil
	}
	return Render(content, vars)
}

// Process reads r one line at a time and writes one rendered unit per line
// to w, each followed by a newline. Failed lines, including lines longer
// than MaxLineBytes, are handled according to the configured ErrorPolicy;
// only PolicyHalt and I/O errors end the pass early.
func (p *Processor) Process(ctx context.Context, r io.Reader, w io.Writer, vars Context) (Report, error) {
	cfg := p.GetConfig()
	var report Report

	maxLine := cfg.MaxLineBytes
	if maxLine <= 0 {
		maxLine = bufio.MaxScanTokenSize
	}
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)

	for {
		line, tooLong, err := readLine(br, maxLine)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = bw.Flush()
			return report, fmt.Errorf("failed to read template lines: %w", err)
		}

		report.Lines++
		var out string
		if tooLong {
			err = fmt.Errorf("%w: more than %d bytes", ErrLineTooLong, maxLine)
		} else {
			out, err = p.RenderLine(line, vars)
		}
		if err != nil {
			report.Failed++
			p.logger.WarnContext(ctx, "Failed to render line",
				slog.Int("line", report.Lines),
				slog.String("policy", string(cfg.ErrorPolicy)),
				slog.Any("error", err),
			)
			switch cfg.ErrorPolicy {
			case PolicyHalt:
				_ = bw.Flush()
				return report, fmt.Errorf("line %d: %w", report.Lines, err)
			case PolicyInline:
				out = "error: " + err.Error()
			default:
				continue
			}
		} else {
			report.Rendered++
		}
		if _, err = bw.WriteString(out); err != nil {
			return report, err
		}
		if err = bw.WriteByte('\n'); err != nil {
			return report, err
		}
	}

	p.logger.DebugContext(ctx, "Template processed",
		slog.Int("lines", report.Lines),
		slog.Int("rendered", report.Rendered),
		slog.Int("failed", report.Failed),
	)
	return report, bw.Flush()
}

// RenderLines renders a batch of independent lines concurrently on at most
// Config.Workers goroutines. Results are position matched with lines.
func (p *Processor) RenderLines(lines []string, vars Context) []LineResult {
	results := make([]LineResult, len(lines))
	workers := p.GetConfig().Workers
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for range min(workers, len(lines)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out, err := p.RenderLine(lines[i], vars)
				results[i] = LineResult{Index: i, Output: out, Err: err}
			}
		}()
	}
	for i := range lines {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

// readLine reads one line from br without its line ending. A line longer
// than maxLine is consumed up to its newline and reported as tooLong with an
// empty text, so memory stays bounded by maxLine. io.EOF is returned only
// when no bytes were left.
func readLine(br *bufio.Reader, maxLine int) (string, bool, error) {
	var buf []byte
	read := 0
	tooLong := false
	for {
		chunk, err := br.ReadSlice('\n')
		read += len(chunk)
		if !tooLong {
			buf = append(buf, chunk...)
			if len(bytes.TrimRight(buf, "\r\n")) > maxLine {
				tooLong, buf = true, nil
			}
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == nil, errors.Is(err, io.EOF) && read > 0:
			return string(bytes.TrimRight(buf, "\r\n")), tooLong, nil
		default:
			return "", false, err
		}
	}
}
