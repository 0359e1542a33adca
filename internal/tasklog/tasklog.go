// Package tasklog persists per-task append-only log files. Each file starts
// with a rewritable JSON header line (the task config plus mutable status and
// metrics) followed by append-only body lines. Fetch logs use
// `timestamp,session,price` body lines; trade logs use
// `timestamp,entryType,jsonPayload`. Only the header is ever rewritten, via
// an atomic whole-file replacement.
package tasklog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"quantopia/internal/domain"
	"quantopia/internal/metrics"
)

// TimeLayout is the wall-clock format of body-line timestamps, truncated to
// whole seconds in market-local time.
const TimeLayout = "2006-01-02 15:04:05"

// Header is the first line of every task log.
type Header struct {
	domain.TaskConfig

	Status    domain.TaskStatus   `json:"status"`
	StartTime string              `json:"start_time"`
	Metrics   *metrics.TradeStats `json:"metrics,omitempty"`
}

// Store manages the log files under one directory, one file per task id.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore ensures dir exists and returns a Store over it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("tasklog: create dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the log file path for a task id.
func (s *Store) Path(taskID string) string {
	return filepath.Join(s.dir, taskID+".txt")
}

// Create writes a new log file containing only the header line.
func (s *Store) Create(header *Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("tasklog: marshal header: %w", err)
	}
	return os.WriteFile(s.Path(header.TaskID), append(line, '\n'), 0o644)
}

// Exists reports whether a log file is present for the task id.
func (s *Store) Exists(taskID string) bool {
	_, err := os.Stat(s.Path(taskID))
	return err == nil
}

// AppendPriceSample appends a fetch-format body line.
func (s *Store) AppendPriceSample(taskID string, ts time.Time, sessionLabel string, price float64) error {
	line := fmt.Sprintf("%s,%s,%s\n",
		ts.Format(TimeLayout),
		sessionLabel,
		strconv.FormatFloat(price, 'f', -1, 64))
	return s.appendLine(taskID, line)
}

// AppendEntry appends a trade-format body line with a JSON payload.
func (s *Store) AppendEntry(taskID string, ts time.Time, entryType domain.LogEntryType, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("tasklog: marshal payload: %w", err)
	}
	line := fmt.Sprintf("%s,%s,%s\n", ts.Format(TimeLayout), entryType, data)
	return s.appendLine(taskID, line)
}

func (s *Store) appendLine(taskID, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.Path(taskID), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("tasklog: open %s for append: %w", taskID, err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("tasklog: append to %s: %w", taskID, err)
	}
	return nil
}

// ReadHeader parses the first line of a task log.
func (s *Store) ReadHeader(taskID string) (*Header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	header, _, err := s.readAll(taskID)
	return header, err
}

// RewriteHeader replaces the header line while leaving every body line
// untouched. The whole file is rewritten to a temp file and renamed into
// place so a crash never leaves a torn header.
func (s *Store) RewriteHeader(taskID string, header *Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path(taskID))
	if err != nil {
		return fmt.Errorf("tasklog: read %s: %w", taskID, err)
	}

	headerLine, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("tasklog: marshal header: %w", err)
	}

	body := ""
	if idx := strings.IndexByte(string(data), '\n'); idx >= 0 {
		body = string(data[idx+1:])
	}

	tmp, err := os.CreateTemp(s.dir, taskID+".tmp-*")
	if err != nil {
		return fmt.Errorf("tasklog: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	_, werr := tmp.WriteString(string(headerLine) + "\n" + body)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("tasklog: write temp for %s: %w", taskID, joinErr(werr, cerr))
	}
	if err := os.Rename(tmpPath, s.Path(taskID)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("tasklog: replace %s: %w", taskID, err)
	}
	return nil
}

// Delete removes a task log file.
func (s *Store) Delete(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.Path(taskID)); err != nil {
		return fmt.Errorf("tasklog: delete %s: %w", taskID, err)
	}
	return nil
}

// List returns the task ids of every log file in the store.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("tasklog: read dir: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".txt") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".txt"))
	}
	return ids, nil
}

func (s *Store) readAll(taskID string) (*Header, []string, error) {
	data, err := os.ReadFile(s.Path(taskID))
	if err != nil {
		return nil, nil, fmt.Errorf("tasklog: read %s: %w", taskID, err)
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, nil, fmt.Errorf("tasklog: empty log file for %s", taskID)
	}
	header := &Header{}
	if err := json.Unmarshal([]byte(lines[0]), header); err != nil {
		return nil, nil, fmt.Errorf("tasklog: parse header of %s: %w", taskID, err)
	}
	return header, lines[1:], nil
}

// FetchReplay is the reconstructed state of a fetch-task log.
type FetchReplay struct {
	Header *Header
	Points []domain.PricePoint
}

// ReplayFetch reads a fetch log and returns the header plus up to maxPoints
// of the most recent body points. maxPoints <= 0 keeps everything.
func (s *Store) ReplayFetch(taskID string, maxPoints int) (*FetchReplay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	header, lines, err := s.readAll(taskID)
	if err != nil {
		return nil, err
	}

	var points []domain.PricePoint
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ",", 3)
		if len(parts) < 3 {
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			continue
		}
		point := domain.PricePoint{Session: parts[1], Price: price}
		if ts, err := time.Parse(TimeLayout, parts[0]); err == nil {
			point.Timestamp = ts
		}
		points = append(points, point)
	}
	if maxPoints > 0 && len(points) > maxPoints {
		points = points[len(points)-maxPoints:]
	}
	return &FetchReplay{Header: header, Points: points}, nil
}

// TradeReplay is the reconstructed state of a trade-task log: the bounded
// price cache with matching timestamps and the executed trade records.
type TradeReplay struct {
	Header     *Header
	Prices     []float64
	Timestamps []time.Time
	Trades     []domain.TradeRecord
}

// ReplayTrade reads a trade log and rebuilds the in-memory caches, trimming
// the price cache to the last maxCacheSize samples. Malformed body lines are
// skipped; a malformed header is an error.
func (s *Store) ReplayTrade(taskID string, maxCacheSize int) (*TradeReplay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	header, lines, err := s.readAll(taskID)
	if err != nil {
		return nil, err
	}

	replay := &TradeReplay{Header: header}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ",", 3)
		if len(parts) < 3 {
			continue
		}
		ts, tserr := time.Parse(TimeLayout, parts[0])

		var payload map[string]any
		if err := json.Unmarshal([]byte(parts[2]), &payload); err != nil {
			continue
		}

		switch domain.LogEntryType(parts[1]) {
		case domain.EntryPriceSample:
			price, ok := payload["price"].(float64)
			if !ok {
				continue
			}
			replay.Prices = append(replay.Prices, price)
			if tserr == nil {
				replay.Timestamps = append(replay.Timestamps, ts)
			} else {
				replay.Timestamps = append(replay.Timestamps, time.Time{})
			}

		case domain.EntryTrade:
			tradeType, _ := payload["trade_type"].(string)
			if tradeType != string(domain.SignalBuy) && tradeType != string(domain.SignalSell) {
				continue
			}
			price, _ := payload["price"].(float64)
			info, _ := payload["signal_info"].(map[string]any)
			sessionLabel, _ := payload["session"].(string)
			replay.Trades = append(replay.Trades, domain.TradeRecord{
				Timestamp:  ts,
				TradeType:  domain.Signal(tradeType),
				Price:      price,
				SignalInfo: info,
				Session:    sessionLabel,
			})
		}
	}

	if maxCacheSize > 0 && len(replay.Prices) > maxCacheSize {
		replay.Prices = replay.Prices[len(replay.Prices)-maxCacheSize:]
		replay.Timestamps = replay.Timestamps[len(replay.Timestamps)-maxCacheSize:]
	}
	return replay, nil
}

func joinErr(a, b error) error {
	if a != nil {
		return a
	}
	return b
}
