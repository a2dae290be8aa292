package buffer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/matt0x6f/ircquill/internal/logger"
	"github.com/matt0x6f/ircquill/internal/proto"
)

// LogStore reads and writes a single buffer's on-disk line log. Logs
// are bucketed one file per calendar day under the buffer's directory,
// laid out as <dir>/<year>/<month>/<day>, each file holding one JSON
// object per line in append order.
//
// A LogStore instance owns its directory exclusively; nothing enforces
// that across processes.
type LogStore struct {
	dir string
	// The next day FetchNextDay will read, moving backward in time.
	nextReadDay time.Time
	now         func() time.Time
}

// NewLogStore opens a log store rooted at dir, creating the directory
// if needed. Reading starts from today and pages backward.
func NewLogStore(dir string) *LogStore {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Log.Error().Err(err).Str("dir", dir).Msg("Failed to create log directory")
	}
	now := time.Now
	return &LogStore{
		dir:         dir,
		nextReadDay: now(),
		now:         now,
	}
}

// Append writes the given lines, in order, to today's log file,
// creating the day's directory path as needed. A line that cannot be
// written is logged and dropped; the in-memory buffer stays the
// authoritative copy for the session.
func (s *LogStore) Append(lines []proto.Line) {
	if len(lines) == 0 {
		return
	}
	path := s.fileForDay(s.now())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Log.Error().Err(err).Str("path", path).Msg("Failed to create log day directory")
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.Log.Error().Err(err).Str("path", path).Msg("Failed to open log file for writing")
		return
	}
	defer f.Close()

	for _, line := range lines {
		data, err := json.Marshal(line)
		if err != nil {
			logger.Log.Error().Err(err).Msg("Failed to encode log line")
			continue
		}
		data = append(data, '\n')
		if _, err := f.Write(data); err != nil {
			logger.Log.Error().Err(err).Str("path", path).Msg("Failed to write log line")
		}
	}
}

// FetchNextDay reads all lines recorded for the next not-yet-read day
// and steps the read cursor back one calendar day. Lines are returned
// newest first so callers can extend a buffer's back log directly. A
// day with no log file yields an empty result, not an error; corrupt
// lines are skipped.
func (s *LogStore) FetchNextDay() []proto.Line {
	day := s.nextReadDay
	s.nextReadDay = day.AddDate(0, 0, -1)
	return s.linesForDay(day)
}

func (s *LogStore) linesForDay(day time.Time) []proto.Line {
	path := s.fileForDay(day)
	f, err := os.Open(path)
	if err != nil {
		// Missing files are normal: not every day has traffic.
		return nil
	}
	defer f.Close()

	var lines []proto.Line
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var line proto.Line
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			logger.Log.Warn().Err(err).Str("path", path).Msg("Skipping corrupt log line")
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		logger.Log.Error().Err(err).Str("path", path).Msg("Failed reading log file")
	}

	// Files are stored oldest first; the back log wants newest first.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines
}

func (s *LogStore) fileForDay(day time.Time) string {
	return filepath.Join(s.dir,
		fmt.Sprintf("%04d", day.Year()),
		fmt.Sprintf("%d", int(day.Month())),
		fmt.Sprintf("%d", day.Day()))
}
