package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryMirror struct {
	mu   sync.Mutex
	recs []Record
}

func (m *memoryMirror) RecordAudit(rec Record) error {
	m.mu.Lock()
	m.recs = append(m.recs, rec)
	m.mu.Unlock()
	return nil
}

func (m *memoryMirror) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

func TestSinkWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewSink(path, nil)
	require.NoError(t, err)

	sink.Emit(Record{GuildID: 1, SubjectID: 2, Action: "ban", Severity: "critical", Outcome: OutcomeDirectiveIssued})
	sink.Emit(Record{GuildID: 1, SubjectID: 3, Action: "warn", Outcome: OutcomeWarned, Detail: map[string]any{"count": 2}})
	sink.Close()

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var recs []Record
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		recs = append(recs, rec)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, recs, 2)
	assert.Equal(t, "ban", recs[0].Action)
	assert.Equal(t, OutcomeDirectiveIssued, recs[0].Outcome)
	assert.False(t, recs[0].Timestamp.IsZero(), "emit stamps missing timestamps")
	assert.Equal(t, 2.0, recs[1].Detail["count"])
}

func TestSinkForwardsToMirror(t *testing.T) {
	mirror := &memoryMirror{}
	sink, err := NewSink(filepath.Join(t.TempDir(), "audit.jsonl"), mirror)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		sink.Emit(Record{GuildID: 1, SubjectID: uint64(i), Action: "warn", Outcome: OutcomeWarned})
	}
	sink.Close()

	assert.Equal(t, 10, mirror.count())
}

func TestSinkKeepsProvidedTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewSink(path, nil)
	require.NoError(t, err)

	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sink.Emit(Record{GuildID: 1, Action: "ban", Outcome: OutcomeVerdict, Timestamp: stamp})
	sink.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec Record
	require.NoError(t, json.Unmarshal(data[:len(data)-1], &rec))
	assert.True(t, rec.Timestamp.Equal(stamp))
}
