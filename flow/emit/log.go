package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LogEmitter writes structured log output for each event: text mode
// (key=value) or JSON mode (one object per line).
type LogEmitter struct {
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter returns a LogEmitter writing to writer (os.Stdout if nil).
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

func (l *LogEmitter) Emit(event Event) {
	if l.jsonMode {
		l.emitJSON(event)
	} else {
		l.emitText(event)
	}
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(struct {
		BatchItem int                    `json:"batchItem"`
		NodeID    int                    `json:"nodeID"`
		NodeName  string                 `json:"nodeName"`
		Msg       string                 `json:"msg"`
		Meta      map[string]interface{} `json:"meta"`
	}{event.BatchItem, event.NodeID, event.NodeName, event.Msg, event.Meta})
	if err != nil {
		_, _ = fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	_, _ = fmt.Fprintf(l.writer, "[%s] item=%d node=%s(%d)",
		event.Msg, event.BatchItem, event.NodeName, event.NodeID)
	if len(event.Meta) > 0 {
		metaJSON, err := json.Marshal(event.Meta)
		if err == nil {
			_, _ = fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		} else {
			_, _ = fmt.Fprintf(l.writer, " meta=%v", event.Meta)
		}
	}
	_, _ = fmt.Fprint(l.writer, "\n")
}

// EmitBatch writes each event in order through Emit; it exists to satisfy
// the Emitter interface's batching contract.
func (l *LogEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, event := range events {
		l.Emit(event)
	}
	return nil
}

// Flush is a no-op: LogEmitter writes synchronously and keeps no buffer.
func (l *LogEmitter) Flush(_ context.Context) error { return nil }
