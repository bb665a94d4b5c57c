package domain

import "time"

// Stream identifies which child output stream a LogLine came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Level is the classification NoiseFilter/LevelClassifier assigns a line.
type Level string

const (
	LevelError  Level = "error"
	LevelWarn   Level = "warn"
	LevelInfo   Level = "info"
	LevelDebug  Level = "debug"
	LevelOutput Level = "output"
)

// LogLine is one trimmed, non-empty line captured from a child stream.
type LogLine struct {
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Stream     Stream    `json:"stream"`
	ProcessID  string    `json:"processId"`
}
