package domain

import "time"

// Stats is the snapshot returned by Supervisor.Stats.
type Stats struct {
	Descriptor   *ProcessDescriptor `json:"descriptor"`
	BufferSize   int                `json:"bufferSize"`
	RestartCount int                `json:"restartCount"`
	LastActivity time.Time          `json:"lastActivity"`
}
