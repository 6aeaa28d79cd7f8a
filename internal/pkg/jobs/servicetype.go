package jobs

import (
	"github.com/airenas/scribe/internal/pkg/apperr"
)

// ServiceType is the closed set of external speech processing job types
type ServiceType int

const (
	// Diarize splits audio into speaker turn segments
	Diarize ServiceType = iota + 1
	// Recognize produces a transcript with per-word confidences
	Recognize
	// Align time-aligns existing text to the audio
	Align
)

var serviceName = map[ServiceType]string{Diarize: "diarize", Recognize: "recognize", Align: "align"}

func (s ServiceType) String() string {
	return serviceName[s]
}

// ParseServiceType maps the wire name to the enum, BadRequest on unknown names
func ParseServiceType(name string) (ServiceType, error) {
	for st, n := range serviceName {
		if n == name {
			return st, nil
		}
	}
	return 0, apperr.New(apperr.BadRequest, "speech service '%s' not supported", name)
}
