package jobs

import (
	"fmt"
	"strconv"
	"strings"
)

// lowConfidence marks recognized words the editor should double check
const lowConfidence = 0.9

type segment struct {
	start, end float64
}

// parseSegments reads a diarization CTM: one segment per line, start and end
// seconds as the first two fields
func parseSegments(ctm string) ([]segment, error) {
	res := []segment{}
	for i, line := range strings.Split(ctm, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: expected start and end time, got '%s'", i+1, line)
		}
		start, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: can't parse start time: %w", i+1, err)
		}
		end, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: can't parse end time: %w", i+1, err)
		}
		if end <= start {
			return nil, fmt.Errorf("line %d: end %.3f not after start %.3f", i+1, end, start)
		}
		res = append(res, segment{start: start, end: end})
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("empty result")
	}
	return res, nil
}

// formatText renders a service result into the editor text format
func formatText(st ServiceType, ctm string) (string, error) {
	switch st {
	case Diarize:
		return formatDiarize(ctm)
	case Recognize:
		return formatRecognize(ctm)
	case Align:
		return ctm, nil
	}
	return "", fmt.Errorf("unknown service type %d", st)
}

// formatDiarize turns speaker turn segments into time anchor lines the editor
// fills in by listening
func formatDiarize(ctm string) (string, error) {
	segments, err := parseSegments(ctm)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, s := range segments {
		sb.WriteString(fmt.Sprintf("[%.2f - %.2f]\n\n", s.start, s.end))
	}
	return sb.String(), nil
}

// formatRecognize renders transcript words, marking low confidence ones.
// CTM line: utterance channel start duration word [confidence]
func formatRecognize(ctm string) (string, error) {
	words := []string{}
	for i, line := range strings.Split(ctm, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			return "", fmt.Errorf("line %d: expected CTM word entry, got '%s'", i+1, line)
		}
		word := fields[4]
		if len(fields) > 5 {
			conf, err := strconv.ParseFloat(fields[5], 64)
			if err != nil {
				return "", fmt.Errorf("line %d: can't parse confidence: %w", i+1, err)
			}
			if conf < lowConfidence {
				word = fmt.Sprintf("{%s|%.2f}", word, conf)
			}
		}
		words = append(words, word)
	}
	if len(words) == 0 {
		return "", fmt.Errorf("empty result")
	}
	return strings.Join(words, " ") + "\n", nil
}
