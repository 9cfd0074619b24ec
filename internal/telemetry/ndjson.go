package telemetry

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// KeyTimestamp holds the RFC 3339 time of a sample in NDJSON exports.
const KeyTimestamp = "timestamp"

// ErrBadSample is returned for NDJSON lines that are not a timestamped object.
var ErrBadSample = eris.New("telemetry: bad sample")

const maxLineBytes = 1 << 20

// ReadSamples parses newline-delimited JSON objects, one sample per line, and
// returns them sorted by timestamp. Every key other than "timestamp" is kept
// as payload. Blank lines are skipped.
func ReadSamples(r io.Reader) ([]Sample, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var out []Sample
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}

		var p Payload
		if err := json.Unmarshal([]byte(text), &p); err != nil || p == nil {
			return nil, eris.Wrapf(ErrBadSample, "line %d: not a JSON object", line)
		}
		raw, ok := p[KeyTimestamp].(string)
		if !ok {
			return nil, eris.Wrapf(ErrBadSample, "line %d: missing %q", line, KeyTimestamp)
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, eris.Wrapf(ErrBadSample, "line %d: timestamp %q is not RFC 3339", line, raw)
		}
		delete(p, KeyTimestamp)

		out = append(out, Sample{Timestamp: ts, Payload: p})
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "telemetry: read samples")
	}

	SortSamples(out)
	return out, nil
}
