package transcript

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// rawFile is the per-transcript value in a MultiWOZ-style export.
type rawFile struct {
	Log *[]json.RawMessage `json:"log"`
}

type rawTurn struct {
	Text     *string         `json:"text"`
	Metadata json.RawMessage `json:"metadata"`
}

// ParseFile opens path and parses it with Parse.
func ParseFile(path string) ([]Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a transcript export of the form
//
//	{ "file1.json": {"log": [{"text": "...", "metadata": {...}}, ...]}, ... }
//
// Transcripts are returned in document order. A document that is not a JSON
// object fails the whole call; a single unreadable transcript is returned with
// Err set so the rest of the batch can still be processed.
func Parse(r io.Reader) ([]Transcript, error) {
	dec := json.NewDecoder(bufio.NewReaderSize(r, 1<<20))

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty document")
		}
		return nil, fmt.Errorf("read first token: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected top-level JSON object, got %v", tok)
	}

	var out []Transcript
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read transcript key: %w", err)
		}
		id, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected transcript key, got %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode transcript %q: %w", id, err)
		}
		out = append(out, parseTranscript(id, raw))
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read closing token: %w", err)
	}
	return out, nil
}

func parseTranscript(id string, raw json.RawMessage) Transcript {
	var f rawFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return Transcript{ID: id, Err: malformed(id, -1, "not an object: %v", err)}
	}
	if f.Log == nil {
		return Transcript{ID: id, Err: malformed(id, -1, "missing \"log\" array")}
	}

	turns := make([]Turn, 0, len(*f.Log))
	for i, entry := range *f.Log {
		var rt rawTurn
		if err := json.Unmarshal(entry, &rt); err != nil {
			return Transcript{ID: id, Err: malformed(id, i, "invalid entry: %v", err)}
		}
		if rt.Text == nil {
			return Transcript{ID: id, Err: malformed(id, i, "missing \"text\"")}
		}
		if len(rt.Metadata) == 0 {
			return Transcript{ID: id, Err: malformed(id, i, "missing \"metadata\"")}
		}
		chatbot, err := hasMetadata(rt.Metadata)
		if err != nil {
			return Transcript{ID: id, Err: malformed(id, i, "invalid metadata: %v", err)}
		}
		turns = append(turns, Turn{Text: *rt.Text, IsChatbot: chatbot})
	}

	return Transcript{ID: id, Turns: turns}
}

// hasMetadata reports whether a metadata value carries any content.
// User turns are recorded with an empty object (or null).
func hasMetadata(raw json.RawMessage) (bool, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, err
	}
	switch m := v.(type) {
	case nil:
		return false, nil
	case map[string]any:
		return len(m) > 0, nil
	case []any:
		return len(m) > 0, nil
	case string:
		return m != "", nil
	default:
		return true, nil
	}
}
