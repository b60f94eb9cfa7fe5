package safeoutput

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log"
	"os"
	"strings"
)

// Load reads the agent's emitted intent document from path. It fails soft:
// a missing path is an informational no-op and an unreadable or invalid
// document is a local failure. Callers must treat ok=false as "nothing to
// do", never as a crash.
//
// Two layouts are accepted: a single {"items": [...]} document, or the
// newline-delimited record lines the appender writes.
func Load(path string, logger *log.Logger) (Document, bool) {
	if strings.TrimSpace(path) == "" {
		logger.Printf("no intent document path configured, nothing to do")
		return Document{}, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("intent document %s not found, nothing to do", path)
		} else {
			logger.Printf("reading intent document %s: %v", path, err)
		}
		return Document{}, false
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Document{Items: []Record{}}, true
	}

	if trimmed[0] == '{' {
		// Distinguish an {"items": [...]} document from a single record
		// line, which also starts with '{'.
		var wrapped struct {
			Items *[]Record `json:"items"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err == nil && wrapped.Items != nil {
			return Document{Items: *wrapped.Items}, true
		}
	}

	doc, err := parseLines(trimmed)
	if err != nil {
		logger.Printf("parsing intent document %s: %v", path, err)
		return Document{}, false
	}
	return doc, true
}

func parseLines(data []byte) (Document, error) {
	doc := Document{Items: []Record{}}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return Document{}, err
		}
		doc.Items = append(doc.Items, rec)
	}
	if err := sc.Err(); err != nil {
		return Document{}, err
	}
	return doc, nil
}
