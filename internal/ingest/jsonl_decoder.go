package ingest

import (
	"bufio"
	"encoding/json"
	"io"
	"os"

	"github.com/quantfeed/mbo-gateway/internal/record"
)

// JSONLDecoder decodes newline-delimited JSON MBO events from a file. It
// is a reference Decoder: the feed's actual binary wire format is
// decoded upstream of this package, out of scope here, and any decoder
// satisfying the Decoder interface can be substituted at the call site
// in cmd/feed-gateway.
type JSONLDecoder struct {
	file    *os.File
	scanner *bufio.Scanner
}

// OpenJSONLDecoder opens path for reading.
func OpenJSONLDecoder(path string) (*JSONLDecoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &JSONLDecoder{
		file:    f,
		scanner: bufio.NewScanner(f),
	}, nil
}

// Next returns the next decoded event, io.EOF at end of file, or a
// decode error for a malformed line.
func (d *JSONLDecoder) Next() (*record.MBOEvent, error) {
	if !d.scanner.Scan() {
		if err := d.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var ev record.MBOEvent
	if err := json.Unmarshal(d.scanner.Bytes(), &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Close releases the underlying file handle.
func (d *JSONLDecoder) Close() error {
	return d.file.Close()
}
