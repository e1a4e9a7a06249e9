package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"npcsim.ai/internal/protocol"
)

// ErrStop ends a ReadTicks walk early without an error.
var ErrStop = errors.New("stop")

// ListFiles returns the <prefix>-*.jsonl.zst files in dir in write order.
func ListFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadTickFile calls fn for every record in one tick log file.
func ReadTickFile(path string, fn func(protocol.TickRecord) error) error {
	line := 0
	return readJSONL(path, func(b []byte) error {
		line++
		var rec protocol.TickRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return fmt.Errorf("%s:%d: unmarshal: %w", filepath.Base(path), line, err)
		}
		return fn(rec)
	})
}

// ReadTicks walks every tick log file under worldDir in order. Returning
// ErrStop from fn ends the walk with a nil error.
func ReadTicks(worldDir string, fn func(protocol.TickRecord) error) error {
	files, err := ListFiles(filepath.Join(worldDir, TickPrefix), TickPrefix)
	if err != nil {
		return err
	}
	for _, path := range files {
		if err := ReadTickFile(path, fn); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

// ReadMessages returns every logged message under worldDir in order.
func ReadMessages(worldDir string) ([]protocol.Message, error) {
	files, err := ListFiles(filepath.Join(worldDir, MessagePrefix), MessagePrefix)
	if err != nil {
		return nil, err
	}
	var out []protocol.Message
	for _, path := range files {
		if err := readJSONL(path, func(b []byte) error {
			var m protocol.Message
			if err := json.Unmarshal(b, &m); err != nil {
				return err
			}
			out = append(out, m)
			return nil
		}); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return out, nil
}

func readJSONL(path string, fn func([]byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}
