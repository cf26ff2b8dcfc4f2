// Package batch reads and writes discovered items as newline-delimited JSON
package batch

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	perr "muckrake/internal/platform/errors"
	"muckrake/internal/services/discover/domain"
)

// FailedTitlePrefix marks stub rows written for items that failed
// downstream. Rows carrying it are dropped on read so a reprocessing run
// never treats placeholders as real content.
const FailedTitlePrefix = "FAILED: "

var validate = validator.New(validator.WithRequiredStructEnabled())

// ReadItems decodes one item per line, skipping failure stubs. A malformed
// or invalid line fails the whole read, partial batches are worse than a
// loud error.
func ReadItems(r io.Reader) ([]domain.Item, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var items []domain.Item
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var it domain.Item
		if err := json.Unmarshal([]byte(raw), &it); err != nil {
			return nil, perr.Parsef("line %d: %v", line, err)
		}
		if strings.HasPrefix(it.Title, FailedTitlePrefix) {
			continue
		}
		if err := validate.Struct(it); err != nil {
			return nil, perr.Validationf("line %d: %v", line, err)
		}
		items = append(items, it)
	}
	if err := sc.Err(); err != nil {
		return nil, perr.Parsef("scan: %v", err)
	}
	return items, nil
}

// ReadFile reads a batch file from disk
func ReadFile(path string) ([]domain.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "open %s", path)
	}
	defer func() { _ = f.Close() }()
	return ReadItems(f)
}

// WriteItems encodes items one JSON object per line
func WriteItems(w io.Writer, items []domain.Item) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return perr.Parsef("encode %s: %v", it.URL, err)
		}
	}
	return bw.Flush()
}

// WriteFile writes a batch file, plus a companion failures file when any
// failure stubs are supplied. The failures path swaps the extension for
// -failures.jsonl.
func WriteFile(path string, items, failures []domain.Item) error {
	if err := writeAll(path, items); err != nil {
		return err
	}
	if len(failures) == 0 {
		return nil
	}
	stubs := make([]domain.Item, len(failures))
	for i, it := range failures {
		if !strings.HasPrefix(it.Title, FailedTitlePrefix) {
			it.Title = FailedTitlePrefix + it.Title
		}
		stubs[i] = it
	}
	return writeAll(FailuresPath(path), stubs)
}

// FailuresPath derives the companion failures file path
func FailuresPath(path string) string {
	if i := strings.LastIndex(path, "."); i > strings.LastIndexByte(path, '/') {
		path = path[:i]
	}
	return path + "-failures.jsonl"
}

func writeAll(path string, items []domain.Item) error {
	f, err := os.Create(path)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeValidation, "create %s", path)
	}
	if err := WriteItems(f, items); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
