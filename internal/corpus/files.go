package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/indexer/index"
)

// Source produces a complete corpus snapshot.
type Source interface {
	Load(ctx context.Context) (*Corpus, error)
	Name() string
}

// FileSource reads every *.json file in Dir, in file-name order. A blob with
// a "programs" array contributes one document per program; any other blob
// becomes a single document named after the file, holding the blob's JSON.
type FileSource struct {
	Dir    string
	logger *slog.Logger
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{
		Dir:    dir,
		logger: slog.Default().With("component", "corpus-files", "dir", dir),
	}
}

func (s *FileSource) Name() string {
	return "files"
}

func (s *FileSource) Load(ctx context.Context) (*Corpus, error) {
	paths, err := filepath.Glob(filepath.Join(s.Dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing corpus files in %s: %w", s.Dir, err)
	}
	sort.Strings(paths)

	docs := make([]index.Document, 0, len(paths))
	programs := make([]Program, 0)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading corpus file %s: %w", path, err)
		}
		fileDocs, filePrograms, err := parseBlob(strings.TrimSuffix(filepath.Base(path), ".json"), data)
		if err != nil {
			return nil, fmt.Errorf("parsing corpus file %s: %w", path, err)
		}
		docs = append(docs, fileDocs...)
		programs = append(programs, filePrograms...)
		s.logger.Debug("corpus file loaded",
			"file", filepath.Base(path),
			"documents", len(fileDocs),
			"programs", len(filePrograms),
		)
	}
	s.logger.Info("corpus loaded",
		"files", len(paths),
		"documents", len(docs),
		"programs", len(programs),
	)
	return &Corpus{Documents: docs, Catalog: NewCatalog(programs)}, nil
}

// parseBlob turns one JSON file into documents. stem is the file name without
// its .json extension.
func parseBlob(stem string, data []byte) ([]index.Document, []Program, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err == nil {
		if raw, ok := probe["programs"]; ok {
			var programs []Program
			if err := json.Unmarshal(raw, &programs); err != nil {
				return nil, nil, fmt.Errorf("decoding programs: %w", err)
			}
			docs := make([]index.Document, 0, len(programs))
			for i, p := range programs {
				if p.Slug == "" {
					return nil, nil, fmt.Errorf("program %d has no slug", i)
				}
				docs = append(docs, p.Document())
			}
			return docs, programs, nil
		}
	}

	text, err := fallbackText(data)
	if err != nil {
		return nil, nil, err
	}
	return []index.Document{{ID: stem, Text: text}}, nil, nil
}

// fallbackText re-serialises an arbitrary JSON value with escapes decoded, so
// that Cyrillic written as \uXXXX still yields searchable terms.
func fallbackText(data []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var blob any
	if err := dec.Decode(&blob); err != nil {
		return "", fmt.Errorf("decoding json: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(blob); err != nil {
		return "", fmt.Errorf("encoding json: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
