// Package exporter writes a replica as a portable document and reads one
// back.
//
// The document is the dataset's own JSON shape with the deleted ids
// alongside:
//
//	{"apiaries":[...],"calendarEvents":[...],"seasonalNotes":[...],"deletedIds":[...]}
//
// YAML and TOML renderings carry the same keys. Older clients exported
// exactly this JSON, so the same reader imports their backups.
package exporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/hivelog/hivesync/internal/replica/schema"
	"github.com/hivelog/hivesync/internal/replica/tombstone"
)

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ParseFormat accepts a format name or common alias.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json", "":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported format %q (want json, yaml or toml)", s)
	}
}

// FormatFor picks the format from a file name's extension.
func FormatFor(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Document is an exported replica.
type Document struct {
	schema.Dataset
	DeletedIDs tombstone.Set `json:"deletedIds,omitempty"`
	Context    string        `json:"context,omitempty"`
	ExportedAt *time.Time    `json:"exportedAt,omitempty"`
}

// NewDocument builds a document from a replica snapshot.
func NewDocument(ds *schema.Dataset, tombs tombstone.Set, context string) *Document {
	now := time.Now().UTC().Truncate(time.Second)
	doc := &Document{DeletedIDs: tombs.Clone(), Context: context, ExportedAt: &now}
	if ds != nil {
		doc.Dataset = *ds.Clone()
	}
	return doc
}

// Encode writes doc to w in format.
func Encode(w io.Writer, doc *Document, format Format) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	if format == FormatJSON {
		_, err := w.Write(append(data, '\n'))
		return err
	}

	// YAML and TOML are rendered from the JSON form so every format shares
	// the same keys and value encodings.
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to convert document: %w", err)
	}
	normalized := normalize(tree)

	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(normalized); err != nil {
			return fmt.Errorf("failed to write yaml: %w", err)
		}
		return enc.Close()
	case FormatTOML:
		if err := toml.NewEncoder(w).Encode(normalized); err != nil {
			return fmt.Errorf("failed to write toml: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// Decode reads a document in format from r.
func Decode(r io.Reader, format Format) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	if format != FormatJSON {
		var tree map[string]any
		switch format {
		case FormatYAML:
			err = yaml.Unmarshal(data, &tree)
		case FormatTOML:
			err = toml.Unmarshal(data, &tree)
		default:
			return nil, fmt.Errorf("unsupported format %q", format)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid %s document: %w", format, err)
		}
		if data, err = json.Marshal(tree); err != nil {
			return nil, fmt.Errorf("failed to convert %s document: %w", format, err)
		}
	}

	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid document: %w", err)
	}
	if doc.DeletedIDs == nil {
		doc.DeletedIDs = tombstone.New()
	}
	return &doc, nil
}

// normalize turns integral JSON numbers back into integers, so years and
// counts do not render as 2024.0.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
		return t
	default:
		return v
	}
}
