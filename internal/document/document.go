// Package document defines the source documents fed into the indexing
// pipeline and their content fingerprints used for change detection.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/ragpipe-dev/ragpipe/internal/errors"
)

// Metadata holds user-supplied document attributes.
// Values are normalized before indexing so that equality and range
// comparisons behave consistently: all numeric types become float64,
// timestamps become epoch seconds, and tag lists become []string.
type Metadata map[string]any

// Normalized returns a copy of the metadata with values coerced to the
// canonical types: string, float64, bool, or []string.
// Unsupported value types are stringified.
func (m Metadata) Normalized() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

// NormalizeValue coerces a single metadata value to its canonical type.
// Query filters use it so filter values compare against indexed values.
func NormalizeValue(v any) any {
	return normalizeValue(v)
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case string, float64, bool:
		return val
	case int:
		return float64(val)
	case int8:
		return float64(val)
	case int16:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint8:
		return float64(val)
	case uint16:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	case time.Time:
		return float64(val.Unix())
	case []string:
		tags := make([]string, len(val))
		copy(tags, val)
		return tags
	case []any:
		tags := make([]string, 0, len(val))
		for _, item := range val {
			tags = append(tags, fmt.Sprint(item))
		}
		return tags
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}

// Document is a unit of source content to be chunked, embedded, and indexed.
type Document struct {
	// ID uniquely identifies the document across builds.
	ID string
	// Text is the full document content.
	Text string
	// Metadata carries searchable document attributes.
	Metadata Metadata
}

// Validate checks that the document can be indexed.
func (d *Document) Validate() error {
	if d == nil {
		return errors.ValidationError("document is nil", nil)
	}
	if d.ID == "" {
		return errors.ValidationError("document id is empty", nil)
	}
	return nil
}

// Fingerprint returns a stable SHA256 hex digest of the document's text
// and metadata. Two documents with equal fingerprints are treated as
// unchanged by incremental builds.
func (d *Document) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(d.Text))

	meta := d.Metadata.Normalized()
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "|%s=%v", k, meta[k])
	}

	return hex.EncodeToString(h.Sum(nil))
}

// HashID returns a short stable identifier derived from s.
func HashID(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])[:16]
}
