package activity

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Format is an export encoding.
type Format string

const (
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
	FormatCSV    Format = "csv"
)

// ParseFormat maps a query value to a Format, defaulting to JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatNDJSON:
		return FormatNDJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatNDJSON:
		return "application/x-ndjson"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	default:
		return "application/json; charset=utf-8"
	}
}

// Encode serializes views in the requested format.
func Encode(f Format, views []View) ([]byte, error) {
	switch f {
	case FormatJSON:
		if views == nil {
			views = []View{}
		}
		return json.Marshal(views)
	case FormatNDJSON:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for i := range views {
			if err := enc.Encode(&views[i]); err != nil {
				return nil, fmt.Errorf("encode entry %d: %w", views[i].ID, err)
			}
		}
		return buf.Bytes(), nil
	case FormatCSV:
		return encodeCSV(views)
	default:
		return nil, fmt.Errorf("unsupported export format %q", f)
	}
}

func encodeCSV(views []View) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"id", "userId", "email", "role", "organization", "activity", "timestamp"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, v := range views {
		row := []string{
			strconv.FormatInt(v.ID, 10),
			strconv.FormatInt(v.UserID, 10),
			v.Email,
			v.Role,
			v.Organization,
			v.Activity,
			v.Timestamp.UTC().Format(time.RFC3339Nano),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", v.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
