package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cast"

	"github.com/c360studio/taskhub/storage"
)

// maxRequestBodySize limits JSON bodies.
const maxRequestBodySize = 10 << 20 // 10 MB

// errBadRequest marks decoding failures reported to the client verbatim.
var errBadRequest = errors.New(msgInvalidBody)

// decodeJSON reads a bounded JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: body exceeds %d bytes", errBadRequest, maxErr.Limit)
	}
	return fmt.Errorf("%w: %v", errBadRequest, err)
}

// Date accepts the loose date formats clients send ("2025-03-01",
// "03/01/2025", RFC 3339, unix seconds) and is encoded as RFC 3339.
// Set records that the field was present, so null or "" clears a date.
type Date struct {
	time.Time
	Set bool
}

// UnmarshalJSON parses strings with dateparse and numbers as unix seconds.
// null and "" decode to the zero date.
func (d *Date) UnmarshalJSON(b []byte) error {
	d.Set = true
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		d.Time = time.Time{}
		return nil
	}
	if !strings.HasPrefix(s, `"`) {
		secs, err := cast.ToInt64E(s)
		if err != nil {
			return fmt.Errorf("invalid date %s", s)
		}
		d.Time = time.Unix(secs, 0).UTC()
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", raw, err)
	}
	d.Time = t.UTC()
	return nil
}

// Ptr returns nil for the zero date.
func (d *Date) Ptr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

// pageParams reads ?page= and ?limit=. Malformed values fall back to defaults.
func pageParams(r *http.Request, defaultLimit int) storage.Page {
	q := r.URL.Query()
	return storage.Page{
		Page:  cast.ToInt(q.Get("page")),
		Limit: cast.ToInt(q.Get("limit")),
	}.Normalize(defaultLimit)
}

// boolParam reads a boolean query flag ("true", "1").
func boolParam(r *http.Request, name string) bool {
	return cast.ToBool(r.URL.Query().Get(name))
}
