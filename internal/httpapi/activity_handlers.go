package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/maulvi-zm/trackure/internal/activity"
)

// handleListActivity serves the whole trail, or one page of it when limit or
// after is given.
func (a *API) handleListActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("limit") == "" && q.Get("after") == "" {
		views, err := a.deps.Query.ListAll(r.Context())
		if err != nil {
			a.handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
		return
	}

	page, err := parsePage(q.Get("limit"), q.Get("after"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	views, err := a.deps.Query.List(r.Context(), page)
	if err != nil {
		a.handleServiceError(w, r, err)
		return
	}
	if page.Limit > 0 && len(views) == page.Limit {
		w.Header().Set("X-Next-After", strconv.FormatInt(views[len(views)-1].ID, 10))
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) handleExportActivity(w http.ResponseWriter, r *http.Request) {
	format, err := activity.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	views, err := a.deps.Query.ListAll(r.Context())
	if err != nil {
		a.handleServiceError(w, r, err)
		return
	}
	body, err := activity.Encode(format, views)
	if err != nil {
		a.handleServiceError(w, r, err)
		return
	}
	name := fmt.Sprintf("activity-%s.%s", time.Now().UTC().Format("20060102T150405Z"), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func parsePage(limit, after string) (activity.Page, error) {
	p := activity.Page{Limit: activity.MaxPageSize}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return activity.Page{}, fmt.Errorf("invalid limit %q", limit)
		}
		p.Limit = n
	}
	if after != "" {
		n, err := strconv.ParseInt(after, 10, 64)
		if err != nil {
			return activity.Page{}, fmt.Errorf("invalid after %q", after)
		}
		p.AfterID = n
	}
	return p, nil
}

// handleActivityStream pushes newly written entries as Server-Sent Events
// until the client goes away.
func (a *API) handleActivityStream(w http.ResponseWriter, r *http.Request) {
	if a.deps.Feed == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	rc := http.NewResponseController(w)
	// The server write timeout would otherwise cut the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := a.deps.Feed.Subscribe(r.Context())

	_, _ = w.Write([]byte(": stream started\n\n"))
	if err := rc.Flush(); err != nil {
		return
	}
	for rec := range ch {
		payload, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", rec.ID, payload)
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
