package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/BattermanZ/StaleFlix/internal/backend"
	"github.com/BattermanZ/StaleFlix/internal/database"
	"github.com/BattermanZ/StaleFlix/internal/sorting"
	"github.com/BattermanZ/StaleFlix/internal/store"
)

type column struct {
	Key   sorting.Key
	Label string
}

var columns = []column{
	{sorting.KeyTitle, "Title"},
	{sorting.KeyOriginalTitle, "Original title"},
	{sorting.KeyCategory, "Type"},
	{sorting.KeyAddedAt, "Added"},
	{sorting.KeyRequester, "Requester"},
	{sorting.KeySize, "Size"},
	{sorting.KeyTotalEpisodes, "Episodes"},
	{sorting.KeyRequesterWatched, "Watched by requester"},
}

// notice is a one-shot message carried through a redirect.
type notice struct {
	Text  string
	Error bool
}

func noticeFrom(r *http.Request) *notice {
	q := r.URL.Query()
	text := q.Get("notice")
	if text == "" {
		return nil
	}
	return &notice{Text: text, Error: q.Get("level") == "error"}
}

func redirectWithNotice(w http.ResponseWriter, r *http.Request, path, text string, isErr bool) {
	v := url.Values{}
	v.Set("notice", text)
	if isErr {
		v.Set("level", "error")
	}
	http.Redirect(w, r, path+"?"+v.Encode(), http.StatusSeeOther)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	v := s.deps.Session.View()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"loaded":    v.Loaded,
		"busy":      v.Busy,
		"timestamp": v.Timestamp,
		"records":   len(v.Rows),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, "index.html", http.StatusOK, map[string]any{
		"View":    s.deps.Session.View(),
		"Columns": columns,
		"Notice":  noticeFrom(r),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Session.Refresh(r.Context(), true)
	s.metrics.refreshes.WithLabelValues(refreshResult(err)).Inc()

	if wantsJSON(r) {
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"timestamp": snap.Timestamp, "records": len(snap.Content)})
		return
	}

	switch {
	case errors.Is(err, store.ErrRefreshInProgress):
		redirectWithNotice(w, r, "/", "A refresh is already running", true)
	case err != nil:
		redirectWithNotice(w, r, "/", "Refresh failed: "+err.Error(), true)
	default:
		redirectWithNotice(w, r, "/", fmt.Sprintf("Loaded %d stale items", len(snap.Content)), false)
	}
}

func refreshResult(err error) string {
	if errors.Is(err, store.ErrRefreshInProgress) {
		return "busy"
	}
	return result(err)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.deps.Session.Toggle(id)
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "selected": s.deps.Session.View().Selected[id]})
		return
	}
	http.Redirect(w, r, "/#row-"+url.PathEscape(id), http.StatusSeeOther)
}

func (s *Server) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	checked := r.FormValue("checked") == "true"
	s.deps.Session.SelectAll(checked)
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{"selected": len(s.deps.Session.SelectedIDs())})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	key, ok := sorting.ParseKey(chi.URLParam(r, "key"))
	if !ok {
		s.fail(w, r, fmt.Errorf("%w: unknown sort key %q", errBadRequest, chi.URLParam(r, "key")))
		return
	}
	s.deps.Session.SortBy(key)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ids := s.deps.Session.SelectedIDs()
	msg, err := s.deps.Backend.SubmitSelection(r.Context(), ids)
	s.logSubmission(database.KindSelection, ids, msg, err)
	s.respondSubmit(w, r, msg, err)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	records := s.deps.Session.SelectedRecords()
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	msg, err := s.deps.Backend.PushToDeliveryQueue(r.Context(), records)
	s.logSubmission(database.KindDeliveryQueue, ids, msg, err)
	s.respondSubmit(w, r, msg, err)
}

func (s *Server) logSubmission(kind string, ids []string, msg string, err error) {
	s.metrics.submissions.WithLabelValues(kind, result(err)).Inc()
	if s.deps.DB == nil {
		return
	}
	note := msg
	if err != nil {
		note = err.Error()
	}
	if _, dbErr := s.deps.DB.LogSubmission(kind, ids, err == nil, note); dbErr != nil {
		log.Printf("Warning: could not log %s submission: %v", kind, dbErr)
	}
}

func (s *Server) respondSubmit(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if wantsJSON(r) {
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": msg})
		return
	}
	if err != nil {
		var se *backend.SubmitError
		if errors.As(err, &se) {
			redirectWithNotice(w, r, "/", "Submission failed: "+se.Error(), true)
			return
		}
		redirectWithNotice(w, r, "/", "Submission failed", true)
		return
	}
	if msg == "" {
		msg = "Submitted"
	}
	redirectWithNotice(w, r, "/", msg, false)
}

func (s *Server) handleNewsletter(w http.ResponseWriter, r *http.Request) {
	draft := s.deps.Session.Draft("")
	doc, err := s.deps.Pipeline.Compose("", draft.Records)
	data := map[string]any{
		"Records": draft.Records,
		"Stats":   s.deps.Session.View().Stats,
		"Notice":  noticeFrom(r),
	}
	if err == nil {
		movies, shows := doc.Counts()
		data["Movies"], data["Shows"] = movies, shows
		data["Filename"] = doc.Filename(s.deps.FilenamePrefix)
	} else {
		data["ComposeError"] = err.Error()
	}
	s.render(w, "newsletter.html", http.StatusOK, data)
}

func formMessage(r *http.Request) string {
	return strings.TrimSpace(r.FormValue("message"))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	draft := s.deps.Session.Draft(formMessage(r))
	out, err := s.deps.Pipeline.Preview(draft.Message, draft.Records)
	s.metrics.newsletters.WithLabelValues("preview", result(err)).Inc()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(out))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	draft := s.deps.Session.Draft(formMessage(r))
	res := s.deps.Pipeline.Run(r.Context(), draft.Message, draft.Records, false)
	if res.HTML == "" {
		err := res.Err()
		s.metrics.newsletters.WithLabelValues("download", "error").Inc()
		s.fail(w, r, err)
		return
	}
	s.metrics.newsletters.WithLabelValues("download", "ok").Inc()
	if err := res.Err(); err != nil {
		log.Printf("Newsletter generated but not archived: %v", err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Document.Filename(s.deps.FilenamePrefix)))
	_, _ = w.Write([]byte(res.HTML))
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	draft := s.deps.Session.Draft(formMessage(r))
	res := s.deps.Pipeline.Run(r.Context(), draft.Message, draft.Records, true)
	err := res.Err()
	s.metrics.newsletters.WithLabelValues("send", result(err)).Inc()

	if res.HTML == "" {
		s.fail(w, r, err)
		return
	}

	var lines []string
	for _, step := range res.Steps {
		if step.Err != nil {
			lines = append(lines, step.Name+": "+step.Err.Error())
		} else if strings.HasPrefix(step.Name, "Deliver") {
			lines = append(lines, step.Name+": "+step.Summary)
		}
	}
	text := strings.Join(lines, "; ")
	if text == "" {
		text = "Newsletter generated"
	}

	if wantsJSON(r) {
		resp := map[string]any{"message": text, "ok": err == nil}
		if res.Issue != nil {
			resp["issue"] = res.Issue.PublicID
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}
	if res.Issue != nil {
		redirectWithNotice(w, r, "/issues/"+res.Issue.PublicID, text, err != nil)
		return
	}
	redirectWithNotice(w, r, "/newsletter", text, err != nil)
}

func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"Notice": noticeFrom(r)}
	if s.deps.DB != nil {
		issues, err := s.deps.DB.GetAllIssues()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		subs, err := s.deps.DB.GetRecentSubmissions(20)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		data["Issues"], data["Submissions"] = issues, subs
	}
	s.render(w, "issues.html", http.StatusOK, data)
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB == nil {
		s.fail(w, r, errNotFound)
		return
	}
	issue, err := s.deps.DB.GetIssue(chi.URLParam(r, "publicID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if issue == nil {
		s.fail(w, r, errNotFound)
		return
	}

	if r.URL.Query().Get("format") == "html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(issue.HTML))
		return
	}

	deliveries, err := s.deps.DB.GetDeliveries(issue.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.render(w, "issue.html", http.StatusOK, map[string]any{
		"Issue":      issue,
		"Deliveries": deliveries,
		"Notice":     noticeFrom(r),
	})
}
