package dashboard

import (
	"bytes"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/crm-dedupe/internal/export"
	"github.com/sells-group/crm-dedupe/internal/fetcher"
	"github.com/sells-group/crm-dedupe/internal/model"
	"github.com/sells-group/crm-dedupe/internal/pipeline"
	"github.com/sells-group/crm-dedupe/internal/store"
)

// defaultTopNames matches the size of the repeated-names report.
const defaultTopNames = 10

// multipartMemory is how much of an upload is buffered before spilling to disk.
const multipartMemory = 32 << 20

// upload fields and the source each one is tagged with.
var uploadFields = []struct {
	field  string
	source model.SourceType
}{
	{"leads", model.SourceLead},
	{"contacts", model.SourceContact},
	{"accounts", model.SourceAccount},
}

// runResponse describes a run and, when cached, what can be fetched for it.
type runResponse struct {
	Run                *model.Run `json:"run"`
	Available          bool       `json:"results_available"`
	Files              []string   `json:"files,omitempty"`
	UniqueAccountNames int        `json:"unique_account_names,omitempty"`
}

func (s *Server) describe(run *model.Run) runResponse {
	resp := runResponse{Run: run}
	if res, ok := s.results.get(run.ID); ok {
		resp.Available = true
		resp.Files = export.Files(res)
		resp.UniqueAccountNames = res.UniqueAccountNames()
	}
	return resp
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	loadStart := time.Now()
	in := pipeline.Input{
		SkipPeople:   formBool(r, "skip_people"),
		SkipAccounts: formBool(r, "skip_accounts"),
	}
	loaded := 0
	for _, u := range uploadFields {
		file, header, err := r.FormFile(u.field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid upload "+u.field)
			return
		}
		t, err := fetcher.ReadTable(ctx, file, header.Filename, u.source,
			fetcher.DetectFormat(header.Filename), fetcher.LoadOptions{Encoding: s.opts.Encoding})
		_ = file.Close()
		if err != nil {
			zap.L().Warn("dashboard: unreadable upload", zap.String("field", u.field), zap.Error(err))
			writeError(w, http.StatusBadRequest, u.field+": "+err.Error())
			return
		}

		switch u.source {
		case model.SourceLead:
			in.Leads = t
		case model.SourceContact:
			in.Contacts = t
		default:
			in.Accounts = t
		}
		loaded++
	}
	if loaded == 0 {
		writeError(w, http.StatusBadRequest, "upload at least one of leads, contacts, accounts")
		return
	}
	loadMs := time.Since(loadStart).Milliseconds()

	run, res, err := s.pipeline.Track(ctx, s.store, Origin, in, loadMs)
	if err != nil {
		if run == nil {
			writeError(w, http.StatusInternalServerError, "could not start run")
			return
		}
		if res != nil {
			// Pipeline succeeded but the store did not record completion.
			s.results.put(run.ID, res)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": err.Error(),
			"run":   run,
		})
		return
	}

	s.results.put(run.ID, res)
	writeJSON(w, http.StatusCreated, s.describe(run))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Status: model.RunStatus(q.Get("status")),
		Origin: q.Get("origin"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("dashboard: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.describe(run))
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*model.Run, bool) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return nil, false
	}
	if err != nil {
		zap.L().Error("dashboard: get run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load run")
		return nil, false
	}
	return run, true
}

// cachedResult resolves the in-memory result for the run in the URL.
func (s *Server) cachedResult(w http.ResponseWriter, r *http.Request) (*pipeline.Result, bool) {
	res, ok := s.results.get(chi.URLParam(r, "runID"))
	if !ok {
		writeError(w, http.StatusNotFound, "results are only kept for recent runs of this server")
		return nil, false
	}
	return res, true
}

// kindResult resolves the {kind} URL parameter against a result.
func kindResult(w http.ResponseWriter, r *http.Request, res *pipeline.Result) (model.EntityKind, *pipeline.KindResult, bool) {
	kind := model.EntityKind(chi.URLParam(r, "kind"))
	if kind != model.KindPeople && kind != model.KindAccounts {
		writeError(w, http.StatusNotFound, "kind must be people or accounts")
		return kind, nil, false
	}
	kr := res.Kind(kind)
	if kr == nil {
		writeError(w, http.StatusNotFound, "no "+string(kind)+" results for this run")
		return kind, nil, false
	}
	return kind, kr, true
}

// clusterView is one duplicate cluster with its member rows.
type clusterView struct {
	ID      int                 `json:"cluster_id"`
	Phase   model.MatchPhase    `json:"phase"`
	Label   string              `json:"label"`
	Size    int                 `json:"size"`
	Records []map[string]string `json:"records"`
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	res, ok := s.cachedResult(w, r)
	if !ok {
		return
	}
	kind, kr, ok := kindResult(w, r, res)
	if !ok {
		return
	}

	dupes := kr.Clusters.Duplicates()
	slices.SortFunc(dupes, func(a, b model.Cluster) int { return a.ID - b.ID })

	total := len(dupes)
	offset := min(queryInt(r, "offset", 0), total)
	end := total
	if limit := queryInt(r, "limit", 0); limit > 0 {
		end = min(offset+limit, total)
	}

	cols := kr.Dataset.Columns
	if !slices.Contains(cols, model.ColClusterID) {
		cols = append(slices.Clone(cols), model.ColClusterID)
	}
	views := make([]clusterView, 0, end-offset)
	for _, c := range dupes[offset:end] {
		members := kr.Members(c)
		rows := make([]map[string]string, len(members))
		for i, m := range members {
			row := m.Values(kr.Dataset.Columns)
			row[model.ColClusterID] = strconv.Itoa(c.ID)
			rows[i] = row
		}
		views = append(views, clusterView{
			ID:      c.ID,
			Phase:   c.Phase,
			Label:   clusterLabel(kind, c, members),
			Size:    c.Size(),
			Records: rows,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"kind":     kind,
		"total":    total,
		"columns":  cols,
		"clusters": views,
	})
}

// clusterLabel names a cluster after its first member.
func clusterLabel(kind model.EntityKind, c model.Cluster, members []model.NormalizedRecord) string {
	if len(members) == 0 {
		return "Cluster " + strconv.Itoa(c.ID)
	}
	first := members[0]
	var label string
	if kind == model.KindAccounts {
		label = first.AccountName
	} else {
		label = strings.TrimSpace(first.FirstName + " " + first.LastName)
	}
	if label == "" {
		return "Cluster " + strconv.Itoa(c.ID)
	}
	return label
}

func (s *Server) handleTopNames(w http.ResponseWriter, r *http.Request) {
	res, ok := s.cachedResult(w, r)
	if !ok {
		return
	}
	if model.EntityKind(chi.URLParam(r, "kind")) != model.KindAccounts {
		writeError(w, http.StatusNotFound, "top names are only reported for accounts")
		return
	}
	if res.AccountNames == nil {
		writeError(w, http.StatusNotFound, "no accounts loaded for this run")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records":      res.AccountNames.Rows,
		"unique_names": res.UniqueAccountNames(),
		"names":        res.TopAccountNames(queryInt(r, "limit", defaultTopNames)),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	res, ok := s.cachedResult(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "file")

	// Render into memory first so a failure can still produce a JSON error.
	var buf bytes.Buffer
	if err := export.WriteFile(&buf, res, name); err != nil {
		if errors.Is(err, export.ErrUnknownFile) {
			writeError(w, http.StatusNotFound, "file not available for this run: "+name)
			return
		}
		zap.L().Error("dashboard: render download", zap.String("file", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not render file")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func formBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.FormValue(key))
	return err == nil && v
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
