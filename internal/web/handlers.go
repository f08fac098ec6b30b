package web

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/JonMunkholm/nlq/internal/chain"
	"github.com/JonMunkholm/nlq/internal/session"
	"github.com/JonMunkholm/nlq/internal/shaper"
)

// SampleQuestions are offered on the page as starting points.
var SampleQuestions = map[string][]string{
	"Simple": {
		"How many artists are there in the collection?",
		"How many pieces of artwork are there?",
		"How many artists are there whose nationality is Italian?",
		"How many artworks are by the artist Claude Monet?",
		"How many artworks are classified as paintings?",
		"How many artworks were created by Spanish artists?",
		"How many artist names start with the letter 'M'?",
	},
	"Moderate": {
		"How many artists are deceased as a percentage of all artists?",
		"Who is the most prolific artist? What is their nationality?",
		"What nationality of artists created the most artworks?",
		"What is the ratio of male to female artists? Return as a ratio.",
	},
	"Complex": {
		"How many artworks were produced during the First World War, which are classified as paintings?",
		"What are the five oldest pieces of artwork? Return the title and date for each.",
		"What are the 10 most prolific artists? Return their name and count of artwork.",
		"Return the artwork for Frida Kahlo in a numbered list, including the title and date.",
		"What is the count of artworks by classification? Return the first ten in descending order. Don't include Not_Assigned.",
	},
	"Unrelated to the Dataset": {
		"Give me a recipe for chocolate cake.",
		"Who won the 2022 FIFA World Cup final?",
	},
}

var sampleGroups = []string{"Simple", "Moderate", "Complex", "Unrelated to the Dataset"}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Entry   session.Entry `json:"entry"`
	History int           `json:"history"`
	Error   string        `json:"error,omitempty"`
}

// Details is the latest answered question broken down for inspection. Failed
// questions only expose the question itself.
type Details struct {
	Backend    string         `json:"backend"`
	Model      string         `json:"model"`
	Entry      *session.Entry `json:"entry,omitempty"`
	Columns    []string       `json:"columns,omitempty"`
	Rows       [][]string     `json:"rows,omitempty"`
	Chart      []shaper.Point `json:"chart,omitempty"`
	ParseError string         `json:"parse_error,omitempty"`
}

type sampleGroup struct {
	Name      string
	Questions []string
}

type pageData struct {
	History []session.Entry
	Details Details
	Samples []sampleGroup
	MaxLen  int
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.readSession(r)

	samples := make([]sampleGroup, 0, len(sampleGroups))
	for _, name := range sampleGroups {
		samples = append(samples, sampleGroup{Name: name, Questions: SampleQuestions[name]})
	}

	data := pageData{
		History: newestFirst(sess.Entries()),
		Details: s.details(sess),
		Samples: samples,
		MaxLen:  maxQuestionLen,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, data); err != nil {
		s.logger.Error().Err(err).Msg("render index")
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func (s *Server) handleAskForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	question := r.PostForm.Get("question")
	if strings.TrimSpace(question) != "" && len(question) <= maxQuestionLen {
		s.writeSession(w, r).Ask(r.Context(), s.invoker, question)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleClearForm(w http.ResponseWriter, r *http.Request) {
	s.readSession(r).Clear()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, askResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		respondJSON(w, http.StatusBadRequest, askResponse{Error: "question is required"})
		return
	}
	if len(req.Question) > maxQuestionLen {
		respondJSON(w, http.StatusBadRequest, askResponse{Error: fmt.Sprintf("question exceeds %d bytes", maxQuestionLen)})
		return
	}

	sess := s.writeSession(w, r)
	out, _ := sess.Ask(r.Context(), s.invoker, req.Question)
	entry := session.Entry{Question: req.Question, Record: out.Record}
	respondJSON(w, http.StatusOK, askResponse{Entry: entry, History: sess.Len()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess := s.readSession(r)
	respondJSON(w, http.StatusOK, map[string]any{
		"session": sess.ID,
		"entries": sess.Entries(),
	})
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.details(s.readSession(r)))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.readSession(r).Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) details(sess *session.Session) Details {
	d := Details{Backend: s.info.Backend, Model: s.info.Model}
	entry, ok := sess.Latest()
	if !ok {
		return d
	}
	d.Entry = &entry
	if entry.Record.Sentinel {
		return d
	}

	table, err := shaper.Parse(entry.Record.Result)
	if err != nil {
		d.ParseError = "The result could not be displayed as a table."
		s.logger.Warn().Err(err).Str("session", sess.ID).Msg("result not tabular")
		return d
	}
	d.Columns = columnNames(entry.Record.Columns, table.Columns())
	d.Rows = textRows(table)
	if points, ok := table.SortedByMetric(); ok {
		d.Chart = points
	}
	return d
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	sess := s.readSession(r)
	entry, ok := sess.Latest()
	if !ok || entry.Record.Sentinel {
		http.Error(w, "no result to export", http.StatusNotFound)
		return
	}
	table, err := shaper.Parse(entry.Record.Result)
	if err != nil {
		http.Error(w, "result is not tabular", http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=export.csv")

	csvWriter := csv.NewWriter(w)
	defer csvWriter.Flush()

	if err := csvWriter.Write(columnNames(entry.Record.Columns, table.Columns())); err != nil {
		return
	}
	for _, row := range textRows(table) {
		if err := csvWriter.Write(row); err != nil {
			return
		}
	}
}

type schemaResponse struct {
	Tables      any    `json:"tables"`
	TableCount  int    `json:"tableCount"`
	LastRefresh string `json:"lastRefresh"`
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	if s.schema == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "schema not loaded"})
		return
	}
	respondJSON(w, http.StatusOK, schemaResponse{
		Tables:      s.schema.GetTables(),
		TableCount:  s.schema.TableCount(),
		LastRefresh: s.schema.GetLastRefresh().Format(time.RFC3339),
	})
}

func (s *Server) handleSchemaRefresh(w http.ResponseWriter, r *http.Request) {
	if s.schema == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "schema not loaded"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), schemaTimeout)
	defer cancel()

	if err := s.schema.Refresh(ctx); err != nil {
		s.logger.Error().Err(err).Msg("refresh schema")
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "schema refresh failed"})
		return
	}
	s.handleSchema(w, r)
}

func newestFirst(entries []session.Entry) []session.Entry {
	out := make([]session.Entry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out
}

// columnNames returns the query's column names when they line up with the
// parsed rows, and positional names otherwise.
func columnNames(names []string, width int) []string {
	if len(names) == width {
		return names
	}
	out := make([]string, width)
	for i := range out {
		out[i] = fmt.Sprintf("column_%d", i+1)
	}
	return out
}

func textRows(t shaper.Table) [][]string {
	width := t.Columns()
	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		cells := make([]string, width)
		for j, v := range row {
			cells[j] = shaper.Text(v)
		}
		rows[i] = cells
	}
	return rows
}

// percent scales metric against the largest metric in points for bar widths.
func percent(metric float64, points []shaper.Point) float64 {
	var top float64
	for _, p := range points {
		if p.Metric > top {
			top = p.Metric
		}
	}
	if top <= 0 || metric <= 0 {
		return 0
	}
	return metric / top * 100
}

var _ session.Invoker = (*chain.Executor)(nil)
