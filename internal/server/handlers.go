package server

import (
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/biogas-cli/internal/dashboard"
	"github.com/sells-group/biogas-cli/internal/kinetics"
	"github.com/sells-group/biogas-cli/internal/model"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req kinetics.Request
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	res, err := s.svc.Simulate(req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req kinetics.CalcRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	res, err := s.svc.Calculate(req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleCurrentProduction(w http.ResponseWriter, r *http.Request) {
	prod, err := s.svc.CurrentProduction(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, prod)
}

func (s *Server) handleStageProduction(w http.ResponseWriter, r *http.Request) {
	prod, err := s.svc.StageProduction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, prod)
}

// stageRequest is the body of POST /stages. Zero number, empty people and
// empty date take the service defaults.
type stageRequest struct {
	Number       int     `json:"number" validate:"gte=0"`
	Date         string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
	People       string  `json:"people" validate:"max=500"`
	MaterialType string  `json:"material_type" validate:"required,max=100"`
	AmountKg     float64 `json:"material_amount_kg" validate:"gte=0"`
	HumidityPct  float64 `json:"material_humidity_pct" validate:"gte=0,lte=100"`
	AddedWaterM3 float64 `json:"added_water_m3" validate:"gte=0"`
	TemperatureC float64 `json:"temperature_c" validate:"gte=-50,lte=100"`
}

func (req stageRequest) stage() *model.Stage {
	st := &model.Stage{
		Number:       req.Number,
		People:       req.People,
		MaterialType: req.MaterialType,
		AmountKg:     req.AmountKg,
		HumidityPct:  req.HumidityPct,
		AddedWaterM3: req.AddedWaterM3,
		TemperatureC: req.TemperatureC,
	}
	if req.Date != "" {
		// Format already checked by the validator.
		st.Date, _ = time.Parse(time.DateOnly, req.Date)
	}
	return st
}

func (s *Server) handleCreateStage(w http.ResponseWriter, r *http.Request) {
	var req stageRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	st := req.stage()
	if err := s.svc.CreateStage(r.Context(), st); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, st)
}

func (s *Server) handleListStages(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	stages, err := s.svc.ListStages(r.Context(), limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"stages": stages})
}

func (s *Server) handleCloseCurrentStage(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.CloseCurrentStage(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	reports, err := s.svc.ListReports(r.Context(), limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"history": reports})
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var req dashboard.ReportRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	res, err := s.svc.CreateReport(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, reportResponse(res))
}

func (s *Server) handleRegenerateReport(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.RegenerateReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reportResponse(res))
}

// reportResponse adds download links to a report result.
func reportResponse(res *dashboard.ReportResult) map[string]any {
	base := "/api/v1/reports/" + res.Report.ID + "/download/"
	out := map[string]any{
		"report":       res.Report,
		"stage_active": res.StageActive,
	}
	if res.Report.ExcelPath != "" {
		out["excel_url"] = base + dashboard.FileExcel
	}
	if res.Report.CSVPath != "" {
		out["csv_url"] = base + dashboard.FileCSV
	}
	return out
}

func (s *Server) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	path, contentType, err := s.svc.ReportFile(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "filetype"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeFile(w, r, path)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	unresolved := r.URL.Query().Get("unresolved") != "false"
	alerts, err := s.svc.ListAlerts(r.Context(), unresolved, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ResolveAlert(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleIngestReading stores a sensor payload posted over HTTP. Payloads
// dropped for lack of an active stage are acknowledged with 202.
func (s *Server) handleIngestReading(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	res, err := s.ingest.Handle(r.Context(), "http", body)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Dropped != "" {
		status = http.StatusAccepted
	}
	respondJSON(w, status, res)
}
