package dashboard

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/biogas-cli/internal/model"
	"github.com/sells-group/biogas-cli/internal/report"
)

// ReportRequest asks for a report on a stage.
type ReportRequest struct {
	// StageID defaults to the active stage.
	StageID      string           `json:"stage_id,omitempty"`
	Type         model.ReportType `json:"report_type,omitempty"`
	Observations string           `json:"observations,omitempty" validate:"max=4000"`
	// Inferences replaces the generated narrative when set.
	Inferences string `json:"inferences,omitempty" validate:"max=4000"`
}

// ReportResult is a created or regenerated report.
type ReportResult struct {
	Report      *model.Report `json:"report"`
	StageActive bool          `json:"stage_active"`
}

// CreateReport compares the stage's production, stores a report, writes the
// xlsx and CSV files and, for a final report, closes the stage.
func (s *Service) CreateReport(ctx context.Context, req ReportRequest) (*ReportResult, error) {
	if req.Type == "" {
		req.Type = model.ReportNormal
	}
	if !req.Type.Valid() {
		return nil, eris.Wrapf(ErrInvalidReportType, "dashboard: report type %q", req.Type)
	}

	stage, err := s.reportStage(ctx, req.StageID)
	if err != nil {
		return nil, err
	}
	prod, err := s.stageProduction(ctx, stage, s.stageEnd(stage))
	if err != nil {
		return nil, err
	}

	sum := prod.Comparison.Summary
	rep := &model.Report{
		StageID:             stage.ID,
		Type:                req.Type,
		Observations:        req.Observations,
		Inferences:          req.Inferences,
		ProductionEstimated: sum.ProductionEstimated,
		ProductionReal:      sum.ProductionReal,
	}
	if rep.Inferences == "" {
		rep.Inferences = sum.Narrative
	}
	if err := s.store.CreateReport(ctx, rep); err != nil {
		return nil, eris.Wrap(err, "dashboard: create report")
	}
	if err := s.render(ctx, rep, stage, prod); err != nil {
		return nil, err
	}

	if rep.Type == model.ReportFinal && stage.Active {
		if err := s.store.CloseStage(ctx, stage.ID); err != nil {
			return nil, eris.Wrapf(err, "dashboard: close stage %s", stage.ID)
		}
		stage.Active = false
	}

	zap.L().Info("dashboard: report created",
		zap.String("id", rep.ID),
		zap.String("type", string(rep.Type)),
		zap.String("stage_id", stage.ID),
		zap.Float64("estimated_m3", rep.ProductionEstimated),
		zap.Float64("real_m3", rep.ProductionReal),
	)
	return &ReportResult{Report: rep, StageActive: stage.Active}, nil
}

// RegenerateReport recomputes the totals of an existing report and rewrites
// its files. Stored inferences and observations are kept; empty inferences
// get the fresh narrative.
func (s *Service) RegenerateReport(ctx context.Context, id string) (*ReportResult, error) {
	rep, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "dashboard: get report %s", id)
	}
	stage, err := s.store.GetStage(ctx, rep.StageID)
	if err != nil {
		return nil, eris.Wrapf(err, "dashboard: get stage %s", rep.StageID)
	}
	prod, err := s.stageProduction(ctx, stage, s.stageEnd(stage))
	if err != nil {
		return nil, err
	}

	sum := prod.Comparison.Summary
	rep.ProductionEstimated = sum.ProductionEstimated
	rep.ProductionReal = sum.ProductionReal
	if rep.Inferences == "" {
		rep.Inferences = sum.Narrative
	}
	if err := s.render(ctx, rep, stage, prod); err != nil {
		return nil, err
	}
	return &ReportResult{Report: rep, StageActive: stage.Active}, nil
}

func (s *Service) reportStage(ctx context.Context, stageID string) (*model.Stage, error) {
	if stageID == "" {
		return s.activeStage(ctx)
	}
	stage, err := s.store.GetStage(ctx, stageID)
	if err != nil {
		return nil, eris.Wrapf(err, "dashboard: get stage %s", stageID)
	}
	return stage, nil
}

// render writes the report files and stores their paths on rep.
func (s *Service) render(ctx context.Context, rep *model.Report, stage *model.Stage, prod *Production) error {
	files, err := s.writer.Write(report.Document{
		SystemName: s.opts.SystemName,
		Report:     *rep,
		Stage:      *stage,
		Comparison: prod.Comparison,
	})
	if err != nil {
		return eris.Wrapf(err, "dashboard: write report %s", rep.ID)
	}
	rep.ExcelPath = files.Excel
	rep.CSVPath = files.CSV
	if err := s.store.UpdateReport(ctx, rep); err != nil {
		return eris.Wrapf(err, "dashboard: update report %s", rep.ID)
	}
	return nil
}

// ListReports returns reports newest first.
func (s *Service) ListReports(ctx context.Context, limit int) ([]model.Report, error) {
	return s.store.ListReports(ctx, limit)
}

// File types served by ReportFile.
const (
	FileExcel = "excel"
	FileCSV   = "csv"
)

// ReportFile returns the path and content type of one of a report's files.
func (s *Service) ReportFile(ctx context.Context, id, fileType string) (path, contentType string, err error) {
	rep, err := s.store.GetReport(ctx, id)
	if err != nil {
		return "", "", eris.Wrapf(err, "dashboard: get report %s", id)
	}
	switch fileType {
	case FileExcel:
		path, contentType = rep.ExcelPath, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FileCSV:
		path, contentType = rep.CSVPath, "text/csv"
	default:
		return "", "", eris.Wrapf(ErrFileUnavailable, "dashboard: unknown file type %q", fileType)
	}
	if path == "" {
		return "", "", eris.Wrapf(ErrFileUnavailable, "dashboard: report %s has no %s file", id, fileType)
	}
	return path, contentType, nil
}
