package application

import "github.com/wms-platform/qrbatch-service/internal/domain"

// ToBatchDTO converts a domain Batch to BatchDTO
func ToBatchDTO(b *domain.Batch) *BatchDTO {
	if b == nil {
		return nil
	}
	return &BatchDTO{
		ID:                   b.ID,
		OrderID:              b.OrderID,
		VariantID:            b.VariantID,
		Status:               string(b.Status),
		PackingStatus:        string(b.PackingStatus),
		Quantity:             b.Quantity,
		BufferPercentage:     b.BufferPercentage,
		UnitsPerCase:         b.UnitsPerCase,
		TotalMasterCodes:     b.TotalMasterCodes,
		TotalUniqueCodes:     b.TotalUniqueCodes,
		QRInsertedCount:      b.QRInsertedCount,
		MasterInsertedCount:  b.MasterInsertedCount,
		GeneratedFile:        b.GeneratedFile,
		ErrorMessage:         b.ErrorMessage,
		PackingError:         b.PackingError,
		Attempts:             b.Attempts,
		ProcessingStartedAt:  b.ProcessingStartedAt,
		ProcessingFinishedAt: b.ProcessingFinishedAt,
		PrintedAt:            b.PrintedAt,
		CompletedAt:          b.CompletedAt,
		CreatedBy:            b.CreatedBy,
		CreatedAt:            b.CreatedAt,
		UpdatedAt:            b.UpdatedAt,
	}
}

// ToProgressDTO converts a domain Progress to ProgressDTO
func ToProgressDTO(p domain.Progress) *ProgressDTO {
	return &ProgressDTO{
		TotalMasterCodes:         p.TotalMasterCodes,
		PackedMasterCodes:        p.PackedMasterCodes,
		TotalUniqueCodes:         p.TotalUniqueCodes,
		PackedUniqueCodes:        p.PackedUniqueCodes,
		MasterProgressPercentage: p.MasterProgressPercentage,
		UniqueProgressPercentage: p.UniqueProgressPercentage,
		Status:                   string(p.Status),
		PackingStatus:            string(p.PackingStatus),
		QRInsertedCount:          p.QRInsertedCount,
	}
}

// ToCodeMovementDTOs converts audit rows
func ToCodeMovementDTOs(movements []domain.CodeMovement) []CodeMovementDTO {
	out := make([]CodeMovementDTO, 0, len(movements))
	for _, m := range movements {
		out = append(out, CodeMovementDTO{
			ID:         m.ID,
			CodeKind:   string(m.CodeKind),
			FromStatus: string(m.FromStatus),
			ToStatus:   string(m.ToStatus),
			Count:      m.Count,
			Actor:      m.Actor,
			Reason:     m.Reason,
			OccurredAt: m.OccurredAt,
		})
	}
	return out
}

func histogramDTO(h domain.StatusHistogram) map[string]int64 {
	out := make(map[string]int64, len(h))
	for status, n := range h {
		out[string(status)] = n
	}
	return out
}

// ToValidationReportDTO converts a validation report
func ToValidationReportDTO(r *domain.ValidationReport) *ValidationReportDTO {
	if r == nil {
		return nil
	}
	violations := r.Violations
	if violations == nil {
		violations = []string{}
	}
	return &ValidationReportDTO{
		ID:          r.ID,
		BatchID:     r.BatchID,
		BatchStatus: string(r.BatchStatus),
		Master:      histogramDTO(r.Master),
		Unique:      histogramDTO(r.Unique),
		Violations:  violations,
		Valid:       r.Valid,
		CreatedAt:   r.CreatedAt,
	}
}

// ToJobStatusDTO converts a domain ReverseJob to JobStatusDTO
func ToJobStatusDTO(j *domain.ReverseJob) *JobStatusDTO {
	if j == nil {
		return nil
	}
	return &JobStatusDTO{
		JobID:         j.ID,
		BatchID:       j.BatchID,
		OrderID:       j.OrderID,
		Status:        string(j.Status),
		Progress:      j.Progress,
		PreparedCount: j.PreparedCount,
		ResultSummary: j.ResultSummary,
		ErrorMessage:  j.ErrorMessage,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}

// ToReverseJobLogDTOs converts log lines
func ToReverseJobLogDTOs(entries []domain.ReverseJobLog) []ReverseJobLogDTO {
	out := make([]ReverseJobLogDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, ReverseJobLogDTO{
			Level:     string(e.Level),
			Message:   e.Message,
			Data:      e.Data,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}

// ToPreparedCodeDTOs converts prepared codes
func ToPreparedCodeDTOs(codes []domain.PreparedCode) []PreparedCodeDTO {
	out := make([]PreparedCodeDTO, 0, len(codes))
	for _, c := range codes {
		out = append(out, PreparedCodeDTO{
			Code:       c.Code,
			Sequence:   c.Sequence,
			CaseNumber: c.CaseNumber,
			VariantID:  c.VariantID,
			PreparedAt: c.PreparedAt,
		})
	}
	return out
}
