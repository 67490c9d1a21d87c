package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildValidationReport(t *testing.T) {
	tests := []struct {
		name           string
		status         BatchStatus
		master         StatusHistogram
		unique         StatusHistogram
		wantValid      bool
		wantViolations int
	}{
		{
			name:      "Printed batch consistent",
			status:    BatchStatusPrinting,
			master:    StatusHistogram{CodeStatusPrinted: 10},
			unique:    StatusHistogram{CodeStatusPrinted: 60, CodeStatusPacked: 40},
			wantValid: true,
		},
		{
			name:           "Generated rows left after printing",
			status:         BatchStatusInProduction,
			master:         StatusHistogram{CodeStatusPrinted: 10},
			unique:         StatusHistogram{CodeStatusGenerated: 5, CodeStatusPacked: 95},
			wantViolations: 1,
		},
		{
			name:           "Missing rows on generated batch",
			status:         BatchStatusGenerated,
			master:         StatusHistogram{CodeStatusGenerated: 9},
			unique:         StatusHistogram{CodeStatusGenerated: 100},
			wantViolations: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBatch(t)
			b.Status = tt.status
			b.QRInsertedCount = b.TotalUniqueCodes
			b.MasterInsertedCount = b.TotalMasterCodes

			report := BuildValidationReport(b, tt.master, tt.unique, "user-1", time.Now())
			assert.Equal(t, tt.wantValid, report.Valid)
			assert.Len(t, report.Violations, tt.wantViolations)
			assert.Equal(t, b.ID, report.BatchID)
		})
	}
}

func TestStatusHistogram(t *testing.T) {
	h := StatusHistogram{CodeStatusPrinted: 3, CodeStatusPacked: 2, CodeStatusOpened: 1}
	assert.Equal(t, int64(6), h.Total())
	assert.Equal(t, int64(3), h.PackedOrBeyond())
}
