package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanGeneration(t *testing.T) {
	tests := []struct {
		name         string
		quantity     int
		buffer       int
		unitsPerCase int
		wantUnique   int
		wantMaster   int
		expectError  error
	}{
		{name: "No buffer", quantity: 1000, buffer: 0, unitsPerCase: 10, wantUnique: 1000, wantMaster: 100},
		{name: "Buffer rounds up", quantity: 95, buffer: 5, unitsPerCase: 10, wantUnique: 100, wantMaster: 10},
		{name: "Short last case", quantity: 101, buffer: 0, unitsPerCase: 10, wantUnique: 101, wantMaster: 11},
		{name: "Zero quantity", quantity: 0, buffer: 0, unitsPerCase: 10, expectError: ErrInvalidQuantity},
		{name: "Buffer over 100", quantity: 10, buffer: 101, unitsPerCase: 10, expectError: ErrInvalidBuffer},
		{name: "Negative buffer", quantity: 10, buffer: -1, unitsPerCase: 10, expectError: ErrInvalidBuffer},
		{name: "Zero units per case", quantity: 10, buffer: 0, unitsPerCase: 0, expectError: ErrInvalidUnitsPerCase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := PlanGeneration(tt.quantity, tt.buffer, tt.unitsPerCase)
			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUnique, plan.TotalUniqueCodes)
			assert.Equal(t, tt.wantMaster, plan.TotalMasterCodes)
		})
	}
}

func TestCanAdvance(t *testing.T) {
	tests := []struct {
		from, to CodeStatus
		want     bool
	}{
		{CodeStatusGenerated, CodeStatusPrinted, true},
		{CodeStatusPrinted, CodeStatusPacked, true},
		{CodeStatusPacked, CodeStatusReadyToShip, true},
		{CodeStatusGenerated, CodeStatusCompleted, false},
		{CodeStatusGenerated, CodeStatusPacked, false},
		{CodeStatusPacked, CodeStatusPrinted, false},
		{CodeStatusPrinted, CodeStatusPrinted, false},
		{CodeStatus("bogus"), CodeStatusPrinted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanAdvance(tt.from, tt.to))
		})
	}
}

func TestCodeStatusClassification(t *testing.T) {
	assert.False(t, CodeStatusPrinted.IsPackedOrBeyond())
	assert.True(t, CodeStatusPacked.IsPackedOrBeyond())
	assert.True(t, CodeStatusOpened.IsPackedOrBeyond())

	assert.True(t, CodeStatusWarehousePacked.IsRelinkable())
	assert.False(t, CodeStatusReadyToShip.IsRelinkable())
	assert.False(t, CodeStatus("").IsRelinkable())

	statuses := PackedOrBeyondStatuses()
	assert.Len(t, statuses, 7)
	assert.Equal(t, CodeStatusPacked, statuses[0])
}

func TestBuildCodes(t *testing.T) {
	now := time.Now()
	b, err := NewBatch("ORD-001", "VAR-1", 25, 0, 10, "user-1", now)
	require.NoError(t, err)

	masters := BuildMasterCodes(b, 1, b.TotalMasterCodes, now)
	require.Len(t, masters, 3)
	assert.Equal(t, 10, masters[0].ExpectedUnits)
	assert.Equal(t, 5, masters[2].ExpectedUnits)
	assert.True(t, strings.HasPrefix(masters[0].Code, "M-"))

	uniques := BuildUniqueCodes(b, 11, 21, now)
	require.Len(t, uniques, 11)
	assert.Equal(t, 11, uniques[0].Sequence)
	assert.Equal(t, 2, uniques[0].CaseNumber)
	assert.Equal(t, 3, uniques[10].CaseNumber)
	assert.Equal(t, "VAR-1", uniques[0].VariantID)
	assert.Equal(t, CodeStatusGenerated, uniques[0].Status)
	assert.Len(t, uniques[0].Code, len("U-")+16)

	assert.Nil(t, BuildUniqueCodes(b, 5, 4, now))
}
