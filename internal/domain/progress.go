package domain

// Percentage returns floor(packed*100/total), and 0 for an empty total
func Percentage(packed, total int64) int {
	if total <= 0 {
		return 0
	}
	if packed > total {
		packed = total
	}
	if packed < 0 {
		packed = 0
	}
	return int(packed * 100 / total)
}

// Progress is the packing readout clients poll
type Progress struct {
	TotalMasterCodes         int64
	PackedMasterCodes        int64
	TotalUniqueCodes         int64
	PackedUniqueCodes        int64
	MasterProgressPercentage int
	UniqueProgressPercentage int
	Status                   BatchStatus
	PackingStatus            PackingStatus
	QRInsertedCount          int
}

// ComputeProgress builds the readout from packed-or-beyond row counts. A
// completed batch always reads as fully packed, whatever the rows say.
func ComputeProgress(b *Batch, packedMaster, packedUnique int64) Progress {
	totalMaster := int64(b.TotalMasterCodes)
	totalUnique := int64(b.TotalUniqueCodes)

	if b.Status == BatchStatusCompleted {
		packedMaster, packedUnique = totalMaster, totalUnique
	}
	packedMaster = clamp(packedMaster, totalMaster)
	packedUnique = clamp(packedUnique, totalUnique)

	return Progress{
		TotalMasterCodes:         totalMaster,
		PackedMasterCodes:        packedMaster,
		TotalUniqueCodes:         totalUnique,
		PackedUniqueCodes:        packedUnique,
		MasterProgressPercentage: Percentage(packedMaster, totalMaster),
		UniqueProgressPercentage: Percentage(packedUnique, totalUnique),
		Status:                   b.Status,
		PackingStatus:            b.PackingStatus,
		QRInsertedCount:          b.QRInsertedCount,
	}
}

// IsFullyPacked reports whether every planned code counts as packed
func (p Progress) IsFullyPacked() bool {
	return p.PackedMasterCodes == p.TotalMasterCodes && p.PackedUniqueCodes == p.TotalUniqueCodes
}

func clamp(v, limit int64) int64 {
	if v > limit {
		return limit
	}
	if v < 0 {
		return 0
	}
	return v
}
