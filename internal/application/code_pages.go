package application

import (
	"context"
	"fmt"

	"github.com/wms-platform/qrbatch-service/internal/domain"
)

// codePages walks a batch's master codes by case number, then its unique
// codes by sequence, reporting progress after every page
type codePages struct {
	codes    domain.CodeRepository
	batchID  string
	size     int
	lastCase int
	lastSeq  int
	done     int
	total    int
	progress func(done, total int)
}

func newCodePages(codes domain.CodeRepository, batch *domain.Batch, size int, progress func(done, total int)) *codePages {
	return &codePages{
		codes:    codes,
		batchID:  batch.ID,
		size:     size,
		total:    batch.TotalMasterCodes + batch.TotalUniqueCodes,
		progress: progress,
	}
}

func (p *codePages) NextMasters(ctx context.Context) ([]domain.MasterCode, error) {
	page, err := p.codes.ListMasterCodes(ctx, p.batchID, p.lastCase, p.size)
	if err != nil {
		return nil, fmt.Errorf("failed to read master codes: %w", err)
	}
	if n := len(page); n > 0 {
		p.lastCase = page[n-1].CaseNumber
		p.advance(n)
	}
	return page, nil
}

func (p *codePages) NextUniques(ctx context.Context) ([]domain.UniqueCode, error) {
	page, err := p.codes.ListUniqueCodes(ctx, p.batchID, p.lastSeq, p.size)
	if err != nil {
		return nil, fmt.Errorf("failed to read unique codes: %w", err)
	}
	if n := len(page); n > 0 {
		p.lastSeq = page[n-1].Sequence
		p.advance(n)
	}
	return page, nil
}

func (p *codePages) advance(n int) {
	p.done += n
	if p.progress != nil {
		p.progress(p.done, p.total)
	}
}
