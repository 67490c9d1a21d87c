package application

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/wms-platform/qrbatch-service/internal/domain"
	"github.com/wms-platform/qrbatch-service/pkg/logging"
)

// mockBatchRepository keeps batches in memory with the same claim and
// version semantics as the Mongo repository
type mockBatchRepository struct {
	mu      sync.Mutex
	batches map[string]*domain.Batch
	events  []domain.DomainEvent
	codes   *mockCodeRepository

	FindActiveByOrderIDFunc  func(ctx context.Context, orderID string) (*domain.Batch, error)
	ClaimPackingFunc         func(ctx context.Context, batchID, workerID string, until time.Time) (*domain.Batch, error)
	TransitionToPrintingFunc func(ctx context.Context, batch *domain.Batch) (domain.PrintResult, error)
}

func newMockBatchRepository(codes *mockCodeRepository) *mockBatchRepository {
	return &mockBatchRepository{batches: make(map[string]*domain.Batch), codes: codes}
}

func copyBatch(b *domain.Batch) *domain.Batch {
	cp := *b
	cp.DomainEvents = nil
	return &cp
}

func (m *mockBatchRepository) AddBatch(b *domain.Batch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[b.ID] = copyBatch(b)
}

func (m *mockBatchRepository) Get(id string) *domain.Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.batches[id]; ok {
		return copyBatch(b)
	}
	return nil
}

func (m *mockBatchRepository) EventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.EventType())
	}
	return out
}

func (m *mockBatchRepository) Create(ctx context.Context, batch *domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.batches {
		if b.OrderID == batch.OrderID && b.IsActive() {
			return domain.ErrActiveBatchExists
		}
	}
	m.events = append(m.events, batch.DomainEvents...)
	batch.ClearDomainEvents()
	m.batches[batch.ID] = copyBatch(batch)
	return nil
}

func (m *mockBatchRepository) updateLocked(batch *domain.Batch) error {
	stored, ok := m.batches[batch.ID]
	if !ok {
		return domain.ErrBatchNotFound
	}
	if stored.Version != batch.Version {
		return domain.ErrConcurrentModification
	}
	batch.Version++
	m.events = append(m.events, batch.DomainEvents...)
	batch.ClearDomainEvents()
	m.batches[batch.ID] = copyBatch(batch)
	return nil
}

func (m *mockBatchRepository) Update(ctx context.Context, batch *domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(batch)
}

func (m *mockBatchRepository) FindByID(ctx context.Context, batchID string) (*domain.Batch, error) {
	return m.Get(batchID), nil
}

func (m *mockBatchRepository) FindByOrderID(ctx context.Context, orderID string) ([]*domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Batch
	for _, b := range m.batches {
		if b.OrderID == orderID {
			out = append(out, copyBatch(b))
		}
	}
	return out, nil
}

func (m *mockBatchRepository) FindActiveByOrderID(ctx context.Context, orderID string) (*domain.Batch, error) {
	if m.FindActiveByOrderIDFunc != nil {
		return m.FindActiveByOrderIDFunc(ctx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.batches {
		if b.OrderID == orderID && b.IsActive() {
			return copyBatch(b), nil
		}
	}
	return nil, nil
}

func (m *mockBatchRepository) ClaimGeneration(ctx context.Context, batchID, workerID string, until time.Time) (*domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.batches[batchID]
	if !ok {
		return nil, nil
	}
	cp := copyBatch(stored)
	if err := cp.ClaimGeneration(workerID, until, time.Now()); err != nil {
		return nil, nil
	}
	cp.Version++
	m.batches[batchID] = copyBatch(cp)
	return cp, nil
}

func (m *mockBatchRepository) UpdateInsertProgress(ctx context.Context, batchID, workerID string, masterInserted, qrInserted int, until time.Time) (*domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.batches[batchID]
	if !ok || stored.Status != domain.BatchStatusProcessing || stored.LockedBy != workerID {
		return nil, domain.ErrLeaseLost
	}
	stored.MasterInsertedCount = masterInserted
	stored.QRInsertedCount = qrInserted
	stored.LockedUntil = &until
	stored.Version++
	return copyBatch(stored), nil
}

func (m *mockBatchRepository) ClaimPacking(ctx context.Context, batchID, workerID string, until time.Time) (*domain.Batch, error) {
	if m.ClaimPackingFunc != nil {
		return m.ClaimPackingFunc(ctx, batchID, workerID, until)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.batches[batchID]
	if !ok {
		return nil, nil
	}
	if !stored.Status.AcceptsPacking() {
		return nil, nil
	}
	cp := copyBatch(stored)
	if err := cp.ClaimPacking(workerID, until, time.Now()); err != nil {
		return nil, nil
	}
	cp.Version++
	m.batches[batchID] = copyBatch(cp)
	return cp, nil
}

func (m *mockBatchRepository) FindNextPacking(ctx context.Context) (*domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var next *domain.Batch
	for _, b := range m.batches {
		if !b.PackingStatus.IsRunning() || !b.Status.AcceptsPacking() {
			continue
		}
		if next == nil || b.CreatedAt.Before(next.CreatedAt) {
			next = b
		}
	}
	if next == nil {
		return nil, nil
	}
	return copyBatch(next), nil
}

func (m *mockBatchRepository) FindStalledGeneration(ctx context.Context, queuedBefore, now time.Time, limit int) ([]*domain.Batch, error) {
	return nil, nil
}

func (m *mockBatchRepository) FindStalledPacking(ctx context.Context, queuedBefore, now time.Time, limit int) ([]*domain.Batch, error) {
	return nil, nil
}

func (m *mockBatchRepository) TransitionToPrinting(ctx context.Context, batch *domain.Batch) (domain.PrintResult, error) {
	if m.TransitionToPrintingFunc != nil {
		return m.TransitionToPrintingFunc(ctx, batch)
	}
	m.mu.Lock()
	if err := m.updateLocked(batch); err != nil {
		m.mu.Unlock()
		return domain.PrintResult{}, err
	}
	m.mu.Unlock()

	masters, _ := m.codes.AdvanceAll(ctx, domain.CodeKindMaster, batch.ID, domain.CodeStatusGenerated, domain.CodeStatusPrinted)
	uniques, _ := m.codes.AdvanceAll(ctx, domain.CodeKindUnique, batch.ID, domain.CodeStatusGenerated, domain.CodeStatusPrinted)
	return domain.PrintResult{MasterPrinted: masters, UniquePrinted: uniques}, nil
}

// mockCodeRepository holds codes in sequence order
type mockCodeRepository struct {
	mu        sync.Mutex
	masters   []domain.MasterCode
	uniques   []domain.UniqueCode
	listCalls int

	InsertUniqueCodesFunc func(ctx context.Context, codes []domain.UniqueCode) error
	AdvanceChunkFunc      func(ctx context.Context, kind domain.CodeKind, batchID string, from, to domain.CodeStatus, limit int) (int64, error)
	AdvanceRangeFunc      func(ctx context.Context, kind domain.CodeKind, batchID string, from, to domain.CodeStatus, lo, hi int) (int64, error)
	FindCandidatesFunc    func(ctx context.Context, filter domain.CandidateFilter, afterSequence, limit int) ([]domain.UniqueCode, error)
}

func newMockCodeRepository() *mockCodeRepository {
	return &mockCodeRepository{}
}

// Seed inserts every code of the batch in the given status
func (m *mockCodeRepository) Seed(b *domain.Batch, status domain.CodeStatus) {
	now := time.Now()
	masters := domain.BuildMasterCodes(b, 1, b.TotalMasterCodes, now)
	uniques := domain.BuildUniqueCodes(b, 1, b.TotalUniqueCodes, now)
	for i := range masters {
		masters[i].Status = status
	}
	for i := range uniques {
		uniques[i].Status = status
	}
	_ = m.InsertMasterCodes(context.Background(), masters)
	_ = m.InsertUniqueCodes(context.Background(), uniques)
}

func (m *mockCodeRepository) SetUniqueStatus(batchID string, sequence int, status domain.CodeStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.uniques {
		if m.uniques[i].BatchID == batchID && m.uniques[i].Sequence == sequence {
			m.uniques[i].Status = status
		}
	}
}

func (m *mockCodeRepository) Uniques(batchID string) []domain.UniqueCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.UniqueCode
	for _, c := range m.uniques {
		if c.BatchID == batchID {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockCodeRepository) InsertMasterCodes(ctx context.Context, codes []domain.MasterCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range codes {
		exists := false
		for _, e := range m.masters {
			if e.BatchID == c.BatchID && e.CaseNumber == c.CaseNumber {
				exists = true
				break
			}
		}
		if !exists {
			m.masters = append(m.masters, c)
		}
	}
	sort.SliceStable(m.masters, func(i, j int) bool { return m.masters[i].CaseNumber < m.masters[j].CaseNumber })
	return nil
}

func (m *mockCodeRepository) InsertUniqueCodes(ctx context.Context, codes []domain.UniqueCode) error {
	if m.InsertUniqueCodesFunc != nil {
		return m.InsertUniqueCodesFunc(ctx, codes)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range codes {
		exists := false
		for _, e := range m.uniques {
			if e.BatchID == c.BatchID && e.Sequence == c.Sequence {
				exists = true
				break
			}
		}
		if !exists {
			m.uniques = append(m.uniques, c)
		}
	}
	sort.SliceStable(m.uniques, func(i, j int) bool { return m.uniques[i].Sequence < m.uniques[j].Sequence })
	return nil
}

func (m *mockCodeRepository) ListMasterCodes(ctx context.Context, batchID string, afterCase, limit int) ([]domain.MasterCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	var out []domain.MasterCode
	for _, c := range m.masters {
		if c.BatchID == batchID && c.CaseNumber > afterCase && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCodeRepository) ListUniqueCodes(ctx context.Context, batchID string, afterSequence, limit int) ([]domain.UniqueCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	var out []domain.UniqueCode
	for _, c := range m.uniques {
		if c.BatchID == batchID && c.Sequence > afterSequence && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

// statuses visits every code of the kind in the batch, in sequence order
func (m *mockCodeRepository) statuses(kind domain.CodeKind, batchID string, fn func(status *domain.CodeStatus, seq int) bool) {
	if kind == domain.CodeKindMaster {
		for i := range m.masters {
			if m.masters[i].BatchID == batchID && !fn(&m.masters[i].Status, m.masters[i].CaseNumber) {
				return
			}
		}
		return
	}
	for i := range m.uniques {
		if m.uniques[i].BatchID == batchID && !fn(&m.uniques[i].Status, m.uniques[i].Sequence) {
			return
		}
	}
}

func (m *mockCodeRepository) CountByStatus(ctx context.Context, kind domain.CodeKind, batchID string) (domain.StatusHistogram, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := domain.StatusHistogram{}
	m.statuses(kind, batchID, func(status *domain.CodeStatus, _ int) bool {
		h[*status]++
		return true
	})
	return h, nil
}

func (m *mockCodeRepository) CountInStatus(ctx context.Context, kind domain.CodeKind, batchID string, statuses ...domain.CodeStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	m.statuses(kind, batchID, func(status *domain.CodeStatus, _ int) bool {
		for _, s := range statuses {
			if *status == s {
				n++
				break
			}
		}
		return true
	})
	return n, nil
}

func (m *mockCodeRepository) AdvanceChunk(ctx context.Context, kind domain.CodeKind, batchID string, from, to domain.CodeStatus, limit int) (int64, error) {
	if m.AdvanceChunkFunc != nil {
		return m.AdvanceChunkFunc(ctx, kind, batchID, from, to, limit)
	}
	return m.advanceChunk(kind, batchID, from, to, limit)
}

func (m *mockCodeRepository) advanceChunk(kind domain.CodeKind, batchID string, from, to domain.CodeStatus, limit int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	m.statuses(kind, batchID, func(status *domain.CodeStatus, _ int) bool {
		if *status == from {
			*status = to
			n++
		}
		return n < int64(limit)
	})
	return n, nil
}

func (m *mockCodeRepository) AdvanceAll(ctx context.Context, kind domain.CodeKind, batchID string, from, to domain.CodeStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	m.statuses(kind, batchID, func(status *domain.CodeStatus, _ int) bool {
		if *status == from {
			*status = to
			n++
		}
		return true
	})
	return n, nil
}

func (m *mockCodeRepository) AdvanceRange(ctx context.Context, kind domain.CodeKind, batchID string, from, to domain.CodeStatus, lo, hi int) (int64, error) {
	if m.AdvanceRangeFunc != nil {
		return m.AdvanceRangeFunc(ctx, kind, batchID, from, to, lo, hi)
	}
	return m.advanceRange(kind, batchID, from, to, lo, hi)
}

func (m *mockCodeRepository) advanceRange(kind domain.CodeKind, batchID string, from, to domain.CodeStatus, lo, hi int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	m.statuses(kind, batchID, func(status *domain.CodeStatus, seq int) bool {
		if seq >= lo && seq <= hi && *status == from {
			*status = to
			n++
		}
		return true
	})
	return n, nil
}

func matchesFilter(c domain.UniqueCode, f domain.CandidateFilter) bool {
	if c.BatchID != f.BatchID {
		return false
	}
	if f.VariantID != "" && c.VariantID != f.VariantID {
		return false
	}
	if len(f.CaseNumbers) > 0 {
		for _, n := range f.CaseNumbers {
			if c.CaseNumber == n {
				return true
			}
		}
		return false
	}
	return true
}

func (m *mockCodeRepository) CountCandidates(ctx context.Context, filter domain.CandidateFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.uniques {
		if matchesFilter(c, filter) {
			n++
		}
	}
	return n, nil
}

func (m *mockCodeRepository) FindCandidates(ctx context.Context, filter domain.CandidateFilter, afterSequence, limit int) ([]domain.UniqueCode, error) {
	if m.FindCandidatesFunc != nil {
		return m.FindCandidatesFunc(ctx, filter, afterSequence, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.UniqueCode
	for _, c := range m.uniques {
		if c.Sequence > afterSequence && matchesFilter(c, filter) && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

type mockMovementRepository struct {
	mu        sync.Mutex
	movements []domain.CodeMovement
}

func (m *mockMovementRepository) Record(ctx context.Context, movement domain.CodeMovement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movements = append(m.movements, movement)
	return nil
}

func (m *mockMovementRepository) ListByBatch(ctx context.Context, batchID string) ([]domain.CodeMovement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CodeMovement
	for _, mv := range m.movements {
		if mv.BatchID == batchID {
			out = append(out, mv)
		}
	}
	return out, nil
}

// Total sums movement counts for one kind and step
func (m *mockMovementRepository) Total(kind domain.CodeKind, from, to domain.CodeStatus) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, mv := range m.movements {
		if mv.CodeKind == kind && mv.FromStatus == from && mv.ToStatus == to {
			n += mv.Count
		}
	}
	return n
}

type mockReportRepository struct {
	reports []*domain.ValidationReport
}

func (m *mockReportRepository) Save(ctx context.Context, report *domain.ValidationReport) error {
	m.reports = append(m.reports, report)
	return nil
}

type mockPaymentRepository struct {
	mu       sync.Mutex
	requests map[string]*domain.BalancePaymentRequest
}

func (m *mockPaymentRepository) CreateIfAbsent(ctx context.Context, request *domain.BalancePaymentRequest) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.requests == nil {
		m.requests = make(map[string]*domain.BalancePaymentRequest)
	}
	if _, ok := m.requests[request.OrderID]; ok {
		return false, nil
	}
	m.requests[request.OrderID] = request
	return true, nil
}

type mockReverseJobRepository struct {
	mu   sync.Mutex
	jobs map[string]*domain.ReverseJob
}

func newMockReverseJobRepository() *mockReverseJobRepository {
	return &mockReverseJobRepository{jobs: make(map[string]*domain.ReverseJob)}
}

func copyJob(j *domain.ReverseJob) *domain.ReverseJob {
	cp := *j
	cp.DomainEvents = nil
	return &cp
}

func (m *mockReverseJobRepository) Get(id string) *domain.ReverseJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		return copyJob(j)
	}
	return nil
}

func (m *mockReverseJobRepository) Create(ctx context.Context, job *domain.ReverseJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = copyJob(job)
	return nil
}

func (m *mockReverseJobRepository) Update(ctx context.Context, job *domain.ReverseJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[job.ID]
	if !ok {
		return domain.ErrReverseJobNotFound
	}
	if stored.Version != job.Version {
		return domain.ErrConcurrentModification
	}
	job.Version++
	job.DomainEvents = nil
	m.jobs[job.ID] = copyJob(job)
	return nil
}

func (m *mockReverseJobRepository) FindByID(ctx context.Context, jobID string) (*domain.ReverseJob, error) {
	return m.Get(jobID), nil
}

func (m *mockReverseJobRepository) Claim(ctx context.Context, jobID, workerID string, until time.Time) (*domain.ReverseJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[jobID]
	if !ok {
		return nil, nil
	}
	cp := copyJob(stored)
	if err := cp.Claim(workerID, until, time.Now()); err != nil {
		return nil, nil
	}
	cp.Version++
	m.jobs[jobID] = copyJob(cp)
	return cp, nil
}

func (m *mockReverseJobRepository) FindStalled(ctx context.Context, queuedBefore, now time.Time, limit int) ([]*domain.ReverseJob, error) {
	return nil, nil
}

type mockPreparedCodeRepository struct {
	mu    sync.Mutex
	codes map[string]domain.PreparedCode

	InsertFunc func(ctx context.Context, code domain.PreparedCode) error
}

func newMockPreparedCodeRepository() *mockPreparedCodeRepository {
	return &mockPreparedCodeRepository{codes: make(map[string]domain.PreparedCode)}
}

func (m *mockPreparedCodeRepository) Insert(ctx context.Context, code domain.PreparedCode) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codes[code.Code]; ok {
		return domain.ErrAlreadyPrepared
	}
	m.codes[code.Code] = code
	return nil
}

func (m *mockPreparedCodeRepository) PreparedBy(ctx context.Context, codes []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	for _, c := range codes {
		if p, ok := m.codes[c]; ok {
			out[c] = p.JobID
		}
	}
	return out, nil
}

func (m *mockPreparedCodeRepository) ListByJob(ctx context.Context, jobID string, offset, limit int) ([]domain.PreparedCode, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []domain.PreparedCode
	for _, c := range m.codes {
		if c.JobID == jobID {
			all = append(all, c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Sequence < all[j].Sequence })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], total, nil
}

type mockJobLogRepository struct {
	mu      sync.Mutex
	entries []domain.ReverseJobLog
}

func (m *mockJobLogRepository) Append(ctx context.Context, entry domain.ReverseJobLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockJobLogRepository) ListByJob(ctx context.Context, jobID string) ([]domain.ReverseJobLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ReverseJobLog
	for _, e := range m.entries {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockDispatcher struct {
	mu          sync.Mutex
	generation  []string
	packing     []string
	reverseJobs []string
	Err         error
}

func (m *mockDispatcher) DispatchGeneration(ctx context.Context, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation = append(m.generation, batchID)
	return m.Err
}

func (m *mockDispatcher) DispatchPacking(ctx context.Context, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packing = append(m.packing, batchID)
	return m.Err
}

func (m *mockDispatcher) DispatchReverseJob(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reverseJobs = append(m.reverseJobs, jobID)
	return m.Err
}

// mockExporter drains the pages and writes one line per code
type mockExporter struct {
	ExportFunc func(ctx context.Context, batch *domain.Batch, pages CodePages, w io.Writer) error
	exported   int
}

func (m *mockExporter) Export(ctx context.Context, batch *domain.Batch, pages CodePages, w io.Writer) error {
	if m.ExportFunc != nil {
		return m.ExportFunc(ctx, batch, pages, w)
	}
	m.exported++
	for {
		page, err := pages.NextMasters(ctx)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		for _, c := range page {
			fmt.Fprintln(w, c.Code)
		}
	}
	for {
		page, err := pages.NextUniques(ctx)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		for _, c := range page {
			fmt.Fprintln(w, c.Code)
		}
	}
	return nil
}

func (m *mockExporter) Extension() string { return "xlsx" }

type mockLabelRenderer struct {
	masters []domain.MasterCode
	uniques []domain.UniqueCode
}

func (m *mockLabelRenderer) Render(ctx context.Context, batch *domain.Batch, masters []domain.MasterCode, uniques []domain.UniqueCode) ([]byte, error) {
	m.masters, m.uniques = masters, uniques
	return []byte("%PDF-1.3"), nil
}

type mockFileStore struct {
	mu    sync.Mutex
	files map[string][]byte

	WriteFunc func(ctx context.Context, key string, write func(io.Writer) error) error
}

func (m *mockFileStore) Write(ctx context.Context, key string, write func(io.Writer) error) error {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, key, write)
	}
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	m.files[key] = buf.Bytes()
	return nil
}

func (m *mockFileStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	return "https://files.test/" + key + "?token=t", time.Now().Add(ttl), nil
}

// testEnv wires every mock behind the three services
type testEnv struct {
	batches    *mockBatchRepository
	codes      *mockCodeRepository
	movements  *mockMovementRepository
	reports    *mockReportRepository
	payments   *mockPaymentRepository
	jobs       *mockReverseJobRepository
	prepared   *mockPreparedCodeRepository
	logs       *mockJobLogRepository
	dispatcher *mockDispatcher
	exporter   *mockExporter
	labels     *mockLabelRenderer
	files      *mockFileStore

	batchService   *BatchService
	packingService *PackingService
	reverseService *ReverseJobService
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Retry.InitialDelay = time.Millisecond
	opts.Retry.MaxDelay = time.Millisecond
	return opts
}

func newTestEnv(opts Options) *testEnv {
	codes := newMockCodeRepository()
	env := &testEnv{
		batches:    newMockBatchRepository(codes),
		codes:      codes,
		movements:  &mockMovementRepository{},
		reports:    &mockReportRepository{},
		payments:   &mockPaymentRepository{},
		jobs:       newMockReverseJobRepository(),
		prepared:   newMockPreparedCodeRepository(),
		logs:       &mockJobLogRepository{},
		dispatcher: &mockDispatcher{},
		exporter:   &mockExporter{},
		labels:     &mockLabelRenderer{},
		files:      &mockFileStore{},
	}
	repos := Repositories{
		Batches:       env.batches,
		Codes:         env.codes,
		Movements:     env.movements,
		Reports:       env.reports,
		Payments:      env.payments,
		ReverseJobs:   env.jobs,
		PreparedCodes: env.prepared,
		JobLogs:       env.logs,
	}
	logger := logging.NewNop()
	env.batchService = NewBatchService(repos, env.dispatcher, env.exporter, env.labels, env.files, nil, logger, opts)
	env.packingService = NewPackingService(repos, env.dispatcher, nil, logger, opts)
	env.reverseService = NewReverseJobService(repos, env.dispatcher, nil, logger, opts)
	return env
}

// seedBatch stores a batch in the given state with every code row present
func (e *testEnv) seedBatch(quantity, unitsPerCase int, status domain.BatchStatus, packing domain.PackingStatus, codeStatus domain.CodeStatus) *domain.Batch {
	b, err := domain.NewBatch("ORD-"+fmt.Sprint(time.Now().UnixNano()), "VAR-1", quantity, 0, unitsPerCase, "user-1", time.Now())
	if err != nil {
		panic(err)
	}
	b.Status = status
	b.PackingStatus = packing
	b.QRInsertedCount = b.TotalUniqueCodes
	b.MasterInsertedCount = b.TotalMasterCodes
	b.GeneratedFile = ExportKey(b.ID, "xlsx")
	e.batches.AddBatch(b)
	e.codes.Seed(b, codeStatus)
	return b
}
