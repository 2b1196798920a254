package escrow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/escrow-room-service/internal/model"
	"github.com/iliyamo/escrow-room-service/internal/queue"
	"github.com/iliyamo/escrow-room-service/internal/repository"
)

// fakeEscrowStore mirrors the storage contract in memory.  A mutex
// plays the part of the room row lock; the single-active-transaction
// and single-pending-file checks run under it, so both unique keys
// behave exactly like the SQL implementation.  Mutations run on copies
// that are written back only when the callback succeeds, matching
// rollback semantics.
type fakeEscrowStore struct {
	mu        sync.Mutex
	occupants map[uint64][]model.Occupant
	txns      map[uint64]*model.Transaction
	files     map[uint64]*model.EvidenceFile
	entries   []model.AuditEntry

	nextTxnID  uint64
	nextFileID uint64
}

func newFakeEscrowStore() *fakeEscrowStore {
	return &fakeEscrowStore{
		occupants: map[uint64][]model.Occupant{},
		txns:      map[uint64]*model.Transaction{},
		files:     map[uint64]*model.EvidenceFile{},
	}
}

func (f *fakeEscrowStore) addOccupant(roomID, id uint64, role, name, contact string) *model.Occupant {
	occ := model.Occupant{ID: id, RoomID: roomID, Role: role, DisplayName: name, Contact: contact}
	f.occupants[roomID] = append(f.occupants[roomID], occ)
	return &occ
}

func (f *fakeEscrowStore) seedTxn(t *model.Transaction) *model.Transaction {
	f.nextTxnID++
	t.ID = f.nextTxnID
	t.CreatedAt = time.Now()
	f.txns[t.ID] = t
	return t
}

func (f *fakeEscrowStore) seedFile(file *model.EvidenceFile) *model.EvidenceFile {
	f.nextFileID++
	file.ID = f.nextFileID
	if file.Status == "" {
		file.Status = model.EvidencePending
	}
	file.CreatedAt = time.Now()
	f.files[file.ID] = file
	return file
}

func (f *fakeEscrowStore) activeTxn(roomID uint64) *model.Transaction {
	for _, t := range f.txns {
		if t.RoomID == roomID && t.Active() {
			return t
		}
	}
	return nil
}

func (f *fakeEscrowStore) append(entry *model.AuditEntry) {
	entry.Seq = uint64(len(f.entries) + 1)
	entry.CreatedAt = time.Now()
	f.entries = append(f.entries, *entry)
}

func (f *fakeEscrowStore) Transition(_ context.Context, roomID uint64,
	mutate func(*model.Transaction) (*model.AuditEntry, error)) (*model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn := f.activeTxn(roomID)
	if txn == nil {
		return nil, repository.ErrTxnNotFound
	}
	work := *txn
	entry, err := mutate(&work)
	if err != nil {
		return nil, err
	}
	*txn = work
	f.append(entry)
	cp := work
	return &cp, nil
}

func (f *fakeEscrowStore) ActiveByRoom(_ context.Context, roomID uint64) (*model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn := f.activeTxn(roomID)
	if txn == nil {
		return nil, repository.ErrTxnNotFound
	}
	cp := *txn
	return &cp, nil
}

func (f *fakeEscrowStore) Submit(_ context.Context, roomID uint64,
	create func(occupants []model.Occupant) (*model.Transaction, error),
	mutate func(txn *model.Transaction) (*model.EvidenceFile, *model.AuditEntry, error),
) (*model.EvidenceFile, *model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing := f.activeTxn(roomID)
	var work model.Transaction
	if existing != nil {
		work = *existing
	} else {
		t, err := create(append([]model.Occupant(nil), f.occupants[roomID]...))
		if err != nil {
			return nil, nil, err
		}
		t.RoomID = roomID
		f.nextTxnID++
		t.ID = f.nextTxnID
		t.CreatedAt = time.Now()
		work = *t
	}

	file, entry, err := mutate(&work)
	if err != nil {
		return nil, nil, err
	}
	for _, ef := range f.files {
		if ef.TransactionID == work.ID && ef.FileType == file.FileType && ef.Status == model.EvidencePending {
			return nil, nil, repository.ErrDuplicate
		}
	}
	f.nextFileID++
	file.ID = f.nextFileID
	file.TransactionID = work.ID
	file.Status = model.EvidencePending
	file.CreatedAt = time.Now()
	f.files[file.ID] = file

	committed := work
	f.txns[committed.ID] = &committed
	f.append(entry)
	cp := committed
	fcp := *file
	return &fcp, &cp, nil
}

func (f *fakeEscrowStore) Review(_ context.Context, fileID uint64,
	decide func(txn *model.Transaction, file *model.EvidenceFile) (*model.AuditEntry, error),
) (*model.EvidenceFile, *model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, ok := f.files[fileID]
	if !ok {
		return nil, nil, repository.ErrEvidenceNotFound
	}
	txn, ok := f.txns[file.TransactionID]
	if !ok {
		return nil, nil, repository.ErrTxnNotFound
	}

	fwork := *file
	twork := *txn
	entry, err := decide(&twork, &fwork)
	if err != nil {
		return nil, nil, err
	}
	if fwork.Status == model.EvidencePending {
		return nil, nil, repository.ErrConflict
	}
	*file = fwork
	*txn = twork
	f.append(entry)
	fcp := fwork
	tcp := twork
	return &fcp, &tcp, nil
}

const (
	testCommissionBps = 250
	testFlatFee       = 100
)

func newGateway(store *fakeEscrowStore, pub *capturingPublisher) *EvidenceGateway {
	return NewEvidenceGateway(store, pub.publish, testCommissionBps, testFlatFee)
}

func TestSubmitOpensTransactionAndPrices(t *testing.T) {
	store := newFakeEscrowStore()
	buyer := store.addOccupant(7, 1, model.RoleBuyer, "Alice", "alice@example.com")
	store.addOccupant(7, 2, model.RoleSeller, "Bob", "bob@example.com")
	pub := &capturingPublisher{}
	g := newGateway(store, pub)

	file, err := g.Submit(context.Background(), 7, buyer, SubmitInput{
		FileType:    "payment_proof",
		FileName:    "wire.pdf",
		BlobRef:     "blob-1",
		AmountCents: 10000,
		Currency:    "eur",
	})
	require.NoError(t, err)
	assert.Equal(t, model.EvidencePending, file.Status)
	assert.Equal(t, model.FilePaymentProof, file.FileType)

	txn := store.activeTxn(7)
	require.NotNil(t, txn)
	assert.Equal(t, model.StatusAwaitingPaymentReview, txn.Status)
	assert.Equal(t, buyer.ID, txn.BuyerOccupantID)
	require.NotNil(t, txn.SellerOccupantID)
	assert.Equal(t, uint64(2), *txn.SellerOccupantID)
	assert.Equal(t, int64(10000), txn.AmountCents)
	assert.Equal(t, "EUR", txn.Currency)
	assert.Equal(t, int64(250), txn.CommissionCents)
	assert.Equal(t, int64(100), txn.FeeCents)
	assert.Equal(t, int64(10350), txn.TotalCents)

	assert.Equal(t, []string{queue.EventEvidenceSubmitted}, pub.names())
	require.Len(t, store.entries, 1)
	assert.Equal(t, model.ActionEvidenceSubmitted, store.entries[0].Action)
}

func TestSubmitWithoutBuyerFails(t *testing.T) {
	store := newFakeEscrowStore()
	pub := &capturingPublisher{}
	g := newGateway(store, pub)

	stray := &model.Occupant{ID: 9, RoomID: 3, Role: model.RoleBuyer, DisplayName: "Ghost"}
	_, err := g.Submit(context.Background(), 3, stray, SubmitInput{FileType: model.FilePaymentProof})
	assert.ErrorIs(t, err, model.ErrNoActiveTransaction)
	assert.Empty(t, pub.names())
}

func TestSubmitSecondPaymentProofAlreadyPending(t *testing.T) {
	store := newFakeEscrowStore()
	buyer := store.addOccupant(7, 1, model.RoleBuyer, "Alice", "alice@example.com")
	pub := &capturingPublisher{}
	g := newGateway(store, pub)

	_, err := g.Submit(context.Background(), 7, buyer, SubmitInput{
		FileType: model.FilePaymentProof, FileName: "wire.pdf", AmountCents: 5000,
	})
	require.NoError(t, err)

	_, err = g.Submit(context.Background(), 7, buyer, SubmitInput{
		FileType: model.FilePaymentProof, FileName: "wire-2.pdf", AmountCents: 5000,
	})
	assert.ErrorIs(t, err, model.ErrEvidenceAlreadyPending)
	assert.Len(t, store.files, 1, "the retry must not store a second file")
	assert.Equal(t, []string{queue.EventEvidenceSubmitted}, pub.names())
}

func TestSubmitDuplicateIdentityDocumentAlreadyPending(t *testing.T) {
	// Identity documents bypass the status routing, so the second pending
	// copy is caught by the storage unique key instead.
	store := newFakeEscrowStore()
	buyer := store.addOccupant(7, 1, model.RoleBuyer, "Alice", "alice@example.com")
	pub := &capturingPublisher{}
	g := newGateway(store, pub)

	_, err := g.Submit(context.Background(), 7, buyer, SubmitInput{
		FileType: model.FileIdentityDocument, FileName: "passport.jpg",
	})
	require.NoError(t, err)

	_, err = g.Submit(context.Background(), 7, buyer, SubmitInput{
		FileType: model.FileIdentityDocument, FileName: "passport-2.jpg",
	})
	assert.ErrorIs(t, err, model.ErrEvidenceAlreadyPending)
	assert.Len(t, store.files, 1)
}

func TestSubmitRejectsForeignRoomAndUnknownType(t *testing.T) {
	store := newFakeEscrowStore()
	buyer := store.addOccupant(7, 1, model.RoleBuyer, "Alice", "alice@example.com")
	pub := &capturingPublisher{}
	g := newGateway(store, pub)

	_, err := g.Submit(context.Background(), 8, buyer, SubmitInput{FileType: model.FilePaymentProof})
	assert.ErrorIs(t, err, repository.ErrForbidden)

	_, err = g.Submit(context.Background(), 7, buyer, SubmitInput{FileType: "SELFIE"})
	assert.ErrorIs(t, err, model.ErrWrongType)
}

func TestApproveRoutesPaymentProof(t *testing.T) {
	store := newFakeEscrowStore()
	buyer := store.addOccupant(7, 1, model.RoleBuyer, "Alice", "alice@example.com")
	pub := &capturingPublisher{}
	g := newGateway(store, pub)
	arbiter := model.Arbiter{ID: 42, DisplayName: "GM"}

	file, err := g.Submit(context.Background(), 7, buyer, SubmitInput{
		FileType: model.FilePaymentProof, FileName: "wire.pdf", AmountCents: 5000,
	})
	require.NoError(t, err)

	reviewed, err := g.Approve(context.Background(), file.ID, arbiter)
	require.NoError(t, err)
	assert.Equal(t, model.EvidenceVerified, reviewed.Status)
	require.NotNil(t, reviewed.VerifiedBy)
	assert.Equal(t, arbiter.ID, *reviewed.VerifiedBy)

	txn := store.txns[file.TransactionID]
	assert.Equal(t, model.StatusPaid, txn.Status)
	require.NotNil(t, txn.PaymentVerifiedBy)
	assert.Equal(t, arbiter.ID, *txn.PaymentVerifiedBy)
	assert.Equal(t, []string{queue.EventEvidenceSubmitted, queue.EventEvidenceVerified}, pub.names())
}

func TestRejectRollsBackAndAllowsReupload(t *testing.T) {
	store := newFakeEscrowStore()
	buyer := store.addOccupant(7, 1, model.RoleBuyer, "Alice", "alice@example.com")
	pub := &capturingPublisher{}
	g := newGateway(store, pub)
	arbiter := model.Arbiter{ID: 42, DisplayName: "GM"}

	file, err := g.Submit(context.Background(), 7, buyer, SubmitInput{
		FileType: model.FilePaymentProof, FileName: "wire.pdf", AmountCents: 5000,
	})
	require.NoError(t, err)

	rejected, err := g.Reject(context.Background(), file.ID, arbiter, "amount mismatch")
	require.NoError(t, err)
	assert.Equal(t, model.EvidenceRejected, rejected.Status)
	require.NotNil(t, rejected.RejectReason)
	assert.Equal(t, "amount mismatch", *rejected.RejectReason)

	txn := store.txns[file.TransactionID]
	assert.Equal(t, model.StatusPaymentRejected, txn.Status)

	// The slot is free again; a replacement upload re-arms the review.
	_, err = g.Submit(context.Background(), 7, buyer, SubmitInput{
		FileType: model.FilePaymentProof, FileName: "wire-2.pdf", AmountCents: 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAwaitingPaymentReview, store.txns[file.TransactionID].Status)
}

func TestRejectRequiresReason(t *testing.T) {
	store := newFakeEscrowStore()
	pub := &capturingPublisher{}
	g := newGateway(store, pub)

	_, err := g.Reject(context.Background(), 1, model.Arbiter{ID: 42}, "   ")
	assert.ErrorIs(t, err, model.ErrMissingReason)
}

func TestReviewTwiceIsAlreadyProcessed(t *testing.T) {
	store := newFakeEscrowStore()
	buyer := store.addOccupant(7, 1, model.RoleBuyer, "Alice", "alice@example.com")
	pub := &capturingPublisher{}
	g := newGateway(store, pub)
	arbiter := model.Arbiter{ID: 42, DisplayName: "GM"}

	file, err := g.Submit(context.Background(), 7, buyer, SubmitInput{
		FileType: model.FilePaymentProof, FileName: "wire.pdf", AmountCents: 5000,
	})
	require.NoError(t, err)

	_, err = g.Approve(context.Background(), file.ID, arbiter)
	require.NoError(t, err)

	_, err = g.Approve(context.Background(), file.ID, arbiter)
	assert.ErrorIs(t, err, model.ErrAlreadyProcessed)
	_, err = g.Reject(context.Background(), file.ID, arbiter, "late")
	assert.ErrorIs(t, err, model.ErrAlreadyProcessed)
}

func TestReviewWrongStepIsWrongType(t *testing.T) {
	// A pending shipping receipt left over while the transaction sits at
	// payment review cannot drive the payment transition; the mismatch is
	// named as a type error, and nothing is persisted.
	store := newFakeEscrowStore()
	txn := store.seedTxn(&model.Transaction{
		RoomID: 7, BuyerOccupantID: 1, Status: model.StatusAwaitingPaymentReview,
	})
	file := store.seedFile(&model.EvidenceFile{
		TransactionID: txn.ID, FileType: model.FileShippingReceipt, FileName: "label.pdf",
		UploaderRole: model.RoleSeller,
	})
	pub := &capturingPublisher{}
	g := newGateway(store, pub)

	_, err := g.Approve(context.Background(), file.ID, model.Arbiter{ID: 42, DisplayName: "GM"})
	assert.ErrorIs(t, err, model.ErrWrongType)
	assert.Equal(t, model.EvidencePending, store.files[file.ID].Status)
	assert.Equal(t, model.StatusAwaitingPaymentReview, store.txns[txn.ID].Status)
	assert.Empty(t, pub.names())
}

func TestApproveIdentityDocumentKeepsStatus(t *testing.T) {
	store := newFakeEscrowStore()
	buyer := store.addOccupant(7, 1, model.RoleBuyer, "Alice", "alice@example.com")
	pub := &capturingPublisher{}
	g := newGateway(store, pub)

	file, err := g.Submit(context.Background(), 7, buyer, SubmitInput{
		FileType: model.FileIdentityDocument, FileName: "passport.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingPayment, store.txns[file.TransactionID].Status)

	reviewed, err := g.Approve(context.Background(), file.ID, model.Arbiter{ID: 42, DisplayName: "GM"})
	require.NoError(t, err)
	assert.Equal(t, model.EvidenceVerified, reviewed.Status)
	assert.Equal(t, model.StatusPendingPayment, store.txns[file.TransactionID].Status,
		"identity document review must not move the transaction")
}
