package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/beamdrop/beamdrop/internal/models"
)

// ---- in-memory fakes ----

type memTransferStore struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Transfer
}

func newMemTransferStore() *memTransferStore {
	return &memTransferStore{byID: make(map[uuid.UUID]*models.Transfer)}
}

func (s *memTransferStore) Create(_ context.Context, t *models.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.byID[t.ID] = &cp
	return nil
}

func (s *memTransferStore) Get(_ context.Context, id uuid.UUID) (*models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: transfer %s", ErrNotFound, id)
	}
	cp := *t
	return &cp, nil
}

func (s *memTransferStore) PendingFor(_ context.Context, userID uuid.UUID) ([]models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transfer
	for _, t := range s.byID {
		if t.Status == models.StatusPending && (t.SenderID == userID || t.RecipientID == userID) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *memTransferStore) SetStatus(_ context.Context, id uuid.UUID, from, to models.TransferStatus, completedAt *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	t.CompletedAt = completedAt
	return true, nil
}

func (s *memTransferStore) SetProgress(_ context.Context, id uuid.UUID, from models.TransferStatus, progress float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok || t.Status != from || t.Progress > progress {
		return false, nil
	}
	t.Progress = progress
	return true, nil
}

func (s *memTransferStore) FailExpired(_ context.Context, now time.Time) ([]models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var failed []models.Transfer
	for _, t := range s.byID {
		if (t.Status == models.StatusPending || t.Status == models.StatusAccepted) && now.After(t.ExpiresAt) {
			t.Status = models.StatusFailed
			failed = append(failed, *t)
		}
	}
	return failed, nil
}

func (s *memTransferStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

type memSignalStore struct {
	mu         sync.Mutex
	latest     map[string]*models.SignalMessage
	candidates map[string][]models.SignalMessage
	all        []models.SignalMessage
	purged     []uuid.UUID
}

func newMemSignalStore() *memSignalStore {
	return &memSignalStore{
		latest:     make(map[string]*models.SignalMessage),
		candidates: make(map[string][]models.SignalMessage),
	}
}

func sigKey(transferID uuid.UUID, st models.SignalType, senderID uuid.UUID) string {
	return transferID.String() + "|" + string(st) + "|" + senderID.String()
}

func (s *memSignalStore) Put(_ context.Context, msg *models.SignalMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, *msg)
	if msg.Type == models.SignalCandidate {
		key := msg.TransferID.String() + "|" + msg.SenderID.String()
		s.candidates[key] = append(s.candidates[key], *msg)
		return nil
	}
	cp := *msg
	s.latest[sigKey(msg.TransferID, msg.Type, msg.SenderID)] = &cp
	return nil
}

func (s *memSignalStore) Latest(_ context.Context, transferID uuid.UUID, st models.SignalType, senderID uuid.UUID) (*models.SignalMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.latest[sigKey(transferID, st, senderID)]
	if !ok || msg.Expired(time.Now()) {
		return nil, nil
	}
	cp := *msg
	return &cp, nil
}

func (s *memSignalStore) Candidates(_ context.Context, transferID, senderID uuid.UUID) ([]models.SignalMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []models.SignalMessage
	for _, msg := range s.candidates[transferID.String()+"|"+senderID.String()] {
		if !msg.Expired(now) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *memSignalStore) Purge(_ context.Context, transferID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purged = append(s.purged, transferID)
	return nil
}

type memUserStore struct {
	byID    map[uuid.UUID]*models.User
	byEmail map[string]*models.User
}

func newMemUserStore(users ...*models.User) *memUserStore {
	s := &memUserStore{
		byID:    make(map[uuid.UUID]*models.User),
		byEmail: make(map[string]*models.User),
	}
	for _, u := range users {
		s.byID[u.ID] = u
		s.byEmail[u.Email] = u
	}
	return s
}

func (s *memUserStore) ByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return u, nil
}

func (s *memUserStore) ByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := s.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("%w: no user with that email", ErrNotFound)
	}
	return u, nil
}

type fakeBlobStore struct {
	exists     bool
	presignErr error
}

func (b *fakeBlobStore) PresignPut(_ context.Context, key string, _ time.Duration) (string, error) {
	if b.presignErr != nil {
		return "", b.presignErr
	}
	return "https://blobs.test/put/" + key, nil
}

func (b *fakeBlobStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://blobs.test/get/" + key, nil
}

func (b *fakeBlobStore) Exists(_ context.Context, _ string) (bool, error) {
	return b.exists, nil
}

type notice struct {
	target string
	event  string
	data   any
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) NotifyUser(userID uuid.UUID, event string, data any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{target: "user:" + userID.String(), event: event, data: data})
}

func (n *recordingNotifier) NotifyTransfer(transferID uuid.UUID, event string, data any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{target: "room:" + transferID.String(), event: event, data: data})
}

func (n *recordingNotifier) count(target, event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, nt := range n.notices {
		if nt.target == target && nt.event == event {
			c++
		}
	}
	return c
}

// ---- fixture ----

type fixture struct {
	svc       *Service
	transfers *memTransferStore
	signals   *memSignalStore
	blobs     *fakeBlobStore
	notifier  *recordingNotifier
	alice     *models.User // sender in most tests
	bob       *models.User // recipient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	alice := &models.User{ID: uuid.New(), Username: "alice", Email: "alice@example.com"}
	bob := &models.User{ID: uuid.New(), Username: "bob", Email: "bob@example.com"}

	transfers := newMemTransferStore()
	signals := newMemSignalStore()
	blobs := &fakeBlobStore{exists: true}
	notifier := &recordingNotifier{}

	svc := NewService(transfers, signals, newMemUserStore(alice, bob), blobs, notifier)
	return &fixture{
		svc:       svc,
		transfers: transfers,
		signals:   signals,
		blobs:     blobs,
		notifier:  notifier,
		alice:     alice,
		bob:       bob,
	}
}

func (f *fixture) createP2P(t *testing.T) *models.Transfer {
	t.Helper()
	res, err := f.svc.Create(context.Background(), f.alice.ID, CreateInput{
		FileName:       "a.png",
		FileSize:       1024,
		FileType:       "image/png",
		RecipientEmail: f.bob.Email,
	})
	if err != nil {
		t.Fatalf("create transfer: %v", err)
	}
	return res.Transfer
}

var testSDP = json.RawMessage(`{"type":"offer","sdp":"v=0..."}`)

// ---- create ----

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.alice.ID, CreateInput{FileSize: 1, FileType: "x", RecipientEmail: f.bob.Email})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("missing fileName: want ErrValidation, got %v", err)
	}

	_, err = f.svc.Create(ctx, f.alice.ID, CreateInput{FileName: "a", FileSize: -1, FileType: "x", RecipientEmail: f.bob.Email})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("negative fileSize: want ErrValidation, got %v", err)
	}

	_, err = f.svc.Create(ctx, f.alice.ID, CreateInput{FileName: "a", FileSize: 1, FileType: "x", RecipientEmail: "ghost@example.com"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown recipient: want ErrNotFound, got %v", err)
	}

	// Sending to yourself is refused at creation.
	_, err = f.svc.Create(ctx, f.alice.ID, CreateInput{FileName: "a", FileSize: 1, FileType: "x", RecipientEmail: f.alice.Email})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("self-send: want ErrValidation, got %v", err)
	}

	_, err = f.svc.Create(ctx, f.alice.ID, CreateInput{FileName: "a", FileSize: 1, FileType: "x", RecipientEmail: f.bob.Email, Method: "CARRIER_PIGEON"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("unknown method: want ErrValidation, got %v", err)
	}
}

func TestCreateP2P(t *testing.T) {
	f := newFixture(t)
	tr := f.createP2P(t)

	if tr.Status != models.StatusPending {
		t.Errorf("status = %s, want PENDING", tr.Status)
	}
	if tr.Method != models.MethodP2P {
		t.Errorf("method = %s, want P2P", tr.Method)
	}
	if !tr.ExpiresAt.After(tr.CreatedAt) {
		t.Error("expiresAt must be after createdAt")
	}
	if got := f.notifier.count("user:"+f.bob.ID.String(), EventNewTransfer); got != 1 {
		t.Errorf("recipient new-transfer notifications = %d, want 1", got)
	}
}

func TestCreateCloud(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Create(context.Background(), f.alice.ID, CreateInput{
		FileName:       "report.pdf",
		FileSize:       2048,
		FileType:       "application/pdf",
		RecipientEmail: f.bob.Email,
		Method:         models.MethodCloud,
	})
	if err != nil {
		t.Fatalf("create cloud transfer: %v", err)
	}
	tr := res.Transfer

	if tr.Status != models.StatusCompleted {
		t.Errorf("cloud transfer status = %s, want COMPLETED", tr.Status)
	}
	if tr.StorageKey == "" {
		t.Error("cloud transfer must carry a storage key")
	}
	if res.UploadURL == "" {
		t.Error("cloud transfer must return an upload URL")
	}
	if tr.CompletedAt == nil {
		t.Error("cloud transfer must stamp completedAt")
	}
}

func TestCreateCloudPresignFailure(t *testing.T) {
	f := newFixture(t)
	f.blobs.presignErr = errors.New("r2 unreachable")

	_, err := f.svc.Create(context.Background(), f.alice.ID, CreateInput{
		FileName:       "report.pdf",
		FileSize:       2048,
		FileType:       "application/pdf",
		RecipientEmail: f.bob.Email,
		Method:         models.MethodCloud,
	})
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("want ErrUpstream, got %v", err)
	}
}

// ---- access control ----

func TestResolveRoles(t *testing.T) {
	f := newFixture(t)
	tr := f.createP2P(t)
	ctx := context.Background()

	_, role, err := f.svc.Resolve(ctx, tr.ID, f.alice.ID)
	if err != nil || role != RoleSender {
		t.Errorf("sender resolve = %s, %v", role, err)
	}
	_, role, err = f.svc.Resolve(ctx, tr.ID, f.bob.ID)
	if err != nil || role != RoleRecipient {
		t.Errorf("recipient resolve = %s, %v", role, err)
	}

	_, _, err = f.svc.Resolve(ctx, tr.ID, uuid.New())
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("outsider resolve: want ErrForbidden, got %v", err)
	}
	_, _, err = f.svc.Resolve(ctx, uuid.New(), f.alice.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown transfer: want ErrNotFound, got %v", err)
	}
}

// ---- lifecycle ----

func TestStatusTransitions(t *testing.T) {
	f := newFixture(t)
	tr := f.createP2P(t)
	ctx := context.Background()

	// Recipient accepts.
	got, err := f.svc.UpdateStatus(ctx, tr.ID, f.bob.ID, models.StatusAccepted)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.Status != models.StatusAccepted {
		t.Errorf("status = %s, want ACCEPTED", got.Status)
	}

	// Sender starts transferring.
	if _, err := f.svc.UpdateStatus(ctx, tr.ID, f.alice.ID, models.StatusTransferring); err != nil {
		t.Fatalf("start transferring: %v", err)
	}

	// Backwards moves are rejected.
	_, err = f.svc.UpdateStatus(ctx, tr.ID, f.alice.ID, models.StatusPending)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("TRANSFERRING -> PENDING: want ErrInvalidTransition, got %v", err)
	}

	// Garbage statuses are rejected before any lookup.
	_, err = f.svc.UpdateStatus(ctx, tr.ID, f.alice.ID, "SHIPPED")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("unknown status: want ErrValidation, got %v", err)
	}

	// Both participants get told about each change.
	for _, user := range []uuid.UUID{f.alice.ID, f.bob.ID} {
		if got := f.notifier.count("user:"+user.String(), EventStatusChanged); got != 2 {
			t.Errorf("status-changed notifications for %s = %d, want 2", user, got)
		}
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Either participant may cancel a PENDING transfer.
	tr := f.createP2P(t)
	if err := f.svc.Cancel(ctx, tr.ID, f.bob.ID); err != nil {
		t.Fatalf("recipient cancel: %v", err)
	}
	got, _, err := f.svc.Resolve(ctx, tr.ID, f.alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}

	// ACCEPTED transfers are still cancellable.
	tr = f.createP2P(t)
	if _, err := f.svc.UpdateStatus(ctx, tr.ID, f.bob.ID, models.StatusAccepted); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Cancel(ctx, tr.ID, f.alice.ID); err != nil {
		t.Errorf("cancel from ACCEPTED: %v", err)
	}

	// Finished transfers are not.
	tr = f.createP2P(t)
	if err := f.svc.Cancel(ctx, tr.ID, f.alice.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Cancel(ctx, tr.ID, f.alice.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double cancel: want ErrInvalidTransition, got %v", err)
	}
}

func TestProgress(t *testing.T) {
	f := newFixture(t)
	tr := f.createP2P(t)
	ctx := context.Background()

	// Progress reporting requires an active transfer.
	_, err := f.svc.UpdateProgress(ctx, tr.ID, f.alice.ID, 10)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("progress while PENDING: want ErrInvalidTransition, got %v", err)
	}

	if _, err := f.svc.UpdateStatus(ctx, tr.ID, f.bob.ID, models.StatusAccepted); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.UpdateStatus(ctx, tr.ID, f.alice.ID, models.StatusTransferring); err != nil {
		t.Fatal(err)
	}

	// Only the sender reports progress.
	_, err = f.svc.UpdateProgress(ctx, tr.ID, f.bob.ID, 10)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("recipient progress: want ErrForbidden, got %v", err)
	}

	// Out-of-range values are rejected.
	if _, err := f.svc.UpdateProgress(ctx, tr.ID, f.alice.ID, 101); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("progress 101: want ErrInvalidRequest, got %v", err)
	}
	if _, err := f.svc.UpdateProgress(ctx, tr.ID, f.alice.ID, -1); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("progress -1: want ErrInvalidRequest, got %v", err)
	}

	if _, err := f.svc.UpdateProgress(ctx, tr.ID, f.alice.ID, 50); err != nil {
		t.Fatalf("progress 50: %v", err)
	}

	// Progress never goes backwards.
	if _, err := f.svc.UpdateProgress(ctx, tr.ID, f.alice.ID, 40); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("regressing progress: want ErrInvalidRequest, got %v", err)
	}

	// Hitting 100 completes the transfer.
	got, err := f.svc.UpdateProgress(ctx, tr.ID, f.alice.ID, 100)
	if err != nil {
		t.Fatalf("progress 100: %v", err)
	}
	if got.Status != models.StatusCompleted {
		t.Errorf("status after progress 100 = %s, want COMPLETED", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("completedAt not stamped")
	}
}

// ---- signal relay ----

func TestSignalHandshake(t *testing.T) {
	f := newFixture(t)
	tr := f.createP2P(t)
	ctx := context.Background()

	// Alice posts an offer; Bob is notified without the payload.
	msg, err := f.svc.PostSignal(ctx, tr.ID, f.alice.ID, models.SignalOffer, testSDP, nil)
	if err != nil {
		t.Fatalf("post offer: %v", err)
	}
	if msg.RecipientID != f.bob.ID {
		t.Errorf("offer recipient = %s, want bob", msg.RecipientID)
	}
	if got := f.notifier.count("user:"+f.bob.ID.String(), EventSignalAvailable); got != 1 {
		t.Errorf("signal-available notifications = %d, want 1", got)
	}

	// Bob fetches the offer.
	msgs, err := f.svc.FetchSignal(ctx, tr.ID, f.bob.ID, models.SignalOffer)
	if err != nil {
		t.Fatalf("fetch offer: %v", err)
	}
	if len(msgs) != 1 || string(msgs[0].SDP) != string(testSDP) {
		t.Errorf("fetched offer = %+v", msgs)
	}

	// Alice, as the offer's author, may not fetch it.
	if _, err := f.svc.FetchSignal(ctx, tr.ID, f.alice.ID, models.SignalOffer); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("sender fetching offer: want ErrInvalidRequest, got %v", err)
	}

	// Bob answers; only Alice may fetch it.
	if _, err := f.svc.PostSignal(ctx, tr.ID, f.bob.ID, models.SignalAnswer, testSDP, nil); err != nil {
		t.Fatalf("post answer: %v", err)
	}
	if _, err := f.svc.FetchSignal(ctx, tr.ID, f.bob.ID, models.SignalAnswer); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("recipient fetching answer: want ErrInvalidRequest, got %v", err)
	}
	if _, err := f.svc.FetchSignal(ctx, tr.ID, f.alice.ID, models.SignalAnswer); err != nil {
		t.Errorf("sender fetching answer: %v", err)
	}

	// Every message on the transfer involves exactly its two participants.
	for _, m := range f.signals.all {
		pair := map[uuid.UUID]bool{m.SenderID: true, m.RecipientID: true}
		if !pair[f.alice.ID] || !pair[f.bob.ID] || len(pair) != 2 {
			t.Errorf("message %s involves %s -> %s, want alice/bob pair", m.ID, m.SenderID, m.RecipientID)
		}
	}
}

func TestSignalValidation(t *testing.T) {
	f := newFixture(t)
	tr := f.createP2P(t)
	ctx := context.Background()

	if _, err := f.svc.PostSignal(ctx, tr.ID, f.alice.ID, "smoke-signal", testSDP, nil); !errors.Is(err, ErrValidation) {
		t.Errorf("bad type: want ErrValidation, got %v", err)
	}
	if _, err := f.svc.PostSignal(ctx, tr.ID, f.alice.ID, models.SignalOffer, nil, nil); !errors.Is(err, ErrValidation) {
		t.Errorf("offer without sdp: want ErrValidation, got %v", err)
	}
	if _, err := f.svc.PostSignal(ctx, tr.ID, f.alice.ID, models.SignalCandidate, nil, nil); !errors.Is(err, ErrValidation) {
		t.Errorf("candidate without payload: want ErrValidation, got %v", err)
	}
	// Offers flow sender -> recipient only.
	if _, err := f.svc.PostSignal(ctx, tr.ID, f.bob.ID, models.SignalOffer, testSDP, nil); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("recipient posting offer: want ErrInvalidRequest, got %v", err)
	}
	if _, err := f.svc.FetchSignal(ctx, tr.ID, f.alice.ID, "smoke-signal"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("fetch bad type: want ErrInvalidRequest, got %v", err)
	}
	// Nothing posted yet: offer fetch reports absence.
	if _, err := f.svc.FetchSignal(ctx, tr.ID, f.bob.ID, models.SignalOffer); !errors.Is(err, ErrNotFound) {
		t.Errorf("fetch before post: want ErrNotFound, got %v", err)
	}
}

func TestOfferSupersedes(t *testing.T) {
	f := newFixture(t)
	tr := f.createP2P(t)
	ctx := context.Background()

	first := json.RawMessage(`{"sdp":"first"}`)
	second := json.RawMessage(`{"sdp":"second"}`)
	if _, err := f.svc.PostSignal(ctx, tr.ID, f.alice.ID, models.SignalOffer, first, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.PostSignal(ctx, tr.ID, f.alice.ID, models.SignalOffer, second, nil); err != nil {
		t.Fatal(err)
	}

	msgs, err := f.svc.FetchSignal(ctx, tr.ID, f.bob.ID, models.SignalOffer)
	if err != nil {
		t.Fatal(err)
	}
	if string(msgs[0].SDP) != string(second) {
		t.Errorf("fetched offer = %s, want the re-posted one", msgs[0].SDP)
	}
}

func TestCandidatesOrderedAndRefetchable(t *testing.T) {
	f := newFixture(t)
	tr := f.createP2P(t)
	ctx := context.Background()

	const n = 5
	for i := 0; i < n; i++ {
		cand := json.RawMessage(fmt.Sprintf(`{"candidate":"cand-%d"}`, i))
		if _, err := f.svc.PostSignal(ctx, tr.ID, f.bob.ID, models.SignalCandidate, nil, cand); err != nil {
			t.Fatalf("post candidate %d: %v", i, err)
		}
	}

	msgs, err := f.svc.FetchSignal(ctx, tr.ID, f.alice.ID, models.SignalCandidate)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != n {
		t.Fatalf("candidates = %d, want %d", len(msgs), n)
	}
	for i, m := range msgs {
		if want := fmt.Sprintf(`{"candidate":"cand-%d"}`, i); string(m.Candidate) != want {
			t.Errorf("candidate[%d] = %s, want %s", i, m.Candidate, want)
		}
		if i > 0 && m.Timestamp.Before(msgs[i-1].Timestamp) {
			t.Errorf("candidate[%d] out of order", i)
		}
	}

	// A second fetch sees the same candidates again; consumers tolerate
	// duplicates because reapplying a candidate is harmless.
	again, err := f.svc.FetchSignal(ctx, tr.ID, f.alice.ID, models.SignalCandidate)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != n {
		t.Errorf("refetch candidates = %d, want %d", len(again), n)
	}
}

func TestSignalExpiry(t *testing.T) {
	f := newFixture(t)
	tr := f.createP2P(t)
	ctx := context.Background()

	// Post with a clock set two hours back so the message's one-hour
	// retention window has already elapsed.
	f.svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	if _, err := f.svc.PostSignal(ctx, tr.ID, f.alice.ID, models.SignalOffer, testSDP, nil); err != nil {
		t.Fatal(err)
	}
	cand := json.RawMessage(`{"candidate":"old"}`)
	if _, err := f.svc.PostSignal(ctx, tr.ID, f.alice.ID, models.SignalCandidate, nil, cand); err != nil {
		t.Fatal(err)
	}
	f.svc.now = time.Now

	if _, err := f.svc.FetchSignal(ctx, tr.ID, f.bob.ID, models.SignalOffer); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired offer: want ErrNotFound, got %v", err)
	}
	msgs, err := f.svc.FetchSignal(ctx, tr.ID, f.bob.ID, models.SignalCandidate)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("expired candidates still returned: %d", len(msgs))
	}
}

func TestSignalingStopsOnTerminalTransfer(t *testing.T) {
	f := newFixture(t)
	tr := f.createP2P(t)
	ctx := context.Background()

	if err := f.svc.Cancel(ctx, tr.ID, f.alice.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.PostSignal(ctx, tr.ID, f.alice.ID, models.SignalOffer, testSDP, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("post after cancel: want ErrInvalidTransition, got %v", err)
	}
	if _, err := f.svc.FetchSignal(ctx, tr.ID, f.bob.ID, models.SignalOffer); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("fetch after cancel: want ErrInvalidTransition, got %v", err)
	}
}

func TestSignalingStopsOnExpiredTransfer(t *testing.T) {
	f := newFixture(t)
	tr := f.createP2P(t)
	ctx := context.Background()

	f.svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	if _, err := f.svc.PostSignal(ctx, tr.ID, f.alice.ID, models.SignalOffer, testSDP, nil); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("post on expired transfer: want ErrInvalidRequest, got %v", err)
	}
}

// ---- end-to-end negotiation ----

func TestFullNegotiationScenario(t *testing.T) {
	f := newFixture(t)
	tr := f.createP2P(t)
	ctx := context.Background()

	if _, err := f.svc.PostSignal(ctx, tr.ID, f.alice.ID, models.SignalOffer, testSDP, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.FetchSignal(ctx, tr.ID, f.bob.ID, models.SignalOffer); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.PostSignal(ctx, tr.ID, f.bob.ID, models.SignalAnswer, testSDP, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.FetchSignal(ctx, tr.ID, f.alice.ID, models.SignalAnswer); err != nil {
		t.Fatal(err)
	}
	cand := json.RawMessage(`{"candidate":"host"}`)
	if _, err := f.svc.PostSignal(ctx, tr.ID, f.alice.ID, models.SignalCandidate, nil, cand); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.PostSignal(ctx, tr.ID, f.bob.ID, models.SignalCandidate, nil, cand); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.UpdateStatus(ctx, tr.ID, f.bob.ID, models.StatusAccepted); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.UpdateStatus(ctx, tr.ID, f.alice.ID, models.StatusTransferring); err != nil {
		t.Fatal(err)
	}
	got, err := f.svc.UpdateProgress(ctx, tr.ID, f.alice.ID, 100)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusCompleted {
		t.Errorf("final status = %s, want COMPLETED", got.Status)
	}
}

// ---- cloud upload confirmation ----

func TestConfirmUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, f.alice.ID, CreateInput{
		FileName:       "report.pdf",
		FileSize:       2048,
		FileType:       "application/pdf",
		RecipientEmail: f.bob.Email,
		Method:         models.MethodCloud,
	})
	if err != nil {
		t.Fatal(err)
	}
	tr := res.Transfer

	if _, err := f.svc.ConfirmUpload(ctx, tr.ID, f.bob.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("recipient confirming upload: want ErrForbidden, got %v", err)
	}
	if _, err := f.svc.ConfirmUpload(ctx, tr.ID, f.alice.ID); err != nil {
		t.Errorf("confirm upload: %v", err)
	}

	url, err := f.svc.DownloadURL(ctx, tr.ID, f.bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(url, tr.StorageKey) {
		t.Errorf("download url %q does not reference the storage key", url)
	}

	// A missing object fails the transfer instead of leaving it posing as
	// delivered.
	f.blobs.exists = false
	res2, err := f.svc.Create(ctx, f.alice.ID, CreateInput{
		FileName:       "b.pdf",
		FileSize:       1,
		FileType:       "application/pdf",
		RecipientEmail: f.bob.Email,
		Method:         models.MethodCloud,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.ConfirmUpload(ctx, res2.Transfer.ID, f.alice.ID); !errors.Is(err, ErrUpstream) {
		t.Errorf("missing object: want ErrUpstream, got %v", err)
	}
	got, _, err := f.svc.Resolve(ctx, res2.Transfer.ID, f.alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusFailed {
		t.Errorf("status after missing object = %s, want FAILED", got.Status)
	}
}

func TestDownloadRequiresCloud(t *testing.T) {
	f := newFixture(t)
	tr := f.createP2P(t)
	if _, err := f.svc.DownloadURL(context.Background(), tr.ID, f.bob.ID); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("download on P2P transfer: want ErrInvalidRequest, got %v", err)
	}
}

// ---- expiry sweep ----

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A transfer created 25 hours ago with the default 24 hour horizon.
	f.svc.now = func() time.Time { return time.Now().Add(-25 * time.Hour) }
	tr := f.createP2P(t)
	f.svc.now = time.Now

	fresh := f.createP2P(t)

	n, err := f.svc.SweepExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}

	got, _, err := f.svc.Resolve(ctx, tr.ID, f.alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusFailed {
		t.Errorf("expired transfer status = %s, want FAILED", got.Status)
	}
	if len(f.signals.purged) != 1 || f.signals.purged[0] != tr.ID {
		t.Errorf("purged = %v, want [%s]", f.signals.purged, tr.ID)
	}

	stillPending, _, err := f.svc.Resolve(ctx, fresh.ID, f.alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stillPending.Status != models.StatusPending {
		t.Errorf("fresh transfer status = %s, want PENDING", stillPending.Status)
	}
}

// ---- pending listing ----

func TestPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr := f.createP2P(t)
	done := f.createP2P(t)
	if err := f.svc.Cancel(ctx, done.ID, f.alice.ID); err != nil {
		t.Fatal(err)
	}

	for _, user := range []uuid.UUID{f.alice.ID, f.bob.ID} {
		got, err := f.svc.Pending(ctx, user)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].ID != tr.ID {
			t.Errorf("pending for %s = %v, want just %s", user, got, tr.ID)
		}
	}
}
