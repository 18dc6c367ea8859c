package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/beamdrop/beamdrop/internal/models"
)

const (
	// DefaultSignalTTL bounds how long a posted signal stays fetchable.
	DefaultSignalTTL = time.Hour
	// DefaultTransferTTL bounds how long a transfer accepts new signaling.
	DefaultTransferTTL = 24 * time.Hour
	// presignTTL bounds CLOUD upload/download links.
	presignTTL = 15 * time.Minute
)

// Service implements the transfer lifecycle and the signal relay protocol
// over pluggable stores. All methods resolve the caller's role against the
// transfer record before acting; notifications are emitted only after the
// corresponding write has been committed.
type Service struct {
	transfers TransferStore
	signals   SignalStore
	users     UserStore
	blobs     BlobStore
	notify    Notifier

	signalTTL   time.Duration
	transferTTL time.Duration
	now         func() time.Time
}

func NewService(transfers TransferStore, signals SignalStore, users UserStore, blobs BlobStore, notify Notifier) *Service {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &Service{
		transfers:   transfers,
		signals:     signals,
		users:       users,
		blobs:       blobs,
		notify:      notify,
		signalTTL:   DefaultSignalTTL,
		transferTTL: DefaultTransferTTL,
		now:         time.Now,
	}
}

type CreateInput struct {
	FileName       string
	FileSize       int64
	FileType       string
	RecipientEmail string
	Method         models.TransferMethod
}

type CreateResult struct {
	Transfer *models.Transfer
	// UploadURL is a presigned PUT link, set for CLOUD transfers only.
	UploadURL string
}

// Create registers a new transfer from senderID. P2P transfers start
// PENDING and wait for negotiation; CLOUD transfers get a presigned upload
// link and skip the negotiation states entirely.
func (s *Service) Create(ctx context.Context, senderID uuid.UUID, in CreateInput) (*CreateResult, error) {
	if in.FileName == "" || in.FileType == "" || in.RecipientEmail == "" {
		return nil, fmt.Errorf("%w: fileName, fileType and recipient are required", ErrValidation)
	}
	if in.FileSize < 0 {
		return nil, fmt.Errorf("%w: fileSize must be non-negative", ErrValidation)
	}
	if in.Method == "" {
		in.Method = models.MethodP2P
	}
	if in.Method != models.MethodP2P && in.Method != models.MethodCloud {
		return nil, fmt.Errorf("%w: unknown transfer method %q", ErrValidation, in.Method)
	}

	recipient, err := s.users.ByEmail(ctx, in.RecipientEmail)
	if err != nil {
		return nil, fmt.Errorf("recipient %q: %w", in.RecipientEmail, err)
	}
	if recipient.ID == senderID {
		return nil, fmt.Errorf("%w: cannot send a file to yourself", ErrValidation)
	}
	sender, err := s.users.ByID(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}

	now := s.now()
	t := &models.Transfer{
		ID:          uuid.New(),
		FileName:    in.FileName,
		FileSize:    in.FileSize,
		FileType:    in.FileType,
		SenderID:    senderID,
		RecipientID: recipient.ID,
		Method:      in.Method,
		Status:      models.StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.transferTTL),
	}

	res := &CreateResult{Transfer: t}
	if in.Method == models.MethodCloud {
		// No negotiation happens for cloud relays: the blob store is
		// engaged up front and the record lands COMPLETED. ConfirmUpload
		// can still flip it to FAILED if the object never shows up.
		t.StorageKey = fmt.Sprintf("transfers/%s/%s", t.ID, in.FileName)
		url, err := s.blobs.PresignPut(ctx, t.StorageKey, presignTTL)
		if err != nil {
			return nil, fmt.Errorf("%w: presign upload: %v", ErrUpstream, err)
		}
		t.Status = models.StatusCompleted
		t.CompletedAt = &now
		res.UploadURL = url
	}

	if err := s.transfers.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create transfer: %w", err)
	}

	s.notify.NotifyUser(recipient.ID, EventNewTransfer, NewTransferEvent{
		TransferID: t.ID,
		Sender:     sender.Email,
		FileName:   t.FileName,
		FileSize:   t.FileSize,
	})
	return res, nil
}

// Resolve is the access-control entry point: it loads the transfer and
// derives the caller's role, failing with ErrNotFound or ErrForbidden.
// Every signaling and status-mutating operation goes through it.
func (s *Service) Resolve(ctx context.Context, transferID, callerID uuid.UUID) (*models.Transfer, Role, error) {
	t, err := s.transfers.Get(ctx, transferID)
	if err != nil {
		return nil, "", err
	}
	role, err := ParticipantRole(t, callerID)
	if err != nil {
		return nil, "", err
	}
	return t, role, nil
}

// CanJoin authorizes attaching to a transfer's real-time room: only the
// two participants may listen in.
func (s *Service) CanJoin(ctx context.Context, transferID, userID uuid.UUID) error {
	_, _, err := s.Resolve(ctx, transferID, userID)
	return err
}

// Pending lists the caller's PENDING transfers, newest first.
func (s *Service) Pending(ctx context.Context, callerID uuid.UUID) ([]models.Transfer, error) {
	return s.transfers.PendingFor(ctx, callerID)
}

// UpdateStatus moves the transfer along the lifecycle graph. Either
// participant may drive a legal transition; illegal ones fail with
// ErrInvalidTransition regardless of who asks.
func (s *Service) UpdateStatus(ctx context.Context, transferID, callerID uuid.UUID, to models.TransferStatus) (*models.Transfer, error) {
	switch to {
	case models.StatusPending, models.StatusAccepted, models.StatusTransferring,
		models.StatusCompleted, models.StatusFailed, models.StatusCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}

	t, _, err := s.Resolve(ctx, transferID, callerID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(t.Status, to); err != nil {
		return nil, err
	}

	var completedAt *time.Time
	if to == models.StatusCompleted {
		now := s.now()
		completedAt = &now
	}
	ok, err := s.transfers.SetStatus(ctx, transferID, t.Status, to, completedAt)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: transfer changed concurrently", ErrInvalidTransition)
	}
	t.Status = to
	t.CompletedAt = completedAt

	s.broadcastStatus(t)
	return t, nil
}

// UpdateProgress records how far along the sender is. Sender only, active
// states only, and never backwards. Hitting 100 completes the transfer.
func (s *Service) UpdateProgress(ctx context.Context, transferID, callerID uuid.UUID, progress float64) (*models.Transfer, error) {
	if progress < 0 || progress > 100 {
		return nil, fmt.Errorf("%w: progress must be between 0 and 100", ErrInvalidRequest)
	}

	t, role, err := s.Resolve(ctx, transferID, callerID)
	if err != nil {
		return nil, err
	}
	if role != RoleSender {
		return nil, fmt.Errorf("%w: only the sender reports progress", ErrForbidden)
	}
	if t.Status != models.StatusAccepted && t.Status != models.StatusTransferring {
		return nil, fmt.Errorf("%w: cannot report progress while %s", ErrInvalidTransition, t.Status)
	}

	ok, err := s.transfers.SetProgress(ctx, transferID, t.Status, progress)
	if err != nil {
		return nil, fmt.Errorf("update progress: %w", err)
	}
	if !ok {
		// Either the status moved underneath us or the reported value went
		// backwards; re-read to tell the two apart.
		cur, gerr := s.transfers.Get(ctx, transferID)
		if gerr == nil && cur.Status == t.Status {
			return nil, fmt.Errorf("%w: progress cannot decrease", ErrInvalidRequest)
		}
		return nil, fmt.Errorf("%w: transfer changed concurrently", ErrInvalidTransition)
	}
	t.Progress = progress

	s.notifyBoth(t, EventProgress, ProgressEvent{TransferID: t.ID, Progress: progress})

	if progress == 100 {
		// Auto-completion is driven by the progress rule, not the caller,
		// so it bypasses the user-facing graph check.
		now := s.now()
		if ok, err := s.transfers.SetStatus(ctx, transferID, t.Status, models.StatusCompleted, &now); err != nil {
			return nil, fmt.Errorf("complete transfer: %w", err)
		} else if ok {
			t.Status = models.StatusCompleted
			t.CompletedAt = &now
			s.broadcastStatus(t)
		}
	}
	return t, nil
}

// Cancel ends a not-yet-finished transfer. Either participant may cancel
// while the transfer is PENDING, ACCEPTED or TRANSFERRING.
func (s *Service) Cancel(ctx context.Context, transferID, callerID uuid.UUID) error {
	t, _, err := s.Resolve(ctx, transferID, callerID)
	if err != nil {
		return err
	}
	if err := checkTransition(t.Status, models.StatusCancelled); err != nil {
		return err
	}
	ok, err := s.transfers.SetStatus(ctx, transferID, t.Status, models.StatusCancelled, nil)
	if err != nil {
		return fmt.Errorf("cancel transfer: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: transfer changed concurrently", ErrInvalidTransition)
	}
	t.Status = models.StatusCancelled

	s.broadcastStatus(t)
	return nil
}

// PostSignal relays one unit of connection-setup data to the counterparty.
// The recipient is always computed from the caller's role, never taken
// from the request, so a participant cannot address anyone else.
func (s *Service) PostSignal(ctx context.Context, transferID, callerID uuid.UUID, st models.SignalType, sdp, candidate json.RawMessage) (*models.SignalMessage, error) {
	if !st.Valid() {
		return nil, fmt.Errorf("%w: unrecognized signal type %q", ErrValidation, st)
	}
	switch st {
	case models.SignalOffer, models.SignalAnswer:
		if len(sdp) == 0 {
			return nil, fmt.Errorf("%w: sdp is required for %s signals", ErrValidation, st)
		}
	case models.SignalCandidate:
		if len(candidate) == 0 {
			return nil, fmt.Errorf("%w: candidate is required for ice-candidate signals", ErrValidation)
		}
	}

	t, role, err := s.Resolve(ctx, transferID, callerID)
	if err != nil {
		return nil, err
	}
	if err := s.checkSignalable(t); err != nil {
		return nil, err
	}
	if err := checkPostDirection(st, role); err != nil {
		return nil, err
	}

	now := s.now()
	msg := &models.SignalMessage{
		ID:          uuid.New(),
		TransferID:  transferID,
		SenderID:    callerID,
		RecipientID: t.Peer(callerID),
		Type:        st,
		SDP:         sdp,
		Candidate:   candidate,
		Timestamp:   now,
		ExpiresAt:   now.Add(s.signalTTL),
	}
	if err := s.signals.Put(ctx, msg); err != nil {
		return nil, fmt.Errorf("store signal: %w", err)
	}

	s.notify.NotifyUser(msg.RecipientID, EventSignalAvailable, SignalAvailableEvent{
		TransferID: transferID,
		Type:       st,
		MessageID:  msg.ID,
	})
	return msg, nil
}

// FetchSignal retrieves counterparty signaling data, enforcing direction:
// only the recipient fetches offers, only the sender fetches answers, and
// either side fetches candidates. For offer/answer the result holds the
// single most recent live message; for ice-candidate, every live candidate
// in ascending creation order. Repeated fetches may return duplicates;
// candidates are idempotent to reapply.
func (s *Service) FetchSignal(ctx context.Context, transferID, callerID uuid.UUID, st models.SignalType) ([]models.SignalMessage, error) {
	if !st.Valid() {
		return nil, fmt.Errorf("%w: unrecognized signal type %q", ErrInvalidRequest, st)
	}

	t, role, err := s.Resolve(ctx, transferID, callerID)
	if err != nil {
		return nil, err
	}
	if err := s.checkSignalable(t); err != nil {
		return nil, err
	}
	if err := checkFetchDirection(st, role); err != nil {
		return nil, err
	}

	if st == models.SignalCandidate {
		return s.signals.Candidates(ctx, transferID, t.Peer(callerID))
	}

	author, _ := authorRole(st)
	authorID := t.SenderID
	if author == RoleRecipient {
		authorID = t.RecipientID
	}
	msg, err := s.signals.Latest(ctx, transferID, st, authorID)
	if err != nil {
		return nil, fmt.Errorf("fetch signal: %w", err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: no %s signal yet", ErrNotFound, st)
	}
	return []models.SignalMessage{*msg}, nil
}

// checkSignalable rejects signaling against terminal or expired transfers.
// CLOUD transfers land terminal at creation, so this also keeps signaling
// off the cloud path.
func (s *Service) checkSignalable(t *models.Transfer) error {
	if t.Status.Terminal() {
		return fmt.Errorf("%w: transfer already %s", ErrInvalidTransition, t.Status)
	}
	if s.now().After(t.ExpiresAt) {
		return fmt.Errorf("%w: transfer expired", ErrInvalidRequest)
	}
	return nil
}

// ConfirmUpload verifies that the sender actually put the object in the
// blob store. A missing object marks the transfer FAILED so it cannot
// pose as delivered forever.
func (s *Service) ConfirmUpload(ctx context.Context, transferID, callerID uuid.UUID) (*models.Transfer, error) {
	t, role, err := s.Resolve(ctx, transferID, callerID)
	if err != nil {
		return nil, err
	}
	if role != RoleSender {
		return nil, fmt.Errorf("%w: only the sender confirms uploads", ErrForbidden)
	}
	if t.Method != models.MethodCloud {
		return nil, fmt.Errorf("%w: transfer is not cloud-relayed", ErrInvalidRequest)
	}

	exists, err := s.blobs.Exists(ctx, t.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("%w: head object: %v", ErrUpstream, err)
	}
	if !exists {
		if ok, serr := s.transfers.SetStatus(ctx, transferID, t.Status, models.StatusFailed, nil); serr == nil && ok {
			t.Status = models.StatusFailed
			s.broadcastStatus(t)
		}
		return nil, fmt.Errorf("%w: object was never uploaded", ErrUpstream)
	}

	s.notify.NotifyUser(t.RecipientID, EventStatusChanged, StatusChangedEvent{
		TransferID: t.ID,
		Status:     t.Status,
	})
	return t, nil
}

// DownloadURL issues a presigned GET for a CLOUD transfer's object.
func (s *Service) DownloadURL(ctx context.Context, transferID, callerID uuid.UUID) (string, error) {
	t, _, err := s.Resolve(ctx, transferID, callerID)
	if err != nil {
		return "", err
	}
	if t.Method != models.MethodCloud {
		return "", fmt.Errorf("%w: transfer is not cloud-relayed", ErrInvalidRequest)
	}
	url, err := s.blobs.PresignGet(ctx, t.StorageKey, presignTTL)
	if err != nil {
		return "", fmt.Errorf("%w: presign download: %v", ErrUpstream, err)
	}
	return url, nil
}

// SweepExpired fails PENDING/ACCEPTED transfers past their expiry and
// drops their signaling data. Meant to run periodically.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.transfers.FailExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired: %w", err)
	}
	for i := range expired {
		t := &expired[i]
		t.Status = models.StatusFailed
		if err := s.signals.Purge(ctx, t.ID); err != nil {
			return 0, fmt.Errorf("purge signals for %s: %w", t.ID, err)
		}
		s.broadcastStatus(t)
	}
	return len(expired), nil
}

func (s *Service) broadcastStatus(t *models.Transfer) {
	ev := StatusChangedEvent{TransferID: t.ID, Status: t.Status}
	s.notifyBoth(t, EventStatusChanged, ev)
	s.notify.NotifyTransfer(t.ID, EventStatusChanged, ev)
}

func (s *Service) notifyBoth(t *models.Transfer, event string, data any) {
	s.notify.NotifyUser(t.SenderID, event, data)
	s.notify.NotifyUser(t.RecipientID, event, data)
}
