package treatment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/treatment-api/internal/domain/patient"
	"github.com/ehr/treatment-api/internal/platform/auth"
	"github.com/ehr/treatment-api/internal/platform/blobstore"
)

var (
	ErrAlreadyCreated   = errors.New("treatment already created")
	ErrForbidden        = errors.New("patient belongs to another doctor")
	ErrRecordNotFound   = errors.New("treatment record not found")
	ErrNoTreatmentFile  = errors.New("no treatment file")
	ErrUnexpectedStatus = errors.New("unexpected document store status")

	// ErrExistingLookup and ErrListing tag failures of the first step of
	// create and update so handlers can pick the matching response.
	ErrExistingLookup = errors.New("existing treatment lookup")
	ErrListing        = errors.New("bucket listing")
)

// Upload is a received treatment file.
type Upload struct {
	Data []byte
	Size int64
}

type Service struct {
	records  Repository
	patients PatientReader
	objects  blobstore.Store
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(records Repository, patients PatientReader, objects blobstore.Store, logger zerolog.Logger) *Service {
	return &Service{
		records:  records,
		patients: patients,
		objects:  objects,
		logger:   logger.With().Str("component", "treatment").Logger(),
		now:      time.Now,
	}
}

// GetFile returns the file the caller wrote for patientID.
func (s *Service) GetFile(ctx context.Context, caller, patientID string) (*blobstore.Object, error) {
	obj, err := s.objects.GetItem(ctx, ObjectKey(patientID, caller))
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient", patientID).Str("doctor", caller).Msg("treatment file retrieved")
	return obj, nil
}

// Create records the caller's treatment of patientID. The file is written
// first; if the record insert then fails the file is deleted again.
func (s *Service) Create(ctx context.Context, caller, patientID, cid string, up Upload) error {
	existing, err := s.records.FindByPatient(ctx, patientID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExistingLookup, err)
	}
	if existing != nil {
		if auth.Owns(caller, existing) {
			return ErrAlreadyCreated
		}
		return ErrForbidden
	}

	p, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return err
	}
	if !auth.Owns(caller, p) {
		return ErrForbidden
	}

	rec := &Record{
		DoctorUID:     caller,
		Patient:       p,
		Cid:           cid,
		FileTreatment: NewFileTreatment(patientID, up.Size),
		Cured:         InTreatment,
		CreatedAt:     patient.Timestamp(s.now()),
	}

	key := ObjectKey(patientID, caller)
	if err := s.objects.CreateTextFile(ctx, key, up.Data); err != nil {
		return err
	}

	res, err := s.records.Insert(ctx, rec)
	if err == nil && res.Status != http.StatusCreated {
		err = ErrUnexpectedStatus
	}
	if err != nil {
		s.compensate(ctx, key, nil)
		return err
	}

	s.logger.Info().Str("patient", patientID).Str("doctor", caller).Str("record", res.ID).Msg("treatment created")
	return nil
}

// Update replaces the caller's treatment file for patientID and records the
// new cure status. If the record update fails the previous file content is
// restored.
func (s *Service) Update(ctx context.Context, caller, patientID string, cured CureStatus, up Upload) (*Record, error) {
	key := ObjectKey(patientID, caller)

	listing, err := s.objects.GetObjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListing, err)
	}
	if !blobstore.HasKey(listing, key) {
		return nil, ErrNoTreatmentFile
	}

	rec, err := s.records.FindByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRecordNotFound
	}
	if !auth.Owns(caller, rec) {
		return nil, ErrForbidden
	}

	previous, err := s.objects.GetItem(ctx, key)
	if err != nil && !blobstore.IsNoSuchKey(err) {
		return nil, err
	}

	rec.FileTreatment = NewFileTreatment(patientID, up.Size)
	rec.Cured = cured
	rec.UpdatedAt = patient.Timestamp(s.now())

	if err := s.objects.UpdateItem(ctx, key, up.Data); err != nil {
		return nil, err
	}

	res, err := s.records.Update(ctx, rec)
	if err == nil && res.Status != http.StatusCreated {
		err = ErrUnexpectedStatus
	}
	if err != nil {
		s.compensate(ctx, key, previous)
		return nil, err
	}

	rec.Rev = res.Rev
	s.logger.Info().Str("patient", patientID).Str("doctor", caller).Str("cured", string(cured)).Msg("treatment updated")
	return rec, nil
}

// compensate undoes a file write whose record write failed: previous is
// restored, or the object removed when there was none. A failure here is
// logged and the record error is still returned.
func (s *Service) compensate(ctx context.Context, key string, previous *blobstore.Object) {
	// Runs even when the request has been cancelled.
	ctx = context.WithoutCancel(ctx)

	var err error
	action := "delete"
	if previous != nil {
		action = "restore"
		err = s.objects.UpdateItem(ctx, key, previous.Body)
	} else {
		err = s.objects.DeleteItem(ctx, key)
	}

	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Str("action", action).Msg("treatment file compensation failed")
		return
	}
	s.logger.Info().Str("key", key).Str("action", action).Msg("treatment file compensated")
}
