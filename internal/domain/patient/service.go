package patient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/treatment-api/internal/platform/auth"
	"github.com/ehr/treatment-api/internal/platform/docstore"
)

// ListLimit caps GET /patient.
const ListLimit = 100

var (
	ErrNotFound         = errors.New("patient not found")
	ErrForbidden        = errors.New("patient belongs to another doctor")
	ErrUnexpectedStatus = errors.New("unexpected document store status")
)

// DuplicateError reports that a patient with the same identity exists.
type DuplicateError struct {
	ID string
}

func (e *DuplicateError) Error() string {
	return "Patient already exists! ID: " + e.ID
}

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "patient").Logger(),
		now:    time.Now,
	}
}

// List returns the caller's patients. An empty result is not an error.
func (s *Service) List(ctx context.Context, caller string) ([]*Patient, error) {
	patients, err := s.repo.ListByDoctor(ctx, caller, ListLimit)
	if err != nil {
		return nil, err
	}
	// The selector already filters by owner; a foreign first record means the
	// store returned something it should not have.
	if len(patients) > 0 && !auth.Owns(caller, patients[0]) {
		return nil, ErrForbidden
	}
	s.logger.Info().Str("doctor", caller).Int("count", len(patients)).Msg("patients listed")
	return patients, nil
}

func (s *Service) Get(ctx context.Context, caller, id string) (*Patient, error) {
	p, err := s.repo.Get(ctx, id)
	if docstore.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !auth.Owns(caller, p) {
		return nil, ErrForbidden
	}
	s.logger.Info().Str("patient", id).Msg("patient retrieved")
	return p, nil
}

// Create inserts a patient owned by caller unless one with the same
// identity already exists.
func (s *Service) Create(ctx context.Context, caller string, req CreateRequest) (*docstore.WriteResult, error) {
	existing, err := s.repo.FindByIdentity(ctx, req.Identity)
	if err != nil {
		return nil, fmt.Errorf("look up identity: %w", err)
	}
	if existing != nil {
		return nil, &DuplicateError{ID: existing.ID}
	}

	p := &Patient{
		Name:      req.Name,
		Identity:  req.Identity,
		Birth:     req.Birth,
		Gender:    req.Gender,
		Symptoms:  req.Symptoms,
		DoctorUID: caller,
		CreatedAt: Timestamp(s.now()),
	}
	res, err := s.repo.Insert(ctx, p)
	if err != nil {
		return nil, err
	}
	if res.Status != http.StatusCreated {
		return nil, ErrUnexpectedStatus
	}
	s.logger.Info().Str("patient", res.ID).Str("doctor", caller).Msg("patient created")
	return res, nil
}

// Update applies the non-empty fields of req. A new identity must not
// belong to another patient. A stale revision surfaces as a docstore
// conflict.
func (s *Service) Update(ctx context.Context, caller, id string, req UpdateRequest) (*docstore.WriteResult, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	if !auth.Owns(caller, p) {
		return nil, ErrForbidden
	}

	if req.Identity != "" && req.Identity != p.Identity {
		other, err := s.repo.FindByIdentity(ctx, req.Identity)
		if err != nil {
			return nil, fmt.Errorf("look up identity: %w", err)
		}
		if other != nil {
			return nil, &DuplicateError{ID: other.ID}
		}
	}

	p.apply(req)
	p.UpdatedAt = Timestamp(s.now())

	res, err := s.repo.Update(ctx, p)
	if err != nil {
		return nil, err
	}
	if res.Status != http.StatusCreated {
		return nil, ErrUnexpectedStatus
	}
	s.logger.Info().Str("patient", id).Msg("patient updated")
	return res, nil
}

// Delete removes the patient using the revision read just before.
func (s *Service) Delete(ctx context.Context, caller, id string) (*docstore.WriteResult, error) {
	p, err := s.repo.FindByID(ctx, id, docstore.IDField, docstore.RevField, "doctor_uid")
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	if !auth.Owns(caller, p) {
		return nil, ErrForbidden
	}

	res, err := s.repo.Delete(ctx, id, p.Rev)
	if err != nil {
		return nil, err
	}
	if res.Status != http.StatusOK {
		return nil, ErrUnexpectedStatus
	}
	s.logger.Info().Str("patient", id).Msg("patient deleted")
	return res, nil
}
