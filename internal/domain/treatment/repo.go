package treatment

import (
	"context"

	"github.com/ehr/treatment-api/internal/domain/patient"
	"github.com/ehr/treatment-api/internal/platform/docstore"
)

// Repository persists treatment records.
type Repository interface {
	// FindByPatient returns the record for patientID, or (nil, nil).
	FindByPatient(ctx context.Context, patientID string) (*Record, error)
	Insert(ctx context.Context, r *Record) (*docstore.WriteResult, error)
	Update(ctx context.Context, r *Record) (*docstore.WriteResult, error)
	Query(ctx context.Context, sel docstore.Selector, fields []string, limit int) ([]docstore.Document, error)
}

// PatientReader is the part of the patient repository a treatment needs.
type PatientReader interface {
	Get(ctx context.Context, id string) (*patient.Patient, error)
}

type docRepo struct {
	store docstore.Store
}

func NewRepo(store docstore.Store) Repository {
	return &docRepo{store: store}
}

func (r *docRepo) FindByPatient(ctx context.Context, patientID string) (*Record, error) {
	res, err := r.store.Query(ctx, docstore.Selector{"patient._id": patientID}, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(res.Docs) == 0 {
		return nil, nil
	}
	return fromDocument(res.Docs[0])
}

func (r *docRepo) Insert(ctx context.Context, rec *Record) (*docstore.WriteResult, error) {
	doc, err := toDocument(rec)
	if err != nil {
		return nil, err
	}
	return r.store.Insert(ctx, doc)
}

func (r *docRepo) Update(ctx context.Context, rec *Record) (*docstore.WriteResult, error) {
	doc, err := toDocument(rec)
	if err != nil {
		return nil, err
	}
	return r.store.Update(ctx, rec.ID, doc)
}

func (r *docRepo) Query(ctx context.Context, sel docstore.Selector, fields []string, limit int) ([]docstore.Document, error) {
	res, err := r.store.Query(ctx, sel, fields, limit)
	if err != nil {
		return nil, err
	}
	return res.Docs, nil
}
