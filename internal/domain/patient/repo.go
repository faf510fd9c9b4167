package patient

import (
	"context"

	"github.com/ehr/treatment-api/internal/platform/docstore"
)

// Repository is patient persistence. Find* methods return (nil, nil) when
// nothing matches; Get reports a docstore not-found error instead.
type Repository interface {
	Get(ctx context.Context, id string) (*Patient, error)
	FindByID(ctx context.Context, id string, fields ...string) (*Patient, error)
	FindByIdentity(ctx context.Context, identity string) (*Patient, error)
	ListByDoctor(ctx context.Context, doctorUID string, limit int) ([]*Patient, error)
	Insert(ctx context.Context, p *Patient) (*docstore.WriteResult, error)
	Update(ctx context.Context, p *Patient) (*docstore.WriteResult, error)
	Delete(ctx context.Context, id, rev string) (*docstore.WriteResult, error)
}

type docRepo struct {
	store docstore.Store
}

// NewRepo stores patients in the given collection.
func NewRepo(store docstore.Store) Repository {
	return &docRepo{store: store}
}

func (r *docRepo) Get(ctx context.Context, id string) (*Patient, error) {
	doc, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromDocument(doc)
}

func (r *docRepo) FindByID(ctx context.Context, id string, fields ...string) (*Patient, error) {
	return r.findOne(ctx, docstore.Selector{docstore.IDField: id}, fields)
}

func (r *docRepo) FindByIdentity(ctx context.Context, identity string) (*Patient, error) {
	return r.findOne(ctx, docstore.Selector{"identity": identity}, []string{docstore.IDField})
}

func (r *docRepo) findOne(ctx context.Context, sel docstore.Selector, fields []string) (*Patient, error) {
	res, err := r.store.Query(ctx, sel, fields, 1)
	if err != nil {
		return nil, err
	}
	if len(res.Docs) == 0 {
		return nil, nil
	}
	return FromDocument(res.Docs[0])
}

func (r *docRepo) ListByDoctor(ctx context.Context, doctorUID string, limit int) ([]*Patient, error) {
	res, err := r.store.Query(ctx, docstore.Selector{"doctor_uid": doctorUID}, nil, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*Patient, 0, len(res.Docs))
	for _, doc := range res.Docs {
		p, err := FromDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *docRepo) Insert(ctx context.Context, p *Patient) (*docstore.WriteResult, error) {
	doc, err := ToDocument(p)
	if err != nil {
		return nil, err
	}
	return r.store.Insert(ctx, doc)
}

func (r *docRepo) Update(ctx context.Context, p *Patient) (*docstore.WriteResult, error) {
	doc, err := ToDocument(p)
	if err != nil {
		return nil, err
	}
	return r.store.Update(ctx, p.ID, doc)
}

func (r *docRepo) Delete(ctx context.Context, id, rev string) (*docstore.WriteResult, error) {
	return r.store.Delete(ctx, id, rev)
}
