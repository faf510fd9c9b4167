package patient

import (
	"net/http"
	"time"

	"github.com/ehr/treatment-api/internal/platform/docstore"
)

// Collection is the document collection patients live in.
const Collection = "patients"

// Patient is a document in the patients collection. DoctorUID is fixed at
// creation and decides who may read or change the record.
type Patient struct {
	ID        string `json:"_id,omitempty"`
	Rev       string `json:"_rev,omitempty"`
	Name      string `json:"name,omitempty"`
	Identity  string `json:"identity,omitempty"`
	Birth     string `json:"birth,omitempty"`
	Gender    string `json:"gender,omitempty"`
	Symptoms  string `json:"symptoms,omitempty"`
	DoctorUID string `json:"doctor_uid,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func (p *Patient) OwnerUID() string { return p.DoctorUID }

// CreateRequest is the POST /patient body.
type CreateRequest struct {
	Name     string `json:"name" validate:"required"`
	Gender   string `json:"gender" validate:"required"`
	Symptoms string `json:"symptoms" validate:"required"`
	Identity string `json:"identity" validate:"required"`
	Birth    string `json:"birth" validate:"required"`
}

// UpdateRequest is the PUT /patient/:id body. Empty fields keep their
// stored value.
type UpdateRequest struct {
	Name     string `json:"name"`
	Gender   string `json:"gender"`
	Symptoms string `json:"symptoms"`
	Identity string `json:"identity"`
	Birth    string `json:"birth"`
}

func (p *Patient) apply(req UpdateRequest) {
	p.Name = orDefault(req.Name, p.Name)
	p.Gender = orDefault(req.Gender, p.Gender)
	p.Symptoms = orDefault(req.Symptoms, p.Symptoms)
	p.Identity = orDefault(req.Identity, p.Identity)
	p.Birth = orDefault(req.Birth, p.Birth)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Timestamp formats t the way stored records carry it
// ("Mon, 02 Jan 2006 15:04:05 GMT").
func Timestamp(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

// ToDocument converts p for storage.
func ToDocument(p *Patient) (docstore.Document, error) {
	return docstore.Encode(p)
}

// FromDocument decodes a stored (possibly projected) patient.
func FromDocument(doc docstore.Document) (*Patient, error) {
	var p Patient
	if err := docstore.Decode(doc, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
