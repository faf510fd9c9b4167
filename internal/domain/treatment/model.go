package treatment

import (
	"strings"

	"github.com/ehr/treatment-api/internal/domain/patient"
	"github.com/ehr/treatment-api/internal/platform/blobstore"
	"github.com/ehr/treatment-api/internal/platform/docstore"
)

// Collection holds the doctor-authored treatment records.
const Collection = "doctors"

// CureStatus is the outcome a doctor records for a treatment.
type CureStatus string

const (
	Cured       CureStatus = "cured"
	InTreatment CureStatus = "in treatment"
	Incurable   CureStatus = "incurable"
	NoReturn    CureStatus = "no return"
)

// CureStatuses lists every valid status in display order.
var CureStatuses = []CureStatus{Cured, InTreatment, Incurable, NoReturn}

func (s CureStatus) Valid() bool {
	for _, v := range CureStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// CureStatusList renders the valid statuses as "cured, in treatment, ...".
func CureStatusList() string {
	parts := make([]string, len(CureStatuses))
	for i, v := range CureStatuses {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

const fileExtension = ".txt"

// FileTreatment describes the text file stored alongside a record.
type FileTreatment struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mime_type"`
	Extension string `json:"extension"`
}

func NewFileTreatment(patientID string, size int64) FileTreatment {
	return FileTreatment{
		Name:      FileName(patientID),
		Size:      size,
		MimeType:  blobstore.TextPlain,
		Extension: fileExtension,
	}
}

// FileName is the download name of a patient's treatment file.
func FileName(patientID string) string {
	return patientID + fileExtension
}

// Record is one doctor's treatment of one patient. Patient is a snapshot
// taken when the record was created.
type Record struct {
	ID            string           `json:"_id,omitempty"`
	Rev           string           `json:"_rev,omitempty"`
	DoctorUID     string           `json:"doctorUid"`
	Patient       *patient.Patient `json:"patient"`
	Cid           string           `json:"cid"`
	FileTreatment FileTreatment    `json:"file_treatment"`
	Cured         CureStatus       `json:"cured,omitempty"`
	CreatedAt     string           `json:"created_at,omitempty"`
	UpdatedAt     string           `json:"updated_at,omitempty"`
}

func (r *Record) OwnerUID() string { return r.DoctorUID }

// ObjectKey is the bucket key of the file a doctor wrote for a patient.
// Document ids contain no "-", so the patient id is everything before the
// first one.
func ObjectKey(patientID, doctorUID string) string {
	return patientID + "-" + doctorUID
}

// PatientIDFromKey inverts ObjectKey.
func PatientIDFromKey(key string) string {
	id, _, _ := strings.Cut(key, "-")
	return id
}

func toDocument(r *Record) (docstore.Document, error) {
	return docstore.Encode(r)
}

func fromDocument(doc docstore.Document) (*Record, error) {
	var r Record
	if err := docstore.Decode(doc, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
