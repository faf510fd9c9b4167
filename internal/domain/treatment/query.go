package treatment

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/treatment-api/internal/platform/blobstore"
	"github.com/ehr/treatment-api/internal/platform/docstore"
)

// QueryFields is the projection returned by the public treatment query.
var QueryFields = []string{"cid", "cured", "patient._id", "patient.birth", "patient.gender", "patient.symptoms"}

// QueryParams filters the public treatment query. Empty values do not
// constrain the result.
type QueryParams struct {
	Cid   string
	Cured string
	Limit int
}

// NormalizeCured maps any value mentioning "treatment" to InTreatment.
func NormalizeCured(raw string) string {
	if strings.Contains(raw, "treatment") {
		return string(InTreatment)
	}
	return raw
}

// QueryService joins treatment records of every doctor with their file
// content, without exposing patient ids.
type QueryService struct {
	records Repository
	objects blobstore.Store
	logger  zerolog.Logger
}

func NewQueryService(records Repository, objects blobstore.Store, logger zerolog.Logger) *QueryService {
	return &QueryService{
		records: records,
		objects: objects,
		logger:  logger.With().Str("component", "treatment_query").Logger(),
	}
}

func (s *QueryService) Query(ctx context.Context, params QueryParams) ([]docstore.Document, error) {
	listing, err := s.objects.GetObjects(ctx)
	if err != nil {
		return nil, err
	}

	sel := docstore.Selector{}
	if params.Cid != "" {
		sel["cid"] = params.Cid
	}
	cured := NormalizeCured(params.Cured)
	if cured != "" {
		sel["cured"] = cured
	}

	docs, err := s.records.Query(ctx, sel, QueryFields, params.Limit)
	if err != nil {
		return nil, err
	}

	for _, doc := range docs {
		p, _ := doc["patient"].(map[string]interface{})
		if p == nil {
			continue
		}
		if id, _ := p[docstore.IDField].(string); id != "" {
			if key, ok := keyForPatient(listing, id); ok {
				obj, err := s.objects.GetItem(ctx, key)
				if err != nil {
					return nil, err
				}
				doc["treatment"] = string(obj.Body)
			}
		}
		delete(p, docstore.IDField)
	}

	s.logger.Info().Str("cid", params.Cid).Str("cured", cured).Int("count", len(docs)).Msg("treatments consulted")
	return docs, nil
}

func keyForPatient(listing []blobstore.ObjectInfo, patientID string) (string, bool) {
	for _, o := range listing {
		if PatientIDFromKey(o.Key) == patientID {
			return o.Key, true
		}
	}
	return "", false
}
