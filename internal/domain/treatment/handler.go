package treatment

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/treatment-api/internal/platform/auth"
	"github.com/ehr/treatment-api/internal/platform/blobstore"
	"github.com/ehr/treatment-api/internal/platform/docstore"
	"github.com/ehr/treatment-api/internal/platform/httperr"
	"github.com/ehr/treatment-api/internal/platform/validation"
	"github.com/ehr/treatment-api/pkg/pagination"
)

const (
	msgNotMultipart = "Content-Type must be multipart/form-data!"
	msgNotText      = "File must be text/plain!"
)

type createForm struct {
	Cid string `form:"cid" validate:"required"`
}

type updateForm struct {
	Cured string `form:"cured" validate:"required"`
}

type Handler struct {
	svc    *Service
	query  *QueryService
	logger zerolog.Logger
}

func NewHandler(svc *Service, query *QueryService, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, query: query, logger: logger}
}

// RegisterRoutes mounts the doctor routes on protected and the public
// query on public.
func (h *Handler) RegisterRoutes(protected, public *echo.Group) {
	protected.GET("/doctor/treatment/patient/:id", h.GetFile)
	protected.POST("/doctor/treatment/patient/:id", h.Create)
	protected.PUT("/doctor/treatment/patient/:id", h.Update)
	public.GET("/treatment", h.Query)
}

func (h *Handler) upstream(op string, err error) error {
	h.logger.Warn().Err(err).Str("op", op).Msg("treatment store failure")
	return httperr.Upstream(err)
}

func unauthorizedDoctor(caller string) error {
	return httperr.New(httperr.Forbidden, echo.Map{
		"success": false,
		"message": "Unauthorized. Patient does not correspond with doctor " + caller,
	})
}

func (h *Handler) GetFile(c echo.Context) error {
	id := c.Param("id")
	caller := auth.CallerFromContext(c.Request().Context())

	obj, err := h.svc.GetFile(c.Request().Context(), caller, id)
	if blobstore.IsNoSuchKey(err) {
		return httperr.New(httperr.InvalidInput, echo.Map{"message": "No document found with id " + id})
	}
	if err != nil {
		return h.upstream("get_file", err)
	}

	header := c.Response().Header()
	header.Set("Cache-Control", "no-cache")
	header.Set(echo.HeaderContentLength, strconv.FormatInt(obj.ContentLength, 10))
	header.Set(echo.HeaderContentDisposition, "attachment; filename="+FileName(id))
	header.Set("mime-type", blobstore.TextPlain)
	return c.Blob(http.StatusOK, obj.ContentType, obj.Body)
}

// readUpload applies the checks shared by create and update. It returns a
// nil upload when no file was attached.
func readUpload(c echo.Context) (*Upload, error) {
	if !strings.Contains(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return nil, c.String(http.StatusBadRequest, msgNotMultipart)
	}

	form, err := c.MultipartForm()
	if errors.Is(err, echo.ErrStatusRequestEntityTooLarge) {
		return nil, err
	}
	if err != nil {
		return nil, httperr.New(httperr.InvalidInput, echo.Map{"success": false, "message": "malformed multipart body"})
	}

	fh := firstFile(form)
	if fh == nil {
		return nil, nil
	}
	if mediaType(fh.Header.Get(echo.HeaderContentType)) != blobstore.TextPlain {
		return nil, c.String(http.StatusBadRequest, msgNotText)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &Upload{Data: data, Size: fh.Size}, nil
}

// mediaType strips parameters such as charset from a part's Content-Type.
func mediaType(header string) string {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return mt
}

// firstFile prefers the "file" field and otherwise takes the first file of
// any field.
func firstFile(form *multipart.Form) *multipart.FileHeader {
	if files := form.File["file"]; len(files) > 0 {
		return files[0]
	}
	fields := make([]string, 0, len(form.File))
	for name := range form.File {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	for _, name := range fields {
		if files := form.File[name]; len(files) > 0 {
			return files[0]
		}
	}
	return nil
}

// responded reports whether readUpload already wrote a response.
func responded(c echo.Context, err error) bool {
	return err == nil && c.Response().Committed
}

func (h *Handler) Create(c echo.Context) error {
	id := c.Param("id")
	caller := auth.CallerFromContext(c.Request().Context())

	up, err := readUpload(c)
	if err != nil || responded(c, err) {
		return err
	}

	var form createForm
	bindErr := c.Bind(&form)
	validErr := c.Validate(&form)
	if up == nil || bindErr != nil || validErr != nil {
		h.logger.Debug().Bool("file", up != nil).Strs("fields", validation.Fields(validErr)).Msg("treatment form rejected")
		return httperr.New(httperr.InvalidInput, echo.Map{"success": false, "missing_data": "file or cid"})
	}

	err = h.svc.Create(c.Request().Context(), caller, id, form.Cid, *up)
	switch {
	case errors.Is(err, ErrAlreadyCreated):
		return httperr.New(httperr.InvalidInput, echo.Map{
			"message": "You already created a treatment for patient " + id + ", please update.",
		})
	case errors.Is(err, ErrForbidden):
		return unauthorizedDoctor(caller)
	case errors.Is(err, ErrExistingLookup) && docstore.IsNotFound(err):
		return httperr.New(httperr.NotFound, echo.Map{"success": false, "message": docstore.Reason(err)})
	case docstore.IsNotFound(err):
		return httperr.New(httperr.NotFound, echo.Map{"success": false, "reason": docstore.Reason(err)})
	case blobstore.IsNoSuchBucket(err) || blobstore.IsNoSuchKey(err):
		return httperr.New(httperr.NotFound, echo.Map{"success": false, "reason": blobstore.Code(err)})
	case err != nil:
		return h.upstream("create", err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"data":    echo.Map{"patient": id, "doctor": caller},
	})
}

func (h *Handler) Update(c echo.Context) error {
	id := c.Param("id")
	caller := auth.CallerFromContext(c.Request().Context())

	up, err := readUpload(c)
	if err != nil || responded(c, err) {
		return err
	}

	var form updateForm
	bindErr := c.Bind(&form)
	validErr := c.Validate(&form)
	if up == nil || bindErr != nil || validErr != nil {
		h.logger.Debug().Bool("file", up != nil).Strs("fields", validation.Fields(validErr)).Msg("treatment form rejected")
		return httperr.New(httperr.InvalidInput, echo.Map{"success": false, "missing_data": "file or cured"})
	}
	cured := CureStatus(form.Cured)
	if !cured.Valid() {
		return httperr.New(httperr.InvalidInput, echo.Map{"message": "cured must be " + CureStatusList()})
	}

	rec, err := h.svc.Update(c.Request().Context(), caller, id, cured, *up)
	switch {
	case errors.Is(err, ErrListing) && blobstore.IsNoSuchBucket(err):
		return httperr.New(httperr.NotFound, echo.Map{"success": false, "message": blobstore.CodeNoSuchBucket})
	case errors.Is(err, ErrListing):
		return h.upstream("update_listing", err)
	case errors.Is(err, ErrNoTreatmentFile):
		return httperr.New(httperr.NotFound, echo.Map{"success": false, "reason": "No treatment file found for patient " + id})
	case errors.Is(err, ErrForbidden):
		return unauthorizedDoctor(caller)
	case errors.Is(err, ErrRecordNotFound):
		return httperr.New(httperr.NotFound, echo.Map{"success": false, "message": "Nothing found"})
	case docstore.IsNotFound(err):
		return httperr.New(httperr.NotFound, echo.Map{"success": false, "reason": docstore.Reason(err)})
	case blobstore.IsNoSuchBucket(err) || blobstore.IsNoSuchKey(err):
		return httperr.New(httperr.NotFound, echo.Map{"success": false, "reason": blobstore.Code(err)})
	case docstore.IsConflict(err):
		return httperr.New(httperr.Conflict, echo.Map{"success": false, "reason": docstore.Reason(err)})
	case err != nil:
		return h.upstream("update", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    echo.Map{"patient": id, "doctor": caller, "cured": rec.Cured},
	})
}

func (h *Handler) Query(c echo.Context) error {
	params := QueryParams{
		Cid:   c.QueryParam("cid"),
		Cured: c.QueryParam("cured"),
		Limit: pagination.FromContext(c, pagination.QueryDefaultLimit).Limit,
	}

	docs, err := h.query.Query(c.Request().Context(), params)
	switch {
	case docstore.IsNotFound(err):
		return httperr.New(httperr.NotFound, echo.Map{"success": false, "message": docstore.Reason(err)})
	case blobstore.IsNoSuchBucket(err) || blobstore.IsNoSuchKey(err):
		return httperr.New(httperr.NotFound, echo.Map{"success": false, "message": blobstore.Code(err)})
	case err != nil:
		return h.upstream("query", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": docs})
}
