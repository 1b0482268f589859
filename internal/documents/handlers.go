package documents

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/bufete-backend/internal/auth"
)

type Handler struct {
	svc      *Service
	maxBytes int64
}

// NewHandler caps each uploaded file at maxMiB (10 MiB when unset).
func NewHandler(svc *Service, maxMiB int) *Handler {
	if maxMiB <= 0 {
		maxMiB = 10
	}
	return &Handler{svc: svc, maxBytes: int64(maxMiB) << 20}
}

func caseIDParam(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid case id")
	}
	return id, nil
}

// Upload Case Document godoc
// @Summary      Upload document
// @Description  Assigned lawyer or administrator uploads a file; re-uploading a filename adds a version
// @Tags         documents
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        id             path      string  true   "case id (uuid)"
// @Param        file           formData  file    true   "document"
// @Param        document_type  formData  string  false  "Contrato | Demanda | Resolución | Prueba | Comunicación | Informe | Otro"
// @Success      201  {object}  models.Document
// @Failure      400  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      413  {object}  models.ErrorResponse
// @Failure      503  {object}  models.ErrorResponse
// @Router       /cases/{id}/documents [post]
func (h *Handler) Upload(c *fiber.Ctx) error {
	caseID, err := caseIDParam(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart form required; use key: file")
	}
	if fh.Size <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "empty file")
	}
	if fh.Size > h.maxBytes {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "file too large")
	}

	f, err := fh.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "open failed")
	}
	defer f.Close()

	doc, err := h.svc.UploadFile(c.UserContext(), auth.MustActor(c), caseID,
		fh.Filename, c.FormValue("document_type"), fh.Header.Get("Content-Type"), fh.Size, f)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(doc)
}

// List Case Documents godoc
// @Summary      List documents
// @Description  Every version of every file on the case, newest upload first
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case id (uuid)"
// @Success      200  {array}   models.Document
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id}/documents [get]
func (h *Handler) List(c *fiber.Ctx) error {
	caseID, err := caseIDParam(c)
	if err != nil {
		return err
	}
	list, err := h.svc.List(c.UserContext(), auth.MustActor(c), caseID)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

// Signed Download URL godoc
// @Summary      Get signed URL
// @Description  Anyone who may read the case obtains a short-lived download URL
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "document id (uuid)"
// @Success      200  {object}  map[string]any  "url, expires_in, now"
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      503  {object}  models.ErrorResponse
// @Router       /documents/{id}/signed-url [get]
func (h *Handler) SignedURL(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid document id")
	}
	url, ttl, err := h.svc.SignedURL(c.UserContext(), auth.MustActor(c), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"url": url, "expires_in": int(ttl.Seconds()), "now": time.Now().UTC()})
}
