package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/escrow-room-service/internal/blobstore"
	"github.com/iliyamo/escrow-room-service/internal/config"
	"github.com/iliyamo/escrow-room-service/internal/escrow"
	"github.com/iliyamo/escrow-room-service/internal/model"
	"github.com/iliyamo/escrow-room-service/internal/repository"
)

// EvidenceHandler serves evidence upload (occupant session) and the
// arbiter review queue: pending list, approve, reject, download.
type EvidenceHandler struct {
	Cfg      config.Config
	Gateway  *escrow.EvidenceGateway
	Blobs    blobstore.Store
	Evidence *repository.EvidenceRepo
	Txns     *repository.TransactionRepo
	Arbiters *repository.ArbiterRepo
}

func NewEvidenceHandler(cfg config.Config, gateway *escrow.EvidenceGateway, blobs blobstore.Store,
	evidence *repository.EvidenceRepo, txns *repository.TransactionRepo, arbiters *repository.ArbiterRepo) *EvidenceHandler {
	return &EvidenceHandler{Cfg: cfg, Gateway: gateway, Blobs: blobs, Evidence: evidence, Txns: txns, Arbiters: arbiters}
}

func (h *EvidenceHandler) arbiterFromCtx(c echo.Context) (model.Arbiter, error) {
	aid, err := getUserID(c)
	if err != nil {
		return model.Arbiter{}, err
	}
	return h.Arbiters.GetByID(c.Request().Context(), aid)
}

func evidenceView(f *model.EvidenceFile) echo.Map {
	v := echo.Map{
		"id":             f.ID,
		"transaction_id": f.TransactionID,
		"file_type":      f.FileType,
		"file_name":      f.FileName,
		"size_bytes":     f.SizeBytes,
		"mime_type":      f.MimeType,
		"uploader_role":  f.UploaderRole,
		"status":         f.Status,
		"created_at":     f.CreatedAt,
	}
	if f.VerifiedAt != nil {
		v["verified_at"] = f.VerifiedAt
	}
	if f.RejectReason != nil {
		v["rejection_reason"] = *f.RejectReason
	}
	return v
}

// Upload handles POST /v1/session/evidence (occupant, multipart).  Form
// fields: file, file_type, and for the first payment proof amount_cents
// plus currency.  The blob is stored first; the metadata insert and the
// transaction transition then commit together.
func (h *EvidenceHandler) Upload(c echo.Context) error {
	occ, ok := occupantFromCtx(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "file is required"})
	}
	if h.Cfg.MaxUploadBytes > 0 && fh.Size > int64(h.Cfg.MaxUploadBytes) {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "file too large"})
	}
	fileType := c.FormValue("file_type")
	if strings.TrimSpace(fileType) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "file_type is required"})
	}
	var amountCents int64
	if raw := strings.TrimSpace(c.FormValue("amount_cents")); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid amount_cents"})
		}
		amountCents = n
	}

	src, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot read file"})
	}
	defer src.Close()

	ctx := c.Request().Context()
	ref, err := h.Blobs.Put(ctx, src)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "store file failed"})
	}

	file, err := h.Gateway.Submit(ctx, occ.RoomID, occ, escrow.SubmitInput{
		FileType:    fileType,
		FileName:    fh.Filename,
		BlobRef:     ref,
		SizeBytes:   fh.Size,
		MimeType:    fh.Header.Get("Content-Type"),
		AmountCents: amountCents,
		Currency:    c.FormValue("currency"),
	})
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusCreated, evidenceView(file))
}

// ListMine handles GET /v1/session/evidence (occupant) and returns all
// files of the room's active transaction.
func (h *EvidenceHandler) ListMine(c echo.Context) error {
	occ, ok := occupantFromCtx(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx := c.Request().Context()
	txn, err := h.Txns.GetActiveByRoom(ctx, occ.RoomID)
	if err != nil {
		return domainError(c, err)
	}
	files, err := h.Evidence.ListByTransaction(ctx, txn.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	items := make([]echo.Map, 0, len(files))
	for i := range files {
		items = append(items, evidenceView(&files[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// ListPending handles GET /v1/rooms/:id/evidence/pending (arbiter).
func (h *EvidenceHandler) ListPending(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	files, err := h.Evidence.ListPendingByRoom(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	items := make([]echo.Map, 0, len(files))
	for i := range files {
		items = append(items, evidenceView(&files[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Approve handles POST /v1/evidence/:id/approve (arbiter).
func (h *EvidenceHandler) Approve(c echo.Context) error {
	arbiter, err := h.arbiterFromCtx(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	file, err := h.Gateway.Approve(c.Request().Context(), id, arbiter)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, evidenceView(file))
}

// Reject handles POST /v1/evidence/:id/reject (arbiter).  A reason is
// mandatory.
func (h *EvidenceHandler) Reject(c echo.Context) error {
	arbiter, err := h.arbiterFromCtx(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	file, err := h.Gateway.Reject(c.Request().Context(), id, arbiter, body.Reason)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, evidenceView(file))
}

// Download handles GET /v1/evidence/:id/download (arbiter) and streams
// the stored blob with its original name and content type.
func (h *EvidenceHandler) Download(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx := c.Request().Context()
	file, err := h.Evidence.GetByID(ctx, id)
	if err != nil {
		return domainError(c, err)
	}
	rc, err := h.Blobs.Get(ctx, file.BlobRef)
	if err != nil {
		if err == blobstore.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "file content missing"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "read file failed"})
	}
	defer rc.Close()

	mime := file.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+file.FileName+`"`)
	return c.Stream(http.StatusOK, mime, rc)
}
