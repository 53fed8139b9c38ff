package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/docpilot/docpilot/internal/dify"
	"github.com/docpilot/docpilot/internal/runtime"
	"github.com/docpilot/docpilot/internal/session"
	"github.com/docpilot/docpilot/internal/storage"
	"github.com/docpilot/docpilot/internal/store"
)

// allowedMimeTypes lists upload content types accepted for extraction.
var allowedMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/tiff":      true,
	"image/webp":      true,
}

type DocumentsHandler struct {
	Store           *store.Store
	Files           *storage.Storage
	Dify            *dify.Client
	Secret          []byte
	TokenTTL        time.Duration
	CallbackBaseURL string
	MaxUploadBytes  int64
	Sessions        *session.Manager
	Logger          *log.Logger
}

func (h *DocumentsHandler) Register(g *echo.Group) {
	// token-gated endpoints for the external worker, no cookie auth
	g.GET("/ocr-download/:id", h.ocrDownload)
	g.POST("/ocr-callback/:id", h.ocrCallback)

	authed := g.Group("")
	authed.Use(runtime.EchoAuthMiddleware(h.Secret))
	authed.Use(sessionActivity(h.Sessions))
	authed.GET("", h.list)
	authed.GET("/:id", h.get)
	authed.GET("/:id/download", h.download)
	authed.DELETE("/:id", h.remove)
	authed.POST("/upload", h.upload)
	authed.POST("/start-ocr", h.startOCR)
}

func (h *DocumentsHandler) logf(format string, args ...interface{}) {
	if h.Logger != nil {
		h.Logger.Printf(format, args...)
	}
}

// upload accepts one or more files in the multipart field "files". Files
// that fail validation or storage are reported individually; the rest of
// the batch still goes through.
func (h *DocumentsHandler) upload(c echo.Context) error {
	userID := c.Get("user_id").(string)
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form required")
	}
	files := form.File["files"]
	if len(files) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no files provided")
	}

	resp := UploadResponse{Documents: []DocumentResponse{}}
	for _, fh := range files {
		if h.MaxUploadBytes > 0 && fh.Size > h.MaxUploadBytes {
			uploadsTotal.WithLabelValues("rejected").Inc()
			resp.Errors = append(resp.Errors, UploadFileError{FileName: fh.Filename, Reason: "file too large"})
			continue
		}
		mimeType := fh.Header.Get("Content-Type")
		if i := strings.Index(mimeType, ";"); i >= 0 {
			mimeType = strings.TrimSpace(mimeType[:i])
		}
		if !allowedMimeTypes[mimeType] {
			uploadsTotal.WithLabelValues("rejected").Inc()
			resp.Errors = append(resp.Errors, UploadFileError{FileName: fh.Filename, Reason: "unsupported file type"})
			continue
		}
		name, path, size, err := h.Files.SaveUpload(fh)
		if err != nil {
			h.logf("save upload %q: %v", fh.Filename, err)
			uploadsTotal.WithLabelValues("failed").Inc()
			resp.Errors = append(resp.Errors, UploadFileError{FileName: fh.Filename, Reason: "could not store file"})
			continue
		}
		id, err := h.Store.CreateDocument(c.Request().Context(), store.Document{
			UserID:       userID,
			OriginalName: fh.Filename,
			FileName:     name,
			FilePath:     path,
			MimeType:     mimeType,
			FileSize:     size,
		})
		if err != nil {
			h.logf("insert document %q: %v", fh.Filename, err)
			_ = h.Files.Remove(path)
			uploadsTotal.WithLabelValues("failed").Inc()
			resp.Errors = append(resp.Errors, UploadFileError{FileName: fh.Filename, Reason: "could not record document"})
			continue
		}
		uploadsTotal.WithLabelValues("ok").Inc()
		resp.Documents = append(resp.Documents, DocumentResponse{
			ID:           id,
			OriginalName: fh.Filename,
			FileName:     name,
			MimeType:     mimeType,
			FileSize:     size,
			Status:       store.DocumentStatusUploaded,
			CreatedAt:    time.Now().UTC().Format(time.RFC3339),
		})
	}
	resp.Success = len(resp.Documents) > 0
	if !resp.Success {
		resp.Error = "no files could be uploaded"
	}
	return c.JSON(http.StatusOK, resp)
}

// startOCR issues a scoped download token, marks the document processing
// and triggers the upstream workflow. The workflow fetches the bytes via
// the ocr-download endpoint and reports back through ocr-callback.
func (h *DocumentsHandler) startOCR(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req StartOCRRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.DocumentID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "documentId required")
	}
	doc, err := h.Store.GetDocument(c.Request().Context(), req.DocumentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "document not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if doc.UserID != userID {
		return echo.NewHTTPError(http.StatusForbidden, "not your document")
	}
	if doc.Status != store.DocumentStatusUploaded && doc.Status != store.DocumentStatusFailed {
		return echo.NewHTTPError(http.StatusConflict, "document is already "+doc.Status)
	}

	token, err := runtime.SignFileToken(doc.ID, runtime.PurposeOCRAccess, h.Secret, h.TokenTTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	fileURL := fmt.Sprintf("%s/api/documents/ocr-download/%s%s?token=%s",
		strings.TrimRight(h.CallbackBaseURL, "/"), doc.ID, extSuffix(doc.FileName), url.QueryEscape(token))
	callbackURL := fmt.Sprintf("%s/api/documents/ocr-callback/%s?token=%s",
		strings.TrimRight(h.CallbackBaseURL, "/"), doc.ID, url.QueryEscape(token))

	if err := h.Store.UpdateDocumentStatus(c.Request().Context(), doc.ID, doc.Status, store.DocumentStatusProcessing); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusConflict, "document state changed, retry")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// The trigger must survive the caller disconnecting, so it does not
	// ride on the request context.
	if err := h.Dify.RunOCRWorkflow(context.Background(), doc.ID, fileURL, callbackURL, doc.MimeType, userID); err != nil {
		ocrStartsTotal.WithLabelValues("failed").Inc()
		h.logf("ocr start for document %s failed: %v", doc.ID, err)
		_ = h.Store.FinishDocument(context.Background(), doc.ID, store.DocumentStatusFailed, "", err.Error())
		var ue *dify.UpstreamError
		status := http.StatusInternalServerError
		if errors.As(err, &ue) {
			status = ue.Status
		}
		return c.JSON(status, StartOCRResponse{Success: false, Error: "extraction could not be started"})
	}
	ocrStartsTotal.WithLabelValues("ok").Inc()
	return c.JSON(http.StatusOK, StartOCRResponse{Success: true})
}

// ocrDownload streams document bytes to the external worker. Auth is the
// query-string token only: the worker has no cookies.
func (h *DocumentsHandler) ocrDownload(c echo.Context) error {
	docID := stripIDSuffix(c.Param("id"))
	if err := h.verifyFileToken(c, docID); err != nil {
		return err
	}
	doc, err := h.Store.GetDocument(c.Request().Context(), docID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	f, size, err := h.Files.Open(doc.FilePath)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "file not found")
	}
	defer f.Close()

	mimeType := doc.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header := c.Response().Header()
	header.Set(echo.HeaderContentType, mimeType)
	header.Set(echo.HeaderContentLength, strconv.FormatInt(size, 10))
	header.Set("Content-Disposition", "inline")
	header.Set(echo.HeaderAccessControlAllowOrigin, "*")
	c.Response().WriteHeader(http.StatusOK)
	if _, err := io.Copy(c.Response(), f); err != nil {
		// headers are committed, just end the connection
		h.logf("ocr download %s aborted: %v", doc.ID, err)
	}
	return nil
}

// ocrCallback receives extraction results from the workflow, gated by the
// same token the download used.
func (h *DocumentsHandler) ocrCallback(c echo.Context) error {
	docID := stripIDSuffix(c.Param("id"))
	if err := h.verifyFileToken(c, docID); err != nil {
		return err
	}
	var req OCRCallbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Status != store.DocumentStatusCompleted && req.Status != store.DocumentStatusFailed {
		return echo.NewHTTPError(http.StatusBadRequest, "status must be completed or failed")
	}
	doc, err := h.Store.GetDocument(c.Request().Context(), docID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	// Only a processing document accepts results. A token replayed within
	// its TTL must not rewrite a settled outcome.
	if doc.Status != store.DocumentStatusProcessing {
		return echo.NewHTTPError(http.StatusConflict, "document is not processing")
	}
	if err := h.Store.FinishDocument(c.Request().Context(), doc.ID, req.Status, req.Text, req.Error); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusConflict, "document is not processing")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	title := "Extraction complete"
	message := fmt.Sprintf("Text extraction for %q finished.", doc.OriginalName)
	if req.Status == store.DocumentStatusFailed {
		title = "Extraction failed"
		message = fmt.Sprintf("Text extraction for %q failed.", doc.OriginalName)
		if req.Error != "" {
			message = fmt.Sprintf("Text extraction for %q failed: %s", doc.OriginalName, req.Error)
		}
	}
	if _, err := h.Store.CreateNotification(c.Request().Context(), doc.UserID, title, message); err != nil {
		h.logf("notification for document %s: %v", doc.ID, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (h *DocumentsHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	docs, err := h.Store.ListDocuments(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentResponse(d, false))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *DocumentsHandler) get(c echo.Context) error {
	userID := c.Get("user_id").(string)
	doc, err := h.Store.GetDocument(c.Request().Context(), c.Param("id"))
	if err != nil || doc.UserID != userID {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	return c.JSON(http.StatusOK, documentResponse(doc, true))
}

// download serves the stored file to its owner over the cookie session.
func (h *DocumentsHandler) download(c echo.Context) error {
	userID := c.Get("user_id").(string)
	doc, err := h.Store.GetDocument(c.Request().Context(), c.Param("id"))
	if err != nil || doc.UserID != userID {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	mimeType := doc.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	// set the stored type up front so ServeContent does not sniff
	c.Response().Header().Set(echo.HeaderContentType, mimeType)
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.OriginalName))
	return c.File(doc.FilePath)
}

func (h *DocumentsHandler) remove(c echo.Context) error {
	userID := c.Get("user_id").(string)
	if err := h.Store.SoftDeleteDocument(c.Request().Context(), c.Param("id"), userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "document not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// verifyFileToken enforces the token gate shared by the worker endpoints.
func (h *DocumentsHandler) verifyFileToken(c echo.Context, docID string) error {
	tok := c.QueryParam("token")
	if tok == "" {
		fileTokenRejections.WithLabelValues("missing").Inc()
		return echo.NewHTTPError(http.StatusUnauthorized, "token required")
	}
	switch err := runtime.VerifyFileToken(tok, docID, runtime.PurposeOCRAccess, h.Secret); {
	case err == nil:
		return nil
	case errors.Is(err, runtime.ErrWrongPurpose):
		fileTokenRejections.WithLabelValues("purpose").Inc()
		return echo.NewHTTPError(http.StatusForbidden, "token not valid for this purpose")
	case errors.Is(err, runtime.ErrDocumentMismatch):
		fileTokenRejections.WithLabelValues("document").Inc()
		return echo.NewHTTPError(http.StatusForbidden, "token not valid for this document")
	default:
		fileTokenRejections.WithLabelValues("invalid").Inc()
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
	}
}

// stripIDSuffix removes a trailing content-type suffix: "42.png" -> "42".
func stripIDSuffix(id string) string {
	if i := strings.LastIndex(id, "."); i >= 0 {
		return id[:i]
	}
	return id
}

func extSuffix(fileName string) string {
	if i := strings.LastIndex(fileName, "."); i >= 0 {
		return fileName[i:]
	}
	return ""
}

func documentResponse(d store.Document, includeText bool) DocumentResponse {
	out := DocumentResponse{
		ID:           d.ID,
		OriginalName: d.OriginalName,
		FileName:     d.FileName,
		MimeType:     d.MimeType,
		FileSize:     d.FileSize,
		Status:       d.Status,
		CreatedAt:    d.CreatedAt.UTC().Format(time.RFC3339),
	}
	if d.ErrorMessage.Valid {
		out.ErrorMessage = d.ErrorMessage.String
	}
	if includeText && d.ExtractedText.Valid {
		out.ExtractedText = d.ExtractedText.String
	}
	return out
}
