package handlers

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nuevpro/ventas/internal/services"
	"github.com/nuevpro/ventas/internal/utils"
)

const maxUploadFiles = 10

type KnowledgeHandler struct {
	svc services.KnowledgeService
}

func NewKnowledgeHandler(svc services.KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc}
}

func (h *KnowledgeHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	rows, err := h.svc.List(c.Request.Context(), userID, c.Query("category"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": rows})
}

func (h *KnowledgeHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req services.DocumentInput
	if !bindJSON(c, "KnowledgeHandler.Create", &req, false) {
		return
	}
	doc, err := h.svc.Create(c.Request.Context(), userID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// Upload accepts one or more multipart "files" (or a single "file"). Each file
// is accepted or rejected on its own; the response lists every outcome.
func (h *KnowledgeHandler) Upload(c *gin.Context) {
	const op = "KnowledgeHandler.Upload"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "expected multipart/form-data", err))
		return
	}
	headers := append(form.File["files"], form.File["file"]...)
	if len(headers) == 0 {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing multipart field 'files'", nil))
		return
	}
	if len(headers) > maxUploadFiles {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "too many files (max 10)", nil))
		return
	}
	category := strings.TrimSpace(c.PostForm("category"))

	files := make([]services.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(c, utils.E(utils.CodeInternal, op, "failed to open upload", err))
			return
		}
		defer f.Close()

		// sniff the first 512 bytes when the browser sent no usable type
		ct := fh.Header.Get("Content-Type")
		var r io.Reader = f
		if ct == "" || ct == "application/octet-stream" {
			head := make([]byte, 512)
			n, _ := io.ReadFull(f, head)
			head = head[:n]
			if sniffed := http.DetectContentType(head); sniffed != "application/octet-stream" {
				ct = sniffed
			}
			r = io.MultiReader(bytes.NewReader(head), f)
		}

		files = append(files, services.UploadFile{
			Name:        fh.Filename,
			ContentType: ct,
			Size:        fh.Size,
			Content:     r,
			Category:    category,
		})
	}

	results, err := h.svc.Upload(c.Request.Context(), userID, files)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusCreated
	accepted := 0
	for _, r := range results {
		if r.Document != nil {
			accepted++
		}
	}
	if accepted == 0 {
		status = http.StatusUnprocessableEntity
	} else if accepted < len(results) {
		status = http.StatusMultiStatus
	}
	c.JSON(status, gin.H{"results": results})
}

type ExtractURLRequest struct {
	URL      string `json:"url" binding:"required"`
	Category string `json:"category"`
}

func (h *KnowledgeHandler) ExtractURL(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req ExtractURLRequest
	if !bindJSON(c, "KnowledgeHandler.ExtractURL", &req, false) {
		return
	}
	doc, err := h.svc.ExtractURL(c.Request.Context(), userID, req.URL, req.Category)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *KnowledgeHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
