package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"

	"github.com/nuevpro/ventas/internal/models"
	"github.com/nuevpro/ventas/internal/providers/docx"
	"github.com/nuevpro/ventas/internal/providers/embed"
	"github.com/nuevpro/ventas/internal/providers/llm"
	"github.com/nuevpro/ventas/internal/providers/web"
	pgrepo "github.com/nuevpro/ventas/internal/repositories/postgres"
	"github.com/nuevpro/ventas/internal/storage"
	"github.com/nuevpro/ventas/internal/utils"
)

const (
	MaxUploadBytes  = 10 << 20
	maxContentChars = 200_000
	snippetChars    = 600
)

const (
	mimePDF      = "application/pdf"
	mimeText     = "text/plain"
	mimeMarkdown = "text/markdown"
	mimeCSV      = "text/csv"
	mimeDocx     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimePNG      = "image/png"
	mimeJPEG     = "image/jpeg"
	mimeWebP     = "image/webp"
)

var allowedMIME = map[string]bool{
	mimePDF: true, mimeText: true, mimeMarkdown: true, mimeCSV: true,
	mimeDocx: true, mimePNG: true, mimeJPEG: true, mimeWebP: true,
}

var mimeByExt = map[string]string{
	".pdf": mimePDF, ".txt": mimeText, ".md": mimeMarkdown, ".markdown": mimeMarkdown,
	".csv": mimeCSV, ".docx": mimeDocx, ".png": mimePNG, ".jpg": mimeJPEG,
	".jpeg": mimeJPEG, ".webp": mimeWebP,
}

type DocumentInput struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

type UploadFile struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
	Category    string
}

type UploadError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

// UploadResult is reported per file; a rejected file never creates a record.
type UploadResult struct {
	FileName string                    `json:"file_name"`
	Document *models.KnowledgeDocument `json:"document,omitempty"`
	Error    *UploadError              `json:"error,omitempty"`
}

type Snippet struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Text       string `json:"text"`
}

type KnowledgeService interface {
	Create(ctx context.Context, userID string, in DocumentInput) (*models.KnowledgeDocument, error)
	Upload(ctx context.Context, userID string, files []UploadFile) ([]UploadResult, error)
	ExtractURL(ctx context.Context, userID, url, category string) (*models.KnowledgeDocument, error)
	List(ctx context.Context, userID, category string) ([]models.KnowledgeDocument, error)
	Delete(ctx context.Context, userID, id string) error
	Snippets(ctx context.Context, userID, query string, k int) ([]Snippet, error)
}

type knowledgeService struct {
	docs     pgrepo.KnowledgeRepository
	uploader storage.Uploader
	fetcher  web.Fetcher
	llm      llm.Provider
	embedder embed.Embedder
	log      *logrus.Logger
	now      func() time.Time
}

func NewKnowledgeService(docs pgrepo.KnowledgeRepository, uploader storage.Uploader, fetcher web.Fetcher, provider llm.Provider, embedder embed.Embedder, log *logrus.Logger) KnowledgeService {
	if embedder == nil {
		embedder = embed.NewHashing(models.EmbeddingDims)
	}
	if log == nil {
		log = logrus.New()
	}
	return &knowledgeService{
		docs:     docs,
		uploader: uploader,
		fetcher:  fetcher,
		llm:      provider,
		embedder: embedder,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ResolveMIME normalizes a declared content type and falls back to the file
// extension when the browser sent none or a generic one.
func ResolveMIME(fileName, declared string) string {
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		mt = ""
	}
	mt = strings.ToLower(mt)
	if mt == "image/jpg" {
		mt = mimeJPEG
	}
	switch mt {
	case "", "application/octet-stream", mimeText:
		// browsers send .md and .csv as text/plain or nothing at all
		if byExt, ok := mimeByExt[strings.ToLower(filepath.Ext(fileName))]; ok {
			return byExt
		}
	}
	return mt
}

func (s *knowledgeService) Create(ctx context.Context, userID string, in DocumentInput) (*models.KnowledgeDocument, error) {
	const op = "KnowledgeService.Create"

	if userID == "" {
		return nil, utils.Unauthenticated(op)
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || strings.TrimSpace(in.Content) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "title and content are required", nil)
	}
	if utf8.RuneCountInString(in.Content) > maxContentChars {
		return nil, utils.E(utils.CodeInvalidArgument, op, "content is too long", nil)
	}

	now := s.now()
	doc := &models.KnowledgeDocument{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     in.Title,
		Content:   in.Content,
		Category:  in.Category,
		Tags:      cleanTags(in.Tags),
		SizeBytes: int64(len(in.Content)),
		Source:    models.SourceManual,
		KeyPoints: []string{},
		Status:    models.DocumentReady,
		CreatedAt: now,
		UpdatedAt: now,
	}
	doc.Embedding = s.vector(doc)
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create document", err)
	}
	return doc, nil
}

func (s *knowledgeService) Upload(ctx context.Context, userID string, files []UploadFile) ([]UploadResult, error) {
	const op = "KnowledgeService.Upload"

	if userID == "" {
		return nil, utils.Unauthenticated(op)
	}
	if len(files) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "no files", nil)
	}

	out := make([]UploadResult, 0, len(files))
	for _, f := range files {
		res := UploadResult{FileName: f.Name}
		doc, err := s.uploadOne(ctx, userID, f)
		if err != nil {
			var ae *utils.AppError
			if !errors.As(err, &ae) {
				ae = &utils.AppError{Code: utils.CodeInternal, Message: "upload failed"}
			}
			res.Error = &UploadError{Code: ae.Code, Message: ae.Message}
			s.log.WithError(err).WithFields(logrus.Fields{"user_id": userID, "file": f.Name}).Warn("knowledge upload rejected")
		} else {
			res.Document = doc
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *knowledgeService) uploadOne(ctx context.Context, userID string, f UploadFile) (*models.KnowledgeDocument, error) {
	const op = "KnowledgeService.Upload"

	mt := ResolveMIME(f.Name, f.ContentType)
	if !allowedMIME[mt] {
		return nil, utils.E(utils.CodeUnsupportedInput, op, fmt.Sprintf("file type %q is not allowed", mt), nil)
	}
	if f.Size > MaxUploadBytes {
		return nil, utils.E(utils.CodeUnsupportedInput, op, "file exceeds 10MB", nil)
	}
	if f.Content == nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "empty file", nil)
	}
	data, err := io.ReadAll(io.LimitReader(f.Content, MaxUploadBytes+1))
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "failed to read file", err)
	}
	if len(data) > MaxUploadBytes {
		return nil, utils.E(utils.CodeUnsupportedInput, op, "file exceeds 10MB", nil)
	}
	if len(data) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "empty file", nil)
	}

	now := s.now()
	doc := &models.KnowledgeDocument{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     strings.TrimSuffix(filepath.Base(f.Name), filepath.Ext(f.Name)),
		Category:  f.Category,
		SizeBytes: int64(len(data)),
		Source:    models.SourceFile,
		MimeType:  mt,
		KeyPoints: []string{},
		Status:    models.DocumentProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if doc.Title == "" {
		doc.Title = "documento"
	}

	if s.uploader != nil {
		path, err := s.uploader.Upload(ctx, storage.DocumentObject(userID, f.Name), mt, bytes.NewReader(data))
		if err != nil {
			return nil, remoteErr(op, "failed to store file", err)
		}
		doc.StoragePath = &path
	}

	if err := s.docs.Create(ctx, doc); err != nil {
		if doc.StoragePath != nil {
			if derr := s.uploader.Delete(ctx, *doc.StoragePath); derr != nil {
				s.log.WithError(derr).WithField("object", *doc.StoragePath).Warn("orphaned upload not removed")
			}
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to create document", err)
	}

	s.process(ctx, doc, data)
	return doc, nil
}

// process fills content, summary and embedding; failures are recorded on the
// document rather than returned.
func (s *knowledgeService) process(ctx context.Context, doc *models.KnowledgeDocument, data []byte) {
	var text string
	var blob *llm.Blob
	switch doc.MimeType {
	case mimeText, mimeMarkdown, mimeCSV:
		text = strings.ToValidUTF8(string(data), "")
	case mimeDocx:
		t, err := docx.ExtractText(data)
		if err != nil {
			s.fail(ctx, doc, "could not read docx: "+err.Error())
			return
		}
		text = t
	default:
		blob = &llm.Blob{MIMEType: doc.MimeType, Data: data}
	}

	ext, err := s.extract(ctx, doc.Title, text, blob)
	switch {
	case err != nil && blob != nil:
		s.fail(ctx, doc, err.Error())
		return
	case err != nil:
		// plain text is still useful without an AI summary
		s.log.WithError(err).WithField("document_id", doc.ID).Warn("knowledge summary failed")
		doc.Content = truncateRunes(text, maxContentChars)
	default:
		doc.Content = truncateRunes(firstNonEmpty(ext.Content, text), maxContentChars)
		doc.Summary = ext.Summary
		doc.KeyPoints = ext.KeyPoints
		doc.Tags = cleanTags(append(doc.Tags, ext.Tags...))
	}

	doc.Status = models.DocumentReady
	doc.Embedding = s.vector(doc)
	doc.UpdatedAt = s.now()
	if err := s.docs.Save(ctx, doc); err != nil {
		s.log.WithError(err).WithField("document_id", doc.ID).Error("knowledge save failed")
	}
}

func (s *knowledgeService) fail(ctx context.Context, doc *models.KnowledgeDocument, reason string) {
	doc.Status = models.DocumentFailed
	doc.ProcessingError = reason
	doc.UpdatedAt = s.now()
	if err := s.docs.Save(ctx, doc); err != nil {
		s.log.WithError(err).WithField("document_id", doc.ID).Error("knowledge save failed")
	}
}

type extraction struct {
	Content   string   `json:"content"`
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	Tags      []string `json:"tags"`
}

const extractSystem = `Eres un asistente que prepara material de producto para entrenar vendedores.
Devuelve SOLO JSON: {"content": "<texto completo extraído>", "summary": "<resumen de 2-3 frases>",
"key_points": ["<punto clave útil para vender>", ...], "tags": ["<etiqueta de relevancia comercial>", ...]}`

func (s *knowledgeService) extract(ctx context.Context, title, text string, blob *llm.Blob) (*extraction, error) {
	if s.llm == nil {
		return nil, errors.New("extraction model not configured")
	}
	req := llm.Request{System: extractSystem, JSON: true}
	if blob != nil {
		req.Blobs = []llm.Blob{*blob}
		req.Prompt = "Extrae el contenido del documento adjunto \"" + title + "\"."
	} else {
		req.Prompt = "Documento \"" + title + "\":\n\n" + truncateRunes(text, 30_000) + "\n\nDeja \"content\" vacío; solo resume."
	}

	raw, err := s.llm.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	var ext extraction
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &ext); err != nil {
		return nil, fmt.Errorf("malformed extraction: %w", err)
	}
	if ext.KeyPoints == nil {
		ext.KeyPoints = []string{}
	}
	return &ext, nil
}

func (s *knowledgeService) ExtractURL(ctx context.Context, userID, rawURL, category string) (*models.KnowledgeDocument, error) {
	const op = "KnowledgeService.ExtractURL"

	if userID == "" {
		return nil, utils.Unauthenticated(op)
	}
	if _, err := web.ValidateURL(rawURL); err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "url must be http(s)", err)
	}
	if s.fetcher == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "web extraction not configured", nil)
	}

	page, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		if errors.Is(err, web.ErrUnsupportedPage) {
			return nil, utils.E(utils.CodeUnsupportedInput, op, "page content type not supported", err)
		}
		if errors.Is(err, web.ErrBlockedAddress) {
			return nil, utils.E(utils.CodeInvalidArgument, op, "url must point to a public host", err)
		}
		return nil, remoteErr(op, "failed to fetch page", err)
	}
	if strings.TrimSpace(page.Text) == "" {
		return nil, utils.E(utils.CodeUnsupportedInput, op, "page has no readable text", nil)
	}

	now := s.now()
	url := page.URL
	doc := &models.KnowledgeDocument{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     firstNonEmpty(page.Title, url),
		Content:   truncateRunes(page.Text, maxContentChars),
		Category:  category,
		SizeBytes: page.Bytes,
		Source:    models.SourceURL,
		SourceURL: &url,
		MimeType:  "text/html",
		KeyPoints: []string{},
		Status:    models.DocumentReady,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if ext, err := s.extract(ctx, doc.Title, page.Text, nil); err != nil {
		s.log.WithError(err).WithField("url", url).Warn("web summary failed")
	} else {
		doc.Summary = ext.Summary
		doc.KeyPoints = ext.KeyPoints
		doc.Tags = cleanTags(ext.Tags)
	}
	doc.Embedding = s.vector(doc)

	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create document", err)
	}
	return doc, nil
}

func (s *knowledgeService) List(ctx context.Context, userID, category string) ([]models.KnowledgeDocument, error) {
	const op = "KnowledgeService.List"

	if userID == "" {
		return nil, utils.Unauthenticated(op)
	}
	rows, err := s.docs.ListByUser(ctx, userID, category)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list documents", err)
	}
	return rows, nil
}

func (s *knowledgeService) Delete(ctx context.Context, userID, id string) error {
	const op = "KnowledgeService.Delete"

	if userID == "" {
		return utils.Unauthenticated(op)
	}
	if _, err := uuid.Parse(id); err != nil {
		return utils.E(utils.CodeNotFound, op, "document not found", utils.ErrNotFound)
	}
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return repoErr(op, "document", err)
	}
	if doc.UserID != userID {
		return utils.E(utils.CodeForbidden, op, "forbidden", nil)
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return repoErr(op, "document", err)
	}
	if doc.StoragePath != nil && s.uploader != nil {
		if err := s.uploader.Delete(ctx, *doc.StoragePath); err != nil {
			s.log.WithError(err).WithField("document_id", id).Warn("stored file not removed")
		}
	}
	return nil
}

func (s *knowledgeService) Snippets(ctx context.Context, userID, query string, k int) ([]Snippet, error) {
	if userID == "" {
		return nil, nil
	}

	var rows []models.KnowledgeDocument
	var err error
	if vec := s.embedder.Embed(query); !embed.IsZero(vec) {
		rows, err = s.docs.Nearest(ctx, userID, vec, k)
		if err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("vector search failed, using recent documents")
		}
	}
	if len(rows) == 0 {
		rows, err = s.docs.Recent(ctx, userID, k)
		if err != nil {
			return nil, err
		}
	}

	out := make([]Snippet, 0, len(rows))
	for _, d := range rows {
		text := d.Summary
		if text == "" {
			text = d.Content
		}
		out = append(out, Snippet{DocumentID: d.ID, Title: d.Title, Text: truncateRunes(text, snippetChars)})
	}
	return out, nil
}

func (s *knowledgeService) vector(d *models.KnowledgeDocument) *pgvector.Vector {
	v := s.embedder.Embed(strings.Join([]string{d.Title, d.Summary, d.Content}, "\n"))
	if embed.IsZero(v) {
		return nil
	}
	pv := pgvector.NewVector(v)
	return &pv
}

func cleanTags(tags []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
