package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
	"unicode/utf8"

	"vectorchat/chunker"
	"vectorchat/loader"
	"vectorchat/model"
	"vectorchat/store"
	"vectorchat/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Searcher is the retrieval boundary used by the admin search endpoint.
type Searcher interface {
	Search(ctx context.Context, query string, limit int, minSimilarity float64) ([]types.ScoredChunk, error)
}

// AdminHandler serves the knowledge-base management surface: document
// CRUD, chunk editing, uploads, stats and the connectivity self-test.
type AdminHandler struct {
	store     store.DocumentStorer
	chunker   *chunker.Chunker
	loader    *loader.Loader
	retriever Searcher
	embedder  model.Embedder
	cfg       types.Config
	logger    *slog.Logger
}

func NewAdminHandler(s store.DocumentStorer, ch *chunker.Chunker, ld *loader.Loader, retriever Searcher, embedder model.Embedder, cfg types.Config) *AdminHandler {
	return &AdminHandler{
		store:     s,
		chunker:   ch,
		loader:    ld,
		retriever: retriever,
		embedder:  embedder,
		cfg:       cfg,
		logger:    slog.Default(),
	}
}

func (h *AdminHandler) HandleListDocuments(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	perPage := c.QueryInt("per_page", 20)

	result, err := h.store.ListDocuments(c.Context(), page, perPage)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func (h *AdminHandler) HandleGetDocument(c *fiber.Ctx) error {
	sourceName := c.Params("source")
	chunks, err := h.store.GetDocument(c.Context(), sourceName)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"source_name": sourceName, "chunks": chunks})
}

// HandleAddDocument ingests a document pasted as text. The document
// replaces any previous one stored under the same source name.
func (h *AdminHandler) HandleAddDocument(c *fiber.Ctx) error {
	var params types.AddDocumentParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	if size := utf8.RuneCountInString(params.Content); size > h.cfg.MaxDocumentSize {
		return types.NewInputError("text too large: %d characters (max %d)", size, h.cfg.MaxDocumentSize)
	}

	sourceName := loader.SanitizeFilename(params.Title)
	if sourceName == "" || sourceName == "." {
		sourceName = "doc_" + uuid.NewString()[:8]
	}

	result, err := h.ingest(c.Context(), sourceName, params.Title, params.Content, map[string]any{
		"source": "manual",
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return c.Status(fiber.StatusBadGateway).JSON(result)
	}
	return c.JSON(result)
}

// HandleUpload ingests one or more uploaded files. Each file is an
// independent document; per-file failures do not abort the batch.
func (h *AdminHandler) HandleUpload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return ErrBadRequest()
	}
	files := form.File["files"]
	if len(files) == 0 {
		return NewError(fiber.StatusBadRequest, "no files given")
	}
	if len(files) > h.cfg.MaxFilesBatch {
		return types.NewInputError("too many files: %d (max %d)", len(files), h.cfg.MaxFilesBatch)
	}

	results := make([]fiber.Map, 0, len(files))
	for _, fileHeader := range files {
		name := loader.SanitizeFilename(fileHeader.Filename)

		file, err := fileHeader.Open()
		if err != nil {
			results = append(results, fiber.Map{"filename": name, "error": err.Error()})
			continue
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			results = append(results, fiber.Map{"filename": name, "error": err.Error()})
			continue
		}

		content, err := h.loader.Extract(c.Context(), name, data)
		if err != nil {
			results = append(results, fiber.Map{"filename": name, "error": err.Error()})
			continue
		}

		result, err := h.ingest(c.Context(), name, loader.TitleFromFilename(name), content, map[string]any{
			"filename":      name,
			"original_name": fileHeader.Filename,
			"filesize":      fileHeader.Size,
			"uploaded_at":   time.Now().Format(time.RFC3339),
		})
		if err != nil {
			results = append(results, fiber.Map{"filename": name, "error": err.Error()})
			continue
		}
		results = append(results, fiber.Map{"filename": name, "result": result})
	}

	return c.JSON(fiber.Map{"results": results})
}

func (h *AdminHandler) ingest(ctx context.Context, sourceName, title, content string, metadata map[string]any) (*types.IngestResult, error) {
	chunks := h.chunker.Split(content)
	if len(chunks) == 0 {
		return nil, types.NewInputError("no content to embed")
	}
	return h.store.ReplaceDocument(ctx, sourceName, title, chunks, metadata)
}

// HandleSearch runs a raw similarity search, mainly for trying out
// queries against the knowledge base.
func (h *AdminHandler) HandleSearch(c *fiber.Ctx) error {
	var params types.SearchParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	limit := params.Limit
	if limit == 0 {
		limit = 5
	}
	minSimilarity := h.cfg.SearchMinSimilarity
	if params.MinSimilarity != nil {
		minSimilarity = *params.MinSimilarity
	}

	results, err := h.retriever.Search(c.Context(), params.Query, limit, minSimilarity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "results": results})
}

func (h *AdminHandler) HandleGetChunk(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	chunk, err := h.store.GetChunk(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(chunk)
}

func (h *AdminHandler) HandleUpdateChunk(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	var params types.UpdateChunkParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	if err := h.store.UpdateChunkContent(c.Context(), id, params.Content); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "id": id})
}

func (h *AdminHandler) HandleDeleteChunk(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	if err := h.store.DeleteChunk(c.Context(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "deleted": 1})
}

func (h *AdminHandler) HandleUpdateTitle(c *fiber.Ctx) error {
	sourceName := c.Params("source")

	var params types.UpdateTitleParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	affected, err := h.store.UpdateDocumentTitle(c.Context(), sourceName, params.Title)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "affected": affected})
}

func (h *AdminHandler) HandleDeleteDocument(c *fiber.Ctx) error {
	sourceName := c.Params("source")
	deleted, err := h.store.DeleteDocument(c.Context(), sourceName)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "deleted": deleted})
}

func (h *AdminHandler) HandleAddChunk(c *fiber.Ctx) error {
	sourceName := c.Params("source")

	var params types.AddChunkParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	chunk, err := h.store.AddChunkToDocument(c.Context(), sourceName, params.Content)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "id": chunk.ID, "chunk_index": chunk.Index})
}

func (h *AdminHandler) HandleStats(c *fiber.Ctx) error {
	stats, err := h.store.Stats(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func (h *AdminHandler) HandleClearAll(c *fiber.Ctx) error {
	deleted, err := h.store.ClearAll(c.Context())
	if err != nil {
		return err
	}
	h.logger.Info("knowledge base cleared", "deleted", deleted)
	return c.JSON(fiber.Map{"success": true, "deleted": deleted})
}

// HandleSelfTest probes the store, the pgvector extension and the
// embedding service in one call.
func (h *AdminHandler) HandleSelfTest(c *fiber.Ctx) error {
	tests := fiber.Map{}

	if err := h.store.Ping(c.Context()); err != nil {
		tests["postgres"] = fmt.Sprintf("failed: %v", err)
	} else {
		tests["postgres"] = "ok"
	}

	if embedding, err := h.embedder.Embed(c.Context(), "test"); err != nil {
		tests["embedding_api"] = fmt.Sprintf("failed: %v", err)
	} else {
		tests["embedding_api"] = fmt.Sprintf("ok (dim: %d)", len(embedding))
	}

	return c.JSON(fiber.Map{"tests": tests})
}
