package api

import (
	"context"
	_ "embed"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/katakuxiko/medchat/internal/model"
	"github.com/katakuxiko/medchat/internal/service"
	"github.com/katakuxiko/medchat/internal/util"
)

//go:embed web/chat.html
var chatPage []byte

// Asker отвечает на один вопрос
type Asker interface {
	Ask(ctx context.Context, query string) (model.Answer, error)
}

// FileIndexer добавляет один PDF в индекс
type FileIndexer interface {
	RunFile(ctx context.Context, path, source string) (service.IndexStats, error)
}

// Handler хранит зависимости для обработчиков
type Handler struct {
	chat      Asker
	indexer   FileIndexer
	uploadDir string
}

func NewHandler(chat Asker, indexer FileIndexer, uploadDir string) *Handler {
	return &Handler{chat: chat, indexer: indexer, uploadDir: uploadDir}
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.SendString("ok")
}

func (h *Handler) Index(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.Send(chatPage)
}

// Chat — ответ текстом на поле msg (форма или query)
func (h *Handler) Chat(c *fiber.Ctx) error {
	msg := strings.TrimSpace(c.FormValue("msg"))
	if msg == "" {
		return c.Status(fiber.StatusBadRequest).SendString("missing required field: msg")
	}

	ans, err := h.chat.Ask(c.UserContext(), msg)
	if err != nil {
		log.Errorw("chat failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).SendString("failed to answer: " + err.Error())
	}
	return c.SendString(ans.Text)
}

type askRequest struct {
	Query string `json:"query"`
}

// Ask — то же, что Chat, но JSON с источниками
func (h *Handler) Ask(c *fiber.Ctx) error {
	var req askRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": `invalid request, expected JSON: {"query":"..."}`})
	}

	ans, err := h.chat.Ask(c.UserContext(), req.Query)
	if err != nil {
		log.Errorw("ask failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(ans)
}

// IngestPDF — загрузка PDF и индексация
func (h *Handler) IngestPDF(c *fiber.Ctx) error {
	if h.indexer == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "ingestion is disabled"})
	}
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required (form field: file)"})
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".pdf") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "only .pdf files are accepted"})
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		log.Errorw("mkdir failed", "dir", h.uploadDir, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to prepare storage"})
	}
	savePath := filepath.Join(h.uploadDir, util.Timestamped(file.Filename))
	if err := c.SaveFile(file, savePath); err != nil {
		log.Errorw("save failed", "path", savePath, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save file"})
	}

	source := filepath.Join(h.uploadDir, filepath.Base(file.Filename))
	stats, err := h.indexer.RunFile(c.UserContext(), savePath, source)
	if err != nil {
		log.Errorw("ingest failed", "path", savePath, "error", err)
		removeUpload(savePath)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if stats.Chunks == 0 {
		removeUpload(savePath)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no text extracted from PDF"})
	}
	log.Infow("ingested pdf", "doc", filepath.Base(savePath), "chunks", stats.Upserted)

	return c.JSON(fiber.Map{
		"status":       "ok",
		"doc":          filepath.Base(savePath),
		"pages":        stats.Documents,
		"chunks_total": stats.Chunks,
		"chunks_saved": stats.Upserted,
	})
}

func removeUpload(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnw("remove upload failed", "path", path, "error", err)
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(code).SendString(err.Error())
}
