// Package api is the HTTP presentation adapter over the archives.
package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-comms/internal/events"
	"github.com/celerix-dev/celerix-comms/internal/files"
	"github.com/celerix-dev/celerix-comms/internal/messages"
	"github.com/celerix-dev/celerix-comms/internal/snapshot"
	"github.com/celerix-dev/celerix-comms/internal/stats"
	"github.com/celerix-dev/celerix-comms/internal/view"
	"github.com/celerix-dev/celerix-comms/pkg/engine"
	"github.com/celerix-dev/celerix-comms/pkg/schema"
)

// RecoveredHeader is set when a response was built from an archive whose
// stored data was corrupt and has been treated as empty.
const RecoveredHeader = "X-Archive-Recovered"

type Handler struct {
	Messages *messages.Log
	Files    *files.Archive
	Stats    *stats.Tracker
	Bus      *events.Bus
	Logger   *slog.Logger
	Now      func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, messages.ErrEmptyMessage),
		errors.Is(err, messages.ErrMessageTooLong),
		errors.Is(err, messages.ErrInvalidSender):
		return http.StatusBadRequest
	case errors.Is(err, files.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, files.ErrNotFound), errors.Is(err, messages.ErrEmptyArchive):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrStorageFull):
		return http.StatusInsufficientStorage
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && h.Logger != nil {
		h.Logger.Error("request failed", slog.String("path", c.FullPath()), slog.Any("err", err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func markRecovered[T any](c *gin.Context, res snapshot.Result[T]) {
	if res.Status == snapshot.StatusRecovered {
		c.Header(RecoveredHeader, "true")
	}
}

// --- Messages ---

func (h *Handler) ListMessages(c *gin.Context) {
	filter, err := view.ParseMessageFilter(c.Query("filter"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	page := 1
	if p := c.Query("page"); p != "" {
		if page, err = strconv.Atoi(p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "page must be a number"})
			return
		}
	}

	res := h.Messages.LoadAll()
	if !res.Usable() {
		h.fail(c, res.Err)
		return
	}
	markRecovered(c, res)

	state := view.NewState().WithFilter(filter).WithPage(page)
	c.JSON(http.StatusOK, view.Apply(res.Value, state))
}

type messageInput struct {
	Text        string                 `json:"text"`
	Sender      schema.Sender          `json:"sender"`
	Attachments []schema.AttachmentRef `json:"attachments"`
}

func (h *Handler) AppendMessage(c *gin.Context) {
	var input messageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.Sender == "" {
		input.Sender = schema.SenderOperator
	}

	rec, err := h.Messages.Send(input.Sender, input.Text, input.Attachments...)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) ClearMessages(c *gin.Context) {
	if err := h.Messages.Clear(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) ExportMessages(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.Messages.Export(&buf); err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", messages.ExportFilename(h.now())))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
}

// --- Files ---

// fileMeta is a FileRecord without its payload.
type fileMeta struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	MimeType   string          `json:"type"`
	SizeBytes  int64           `json:"size"`
	UploadedAt time.Time       `json:"uploadDate"`
	Category   schema.Category `json:"category"`
}

func metaOf(f schema.FileRecord) fileMeta {
	return fileMeta{
		ID:         f.ID,
		Name:       f.Name,
		MimeType:   f.MimeType,
		SizeBytes:  f.SizeBytes,
		UploadedAt: f.UploadedAt,
		Category:   f.Category,
	}
}

func (h *Handler) ListFiles(c *gin.Context) {
	res := h.Files.List()
	if !res.Usable() {
		h.fail(c, res.Err)
		return
	}
	markRecovered(c, res)

	out := make([]fileMeta, 0, len(res.Value))
	for _, f := range res.Value {
		out = append(out, metaOf(f))
	}
	c.JSON(http.StatusOK, out)
}

type uploadFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

func (h *Handler) UploadFiles(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files in field \"files\""})
		return
	}

	uploads := make([]files.Upload, 0, len(headers))
	for _, fh := range headers {
		uploads = append(uploads, files.Upload{
			Name:     fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Size:     fh.Size,
			Open:     func() (io.ReadCloser, error) { return fh.Open() },
		})
	}

	res := h.Files.PutBatch(c.Request.Context(), uploads)

	stored := make([]fileMeta, 0, len(res.Stored))
	for _, f := range res.Stored {
		stored = append(stored, metaOf(f))
	}
	failed := make([]uploadFailure, 0, len(res.Failed))
	for _, f := range res.Failed {
		failed = append(failed, uploadFailure{Name: f.Name, Error: f.Err.Error()})
	}

	status := http.StatusCreated
	switch {
	case len(res.Stored) == 0:
		status = statusFor(res.Failed[0].Err)
	case len(res.Failed) > 0:
		status = http.StatusMultiStatus
	}
	c.JSON(status, gin.H{"stored": stored, "failed": failed})
}

func (h *Handler) GetFile(c *gin.Context) {
	f, err := h.Files.GetByID(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, metaOf(f))
}

func (h *Handler) FileContent(c *gin.Context) {
	data, f, err := h.Files.Open(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	mime := f.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	c.Data(http.StatusOK, mime, data)
}

func (h *Handler) DeleteFile(c *gin.Context) {
	if err := h.Files.DeleteByID(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) ClearFiles(c *gin.Context) {
	if err := h.Files.Clear(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) FileUsage(c *gin.Context) {
	u, err := h.Files.Usage()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// --- Stats ---

func (h *Handler) statsBody(st schema.ActivityStats) gin.H {
	return gin.H{
		"statistics": st,
		"workTime":   stats.FormatWorkTime(st.WorkTime),
		"chart":      stats.Chart(st, h.now()),
	}
}

func (h *Handler) GetStats(c *gin.Context) {
	st, err := h.Stats.Refresh()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.statsBody(st))
}

func (h *Handler) ResetStats(c *gin.Context) {
	st, err := h.Stats.Reset()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.statsBody(st))
}

func (h *Handler) ExportStats(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.Stats.Export(&buf); err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", stats.ExportFilename(h.now())))
	c.Data(http.StatusOK, "application/json", buf.Bytes())
}

func (h *Handler) StartSession(c *gin.Context) {
	st, err := h.Stats.StartSession()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.statsBody(st))
}

type workTimeInput struct {
	Minutes int `json:"minutes" binding:"min=1"`
}

// AddWorkTime credits whole minutes of work to the dashboard.
func (h *Handler) AddWorkTime(c *gin.Context) {
	var input workTimeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := h.Stats.AddWorkTime(time.Duration(input.Minutes) * time.Minute)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.statsBody(st))
}
