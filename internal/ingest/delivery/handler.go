package delivery

import (
	"errors"
	"net/http"
	"strconv"

	authdelivery "mailvault-backend/internal/auth/delivery"
	"mailvault-backend/internal/ingest/domain"
	ingestdto "mailvault-backend/internal/ingest/dto"
	"mailvault-backend/internal/ingest/usecase"
	"mailvault-backend/pkg/sse"

	"github.com/gin-gonic/gin"
)

type IngestHandler struct {
	orchestrator *usecase.Orchestrator
	maintenance  *usecase.Maintenance
	sseManager   *sse.Manager
}

func NewIngestHandler(orchestrator *usecase.Orchestrator, maintenance *usecase.Maintenance, sseManager *sse.Manager) *IngestHandler {
	return &IngestHandler{
		orchestrator: orchestrator,
		maintenance:  maintenance,
		sseManager:   sseManager,
	}
}

// ListFolders returns the authenticated account's folders so clients can
// scope a folder ingestion.
func (h *IngestHandler) ListFolders(c *gin.Context) {
	source := authdelivery.SourceFromContext(c)
	if source == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no mail source bound to session"})
		return
	}

	folders, err := source.ListFolders(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ingestdto.FoldersResponse{Folders: folders})
}

// ResolveLink re-resolves a message's deep-link from the live source. Stored
// links go stale when a message is moved between folders; sources without
// deep-links return an empty link.
func (h *IngestHandler) ResolveLink(c *gin.Context) {
	source := authdelivery.SourceFromContext(c)
	if source == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no mail source bound to session"})
		return
	}

	id := c.Param("id")
	link, err := source.ResolveWebLink(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ingestdto.LinkResponse{MessageID: id, WebLink: link})
}

func (h *IngestHandler) StartRun(c *gin.Context) {
	source := authdelivery.SourceFromContext(c)
	if source == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no mail source bound to session"})
		return
	}

	var req ingestdto.StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	handle, err := h.orchestrator.Start(usecase.StartRequest{
		Source:     source,
		Mode:       req.Mode,
		MessageIDs: req.MessageIDs,
		FolderIDs:  req.FolderIDs,
		FolderCap:  req.FolderCap,
		BatchSize:  req.BatchSize,
		PageSize:   req.PageSize,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRunInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrNoItemsSelected):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusAccepted, snapshotOf(handle))
}

func (h *IngestHandler) GetRun(c *gin.Context) {
	handle, ok := h.orchestrator.Run(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	c.JSON(http.StatusOK, snapshotOf(handle))
}

// StreamEvents serves the run's SSE progress stream. An initial snapshot is
// published so late subscribers do not wait for the next batch boundary.
func (h *IngestHandler) StreamEvents(c *gin.Context) {
	handle, ok := h.orchestrator.Run(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	h.sseManager.Publish(handle.ID, "progress", handle.Progress())
	h.sseManager.ServeHTTP(c, handle.ID)
}

func (h *IngestHandler) PauseRun(c *gin.Context) {
	handle, ok := h.orchestrator.Run(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	handle.RequestPause()
	c.JSON(http.StatusOK, snapshotOf(handle))
}

func (h *IngestHandler) ResumeRun(c *gin.Context) {
	handle, ok := h.orchestrator.Run(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	if err := handle.Resume(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, snapshotOf(handle))
}

func (h *IngestHandler) CancelRun(c *gin.Context) {
	handle, ok := h.orchestrator.Run(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	handle.Cancel()
	c.JSON(http.StatusOK, snapshotOf(handle))
}

func (h *IngestHandler) ListRuns(c *gin.Context) {
	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := h.maintenance.ListRuns(limit)
	if err != nil {
		c.JSON(statusForStorage(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ingestdto.RunsResponse{Runs: runs})
}

func (h *IngestHandler) ClearRun(c *gin.Context) {
	deleted, err := h.maintenance.ClearRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusForStorage(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ingestdto.DeleteResponse{DeletedCount: deleted})
}

func (h *IngestHandler) ClearAll(c *gin.Context) {
	deleted, err := h.maintenance.ClearAll(c.Request.Context())
	if err != nil {
		c.JSON(statusForStorage(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ingestdto.DeleteResponse{DeletedCount: deleted})
}

func (h *IngestHandler) IndexStatus(c *gin.Context) {
	status, vectors, err := h.maintenance.IndexStatus(c.Request.Context())
	if err != nil {
		c.JSON(statusForStorage(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ingestdto.IndexStatusResponse{
		IndexedCount: status.IndexedCount,
		VectorCount:  vectors,
		LastUpdated:  status.LastUpdated,
	})
}

func snapshotOf(handle *usecase.RunHandle) ingestdto.RunSnapshot {
	snapshot := ingestdto.RunSnapshot{
		RunID:    handle.ID,
		Mode:     handle.Mode,
		Paused:   handle.Paused(),
		Progress: handle.Progress(),
	}
	if result := handle.Result(); result != nil {
		snapshot.Label = result.Label
		snapshot.Stored = result.Stored
	}
	return snapshot
}

func statusForStorage(err error) int {
	if errors.Is(err, domain.ErrStorageUnavailable) || errors.Is(err, domain.ErrEmbeddingUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
