package delivery

import (
	"errors"
	"net/http"
	"strconv"

	ingestdomain "mailvault-backend/internal/ingest/domain"
	qadto "mailvault-backend/internal/qa/dto"
	"mailvault-backend/internal/qa/usecase"

	"github.com/gin-gonic/gin"
)

type QAHandler struct {
	qaUsecase    *usecase.QAUsecase
	headerSearch *usecase.HeaderSearch
}

func NewQAHandler(qaUsecase *usecase.QAUsecase, headerSearch *usecase.HeaderSearch) *QAHandler {
	return &QAHandler{
		qaUsecase:    qaUsecase,
		headerSearch: headerSearch,
	}
}

// SearchHeaders is the typo-tolerant header search, a cheap complement to the
// semantic query endpoint.
func (h *QAHandler) SearchHeaders(c *gin.Context) {
	query := c.Query("q")
	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	results, err := h.headerSearch.Search(query, limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *QAHandler) Query(c *gin.Context) {
	var req qadto.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answer, err := h.qaUsecase.Answer(c.Request.Context(), req.Question, req.MaxSources)
	if err != nil {
		switch {
		case errors.Is(err, ingestdomain.ErrSynthesisFailed):
			// Retrieval worked, synthesis did not. Return the sources so the
			// client can still show what was found.
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "sources": answer.Sources, "timings": answer.Timings})
		case errors.Is(err, ingestdomain.ErrEmbeddingUnavailable), errors.Is(err, ingestdomain.ErrStorageUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, answer)
}
