package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/booktutor/internal/pkg/response"
	"github.com/xxxsen/booktutor/internal/retrieval"
	"github.com/xxxsen/booktutor/internal/service"
)

type IndexHandler struct {
	indexer   service.IChapterIndexer
	retriever *retrieval.Retriever
}

func NewIndexHandler(indexer service.IChapterIndexer, retriever *retrieval.Retriever) *IndexHandler {
	return &IndexHandler{indexer: indexer, retriever: retriever}
}

func (h *IndexHandler) IndexChapter(c *gin.Context) {
	id := c.Param("id")
	if err := h.indexer.IndexChapter(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"chapter_id": id, "indexed": true})
}

func (h *IndexHandler) DeleteChapter(c *gin.Context) {
	id := c.Param("id")
	if err := h.indexer.DeleteChapterIndex(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"chapter_id": id, "deleted": true})
}

// IndexPublished always answers with the report; failed chapter ids are
// listed in it.
func (h *IndexHandler) IndexPublished(c *gin.Context) {
	report, err := h.indexer.IndexAllPublished(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, report)
}

func (h *IndexHandler) Related(c *gin.Context) {
	topK, ok := queryInt(c, "top_k", 5)
	if !ok || topK == 0 || topK > 50 {
		badRequest(c, "invalid top_k")
		return
	}
	chunks, err := h.retriever.FindRelatedChunks(c.Request.Context(), c.Param("id"), topK)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, chunks)
}
