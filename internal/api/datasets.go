package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/quantopia/internal/dataset"
	"github.com/yourusername/quantopia/internal/models"
)

func (s *Server) handleListDatasets(c *gin.Context) {
	if s.deps.Datasets == nil {
		unavailable(c, "dataset store")
		return
	}
	list, err := s.deps.Datasets.List()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"datasets": list, "count": len(list)})
}

func (s *Server) handleGenerateDataset(c *gin.Context) {
	if s.deps.Datasets == nil {
		unavailable(c, "dataset store")
		return
	}
	opts := dataset.DefaultOptions()
	if err := c.ShouldBindJSON(&opts); err != nil {
		badRequest(c, err.Error())
		return
	}
	if opts.Length > s.cfg.MaxSeriesLength {
		s.fail(c, models.NewConfigurationError("length", "must not exceed %d", s.cfg.MaxSeriesLength))
		return
	}

	meta, points, err := s.deps.Generator.Generate(opts)
	if err != nil {
		s.fail(c, err)
		return
	}
	saved, err := s.deps.Datasets.Save(meta, points)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (s *Server) handleGetDataset(c *gin.Context) {
	if s.deps.Datasets == nil {
		unavailable(c, "dataset store")
		return
	}
	meta, points, err := s.deps.Datasets.Load(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metadata": meta, "points": points})
}

func (s *Server) handleDeleteDataset(c *gin.Context) {
	if s.deps.Datasets == nil {
		unavailable(c, "dataset store")
		return
	}
	if err := s.deps.Datasets.Delete(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
