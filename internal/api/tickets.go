package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avanderberg/scrumline/internal/domain"
)

type newTicketRequest struct {
	Type   string            `json:"type" binding:"required"`
	Fields map[string]string `json:"fields"`
}

type updateTicketRequest struct {
	Fields map[string]string `json:"fields" binding:"required"`
}

func (s *Server) getTicket(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}
	t, err := servicesFrom(c).tickets.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t.AsDict())
}

func (s *Server) newTicket(c *gin.Context) {
	var req newTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.cfg.SchemaFor(req.Type) == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown ticket type " + req.Type})
		return
	}
	tickets := servicesFrom(c).tickets
	t := tickets.New(req.Type)
	for field, value := range req.Fields {
		t.Set(field, value)
	}
	if err := tickets.Create(c.Request.Context(), t); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t.AsDict())
}

func (s *Server) updateTicket(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}
	var req updateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tickets := servicesFrom(c).tickets
	ctx := c.Request.Context()
	t, err := tickets.Get(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	if newType, ok := req.Fields[domain.FieldType]; ok && newType != t.Type {
		if s.cfg.SchemaFor(newType) == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown ticket type " + newType})
			return
		}
		t.SetType(newType)
	}
	for field, value := range req.Fields {
		if field == domain.FieldType {
			continue
		}
		t.Set(field, value)
	}
	if err := tickets.Save(ctx, t); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t.AsDict())
}

func (s *Server) deleteTicket(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}
	if err := servicesFrom(c).tickets.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
