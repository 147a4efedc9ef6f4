package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/avanderberg/scrumline/internal/domain"
	"github.com/avanderberg/scrumline/internal/repository"
	"github.com/avanderberg/scrumline/internal/service"
)

// handleLinks creates or deletes one edge depending on the cmd parameter.
// An already-existing edge is not an error; the response reports success
// false, matching the boolean contract of the link operation.
func (s *Server) handleLinks(c *gin.Context) {
	cmd := c.Query("cmd")
	src, err1 := strconv.ParseInt(c.Query("src"), 10, 64)
	dest, err2 := strconv.ParseInt(c.Query("dest"), 10, 64)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "src and dest must be ticket ids"})
		return
	}
	tickets := servicesFrom(c).tickets
	ctx := c.Request.Context()
	srcTicket, err := tickets.Get(ctx, src)
	if err != nil {
		writeError(c, err)
		return
	}
	destTicket, err := tickets.Get(ctx, dest)
	if err != nil {
		writeError(c, err)
		return
	}

	switch cmd {
	case "create":
		err := tickets.LinkTo(ctx, srcTicket, destTicket)
		if errors.Is(err, repository.ErrLinkExists) {
			c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
			return
		}
		if errors.Is(err, service.ErrLinkNotAllowed) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "src": src, "dest": dest})
	case "delete":
		if err := tickets.DelLinkTo(ctx, srcTicket, destTicket); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "src": src, "dest": dest})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "cmd must be create or delete"})
	}
}

type linkedTicket struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	Summary string `json:"summary"`
}

// searchLinks finds link candidates for a ticket: every ticket whose summary
// matches q and whose type is allowed as a destination of the source's type.
// Already-linked tickets and the source itself are excluded.
func (s *Server) searchLinks(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a ticket id"})
		return
	}
	tickets := servicesFrom(c).tickets
	ctx := c.Request.Context()
	t, err := tickets.Get(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	candidates, err := tickets.LinkCandidates(ctx, t, c.Query("q"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ticket":     id,
		"candidates": asLinked(candidates),
	})
}

func asLinked(tickets []*domain.Ticket) []linkedTicket {
	out := make([]linkedTicket, len(tickets))
	for i, t := range tickets {
		out[i] = linkedTicket{ID: t.ID, Type: t.Type, Summary: t.Get(domain.FieldSummary)}
	}
	return out
}
