package api

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avanderberg/scrumline/internal/backlog"
	"github.com/avanderberg/scrumline/internal/csvio"
	"github.com/avanderberg/scrumline/internal/domain"
)

type backlogItemResponse struct {
	Pos           int            `json:"pos"`
	Ticket        map[string]any `json:"ticket"`
	AlternateKeys []string       `json:"alternate_keys,omitempty"`
}

type backlogResponse struct {
	Name    string                `json:"name"`
	Scope   string                `json:"scope"`
	Columns []string              `json:"columns"`
	Items   []backlogItemResponse `json:"items"`
}

// getBacklog loads one backlog and renders it as JSON, or as CSV when
// format=csv is asked for.
func (s *Server) getBacklog(c *gin.Context) {
	name := c.Param("name")
	scope := c.DefaultQuery("scope", domain.GlobalScope)

	b, err := servicesFrom(c).backlogs.Open(c.Request.Context(), name, scope)
	if err != nil {
		writeError(c, err)
		return
	}

	if c.Query("format") == "csv" {
		var buf bytes.Buffer
		if err := csvio.ExportBacklog(&buf, s.cfg, b); err != nil {
			writeError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+b.Scope+`.csv"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
		return
	}

	c.JSON(http.StatusOK, renderBacklog(b))
}

func renderBacklog(b *backlog.Backlog) backlogResponse {
	resp := backlogResponse{
		Name:  b.Config.Name,
		Scope: b.Scope,
		Items: make([]backlogItemResponse, 0, len(b.Items())),
	}
	for _, col := range b.Config.Columns {
		resp.Columns = append(resp.Columns, col.String())
	}
	for _, item := range b.Items() {
		resp.Items = append(resp.Items, backlogItemResponse{
			Pos:           item.Pos,
			Ticket:        item.Ticket.AsDict(),
			AlternateKeys: item.AlternateKeys,
		})
	}
	return resp
}
