// Package api exposes the ticket, link, and backlog operations over HTTP.
// Every request gets its own store, so identity caches never leak between
// requests.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/avanderberg/scrumline/internal/backlog"
	"github.com/avanderberg/scrumline/internal/config"
	"github.com/avanderberg/scrumline/internal/csvio"
	"github.com/avanderberg/scrumline/internal/db"
	"github.com/avanderberg/scrumline/internal/repository"
	"github.com/avanderberg/scrumline/internal/rules"
	"github.com/avanderberg/scrumline/internal/service"
)

const requestIDHeader = "X-Request-Id"

// Server wires the HTTP routes to per-request service instances.
type Server struct {
	database *db.DB
	cfg      *config.Config
	obs      service.UseCaseObserver
}

func NewServer(database *db.DB, cfg *config.Config, observers ...service.UseCaseObserver) *Server {
	return &Server{database: database, cfg: cfg, obs: observerOrNoop(observers)}
}

func observerOrNoop(observers []service.UseCaseObserver) service.UseCaseObserver {
	for _, o := range observers {
		if o != nil {
			return o
		}
	}
	return service.NoopUseCaseObserver{}
}

// requestServices is the per-request service bundle built by the scope
// middleware.
type requestServices struct {
	tickets    *service.TicketService
	sprints    *service.SprintService
	milestones *service.MilestoneService
	backlogs   *service.BacklogService
}

const servicesKey = "scrumline.services"

func (s *Server) requestScope(c *gin.Context) {
	requestID := c.GetHeader(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header(requestIDHeader, requestID)

	store := repository.NewStore(s.database, s.cfg)
	uow := db.NewUnitOfWork(s.database)
	listeners := []service.ChangeListener{
		service.NewBacklogUpdater(store),
		service.NewBurndownLogger(store),
	}
	tickets := service.NewTicketService(store, s.cfg, uow, listeners, s.obs)
	c.Set(servicesKey, &requestServices{
		tickets:    tickets,
		sprints:    service.NewSprintService(store, uow, s.obs),
		milestones: service.NewMilestoneService(store, uow, s.obs),
		backlogs:   service.NewBacklogService(store, s.cfg, tickets, s.obs),
	})
	c.Next()
}

func servicesFrom(c *gin.Context) *requestServices {
	return c.MustGet(servicesKey).(*requestServices)
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestScope)

	r.GET("/ticket/:id", s.getTicket)
	r.PUT("/ticket/:id", s.updateTicket)
	r.DELETE("/ticket/:id", s.deleteTicket)
	r.POST("/newticket", s.newTicket)

	r.GET("/links", s.handleLinks)
	r.POST("/links", s.handleLinks)
	r.GET("/search-links", s.searchLinks)

	r.GET("/backlog/:name", s.getBacklog)
	return r
}

// writeError maps domain errors onto status codes: absent entities and
// unresolvable backlog scopes are 404, rule rejections and bad input are
// 400, everything else is 500.
func writeError(c *gin.Context, err error) {
	var validation *rules.ValidationError
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  validation.Message,
			"rule":   validation.RuleName,
			"ticket": validation.TicketID,
			"values": validation.Values,
		})
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, backlog.ErrUnknownBacklog),
		errors.Is(err, backlog.ErrMissingOrInvalidScope):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, csvio.ErrBadHeader):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func ticketID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "non-numeric ticket id"})
		return 0, false
	}
	return id, true
}
