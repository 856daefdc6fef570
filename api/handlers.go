package api

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/spool/pkg/annotate"
	"github.com/papercomputeco/spool/pkg/catalog"
	"github.com/papercomputeco/spool/pkg/service"
)

// ErrorResponse is the JSON body returned for every error status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListResponse is the body of GET /logs.
type ListResponse struct {
	Subject string           `json:"subject"`
	Version uint64           `json:"version"`
	Count   int              `json:"count"`
	Logs    []*catalog.Entry `json:"logs"`
}

// TagsRequest is the body of PUT /logs/:name/tags.
type TagsRequest struct {
	Tags []string `json:"tags"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleVersion returns the catalog version and current subject.
func (s *Server) handleVersion(c *fiber.Ctx) error {
	return c.JSON(map[string]any{
		"subject": s.svc.Subject(),
		"version": s.svc.Version(),
	})
}

// handleRefresh reconciles the backend list for a subject and schedules
// hydration. The call returns once metadata is in place; hydration carries
// on in the background and is observable via GET /hydration.
func (s *Server) handleRefresh(c *fiber.Ctx) error {
	subject := c.Query("subject")
	if subject == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "subject parameter required"})
	}

	if err := s.svc.Refresh(c.Context(), subject); err != nil {
		if errors.Is(err, service.ErrRefreshInFlight) {
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: "refresh already in flight"})
		}
		s.logger.Warn("refresh failed", "subject", subject, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: "failed to list logs"})
	}

	return c.Status(fiber.StatusAccepted).JSON(map[string]any{
		"subject": subject,
		"version": s.svc.Version(),
	})
}

// handleHydration returns the current hydration session's counters.
func (s *Server) handleHydration(c *fiber.Ctx) error {
	progress := s.svc.HydrationProgress()
	return c.JSON(map[string]any{
		"loaded":   progress.Loaded,
		"total":    progress.Total,
		"complete": s.svc.IsHydrationComplete(),
	})
}

// handleListLogs returns a filtered, ordered snapshot. Messages are
// stripped from the listing; GET /logs/:name returns the full entry.
func (s *Server) handleListLogs(c *fiber.Ctx) error {
	filter, err := filterFromQuery(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	field := catalog.SortRecency
	switch sort := c.Query("sort"); sort {
	case "", "recency":
	case "name":
		field = catalog.SortName
	case "messages":
		field = catalog.SortMessageCount
	default:
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "unknown sort field"})
	}

	entries := s.svc.GetFilteredSortedSnapshot(filter, field)
	for _, e := range entries {
		e.Messages = nil
	}

	return c.JSON(ListResponse{
		Subject: s.svc.Subject(),
		Version: s.svc.Version(),
		Count:   len(entries),
		Logs:    entries,
	})
}

// handleGetLog returns a single entry by name, messages included.
func (s *Server) handleGetLog(c *fiber.Ctx) error {
	name := c.Params("name")

	entry, ok := s.svc.GetEntry(name)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "log not found"})
	}

	return c.JSON(entry)
}

// handleSiblings returns the logs that branch off the named log. By
// default it reads the divergence facts stored by the last detection run;
// with ?computed=true it recomputes against the named log on demand
// without touching stored facts.
func (s *Server) handleSiblings(c *fiber.Ctx) error {
	name := c.Params("name")
	if _, ok := s.svc.GetEntry(name); !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "log not found"})
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid limit"})
		}
		limit = n
	}

	siblings := s.svc.SiblingsOf(name, limit)
	if c.QueryBool("computed") {
		siblings = s.svc.SiblingsOfArbitrary(name, limit)
	}

	return c.JSON(map[string]any{
		"name":     name,
		"count":    len(siblings),
		"siblings": siblings,
	})
}

// handleHydrateNow fetches one log synchronously.
func (s *Server) handleHydrateNow(c *fiber.Ctx) error {
	name := c.Params("name")
	if _, ok := s.svc.GetEntry(name); !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "log not found"})
	}

	hydrated := s.svc.HydrateNow(c.Context(), name)
	return c.JSON(map[string]any{
		"name":     name,
		"hydrated": hydrated,
	})
}

// handlePrioritize moves a queued log to the front of the hydration queue.
func (s *Server) handlePrioritize(c *fiber.Ctx) error {
	name := c.Params("name")
	if _, ok := s.svc.GetEntry(name); !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "log not found"})
	}

	s.svc.PrioritizeHydration(name)
	return c.SendStatus(fiber.StatusAccepted)
}

// handleAnnotate asks the configured annotation source for one entry's
// auxiliary data and stores it.
func (s *Server) handleAnnotate(c *fiber.Ctx) error {
	name := c.Params("name")

	if err := s.svc.AnnotateEntry(c.Context(), name); err != nil {
		if errors.Is(err, annotate.ErrNotConfigured) {
			return c.Status(fiber.StatusNotImplemented).JSON(ErrorResponse{Error: "no annotation source configured"})
		}
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "log not found"})
	}

	entry, _ := s.svc.GetEntry(name)
	return c.JSON(entry)
}

// handleSetTags replaces one entry's tags.
func (s *Server) handleSetTags(c *fiber.Ctx) error {
	name := c.Params("name")

	var req TagsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if !s.svc.SetTags(name, req.Tags) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "log not found"})
	}

	return c.JSON(map[string]any{
		"name": name,
		"tags": req.Tags,
	})
}

// handleDetectBranches recomputes every entry's divergence fact relative
// to the reference log.
func (s *Server) handleDetectBranches(c *fiber.Ctx) error {
	reference := c.Params("reference")
	if _, ok := s.svc.GetEntry(reference); !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "log not found"})
	}

	s.svc.DetectBranches(reference)
	return c.Status(fiber.StatusAccepted).JSON(map[string]any{
		"reference": reference,
		"version":   s.svc.Version(),
	})
}

// handleTrie merges the hydrated entries into a laid-out prefix tree.
// ?active names the log that sorts first at every node; ?focus re-roots
// the tree at the deepest branch point on that log's path.
func (s *Server) handleTrie(c *fiber.Ctx) error {
	tree := s.svc.BuildTrie(c.Query("active"), c.Query("focus"))
	return c.JSON(map[string]any{
		"version": s.svc.Version(),
		"tree":    tree,
	})
}

// filterFromQuery parses the snapshot filter predicates out of GET /logs
// query parameters.
func filterFromQuery(c *fiber.Ctx) (catalog.Filter, error) {
	var f catalog.Filter

	if tags := c.Query("tags"); tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				f.Tags = append(f.Tags, tag)
			}
		}
	}

	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, errors.New("invalid from, want RFC 3339")
		}
		f.From = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, errors.New("invalid to, want RFC 3339")
		}
		f.To = t
	}

	if raw := c.Query("min_messages"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, errors.New("invalid min_messages")
		}
		f.MinMessages = n
	}
	if raw := c.Query("max_messages"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, errors.New("invalid max_messages")
		}
		f.MaxMessages = n
	}

	return f, nil
}
