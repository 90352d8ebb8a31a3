package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/emrgen/vault"
	"github.com/emrgen/vault/internal/compress"
	"github.com/emrgen/vault/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// Server exposes the store to collaborating subsystems over REST. It is a
// thin surface: every handler delegates to the in-process services and maps
// error kinds to status codes.
type Server struct {
	vault *vault.Vault
	http  *http.Server
}

func NewServer(v *vault.Vault, addr string) *Server {
	s := &Server{vault: v}

	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Post("/modules", s.mountModule)
		r.Get("/modules", s.listModules)
		r.Delete("/modules/{name}", s.unmountModule)
		r.Get("/modules/{name}/tree", s.getTree)
		r.Get("/modules/{name}/export", s.exportModule)
		r.Post("/modules/import", s.importModule)
		r.Get("/modules/{name}/cards/stats", s.cardStats)
		r.Get("/modules/{name}/cards/due", s.dueCards)
		r.Get("/modules/{name}/tasks/stats", s.taskStats)

		r.Post("/nodes", s.createNode)
		r.Get("/nodes/{id}", s.getNode)
		r.Patch("/nodes/{id}", s.updateNode)
		r.Delete("/nodes/{id}", s.deleteNode)
		r.Post("/nodes/{id}/move", s.moveNode)
		r.Post("/nodes/{id}/rename", s.renameNode)
		r.Post("/nodes/{id}/copy", s.copyNode)

		r.Post("/cards/{id}/grade", s.gradeCard)
		r.Post("/cards/{id}/reset", s.resetCard)
		r.Post("/tasks/{id}/done", s.setTaskDone)
	})

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(r)

	s.http = &http.Server{Addr: addr, Handler: handler}
	return s
}

func (s *Server) Start() error {
	logrus.Infof("listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) mountModule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !decode(w, r, &req) {
		return
	}

	mod, err := s.vault.Modules().Mount(r.Context(), req.Name, req.Description)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mod)
}

func (s *Server) listModules(w http.ResponseWriter, r *http.Request) {
	mods, err := s.vault.Modules().List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mods)
}

func (s *Server) unmountModule(w http.ResponseWriter, r *http.Request) {
	if err := s.vault.Modules().Unmount(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.vault.Nodes().GetTree(r.Context(), chi.URLParam(r, "name"), nil)
	if err != nil {
		writeErr(w, err)
		return
	}
	if tree == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) exportModule(w http.ResponseWriter, r *http.Request) {
	codec, err := compress.FromName(r.URL.Query().Get("codec"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	data, err := s.vault.Modules().Export(r.Context(), chi.URLParam(r, "name"), codec)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) importModule(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	mod, err := s.vault.Modules().Import(r.Context(), data)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mod)
}

func (s *Server) createNode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Module       string            `json:"module"`
		Path         string            `json:"path"`
		Kind         string            `json:"kind"`
		Content      string            `json:"content"`
		Meta         map[string]string `json:"meta"`
		Capabilities []string          `json:"capabilities"`
	}
	if !decode(w, r, &req) {
		return
	}

	node, err := s.vault.Nodes().Create(r.Context(), service.CreateNodeRequest{
		Module:       req.Module,
		Path:         req.Path,
		Kind:         req.Kind,
		Content:      req.Content,
		Meta:         req.Meta,
		Capabilities: req.Capabilities,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (s *Server) getNode(w http.ResponseWriter, r *http.Request) {
	node, err := s.vault.Nodes().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) updateNode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content      *string           `json:"content"`
		Meta         map[string]string `json:"meta"`
		Capabilities []string          `json:"capabilities"`
	}
	if !decode(w, r, &req) {
		return
	}

	node, err := s.vault.Nodes().Update(r.Context(), chi.URLParam(r, "id"), service.UpdateNodeRequest{
		Content:      req.Content,
		Meta:         req.Meta,
		Capabilities: req.Capabilities,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) deleteNode(w http.ResponseWriter, r *http.Request) {
	result, err := s.vault.Nodes().Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"removed_id":  result.RemovedID,
		"removed_ids": result.RemovedIDs,
	})
}

func (s *Server) moveNode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParentID string `json:"parent_id"`
	}
	if !decode(w, r, &req) {
		return
	}

	node, err := s.vault.Nodes().Move(r.Context(), chi.URLParam(r, "id"), req.ParentID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) renameNode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}

	node, err := s.vault.Nodes().Rename(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) copyNode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParentID string `json:"parent_id"`
	}
	if !decode(w, r, &req) {
		return
	}

	node, err := s.vault.Nodes().Copy(r.Context(), chi.URLParam(r, "id"), req.ParentID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (s *Server) cardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.vault.Cards().Stats(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) dueCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.vault.Cards().ListDue(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

func (s *Server) taskStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.vault.Tasks().Stats(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) gradeCard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Grade int `json:"grade"`
	}
	if !decode(w, r, &req) {
		return
	}

	card, err := s.vault.Cards().Grade(r.Context(), chi.URLParam(r, "id"), service.Grade(req.Grade))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) resetCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.vault.Cards().Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) setTaskDone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Done bool `json:"done"`
	}
	if !decode(w, r, &req) {
		return
	}

	task, err := s.vault.Tasks().SetDone(r.Context(), chi.URLParam(r, "id"), req.Done)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("failed to encode response: %v", err)
	}
}

func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case service.IsNotFound(err):
		status = http.StatusNotFound
	case service.IsConflict(err):
		status = http.StatusConflict
	case service.IsValidation(err):
		status = http.StatusBadRequest
	case service.IsProvider(err):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
