package window

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/codefionn/vo/internal/protocol"
	"github.com/julienschmidt/httprouter"
)

const maxRequestBytes = 1 << 20

func (s *Server) routes() http.Handler {
	router := httprouter.New()
	router.GET(protocol.PathHealth, s.handleHealth)
	router.GET(protocol.PathFiles, s.handleFiles)
	router.POST(protocol.PathOpen, s.handleOpen)
	router.POST(protocol.PathFocus, s.handleFocus)
	return router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, protocol.IdentityResponse{
		Status:    protocol.StatusOK,
		Workspace: s.opts.Workspace,
		OwnerID:   s.ownerID,
	})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	files, err := s.opts.Editor.OpenFiles(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, protocol.FilesResponse{Success: false, Error: err.Error()})
		return
	}
	if files == nil {
		files = []string{}
	}
	writeJSON(w, http.StatusOK, protocol.FilesResponse{Success: true, Files: files})
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req protocol.OpenRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err == nil {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.OpenResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.OpenResponse{Error: err.Error()})
		return
	}

	ctx := r.Context()
	if err := s.opts.Editor.ApplyModes(ctx, Modes{DistractionFree: req.DistractionFree}); err != nil {
		writeJSON(w, http.StatusInternalServerError, protocol.OpenResponse{Error: fmt.Sprintf("failed to apply modes: %v", err)})
		return
	}

	used := protocol.HandlerDefault
	var openErr error
	if h, ok := s.lookupHandler(req); ok {
		used = h.Name()
		openErr = h.Open(ctx, s.opts.Editor, req)
	} else {
		openErr = s.opts.Editor.Open(ctx, req.File, req.Line)
	}

	if openErr != nil {
		s.log.Warn("open %s via %s failed: %v", req.File, used, openErr)
		writeJSON(w, http.StatusInternalServerError, protocol.OpenResponse{Error: openErr.Error(), HandlerUsed: used})
		return
	}
	s.log.Debug("opened %s:%d via %s", req.File, req.Line, used)
	writeJSON(w, http.StatusOK, protocol.OpenResponse{Success: true, HandlerUsed: used})
}

func (s *Server) lookupHandler(req protocol.OpenRequest) (Handler, bool) {
	if req.BypassHandlers {
		return nil, false
	}
	return s.opts.Handlers.Lookup(req.File)
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := s.Focused(); err != nil {
		writeJSON(w, http.StatusInternalServerError, protocol.Ack{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, protocol.Ack{Success: true})
}
