package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/ayusman/bodydetect/internal/command"
	"github.com/ayusman/bodydetect/internal/session"
)

// maxCommandBody bounds request bodies; one-shot images travel inline.
const maxCommandBody = 32 << 20

// Dispatcher executes commands. *command.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req command.Request) command.Response
}

// StateSource exposes the current session state.
type StateSource interface {
	State() session.State
}

// CommandHandler handles POST /api/commands.
type CommandHandler struct {
	dispatcher Dispatcher
}

// NewCommandHandler creates a CommandHandler backed by d.
func NewCommandHandler(d Dispatcher) *CommandHandler {
	return &CommandHandler{dispatcher: d}
}

// ServeHTTP decodes a command request and writes the dispatcher's response.
// Command failures are reported in the response body with status 200.
func (h *CommandHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req command.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, "Method is required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	writeJSON(w, http.StatusOK, h.dispatcher.Dispatch(r.Context(), req))
}

type stateResponse struct {
	PoseEnabled   bool   `json:"pose_enabled"`
	MaskEnabled   bool   `json:"mask_enabled"`
	LensFacing    string `json:"lens_facing"`
	CameraRunning bool   `json:"camera_running"`
	Phase         string `json:"phase"`
	SessionID     string `json:"session_id,omitempty"`
}

// StateHandler handles GET /api/state.
type StateHandler struct {
	source StateSource
}

// NewStateHandler creates a StateHandler reading from src.
func NewStateHandler(src StateSource) *StateHandler {
	return &StateHandler{source: src}
}

func (h *StateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	st := h.source.State()
	resp := stateResponse{
		PoseEnabled:   st.PoseEnabled,
		MaskEnabled:   st.MaskEnabled,
		LensFacing:    st.LensFacing.String(),
		CameraRunning: st.CameraRunning,
		Phase:         st.Phase.String(),
	}
	if st.Generation != uuid.Nil {
		resp.SessionID = st.Generation.String()
	}
	writeJSON(w, http.StatusOK, resp)
}
