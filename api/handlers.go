package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.Status())
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.Peers())
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target    string `json:"target"`
		Broadcast bool   `json:"broadcast"`
		Data      []byte `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	id, err := s.node.Send(req.Target, req.Broadcast, req.Data)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, struct {
		MessageID string `json:"message_id"`
	}{id})
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	n := 0
	if v := r.URL.Query().Get("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			n = parsed
		}
	}
	items, err := s.node.Inbox(n)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, items)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
		Data []byte `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	url, err := s.node.Publish(req.Path, req.Data)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, struct {
		URL string `json:"ely_url"`
	}{url})
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	data, err := s.node.Fetch(r.Context(), req.URL)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, struct {
		Data []byte `json:"data"`
	}{data})
}

func (s *Server) handleNameRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	rec, err := s.node.NameRegister(req.Name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, rec)
}

func (s *Server) handleNameResolve(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	nodeID, err := s.node.NameResolve(name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, struct {
		NodeID string `json:"node_id"`
	}{nodeID})
}

func (s *Server) handleBundleExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if err := s.node.BundleExport(req.Path); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, struct {
		OK bool `json:"ok"`
	}{true})
}

func (s *Server) handleBundleImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	counts, err := s.node.BundleImport(req.Path)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, counts)
}

func (s *Server) handleBundleInfo(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	meta, err := s.node.BundleInfo(path)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, meta)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NodeID    string `json:"node_id"`
		TimeoutMs int64  `json:"timeout_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rtt, err := s.node.Ping(r.Context(), req.NodeID, timeout)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, struct {
		RTTMs int64 `json:"rtt_ms"`
	}{rtt})
}
