package server

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warden-shared/warden-engine/job"
	"github.com/warden-shared/warden-engine/logger"
	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/transport/api"
)

// Server master 侧的节点协议端点。worker 上行消息进 eventChan，
// 下行指令按节点排队，由 worker 轮询取走。
type Server struct {
	eventChan   chan *api.Event
	mu          sync.Mutex
	orderQueues map[string]chan *api.Order
	management  Management
}

// Management 管理端点的后端，由 master engine 在启动后注入
type Management interface {
	TriggerJob(name string) (*model.JobDetail, error)
	CancelRun(name string, id int) error
	ListJobs(keyword string, page, size int) (*model.JobPage, error)
	ListSchedules() []api.ScheduleSummary
}

const orderQueueSize = 100

func New(eventChan chan *api.Event) *Server {
	return &Server{
		eventChan:   eventChan,
		orderQueues: make(map[string]chan *api.Order),
	}
}

// Start 启动 http server，非阻塞
func Start(listenAddress string, eventChan chan *api.Event) (*Server, error) {
	s := New(eventChan)

	go func() {
		logger.Infof("node api server listen on %s", listenAddress)
		if err := http.ListenAndServe(listenAddress, s.Routes()); err != nil {
			logger.Errorf("node api server serve failed: %v", err)
		}
	}()
	return s, nil
}

// Routes 完整的路由表
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/nodes", s.handleRegister)
		r.Delete("/nodes/{key}", s.handleUnregister)
		r.Put("/nodes/{key}/ping", s.handlePing)
		r.Get("/nodes/{key}/work", s.handleWork)
		r.Post("/nodes/{key}/ack", s.handleAck)
		r.Put("/runs/{name}/{id}/status", s.handleStatus)
		r.Put("/runs/{name}/{id}/log", s.handleLog)
		r.Post("/runs/{name}/{id}/artifacts/{artifact}", s.handleArtifact)

		r.Get("/jobs", s.handleListJobs)
		r.Post("/jobs/{name}/runs", s.handleTrigger)
		r.Delete("/runs/{name}/{id}", s.handleCancelRun)
		r.Get("/schedules", s.handleListSchedules)
	})
	return r
}

// SetManagement 注入管理端点的后端
func (s *Server) SetManagement(m Management) {
	s.mu.Lock()
	s.management = m
	s.mu.Unlock()
}

func (s *Server) getManagement() Management {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.management
}

// Enqueue 给某个节点排一条指令
func (s *Server) Enqueue(nodeKey string, order *api.Order) {
	s.queueFor(nodeKey) <- order
}

func (s *Server) queueFor(nodeKey string) chan *api.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.orderQueues[nodeKey]
	if !ok {
		q = make(chan *api.Order, orderQueueSize)
		s.orderQueues[nodeKey] = q
	}
	return q
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var node api.Node
	if err := json.NewDecoder(r.Body).Decode(&node); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.eventChan <- &api.Event{Type: api.EventRegister, Node: node}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	var node api.Node
	if err := json.NewDecoder(r.Body).Decode(&node); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.eventChan <- &api.Event{Type: api.EventUnregister, Node: node}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	var node api.Node
	if err := json.NewDecoder(r.Body).Decode(&node); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.eventChan <- &api.Event{Type: api.EventPing, Node: node}
	w.WriteHeader(http.StatusOK)
}

// handleWork 长轮询，拿不到指令时最多等 25 秒再让 worker 重来
func (s *Server) handleWork(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	select {
	case order := <-s.queueFor(key):
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(order)
	case <-time.After(25 * time.Second):
		w.WriteHeader(http.StatusNoContent)
	case <-r.Context().Done():
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Node api.Node `json:"node"`
		Ack  api.Ack  `json:"ack"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.eventChan <- &api.Event{Type: api.EventAck, Node: body.Node, Ack: &body.Ack}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var report api.StatusReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	report.Name = name
	report.RunId = id
	s.eventChan <- &api.Event{Type: api.EventStatus, Status: &report}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	content, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.eventChan <- &api.Event{Type: api.EventLog, Log: &api.LogChunk{
		Name:    name,
		RunId:   id,
		Content: string(content),
	}}
	w.WriteHeader(http.StatusOK)
}

// handleArtifact 接收 worker 推上来的构建物，落到该 run 的 artifactory 目录
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	artifact := chi.URLParam(r, "artifact")
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	destDir := job.ArtifactoryDir(name, id)
	if err := os.MkdirAll(destDir, os.ModePerm); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	dest := filepath.Join(destDir, artifact)
	f, err := os.Create(dest)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	if _, err := io.Copy(f, file); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	logger.Debugf("stored artifact %s for run %s(%d)", artifact, name, id)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	m := s.getManagement()
	if m == nil {
		http.Error(w, "engine not ready", http.StatusServiceUnavailable)
		return
	}
	detail, err := m.TriggerJob(chi.URLParam(r, "name"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(detail)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	m := s.getManagement()
	if m == nil {
		http.Error(w, "engine not ready", http.StatusServiceUnavailable)
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := m.CancelRun(chi.URLParam(r, "name"), id); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	m := s.getManagement()
	if m == nil {
		http.Error(w, "engine not ready", http.StatusServiceUnavailable)
		return
	}
	page, size := 1, 100
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil && v > 0 {
		size = v
	}
	jobs, err := m.ListJobs(r.URL.Query().Get("keyword"), page, size)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jobs)
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	m := s.getManagement()
	if m == nil {
		http.Error(w, "engine not ready", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m.ListSchedules())
}
