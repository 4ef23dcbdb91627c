package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/makeasinger/samplepack/internal/model"
	"github.com/makeasinger/samplepack/pkg/response"
	"github.com/rs/zerolog"
)

const pingInterval = 30 * time.Second

// JobSource looks up shared job records.
type JobSource interface {
	Get(id string) (*model.Job, error)
}

// Hub streams job progress to WebSocket clients. Each connection polls its
// job's snapshot and pushes a message whenever the observable state changes.
type Hub struct {
	jobs         JobSource
	pollInterval time.Duration
	logger       zerolog.Logger

	mu      sync.RWMutex
	clients map[string]int
}

// NewHub creates a new Hub
func NewHub(jobs JobSource, pollInterval time.Duration, logger zerolog.Logger) *Hub {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Hub{
		jobs:         jobs,
		pollInterval: pollInterval,
		logger:       logger.With().Str("component", "ws_hub").Logger(),
		clients:      make(map[string]int),
	}
}

// Connections returns the number of open progress streams across all jobs.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, n := range h.clients {
		total += n
	}
	return total
}

func (h *Hub) register(jobID string) {
	h.mu.Lock()
	h.clients[jobID]++
	subscribers := h.clients[jobID]
	h.mu.Unlock()
	h.logger.Debug().Str("job_id", jobID).Int("subscribers", subscribers).Msg("Client registered")
}

func (h *Hub) unregister(jobID string) {
	h.mu.Lock()
	if h.clients[jobID] <= 1 {
		delete(h.clients, jobID)
	} else {
		h.clients[jobID]--
	}
	subscribers := h.clients[jobID]
	h.mu.Unlock()
	h.logger.Debug().Str("job_id", jobID).Int("subscribers", subscribers).Msg("Client unregistered")
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string) {
	job, err := h.jobs.Get(jobID)
	if err != nil {
		data, _ := json.Marshal(errorMessage(jobID, response.CodeNotFound, "Job not found"))
		c.WriteMessage(websocket.TextMessage, data)
		c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return
	}

	h.register(jobID)
	defer h.unregister(jobID)

	send := make(chan []byte, 16)
	done := make(chan struct{})
	closed := make(chan struct{})

	// Writer goroutine owns every write to the connection
	go func() {
		defer close(done)
		defer c.Close()

		poll := time.NewTicker(h.pollInterval)
		defer poll.Stop()
		ping := time.NewTicker(pingInterval)
		defer ping.Stop()

		var last *model.JobSnapshot
		for {
			snap := job.Snapshot()
			if last == nil || changed(*last, snap) {
				if err := writeJSON(c, progressMessage(snap)); err != nil {
					return
				}
				last = &snap
			}
			if snap.Status.IsTerminal() {
				writeJSON(c, terminalMessage(snap))
				c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			select {
			case message := <-send:
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}
			case <-closed:
				return
			case <-poll.C:
			case <-ping.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("job_id", jobID).Msg("WebSocket read error")
			}
			break
		}

		// Handle client messages (ping/pong)
		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			data, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			select {
			case send <- data:
			case <-done:
			}
		}
	}

	close(closed)
	<-done
}

func writeJSON(c *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, data)
}

func changed(prev, next model.JobSnapshot) bool {
	return prev.Status != next.Status ||
		prev.Progress != next.Progress ||
		prev.CurrentStep != next.CurrentStep ||
		prev.SamplesGenerated != next.SamplesGenerated
}

func progressMessage(snap model.JobSnapshot) model.WSProgressMessage {
	return model.WSProgressMessage{
		Type:             model.WSMessageTypeProgress,
		JobID:            snap.ID,
		Progress:         snap.Progress,
		Status:           snap.Status,
		CurrentStep:      snap.CurrentStep,
		SamplesGenerated: snap.SamplesGenerated,
		TotalSamples:     snap.TotalSamples,
	}
}

// terminalMessage describes how a finished job ended.
func terminalMessage(snap model.JobSnapshot) interface{} {
	switch snap.Status {
	case model.JobStatusCompleted:
		return model.WSCompleteMessage{
			Type:        model.WSMessageTypeComplete,
			JobID:       snap.ID,
			DownloadURL: fmt.Sprintf("/sample/%s/download", snap.ID),
		}
	case model.JobStatusCanceled:
		return errorMessage(snap.ID, response.CodeJobCanceled, "Job was canceled")
	default:
		return errorMessage(snap.ID, response.CodeJobFailed, snap.Error)
	}
}

func errorMessage(jobID, code, message string) model.WSErrorMessage {
	return model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		JobID: jobID,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	}
}
