package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MeKo-Tech/evalocr/internal/pipeline"
)

// BatchOCRRequest represents a batch recognition request. Strategies,
// Profile and Timeout apply to images that do not set their own.
type BatchOCRRequest struct {
	Images     []ImagePayload `json:"images"`
	Strategies []string       `json:"strategies,omitempty"`
	Profile    string         `json:"profile,omitempty"`
	Timeout    string         `json:"timeout,omitempty"`
}

// BatchOCRResponse represents the response for batch recognition.
type BatchOCRResponse struct {
	Success bool                   `json:"success"`
	Results []BatchOCRResult       `json:"results,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Summary BatchProcessingSummary `json:"summary"`
}

// BatchOCRResult represents a single result in batch processing.
type BatchOCRResult struct {
	Name    string           `json:"name"`
	Success bool             `json:"success"`
	Result  *pipeline.Result `json:"result,omitempty"`
	Error   *OCRResponse     `json:"error,omitempty"`
}

// BatchProcessingSummary provides summary statistics for batch processing.
type BatchProcessingSummary struct {
	TotalItems    int     `json:"total_items"`
	Successful    int     `json:"successful"`
	Failed        int     `json:"failed"`
	TotalDuration float64 `json:"total_duration_seconds"`
	AvgItemTime   float64 `json:"avg_item_time_seconds"`
}

// batchHandler recognizes several images concurrently.
func (s *Server) batchHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())

	var req BatchOCRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if tooLarge(err) {
			s.writeError(w, s.payloadTooLarge(r))
			return
		}
		s.writeJSON(w, http.StatusBadRequest, BatchOCRResponse{Error: fmt.Sprintf("Failed to parse JSON request: %v", err)})
		return
	}
	if len(req.Images) == 0 {
		s.writeJSON(w, http.StatusBadRequest, BatchOCRResponse{Error: "No images provided in batch request"})
		return
	}
	if len(req.Images) > s.maxBatch {
		s.writeJSON(w, http.StatusBadRequest, BatchOCRResponse{
			Error: fmt.Sprintf("Batch size too large (maximum %d items)", s.maxBatch),
		})
		return
	}

	// Images that fail to decode are reported without being recognized.
	results := make([]BatchOCRResult, len(req.Images))
	reqs := make([]pipeline.Request, 0, len(req.Images))
	index := make([]int, 0, len(req.Images))
	for i, item := range req.Images {
		results[i].Name = item.Name
		if len(item.Strategies) == 0 {
			item.Strategies = req.Strategies
		}
		if item.Profile == "" {
			item.Profile = req.Profile
		}
		if item.Timeout == "" {
			item.Timeout = req.Timeout
		}
		pr, err := item.toRequest()
		if err != nil {
			resp := errorResponse(err)
			results[i].Error = &resp
			continue
		}
		uploadSizeBytes.Observe(float64(pr.Image.Size()))
		reqs = append(reqs, pr)
		index = append(index, i)
	}

	release, err := s.acquireSlot(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer release()

	start := time.Now()
	if len(reqs) > 0 {
		items, _ := s.pipeline.RecognizeBatch(r.Context(), reqs, pipeline.BatchConfig{MaxWorkers: s.batchWorkers})
		for _, item := range items {
			slot := &results[index[item.Index]]
			if item.Err != nil {
				resp := errorResponse(item.Err)
				slot.Error = &resp
				continue
			}
			slot.Success = true
			slot.Result = item.Result
		}
	}
	total := time.Since(start)

	summary := BatchProcessingSummary{TotalItems: len(results), TotalDuration: total.Seconds()}
	for _, res := range results {
		if res.Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}
	summary.AvgItemTime = summary.TotalDuration / float64(summary.TotalItems)

	status := "success"
	if summary.Failed > 0 {
		status = "error"
	}
	ocrRequestsTotal.WithLabelValues("batch", status).Inc()
	ocrProcessingDuration.WithLabelValues("batch").Observe(total.Seconds())

	s.writeJSON(w, http.StatusOK, BatchOCRResponse{
		Success: summary.Failed == 0,
		Results: results,
		Summary: summary,
	})
}
