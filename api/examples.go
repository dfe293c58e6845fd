package api

import (
	"encoding/base64"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"

	"github.com/kafargo/neural-network-intro/nn"
	"github.com/kafargo/neural-network-intro/visual"
)

func encodePNG(png []byte) string {
	return base64.StdEncoding.EncodeToString(png)
}

// digitImage renders the input as base64 PNG when it is square, which holds
// for the MNIST 28x28 vectors. Non-square inputs (synthetic data) get no
// image.
func digitImage(input []float64, title string) string {
	cols := int(math.Sqrt(float64(len(input))))
	if cols == 0 || cols*cols != len(input) {
		return ""
	}
	png, err := visual.RenderDigit(input, cols, title)
	if err != nil {
		return ""
	}
	return encodePNG(png)
}

type predictRequest struct {
	ExampleIndex int `json:"example_index"`
}

func (s *Server) predict(w http.ResponseWriter, r *http.Request, id string) {
	var req predictRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	net, err := s.reg.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.ExampleIndex < 0 || req.ExampleIndex >= len(s.test) {
		badRequest(w, "example index out of range")
		return
	}
	sample := s.test[req.ExampleIndex]
	output, err := net.Feedforward(sample.Input)
	if err != nil {
		writeError(w, err)
		return
	}
	predicted := nn.Argmax(output)
	writeJSON(w, http.StatusOK, map[string]any{
		"example_index":     req.ExampleIndex,
		"predicted_digit":   predicted,
		"actual_digit":      sample.Label,
		"confidence_scores": output,
		"correct":           predicted == sample.Label,
	})
}

type predictBatchRequest struct {
	StartIndex int `json:"start_index"`
	Count      int `json:"count"`
}

func (s *Server) predictBatch(w http.ResponseWriter, r *http.Request, id string) {
	req := predictBatchRequest{Count: 10}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	net, err := s.reg.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.StartIndex < 0 || req.StartIndex >= len(s.test) {
		badRequest(w, "start index out of range")
		return
	}
	end := req.StartIndex + req.Count
	if end > len(s.test) {
		end = len(s.test)
	}

	results := make([]map[string]any, 0, end-req.StartIndex)
	for i := req.StartIndex; i < end; i++ {
		sample := s.test[i]
		predicted, err := net.Predict(sample.Input)
		if err != nil {
			writeError(w, err)
			return
		}
		results = append(results, map[string]any{
			"example_index":   i,
			"predicted_digit": predicted,
			"actual_digit":    sample.Label,
			"correct":         predicted == sample.Label,
			"image_data":      digitImage(sample.Input, ""),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"total":   len(results),
	})
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (s *Server) misclassified(w http.ResponseWriter, r *http.Request, id string) {
	maxCount := queryInt(r, "max_count", 10)
	maxCheck := queryInt(r, "max_check", 500)

	net, err := s.reg.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if maxCheck > len(s.test) {
		maxCheck = len(s.test)
	}

	results := make([]map[string]any, 0, maxCount)
	for i := 0; i < maxCheck && len(results) < maxCount; i++ {
		sample := s.test[i]
		predicted, err := net.Predict(sample.Input)
		if err != nil {
			writeError(w, err)
			return
		}
		if predicted == sample.Label {
			continue
		}
		results = append(results, map[string]any{
			"example_index":   i,
			"predicted_digit": predicted,
			"actual_digit":    sample.Label,
			"image_data":      digitImage(sample.Input, ""),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"misclassified": results})
}

// attempts bounds for the random example endpoints
const (
	successAttempts = 100
	failureAttempts = 200
)

func (s *Server) randomExample(w http.ResponseWriter, id string, wantCorrect bool) {
	net, err := s.reg.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(s.test) == 0 {
		badRequest(w, "no evaluation data loaded")
		return
	}
	attempts := successAttempts
	if !wantCorrect {
		attempts = failureAttempts
	}

	for a := 0; a < attempts; a++ {
		i := rand.Intn(len(s.test))
		sample := s.test[i]
		output, err := net.Feedforward(sample.Input)
		if err != nil {
			writeError(w, err)
			return
		}
		predicted := nn.Argmax(output)
		if (predicted == sample.Label) != wantCorrect {
			continue
		}
		title := fmt.Sprintf("Predicted: %d | Actual: %d", predicted, sample.Label)
		writeJSON(w, http.StatusOK, map[string]any{
			"network_id":      id,
			"example_index":   i,
			"predicted_digit": predicted,
			"actual_digit":    sample.Label,
			"image_data":      digitImage(sample.Input, title),
			"network_output":  output,
		})
		return
	}

	kind := "successful"
	if !wantCorrect {
		kind = "unsuccessful"
	}
	writeJSON(w, http.StatusNotFound, errorBody{
		Error: fmt.Sprintf("no %s example found after %d attempts", kind, attempts),
	})
}
