package api

import (
	"net/http"

	"github.com/kafargo/neural-network-intro/netstats"
	"github.com/kafargo/neural-network-intro/trainer"
	"github.com/kafargo/neural-network-intro/visual"
)

type createRequest struct {
	LayerSizes []int `json:"layer_sizes"`
}

type trainRequest struct {
	Epochs        int     `json:"epochs"`
	MiniBatchSize int     `json:"mini_batch_size"`
	LearningRate  float64 `json:"learning_rate"`
}

func (s *Server) handleNetworks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req createRequest
		if err := decodeBody(r, &req); err != nil {
			badRequest(w, "invalid JSON body: "+err.Error())
			return
		}
		sizes := req.LayerSizes
		if len(sizes) == 0 {
			sizes = s.defaults.LayerSizes
		}
		info, err := s.reg.Create(sizes)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"network_id":   info.ID,
			"architecture": info.Architecture,
			"status":       "created",
		})
	case http.MethodGet:
		infos, err := s.reg.List()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"networks": infos})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleNetworkSub(w http.ResponseWriter, r *http.Request) {
	id, action := splitNetworkPath(r.URL.Path)
	if id == "" {
		badRequest(w, "missing network id")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodDelete:
		s.deleteNetwork(w, id)
	case action == "train" && r.Method == http.MethodPost:
		s.trainNetwork(w, r, id)
	case action == "load" && r.Method == http.MethodPost:
		s.loadNetwork(w, id)
	case action == "stats" && r.Method == http.MethodGet:
		s.networkStats(w, id)
	case action == "visualize" && r.Method == http.MethodGet:
		s.visualizeNetwork(w, id)
	case action == "predict" && r.Method == http.MethodPost:
		s.predict(w, r, id)
	case action == "predict_batch" && r.Method == http.MethodPost:
		s.predictBatch(w, r, id)
	case action == "misclassified" && r.Method == http.MethodGet:
		s.misclassified(w, r, id)
	case action == "successful_example" && r.Method == http.MethodGet:
		s.randomExample(w, id, true)
	case action == "unsuccessful_example" && r.Method == http.MethodGet:
		s.randomExample(w, id, false)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) deleteNetwork(w http.ResponseWriter, id string) {
	if err := s.reg.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"network_id": id,
		"deleted":    true,
	})
}

func (s *Server) trainNetwork(w http.ResponseWriter, r *http.Request, id string) {
	req := trainRequest{
		Epochs:        s.defaults.Epochs,
		MiniBatchSize: s.defaults.MiniBatchSize,
		LearningRate:  s.defaults.LearningRate,
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	jobID, err := s.mgr.Submit(id, req.Epochs, req.MiniBatchSize, req.LearningRate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":     jobID,
		"network_id": id,
		"status":     "training_started",
	})
}

func (s *Server) loadNetwork(w http.ResponseWriter, id string) {
	info, err := s.reg.LoadSaved(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"network_id":   info.ID,
		"architecture": info.Architecture,
		"status":       "loaded",
	})
}

func (s *Server) networkStats(w http.ResponseWriter, id string) {
	net, err := s.reg.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	info, err := s.reg.Describe(id)
	if err != nil {
		writeError(w, err)
		return
	}
	// a trained network loaded from disk has no recorded accuracy yet
	if info.Trained && info.Accuracy == nil && len(s.test) > 0 {
		correct, err := trainer.Evaluate(net, s.test)
		if err != nil {
			writeError(w, err)
			return
		}
		acc := float64(correct) / float64(len(s.test))
		s.reg.SetAccuracy(id, acc)
		info.Accuracy = &acc
	}
	weights, err := netstats.WeightStats(net)
	if err != nil {
		writeError(w, err)
		return
	}
	biases, err := netstats.BiasStats(net)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"network_id":   id,
		"architecture": info.Architecture,
		"trained":      info.Trained,
		"accuracy":     info.Accuracy,
		"weight_stats": weights,
		"bias_stats":   biases,
	})
}

func (s *Server) visualizeNetwork(w http.ResponseWriter, id string) {
	net, err := s.reg.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	png, err := visual.Architecture(net.Sizes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"network_id":    id,
		"visualization": encodePNG(png),
	})
}
