// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: July 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api exposes every imperative engine command as a gorilla/mux
// HTTP route: plot and statistics-provider lifecycle
// (apply/destroy/create/reset), the active-column set, point-in-time
// reads against the capture store (ranged data, latest window,
// interpolation, one-shot statistics), and CSV export. The manager's Go
// channels remain the push-side ground truth (internal/bus fans those
// out); this package is the pull-side control surface.
//
// Route shape and error-response envelope are grounded on
// ClusterCockpit-cc-backend's api.RestApi (gorilla/mux subrouter,
// decode-with-DisallowUnknownFields, {"status","error"} JSON error
// body); the route-per-command layering mirrors a rate-limiter's own
// HTTP server package, generalized to this engine's command set.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/twinleaf/trendline/internal/contracts"
	"github.com/twinleaf/trendline/internal/exportcsv"
	"github.com/twinleaf/trendline/internal/kernels"
)

// CaptureStore is the slice of the capture store the API needs for its
// read-only query routes and the active-column-set command.
type CaptureStore interface {
	GetDataAcrossSessionsForKeys(keys []contracts.DataColumnId, tMin, tMax float64) map[contracts.DataColumnId][]contracts.Point
	GetLatestUnifiedTimestamp(keys []contracts.DataColumnId) (float64, bool)
	InterpolateAt(key contracts.DataColumnId, t float64) (float64, bool)
	SetActiveColumns(portURL string, keys []contracts.DataColumnId)
	ListPortStates() map[string]contracts.PortState
	GetColumnMeta(key contracts.DataColumnId) (contracts.ColumnMeta, bool)
}

// PlotManager is the slice of the pipeline manager the API needs for
// plot and statistics-provider lifecycle commands. *manager.Manager
// satisfies this without modification.
type PlotManager interface {
	ApplyPlotConfig(config contracts.SharedPlotConfig) ([]contracts.PipelineId, error)
	DestroyPlotPipelines(plotID string)
	CreateStatisticsProvider(sourceKey contracts.DataColumnId, windowSeconds float64) contracts.PipelineId
	ResetStatisticsProvider(id contracts.PipelineId)
	Destroy(id contracts.PipelineId)
}

// Server implements the HTTP control surface.
type Server struct {
	capture CaptureStore
	manager PlotManager
	log     zerolog.Logger
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger overrides the zerolog.Logger used for request diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// NewServer constructs a Server bound to capture and manager.
func NewServer(capture CaptureStore, manager PlotManager, opts ...Option) *Server {
	s := &Server{capture: capture, manager: manager, log: log.Logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// MountRoutes registers every route under r.
func (s *Server) MountRoutes(r *mux.Router) {
	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/plots", s.handleApplyPlotConfig).Methods(http.MethodPost)
	v1.HandleFunc("/plots/{id}", s.handleDestroyPlot).Methods(http.MethodDelete)

	v1.HandleFunc("/stats", s.handleCreateStatisticsProvider).Methods(http.MethodPost)
	v1.HandleFunc("/stats", s.handleGetStreamStatistics).Methods(http.MethodGet)
	v1.HandleFunc("/stats/{id}/reset", s.handleResetStatisticsProvider).Methods(http.MethodPost)
	v1.HandleFunc("/stats/{id}", s.handleDestroyStatisticsProvider).Methods(http.MethodDelete)

	v1.HandleFunc("/active-columns", s.handleSetActiveColumns).Methods(http.MethodPost)

	v1.HandleFunc("/plot-data", s.handleGetPlotDataInRange).Methods(http.MethodGet)
	v1.HandleFunc("/latest-plot-data", s.handleGetLatestPlotData).Methods(http.MethodGet)
	v1.HandleFunc("/interpolate", s.handleInterpolate).Methods(http.MethodGet)
	v1.HandleFunc("/export.csv", s.handleExportCSV).Methods(http.MethodGet)

	v1.HandleFunc("/ports", s.handleListPorts).Methods(http.MethodGet)
}

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, err error) {
	s.log.Warn().Err(err).Int("status", statusCode).Msg("api: request failed")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorResponse{Status: http.StatusText(statusCode), Error: err.Error()})
}

func decode(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// statusForError maps a contracts.Error Kind (or a generic error) onto
// an HTTP status.
func statusForError(err error) int {
	var typed *contracts.Error
	if errors.As(err, &typed) {
		switch typed.Kind {
		case contracts.ConfigInvalid:
			return http.StatusBadRequest
		case contracts.KeyUnknown:
			return http.StatusNotFound
		case contracts.LockPoisoned, contracts.InvariantViolated, contracts.NumericIllConditioned:
			return http.StatusInternalServerError
		}
	}
	return http.StatusBadRequest
}

// --- plot lifecycle ---

type viewConfigRequest struct {
	Kind       string                      `json:"kind"`
	Timeseries *contracts.TimeseriesConfig `json:"timeseries,omitempty"`
	Fft        *contracts.FftConfig        `json:"fft,omitempty"`
}

type plotConfigRequest struct {
	PlotID          string                   `json:"plot_id"`
	DataKeys        []contracts.DataColumnId `json:"data_keys"`
	MaxSamplingRate float64                  `json:"max_sampling_rate"`
	ViewConfig      viewConfigRequest        `json:"view_config"`
}

func (req plotConfigRequest) toSharedPlotConfig() (contracts.SharedPlotConfig, error) {
	cfg := contracts.SharedPlotConfig{
		PlotID:          req.PlotID,
		DataKeys:        req.DataKeys,
		MaxSamplingRate: req.MaxSamplingRate,
	}
	switch req.ViewConfig.Kind {
	case "timeseries":
		if req.ViewConfig.Timeseries == nil {
			return cfg, errors.New(`view_config.kind is "timeseries" but timeseries is missing`)
		}
		cfg.ViewConfig = contracts.ViewConfig{Kind: contracts.ViewTimeseries, Timeseries: *req.ViewConfig.Timeseries}
	case "fft":
		if req.ViewConfig.Fft == nil {
			return cfg, errors.New(`view_config.kind is "fft" but fft is missing`)
		}
		cfg.ViewConfig = contracts.ViewConfig{Kind: contracts.ViewFft, Fft: *req.ViewConfig.Fft}
	default:
		return cfg, errors.New(`view_config.kind must be "timeseries" or "fft"`)
	}
	return cfg, nil
}

type applyPlotConfigResponse struct {
	PipelineIDs []contracts.PipelineId `json:"pipeline_ids"`
}

func (s *Server) handleApplyPlotConfig(w http.ResponseWriter, r *http.Request) {
	var req plotConfigRequest
	if err := decode(r.Body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	cfg, err := req.toSharedPlotConfig()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	ids, err := s.manager.ApplyPlotConfig(cfg)
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, applyPlotConfigResponse{PipelineIDs: ids})
}

func (s *Server) handleDestroyPlot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.manager.DestroyPlotPipelines(id)
	w.WriteHeader(http.StatusNoContent)
}

// --- statistics provider lifecycle ---

type createStatisticsProviderRequest struct {
	DataKey       contracts.DataColumnId `json:"data_key"`
	WindowSeconds float64                `json:"window_seconds"`
}

type createStatisticsProviderResponse struct {
	ID contracts.PipelineId `json:"id"`
}

func (s *Server) handleCreateStatisticsProvider(w http.ResponseWriter, r *http.Request) {
	var req createStatisticsProviderRequest
	if err := decode(r.Body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.WindowSeconds <= 0 {
		s.writeError(w, http.StatusBadRequest, contracts.NewError(contracts.ConfigInvalid, "window_seconds must be positive"))
		return
	}
	id := s.manager.CreateStatisticsProvider(req.DataKey, req.WindowSeconds)
	writeJSON(w, createStatisticsProviderResponse{ID: id})
}

func (s *Server) handleResetStatisticsProvider(w http.ResponseWriter, r *http.Request) {
	id := contracts.PipelineId(mux.Vars(r)["id"])
	s.manager.ResetStatisticsProvider(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDestroyStatisticsProvider(w http.ResponseWriter, r *http.Request) {
	id := contracts.PipelineId(mux.Vars(r)["id"])
	s.manager.Destroy(id)
	w.WriteHeader(http.StatusNoContent)
}

// --- active columns ---

type setActiveColumnsRequest struct {
	PortURL string                   `json:"port_url"`
	Keys    []contracts.DataColumnId `json:"keys"`
}

func (s *Server) handleSetActiveColumns(w http.ResponseWriter, r *http.Request) {
	var req setActiveColumnsRequest
	if err := decode(r.Body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.capture.SetActiveColumns(req.PortURL, req.Keys)
	w.WriteHeader(http.StatusNoContent)
}

// --- read queries ---

func parseKeysParam(r *http.Request) ([]contracts.DataColumnId, error) {
	raw := r.URL.Query().Get("keys")
	if raw == "" {
		return nil, errors.New("keys query parameter is required")
	}
	var keys []contracts.DataColumnId
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, errors.New("keys query parameter must be a JSON array of data column ids")
	}
	if len(keys) == 0 {
		return nil, errors.New("keys must contain at least one data column id")
	}
	return keys, nil
}

func parseFloatParam(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, errors.New(name + " query parameter is required")
	}
	return strconv.ParseFloat(raw, 64)
}

func parseOptionalIntParam(r *http.Request, name string) (int, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	return n, true, err
}

// buildPlotData assembles a merged PlotData from per-key ranged samples,
// applying FPCS decimation per-column first when requested — mirroring
// how a root FPCS pipeline stage decimates before the k-way merge.
func buildPlotData(keys []contracts.DataColumnId, byKey map[contracts.DataColumnId][]contracts.Point, decimation string, targetN int) contracts.PlotData {
	individual := make([]contracts.PlotData, 0, len(keys))
	for _, key := range keys {
		points := byKey[key]
		if decimation == "fpcs" && len(points) > 1 {
			ratio := 2
			if targetN > 0 {
				if r := len(points) / targetN; r > ratio {
					ratio = r
				}
			}
			points = kernels.NewFPCS(ratio).ProcessBatch(points)
		}
		timestamps := make([]float64, len(points))
		ys := make([]float64, len(points))
		for i, p := range points {
			timestamps[i] = p.T
			ys[i] = p.Y
		}
		individual = append(individual, contracts.PlotData{Timestamps: timestamps, SeriesData: [][]float64{ys}})
	}
	return kernels.KWayMergePlotData(individual)
}

func (s *Server) handleGetPlotDataInRange(w http.ResponseWriter, r *http.Request) {
	keys, err := parseKeysParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	tMin, err := parseFloatParam(r, "t_min")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	tMax, err := parseFloatParam(r, "t_max")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	n, _, err := parseOptionalIntParam(r, "n")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	decimation := r.URL.Query().Get("decimation")

	byKey := s.capture.GetDataAcrossSessionsForKeys(keys, tMin, tMax)
	writeJSON(w, buildPlotData(keys, byKey, decimation, n))
}

func (s *Server) handleGetLatestPlotData(w http.ResponseWriter, r *http.Request) {
	keys, err := parseKeysParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	windowSeconds, err := parseFloatParam(r, "window_seconds")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	n, _, err := parseOptionalIntParam(r, "n")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	decimation := r.URL.Query().Get("decimation")

	tMax, ok := s.capture.GetLatestUnifiedTimestamp(keys)
	if !ok {
		writeJSON(w, contracts.EmptyPlotData())
		return
	}
	byKey := s.capture.GetDataAcrossSessionsForKeys(keys, tMax-windowSeconds, tMax)
	writeJSON(w, buildPlotData(keys, byKey, decimation, n))
}

type interpolateResponse struct {
	Values map[string]*float64 `json:"values"`
}

func (s *Server) handleInterpolate(w http.ResponseWriter, r *http.Request) {
	keys, err := parseKeysParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	t, err := parseFloatParam(r, "t")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	values := make(map[string]*float64, len(keys))
	for _, key := range keys {
		if v, ok := s.capture.InterpolateAt(key, t); ok {
			vCopy := v
			values[key.String()] = &vCopy
		} else {
			values[key.String()] = nil
		}
	}
	writeJSON(w, interpolateResponse{Values: values})
}

func (s *Server) handleGetStreamStatistics(w http.ResponseWriter, r *http.Request) {
	keys, err := parseKeysParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	windowSeconds, err := parseFloatParam(r, "window_seconds")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	tMax, ok := s.capture.GetLatestUnifiedTimestamp(keys)
	result := make(map[string]contracts.StatisticSet, len(keys))
	if ok {
		byKey := s.capture.GetDataAcrossSessionsForKeys(keys, tMax-windowSeconds, tMax)
		for _, key := range keys {
			result[key.String()] = kernels.BatchStats(byKey[key])
		}
	} else {
		for _, key := range keys {
			result[key.String()] = contracts.StatisticSet{}
		}
	}
	writeJSON(w, result)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	keys, err := parseKeysParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	tMin, err := parseFloatParam(r, "t_min")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	tMax, err := parseFloatParam(r, "t_max")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	columns := make([]contracts.ColumnMeta, len(keys))
	for i, key := range keys {
		meta, ok := s.capture.GetColumnMeta(key)
		if !ok {
			s.writeError(w, http.StatusNotFound, errors.New("column metadata not found for "+key.String()))
			return
		}
		columns[i] = meta
	}

	byKey := s.capture.GetDataAcrossSessionsForKeys(keys, tMin, tMax)
	data := buildPlotData(keys, byKey, "", 0)

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="export.csv"`)
	if err := exportcsv.Write(w, data, columns); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

type portStateEntry struct {
	PortURL string `json:"port_url"`
	State   string `json:"state"`
}

func (s *Server) handleListPorts(w http.ResponseWriter, r *http.Request) {
	states := s.capture.ListPortStates()
	out := make([]portStateEntry, 0, len(states))
	for portURL, state := range states {
		out = append(out, portStateEntry{PortURL: portURL, State: state.String()})
	}
	writeJSON(w, out)
}
