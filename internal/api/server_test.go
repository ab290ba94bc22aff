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

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/twinleaf/trendline/internal/contracts"
)

type fakeCapture struct {
	data        map[contracts.DataColumnId][]contracts.Point
	latest      float64
	haveLatest  bool
	columnMeta  map[contracts.DataColumnId]contracts.ColumnMeta
	portStates  map[string]contracts.PortState
	interpolate map[contracts.DataColumnId]float64

	activePortURL string
	activeKeys    []contracts.DataColumnId
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{
		data:        make(map[contracts.DataColumnId][]contracts.Point),
		columnMeta:  make(map[contracts.DataColumnId]contracts.ColumnMeta),
		portStates:  make(map[string]contracts.PortState),
		interpolate: make(map[contracts.DataColumnId]float64),
	}
}

func (f *fakeCapture) GetDataAcrossSessionsForKeys(keys []contracts.DataColumnId, tMin, tMax float64) map[contracts.DataColumnId][]contracts.Point {
	return f.data
}

func (f *fakeCapture) GetLatestUnifiedTimestamp([]contracts.DataColumnId) (float64, bool) {
	return f.latest, f.haveLatest
}

func (f *fakeCapture) InterpolateAt(key contracts.DataColumnId, t float64) (float64, bool) {
	v, ok := f.interpolate[key]
	return v, ok
}

func (f *fakeCapture) SetActiveColumns(portURL string, keys []contracts.DataColumnId) {
	f.activePortURL = portURL
	f.activeKeys = keys
}

func (f *fakeCapture) ListPortStates() map[string]contracts.PortState { return f.portStates }

func (f *fakeCapture) GetColumnMeta(key contracts.DataColumnId) (contracts.ColumnMeta, bool) {
	m, ok := f.columnMeta[key]
	return m, ok
}

type fakeManager struct {
	applyErr       error
	lastConfig     contracts.SharedPlotConfig
	destroyedPlot  string
	createdID      contracts.PipelineId
	resetID        contracts.PipelineId
	destroyedID    contracts.PipelineId
}

func (f *fakeManager) ApplyPlotConfig(config contracts.SharedPlotConfig) ([]contracts.PipelineId, error) {
	f.lastConfig = config
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	return []contracts.PipelineId{"pipeline-1"}, nil
}

func (f *fakeManager) DestroyPlotPipelines(plotID string) { f.destroyedPlot = plotID }

func (f *fakeManager) CreateStatisticsProvider(sourceKey contracts.DataColumnId, windowSeconds float64) contracts.PipelineId {
	f.createdID = "stats-1"
	return f.createdID
}

func (f *fakeManager) ResetStatisticsProvider(id contracts.PipelineId) { f.resetID = id }

func (f *fakeManager) Destroy(id contracts.PipelineId) { f.destroyedID = id }

func testKey() contracts.DataColumnId {
	return contracts.DataColumnId{PortURL: "p", DeviceRoute: "0", StreamID: "s", ColumnIndex: 0}
}

func newTestServer(capture *fakeCapture, mgr *fakeManager) (*Server, *mux.Router) {
	s := NewServer(capture, mgr)
	r := mux.NewRouter()
	s.MountRoutes(r)
	return s, r
}

func TestApplyPlotConfigRoute(t *testing.T) {
	mgr := &fakeManager{}
	_, r := newTestServer(newFakeCapture(), mgr)

	body := `{
		"plot_id": "p1",
		"data_keys": [{"PortURL":"p","DeviceRoute":"0","StreamID":"s","ColumnIndex":0}],
		"max_sampling_rate": 100,
		"view_config": {"kind": "timeseries", "timeseries": {"window_seconds": 1}}
	}`
	req := httptest.NewRequest(http.MethodPost, "/v1/plots", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, contracts.ViewTimeseries, mgr.lastConfig.ViewConfig.Kind)

	var resp applyPlotConfigResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, []contracts.PipelineId{"pipeline-1"}, resp.PipelineIDs)
}

func TestApplyPlotConfigRejectsUnknownViewKind(t *testing.T) {
	mgr := &fakeManager{}
	_, r := newTestServer(newFakeCapture(), mgr)

	body := `{"plot_id": "p1", "max_sampling_rate": 1, "view_config": {"kind": "bogus"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/plots", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApplyPlotConfigSurfacesConfigInvalidAsBadRequest(t *testing.T) {
	mgr := &fakeManager{applyErr: contracts.NewError(contracts.ConfigInvalid, "bad config")}
	_, r := newTestServer(newFakeCapture(), mgr)

	body := `{"plot_id": "p1", "max_sampling_rate": 0, "view_config": {"kind": "timeseries", "timeseries": {"window_seconds": 1}}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/plots", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDestroyPlotRoute(t *testing.T) {
	mgr := &fakeManager{}
	_, r := newTestServer(newFakeCapture(), mgr)

	req := httptest.NewRequest(http.MethodDelete, "/v1/plots/p1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "p1", mgr.destroyedPlot)
}

func TestCreateAndResetStatisticsProviderRoutes(t *testing.T) {
	mgr := &fakeManager{}
	_, r := newTestServer(newFakeCapture(), mgr)

	body := `{"data_key": {"PortURL":"p","StreamID":"s"}, "window_seconds": 1}`
	req := httptest.NewRequest(http.MethodPost, "/v1/stats", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp createStatisticsProviderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, contracts.PipelineId("stats-1"), resp.ID)

	req2 := httptest.NewRequest(http.MethodPost, "/v1/stats/stats-1/reset", nil)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusNoContent, w2.Code)
	require.Equal(t, contracts.PipelineId("stats-1"), mgr.resetID)
}

func TestSetActiveColumnsRoute(t *testing.T) {
	capture := newFakeCapture()
	_, r := newTestServer(capture, &fakeManager{})

	body := `{"port_url": "p", "keys": [{"PortURL":"p","StreamID":"s"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/active-columns", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "p", capture.activePortURL)
	require.Len(t, capture.activeKeys, 1)
}

func TestGetPlotDataInRangeRoute(t *testing.T) {
	key := testKey()
	capture := newFakeCapture()
	capture.data = map[contracts.DataColumnId][]contracts.Point{key: {{T: 0, Y: 1}, {T: 1, Y: 2}}}
	_, r := newTestServer(capture, &fakeManager{})

	keysJSON, _ := json.Marshal([]contracts.DataColumnId{key})
	req := httptest.NewRequest(http.MethodGet, "/v1/plot-data?keys="+string(keysJSON)+"&t_min=0&t_max=2", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var data contracts.PlotData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &data))
	require.Equal(t, []float64{0, 1}, data.Timestamps)
}

func TestGetPlotDataInRangeRejectsMissingKeys(t *testing.T) {
	_, r := newTestServer(newFakeCapture(), &fakeManager{})
	req := httptest.NewRequest(http.MethodGet, "/v1/plot-data?t_min=0&t_max=2", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetLatestPlotDataReturnsEmptyWithoutData(t *testing.T) {
	key := testKey()
	_, r := newTestServer(newFakeCapture(), &fakeManager{})

	keysJSON, _ := json.Marshal([]contracts.DataColumnId{key})
	req := httptest.NewRequest(http.MethodGet, "/v1/latest-plot-data?keys="+string(keysJSON)+"&window_seconds=1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var data contracts.PlotData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &data))
	require.True(t, data.IsEmpty())
}

func TestInterpolateRoute(t *testing.T) {
	key := testKey()
	capture := newFakeCapture()
	capture.interpolate[key] = 42
	_, r := newTestServer(capture, &fakeManager{})

	keysJSON, _ := json.Marshal([]contracts.DataColumnId{key})
	req := httptest.NewRequest(http.MethodGet, "/v1/interpolate?keys="+string(keysJSON)+"&t=1.5", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp interpolateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Values[key.String()])
	require.Equal(t, 42.0, *resp.Values[key.String()])
}

func TestExportCSVRequiresColumnMetadata(t *testing.T) {
	key := testKey()
	capture := newFakeCapture()
	capture.data = map[contracts.DataColumnId][]contracts.Point{key: {{T: 0, Y: 1}}}
	_, r := newTestServer(capture, &fakeManager{})

	keysJSON, _ := json.Marshal([]contracts.DataColumnId{key})
	req := httptest.NewRequest(http.MethodGet, "/v1/export.csv?keys="+string(keysJSON)+"&t_min=0&t_max=2", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportCSVWritesCSVBody(t *testing.T) {
	key := testKey()
	capture := newFakeCapture()
	capture.data = map[contracts.DataColumnId][]contracts.Point{key: {{T: 0, Y: 1}}}
	capture.columnMeta[key] = contracts.ColumnMeta{DeviceRoute: "0", Name: "x", DataType: contracts.TypeF64}
	_, r := newTestServer(capture, &fakeManager{})

	keysJSON, _ := json.Marshal([]contracts.DataColumnId{key})
	req := httptest.NewRequest(http.MethodGet, "/v1/export.csv?keys="+string(keysJSON)+"&t_min=0&t_max=2", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "time,x\n0.000000,1\n", w.Body.String())
}

func TestListPortsRoute(t *testing.T) {
	capture := newFakeCapture()
	capture.portStates["serial://ttyUSB0"] = contracts.PortStreaming
	_, r := newTestServer(capture, &fakeManager{})

	req := httptest.NewRequest(http.MethodGet, "/v1/ports", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var entries []portStateEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "streaming", entries[0].State)
}
