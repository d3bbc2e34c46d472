package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/getgoodtape/videoproc/internal/conflict"
	"github.com/getgoodtape/videoproc/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMediaService struct {
	validate    service.ValidateResult
	convert     service.ConvertResult
	diagnostics service.Diagnostics
	probe       conflict.State

	gotURL     string
	gotConvert service.ConvertRequest
	probed     bool
}

func (f *fakeMediaService) Validate(_ context.Context, rawURL string) service.ValidateResult {
	f.gotURL = rawURL
	return f.validate
}

func (f *fakeMediaService) Convert(_ context.Context, req service.ConvertRequest) service.ConvertResult {
	f.gotConvert = req
	return f.convert
}

func (f *fakeMediaService) Diagnostics(context.Context) service.Diagnostics {
	return f.diagnostics
}

func (f *fakeMediaService) ReprobeConflict(context.Context) conflict.State {
	f.probed = true
	return f.probe
}

func postJSON(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

// withURLParam routes req through a chi context carrying one URL param.
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
