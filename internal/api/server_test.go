package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"empirechat/internal/chat"
	"empirechat/internal/economy"
	"empirechat/internal/files"
	"empirechat/internal/ledger"
	"empirechat/internal/market"
	"empirechat/internal/metrics"
)

func newTestServer(t *testing.T) (*Server, *ledger.Memory) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := ledger.NewMemory()
	fileStore, err := files.NewStore(t.TempDir(), "http://localhost:5001")
	if err != nil {
		t.Fatalf("files.NewStore: %v", err)
	}
	hub := chat.NewHub(store, 20, logger, nil)
	mkt := market.New(map[string]int64{"BTC": 1000})
	ranks := economy.NewRankTable(100_000, 1_000_000, 10_000_000)
	return New(logger, hub, store, mkt, ranks, fileStore, metrics.New(), 10), store
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var body map[string]bool
	decode(t, rec, &body)
	if !body["ok"] {
		t.Fatalf("body=%v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestRanking(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()
	for _, nick := range []string{"a", "b", "c"} {
		if _, err := store.GetOrCreate(ctx, nick); err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
	}
	if _, err := store.Adjust(ctx, "b", ledger.FieldBank, 9000); err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	rec := get(t, s, "/v1/ranking?limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	var body struct {
		Rows []ledger.Entry `json:"rows"`
	}
	decode(t, rec, &body)
	if len(body.Rows) != 2 {
		t.Fatalf("rows=%d want 2", len(body.Rows))
	}
	if body.Rows[0].Nickname != "b" || body.Rows[0].Total != ledger.DefaultCash+9000 {
		t.Fatalf("top row = %+v", body.Rows[0])
	}
}

func TestRankingRejectsBadLimit(t *testing.T) {
	s, _ := newTestServer(t)
	for _, q := range []string{"limit=0", "limit=-3", "limit=abc"} {
		rec := get(t, s, "/v1/ranking?"+q)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d want 400", q, rec.Code)
		}
	}
}

func TestRankingCapsLimit(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		if _, err := store.GetOrCreate(ctx, string(rune('a'+i))); err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
	}

	rec := get(t, s, "/v1/ranking?limit=500")
	var body struct {
		Rows []ledger.Entry `json:"rows"`
	}
	decode(t, rec, &body)
	if len(body.Rows) != 10 { // server-side cap
		t.Fatalf("rows=%d want 10", len(body.Rows))
	}
}

func TestAccount(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()
	if _, err := store.GetOrCreate(ctx, "alice"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if _, err := store.AdjustHolding(ctx, "alice", "BTC", 2); err != nil {
		t.Fatalf("AdjustHolding: %v", err)
	}

	rec := get(t, s, "/v1/accounts/alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	var body struct {
		Account ledger.Account `json:"account"`
		Total   int64          `json:"total"`
		Rank    string         `json:"rank"`
	}
	decode(t, rec, &body)
	if body.Account.Nickname != "alice" || body.Account.Cash != ledger.DefaultCash {
		t.Fatalf("account = %+v", body.Account)
	}
	// 1000 cash + 2 BTC at 1000₩.
	if body.Total != 3000 {
		t.Fatalf("total=%d want 3000", body.Total)
	}
	if body.Rank != "common" {
		t.Fatalf("rank=%q", body.Rank)
	}
}

func TestAccountNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/v1/accounts/ghost")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d want 404", rec.Code)
	}
}

func TestMarketView(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/v1/market")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var body struct {
		Prices map[string]int64 `json:"prices"`
	}
	decode(t, rec, &body)
	if body.Prices["BTC"] != 1000 {
		t.Fatalf("prices=%v", body.Prices)
	}
}

func TestUploadAndDownload(t *testing.T) {
	s, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write([]byte("shared content")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.WriteField("nickname", "alice"); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}

	var body struct {
		URL string `json:"url"`
	}
	decode(t, rec, &body)
	name := body.URL[strings.LastIndex(body.URL, "/")+1:]

	dl := get(t, s, "/uploads/"+name)
	if dl.Code != http.StatusOK {
		t.Fatalf("download status=%d", dl.Code)
	}
	if dl.Body.String() != "shared content" {
		t.Fatalf("downloaded %q", dl.Body.String())
	}
}

func TestUploadRequiresFile(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("nope"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xxx")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", rec.Code)
	}
}

func TestDownloadRejectsTraversal(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/uploads/%2e%2e%2fsecret")
	if rec.Code == http.StatusOK {
		t.Fatalf("traversal path served with 200")
	}
}
