package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/geooracle/internal/attest"
	"github.com/playperu/geooracle/internal/evidence"
	"github.com/playperu/geooracle/internal/geoguess"
	"github.com/playperu/geooracle/internal/problembank"
	"github.com/playperu/geooracle/internal/rooms"
	"github.com/playperu/geooracle/internal/walrus"
)

const testPackage = "0xpkg"

var lima = geoguess.Target{ID: "1", Lat: -12.0464, Lon: -77.0428, ImageURL: "/problemBank/lima.jpg", Hint: "Coast"}

type testOptions struct {
	signer     rooms.Signer
	adminToken string
	bankDir    string
}

type testServer struct {
	handler http.Handler
	reg     *rooms.Registry
	key     *attest.Signer
	store   *evidence.FileStore
}

func newTestServer(t *testing.T, opts testOptions) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	key, err := attest.Generate()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := opts.signer
	if signer == nil {
		signer = key
	}

	store, err := evidence.OpenFileStore(logger, filepath.Join(t.TempDir(), "history.json"))
	if err != nil {
		t.Fatalf("open evidence: %v", err)
	}

	uploader := walrus.NewUploader(logger, walrus.Config{})
	engine := rooms.NewEngine(logger, uploader, signer)
	reg := rooms.NewRegistry(logger, testPackage, problembank.New([]geoguess.Target{lima}), engine, store)

	deps := Deps{
		Rooms:          reg,
		Evidence:       store,
		Signer:         key,
		Walrus:         uploader.Config(),
		GameConfigID:   "0xcfg",
		ProblemBankDir: opts.bankDir,
		CORSOrigins:    []string{"*"},
	}
	if opts.adminToken != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(opts.adminToken), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("hash token: %v", err)
		}
		deps.AdminTokenHash = string(hash)
	}

	return &testServer{handler: NewRouter(logger, deps), reg: reg, key: key, store: store}
}

func (s *testServer) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func ptr(f float64) *float64 { return &f }

func (s *testServer) startGame(t *testing.T, id string) {
	t.Helper()
	if w := s.post(t, "/create_room", CreateRoomRequest{GameID: id, PlayerA: "0xaa", StakeAmount: "1000000"}); w.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := s.post(t, "/join_room", JoinRoomRequest{GameID: id, PlayerB: "0xbb"}); w.Code != http.StatusOK {
		t.Fatalf("join: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestFullGameFlow(t *testing.T) {
	s := newTestServer(t, testOptions{})
	s.startGame(t, "0x01")

	w := s.post(t, "/submit", GuessRequest{GameID: "0x01", PlayerAddress: "0xaa", Lat: ptr(-12.05), Lon: ptr(-77.04)})
	if w.Code != http.StatusOK {
		t.Fatalf("submit a: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var sub SubmitResponse
	json.NewDecoder(w.Body).Decode(&sub)
	if sub.Status != "submitted" || sub.Settled {
		t.Fatalf("submit a: unexpected response %+v", sub)
	}

	w = s.post(t, "/submit", GuessRequest{GameID: "0x01", PlayerAddress: "0xbb", Lat: ptr(48.85), Lon: ptr(2.35)})
	if w.Code != http.StatusOK {
		t.Fatalf("submit b: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	json.NewDecoder(w.Body).Decode(&sub)
	if !sub.Settled {
		t.Fatal("submit b: expected settled=true")
	}

	w = s.get(t, "/game/0x01")
	if w.Code != http.StatusOK {
		t.Fatalf("game: expected 200, got %d", w.Code)
	}
	var game struct {
		Status            string  `json:"status"`
		Winner            *string `json:"winner"`
		Signature         []int   `json:"signature"`
		WalrusBlobID      *string `json:"walrus_blob_id"`
		WalrusBlobIDBytes []int   `json:"walrus_blob_id_bytes"`
		StoredOnWalrus    bool    `json:"stored_on_walrus"`
	}
	json.NewDecoder(w.Body).Decode(&game)
	if game.Status != "settled" {
		t.Errorf("expected status settled, got %q", game.Status)
	}
	if game.Winner == nil || *game.Winner != "0xaa" {
		t.Errorf("expected winner 0xaa, got %v", game.Winner)
	}
	if len(game.Signature) != 64 {
		t.Errorf("expected 64-byte signature, got %d bytes", len(game.Signature))
	}
	if game.WalrusBlobID == nil || *game.WalrusBlobID == "" {
		t.Fatal("expected walrus_blob_id")
	}
	if len(game.WalrusBlobIDBytes) != len(*game.WalrusBlobID) {
		t.Errorf("blob id bytes length %d, want %d", len(game.WalrusBlobIDBytes), len(*game.WalrusBlobID))
	}
	if game.StoredOnWalrus {
		t.Error("expected local fallback without a publisher")
	}

	sig := make([]byte, len(game.Signature))
	for i, b := range game.Signature {
		sig[i] = byte(b)
	}
	msg, err := attest.Message("0x01", "0xaa", *game.WalrusBlobID)
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if !s.key.Verify(msg, sig) {
		t.Error("signature does not verify against the oracle key")
	}

	w = s.get(t, "/leaderboard")
	var board evidence.Leaderboard
	json.NewDecoder(w.Body).Decode(&board)
	if board.TotalRecords != 1 || len(board.Ranking) != 1 {
		t.Fatalf("expected one ranked player, got %+v", board)
	}
	if board.Ranking[0].Player != "0xaa" || board.Ranking[0].Wins != 1 || board.Ranking[0].Rank != 1 {
		t.Errorf("unexpected ranking row %+v", board.Ranking[0])
	}
	if board.Ranking[0].TotalEarned.String() != "1000000" {
		t.Errorf("expected earned 1000000, got %s", board.Ranking[0].TotalEarned)
	}

	w = s.get(t, "/history?limit=5")
	var page evidence.HistoryPage
	json.NewDecoder(w.Body).Decode(&page)
	if page.TotalRecords != 1 || page.Records[0].GameID != "0x01" {
		t.Errorf("unexpected history %+v", page)
	}

	// A third guess after settlement is rejected.
	w = s.post(t, "/submit", GuessRequest{GameID: "0x01", PlayerAddress: "0xaa", Lat: ptr(0), Lon: ptr(0)})
	if w.Code != http.StatusBadRequest {
		t.Errorf("late submit: expected 400, got %d", w.Code)
	}
}

func TestCreateRoomValidation(t *testing.T) {
	s := newTestServer(t, testOptions{})

	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing player", CreateRoomRequest{GameID: "0x01", StakeAmount: "10"}, http.StatusBadRequest},
		{"zero stake", CreateRoomRequest{GameID: "0x01", PlayerA: "0xaa", StakeAmount: "0"}, http.StatusBadRequest},
		{"fractional stake", CreateRoomRequest{GameID: "0x01", PlayerA: "0xaa", StakeAmount: "1.5"}, http.StatusBadRequest},
		{"garbage stake", CreateRoomRequest{GameID: "0x01", PlayerA: "0xaa", StakeAmount: "lots"}, http.StatusBadRequest},
		{"exponent stake", CreateRoomRequest{GameID: "0x01", PlayerA: "0xaa", StakeAmount: "1e50000000"}, http.StatusBadRequest},
		{"ok", CreateRoomRequest{GameID: "0x01", PlayerA: "0xaa", StakeAmount: "10"}, http.StatusOK},
		{"duplicate", CreateRoomRequest{GameID: "0x01", PlayerA: "0xcc", StakeAmount: "10"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.post(t, "/create_room", tt.body)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/create_room", strings.NewReader("{"))
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", w.Code)
	}
}

func TestCancelRoom(t *testing.T) {
	s := newTestServer(t, testOptions{})
	s.post(t, "/create_room", CreateRoomRequest{GameID: "0x02", PlayerA: "0xaa", StakeAmount: "10"})

	w := s.post(t, "/cancel_room", CancelRoomRequest{GameID: "0x02", PlayerAddress: "0xbb"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-creator cancel: expected 403, got %d", w.Code)
	}
	w = s.get(t, "/game/0x02")
	var game rooms.Game
	json.NewDecoder(w.Body).Decode(&game)
	if game.Status != geoguess.StatusWaiting {
		t.Fatalf("expected room still waiting, got %q", game.Status)
	}

	w = s.post(t, "/cancel_room", CancelRoomRequest{GameID: "0x02", PlayerAddress: "0xaa"})
	if w.Code != http.StatusOK {
		t.Fatalf("creator cancel: expected 200, got %d", w.Code)
	}
	if w := s.get(t, "/game/0x02"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after cancel, got %d", w.Code)
	}
}

func TestRefundRoom(t *testing.T) {
	s := newTestServer(t, testOptions{})
	s.post(t, "/create_room", CreateRoomRequest{GameID: "0x03", PlayerA: "0xaa", StakeAmount: "10"})

	if w := s.post(t, "/refund_room", RefundRoomRequest{GameID: "0x03"}); w.Code != http.StatusBadRequest {
		t.Fatalf("refund waiting room: expected 400, got %d", w.Code)
	}

	s.post(t, "/join_room", JoinRoomRequest{GameID: "0x03", PlayerB: "0xbb"})
	if w := s.post(t, "/refund_room", RefundRoomRequest{GameID: "0x03"}); w.Code != http.StatusOK {
		t.Fatalf("refund: expected 200, got %d", w.Code)
	}
	if w := s.get(t, "/game/0x03"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after refund, got %d", w.Code)
	}
}

func TestSubmitValidation(t *testing.T) {
	s := newTestServer(t, testOptions{})
	s.startGame(t, "0x04")

	tests := []struct {
		name string
		req  GuessRequest
		want int
	}{
		{"missing lat", GuessRequest{GameID: "0x04", PlayerAddress: "0xaa", Lon: ptr(1)}, http.StatusBadRequest},
		{"lat out of range", GuessRequest{GameID: "0x04", PlayerAddress: "0xaa", Lat: ptr(91), Lon: ptr(1)}, http.StatusBadRequest},
		{"lon out of range", GuessRequest{GameID: "0x04", PlayerAddress: "0xaa", Lat: ptr(1), Lon: ptr(-181)}, http.StatusBadRequest},
		{"outsider", GuessRequest{GameID: "0x04", PlayerAddress: "0xcc", Lat: ptr(1), Lon: ptr(1)}, http.StatusBadRequest},
		{"unknown game", GuessRequest{GameID: "0x99", PlayerAddress: "0xaa", Lat: ptr(1), Lon: ptr(1)}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.post(t, "/submit", tt.req)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestJoinErrors(t *testing.T) {
	s := newTestServer(t, testOptions{})
	s.post(t, "/create_room", CreateRoomRequest{GameID: "0x05", PlayerA: "0xaa", StakeAmount: "10"})

	if w := s.post(t, "/join_room", JoinRoomRequest{GameID: "0x99", PlayerB: "0xbb"}); w.Code != http.StatusNotFound {
		t.Errorf("unknown game: expected 404, got %d", w.Code)
	}
	if w := s.post(t, "/join_room", JoinRoomRequest{GameID: "0x05", PlayerB: "0xaa"}); w.Code != http.StatusBadRequest {
		t.Errorf("self join: expected 400, got %d", w.Code)
	}
	if w := s.post(t, "/join_room", JoinRoomRequest{GameID: "0x05", PlayerB: "0xbb"}); w.Code != http.StatusOK {
		t.Fatalf("join: expected 200, got %d", w.Code)
	}
	if w := s.post(t, "/join_room", JoinRoomRequest{GameID: "0x05", PlayerB: "0xcc"}); w.Code != http.StatusBadRequest {
		t.Errorf("second join: expected 400, got %d", w.Code)
	}
}

func TestListRooms(t *testing.T) {
	s := newTestServer(t, testOptions{})

	w := s.get(t, "/rooms")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %s", w.Body.String())
	}

	s.post(t, "/create_room", CreateRoomRequest{GameID: "0x10", PlayerA: "0xaa", StakeAmount: "10"})
	s.post(t, "/create_room", CreateRoomRequest{GameID: "0x11", PlayerA: "0xcc", StakeAmount: "20"})
	s.startGame(t, "0x12")

	w = s.get(t, "/rooms")
	var list []rooms.WaitingRoom
	json.NewDecoder(w.Body).Decode(&list)
	if len(list) != 2 {
		t.Fatalf("expected 2 waiting rooms, got %d", len(list))
	}
	if list[0].GameID != "0x10" || list[1].GameID != "0x11" || list[1].StakeAmount != "20" {
		t.Errorf("unexpected rooms %+v", list)
	}
}

func TestRankingLimit(t *testing.T) {
	s := newTestServer(t, testOptions{})

	if w := s.get(t, "/leaderboard?limit=abc"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-integer limit, got %d", w.Code)
	}
	w := s.get(t, "/history?limit=0")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for clamped limit, got %d", w.Code)
	}
	var page evidence.HistoryPage
	json.NewDecoder(w.Body).Decode(&page)
	if page.TotalRecords != 0 || len(page.Records) != 0 {
		t.Errorf("expected empty history, got %+v", page)
	}
}

func TestInfo(t *testing.T) {
	s := newTestServer(t, testOptions{})

	w := s.get(t, "/")
	var info InfoResponse
	json.NewDecoder(w.Body).Decode(&info)
	if info.OraclePubKey != s.key.PublicKeyHex() {
		t.Errorf("pub key = %q, want %q", info.OraclePubKey, s.key.PublicKeyHex())
	}
	if info.OracleAddress != s.key.Address() {
		t.Errorf("address = %q, want %q", info.OracleAddress, s.key.Address())
	}
	if info.PackageID != testPackage || info.GameConfigID != "0xcfg" {
		t.Errorf("unexpected ids %+v", info)
	}
	if info.Walrus.Epochs != 5 {
		t.Errorf("epochs = %d, want 5", info.Walrus.Epochs)
	}
}

type failingSigner struct{}

func (failingSigner) Sign([]byte) ([]byte, error) { return nil, io.ErrUnexpectedEOF }

func TestAttestRetry(t *testing.T) {
	s := newTestServer(t, testOptions{signer: failingSigner{}, adminToken: "s3cret"})
	s.startGame(t, "0x06")
	s.post(t, "/submit", GuessRequest{GameID: "0x06", PlayerAddress: "0xaa", Lat: ptr(-12), Lon: ptr(-77)})
	s.post(t, "/submit", GuessRequest{GameID: "0x06", PlayerAddress: "0xbb", Lat: ptr(0), Lon: ptr(0)})

	g, err := s.reg.Game("0x06")
	if err != nil {
		t.Fatalf("game: %v", err)
	}
	if g.Status != geoguess.StatusSettled || g.Signature != nil {
		t.Fatalf("expected settled unsigned game, got status %q signature %v", g.Status, g.Signature)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/games/0x06/attest", nil)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/games/0x06/attest", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: expected 401, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/games/0x06/attest", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w = httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("attest: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	g, _ = s.reg.Game("0x06")
	msg, _ := attest.Message("0x06", *g.Winner, *g.WalrusBlobID)
	if !s.key.Verify(msg, g.Signature) {
		t.Error("re-attested signature does not verify")
	}
}

func TestAdminRoutesDisabledWithoutToken(t *testing.T) {
	s := newTestServer(t, testOptions{})
	w := s.post(t, "/admin/games/0x01/attest", nil)
	if w.Code != http.StatusNotFound && w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected admin route to be absent, got %d", w.Code)
	}
}

func TestProblemBankAssets(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lima.jpg"), []byte("jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := newTestServer(t, testOptions{bankDir: dir})

	w := s.get(t, "/problemBank/lima.jpg")
	if w.Code != http.StatusOK || w.Body.String() != "jpeg" {
		t.Fatalf("expected asset, got %d %q", w.Code, w.Body.String())
	}
	if w := s.get(t, "/problemBank/missing.jpg"); w.Code != http.StatusNotFound {
		t.Errorf("missing asset: expected 404, got %d", w.Code)
	}
	if w := s.get(t, "/problemBank/../server_test.go"); w.Code != http.StatusNotFound {
		t.Errorf("traversal: expected 404, got %d", w.Code)
	}
}

func TestGameEvents(t *testing.T) {
	s := newTestServer(t, testOptions{})
	s.post(t, "/create_room", CreateRoomRequest{GameID: "0x07", PlayerA: "0xaa", StakeAmount: "10"})

	ts := httptest.NewServer(s.handler)
	defer ts.Close()

	if resp, err := http.Get(ts.URL + "/game/0x99/events"); err == nil {
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("unknown game: expected 404, got %d", resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL + "/game/0x07/events")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	if w := s.post(t, "/join_room", JoinRoomRequest{GameID: "0x07", PlayerB: "0xbb"}); w.Code != http.StatusOK {
		t.Fatalf("join: %d", w.Code)
	}

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if data, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
				lines <- data
				return
			}
		}
	}()

	select {
	case data := <-lines:
		var ev GameEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.Type != eventPlayerJoined || ev.Player != "0xbb" || ev.GameID != "0x07" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestGameIDWhitespaceIsTrimmed(t *testing.T) {
	s := newTestServer(t, testOptions{})

	if w := s.post(t, "/create_room", CreateRoomRequest{GameID: " 0x0c ", PlayerA: "0xaa", StakeAmount: "10"}); w.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := s.post(t, "/join_room", JoinRoomRequest{GameID: "0x0c\n", PlayerB: "0xbb"}); w.Code != http.StatusOK {
		t.Fatalf("join: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := s.post(t, "/submit", GuessRequest{GameID: "\t0x0c", PlayerAddress: "0xaa", Lat: ptr(1), Lon: ptr(1)}); w.Code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := s.post(t, "/refund_room", RefundRoomRequest{GameID: " 0x0c"}); w.Code != http.StatusOK {
		t.Fatalf("refund: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	s.post(t, "/create_room", CreateRoomRequest{GameID: "0x0d", PlayerA: "0xaa", StakeAmount: "10"})
	if w := s.post(t, "/cancel_room", CancelRoomRequest{GameID: " 0x0d ", PlayerAddress: "0xaa"}); w.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := s.get(t, "/game/0x0d"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after cancel, got %d", w.Code)
	}
}
