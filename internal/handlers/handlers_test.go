package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dailyalchemy/internal/apperr"
	"dailyalchemy/internal/database"
	"dailyalchemy/internal/lease"
	"dailyalchemy/internal/logger"
	"dailyalchemy/internal/models"
	"dailyalchemy/internal/normalize"
	"dailyalchemy/internal/oracle"
	"dailyalchemy/internal/planner"
	"dailyalchemy/internal/repository"
	"dailyalchemy/internal/security"
	"dailyalchemy/internal/service"
)

type fixedOracle struct {
	result oracle.Result
	err    error
	calls  atomic.Int32
}

func (o *fixedOracle) Generate(context.Context, oracle.Request) (oracle.Result, error) {
	o.calls.Add(1)
	return o.result, o.err
}

type apiFixture struct {
	server  *httptest.Server
	db      *database.DB
	tokens  *security.TokenIssuer
	oracle  *fixedOracle
	today   civil.Date
	combine *service.CombineService
}

func newAPIFixture(t *testing.T, limiter *security.RateLimiter) *apiFixture {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping API test in short mode")
	}
	ctx := context.Background()
	db, err := database.Initialize(ctx, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.NewNop()
	today := civil.DateOf(time.Now().UTC())
	tokens, err := security.NewTokenIssuer("test-secret")
	require.NoError(t, err)

	o := &fixedOracle{result: oracle.Result{ResultName: "Dandelion", ResultEmoji: "🌼"}}
	catalog := repository.NewCombinationRepository(db)
	combine := service.NewCombineService(catalog, lease.NewMemoryStore(nil), o, service.CombineConfig{
		LeaseTTL: time.Minute, LeaseMaxWait: time.Second, LeaseBackoff: 5 * time.Millisecond, ContextSize: 10,
	}, log)
	t.Cleanup(combine.Wait)

	puzzles := service.NewPuzzleService(
		repository.NewPuzzleRepository(db),
		catalog,
		security.NewFingerprinter("fp"),
		service.PuzzleConfig{Epoch: today.AddDays(-2), Location: time.UTC, ArchiveFreeDays: 4},
		log,
	)
	sessions := service.NewSessionService(
		repository.NewSessionRepository(db),
		repository.NewStatsRepository(db),
		puzzles,
		combine,
		service.SessionConfig{DailyTimeLimit: 600 * time.Second},
		log,
	)
	router := NewRouter(Handlers{
		Combine: NewCombineHandler(combine, log),
		Paths:   NewPathHandler(service.NewPathService(db, planner.New(nil, log), log), log),
		Puzzles: NewPuzzleHandler(puzzles, log),
		Session: NewSessionHandler(sessions, log),
		Catalog: NewCatalogHandler(service.NewCatalogService(db, nil, log), service.NewCatalogBackupService(db, log), log),
		Health:  NewHealthHandler(db, log),
	}, NewMiddleware(tokens, limiter, log))

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &apiFixture{server: server, db: db, tokens: tokens, oracle: o, today: today, combine: combine}
}

func (f *apiFixture) token(t *testing.T, p security.Principal) string {
	t.Helper()
	tok, err := f.tokens.Issue(p, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *apiFixture) seed(t *testing.T, a, b, result, emoji string) {
	t.Helper()
	key, err := normalize.Combination(a, b)
	require.NoError(t, err)
	_, err = repository.NewCombinationRepository(f.db).InsertIfAbsent(context.Background(), &models.CombinationRecord{
		Key: key.String(), ElementA: a, ElementB: b, ResultName: result, ResultEmoji: emoji,
	})
	require.NoError(t, err)
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), ContentTypeJSON) {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestCombineEndpoint(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.seed(t, "fire", "water", "steam", "💨")

	status, body := f.do(t, "POST", "/combine", "", map[string]any{
		"a": map[string]string{"name": "Fire"},
		"b": map[string]string{"name": "water"},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"name": "steam", "emoji": "💨"}, body["result"])
	assert.Equal(t, true, body["fromCache"])
	assert.Equal(t, false, body["firstDiscovery"])
	assert.NotContains(t, body, "conflict")

	status, body = f.do(t, "POST", "/combine", "", map[string]any{
		"a": map[string]string{"name": ""},
		"b": map[string]string{"name": "water"},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(apperr.KindInvalidName), errorCode(body))

	f.oracle.err = apperr.New(apperr.KindOracleUnavailable, "down")
	status, body = f.do(t, "POST", "/combine", "", map[string]any{
		"a": map[string]string{"name": "wind"},
		"b": map[string]string{"name": "seed"},
	})
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, string(apperr.KindOracleUnavailable), errorCode(body))
}

func TestPathEndpoints(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.seed(t, "earth", "water", "mud", "🟫")
	player := f.token(t, security.Principal{UserID: "p1"})
	admin := f.token(t, security.Principal{UserID: "a1", Admin: true})

	status, _ := f.do(t, "POST", "/paths/generate", "", map[string]any{"targetName": "Mud"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := f.do(t, "POST", "/paths/generate", player, map[string]any{"targetName": "Mud"})
	require.Equal(t, http.StatusOK, status)
	paths := body["paths"].([]any)
	require.NotEmpty(t, paths)
	steps := paths[0].(map[string]any)["steps"].([]any)
	require.Len(t, steps, 1)
	assert.Equal(t, map[string]any{
		"a": "earth", "b": "water", "resultName": "Mud", "resultEmoji": "🟫", "provisional": false,
	}, steps[0])
	assert.EqualValues(t, 1, body["existingCombinationsCount"])

	status, body = f.do(t, "POST", "/paths/generate", player, map[string]any{"targetName": "Obsidian"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, string(apperr.KindPathUnreachable), errorCode(body))

	save := map[string]any{
		"target": map[string]string{"name": "Lava", "emoji": "🌋"},
		"path": map[string]any{"steps": []map[string]string{
			{"a": "fire", "b": "earth", "resultName": "Stone", "resultEmoji": "🪨"},
			{"a": "fire", "b": "stone", "resultName": "Lava", "resultEmoji": "🌋"},
		}},
	}
	status, body = f.do(t, "PUT", "/paths", player, save)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, string(apperr.KindPermissionDenied), errorCode(body))

	status, body = f.do(t, "PUT", "/paths", admin, save)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["created"])

	status, body = f.do(t, "PUT", "/paths", admin, save)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["created"])
	assert.EqualValues(t, 2, body["skipped"])
}

func TestPuzzleAndSessionFlow(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.seed(t, "fire", "earth", "Stone", "🪨")
	f.seed(t, "fire", "stone", "Lava", "🌋")
	player := f.token(t, security.Principal{UserID: "p1"})
	admin := f.token(t, security.Principal{UserID: "a1", Admin: true})
	date := f.today.String()

	create := map[string]any{
		"date":     date,
		"target":   map[string]string{"name": "Lava", "emoji": "🌋"},
		"parMoves": 3,
		"solutionPath": map[string]any{"steps": []map[string]string{
			{"a": "fire", "b": "earth", "resultName": "Stone"},
			{"a": "fire", "b": "stone", "resultName": "Lava"},
		}},
		"difficulty": "medium",
		"published":  true,
	}
	status, _ := f.do(t, "POST", "/puzzles", player, create)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := f.do(t, "POST", "/puzzles", admin, create)
	require.Equal(t, http.StatusCreated, status)
	assert.EqualValues(t, 3, body["puzzle"].(map[string]any)["puzzleNumber"])

	status, body = f.do(t, "POST", "/puzzles", admin, create)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, string(apperr.KindDuplicateDate), errorCode(body))

	status, body = f.do(t, "GET", "/puzzles?date="+date, "", nil)
	require.Equal(t, http.StatusOK, status)
	puzzle := body["puzzle"].(map[string]any)
	assert.Equal(t, "Lava", puzzle["target"])
	assert.Equal(t, "🌋", puzzle["targetEmoji"])
	assert.Len(t, puzzle["solutionPathHash"], 64)
	assert.NotContains(t, puzzle, "solutionPath")

	status, _ = f.do(t, "GET", "/puzzles?date=yesterday", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, "POST", "/sessions/"+date+"/start", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = f.do(t, "POST", "/sessions/"+date+"/start", player, nil)
	require.Equal(t, http.StatusOK, status)
	session := body["session"].(map[string]any)
	assert.Equal(t, true, session["firstAttempt"])
	assert.Equal(t, "daily", session["mode"])
	assert.Contains(t, session, "deadline")

	status, body = f.do(t, "POST", "/sessions/"+date+"/combine", player, map[string]string{"a": "fire", "b": "stone"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(apperr.KindElementNotInBank), errorCode(body))

	status, body = f.do(t, "POST", "/sessions/"+date+"/hint", player, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Stone", body["hint"].(map[string]any)["name"])

	status, _ = f.do(t, "POST", "/sessions/"+date+"/combine", player, map[string]string{"a": "fire", "b": "earth"})
	require.Equal(t, http.StatusOK, status)
	status, body = f.do(t, "POST", "/sessions/"+date+"/combine", player, map[string]string{"a": "fire", "b": "stone"})
	require.Equal(t, http.StatusOK, status)
	session = body["session"].(map[string]any)
	assert.Equal(t, "won", session["outcome"])
	assert.EqualValues(t, 2, session["moves"])

	status, body = f.do(t, "POST", "/sessions/"+date+"/finalize", player, map[string]string{"outcome": "won"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "won", body["session"].(map[string]any)["outcome"])

	status, body = f.do(t, "POST", "/sessions/"+date+"/combine", player, map[string]string{"a": "fire", "b": "stone"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, string(apperr.KindSessionFinished), errorCode(body))

	events, err := repository.NewStatsRepository(f.db).ListForUser(context.Background(), "p1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestAdminDeleteEndpoint(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.seed(t, "fire", "water", "Steam", "💨")
	admin := f.token(t, security.Principal{UserID: "a1", Admin: true})

	status, _ := f.do(t, "DELETE", "/combinations/fire%7Cwater", f.token(t, security.Principal{UserID: "p1"}), nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := f.do(t, "DELETE", "/combinations/fire%7Cwater", admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Steam", body["deleted"].(map[string]any)["resultName"])

	status, body = f.do(t, "DELETE", "/combinations/fire%7Cwater", admin, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, string(apperr.KindNotFound), errorCode(body))

	status, body = f.do(t, "GET", "/admin/audit", admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["events"], 1)
}

func TestHealthzAndRequestID(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp, err := f.server.Client().Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))
}

func TestCombineRateLimit(t *testing.T) {
	f := newAPIFixture(t, security.NewRateLimiter(0.001, 1))
	f.seed(t, "fire", "water", "steam", "💨")
	body := map[string]any{
		"a": map[string]string{"name": "fire"},
		"b": map[string]string{"name": "water"},
	}

	status, _ := f.do(t, "POST", "/combine", "", body)
	assert.Equal(t, http.StatusOK, status)
	status, _ = f.do(t, "POST", "/combine", "", body)
	assert.Equal(t, http.StatusTooManyRequests, status)
}
