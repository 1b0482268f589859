package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/aldoetobex/bufete-backend/internal/access"
	"github.com/aldoetobex/bufete-backend/internal/directory"
	"github.com/aldoetobex/bufete-backend/internal/fixtures"
	"github.com/aldoetobex/bufete-backend/internal/store/memstore"
	"github.com/aldoetobex/bufete-backend/pkg/apperr"
	"github.com/aldoetobex/bufete-backend/pkg/models"
)

/* ============================================================================
   Helpers
   ============================================================================ */

type env struct {
	app    *fiber.App
	repo   *memstore.Store
	tokens *Tokens
}

// setup wires the auth routes the way the server does, with a real JWT check.
func setup(t *testing.T) env {
	t.Helper()
	repo := memstore.New()
	tokens := NewTokens("test-secret", time.Hour)
	dir := directory.NewService(repo, BcryptHasher{Cost: bcrypt.MinCost}, access.NewEngine(zap.NewNop()), zap.NewNop())
	h := NewHandler(dir, tokens)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(nil)})
	authed := RequireAuth(tokens, repo)
	app.Post("/api/signup", h.Signup)
	app.Post("/api/login", h.Login)
	app.Get("/api/me", authed, h.Me)
	app.Get("/api/users", authed, RequireRole(models.RoleAdmin), h.ListUsers)
	return env{app: app, repo: repo, tokens: tokens}
}

func jsonReq(method, url, body string) *http.Request {
	r := httptest.NewRequest(method, url, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func bearer(r *http.Request, token string) *http.Request {
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

// call runs the request without a deadline and fails the test on transport errors.
func call(t *testing.T, app *fiber.App, req *http.Request) *http.Response {
	t.Helper()
	res, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	return res
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var v T
	body, _ := io.ReadAll(res.Body)
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode: %v (%s)", err, body)
	}
	return v
}

/* ============================================================================
   Signup / Login / Me
   ============================================================================ */

func Test_Signup_Login_Me_LawyerGetsProfile(t *testing.T) {
	e := setup(t)

	res := call(t, e.app, jsonReq("POST", "/api/signup",
		`{"role":"lawyer","name":"Ana Ruiz","email":"Ana@Bufete.pe","password":"secret1","license_number":"CAL-12345","specialty":"Derecho Civil"}`))
	if res.StatusCode != fiber.StatusCreated {
		t.Fatalf("signup: want 201, got %d", res.StatusCode)
	}
	if out := decode[AuthResponse](t, res); out.Token == "" || out.Role != "lawyer" {
		t.Fatalf("unexpected signup response: %+v", out)
	}

	res = call(t, e.app, jsonReq("POST", "/api/login", `{"email":"ana@bufete.pe","password":"secret1"}`))
	if res.StatusCode != fiber.StatusOK {
		t.Fatalf("login: want 200, got %d", res.StatusCode)
	}
	login := decode[AuthResponse](t, res)

	res = call(t, e.app, bearer(httptest.NewRequest("GET", "/api/me", nil), login.Token))
	if res.StatusCode != fiber.StatusOK {
		t.Fatalf("me: want 200, got %d", res.StatusCode)
	}
	me := decode[directory.Profile](t, res)
	if me.User.Email != "ana@bufete.pe" || me.Lawyer == nil || me.Lawyer.LicenseNumber != "CAL-12345" {
		t.Fatalf("unexpected profile: %+v", me)
	}
}

func Test_Signup_RejectsAdministratorRole(t *testing.T) {
	e := setup(t)
	res := call(t, e.app, jsonReq("POST", "/api/signup",
		`{"role":"administrator","name":"Root","email":"root@x.com","password":"secret1"}`))
	if res.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("want 400, got %d", res.StatusCode)
	}
	out := decode[models.ValidationErrorResponse](t, res)
	if len(out.Errors["role"]) == 0 {
		t.Fatalf("want a role error, got %v", out.Errors)
	}
}

func Test_Signup_DuplicateEmail_Conflict(t *testing.T) {
	e := setup(t)
	body := `{"role":"client","name":"Carla","email":"carla@x.com","password":"secret1"}`
	if res := call(t, e.app, jsonReq("POST", "/api/signup", body)); res.StatusCode != fiber.StatusCreated {
		t.Fatalf("first signup: want 201, got %d", res.StatusCode)
	}
	res := call(t, e.app, jsonReq("POST", "/api/signup", strings.Replace(body, "carla@", "CARLA@", 1)))
	if res.StatusCode != fiber.StatusConflict {
		t.Fatalf("want 409, got %d", res.StatusCode)
	}
	if out := decode[models.ErrorResponse](t, res); out.Code != "CONFLICT" {
		t.Fatalf("want CONFLICT, got %+v", out)
	}
}

func Test_Login_WrongPassword_Unauthorized(t *testing.T) {
	e := setup(t)
	if res := call(t, e.app, jsonReq("POST", "/api/signup", `{"role":"client","name":"Carla","email":"carla@x.com","password":"secret1"}`)); res.StatusCode != fiber.StatusCreated {
		t.Fatalf("signup: want 201, got %d", res.StatusCode)
	}
	res := call(t, e.app, jsonReq("POST", "/api/login", `{"email":"carla@x.com","password":"nope"}`))
	if res.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("want 401, got %d", res.StatusCode)
	}
}

/* ============================================================================
   Middleware
   ============================================================================ */

func Test_RequireAuth_RejectsMissingAndDeactivated(t *testing.T) {
	e := setup(t)

	res := call(t, e.app, httptest.NewRequest("GET", "/api/me", nil))
	if res.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("no token: want 401, got %d", res.StatusCode)
	}

	client := fixtures.Client(t, e.repo, "Carla")
	token, err := e.tokens.IssueToken(client)
	if err != nil {
		t.Fatal(err)
	}
	if res := call(t, e.app, bearer(httptest.NewRequest("GET", "/api/me", nil), token)); res.StatusCode != fiber.StatusOK {
		t.Fatalf("active: want 200, got %d", res.StatusCode)
	}

	fixtures.Deactivate(t, e.repo, client)
	if res := call(t, e.app, bearer(httptest.NewRequest("GET", "/api/me", nil), token)); res.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("deactivated: want 401, got %d", res.StatusCode)
	}
}

func Test_RequireAuth_RejectsForeignSignature(t *testing.T) {
	e := setup(t)
	client := fixtures.Client(t, e.repo, "Carla")
	token, _ := NewTokens("another-secret", time.Hour).IssueToken(client)
	res := call(t, e.app, bearer(httptest.NewRequest("GET", "/api/me", nil), token))
	if res.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("want 401, got %d", res.StatusCode)
	}
}

func Test_RequireRole_AdminOnly(t *testing.T) {
	e := setup(t)
	lawyer := fixtures.Lawyer(t, e.repo, "Ana")
	admin := fixtures.Admin(t, e.repo)

	lt, _ := e.tokens.IssueToken(lawyer)
	if res := call(t, e.app, bearer(httptest.NewRequest("GET", "/api/users", nil), lt)); res.StatusCode != fiber.StatusForbidden {
		t.Fatalf("lawyer: want 403, got %d", res.StatusCode)
	}
	at, _ := e.tokens.IssueToken(admin)
	res := call(t, e.app, bearer(httptest.NewRequest("GET", "/api/users?role=lawyer", nil), at))
	if res.StatusCode != fiber.StatusOK {
		t.Fatalf("admin: want 200, got %d", res.StatusCode)
	}
	if users := decode[[]models.User](t, res); len(users) != 1 || users[0].ID != lawyer.UserID {
		t.Fatalf("want only the lawyer, got %+v", users)
	}
}

func Test_Tokens_RoundTripAndExpiry(t *testing.T) {
	tokens := NewTokens("s", time.Minute)
	a := access.Actor{UserID: uuid.New(), Role: models.RoleClient, ProfileID: uuid.New()}

	tok, err := tokens.IssueToken(a)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := tokens.Parse(tok)
	if err != nil || claims.Sub != a.UserID.String() || claims.Pid != a.ProfileID.String() || claims.Role != "client" {
		t.Fatalf("unexpected claims %+v (%v)", claims, err)
	}

	tokens.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	stale, _ := tokens.IssueToken(a)
	if _, err := tokens.Parse(stale); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expired: want ErrUnauthorized, got %v", err)
	}
}

/* ============================================================================
   Error handler
   ============================================================================ */

func Test_ErrorHandler_MapsDomainCodes(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.Forbidden("not yours"), 403, "FORBIDDEN"},
		{fmt.Errorf("%w: en_proceso -> pendiente", apperr.ErrInvalidTransition), 409, "INVALID_TRANSITION"},
		{apperr.ErrAlreadyTerminal, 409, "ALREADY_TERMINAL"},
		{apperr.ErrSlotUnavailable, 409, "SLOT_UNAVAILABLE"},
		{apperr.ErrInvalidRecipient, 422, "INVALID_RECIPIENT"},
		{apperr.InvalidArgument("bad"), 400, "INVALID_ARGUMENT"},
		{apperr.NotFound("case"), 404, "NOT_FOUND"},
		{apperr.ErrUnavailable, 503, "UNAVAILABLE"},
		{fiber.NewError(fiber.StatusRequestEntityTooLarge, "file too large"), 413, "PAYLOAD_TOO_LARGE"},
		{errors.New("boom"), 500, "INTERNAL_SERVER_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
			app.Get("/", func(c *fiber.Ctx) error { return tc.err })
			res := call(t, app, httptest.NewRequest("GET", "/", nil))
			if res.StatusCode != tc.status {
				t.Fatalf("want %d, got %d", tc.status, res.StatusCode)
			}
			out := decode[models.ErrorResponse](t, res)
			if out.Code != tc.code || !out.Error {
				t.Fatalf("want code %s, got %+v", tc.code, out)
			}
			if tc.status == 500 && out.Message != "Internal Server Error" {
				t.Fatalf("internal details must not leak, got %q", out.Message)
			}
		})
	}
}
