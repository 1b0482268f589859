package cases

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aldoetobex/bufete-backend/internal/access"
	"github.com/aldoetobex/bufete-backend/internal/auth"
	"github.com/aldoetobex/bufete-backend/internal/fixtures"
	"github.com/aldoetobex/bufete-backend/internal/store"
	"github.com/aldoetobex/bufete-backend/internal/store/memstore"
	"github.com/aldoetobex/bufete-backend/pkg/apperr"
	"github.com/aldoetobex/bufete-backend/pkg/models"
	"github.com/aldoetobex/bufete-backend/pkg/utils"
)

/* ============================================================================
   Helpers
   ============================================================================ */

func newService() (*Service, *memstore.Store) {
	repo := memstore.New()
	return NewService(repo, access.NewEngine(zap.NewNop()), zap.NewNop()), repo
}

// injectAuth puts the auth locals into Fiber context without a real JWT.
func injectAuth(a access.Actor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("userID", a.UserID.String())
		c.Locals("role", string(a.Role))
		if a.ProfileID != uuid.Nil {
			c.Locals("profileID", a.ProfileID.String())
		}
		return c.Next()
	}
}

// newTestApp registers routes in a safe order for tests.
func newTestApp(h *Handler, a access.Actor) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(nil)})
	app.Use(injectAuth(a))

	app.Get("/api/lawyer/clients", h.LawyerClients)
	app.Get("/api/cases", h.List)
	app.Post("/api/cases", h.Create)
	app.Get("/api/cases/:id", h.Get)
	app.Post("/api/cases/:id/transition", h.Transition)
	app.Get("/api/cases/:id/history", h.History)
	return app
}

func jsonReq(method, url, body string) *http.Request {
	r := httptest.NewRequest(method, url, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func decodeErr(t *testing.T, body []byte) models.ErrorResponse {
	t.Helper()
	var e models.ErrorResponse
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, body)
	}
	return e
}

/* ============================================================================
   Lifecycle
   ============================================================================ */

func Test_Transition_LawyerMovesPendingToInProgress_ClientForbidden(t *testing.T) {
	s, repo := newService()
	ctx := context.Background()
	lawyer := fixtures.Lawyer(t, repo, "L")
	client := fixtures.Client(t, repo, "C")
	cs := fixtures.Case(t, repo, lawyer, client, models.CasePending)

	got, err := s.Transition(ctx, lawyer, cs.ID, models.CaseInProgress, "")
	if err != nil {
		t.Fatalf("lawyer transition: %v", err)
	}
	if got.State != models.CaseInProgress {
		t.Fatalf("want en_proceso, got %s", got.State)
	}

	if _, err := s.Transition(ctx, client, cs.ID, models.CaseInProgress, ""); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("client: want ErrForbidden, got %v", err)
	}
}

func Test_Transition_OtherLawyerForbidden(t *testing.T) {
	s, repo := newService()
	lawyer := fixtures.Lawyer(t, repo, "L1")
	other := fixtures.Lawyer(t, repo, "L2")
	client := fixtures.Client(t, repo, "C")
	cs := fixtures.Case(t, repo, lawyer, client, models.CasePending)

	if _, err := s.Transition(context.Background(), other, cs.ID, models.CaseInReview, ""); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
}

func Test_Transition_OutsiderGetsForbidden_BeforeStateIsChecked(t *testing.T) {
	s, repo := newService()
	lawyer := fixtures.Lawyer(t, repo, "L1")
	other := fixtures.Lawyer(t, repo, "L2")
	client := fixtures.Client(t, repo, "C")
	cs := fixtures.Case(t, repo, lawyer, client, models.CasePending)
	ctx := context.Background()

	for _, a := range []access.Actor{client, other} {
		if _, err := s.Transition(ctx, a, cs.ID, models.CaseState("bogus"), ""); !errors.Is(err, apperr.ErrForbidden) {
			t.Fatalf("%s with unknown state: want ErrForbidden, got %v", a.Role, err)
		}
	}
	if _, err := s.Transition(ctx, lawyer, cs.ID, models.CaseState("bogus"), ""); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("assigned lawyer with unknown state: want ErrInvalidArgument, got %v", err)
	}
}

func Test_Transition_NoSkipping(t *testing.T) {
	s, repo := newService()
	lawyer := fixtures.Lawyer(t, repo, "L")
	client := fixtures.Client(t, repo, "C")
	cs := fixtures.Case(t, repo, lawyer, client, models.CasePending)

	if _, err := s.Transition(context.Background(), lawyer, cs.ID, models.CaseWon, ""); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("pendiente -> ganado: want ErrInvalidTransition, got %v", err)
	}
	got, _ := repo.CaseByID(context.Background(), cs.ID, false)
	if got.State != models.CasePending {
		t.Fatalf("state must be unchanged, got %s", got.State)
	}
}

func Test_Transition_TerminalIsFinal(t *testing.T) {
	s, repo := newService()
	admin := fixtures.Admin(t, repo)
	lawyer := fixtures.Lawyer(t, repo, "L")
	client := fixtures.Client(t, repo, "C")

	for _, st := range []models.CaseState{models.CaseWon, models.CaseLost, models.CaseCompleted} {
		cs := fixtures.Case(t, repo, lawyer, client, st)
		for _, a := range []access.Actor{lawyer, admin} {
			if _, err := s.Transition(context.Background(), a, cs.ID, models.CaseCompleted, ""); !errors.Is(err, apperr.ErrAlreadyTerminal) {
				t.Fatalf("%s by %s: want ErrAlreadyTerminal, got %v", st, a.Role, err)
			}
		}
	}
}

func Test_Transition_AdminForcesClosure(t *testing.T) {
	s, repo := newService()
	ctx := context.Background()
	admin := fixtures.Admin(t, repo)
	lawyer := fixtures.Lawyer(t, repo, "L")
	client := fixtures.Client(t, repo, "C")
	cs := fixtures.Case(t, repo, lawyer, client, models.CasePending)

	// Not a terminal target: even admins follow the graph
	if _, err := s.Transition(ctx, admin, cs.ID, models.CaseInReview, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Transition(ctx, admin, cs.ID, models.CasePending, ""); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("admin backwards: want ErrInvalidTransition, got %v", err)
	}
	if _, err := s.Transition(ctx, admin, cs.ID, models.CaseLost, "client withdrew, call +51 987 654 321"); err != nil {
		t.Fatalf("forced close: %v", err)
	}

	hist, err := s.History(ctx, admin, cs.ID)
	if err != nil {
		t.Fatal(err)
	}
	last := hist[len(hist)-1]
	if last.Action != utils.ActionForcedClose || last.OldState != models.CaseInReview || last.NewState != models.CaseLost {
		t.Fatalf("unexpected last history entry: %+v", last)
	}
	if strings.Contains(last.Reason, "987") {
		t.Fatalf("phone number must be redacted: %q", last.Reason)
	}
}

// Every successful walk is a path through the graph and is fully audited.
func Test_Transition_HistoryIsAPath(t *testing.T) {
	s, repo := newService()
	ctx := context.Background()
	admin := fixtures.Admin(t, repo)
	lawyer := fixtures.Lawyer(t, repo, "L")
	client := fixtures.Client(t, repo, "C")

	cs, err := s.Assign(ctx, admin, AssignRequest{ClientID: client.ProfileID, LawyerID: lawyer.ProfileID, Title: "Desalojo", Type: "Derecho Civil"})
	if err != nil {
		t.Fatal(err)
	}
	attempts := []models.CaseState{
		models.CaseWon, models.CaseInReview, models.CasePending, models.CaseInProgress,
		models.CaseInReview, models.CaseCompleted, models.CaseLost,
	}
	for _, to := range attempts {
		_, _ = s.Transition(ctx, lawyer, cs.ID, to, "")
	}

	hist, _ := s.History(ctx, lawyer, cs.ID)
	if len(hist) != 4 {
		t.Fatalf("want created + 3 transitions, got %d", len(hist))
	}
	if hist[0].Action != utils.ActionCreated || hist[0].NewState != models.CasePending {
		t.Fatalf("first entry must be creation: %+v", hist[0])
	}
	for _, h := range hist[1:] {
		if !CanTransition(h.OldState, h.NewState) {
			t.Fatalf("history contains a non-edge %s -> %s", h.OldState, h.NewState)
		}
	}
	if hist[len(hist)-1].NewState != models.CaseCompleted {
		t.Fatalf("want completado at the end, got %s", hist[len(hist)-1].NewState)
	}
}

func Test_Transition_UnknownCase(t *testing.T) {
	s, repo := newService()
	lawyer := fixtures.Lawyer(t, repo, "L")
	if _, err := s.Transition(context.Background(), lawyer, uuid.New(), models.CaseInReview, ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func Test_NextStates(t *testing.T) {
	if got := NextStates(models.CaseWon, models.RoleAdmin); len(got) != 0 {
		t.Fatalf("terminal has no next states, got %v", got)
	}
	if got := NextStates(models.CasePending, models.RoleLawyer); len(got) != 2 {
		t.Fatalf("lawyer from pendiente: want 2, got %v", got)
	}
	if got := NextStates(models.CasePending, models.RoleAdmin); len(got) != 5 {
		t.Fatalf("admin from pendiente: want 5, got %v", got)
	}
}

/* ============================================================================
   Assignment
   ============================================================================ */

func Test_Assign_RequiresActiveParties(t *testing.T) {
	s, repo := newService()
	admin := fixtures.Admin(t, repo)
	lawyer := fixtures.Lawyer(t, repo, "L")
	client := fixtures.Client(t, repo, "C")
	fixtures.Deactivate(t, repo, client)

	_, err := s.Assign(context.Background(), admin, AssignRequest{ClientID: client.ProfileID, LawyerID: lawyer.ProfileID, Title: "X", Type: "Otro"})
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("inactive client: want ErrInvalidArgument, got %v", err)
	}
	list, _ := repo.ListCases(context.Background(), store.CaseFilter{})
	if len(list) != 0 {
		t.Fatalf("no case must be written, got %d", len(list))
	}
}

func Test_Assign_NegativeBudget(t *testing.T) {
	s, repo := newService()
	lawyer := fixtures.Lawyer(t, repo, "L")
	client := fixtures.Client(t, repo, "C")
	neg := int64(-1)

	_, err := s.Assign(context.Background(), lawyer, AssignRequest{ClientID: client.ProfileID, LawyerID: lawyer.ProfileID, Title: "X", Type: "Otro", BudgetCents: &neg})
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}

func Test_Assign_Permissions(t *testing.T) {
	s, repo := newService()
	ctx := context.Background()
	lawyer := fixtures.Lawyer(t, repo, "L1")
	other := fixtures.Lawyer(t, repo, "L2")
	client := fixtures.Client(t, repo, "C")
	req := AssignRequest{ClientID: client.ProfileID, LawyerID: lawyer.ProfileID, Title: "X", Type: "Otro"}

	if _, err := s.Assign(ctx, client, req); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("client: want ErrForbidden, got %v", err)
	}
	if _, err := s.Assign(ctx, other, req); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("other lawyer: want ErrForbidden, got %v", err)
	}
	cs, err := s.Assign(ctx, lawyer, req)
	if err != nil {
		t.Fatal(err)
	}
	if cs.State != models.CasePending {
		t.Fatalf("want pendiente, got %s", cs.State)
	}
}

func Test_ListFor_RoleFiltered(t *testing.T) {
	s, repo := newService()
	ctx := context.Background()
	admin := fixtures.Admin(t, repo)
	l1 := fixtures.Lawyer(t, repo, "L1")
	l2 := fixtures.Lawyer(t, repo, "L2")
	c1 := fixtures.Client(t, repo, "C1")
	c2 := fixtures.Client(t, repo, "C2")
	fixtures.Case(t, repo, l1, c1, models.CasePending)
	fixtures.Case(t, repo, l1, c2, models.CaseInProgress)
	fixtures.Case(t, repo, l2, c2, models.CaseWon)

	count := func(a access.Actor, states ...models.CaseState) int {
		list, err := s.ListFor(ctx, a, states)
		if err != nil {
			t.Fatal(err)
		}
		return len(list)
	}
	if n := count(admin); n != 3 {
		t.Fatalf("admin: want 3, got %d", n)
	}
	if n := count(l1); n != 2 {
		t.Fatalf("l1: want 2, got %d", n)
	}
	if n := count(c2); n != 2 {
		t.Fatalf("c2: want 2, got %d", n)
	}
	if n := count(c2, models.CaseWon); n != 1 {
		t.Fatalf("c2 won: want 1, got %d", n)
	}
}

func Test_ClientsOf_Distinct(t *testing.T) {
	s, repo := newService()
	lawyer := fixtures.Lawyer(t, repo, "L")
	c1 := fixtures.Client(t, repo, "Ana")
	c2 := fixtures.Client(t, repo, "Beto")
	fixtures.Case(t, repo, lawyer, c1, models.CasePending)
	fixtures.Case(t, repo, lawyer, c1, models.CaseWon)
	fixtures.Case(t, repo, lawyer, c2, models.CaseInReview)

	got, err := s.ClientsOf(context.Background(), lawyer)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].User.Name != "Ana" {
		t.Fatalf("want [Ana Beto], got %d", len(got))
	}
	if _, err := s.ClientsOf(context.Background(), c1); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("client: want ErrForbidden, got %v", err)
	}
}

/* ============================================================================
   HTTP
   ============================================================================ */

func Test_Handler_Create_LawyerDefaultsToSelf(t *testing.T) {
	s, repo := newService()
	lawyer := fixtures.Lawyer(t, repo, "L")
	client := fixtures.Client(t, repo, "C")
	app := newTestApp(NewHandler(s), lawyer)

	body := `{"client_id":"` + client.ProfileID.String() + `","title":"Despido arbitrario","type":"Derecho Laboral","start_date":"2024-03-01","budget_cents":150000}`
	res, err := app.Test(jsonReq("POST", "/api/cases", body), -1)
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != fiber.StatusCreated {
		t.Fatalf("want 201, got %d", res.StatusCode)
	}
	var cs models.Case
	_ = json.NewDecoder(res.Body).Decode(&cs)
	if cs.LawyerID != lawyer.ProfileID || cs.State != models.CasePending {
		t.Fatalf("unexpected case: %+v", cs)
	}
	if cs.StartDate.Format("2006-01-02") != "2024-03-01" {
		t.Fatalf("start date not kept: %s", cs.StartDate)
	}
}

func Test_Handler_Create_ValidationError(t *testing.T) {
	s, repo := newService()
	lawyer := fixtures.Lawyer(t, repo, "L")
	app := newTestApp(NewHandler(s), lawyer)

	res, _ := app.Test(jsonReq("POST", "/api/cases", `{"title":""}`), -1)
	if res.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("want 400, got %d", res.StatusCode)
	}
	var out models.ValidationErrorResponse
	_ = json.NewDecoder(res.Body).Decode(&out)
	if len(out.Errors["client_id"]) == 0 || len(out.Errors["title"]) == 0 {
		t.Fatalf("want client_id and title errors, got %v", out.Errors)
	}
}

func Test_Handler_Transition_ErrorCodes(t *testing.T) {
	s, repo := newService()
	lawyer := fixtures.Lawyer(t, repo, "L")
	client := fixtures.Client(t, repo, "C")
	pending := fixtures.Case(t, repo, lawyer, client, models.CasePending)
	won := fixtures.Case(t, repo, lawyer, client, models.CaseWon)

	cases := []struct {
		name   string
		actor  access.Actor
		caseID string
		body   string
		status int
		code   string
	}{
		{"skip", lawyer, pending.ID.String(), `{"to":"ganado"}`, fiber.StatusConflict, "INVALID_TRANSITION"},
		{"terminal", lawyer, won.ID.String(), `{"to":"perdido"}`, fiber.StatusConflict, "ALREADY_TERMINAL"},
		{"client", client, pending.ID.String(), `{"to":"en_proceso"}`, fiber.StatusForbidden, "FORBIDDEN"},
		{"missing", lawyer, uuid.NewString(), `{"to":"en_proceso"}`, fiber.StatusNotFound, "NOT_FOUND"},
		{"unknown state", lawyer, pending.ID.String(), `{"to":"archivado"}`, fiber.StatusBadRequest, "INVALID_ARGUMENT"},
		{"client unknown state", client, pending.ID.String(), `{"to":"archivado"}`, fiber.StatusForbidden, "FORBIDDEN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(NewHandler(s), tc.actor)
			res, _ := app.Test(jsonReq("POST", "/api/cases/"+tc.caseID+"/transition", tc.body), -1)
			if res.StatusCode != tc.status {
				t.Fatalf("want %d, got %d", tc.status, res.StatusCode)
			}
			raw, _ := io.ReadAll(res.Body)
			if e := decodeErr(t, raw); e.Code != tc.code {
				t.Fatalf("want %s, got %s", tc.code, e.Code)
			}
		})
	}
}

func Test_Handler_Get_ClientSeesNoNextStates(t *testing.T) {
	s, repo := newService()
	lawyer := fixtures.Lawyer(t, repo, "L")
	client := fixtures.Client(t, repo, "C")
	cs := fixtures.Case(t, repo, lawyer, client, models.CaseInReview)

	for _, tc := range []struct {
		actor access.Actor
		next  int
	}{{lawyer, 1}, {client, 0}} {
		res, _ := newTestApp(NewHandler(s), tc.actor).Test(httptest.NewRequest("GET", "/api/cases/"+cs.ID.String(), nil))
		if res.StatusCode != fiber.StatusOK {
			t.Fatalf("%s: want 200, got %d", tc.actor.Role, res.StatusCode)
		}
		var d CaseDetail
		_ = json.NewDecoder(res.Body).Decode(&d)
		if len(d.NextStates) != tc.next {
			t.Fatalf("%s: want %d next states, got %v", tc.actor.Role, tc.next, d.NextStates)
		}
	}
}

func Test_Handler_List_Paginates(t *testing.T) {
	s, repo := newService()
	lawyer := fixtures.Lawyer(t, repo, "L")
	client := fixtures.Client(t, repo, "C")
	for i := 0; i < 12; i++ {
		fixtures.Case(t, repo, lawyer, client, models.CasePending)
	}
	app := newTestApp(NewHandler(s), client)

	res, _ := app.Test(httptest.NewRequest("GET", "/api/cases?page=2&pageSize=5", nil), -1)
	var p PageCases
	_ = json.NewDecoder(res.Body).Decode(&p)
	if p.Total != 12 || p.Pages != 3 || len(p.Items) != 5 || p.Page != 2 {
		t.Fatalf("unexpected page: total=%d pages=%d items=%d", p.Total, p.Pages, len(p.Items))
	}

	res, _ = app.Test(httptest.NewRequest("GET", "/api/cases?page=9", nil), -1)
	_ = json.NewDecoder(res.Body).Decode(&p)
	if p.Items == nil || len(p.Items) != 0 {
		t.Fatalf("out of range page must be an empty array")
	}
}
