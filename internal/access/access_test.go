package access

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/aldoetobex/bufete-backend/pkg/apperr"
	"github.com/aldoetobex/bufete-backend/pkg/models"
)

func Test_Decide_Table(t *testing.T) {
	lawyer := Actor{UserID: uuid.New(), Role: models.RoleLawyer, ProfileID: uuid.New()}
	other := Actor{UserID: uuid.New(), Role: models.RoleLawyer, ProfileID: uuid.New()}
	client := Actor{UserID: uuid.New(), Role: models.RoleClient, ProfileID: uuid.New()}
	stranger := Actor{UserID: uuid.New(), Role: models.RoleClient, ProfileID: uuid.New()}
	admin := Actor{UserID: uuid.New(), Role: models.RoleAdmin}

	cs := &models.Case{ID: uuid.New(), LawyerID: lawyer.ProfileID, ClientID: client.ProfileID}
	msg := &models.Message{SenderID: client.UserID, RecipientID: lawyer.UserID}

	tests := []struct {
		name  string
		actor Actor
		act   Action
		res   Resource
		want  bool
	}{
		{"admin reads case", admin, ActionRead, CaseResource(cs), true},
		{"admin writes case", admin, ActionWrite, CaseResource(cs), true},
		{"admin reads reports", admin, ActionRead, ReportResource(), true},
		{"admin manages users", admin, ActionWrite, UserResource(), true},

		{"lawyer reads own case", lawyer, ActionRead, CaseResource(cs), true},
		{"lawyer writes own case", lawyer, ActionWrite, CaseResource(cs), true},
		{"lawyer creates case for self", lawyer, ActionCreate, NewCaseResource(lawyer.ProfileID, client.ProfileID), true},
		{"lawyer creates case for colleague", lawyer, ActionCreate, NewCaseResource(other.ProfileID, client.ProfileID), false},
		{"other lawyer reads case", other, ActionRead, CaseResource(cs), false},
		{"lawyer reads directory", lawyer, ActionRead, DirectoryResource(), true},
		{"lawyer writes directory", lawyer, ActionWrite, DirectoryResource(), false},
		{"lawyer reads reports", lawyer, ActionRead, ReportResource(), false},
		{"lawyer uploads document", lawyer, ActionWrite, DocumentResource(cs), true},
		{"lawyer reads own message", lawyer, ActionRead, MessageResource(msg, nil), true},
		{"other lawyer reads message", other, ActionRead, MessageResource(msg, nil), false},

		{"client reads own case", client, ActionRead, CaseResource(cs), true},
		{"client writes own case", client, ActionWrite, CaseResource(cs), false},
		{"client creates case", client, ActionCreate, NewCaseResource(lawyer.ProfileID, client.ProfileID), false},
		{"client uploads document", client, ActionWrite, DocumentResource(cs), false},
		{"client reads document", client, ActionRead, DocumentResource(cs), true},
		{"client books appointment", client, ActionCreate, NewAppointmentResource(lawyer.ProfileID, client.ProfileID), false},
		{"client reads directory", client, ActionRead, DirectoryResource(), false},
		{"client reads own message", client, ActionRead, MessageResource(msg, nil), true},
		{"stranger reads case", stranger, ActionRead, CaseResource(cs), false},
		{"stranger reads message", stranger, ActionRead, MessageResource(msg, nil), false},

		{"unknown role", Actor{UserID: uuid.New(), Role: "guest"}, ActionRead, CaseResource(cs), false},
		{"lawyer without profile", Actor{UserID: uuid.New(), Role: models.RoleLawyer}, ActionRead, CaseResource(&models.Case{}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.actor, tt.act, tt.res)
			if d.Allowed != tt.want {
				t.Fatalf("want allowed=%v, got %+v", tt.want, d)
			}
			if !d.Allowed && d.Reason == "" {
				t.Fatal("a denial must carry a reason")
			}
		})
	}
}

// A client reads a case exactly when the case's client is the client's profile.
func Test_Decide_ClientReadMatchesOwnership(t *testing.T) {
	clients := make([]Actor, 5)
	for i := range clients {
		clients[i] = Actor{UserID: uuid.New(), Role: models.RoleClient, ProfileID: uuid.New()}
	}
	for i := 0; i < 50; i++ {
		owner := clients[i%len(clients)]
		cs := &models.Case{ID: uuid.New(), ClientID: owner.ProfileID, LawyerID: uuid.New()}
		for _, c := range clients {
			got := Decide(c, ActionRead, CaseResource(cs)).Allowed
			want := cs.ClientID == c.ProfileID
			if got != want {
				t.Fatalf("client %s case %s: want %v, got %v", c.ProfileID, cs.ID, want, got)
			}
		}
	}
}

func Test_Engine_Require_ReturnsForbidden(t *testing.T) {
	e := NewEngine(nil)
	client := Actor{UserID: uuid.New(), Role: models.RoleClient, ProfileID: uuid.New()}
	cs := &models.Case{LawyerID: uuid.New(), ClientID: uuid.New()}

	err := e.Require(client, ActionRead, CaseResource(cs))
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
	if d := e.CanAccess(client, ActionRead, CaseResource(cs)); d.Allowed {
		t.Fatal("denial expected")
	}

	cs.ClientID = client.ProfileID
	if err := e.Require(client, ActionRead, CaseResource(cs)); err != nil {
		t.Fatalf("owner should pass: %v", err)
	}
}
