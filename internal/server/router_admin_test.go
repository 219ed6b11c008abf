package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/linkdeck/internal/users"
)

func TestAdminPagesRequireStaff(t *testing.T) {
	server := newTestServer(t)
	member := server.createUser(t, users.NewUserRequest{Username: "member", Password: testPassword})

	for _, path := range []string{"/admin/", "/admin/users/" + member.ID + "/"} {
		recorder := server.get(path, server.sessionCookie(t, member))
		if recorder.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403 for non-staff, got %d", path, recorder.Code)
		}
	}
}

func TestAdminPagesListUsersAndIdentities(t *testing.T) {
	server := newTestServer(t)
	staff := server.createUser(t, users.NewUserRequest{Username: "root", Password: testPassword, IsStaff: true})
	member := server.createUser(t, users.NewUserRequest{Username: "member"})
	server.link(t, member, users.ProviderGitHub, "42", "member-gh")
	session := server.sessionCookie(t, staff)

	list := server.get("/admin/", session)
	if list.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", list.Code)
	}
	body := list.Body.String()
	for _, want := range []string{`href="/admin/users/` + member.ID + `/"`, ">member</a>", ">root</a>", "unusable"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected user list to contain %q: %s", want, body)
		}
	}

	detail := server.get("/admin/users/"+member.ID+"/", session)
	if detail.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", detail.Code)
	}
	if !strings.Contains(detail.Body.String(), "GitHub: member-gh (42)") {
		t.Fatalf("expected linked identity in detail: %s", detail.Body.String())
	}

	if missing := server.get("/admin/users/unknown/", session); missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", missing.Code)
	}
}
