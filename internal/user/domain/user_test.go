package domain

import "testing"

func TestUser_Validate(t *testing.T) {
	u := &User{Email: "alice@example.com", Username: "alice"}
	if err := u.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if u.Status != UserStatusActive {
		t.Errorf("Status = %q, want %q", u.Status, UserStatusActive)
	}
	if err := (&User{Username: "bob"}).Validate(); err == nil {
		t.Error("Validate without email should fail")
	}
	if err := (&User{Email: "bob@example.com"}).Validate(); err == nil {
		t.Error("Validate without username should fail")
	}
}

func TestUser_Identity(t *testing.T) {
	alice := &User{ID: "u1", Username: "alice"}
	alsoAlice := &User{ID: "u1", Username: "alice"}
	bob := &User{ID: "u2", Username: "bob", Name: "Bob B."}
	var nilUser *User

	if !alice.Is(alsoAlice) {
		t.Error("alice.Is(alsoAlice) = false, want true")
	}
	if alice.Is(bob) || alice.Is(nil) || nilUser.Is(alice) {
		t.Error("Is should be false for different or nil users")
	}
	id := "u1"
	if !alice.IsID(&id) {
		t.Error("IsID(u1) = false, want true")
	}
	if alice.IsID(nil) {
		t.Error("IsID(nil) = true, want false")
	}
	if alice.DisplayName() != "alice" || bob.DisplayName() != "Bob B." {
		t.Errorf("DisplayName = %q/%q", alice.DisplayName(), bob.DisplayName())
	}
}
