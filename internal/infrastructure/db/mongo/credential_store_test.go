package mongo

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lyySpace/DBMS-FinalProj/internal/core/domain"
)

func TestMongoUser_DocumentShape(t *testing.T) {
	registered := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	in := mongoUser{
		ID:           primitive.NewObjectID(),
		Username:     "alice",
		Email:        "alice@x.io",
		PasswordHash: "$2a$10$hash",
		RealName:     "Alice",
		Nickname:     "al",
		Role:         string(domain.RoleStudent),
		RegisteredAt: registered,
	}

	raw, err := bson.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"username", "email", "password_hash", "role", "is_admin", "is_deleted"} {
		if _, ok := doc[key]; !ok {
			t.Fatalf("document missing %q: %v", key, doc)
		}
	}

	u := in.toDomain()
	if u.ID != in.ID.Hex() || u.Role != domain.RoleStudent || !u.RegisteredAt.Equal(registered) {
		t.Fatalf("unexpected domain user: %+v", u)
	}
}

func TestProfileCollectionsCoverEveryRole(t *testing.T) {
	for _, r := range []domain.Role{domain.RoleStudent, domain.RoleDepartment, domain.RoleCompany} {
		if profileCollections[r] == "" {
			t.Fatalf("no profile collection for role %s", r)
		}
	}
}
