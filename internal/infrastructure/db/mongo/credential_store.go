package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lyySpace/DBMS-FinalProj/internal/core/domain"
	"github.com/lyySpace/DBMS-FinalProj/internal/core/ports"
)

const (
	storeName       = "mongo"
	usersCollection = "users"
)

var profileCollections = map[domain.Role]string{
	domain.RoleStudent:    "student_profile",
	domain.RoleDepartment: "department_profile",
	domain.RoleCompany:    "company_profile",
}

// CredentialStore keeps identities in the users collection. Create needs a
// replica set since it runs inside a multi-document transaction.
type CredentialStore struct {
	client *mongo.Client
	db     *mongo.Database
	users  *mongo.Collection
}

var _ ports.CredentialStore = (*CredentialStore)(nil)

func NewCredentialStore(client *mongo.Client, db *mongo.Database) *CredentialStore {
	return &CredentialStore{client: client, db: db, users: db.Collection(usersCollection)}
}

type mongoUser struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Username     string             `bson:"username"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"password_hash"`
	RealName     string             `bson:"real_name"`
	Nickname     string             `bson:"nickname"`
	Role         string             `bson:"role"`
	IsAdmin      bool               `bson:"is_admin"`
	RegisteredAt time.Time          `bson:"registered_at"`
	IsDeleted    bool               `bson:"is_deleted"`
}

func (m mongoUser) toDomain() *domain.User {
	return &domain.User{
		ID:           m.ID.Hex(),
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		RealName:     m.RealName,
		Nickname:     m.Nickname,
		Role:         domain.Role(m.Role),
		IsAdmin:      m.IsAdmin,
		RegisteredAt: m.RegisteredAt.UTC(),
		IsDeleted:    m.IsDeleted,
	}
}

// EnsureIndexes creates the unique login indexes and the profile lookups.
func (s *CredentialStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return domain.Infra(storeName, "ensure user indexes", err)
	}

	for _, name := range profileCollections {
		_, err := s.db.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		})
		if err != nil {
			return domain.Infra(storeName, "ensure profile indexes", err)
		}
	}
	return nil
}

// Create inserts the user and runs onCreated inside one transaction.
func (s *CredentialStore) Create(ctx context.Context, user *domain.User, onCreated ports.OnCreated) (*domain.User, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, domain.Infra(storeName, "start session", err)
	}
	defer sess.EndSession(ctx)

	res, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		n, err := s.users.CountDocuments(sc, bson.M{"$or": bson.A{
			bson.M{"username": user.Username},
			bson.M{"email": user.Email},
		}})
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, domain.ErrUserExists
		}

		doc := mongoUser{
			Username:     user.Username,
			Email:        user.Email,
			PasswordHash: user.PasswordHash,
			RealName:     user.RealName,
			Nickname:     user.Nickname,
			Role:         string(user.Role),
			IsAdmin:      user.IsAdmin,
			RegisteredAt: user.RegisteredAt.UTC(),
		}
		out, err := s.users.InsertOne(sc, doc)
		if err != nil {
			return nil, err
		}
		doc.ID = out.InsertedID.(primitive.ObjectID)

		created := doc.toDomain()
		if onCreated != nil {
			if err := onCreated(sc, created); err != nil {
				return nil, err
			}
		}
		return created, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) || mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, domain.Infra(storeName, "create user", err)
	}
	return res.(*domain.User), nil
}

// FindByLogin tries identifier as a username first and as an email second,
// so a username match wins over another identity's email.
func (s *CredentialStore) FindByLogin(ctx context.Context, identifier string) (*domain.User, error) {
	for _, field := range []string{"username", "email"} {
		var mu mongoUser
		err := s.users.FindOne(ctx, bson.M{field: identifier, "is_deleted": false}).Decode(&mu)
		if err == nil {
			return mu.toDomain(), nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.Infra(storeName, "find user by login", err)
		}
	}
	return nil, nil
}

func (s *CredentialStore) FindByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}

	var mu mongoUser
	if err := s.users.FindOne(ctx, bson.M{"_id": oid, "is_deleted": false}).Decode(&mu); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, domain.Infra(storeName, "find user by id", err)
	}
	return mu.toDomain(), nil
}

func (s *CredentialStore) HasProfile(ctx context.Context, id string, role domain.Role) (bool, error) {
	name, ok := profileCollections[role]
	if !ok {
		return false, nil
	}

	n, err := s.db.Collection(name).CountDocuments(ctx, bson.M{"user_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, domain.Infra(storeName, "check profile", err)
	}
	return n > 0, nil
}

// ReplacePasswordHash overwrites the stored hash as a whole.
func (s *CredentialStore) ReplacePasswordHash(ctx context.Context, id, hash string) error {
	return s.updateOne(ctx, "replace password hash", id, bson.M{"password_hash": hash})
}

func (s *CredentialStore) SetAdmin(ctx context.Context, id string, admin bool) error {
	return s.updateOne(ctx, "set admin", id, bson.M{"is_admin": admin})
}

func (s *CredentialStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return domain.Infra(storeName, "ping", err)
	}
	return nil
}

func (s *CredentialStore) updateOne(ctx context.Context, op, id string, set bson.M) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrUserNotFound
	}

	res, err := s.users.UpdateOne(ctx, bson.M{"_id": oid, "is_deleted": false}, bson.M{"$set": set})
	if err != nil {
		return domain.Infra(storeName, op, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
