package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainauth "campusmarket/internal/domain/auth"
	domainuser "campusmarket/internal/domain/user"
)

// UserRepository persists accounts in the "users" collection and doubles as
// the public profile directory for conversation preview enrichment, so auth
// writes and chat reads always see the same rows.
type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	col := db.Collection("users")
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	_, _ = col.Indexes().CreateOne(context.Background(), idx)
	return &UserRepository{col: col}
}

type userDocument struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	Name         string    `bson:"full_name"`
	PictureURL   string    `bson:"profile_picture_url,omitempty"`
	PasswordHash string    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func newUserDocument(u *domainuser.User) userDocument {
	return userDocument{
		ID:           string(u.ID),
		Email:        u.Email,
		Name:         u.Name,
		PictureURL:   u.PictureURL,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt.UTC(),
		UpdatedAt:    u.UpdatedAt.UTC(),
	}
}

func (d userDocument) toUser() *domainuser.User {
	return &domainuser.User{
		ID:           domainuser.ID(d.ID),
		Email:        d.Email,
		Name:         d.Name,
		PictureURL:   d.PictureURL,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

func (d userDocument) toProfile() domainuser.Profile {
	return domainuser.Profile{
		ID:         domainuser.ID(d.ID),
		Name:       d.Name,
		PictureURL: d.PictureURL,
	}
}

func (r *UserRepository) ByID(ctx context.Context, id domainuser.ID) (*domainuser.User, error) {
	var doc userDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domainuser.ErrNotFound
		}
		return nil, err
	}
	return doc.toUser(), nil
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (*domainuser.User, error) {
	var doc userDocument
	if err := r.col.FindOne(ctx, bson.M{"email": email}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domainuser.ErrNotFound
		}
		return nil, err
	}
	return doc.toUser(), nil
}

func (r *UserRepository) Save(ctx context.Context, user *domainuser.User) error {
	if user == nil {
		return domainuser.ErrIDRequired
	}
	doc := newUserDocument(user)
	opts := options.Replace().SetUpsert(true)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts)
	if mongo.IsDuplicateKeyError(err) {
		// Unique email index tripped by a different account.
		return domainuser.ErrEmailAlreadyUsed
	}
	return err
}

func (r *UserRepository) ProfileByID(ctx context.Context, id domainuser.ID) (domainuser.Profile, error) {
	var doc userDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return domainuser.Profile{}, domainuser.ErrNotFound
		}
		return domainuser.Profile{}, err
	}
	return doc.toProfile(), nil
}

// SessionStore keeps bearer sessions in the "sessions" collection. A TTL
// index reaps expired rows server-side; Get still checks expiry so a token is
// never honored in the window before the reaper runs.
type SessionStore struct {
	col *mongo.Collection
}

func NewSessionStore(db *mongo.Database) *SessionStore {
	col := db.Collection("sessions")
	idx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	_, _ = col.Indexes().CreateMany(context.Background(), idx)
	return &SessionStore{col: col}
}

type sessionDocument struct {
	Token     string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

func newSessionDocument(s *domainauth.Session) sessionDocument {
	return sessionDocument{
		Token:     string(s.Token),
		UserID:    string(s.UserID),
		CreatedAt: s.CreatedAt.UTC(),
		ExpiresAt: s.ExpiresAt.UTC(),
	}
}

func (d sessionDocument) toSession() *domainauth.Session {
	return &domainauth.Session{
		Token:     domainauth.Token(d.Token),
		UserID:    domainuser.ID(d.UserID),
		CreatedAt: d.CreatedAt.UTC(),
		ExpiresAt: d.ExpiresAt.UTC(),
	}
}

func (s *SessionStore) Save(ctx context.Context, session *domainauth.Session) error {
	if session == nil {
		return domainauth.ErrTokenRequired
	}
	doc := newSessionDocument(session)
	opts := options.Replace().SetUpsert(true)
	_, err := s.col.ReplaceOne(ctx, bson.M{"_id": doc.Token}, doc, opts)
	return err
}

func (s *SessionStore) Get(ctx context.Context, token domainauth.Token) (*domainauth.Session, error) {
	var doc sessionDocument
	if err := s.col.FindOne(ctx, bson.M{"_id": string(token)}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domainauth.ErrSessionNotFound
		}
		return nil, err
	}
	session := doc.toSession()
	if session.Expired(time.Now()) {
		_ = s.Delete(ctx, token)
		return nil, domainauth.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) Delete(ctx context.Context, token domainauth.Token) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"_id": string(token)})
	return err
}

func (s *SessionStore) DeleteByUser(ctx context.Context, userID domainuser.ID) error {
	_, err := s.col.DeleteMany(ctx, bson.M{"user_id": string(userID)})
	return err
}

var (
	_ domainuser.Repository   = (*UserRepository)(nil)
	_ domainuser.Directory    = (*UserRepository)(nil)
	_ domainauth.SessionStore = (*SessionStore)(nil)
)
