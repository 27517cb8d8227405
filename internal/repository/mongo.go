package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/exmoboty/starter/internal/model"
)

const (
	mongoBackend       = "mongo"
	usersCollection    = "users"
	sessionsCollection = "sessions"
)

// NewMongo connects to uri and waits for the primary to answer a ping.
func NewMongo(ctx context.Context, uri, database string, retries uint64, logger *slog.Logger) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetTimeout(10 * time.Second))
	if err != nil {
		return nil, nil, oops.Code("STORE_OPEN_FAILED").With("driver", mongoBackend).Wrap(err)
	}

	ping := func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	}
	if err := pingWithRetry(ctx, retries, logger, mongoBackend, ping); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}

	return client, client.Database(database), nil
}

// EnsureMongoIndexes creates the unique email index, the reset token lookup
// index, and a TTL index so expired sessions are reaped by the server too.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uq_users_email"),
		},
		{
			Keys:    bson.D{{Key: "password_reset_token", Value: 1}},
			Options: options.Index().SetSparse(true).SetName("idx_users_reset_token"),
		},
	})
	if err != nil {
		return storeError(mongoBackend, "create user indexes", err)
	}

	_, err = db.Collection(sessionsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetName("idx_sessions_user"),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("ttl_sessions_expires"),
		},
	})
	if err != nil {
		return storeError(mongoBackend, "create session indexes", err)
	}
	return nil
}

type mongoProfile struct {
	Name string `bson:"name"`
}

type mongoUser struct {
	ID                   string       `bson:"_id"`
	Email                string       `bson:"email"`
	PasswordHash         string       `bson:"password_hash"`
	Profile              mongoProfile `bson:"profile"`
	PasswordResetToken   string       `bson:"password_reset_token,omitempty"`
	PasswordResetExpires *time.Time   `bson:"password_reset_expires,omitempty"`
	CreatedAt            time.Time    `bson:"created_at"`
	UpdatedAt            time.Time    `bson:"updated_at"`
}

func toMongoUser(u *model.User) mongoUser {
	doc := mongoUser{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Profile:      mongoProfile{Name: u.Profile.Name},
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if u.PasswordResetToken != "" && u.PasswordResetExpires != nil {
		doc.PasswordResetToken = u.PasswordResetToken
		exp := u.PasswordResetExpires.UTC()
		doc.PasswordResetExpires = &exp
	}
	return doc
}

func (d mongoUser) toModel() *model.User {
	u := &model.User{
		ID:           d.ID,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Profile:      model.Profile{Name: d.Profile.Name},
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
	if d.PasswordResetToken != "" && d.PasswordResetExpires != nil {
		u.SetResetToken(d.PasswordResetToken, *d.PasswordResetExpires)
	}
	return u
}

// MongoUserRepository handles user persistence in a MongoDB collection.
type MongoUserRepository struct {
	coll *mongo.Collection
}

// NewMongoUserRepository creates a new MongoUserRepository.
func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{coll: db.Collection(usersCollection)}
}

func (r *MongoUserRepository) findOne(ctx context.Context, operation string, filter bson.D) (*model.User, error) {
	var doc mongoUser
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, storeError(mongoBackend, operation, err)
	}
	return doc.toModel(), nil
}

// FindByEmail retrieves a user by their normalized email address.
func (r *MongoUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "find user by email", bson.D{{Key: "email", Value: model.NormalizeEmail(email)}})
}

// FindByID retrieves a user by their ID.
func (r *MongoUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, "find user by id", bson.D{{Key: "_id", Value: id}})
}

func resetTokenFilter(tokenHash string, now time.Time) bson.D {
	return bson.D{
		{Key: "password_reset_token", Value: tokenHash},
		{Key: "password_reset_expires", Value: bson.D{{Key: "$gt", Value: now.UTC()}}},
	}
}

// FindByResetToken retrieves the user holding tokenHash whose reset window is
// still open at now.
func (r *MongoUserRepository) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.User, error) {
	user, err := r.findOne(ctx, "find user by reset token", resetTokenFilter(tokenHash, now))
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrResetTokenNotFound
	}
	return user, err
}

// CountByEmail returns how many documents hold the normalized email.
func (r *MongoUserRepository) CountByEmail(ctx context.Context, email string) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.D{{Key: "email", Value: model.NormalizeEmail(email)}})
	if err != nil {
		return 0, storeError(mongoBackend, "count users by email", err)
	}
	return n, nil
}

// Save inserts the user when it has no ID yet and replaces it otherwise.
func (r *MongoUserRepository) Save(ctx context.Context, user *model.User) error {
	user.Email = model.NormalizeEmail(user.Email)
	now := time.Now().UTC().Truncate(time.Millisecond)

	if user.ID == "" {
		doc := toMongoUser(user)
		doc.ID = uuid.NewString()
		doc.CreatedAt = now
		doc.UpdatedAt = now
		if _, err := r.coll.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ErrDuplicateEmail
			}
			return storeError(mongoBackend, "insert user", err)
		}
		user.ID = doc.ID
		user.CreatedAt = now
		user.UpdatedAt = now
		return nil
	}

	doc := toMongoUser(user)
	doc.UpdatedAt = now
	result, err := r.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: user.ID}}, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return storeError(mongoBackend, "replace user", err)
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	user.UpdatedAt = now
	return nil
}

func (r *MongoUserRepository) updateFields(ctx context.Context, operation, id string, set bson.D) error {
	set = append(set, bson.E{Key: "updated_at", Value: time.Now().UTC()})
	result, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return storeError(mongoBackend, operation, err)
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateProfile changes only the display name.
func (r *MongoUserRepository) UpdateProfile(ctx context.Context, id, name string) error {
	return r.updateFields(ctx, "update profile", id, bson.D{{Key: "profile.name", Value: name}})
}

// UpdatePassword replaces the stored hash.
func (r *MongoUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.updateFields(ctx, "update password", id, bson.D{{Key: "password_hash", Value: passwordHash}})
}

// SetResetToken opens a reset window, touching only the two reset fields.
func (r *MongoUserRepository) SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	return r.updateFields(ctx, "set reset token", id, bson.D{
		{Key: "password_reset_token", Value: tokenHash},
		{Key: "password_reset_expires", Value: expires.UTC()},
	})
}

// ConsumeResetToken atomically swaps in the new hash and unsets both reset
// fields, matching only while the token is held and unexpired.
func (r *MongoUserRepository) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*model.User, error) {
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "password_hash", Value: passwordHash},
			{Key: "updated_at", Value: time.Now().UTC()},
		}},
		{Key: "$unset", Value: bson.D{
			{Key: "password_reset_token", Value: ""},
			{Key: "password_reset_expires", Value: ""},
		}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc mongoUser
	err := r.coll.FindOneAndUpdate(ctx, resetTokenFilter(tokenHash, now), update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrResetTokenNotFound
		}
		return nil, storeError(mongoBackend, "consume reset token", err)
	}
	return doc.toModel(), nil
}

// Remove deletes the user document.
func (r *MongoUserRepository) Remove(ctx context.Context, id string) error {
	result, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return storeError(mongoBackend, "delete user", err)
	}
	if result.DeletedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

type mongoSession struct {
	ID         string    `bson:"_id"`
	UserID     string    `bson:"user_id"`
	ExpiresAt  time.Time `bson:"expires_at"`
	CreatedAt  time.Time `bson:"created_at"`
	LastSeenAt time.Time `bson:"last_seen_at"`
}

// MongoSessionRepository handles session persistence in a MongoDB collection.
type MongoSessionRepository struct {
	coll *mongo.Collection
}

// NewMongoSessionRepository creates a new MongoSessionRepository.
func NewMongoSessionRepository(db *mongo.Database) *MongoSessionRepository {
	return &MongoSessionRepository{coll: db.Collection(sessionsCollection)}
}

// Create stores a new session document.
func (r *MongoSessionRepository) Create(ctx context.Context, s *model.Session) error {
	_, err := r.coll.InsertOne(ctx, mongoSession{
		ID:         s.ID,
		UserID:     s.UserID,
		ExpiresAt:  s.ExpiresAt.UTC(),
		CreatedAt:  s.CreatedAt.UTC(),
		LastSeenAt: s.LastSeenAt.UTC(),
	})
	if err != nil {
		return storeError(mongoBackend, "insert session", err)
	}
	return nil
}

// Get retrieves a session by its stored id. Expiry is not checked here.
func (r *MongoSessionRepository) Get(ctx context.Context, id string) (*model.Session, error) {
	var doc mongoSession
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSessionNotFound
		}
		return nil, storeError(mongoBackend, "get session", err)
	}
	return &model.Session{
		ID:         doc.ID,
		UserID:     doc.UserID,
		ExpiresAt:  doc.ExpiresAt.UTC(),
		CreatedAt:  doc.CreatedAt.UTC(),
		LastSeenAt: doc.LastSeenAt.UTC(),
	}, nil
}

// UpdateExpiry moves the expiry and last-seen stamps of a session.
func (r *MongoSessionRepository) UpdateExpiry(ctx context.Context, id string, expiresAt, lastSeen time.Time) error {
	result, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "$set", Value: bson.D{
		{Key: "expires_at", Value: expiresAt.UTC()},
		{Key: "last_seen_at", Value: lastSeen.UTC()},
	}}})
	if err != nil {
		return storeError(mongoBackend, "touch session", err)
	}
	if result.MatchedCount == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (r *MongoSessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}}); err != nil {
		return storeError(mongoBackend, "delete session", err)
	}
	return nil
}

// DeleteByUser removes every session of a user.
func (r *MongoSessionRepository) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := r.coll.DeleteMany(ctx, bson.D{{Key: "user_id", Value: userID}}); err != nil {
		return storeError(mongoBackend, "delete user sessions", err)
	}
	return nil
}

// DeleteExpired removes sessions whose expiry is at or before now.
func (r *MongoSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.coll.DeleteMany(ctx, bson.D{{Key: "expires_at", Value: bson.D{{Key: "$lte", Value: now.UTC()}}}})
	if err != nil {
		return 0, storeError(mongoBackend, "delete expired sessions", err)
	}
	return result.DeletedCount, nil
}
