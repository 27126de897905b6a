package identity

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const mongoUsersCollection = "users"

// MongoRepository implements Store on a MongoDB collection.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository builds a MongoDB-backed user store on db.users.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(mongoUsersCollection)}
}

type mongoUser struct {
	ID                string    `bson:"_id"`
	Email             string    `bson:"email"`
	PasswordHash      string    `bson:"password"`
	Subscription      string    `bson:"subscription"`
	AvatarURL         string    `bson:"avatarURL"`
	Verified          bool      `bson:"verify"`
	VerificationToken *string   `bson:"verificationToken"`
	SessionToken      *string   `bson:"token"`
	CreatedAt         time.Time `bson:"createdAt"`
}

func toMongoUser(u User) mongoUser {
	return mongoUser{
		ID:                u.ID,
		Email:             u.Email,
		PasswordHash:      u.PasswordHash,
		Subscription:      string(u.Subscription),
		AvatarURL:         u.AvatarURL,
		Verified:          u.Verified,
		VerificationToken: nullable(u.VerificationToken),
		SessionToken:      nullable(u.SessionToken),
		CreatedAt:         u.CreatedAt.UTC(),
	}
}

func (d mongoUser) user() User {
	u := User{
		ID:           d.ID,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Subscription: Subscription(d.Subscription),
		AvatarURL:    d.AvatarURL,
		Verified:     d.Verified,
		CreatedAt:    d.CreatedAt.UTC(),
	}
	if d.VerificationToken != nil {
		u.VerificationToken = *d.VerificationToken
	}
	if d.SessionToken != nil {
		u.SessionToken = *d.SessionToken
	}
	return u
}

// EnsureIndexes creates the unique email index and the verification token lookup index.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "verificationToken", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	return err
}

// FindByEmail fetches a user by exact email.
func (r *MongoRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

// FindByID fetches a user by identifier.
func (r *MongoRepository) FindByID(ctx context.Context, id string) (User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// FindByVerificationToken fetches the user holding an outstanding verification token.
func (r *MongoRepository) FindByVerificationToken(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"verificationToken": token})
}

// Upsert replaces the document with the same id, inserting it when absent.
func (r *MongoRepository) Upsert(ctx context.Context, user User) error {
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": user.ID}, toMongoUser(user), options.Replace().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEmail
	}
	return err
}

// UpdateFields applies upd with $set and returns the updated document.
func (r *MongoRepository) UpdateFields(ctx context.Context, id string, upd Update) (User, error) {
	if upd.IsEmpty() {
		return r.FindByID(ctx, id)
	}
	return r.findOneAndSet(ctx, bson.M{"_id": id}, upd)
}

// ConsumeVerificationToken matches on the token itself, so a second caller
// finds no document once the first has cleared it.
func (r *MongoRepository) ConsumeVerificationToken(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrNotFound
	}
	return r.findOneAndSet(ctx, bson.M{"verificationToken": token}, consumeVerification())
}

func (r *MongoRepository) findOneAndSet(ctx context.Context, filter bson.M, upd Update) (User, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc mongoUser
	err := r.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": mongoSet(upd)}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return doc.user(), nil
}

func mongoSet(upd Update) bson.M {
	set := bson.M{}
	if upd.PasswordHash != nil {
		set["password"] = *upd.PasswordHash
	}
	if upd.Subscription != nil {
		set["subscription"] = string(*upd.Subscription)
	}
	if upd.AvatarURL != nil {
		set["avatarURL"] = *upd.AvatarURL
	}
	if upd.Verified != nil {
		set["verify"] = *upd.Verified
	}
	if upd.VerificationToken != nil {
		set["verificationToken"] = nullable(*upd.VerificationToken)
	}
	if upd.SessionToken != nil {
		set["token"] = nullable(*upd.SessionToken)
	}
	return set
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (User, error) {
	var doc mongoUser
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return doc.user(), nil
}
