package auth

import (
	"context"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains connection settings for the MongoDB account repository.
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. chatserver
	Collection string // e.g. accounts
}

// MongoUserRepo implements UserRepository on a MongoDB backend.
type MongoUserRepo struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctxTimeout time.Duration
}

type mongoAccountDoc struct {
	Username       string    `bson:"username"`
	PasswordHash   string    `bson:"password_hash"`
	Salt           []byte    `bson:"salt"`
	FailedAttempts int       `bson:"failed_attempts"`
	LockoutUntil   time.Time `bson:"lockout_until,omitempty"`
	JoinedRooms    []string  `bson:"joined_rooms,omitempty"`
	CreatedAt      time.Time `bson:"created_at"`
	LastLogin      time.Time `bson:"last_login"`
}

// NewMongoUserRepo establishes the connection and returns the repository.
func NewMongoUserRepo(cfg MongoConfig) (*MongoUserRepo, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "chatserver"
	}
	if cfg.Collection == "" {
		cfg.Collection = "accounts"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	repo := &MongoUserRepo{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		ctxTimeout: 5 * time.Second,
	}

	if err := repo.ensureIndexes(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (m *MongoUserRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	usernameIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("username_unique"),
	}
	_, err := m.collection.Indexes().CreateOne(ctx, usernameIdx)
	return err
}

// LoadAll implements UserRepository.
func (m *MongoUserRepo) LoadAll() ([]*Account, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()

	cursor, err := m.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var accounts []*Account
	for cursor.Next(ctx) {
		var doc mongoAccountDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		accounts = append(accounts, docToAccount(&doc))
	}
	return accounts, cursor.Err()
}

// Save upserts the account document by username.
func (m *MongoUserRepo) Save(account *Account) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()

	doc := accountToDoc(account)
	_, err := m.collection.ReplaceOne(ctx,
		bson.M{"username": doc.Username},
		doc,
		options.Replace().SetUpsert(true),
	)
	return err
}

// Close terminates the connection.
func (m *MongoUserRepo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func accountToDoc(acc *Account) *mongoAccountDoc {
	rooms := acc.Rooms()
	sort.Strings(rooms)
	return &mongoAccountDoc{
		Username:       acc.Username,
		PasswordHash:   acc.PasswordHash,
		Salt:           append([]byte(nil), acc.Salt...),
		FailedAttempts: acc.FailedAttempts,
		LockoutUntil:   acc.LockoutUntil,
		JoinedRooms:    rooms,
		CreatedAt:      acc.CreatedAt,
		LastLogin:      acc.LastLogin,
	}
}

func docToAccount(doc *mongoAccountDoc) *Account {
	acc := &Account{
		Username:       doc.Username,
		PasswordHash:   doc.PasswordHash,
		Salt:           doc.Salt,
		FailedAttempts: doc.FailedAttempts,
		LockoutUntil:   doc.LockoutUntil,
		JoinedRooms:    make(map[string]struct{}, len(doc.JoinedRooms)),
		CreatedAt:      doc.CreatedAt,
		LastLogin:      doc.LastLogin,
	}
	for _, room := range doc.JoinedRooms {
		acc.JoinedRooms[room] = struct{}{}
	}
	return acc
}
