package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	roomsCollection    = "rooms"
	messagesCollection = "messages"
	connectTimeout     = 10 * time.Second
)

// MongoStore keeps rooms and chat history in MongoDB.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	s := &MongoStore{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		log.Warn().Err(err).Str("module", "store.mongo").Msg("index setup failed")
	}
	log.Info().Str("module", "store.mongo").Str("database", database).Msg("connected")
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(messagesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	if err != nil {
		return err
	}
	_, err = s.db.Collection(roomsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "topics", Value: 1}}},
		{Keys: bson.D{{Key: "isPublic", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	return err
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	var room domain.Room
	err := s.db.Collection(roomsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&room)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", id, err)
	}
	return &room, nil
}

func roomFilter(q domain.RoomQuery) bson.M {
	filter := bson.M{}
	if q.PublicOnly {
		filter["isPublic"] = true
	}
	if topic := strings.ToLower(strings.TrimSpace(q.Topic)); topic != "" {
		filter["topics"] = topic
	}
	if q.Search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(q.Search), Options: "i"}
		filter["$or"] = bson.A{bson.M{"name": re}, bson.M{"description": re}}
	}
	return filter
}

func (s *MongoStore) ListRooms(ctx context.Context, q domain.RoomQuery) ([]domain.Room, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(clampLimit(q.Limit)))
	cursor, err := s.db.Collection(roomsCollection).Find(ctx, roomFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer cursor.Close(ctx)

	rooms := []domain.Room{}
	if err := cursor.All(ctx, &rooms); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

func (s *MongoStore) CreateRoom(ctx context.Context, room *domain.Room) error {
	if err := prepareRoom(room, time.Now().UTC()); err != nil {
		return err
	}
	if room.ID == "" {
		room.ID = domain.RoomID(primitive.NewObjectID().Hex())
	}
	if _, err := s.db.Collection(roomsCollection).InsertOne(ctx, room); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("room %s exists: %w", room.ID, domain.ErrInvalidRequest)
		}
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateRoom(ctx context.Context, room *domain.Room) error {
	old, err := s.GetRoom(ctx, room.ID)
	if err != nil {
		return err
	}
	room.CreatedAt = old.CreatedAt
	if err := prepareRoom(room, time.Now().UTC()); err != nil {
		return err
	}
	res, err := s.db.Collection(roomsCollection).ReplaceOne(ctx, bson.M{"_id": room.ID}, room)
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (s *MongoStore) DeleteRoom(ctx context.Context, id domain.RoomID) error {
	res, err := s.db.Collection(roomsCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrRoomNotFound
	}
	if _, err := s.db.Collection(messagesCollection).DeleteMany(ctx, bson.M{"roomId": id}); err != nil {
		log.Warn().Err(err).Str("module", "store.mongo").Str("room", string(id)).Msg("history cleanup failed")
	}
	return nil
}

// ListMessages returns the latest messages of a room, oldest first.
func (s *MongoStore) ListMessages(ctx context.Context, id domain.RoomID, limit int) ([]domain.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(clampLimit(limit)))
	cursor, err := s.db.Collection(messagesCollection).Find(ctx, bson.M{"roomId": id}, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer cursor.Close(ctx)

	msgs := []domain.Message{}
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *MongoStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if _, err := s.db.Collection(messagesCollection).InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}
