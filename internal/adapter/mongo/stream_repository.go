package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/castline/castline/internal/domain"
)

// StreamRepo implements domain.StreamRepository. Calls made with a
// session-bound context join that session's transaction.
type StreamRepo struct {
	streams *mongo.Collection
	events  *mongo.Collection
}

func NewStreamRepo(db *mongo.Database) *StreamRepo {
	return &StreamRepo{
		streams: db.Collection(streamsCollection),
		events:  db.Collection(streamEventsCollection),
	}
}

type streamDoc struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty"`
	UID         string               `bson:"uid"`
	UserID      primitive.ObjectID   `bson:"userId"`
	Name        string               `bson:"name"`
	EnumMode    string               `bson:"enumMode"`
	CategoryIDs []primitive.ObjectID `bson:"categoryIds"`
	Status      string               `bson:"status"`
	StartedAt   time.Time            `bson:"startedAt"`
	EndedAt     *time.Time           `bson:"endedAt,omitempty"`
	LikedBy     []primitive.ObjectID `bson:"likedBy"`
	IsDeleted   bool                 `bson:"isDeleted"`
	DateCreated time.Time            `bson:"dateCreated"`
	LastUpdated time.Time            `bson:"lastUpdated"`
}

func toDomainStream(doc streamDoc) *domain.Stream {
	s := &domain.Stream{
		ID:          doc.ID.Hex(),
		UID:         doc.UID,
		OwnerID:     doc.UserID.Hex(),
		Name:        doc.Name,
		Visibility:  domain.Visibility(doc.EnumMode),
		Status:      domain.Status(doc.Status),
		StartedAt:   doc.StartedAt,
		IsDeleted:   doc.IsDeleted,
		LastUpdated: doc.LastUpdated,
	}
	if doc.EndedAt != nil {
		s.EndedAt = *doc.EndedAt
	}
	for _, id := range doc.CategoryIDs {
		s.CategoryIDs = append(s.CategoryIDs, id.Hex())
	}
	for _, id := range doc.LikedBy {
		s.LikedBy = append(s.LikedBy, id.Hex())
	}
	return s
}

func (r *StreamRepo) FindByUID(ctx context.Context, uid string) (*domain.Stream, error) {
	// One lookup without the deleted filter so callers can tell a deleted
	// stream apart from a missing one; both are permanent failures.
	var doc streamDoc
	err := r.streams.FindOne(ctx, bson.M{"uid": uid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrStreamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find stream by uid: %w", err)
	}
	if doc.IsDeleted {
		return nil, domain.ErrStreamDeleted
	}
	return toDomainStream(doc), nil
}

func (r *StreamRepo) ApplyTransition(ctx context.Context, streamID string, d domain.Decision, now time.Time) error {
	id, err := primitive.ObjectIDFromHex(streamID)
	if err != nil {
		return fmt.Errorf("invalid stream id %q: %w", streamID, err)
	}

	set := bson.M{
		"status":      string(d.Next),
		"lastUpdated": now,
	}
	update := bson.M{"$set": set}
	if d.SetStartedAt {
		set["startedAt"] = now
		// A reconnect re-arms the session: the previous endedAt no longer
		// applies.
		update["$unset"] = bson.M{"endedAt": ""}
	}
	if d.SetEndedAt {
		set["endedAt"] = now
	}

	res, err := r.streams.UpdateOne(ctx, bson.M{"_id": id, "isDeleted": false}, update)
	if err != nil {
		return fmt.Errorf("failed to apply transition: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrStreamNotFound
	}
	return nil
}

func (r *StreamRepo) AppendEvent(ctx context.Context, streamID string, ev domain.EventType, at time.Time) error {
	id, err := primitive.ObjectIDFromHex(streamID)
	if err != nil {
		return fmt.Errorf("invalid stream id %q: %w", streamID, err)
	}

	_, err = r.events.InsertOne(ctx, bson.M{
		"streamId": id,
		"event":    string(ev),
		"at":       at,
	})
	if err != nil {
		return fmt.Errorf("failed to append stream event: %w", err)
	}
	return nil
}

func (r *StreamRepo) Create(ctx context.Context, s *domain.Stream) error {
	owner, err := primitive.ObjectIDFromHex(s.OwnerID)
	if err != nil {
		return fmt.Errorf("invalid owner id %q: %w", s.OwnerID, err)
	}

	doc := streamDoc{
		UID:         s.UID,
		UserID:      owner,
		Name:        s.Name,
		EnumMode:    string(s.Visibility),
		Status:      string(s.Status),
		StartedAt:   s.StartedAt,
		CategoryIDs: []primitive.ObjectID{},
		LikedBy:     []primitive.ObjectID{},
		DateCreated: s.LastUpdated,
		LastUpdated: s.LastUpdated,
	}
	for _, c := range s.CategoryIDs {
		cid, err := primitive.ObjectIDFromHex(c)
		if err != nil {
			return fmt.Errorf("invalid category id %q: %w", c, err)
		}
		doc.CategoryIDs = append(doc.CategoryIDs, cid)
	}

	res, err := r.streams.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	s.ID = res.InsertedID.(primitive.ObjectID).Hex()
	return nil
}

func (r *StreamRepo) SoftDelete(ctx context.Context, streamID string, now time.Time) error {
	id, err := primitive.ObjectIDFromHex(streamID)
	if err != nil {
		return fmt.Errorf("invalid stream id %q: %w", streamID, err)
	}

	res, err := r.streams.UpdateOne(ctx,
		bson.M{"_id": id, "isDeleted": false},
		bson.M{"$set": bson.M{"isDeleted": true, "lastUpdated": now}},
	)
	if err != nil {
		return fmt.Errorf("failed to soft-delete stream: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrStreamNotFound
	}
	return nil
}

func (r *StreamRepo) ToggleLike(ctx context.Context, streamID, userID string, like bool) error {
	id, err := primitive.ObjectIDFromHex(streamID)
	if err != nil {
		return fmt.Errorf("invalid stream id %q: %w", streamID, err)
	}
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", userID, err)
	}

	// $addToSet / $pull make the operation idempotent: liking twice equals
	// liking once.
	update := bson.M{
		"$addToSet": bson.M{"likedBy": uid},
		"$set":      bson.M{"lastUpdated": time.Now()},
	}
	if !like {
		update = bson.M{
			"$pull": bson.M{"likedBy": uid},
			"$set":  bson.M{"lastUpdated": time.Now()},
		}
	}

	res, err := r.streams.UpdateOne(ctx, bson.M{"_id": id, "isDeleted": false}, update)
	if err != nil {
		return fmt.Errorf("failed to toggle like: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrStreamNotFound
	}
	return nil
}

func (r *StreamRepo) EditCategories(ctx context.Context, streamID string, added, removed []string, now time.Time) error {
	id, err := primitive.ObjectIDFromHex(streamID)
	if err != nil {
		return fmt.Errorf("invalid stream id %q: %w", streamID, err)
	}

	toOIDs := func(hexes []string) ([]primitive.ObjectID, error) {
		out := make([]primitive.ObjectID, 0, len(hexes))
		for _, h := range hexes {
			oid, err := primitive.ObjectIDFromHex(h)
			if err != nil {
				return nil, fmt.Errorf("invalid category id %q: %w", h, err)
			}
			out = append(out, oid)
		}
		return out, nil
	}

	if len(added) > 0 {
		ids, err := toOIDs(added)
		if err != nil {
			return err
		}
		_, err = r.streams.UpdateOne(ctx,
			bson.M{"_id": id, "isDeleted": false},
			bson.M{
				"$addToSet": bson.M{"categoryIds": bson.M{"$each": ids}},
				"$set":      bson.M{"lastUpdated": now},
			},
		)
		if err != nil {
			return fmt.Errorf("failed to add categories: %w", err)
		}
	}

	if len(removed) > 0 {
		ids, err := toOIDs(removed)
		if err != nil {
			return err
		}
		_, err = r.streams.UpdateOne(ctx,
			bson.M{"_id": id, "isDeleted": false},
			bson.M{
				"$pull": bson.M{"categoryIds": bson.M{"$in": ids}},
				"$set":  bson.M{"lastUpdated": now},
			},
		)
		if err != nil {
			return fmt.Errorf("failed to remove categories: %w", err)
		}
	}

	return nil
}

// liveMatch builds the shared filter for the live listing. The visibility
// clause applies to both the count and the page query so private streams of
// other users never leak into either.
func liveMatch(filter domain.ListFilter, requesterID string) bson.M {
	match := bson.M{
		"isDeleted": false,
		"status":    string(domain.StatusLive),
	}
	if filter.Name != "" {
		match["name"] = filter.Name
	}
	if filter.UID != "" {
		match["uid"] = filter.UID
	}

	visibility := bson.A{
		bson.M{"enumMode": bson.M{"$ne": string(domain.VisibilityPrivate)}},
	}
	if requester, err := primitive.ObjectIDFromHex(requesterID); err == nil {
		visibility = append(visibility, bson.M{"userId": requester})
	}
	match["$or"] = visibility

	return match
}

type listDoc struct {
	streamDoc  `bson:",inline"`
	Owner      ownerDoc      `bson:"owner"`
	Categories []categoryDoc `bson:"categories"`
}

type ownerDoc struct {
	FullName string `bson:"fullName"`
	NickName string `bson:"nickName"`
	Avatar   string `bson:"avatar"`
}

type categoryDoc struct {
	Name     string `bson:"name"`
	ImageURL string `bson:"imageUrl"`
}

func (r *StreamRepo) ListLive(ctx context.Context, filter domain.ListFilter, page domain.Page, requesterID string) (*domain.StreamPage, error) {
	page = page.Normalize()
	match := liveMatch(filter, requesterID)

	total, err := r.streams.CountDocuments(ctx, match)
	if err != nil {
		return nil, fmt.Errorf("failed to count live streams: %w", err)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: "dateCreated", Value: 1}, {Key: "_id", Value: 1}}}},
		{{Key: "$skip", Value: page.Skip()}},
		{{Key: "$limit", Value: page.Size}},
		{{Key: "$lookup", Value: bson.M{
			"from":         usersCollection,
			"localField":   "userId",
			"foreignField": "_id",
			"as":           "owner",
		}}},
		{{Key: "$unwind", Value: "$owner"}},
		{{Key: "$lookup", Value: bson.M{
			"from":         categoriesCollection,
			"localField":   "categoryIds",
			"foreignField": "_id",
			"as":           "categories",
			"pipeline": bson.A{
				bson.M{"$project": bson.M{"name": 1, "imageUrl": 1, "_id": 0}},
			},
		}}},
	}

	cursor, err := r.streams.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to list live streams: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []listDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode live streams: %w", err)
	}

	result := &domain.StreamPage{
		Streams:    make([]domain.StreamWithSummaries, 0, len(docs)),
		Total:      total,
		Page:       page.Number,
		TotalPages: domain.TotalPages(total, page.Size),
	}
	for _, doc := range docs {
		item := domain.StreamWithSummaries{
			Stream: *toDomainStream(doc.streamDoc),
			Owner: domain.OwnerSummary{
				FullName: doc.Owner.FullName,
				NickName: doc.Owner.NickName,
				Avatar:   doc.Owner.Avatar,
			},
		}
		for _, c := range doc.Categories {
			item.Categories = append(item.Categories, domain.CategorySummary{
				Name:     c.Name,
				ImageURL: c.ImageURL,
			})
		}
		result.Streams = append(result.Streams, item)
	}

	return result, nil
}

func (r *StreamRepo) Stats(ctx context.Context, now time.Time) (*domain.StreamStats, error) {
	stats := &domain.StreamStats{}

	count := func(filter bson.M) (int64, error) {
		filter["isDeleted"] = false
		return r.streams.CountDocuments(ctx, filter)
	}

	var err error
	if stats.Total, err = count(bson.M{}); err != nil {
		return nil, fmt.Errorf("failed to count streams: %w", err)
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if stats.Today, err = count(bson.M{"dateCreated": bson.M{"$gte": dayStart, "$lt": dayStart.AddDate(0, 0, 1)}}); err != nil {
		return nil, fmt.Errorf("failed to count today's streams: %w", err)
	}

	weekStart := dayStart.AddDate(0, 0, -int(now.Weekday()))
	if stats.ThisWeek, err = count(bson.M{"dateCreated": bson.M{"$gte": weekStart}}); err != nil {
		return nil, fmt.Errorf("failed to count this week's streams: %w", err)
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	if stats.ThisMonth, err = count(bson.M{"dateCreated": bson.M{"$gte": monthStart, "$lt": monthStart.AddDate(0, 1, 0)}}); err != nil {
		return nil, fmt.Errorf("failed to count this month's streams: %w", err)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"isDeleted": false}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{
				"year":  bson.M{"$year": "$dateCreated"},
				"month": bson.M{"$month": "$dateCreated"},
			},
			"streamCount": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id.year", Value: 1}, {Key: "_id.month", Value: 1}}}},
	}

	cursor, err := r.streams.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate monthly streams: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID struct {
			Year  int `bson:"year"`
			Month int `bson:"month"`
		} `bson:"_id"`
		StreamCount int64 `bson:"streamCount"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode monthly streams: %w", err)
	}
	for _, row := range rows {
		stats.Monthly = append(stats.Monthly, domain.MonthlyCount{
			Year:  row.ID.Year,
			Month: row.ID.Month,
			Count: row.StreamCount,
		})
	}

	return stats, nil
}
