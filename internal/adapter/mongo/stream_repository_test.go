package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/castline/castline/internal/domain"
)

func TestLiveMatch_BaseFilter(t *testing.T) {
	match := liveMatch(domain.ListFilter{}, "")

	assert.Equal(t, false, match["isDeleted"])
	assert.Equal(t, "live", match["status"])
	assert.NotContains(t, match, "name")
	assert.NotContains(t, match, "uid")
}

func TestLiveMatch_NarrowsByNameAndUID(t *testing.T) {
	match := liveMatch(domain.ListFilter{Name: "Morning show", UID: "input-1"}, "")

	assert.Equal(t, "Morning show", match["name"])
	assert.Equal(t, "input-1", match["uid"])
}

func TestLiveMatch_AnonymousSeesOnlyNonPrivate(t *testing.T) {
	match := liveMatch(domain.ListFilter{}, "")

	or, ok := match["$or"].(bson.A)
	require.True(t, ok)
	require.Len(t, or, 1, "no requester means no owner clause")
	assert.Equal(t, bson.M{"enumMode": bson.M{"$ne": "private"}}, or[0])
}

func TestLiveMatch_RequesterSeesOwnPrivateStreams(t *testing.T) {
	requester := primitive.NewObjectID()
	match := liveMatch(domain.ListFilter{}, requester.Hex())

	or, ok := match["$or"].(bson.A)
	require.True(t, ok)
	require.Len(t, or, 2)
	assert.Equal(t, bson.M{"userId": requester}, or[1])
}

func TestLiveMatch_GarbageRequesterIDTreatedAsAnonymous(t *testing.T) {
	match := liveMatch(domain.ListFilter{}, "not-an-object-id")

	or, ok := match["$or"].(bson.A)
	require.True(t, ok)
	assert.Len(t, or, 1)
}

func TestToDomainStream(t *testing.T) {
	id := primitive.NewObjectID()
	owner := primitive.NewObjectID()
	category := primitive.NewObjectID()
	liker := primitive.NewObjectID()
	started := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	ended := started.Add(2 * time.Hour)

	doc := streamDoc{
		ID:          id,
		UID:         "input-1",
		UserID:      owner,
		Name:        "Morning show",
		EnumMode:    "member",
		CategoryIDs: []primitive.ObjectID{category},
		Status:      "offline",
		StartedAt:   started,
		EndedAt:     &ended,
		LikedBy:     []primitive.ObjectID{liker},
		IsDeleted:   false,
		LastUpdated: ended,
	}

	s := toDomainStream(doc)

	assert.Equal(t, id.Hex(), s.ID)
	assert.Equal(t, "input-1", s.UID)
	assert.Equal(t, owner.Hex(), s.OwnerID)
	assert.Equal(t, domain.VisibilityMember, s.Visibility)
	assert.Equal(t, domain.StatusOffline, s.Status)
	assert.Equal(t, started, s.StartedAt)
	assert.Equal(t, ended, s.EndedAt)
	assert.Equal(t, []string{category.Hex()}, s.CategoryIDs)
	assert.Equal(t, []string{liker.Hex()}, s.LikedBy)
}

func TestToDomainStream_NoEndedAt(t *testing.T) {
	s := toDomainStream(streamDoc{ID: primitive.NewObjectID(), Status: "live"})
	assert.True(t, s.EndedAt.IsZero())
}
