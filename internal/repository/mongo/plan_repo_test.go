package mongo

import (
	"alcyxob/fitmate/internal/domain"
	"alcyxob/fitmate/internal/repository"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func planDoc(t testing.TB, p *domain.Plan) bson.D {
	t.Helper()
	raw, err := bson.Marshal(p)
	require.NoError(t, err)
	var doc bson.D
	require.NoError(t, bson.Unmarshal(raw, &doc))
	return doc
}

func noMatch() bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil})
}

func updated(t testing.TB, p *domain.Plan) bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "value", Value: planDoc(t, p)})
}

func found(t testing.TB, p *domain.Plan) bson.D {
	ns := "test." + planCollectionName
	if p == nil {
		return mtest.CreateCursorResponse(0, ns, mtest.FirstBatch)
	}
	return mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, planDoc(t, p))
}

func TestAddParticipantClassifiesMisses(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	owner, user := primitive.NewObjectID(), primitive.NewObjectID()
	plan := func(participants ...primitive.ObjectID) *domain.Plan {
		if participants == nil {
			participants = []primitive.ObjectID{}
		}
		return &domain.Plan{
			ID: primitive.NewObjectID(), UserID: owner, Exercise: "run", Location: "park",
			Date: time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), Participants: participants,
		}
	}

	mt.Run("joins", func(mt *mtest.T) {
		p := plan(user)
		mt.AddMockResponses(updated(mt, p))

		got, err := NewMongoPlanRepository(mt.DB).AddParticipant(context.Background(), p.ID, user)
		require.NoError(mt, err)
		assert.Equal(mt, []primitive.ObjectID{user}, got.Participants)

		started := mt.GetStartedEvent()
		assert.Equal(mt, "findAndModify", started.CommandName)
		query := started.Command.Lookup("query").Document()
		assert.Equal(mt, user, query.Lookup("participants", "$ne").ObjectID())
		assert.Equal(mt, user, query.Lookup("userId", "$ne").ObjectID())
	})

	mt.Run("owner", func(mt *mtest.T) {
		p := plan()
		mt.AddMockResponses(noMatch(), found(mt, p))

		_, err := NewMongoPlanRepository(mt.DB).AddParticipant(context.Background(), p.ID, owner)
		assert.ErrorIs(mt, err, repository.ErrOwnerMember)
	})

	mt.Run("already member", func(mt *mtest.T) {
		p := plan(user)
		mt.AddMockResponses(noMatch(), found(mt, p))

		_, err := NewMongoPlanRepository(mt.DB).AddParticipant(context.Background(), p.ID, user)
		assert.ErrorIs(mt, err, repository.ErrAlreadyMember)
	})

	mt.Run("missing plan", func(mt *mtest.T) {
		mt.AddMockResponses(noMatch(), found(mt, nil))

		_, err := NewMongoPlanRepository(mt.DB).AddParticipant(context.Background(), primitive.NewObjectID(), user)
		assert.ErrorIs(mt, err, repository.ErrNotFound)
	})

	mt.Run("left before the re-read", func(mt *mtest.T) {
		// The first update misses because user is still listed, the re-read
		// sees them gone, and the retry goes through.
		p := plan()
		mt.AddMockResponses(noMatch(), found(mt, p), updated(mt, plan(user)))

		got, err := NewMongoPlanRepository(mt.DB).AddParticipant(context.Background(), p.ID, user)
		require.NoError(mt, err)
		assert.Equal(mt, []primitive.ObjectID{user}, got.Participants)
	})

	mt.Run("keeps changing", func(mt *mtest.T) {
		p := plan()
		var responses []bson.D
		for i := 0; i < addParticipantAttempts; i++ {
			responses = append(responses, noMatch(), found(mt, p))
		}
		mt.AddMockResponses(responses...)

		_, err := NewMongoPlanRepository(mt.DB).AddParticipant(context.Background(), p.ID, user)
		assert.ErrorIs(mt, err, repository.ErrConflict)
		assert.NotErrorIs(mt, err, repository.ErrAlreadyMember)
	})
}

func TestFindVisibleMatchesParticipants(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("filter", func(mt *mtest.T) {
		viewer := primitive.NewObjectID()
		p := &domain.Plan{
			ID: primitive.NewObjectID(), UserID: primitive.NewObjectID(), Exercise: "swim", Location: "pool",
			IsPrivate: true, Participants: []primitive.ObjectID{viewer},
		}
		mt.AddMockResponses(found(mt, p))

		plans, err := NewMongoPlanRepository(mt.DB).FindVisible(context.Background(), viewer)
		require.NoError(mt, err)
		require.Len(mt, plans, 1)
		assert.Equal(mt, p.ID, plans[0].ID)

		filter := mt.GetStartedEvent().Command.Lookup("filter").Document()
		clauses, err := filter.Lookup("$or").Array().Values()
		require.NoError(mt, err)
		require.Len(mt, clauses, 3)
		joined := clauses[2].Document().Lookup("participants")
		assert.Equal(mt, viewer, joined.ObjectID())
	})
}
