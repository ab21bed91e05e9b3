package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/JakeFAU/mostaql-scraper/internal/scraper"
)

func TestRecordStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("upserts records with links", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}, bson.E{Key: "nModified", Value: 2}),
		)
		store, err := New(context.Background(), mt.Coll)
		require.NoError(mt, err)
		store.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

		err = store.SaveRecords(context.Background(), "run-1", []scraper.ProjectRecord{
			{ProjectName: "تطوير موقع", Link: "https://mostaql.com/project/1"},
			{ProjectName: "بدون رابط"},
			{ProjectName: "تصميم", Link: "https://mostaql.com/project/2"},
		})
		require.NoError(mt, err)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "createIndexes", started.CommandName)
		started = mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "update", started.CommandName)
		updates, err := started.Command.LookupErr("updates")
		require.NoError(mt, err)
		docs, err := updates.Array().Values()
		require.NoError(mt, err)
		assert.Len(mt, docs, 2)
	})

	mt.Run("surfaces write errors", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}),
		)
		store, err := New(context.Background(), mt.Coll)
		require.NoError(mt, err)

		err = store.SaveRecords(context.Background(), "run-1", []scraper.ProjectRecord{{Link: "https://mostaql.com/project/1"}})
		require.ErrorContains(mt, err, "upsert 1 projects")
	})

	mt.Run("skips empty input", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		store, err := New(context.Background(), mt.Coll)
		require.NoError(mt, err)
		mt.ClearEvents()

		require.NoError(mt, store.SaveRecords(context.Background(), "run-1", nil))
		require.NoError(mt, store.SaveRecords(context.Background(), "run-1", []scraper.ProjectRecord{{ProjectName: "x"}}))
		assert.Nil(mt, mt.GetStartedEvent())
	})

	mt.Run("index failure", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 13, Name: "Unauthorized", Message: "not authorized"}))
		_, err := New(context.Background(), mt.Coll)
		require.ErrorContains(mt, err, "create mongo indexes")
	})

	mt.Run("counts documents", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateCursorResponse(0, mt.DB.Name()+"."+mt.Coll.Name(), mtest.FirstBatch, bson.D{{Key: "n", Value: int32(3)}}),
		)
		store, err := New(context.Background(), mt.Coll)
		require.NoError(mt, err)
		n, err := store.Count(context.Background())
		require.NoError(mt, err)
		assert.Equal(mt, int64(3), n)
	})
}

func TestConstructorsValidate(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), Config{URI: "mongodb://localhost:27017"})
	require.Error(t, err)
	_, err = New(context.Background(), nil)
	require.Error(t, err)

	var nilStore *RecordStore
	require.Error(t, nilStore.SaveRecords(context.Background(), "run", nil))
	require.NoError(t, nilStore.Close(context.Background()))
}
