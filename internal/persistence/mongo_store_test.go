package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mhersta/conveyor/internal/testutil"
)

func TestMongoStoreConformance(t *testing.T) {
	uri := testutil.MongoURI(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	require.NoError(t, client.Ping(ctx, nil))

	store := NewMongoStore(client.Database("conveyor_test"))
	runExecutionStoreSuite(t, store)
}
