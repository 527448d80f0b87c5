package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seamline/ingest/errors"
	"github.com/seamline/ingest/etl"
	testdb "github.com/seamline/ingest/internal/testing"
)

var _ etl.ProfileSource = (*Profiles)(nil)

func TestProfilesSaveAndGet(t *testing.T) {
	store := NewProfiles(testdb.CreateMigratedTestDB(t))
	ctx := context.Background()

	doc := map[string]interface{}{
		"profileKeys": map[string]interface{}{
			"extract":   map[string]interface{}{"fields": []interface{}{}},
			"transform": map[string]interface{}{"fields": []interface{}{}},
			"load":      map[string]interface{}{"fields": []interface{}{}},
		},
	}

	id, err := store.Save(ctx, "acme-jobs", doc)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	byID, err := store.GetProfile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, byID["id"])
	assert.Equal(t, "acme-jobs", byID["key"])

	byKey, err := store.GetProfileByKey(ctx, "acme-jobs")
	require.NoError(t, err)
	assert.Equal(t, id, byKey["id"])

	// saving again under the same id replaces the document
	doc["note"] = "v2"
	again, err := store.Save(ctx, "acme-jobs", doc)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	byID, err = store.GetProfile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "v2", byID["note"])

	keys, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"acme-jobs": id}, keys)
}

func TestProfilesNotFound(t *testing.T) {
	store := NewProfiles(testdb.CreateMigratedTestDB(t))

	_, err := store.GetProfileByKey(context.Background(), "nowhere")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestProfilesFeedEtlLoader(t *testing.T) {
	store := NewProfiles(testdb.CreateMigratedTestDB(t))
	ctx := context.Background()

	doc := map[string]interface{}{
		"profileKeys": map[string]interface{}{
			"extract": map[string]interface{}{"fields": []interface{}{
				map[string]interface{}{"name": "company", "location": "/name"},
			}},
			"transform": map[string]interface{}{"fields": []interface{}{}},
			"load": map[string]interface{}{
				"fields": []interface{}{map[string]interface{}{"name": "company"}},
				"type":   "struct",
			},
		},
	}
	_, err := store.Save(ctx, "acme-jobs", doc)
	require.NoError(t, err)

	profile, err := etl.NewProfiles(store, nil, nil).ByKey(ctx, "acme-jobs")
	require.NoError(t, err)
	require.True(t, profile.Ready())

	result, err := profile.Run(etl.NewDocument(map[string]interface{}{"name": "Acme"}), nil)
	require.NoError(t, err)
	assert.Equal(t, "Acme", result.Field("company"))
}
