package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindOwnerKnownService(t *testing.T) {
	dir, _ := newTestDirectory(t, quietProfiles().Directory)

	res, err := dir.FindOwner(context.Background(), "billing")
	require.NoError(t, err)
	require.True(t, res.Found)

	assert.Equal(t, "Sarah Chen", res.Owner.Name)
	assert.Equal(t, "@sarah.chen", res.Owner.SlackHandle)
	assert.True(t, res.Owner.IsActive)
	assert.Equal(t, []string{"billing", "payments-api", "invoicing"}, res.Owner.Services)

	require.NotNil(t, res.Team)
	assert.Equal(t, "team-payments", res.Team.ID)
	assert.Equal(t, "Payments", res.Team.Name)
	assert.Equal(t, "#payments-eng", res.Team.SlackChannel)
}

func TestFindOwnerMatching(t *testing.T) {
	dir, _ := newTestDirectory(t, quietProfiles().Directory)

	tests := []struct {
		topic  string
		owner  string
		active bool
	}{
		{"PAYMENTS", "Sarah Chen", true},
		{"  staging ", "Marcus Johnson", true},
		{"vector", "David Kim", false},
		{"vector-search", "David Kim", false},
		{"feature-store", "Priya Patel", true},
		// payments-api and api-gateway both match; names break the tie.
		{"api", "Marcus Johnson", true},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			res, err := dir.FindOwner(context.Background(), tt.topic)
			require.NoError(t, err)
			require.True(t, res.Found)
			assert.Equal(t, tt.owner, res.Owner.Name)
			assert.Equal(t, tt.active, res.Owner.IsActive)
		})
	}
}

func TestFindOwnerNotFound(t *testing.T) {
	dir, clock := newTestDirectory(t, quietProfiles().Directory)

	res, err := dir.FindOwner(context.Background(), "quantum-computing")
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Nil(t, res.Owner)
	assert.Nil(t, res.Team)

	// Latency is charged even when nothing matches.
	_, sleeps := clock.Slept()
	assert.Equal(t, 1, sleeps)
}

func TestFindOwnerEmptyTopicMatchesEveryService(t *testing.T) {
	dir, _ := newTestDirectory(t, quietProfiles().Directory)

	for _, topic := range []string{"", "   "} {
		res, err := dir.FindOwner(context.Background(), topic)
		require.NoError(t, err)
		require.True(t, res.Found)
		// Active owners first, then by name.
		assert.Equal(t, "Elena Rodriguez", res.Owner.Name)
		assert.True(t, res.Owner.IsActive)
	}
}

func TestFindOwnerPrefersActiveThenName(t *testing.T) {
	fixture := DirectoryFixture{
		Teams: []Team{{ID: "t1", Name: "Search", SlackChannel: "#search"}},
		Owners: []Owner{
			{ID: "o1", Name: "Zed", TeamID: "t1", Services: []string{"search"}, IsActive: true},
			{ID: "o2", Name: "Amy", TeamID: "t1", Services: []string{"search"}, IsActive: false},
			{ID: "o3", Name: "Bob", TeamID: "t1", Services: []string{"search-api"}, IsActive: true},
			{ID: "o4", Name: "Cat", TeamID: "t1", Services: []string{"archive"}, IsActive: false},
			{ID: "o5", Name: "Ann", TeamID: "t1", Services: []string{"archive-v2"}, IsActive: false},
		},
	}
	inj, _ := newTestInjector()
	dir, err := NewDirectory(context.Background(), fixture, quietProfiles().Directory, inj)
	require.NoError(t, err)
	defer dir.Close()

	res, err := dir.FindOwner(context.Background(), "search")
	require.NoError(t, err)
	assert.Equal(t, "Bob", res.Owner.Name)

	res, err = dir.FindOwner(context.Background(), "archive")
	require.NoError(t, err)
	assert.Equal(t, "Ann", res.Owner.Name)
	assert.False(t, res.Owner.IsActive)
}

func TestFindOwnerStaleFlag(t *testing.T) {
	quiet := quietProfiles().Directory
	dir, _ := newTestDirectory(t, quiet)

	staleProfile := quiet
	staleProfile.StaleRate = 1
	stale := dir.WithProfile(staleProfile)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		res, err := stale.FindOwner(ctx, "billing")
		require.NoError(t, err)
		assert.False(t, res.Owner.IsActive, "stale read should invert the active flag")

		res, err = stale.FindOwner(ctx, "vector-search")
		require.NoError(t, err)
		assert.True(t, res.Owner.IsActive)
	}

	// Stored data is untouched.
	res, err := dir.FindOwner(ctx, "billing")
	require.NoError(t, err)
	assert.True(t, res.Owner.IsActive)
}

func TestFindOwnerLatencyRange(t *testing.T) {
	profile := quietProfiles().Directory
	dir, _ := newTestDirectory(t, profile)

	for i := 0; i < 20; i++ {
		res, err := dir.FindOwner(context.Background(), "ci-cd")
		require.NoError(t, err)
		assert.Equal(t, "Elena Rodriguez", res.Owner.Name)
		assert.GreaterOrEqual(t, res.ElapsedMS, profile.Latency.Min.Milliseconds())
		assert.LessOrEqual(t, res.ElapsedMS, profile.Latency.Max.Milliseconds())
	}
}

func TestDirectoryListings(t *testing.T) {
	dir, _ := newTestDirectory(t, quietProfiles().Directory)
	ctx := context.Background()

	assert.Equal(t, 4, dir.TeamCount())
	assert.Equal(t, 5, dir.OwnerCount())

	teams, err := dir.Teams(ctx)
	require.NoError(t, err)
	require.Len(t, teams, 4)
	assert.Equal(t, "Developer Experience", teams[0].Name)
	assert.Equal(t, "Platform", teams[3].Name)

	owners, err := dir.TeamOwners(ctx, "team-ml")
	require.NoError(t, err)
	require.Len(t, owners, 2)
	assert.Equal(t, "David Kim", owners[0].Name)
	assert.False(t, owners[0].IsActive)
	assert.Equal(t, []string{"vector-search", "embeddings"}, owners[0].Services)
	assert.Equal(t, "Priya Patel", owners[1].Name)

	none, err := dir.TeamOwners(ctx, "team-unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}
