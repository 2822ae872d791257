package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devhub/devhub-go/data"
	"github.com/devhub/devhub-go/faults"
)

var epoch = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func newTestInjector() (*faults.Injector, *faults.ManualClock) {
	clock := faults.NewManualClock(epoch)
	return faults.NewInjector(faults.WithSeed(11), faults.WithClock(clock)), clock
}

func quietProfiles() faults.Profiles {
	return faults.DefaultProfiles().Quiet()
}

func newTestDocSearch(t *testing.T, profile faults.DocSearchProfile) (*DocSearch, *faults.ManualClock) {
	t.Helper()
	docs, err := ParseDocuments(data.Docs)
	require.NoError(t, err)
	inj, clock := newTestInjector()
	ds, err := NewDocSearch(context.Background(), docs, nil, profile, inj)
	require.NoError(t, err)
	return ds, clock
}

func newTestDirectory(t *testing.T, profile faults.DirectoryProfile) (*Directory, *faults.ManualClock) {
	t.Helper()
	fixture, err := ParseDirectory(data.Teams)
	require.NoError(t, err)
	inj, clock := newTestInjector()
	dir, err := NewDirectory(context.Background(), fixture, profile, inj)
	require.NoError(t, err)
	t.Cleanup(func() { dir.Close() })
	return dir, clock
}

func newTestHealth(t *testing.T, profile faults.HealthProfile) (*Health, *faults.ManualClock) {
	t.Helper()
	statuses, err := ParseStatuses(data.Status)
	require.NoError(t, err)
	inj, clock := newTestInjector()
	return NewHealth(statuses, profile, inj), clock
}
