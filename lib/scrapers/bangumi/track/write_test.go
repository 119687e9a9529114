package track

import (
	"context"
	"testing"

	"bgmtrack/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func TestSetSubjectCollection(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/track")
	defer cleanup()

	ctx, span := tracer.Start(context.Background(), "TestSetSubjectCollection")
	defer span.End()
	fake, _, client := setup(t, ctx)

	sc, err := client.SubjectCollection(ctx, "253")
	require.NoError(t, err)

	sc.CStatus = StatusCollect
	sc.Rating = 10
	sc.Tags = []string{"SciFi", "Space", "Classic"}
	sc.Comment = "rewatched"
	ok, err := sc.Sync(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, 2, fake.interest)
	require.Equal(t, 10, fake.rating)
	require.Equal(t, "SciFi Space Classic", fake.tags)
	require.Equal(t, "rewatched", fake.comment)

	call := fake.calls("/interest/update")[0]
	require.Equal(t, "POST", call.method)
	require.Equal(t, "/subject/253/interest/update", call.path)
	require.Equal(t, "8f0a3bd1", call.query.Get("gh"))
	require.Equal(t, "subject", call.form.Get("referer"))
	require.Equal(t, "保存", call.form.Get("update"))
	require.Equal(t, "2", call.form.Get("interest"))

	// an unrated record submits an empty rating field
	sc.Rating = 0
	_, err = sc.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, "", fake.calls("/interest/update")[1].form.Get("rating"))
	require.Equal(t, 0, fake.rating)
}

func TestSetSubjectCollectionValidation(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/track")
	defer cleanup()

	ctx, span := tracer.Start(context.Background(), "TestSetSubjectCollectionValidation")
	defer span.End()
	fake, _, client := setup(t, ctx)

	fake.collected = false
	sc, err := client.SubjectCollection(ctx, "253")
	require.NoError(t, err)

	_, err = sc.Sync(ctx)
	require.ErrorContains(t, err, "RemoveCollection")

	sc.CStatus = CollectionStatus(9)
	_, err = sc.Sync(ctx)
	require.ErrorContains(t, err, "corrupted")

	require.Empty(t, fake.calls("/interest/update"))
}

func TestSetEpisodeCollection(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/track")
	defer cleanup()

	ctx, span := tracer.Start(context.Background(), "TestSetEpisodeCollection")
	defer span.End()
	fake, _, client := setup(t, ctx)

	sc, err := client.SubjectCollection(ctx, "253")
	require.NoError(t, err)

	ec := sc.EpColls[2]
	ec.CStatus = EpWatched
	ok, err := ec.Sync(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, "Watched", fake.epStatus["521"])
	call := fake.calls("/status/watched")[0]
	require.Equal(t, "GET", call.method)
	require.Equal(t, "/subject/ep/521/status/watched", call.path)
	require.Equal(t, "8f0a3bd1", call.query.Get("gh"))
	require.Equal(t, "", call.query.Get("ajax"))

	// the response page carries the recomputed watched counter
	require.Equal(t, 2, sc.NWatchedEps)
}

func TestSetEpisodeCollectionValidation(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/track")
	defer cleanup()

	ctx, span := tracer.Start(context.Background(), "TestSetEpisodeCollectionValidation")
	defer span.End()
	fake, _, client := setup(t, ctx)

	ec, err := client.EpisodeCollection(ctx, "521")
	require.NoError(t, err)

	ec.CStatus = EpUnset
	_, err = ec.Sync(ctx)
	require.ErrorContains(t, err, "RemoveCollection")

	ec.CStatus = EpStatus("bogus")
	_, err = ec.Sync(ctx)
	require.ErrorContains(t, err, "corrupted")

	// a watched_up_to submit needs the parent collection for its prefix
	ec.CStatus = EpWatchedUpTo
	_, err = ec.Sync(ctx)
	require.ErrorContains(t, err, "containing subject collection")

	require.Empty(t, fake.calls("/subject/ep/"))
}

func TestWatchedUpTo(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/track")
	defer cleanup()

	ctx, span := tracer.Start(context.Background(), "TestWatchedUpTo")
	defer span.End()
	fake, _, client := setup(t, ctx)

	sc, err := client.SubjectCollection(ctx, "253")
	require.NoError(t, err)

	ok, err := sc.WatchedUpTo(ctx, "EP3")
	require.NoError(t, err)
	require.True(t, ok)

	// one ajax batch keyed on the last episode, covering the whole prefix
	batch := fake.calls("/status/watched")
	require.Len(t, batch, 1)
	require.Equal(t, "POST", batch[0].method)
	require.Equal(t, "/subject/ep/521/status/watched", batch[0].path)
	require.Equal(t, "1", batch[0].query.Get("ajax"))
	require.Equal(t, "8f0a3bd1", batch[0].query.Get("gh"))
	require.Equal(t, "519,520,521", batch[0].form.Get("ep_id"))

	for _, ec := range sc.EpColls {
		require.Equal(t, EpWatched, ec.CStatus)
	}
	require.Equal(t, 3, sc.NWatchedEps)
	require.Equal(t, 3, fake.watched)

	_, err = sc.WatchedUpTo(ctx, "EP9")
	require.ErrorContains(t, err, "not part of this collection")
}

func TestWatchedUpToRejected(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/track")
	defer cleanup()

	ctx, span := tracer.Start(context.Background(), "TestWatchedUpToRejected")
	defer span.End()
	fake, _, client := setup(t, ctx)

	sc, err := client.SubjectCollection(ctx, "253")
	require.NoError(t, err)

	fake.batchAck = `{"status":"failure"}`
	ok, err := sc.WatchedUpTo(ctx, "EP2")
	require.NoError(t, err)
	require.False(t, ok)

	// nothing moved, locally or on the service
	require.Equal(t, EpWatched, sc.EpColls[0].CStatus)
	require.Equal(t, EpQueue, sc.EpColls[1].CStatus)
	require.Equal(t, 1, sc.NWatchedEps)
	require.Equal(t, "Queue", fake.epStatus["520"])
}

func TestSetWatchedMembership(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/track")
	defer cleanup()

	ctx, span := tracer.Start(context.Background(), "TestSetWatchedMembership")
	defer span.End()
	_, _, client := setup(t, ctx)

	scA, err := client.SubjectCollection(ctx, "253")
	require.NoError(t, err)
	scB, err := client.SubjectCollection(ctx, "253")
	require.NoError(t, err)

	_, err = scA.SetWatched(ctx, []*EpisodeCollection{scB.EpColls[0]})
	require.ErrorContains(t, err, "belong")

	_, err = scA.SetWatched(ctx, nil)
	require.ErrorContains(t, err, "no episodes")
}

func TestRemoveSubjectCollection(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/track")
	defer cleanup()

	ctx, span := tracer.Start(context.Background(), "TestRemoveSubjectCollection")
	defer span.End()
	fake, _, client := setup(t, ctx)

	sc, err := client.SubjectCollection(ctx, "253")
	require.NoError(t, err)

	ok, err := sc.Remove(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatusUnset, sc.CStatus)
	require.False(t, fake.collected)
	require.Equal(t, "8f0a3bd1", fake.calls("/remove")[0].query.Get("gh"))
}

func TestRemoveClearsOnReportedFailure(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/track")
	defer cleanup()

	ctx, span := tracer.Start(context.Background(), "TestRemoveClearsOnReportedFailure")
	defer span.End()
	fake, _, client := setup(t, ctx)

	sc, err := client.SubjectCollection(ctx, "253")
	require.NoError(t, err)

	fake.writesLoggedOut = true
	ok, err := sc.Remove(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, StatusUnset, sc.CStatus)
}

func TestRemoveKeepsStatusOnTransportError(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/track")
	defer cleanup()

	ctx, span := tracer.Start(context.Background(), "TestRemoveKeepsStatusOnTransportError")
	defer span.End()
	_, ts, client := setup(t, ctx)

	sc, err := client.SubjectCollection(ctx, "253")
	require.NoError(t, err)

	ts.Close()
	ok, err := sc.Remove(ctx)
	require.Error(t, err)
	require.False(t, ok)
	require.Equal(t, StatusDoing, sc.CStatus)
}

func TestRemoveEpisodeCollection(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/track")
	defer cleanup()

	ctx, span := tracer.Start(context.Background(), "TestRemoveEpisodeCollection")
	defer span.End()
	fake, _, client := setup(t, ctx)

	sc, err := client.SubjectCollection(ctx, "253")
	require.NoError(t, err)

	ec := sc.EpColls[0]
	ok, err := ec.Remove(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, EpUnset, ec.CStatus)
	require.Equal(t, "", fake.epStatus["519"])
	require.Equal(t, "/subject/ep/519/status/remove", fake.calls("/status/remove")[0].path)
}

func TestSetWatchedCount(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/track")
	defer cleanup()

	ctx, span := tracer.Start(context.Background(), "TestSetWatchedCount")
	defer span.End()
	fake, _, client := setup(t, ctx)

	sc, err := client.SubjectCollection(ctx, "253")
	require.NoError(t, err)

	sc.NWatchedEps = 2
	ok, err := sc.SyncWatchedCount(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	call := fake.calls("/set/watched/")[0]
	require.Equal(t, "POST", call.method)
	require.Equal(t, "/subject/set/watched/253", call.path)
	require.Equal(t, "", call.query.Get("gh"))
	require.Equal(t, "2", call.form.Get("watchedeps"))
	require.Equal(t, "subject", call.form.Get("referer"))
	require.Equal(t, "更新", call.form.Get("submit"))
	require.Equal(t, 2, fake.watched)

	// the episode statuses are re-scraped off what the service derived
	require.Len(t, sc.EpColls, 3)
	require.Equal(t, EpWatched, sc.EpColls[0].CStatus)
	require.Equal(t, EpWatched, sc.EpColls[1].CStatus)
	require.Equal(t, EpUnset, sc.EpColls[2].CStatus)
	for i, ec := range sc.EpColls {
		require.Same(t, sc.Subject.Eps[i], ec.Episode)
		require.Same(t, sc, ec.SubjectCollection())
	}
}

func TestSetWatchedCountValidation(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/track")
	defer cleanup()

	ctx, span := tracer.Start(context.Background(), "TestSetWatchedCountValidation")
	defer span.End()
	fake, _, client := setup(t, ctx)

	fake.interest = 1
	sc, err := client.SubjectCollection(ctx, "253")
	require.NoError(t, err)
	require.Equal(t, StatusWish, sc.CStatus)

	sc.NWatchedEps = 2
	_, err = sc.SyncWatchedCount(ctx)
	require.ErrorContains(t, err, "wished")

	fake.interest = 3
	sc, err = client.SubjectCollection(ctx, "253")
	require.NoError(t, err)
	sc.NWatchedEps = -1
	_, err = sc.SyncWatchedCount(ctx)
	require.ErrorContains(t, err, "out of range")
	sc.NWatchedEps = 5
	_, err = sc.SyncWatchedCount(ctx)
	require.ErrorContains(t, err, "out of range")

	fake.collected = false
	sc, err = client.SubjectCollection(ctx, "253")
	require.NoError(t, err)
	_, err = sc.SyncWatchedCount(ctx)
	require.ErrorContains(t, err, "not in the collection")

	require.Empty(t, fake.calls("/set/watched/"))
}

func TestSetCollectionDispatch(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/track")
	defer cleanup()

	ctx, span := tracer.Start(context.Background(), "TestSetCollectionDispatch")
	defer span.End()
	fake, _, client := setup(t, ctx)

	sc, err := client.SubjectCollection(ctx, "253")
	require.NoError(t, err)

	sc.CStatus = StatusOnHold
	ok, err := client.SetCollection(ctx, sc)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 4, fake.interest)

	ec := sc.EpColls[1]
	ec.CStatus = EpDrop
	ok, err = client.SetCollection(ctx, ec)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Drop", fake.epStatus["520"])

	_, err = client.SetCollection(ctx, nil)
	require.ErrorContains(t, err, "unsupported")
}
