package herdsync

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bartoszzontek/highlander-farm/herdstore"
)

func TestCreateAnimalOnline(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/animals", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var in AnimalInput
		require.NoError(t, decodeBody(r, &in))
		writeJSON(w, http.StatusCreated, herdstore.Animal{
			ID: 42, TagID: in.TagID, Name: in.Name, Breed: in.Breed,
			BirthDate: in.BirthDate, Sex: in.Sex,
		})
	}))

	created, err := h.repo.CreateAnimal(context.Background(), validAnimal)
	require.NoError(t, err)
	require.Equal(t, int64(42), created.ID)

	// Authoritative record cached locally, nothing queued.
	local, err := h.store.AnimalByID(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, "PL001", local.TagID)
	require.Empty(t, h.pendingOps())
}

func TestCreateAnimalOffline(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("offline create must not touch the network")
	}))
	h.conn.set(false)

	created, err := h.repo.CreateAnimal(context.Background(), validAnimal)
	require.NoError(t, err)
	require.Negative(t, created.ID, "offline creates get a provisional negative id")
	require.True(t, created.Provisional())

	ops := h.pendingOps()
	require.Len(t, ops, 1)
	require.Equal(t, herdstore.ActionCreateAnimal, ops[0].Action)
	require.NotNil(t, ops[0].TempID)
	require.Equal(t, created.ID, *ops[0].TempID)
}

func TestCreateAnimalOfflineDuplicateTag(t *testing.T) {
	h := newHarness(t, http.NotFoundHandler())
	h.conn.set(false)
	ctx := context.Background()

	in := validAnimal
	in.TagID = "PL002"
	_, err := h.repo.CreateAnimal(ctx, in)
	require.NoError(t, err)

	in.Name = "Mora"
	_, err = h.repo.CreateAnimal(ctx, in)
	require.ErrorIs(t, err, ErrDuplicateTag)

	// The rejection happened before any store write.
	require.Len(t, h.animals(), 1)
	require.Len(t, h.pendingOps(), 1)
}

func TestUpdateAnimalOfflineExcludesSelfFromTagCheck(t *testing.T) {
	h := newHarness(t, http.NotFoundHandler())
	h.conn.set(false)
	ctx := context.Background()

	created, err := h.repo.CreateAnimal(ctx, validAnimal)
	require.NoError(t, err)

	in := validAnimal
	in.Name = "Bella II"
	updated, err := h.repo.UpdateAnimal(ctx, created.ID, in)
	require.NoError(t, err, "keeping your own tag is not a duplicate")
	require.Equal(t, "Bella II", updated.Name)

	other := validAnimal
	other.TagID = "PL009"
	second, err := h.repo.CreateAnimal(ctx, other)
	require.NoError(t, err)

	steal := validAnimal
	_, err = h.repo.UpdateAnimal(ctx, second.ID, steal)
	require.ErrorIs(t, err, ErrDuplicateTag)
}

func TestCreateAnimalValidation(t *testing.T) {
	h := newHarness(t, http.NotFoundHandler())

	in := validAnimal
	in.TagID = ""
	_, err := h.repo.CreateAnimal(context.Background(), in)
	require.ErrorIs(t, err, ErrMissingField)
	require.Empty(t, h.animals())
}

func TestCreateEventOnlineUnsyncedParent(t *testing.T) {
	h := newHarness(t, http.NotFoundHandler())
	ctx := context.Background()

	// Create the parent offline, then come back online.
	h.conn.set(false)
	parent, err := h.repo.CreateAnimal(ctx, validAnimal)
	require.NoError(t, err)
	h.conn.set(true)

	_, err = h.repo.CreateEvent(ctx, EventInput{
		Animal: parent.ID, EventType: herdstore.EventTreatment, Date: "2024-06-01",
	})
	require.ErrorIs(t, err, ErrUnsyncedParent)
}

func TestCreateEventOfflineProvisionalParent(t *testing.T) {
	h := newHarness(t, http.NotFoundHandler())
	h.conn.set(false)
	ctx := context.Background()

	parent, err := h.repo.CreateAnimal(ctx, validAnimal)
	require.NoError(t, err)

	event, err := h.repo.CreateEvent(ctx, EventInput{
		Animal: parent.ID, EventType: herdstore.EventVaccination, Date: "2024-06-01", Notes: "first shot",
	})
	require.NoError(t, err)
	require.Negative(t, event.ID)
	require.Equal(t, parent.ID, event.Animal, "event may reference the provisional id until reconciliation")

	ops := h.pendingOps()
	require.Len(t, ops, 2)
	require.Equal(t, herdstore.ActionCreateEvent, ops[1].Action)
}

func TestCreateEventUnknownAnimal(t *testing.T) {
	h := newHarness(t, http.NotFoundHandler())

	_, err := h.repo.CreateEvent(context.Background(), EventInput{
		Animal: 12345, EventType: herdstore.EventBirth, Date: "2024-06-01",
	})
	require.ErrorIs(t, err, ErrAnimalNotFound)
}

func TestDeleteAnimalOnlineRemoteFailureKeepsLocalDeletion(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" && r.URL.Path == "/animals" {
			writeJSON(w, http.StatusCreated, herdstore.Animal{ID: 10, TagID: "PL001", Name: "Bella", Breed: "Angus", BirthDate: "2020-01-01", Sex: "F"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "boom"})
	}))
	ctx := context.Background()

	created, err := h.repo.CreateAnimal(ctx, validAnimal)
	require.NoError(t, err)

	err = h.repo.DeleteAnimal(ctx, created.ID)
	require.Error(t, err, "remote failure is surfaced")

	// But the local deletion is not rolled back.
	require.Empty(t, h.animals())
}

func TestDeleteAnimalOfflineQueuesAuthoritativeDelete(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, herdstore.Animal{ID: 10, TagID: "PL001", Name: "Bella", Breed: "Angus", BirthDate: "2020-01-01", Sex: "F"})
	}))
	ctx := context.Background()

	created, err := h.repo.CreateAnimal(ctx, validAnimal)
	require.NoError(t, err)

	h.conn.set(false)
	require.NoError(t, h.repo.DeleteAnimal(ctx, created.ID))

	ops := h.pendingOps()
	require.Len(t, ops, 1)
	require.Equal(t, herdstore.ActionDeleteAnimal, ops[0].Action)
	require.Equal(t, created.ID, *ops[0].EntityID)
}

func TestDeleteAnimalOfflineProvisionalIsDiscarded(t *testing.T) {
	h := newHarness(t, http.NotFoundHandler())
	h.conn.set(false)
	ctx := context.Background()

	created, err := h.repo.CreateAnimal(ctx, validAnimal)
	require.NoError(t, err)
	_, err = h.repo.CreateEvent(ctx, EventInput{
		Animal: created.ID, EventType: herdstore.EventOther, Date: "2024-06-01",
	})
	require.NoError(t, err)
	require.Len(t, h.pendingOps(), 2)

	require.NoError(t, h.repo.DeleteAnimal(ctx, created.ID))

	// The never-synced animal leaves no trace: no record, no events, no
	// queued operations for the remote to materialize.
	require.Empty(t, h.animals())
	events, err := h.store.EventsByAnimal(ctx, created.ID)
	require.NoError(t, err)
	require.Empty(t, events)
	require.Empty(t, h.pendingOps())
}

func TestDeleteAnimalCascadesEvents(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "POST" && r.URL.Path == "/animals":
			writeJSON(w, http.StatusCreated, herdstore.Animal{ID: 10, TagID: "PL001", Name: "Bella", Breed: "Angus", BirthDate: "2020-01-01", Sex: "F"})
		case r.Method == "POST" && r.URL.Path == "/events":
			var in EventInput
			require.NoError(t, decodeBody(r, &in))
			writeJSON(w, http.StatusCreated, herdstore.AnimalEvent{ID: 77, Animal: in.Animal, EventType: in.EventType, Date: in.Date, Notes: in.Notes})
		case r.Method == "DELETE":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()

	created, err := h.repo.CreateAnimal(ctx, validAnimal)
	require.NoError(t, err)
	_, err = h.repo.CreateEvent(ctx, EventInput{Animal: created.ID, EventType: herdstore.EventBirth, Date: "2024-05-05"})
	require.NoError(t, err)

	require.NoError(t, h.repo.DeleteAnimal(ctx, created.ID))

	events, err := h.store.EventsByAnimal(ctx, created.ID)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestSearchByTagOfflineFallsBackToLocal(t *testing.T) {
	h := newHarness(t, http.NotFoundHandler())
	h.conn.set(false)
	ctx := context.Background()

	created, err := h.repo.CreateAnimal(ctx, validAnimal)
	require.NoError(t, err)

	found, err := h.repo.SearchByTag(ctx, "PL001")
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)

	_, err = h.repo.SearchByTag(ctx, "PL404")
	require.ErrorIs(t, err, ErrAnimalNotFound)
}

func TestRefreshAnimalsReplacesCache(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []herdstore.Animal{
			{ID: 1, TagID: "PL001", Name: "Bella", Breed: "Angus", BirthDate: "2020-01-01", Sex: "F"},
			{ID: 2, TagID: "PL002", Name: "Bruno", Breed: "Angus", BirthDate: "2019-01-01", Sex: "M"},
		})
	}))

	require.NoError(t, h.repo.RefreshAnimals(context.Background()))
	require.Len(t, h.animals(), 2)

	// Offline refresh is a silent no-op.
	h.conn.set(false)
	require.NoError(t, h.repo.RefreshAnimals(context.Background()))
}

func TestCreateTaskOfflineAndUpdate(t *testing.T) {
	h := newHarness(t, http.NotFoundHandler())
	h.conn.set(false)
	ctx := context.Background()

	parent, err := h.repo.CreateAnimal(ctx, validAnimal)
	require.NoError(t, err)

	task, err := h.repo.CreateTask(ctx, TaskInput{Animal: &parent.ID, Title: "hoof trim", DueDate: "2024-07-01"})
	require.NoError(t, err)
	require.Negative(t, task.ID)

	done, err := h.repo.UpdateTask(ctx, task.ID, TaskInput{Animal: &parent.ID, Title: "hoof trim", DueDate: "2024-07-01", Completed: true})
	require.NoError(t, err)
	require.True(t, done.Completed)

	ops := h.pendingOps()
	require.Len(t, ops, 3) // createAnimal, createTask, updateTask
	require.Equal(t, herdstore.ActionUpdateTask, ops[2].Action)
}

func TestLiveAnimalsEmitsOnChange(t *testing.T) {
	h := newHarness(t, http.NotFoundHandler())
	h.conn.set(false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	live, err := h.repo.LiveAnimals(ctx)
	require.NoError(t, err)

	select {
	case initial := <-live:
		require.Empty(t, initial)
	case <-time.After(time.Second):
		t.Fatal("no initial emission")
	}

	_, err = h.repo.CreateAnimal(ctx, validAnimal)
	require.NoError(t, err)

	select {
	case next := <-live:
		require.Len(t, next, 1)
		require.Equal(t, "PL001", next[0].TagID)
	case <-time.After(time.Second):
		t.Fatal("no emission after create")
	}
}

func TestLiveQueueDepth(t *testing.T) {
	h := newHarness(t, http.NotFoundHandler())
	h.conn.set(false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	live, err := h.repo.LiveQueueDepth(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, <-live)

	_, err = h.repo.CreateAnimal(ctx, validAnimal)
	require.NoError(t, err)

	select {
	case depth := <-live:
		require.Equal(t, 1, depth)
	case <-time.After(time.Second):
		t.Fatal("no emission after enqueue")
	}
}

func TestStatsLocalAggregate(t *testing.T) {
	h := newHarness(t, http.NotFoundHandler())
	h.conn.set(false)
	ctx := context.Background()

	_, err := h.repo.CreateAnimal(ctx, validAnimal)
	require.NoError(t, err)

	stats, err := h.repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Total)
	require.Equal(t, 1, stats.BySex[herdstore.SexFemale])
}
