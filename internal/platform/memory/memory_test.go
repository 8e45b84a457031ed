package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/vlightd/internal/db"
	"github.com/dokzlo13/vlightd/internal/eventbus"
	"github.com/dokzlo13/vlightd/internal/platform"
	"github.com/dokzlo13/vlightd/internal/storage"
)

const entityID = "light.virtual"

func seed() []Entity {
	return []Entity{{
		ID: entityID,
		Attributes: platform.Attributes{
			platform.AttrMinColorTempKelvin: 2000,
			platform.AttrMaxColorTempKelvin: 6500,
		},
	}}
}

func newTestPlatform(t *testing.T, store EntityStore) (*Platform, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.NewWithConfig(1, 50)
	t.Cleanup(func() { bus.Close(context.Background()) })

	p, err := New(platform.NewDispatcher(context.Background(), bus), store, seed())
	require.NoError(t, err)
	return p, bus
}

func TestTurnOn_Merge(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()

	require.NoError(t, p.TurnOn(ctx, entityID, platform.TurnOnParams{}))
	st, err := p.GetState(ctx, entityID)
	require.NoError(t, err)
	assert.Equal(t, "on", st.State)
	assert.Equal(t, 255, *st.Attributes.IntPtr(platform.AttrBrightness), "full brightness when turned on from off")

	require.NoError(t, p.TurnOn(ctx, entityID, platform.TurnOnParams{
		Brightness:      platform.IntPtr(100),
		ColorTempKelvin: platform.IntPtr(2700),
	}))
	require.NoError(t, p.TurnOn(ctx, entityID, platform.TurnOnParams{RGBColor: &platform.RGB{255, 0, 0}}))

	st, err = p.GetState(ctx, entityID)
	require.NoError(t, err)
	assert.Equal(t, 100, *st.Attributes.IntPtr(platform.AttrBrightness), "brightness kept")
	assert.Nil(t, st.Attributes.IntPtr(platform.AttrColorTempKelvin), "rgb clears temperature")
	assert.Equal(t, platform.RGB{255, 0, 0}, *st.Attributes.RGBPtr(platform.AttrRGBColor))

	require.NoError(t, p.TurnOn(ctx, entityID, platform.TurnOnParams{ColorTempKelvin: platform.IntPtr(4000)}))
	st, err = p.GetState(ctx, entityID)
	require.NoError(t, err)
	assert.Nil(t, st.Attributes.RGBPtr(platform.AttrRGBColor), "temperature clears rgb")
	assert.Equal(t, 4000, *st.Attributes.IntPtr(platform.AttrColorTempKelvin))
}

func TestTurnOff_ClearsAttributes(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()

	require.NoError(t, p.TurnOn(ctx, entityID, platform.TurnOnParams{
		Brightness:      platform.IntPtr(100),
		ColorTempKelvin: platform.IntPtr(2700),
	}))
	require.NoError(t, p.TurnOff(ctx, entityID))

	st, err := p.GetState(ctx, entityID)
	require.NoError(t, err)
	assert.Equal(t, "off", st.State)
	assert.Nil(t, st.Attributes.IntPtr(platform.AttrBrightness))
	assert.Nil(t, st.Attributes.IntPtr(platform.AttrColorTempKelvin))
	assert.Equal(t, 2000, *st.Attributes.IntPtr(platform.AttrMinColorTempKelvin))
	assert.Equal(t, 6500, *st.Attributes.IntPtr(platform.AttrMaxColorTempKelvin))
}

func TestUnknownEntity(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()

	_, err := p.GetState(ctx, "light.missing")
	assert.ErrorIs(t, err, platform.ErrEntityNotFound)
	assert.ErrorIs(t, p.TurnOn(ctx, "light.missing", platform.TurnOnParams{}), platform.ErrEntityNotFound)
	assert.ErrorIs(t, p.TurnOff(ctx, "light.missing"), platform.ErrEntityNotFound)
}

func TestListenState(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()

	changes := make(chan platform.StateChange, 4)
	_, err := p.ListenState(entityID, func(_ context.Context, c platform.StateChange) { changes <- c })
	require.NoError(t, err)

	require.NoError(t, p.TurnOn(ctx, entityID, platform.TurnOnParams{Brightness: platform.IntPtr(42)}))
	// No change, no event.
	require.NoError(t, p.TurnOn(ctx, entityID, platform.TurnOnParams{Brightness: platform.IntPtr(42)}))
	require.NoError(t, p.TurnOff(ctx, entityID))

	var got []platform.StateChange
	for len(got) < 2 {
		select {
		case c := <-changes:
			got = append(got, c)
		case <-time.After(time.Second):
			t.Fatalf("got %d changes, want 2", len(got))
		}
	}

	assert.Equal(t, "off", got[0].Old.State)
	assert.Equal(t, "on", got[0].New.State)
	assert.Equal(t, 42, *got[0].New.Attributes.IntPtr(platform.AttrBrightness))
	assert.Equal(t, "off", got[1].New.State)

	select {
	case c := <-changes:
		t.Fatalf("unexpected change %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPersistence(t *testing.T) {
	database, err := db.OpenMemory()
	require.NoError(t, err)
	defer database.Close()
	store := storage.NewTypedStore[platform.State](storage.NewStore(database.DB), storage.KindEntity)
	ctx := context.Background()

	p, _ := newTestPlatform(t, store)
	require.NoError(t, p.TurnOn(ctx, entityID, platform.TurnOnParams{
		Brightness:      platform.IntPtr(90),
		ColorTempKelvin: platform.IntPtr(3500),
	}))

	restored, _ := newTestPlatform(t, store)
	st, err := restored.GetState(ctx, entityID)
	require.NoError(t, err)
	assert.Equal(t, "on", st.State)
	assert.Equal(t, 90, *st.Attributes.IntPtr(platform.AttrBrightness))
	assert.Equal(t, 3500, *st.Attributes.IntPtr(platform.AttrColorTempKelvin))
	assert.Equal(t, 2000, *st.Attributes.IntPtr(platform.AttrMinColorTempKelvin))
}

func TestSetStateCreatesEntity(t *testing.T) {
	p, _ := newTestPlatform(t, nil)

	p.SetState("light.extra", "on", platform.Attributes{platform.AttrBrightness: 10})

	assert.Equal(t, []string{"light.extra", entityID}, p.Entities())
}

// slowStore delays writes so racing writers would reorder without serialization.
type slowStore struct {
	mu     sync.Mutex
	writes []platform.State
}

func (s *slowStore) GetAll() (map[string]platform.State, map[string]int64, error) {
	return nil, nil, nil
}

func (s *slowStore) Set(_ string, value platform.State) error {
	if b := value.Attributes.IntPtr(platform.AttrBrightness); b != nil {
		time.Sleep(time.Duration(20-*b%20) * time.Millisecond)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, value)
	return nil
}

func TestConcurrentWritesPublishInOrder(t *testing.T) {
	store := &slowStore{}
	p, _ := newTestPlatform(t, store)
	ctx := context.Background()

	const writers = 20
	changes := make(chan platform.StateChange, writers)
	_, err := p.ListenState(entityID, func(_ context.Context, c platform.StateChange) { changes <- c })
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= writers; i++ {
		wg.Add(1)
		go func(brightness int) {
			defer wg.Done()
			assert.NoError(t, p.TurnOn(ctx, entityID, platform.TurnOnParams{Brightness: platform.IntPtr(brightness)}))
		}(i)
	}
	wg.Wait()

	var got []platform.StateChange
	for len(got) < writers {
		select {
		case c := <-changes:
			got = append(got, c)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d changes, want %d", len(got), writers)
		}
	}

	for i := 1; i < len(got); i++ {
		assert.Equal(t, *got[i-1].New.Attributes.IntPtr(platform.AttrBrightness),
			*got[i].Old.Attributes.IntPtr(platform.AttrBrightness), "change %d continues from the previous one", i)
	}

	st, err := p.GetState(ctx, entityID)
	require.NoError(t, err)
	final := *st.Attributes.IntPtr(platform.AttrBrightness)
	assert.Equal(t, final, *got[len(got)-1].New.Attributes.IntPtr(platform.AttrBrightness), "last event matches state")

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.writes, writers)
	assert.Equal(t, final, *store.writes[len(store.writes)-1].Attributes.IntPtr(platform.AttrBrightness), "last write matches state")
}
