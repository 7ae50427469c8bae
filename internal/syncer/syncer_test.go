package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pmsgw/internal/bus"
	"pmsgw/internal/model"
	"pmsgw/internal/pms"
	"pmsgw/internal/secrets"
	"pmsgw/internal/store"
)

// fakeAdapter serves canned vendor JSON and records the since argument.
type fakeAdapter struct {
	vendor       model.Vendor
	apiKey       string
	sinceSeen    *time.Time
	reservations string
	rooms        string
	guests       string
	err          error
}

func (f *fakeAdapter) Vendor() model.Vendor { return f.vendor }

func (f *fakeAdapter) GetReservations(ctx context.Context, propertyID string, since *time.Time) (json.RawMessage, error) {
	f.sinceSeen = since
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.reservations), nil
}

func (f *fakeAdapter) GetRooms(ctx context.Context, propertyID string) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.rooms), nil
}

func (f *fakeAdapter) GetGuests(ctx context.Context, propertyID string, since *time.Time) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.guests), nil
}

func newTestSyncer(t *testing.T, fake *fakeAdapter) (*Syncer, *store.Memory, *bus.Memory, *secrets.Box) {
	t.Helper()
	st := store.NewMemory()
	b := bus.NewMemory()
	box, err := secrets.New(bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)
	reg := pms.NewRegistry()
	reg.Register(fake.vendor, func(cfg pms.Config, _ *zap.Logger) (pms.Adapter, error) {
		fake.apiKey = cfg.APIKey
		return fake, nil
	})
	return New(st, b, reg, box, time.Minute, nil), st, b, box
}

func connect(t *testing.T, st *store.Memory, box *secrets.Box, tenant string, vendor model.Vendor) {
	t.Helper()
	sealed, err := box.Seal("api-key-" + tenant)
	require.NoError(t, err)
	_, err = st.SaveConfiguration(context.Background(), store.SaveConfigurationInput{
		TenantID: tenant, Vendor: vendor, SealedCredential: sealed, PropertyID: "P-" + tenant,
	})
	require.NoError(t, err)
}

func drain(ch chan model.Event) []model.Event {
	out := []model.Event{}
	for {
		select {
		case evt := <-ch:
			out = append(out, evt)
		case <-time.After(100 * time.Millisecond):
			return out
		}
	}
}

func TestRunOnceEmitsRefreshEvents(t *testing.T) {
	fake := &fakeAdapter{
		vendor:       model.VendorCloudbeds,
		reservations: `{"data":[{"reservationID":"R1"},{"reservationID":"R2"}]}`,
		rooms:        `{"data":[{"roomID":"101"}]}`,
		guests:       `{"data":[]}`,
	}
	s, st, b, box := newTestSyncer(t, fake)
	connect(t, st, box, "H1", model.VendorCloudbeds)

	all := b.Subscribe(model.TopicAll)
	require.NoError(t, s.RunOnce(context.Background()))

	events := drain(all)
	require.Len(t, events, 3)

	byTopic := map[model.Topic][]model.Event{}
	for _, evt := range events {
		byTopic[evt.Topic] = append(byTopic[evt.Topic], evt)
		assert.Equal(t, "H1", evt.Context.HotelID)
		assert.Equal(t, model.VendorCloudbeds, evt.Payload.Vendor)
		assert.Equal(t, "updated", evt.Payload.Action)
	}
	require.Len(t, byTopic[model.TopicBookingUpdated], 2)
	require.Len(t, byTopic[model.TopicRoomUpdated], 1)
	assert.Equal(t, "101", byTopic[model.TopicRoomUpdated][0].Payload.ExternalID)

	// The sealed credential was opened and handed to the adapter factory.
	assert.Equal(t, "api-key-H1", fake.apiKey)

	cfg, err := st.GetConfiguration(context.Background(), "H1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusConnected, cfg.Status)
	require.NotNil(t, cfg.LastSyncAt)
	assert.Empty(t, cfg.LastError)
}

func TestSyncUsesLastSyncAsSince(t *testing.T) {
	fake := &fakeAdapter{
		vendor:       model.VendorCloudbeds,
		reservations: `{"data":[]}`, rooms: `{"data":[]}`, guests: `{"data":[]}`,
	}
	s, st, _, box := newTestSyncer(t, fake)
	connect(t, st, box, "H1", model.VendorCloudbeds)

	// First pass: no prior sync, so no since filter.
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Nil(t, fake.sinceSeen)

	// Second pass picks up the recorded watermark.
	require.NoError(t, s.RunOnce(context.Background()))
	require.NotNil(t, fake.sinceSeen)
	assert.WithinDuration(t, time.Now(), *fake.sinceSeen, time.Minute)
}

func TestSyncFailureMarksTenantError(t *testing.T) {
	fake := &fakeAdapter{vendor: model.VendorCloudbeds, err: errors.New("CLOUDBEDS getReservations failed after 3 attempt(s)")}
	s, st, _, box := newTestSyncer(t, fake)
	connect(t, st, box, "H1", model.VendorCloudbeds)

	err := s.RunOnce(context.Background())
	require.Error(t, err)

	cfg, gerr := st.GetConfiguration(context.Background(), "H1")
	require.NoError(t, gerr)
	assert.Equal(t, model.StatusError, cfg.Status)
	assert.Contains(t, cfg.LastError, "failed after 3 attempt(s)")
	assert.Nil(t, cfg.LastSyncAt)
}

func TestSyncUnsupportedVendor(t *testing.T) {
	fake := &fakeAdapter{vendor: model.VendorCloudbeds}
	s, st, _, box := newTestSyncer(t, fake)
	connect(t, st, box, "H9", model.VendorProtel) // nothing registered for PROTEL

	err := s.RunOnce(context.Background())
	require.ErrorIs(t, err, pms.ErrUnsupportedVendor)

	cfg, _ := st.GetConfiguration(context.Background(), "H9")
	assert.Equal(t, model.StatusError, cfg.Status)
}

func TestOneTenantFailureDoesNotStopOthers(t *testing.T) {
	fake := &fakeAdapter{
		vendor:       model.VendorCloudbeds,
		reservations: `{"data":[{"reservationID":"R1"}]}`,
		rooms:        `{"data":[]}`, guests: `{"data":[]}`,
	}
	s, st, b, box := newTestSyncer(t, fake)
	connect(t, st, box, "H1", model.VendorCloudbeds)
	connect(t, st, box, "H2", model.VendorMews) // unregistered vendor, will fail

	all := b.Subscribe(model.TopicAll)
	err := s.RunOnce(context.Background())
	require.Error(t, err)

	// H1 still synced.
	events := drain(all)
	require.Len(t, events, 1)
	assert.Equal(t, "H1", events[0].Context.HotelID)

	h1, _ := st.GetConfiguration(context.Background(), "H1")
	assert.Equal(t, model.StatusConnected, h1.Status)
	h2, _ := st.GetConfiguration(context.Background(), "H2")
	assert.Equal(t, model.StatusError, h2.Status)
}

func TestRecordsEnvelopes(t *testing.T) {
	cases := map[string]string{
		"bare array": `[{"id":"a"}]`,
		"data":       `{"data":[{"id":"a"}]}`,
		"named key":  `{"reservations":[{"id":"a"}]}`,
	}
	for name, raw := range cases {
		recs := records(json.RawMessage(raw), "reservations")
		require.Len(t, recs, 1, name)
		assert.Equal(t, "a", recs[0]["id"], name)
	}
	assert.Nil(t, records(json.RawMessage(`{"other":1}`), "reservations"))
	assert.Nil(t, records(nil))
}
