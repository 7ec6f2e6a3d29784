package registry

import (
	"errors"
	"testing"

	"github.com/CamGateway/CamGateway/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Stream{}))
	return New(db)
}

func TestCreateAssignsIDAndNotifies(t *testing.T) {
	r := testRegistry(t)
	notified := 0
	r.OnChange(func() { notified++ })

	created, err := r.Create(models.Stream{Name: "front", URL: "camera-1/live", Enabled: true})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "rtsp://camera-1/live", created.URL, "bare urls get the rtsp scheme")
	assert.Equal(t, 1, notified)

	got, err := r.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)
}

func TestCreateRejectsInvalidConfig(t *testing.T) {
	r := testRegistry(t)
	cases := []models.Stream{
		{Name: "", URL: "rtsp://camera-1/live"},
		{Name: "cam", URL: ""},
		{Name: "cam", URL: "http://camera-1/live"},
		{Name: "cam", URL: "rtsp://camera-1/live", Username: "u"}, // password missing
		{Name: "cam", URL: "rtsp://camera-1/live", OnvifPort: -1},
		{Name: "cam", URL: "rtsp://camera-1/live", OnvifPort: 70000},
	}
	for _, c := range cases {
		_, err := r.Create(c)
		assert.True(t, errors.Is(err, ErrConfigInvalid), "config %+v must be rejected", c)
	}
}

func TestCreateRejectsDuplicateExplicitPort(t *testing.T) {
	r := testRegistry(t)
	_, err := r.Create(models.Stream{Name: "a", URL: "rtsp://camera-1/live", OnvifPort: 8005})
	require.NoError(t, err)
	_, err = r.Create(models.Stream{Name: "b", URL: "rtsp://camera-2/live", OnvifPort: 8005})
	assert.True(t, errors.Is(err, ErrConfigInvalid))
}

func TestUpdateKeepsIDImmutable(t *testing.T) {
	r := testRegistry(t)
	created, err := r.Create(models.Stream{Name: "a", URL: "rtsp://camera-1/live"})
	require.NoError(t, err)

	updated, err := r.Update(created.ID, models.Stream{
		ID: "evil-new-id", Name: "a2", URL: "rtsp://camera-1/live2",
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	_, err = r.Get("evil-new-id")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDeleteUnknown(t *testing.T) {
	r := testRegistry(t)
	err := r.Delete("nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListEnabledFiltersDisabled(t *testing.T) {
	r := testRegistry(t)
	a, err := r.Create(models.Stream{Name: "a", URL: "rtsp://camera-1/live", Enabled: true})
	require.NoError(t, err)
	_, err = r.Create(models.Stream{Name: "b", URL: "rtsp://camera-2/live", Enabled: false})
	require.NoError(t, err)

	enabled, err := r.ListEnabled()
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, a.ID, enabled[0].ID)
}

func TestSetEnabledNotifiesOnlyOnChange(t *testing.T) {
	r := testRegistry(t)
	created, err := r.Create(models.Stream{Name: "a", URL: "rtsp://camera-1/live", Enabled: true})
	require.NoError(t, err)

	notified := 0
	r.OnChange(func() { notified++ })

	require.NoError(t, r.SetEnabled(created.ID, true)) // no change, no event
	assert.Equal(t, 0, notified)
	require.NoError(t, r.SetEnabled(created.ID, false))
	assert.Equal(t, 1, notified)

	got, err := r.Get(created.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
}
