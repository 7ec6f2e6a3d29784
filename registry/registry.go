// Package registry is the read/write facade over stream configuration
// records. The supervisor only consumes it (ListEnabled, OnChange); all
// writes come from the API. Invalid records are rejected here and never reach
// the core.
package registry

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/CamGateway/CamGateway/log"
	"github.com/CamGateway/CamGateway/models"
	"github.com/teris-io/shortid"
	"gorm.io/gorm"
)

var (
	ErrConfigInvalid = errors.New("invalid stream config")
	ErrNotFound      = errors.New("stream not found")
)

type Registry struct {
	db *gorm.DB

	subLock sync.Mutex
	subs    []func()
}

func New(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// OnChange subscribes to configuration mutations. Callbacks run on the
// mutating goroutine and should hand off quickly.
func (r *Registry) OnChange(fn func()) {
	r.subLock.Lock()
	r.subs = append(r.subs, fn)
	r.subLock.Unlock()
}

func (r *Registry) notify() {
	r.subLock.Lock()
	subs := make([]func(), len(r.subs))
	copy(subs, r.subs)
	r.subLock.Unlock()
	for _, fn := range subs {
		fn()
	}
}

func (r *Registry) List() ([]models.Stream, error) {
	var streams []models.Stream
	if err := r.db.Find(&streams).Error; err != nil {
		return nil, err
	}
	return streams, nil
}

func (r *Registry) ListEnabled() ([]models.Stream, error) {
	var streams []models.Stream
	if err := r.db.Where("enabled = ?", true).Find(&streams).Error; err != nil {
		return nil, err
	}
	return streams, nil
}

func (r *Registry) Get(id string) (models.Stream, error) {
	var stream models.Stream
	err := r.db.Where("id = ?", id).First(&stream).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return stream, ErrNotFound
	}
	return stream, err
}

func (r *Registry) Create(stream models.Stream) (models.Stream, error) {
	if err := validate(&stream); err != nil {
		return stream, err
	}
	if stream.OnvifPort != 0 {
		var count int64
		r.db.Model(&models.Stream{}).Where("onvif_port = ?", stream.OnvifPort).Count(&count)
		if count > 0 {
			return stream, fmt.Errorf("%w: port %d already configured on another stream",
				ErrConfigInvalid, stream.OnvifPort)
		}
	}
	stream.ID = shortid.MustGenerate()
	if err := r.db.Create(&stream).Error; err != nil {
		return stream, err
	}
	log.Info(fmt.Sprintf("created stream %s (%s)", stream.ID, stream.Name))
	r.notify()
	return stream, nil
}

func (r *Registry) Update(id string, stream models.Stream) (models.Stream, error) {
	existing, err := r.Get(id)
	if err != nil {
		return stream, err
	}
	stream.ID = existing.ID // id is immutable
	if err := validate(&stream); err != nil {
		return stream, err
	}
	if stream.OnvifPort != 0 && stream.OnvifPort != existing.OnvifPort {
		var count int64
		r.db.Model(&models.Stream{}).
			Where("onvif_port = ? AND id <> ?", stream.OnvifPort, id).Count(&count)
		if count > 0 {
			return stream, fmt.Errorf("%w: port %d already configured on another stream",
				ErrConfigInvalid, stream.OnvifPort)
		}
	}
	stream.CreatedAt = existing.CreatedAt
	if err := r.db.Save(&stream).Error; err != nil {
		return stream, err
	}
	log.Info(fmt.Sprintf("updated stream %s (%s)", stream.ID, stream.Name))
	r.notify()
	return stream, nil
}

func (r *Registry) Delete(id string) error {
	if _, err := r.Get(id); err != nil {
		return err
	}
	if err := r.db.Delete(&models.Stream{}, "id = ?", id).Error; err != nil {
		return err
	}
	log.Info("deleted stream ", id)
	r.notify()
	return nil
}

func (r *Registry) SetEnabled(id string, enabled bool) error {
	stream, err := r.Get(id)
	if err != nil {
		return err
	}
	if stream.Enabled == enabled {
		return nil
	}
	if err := r.db.Model(&stream).Update("enabled", enabled).Error; err != nil {
		return err
	}
	log.Info(fmt.Sprintf("stream %s enabled=%v", id, enabled))
	r.notify()
	return nil
}

// validate normalizes and checks a record at the boundary. The rtsp://
// scheme is coerced onto bare host urls, matching what operators paste in.
func validate(stream *models.Stream) error {
	stream.Name = strings.TrimSpace(stream.Name)
	if stream.Name == "" {
		return fmt.Errorf("%w: name is required", ErrConfigInvalid)
	}
	stream.URL = strings.TrimSpace(stream.URL)
	if stream.URL == "" {
		return fmt.Errorf("%w: url is required", ErrConfigInvalid)
	}
	if !strings.Contains(stream.URL, "://") {
		stream.URL = "rtsp://" + stream.URL
	}
	u, err := url.Parse(stream.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	if u.Scheme != "rtsp" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrConfigInvalid, u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: url has no host", ErrConfigInvalid)
	}
	if (stream.Username == "") != (stream.Password == "") {
		return fmt.Errorf("%w: username and password must be set together", ErrConfigInvalid)
	}
	if stream.OnvifPort != 0 && (stream.OnvifPort < 1 || stream.OnvifPort > 65535) {
		return fmt.Errorf("%w: onvif port %d out of range", ErrConfigInvalid, stream.OnvifPort)
	}
	return nil
}
