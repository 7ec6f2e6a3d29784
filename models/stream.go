package models

import "time"

// Stream is one configured RTSP source. The supervisor treats rows as
// immutable snapshots; all mutation goes through the registry.
type Stream struct {
	ID        string `gorm:"type:varchar(16);primary_key" json:"id"`
	Name      string `gorm:"type:varchar(255)" json:"name"`
	URL       string `gorm:"type:varchar(500)" json:"url"`
	Username  string `gorm:"type:varchar(100)" json:"username"`
	Password  string `gorm:"type:varchar(100)" json:"password"`
	Enabled   bool   `json:"enabled"`
	OnvifPort int    `json:"onvifPort"` // 0 means pool-assigned
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SourceURL returns the RTSP URL with credentials injected, the form the
// relay and the probe dial.
func (s Stream) SourceURL() string {
	url := s.URL
	if s.Username == "" || s.Password == "" {
		return url
	}
	if idx := len("rtsp://"); len(url) > idx && url[:idx] == "rtsp://" {
		rest := url[idx:]
		for _, c := range rest {
			if c == '@' {
				return url // credentials already embedded
			}
			if c == '/' {
				break
			}
		}
		return "rtsp://" + s.Username + ":" + s.Password + "@" + rest
	}
	return url
}
