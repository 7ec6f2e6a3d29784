package onvif

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CamGateway/CamGateway/models"
	"github.com/CamGateway/CamGateway/ports"
	"github.com/CamGateway/CamGateway/relay"
	"github.com/CamGateway/CamGateway/supervisor"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type idleProcess struct {
	done     chan error
	stopOnce sync.Once
}

func (p *idleProcess) Pid() int             { return 4242 }
func (p *idleProcess) StartedAt() time.Time { return time.Now() }
func (p *idleProcess) Done() <-chan error   { return p.done }
func (p *idleProcess) StderrTail() string   { return "" }
func (p *idleProcess) Stop(time.Duration) {
	p.stopOnce.Do(func() { p.done <- nil })
}

type idleLauncher struct{}

func (idleLauncher) Launch(relay.Spec) (relay.Process, error) {
	return &idleProcess{done: make(chan error, 1)}, nil
}

func testRig(t *testing.T) (*supervisor.Supervisor, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := supervisor.Config{
		GracePeriod:        5 * time.Millisecond,
		StopTimeout:        50 * time.Millisecond,
		BackoffBase:        5 * time.Millisecond,
		BackoffMax:         20 * time.Millisecond,
		CrashLoopThreshold: 3,
		CrashLoopWindow:    time.Minute,
		HealthyReset:       time.Hour,
		FailureThreshold:   3,
	}
	sup := supervisor.New(cfg, ports.NewAllocator(8001, 8010), idleLauncher{})
	sup.SetProbe(func(string, time.Duration) error { return nil })
	t.Cleanup(func() { sup.Shutdown(context.Background()) })

	r := gin.New()
	NewHandler(sup).Register(r)
	return sup, r
}

func reconcileRunning(t *testing.T, sup *supervisor.Supervisor, streams ...models.Stream) {
	t.Helper()
	sup.Reconcile(streams)
	for _, s := range streams {
		require.Eventually(t, func() bool {
			info, err := sup.Status(s.ID)
			return err == nil && info.Status == "Running"
		}, 2*time.Second, 2*time.Millisecond)
	}
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Host = "gateway.local:8000"
	r.ServeHTTP(w, req)
	return w
}

func TestDeviceXMLWellFormed(t *testing.T) {
	sup, r := testRig(t)
	reconcileRunning(t, sup, models.Stream{
		ID: "cam-1", Name: `Front "Door" & Yard`, URL: "rtsp://camera-1/live", Enabled: true,
	})

	w := get(r, "/onvif/cam-1/device.xml")
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		XMLName xml.Name
	}
	require.NoError(t, xml.Unmarshal(w.Body.Bytes(), &doc), "device descriptor must be well-formed xml")
	assert.Contains(t, w.Body.String(), "GetDeviceInformationResponse")
	assert.Contains(t, w.Body.String(), "Front &#34;Door&#34; &amp; Yard")
}

func TestDeviceXMLUnknownStream(t *testing.T) {
	_, r := testRig(t)
	w := get(r, "/onvif/nope/device.xml")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMediaWSDLPointsAtMediaEndpoint(t *testing.T) {
	sup, r := testRig(t)
	reconcileRunning(t, sup, models.Stream{ID: "cam-1", Name: "cam", URL: "rtsp://camera-1/live", Enabled: true})

	w := get(r, "/onvif/cam-1/media.wsdl")
	require.Equal(t, http.StatusOK, w.Code)
	var doc struct {
		XMLName xml.Name
	}
	require.NoError(t, xml.Unmarshal(w.Body.Bytes(), &doc))
	assert.Contains(t, w.Body.String(), "http://gateway.local:8000/onvif/cam-1/media")
}

func postSOAP(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Host = "gateway.local:8000"
	r.ServeHTTP(w, req)
	return w
}

func TestGetStreamUriUsesLivePort(t *testing.T) {
	sup, r := testRig(t)
	reconcileRunning(t, sup, models.Stream{ID: "cam-1", Name: "cam", URL: "rtsp://camera-1/live", Enabled: true, OnvifPort: 8005})

	w := postSOAP(r, "/onvif/cam-1/media", "<GetStreamUri/>")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rtsp://gateway.local:8005/stream")
}

// Descriptors must reflect the lease of the moment, not the one from a
// previous request.
func TestStreamUriNotStaleAfterPortReallocation(t *testing.T) {
	sup, r := testRig(t)
	reconcileRunning(t, sup, models.Stream{ID: "cam-1", Name: "cam", URL: "rtsp://camera-1/live", Enabled: true, OnvifPort: 8005})

	w := postSOAP(r, "/onvif/cam-1/media", "<GetStreamUri/>")
	require.Contains(t, w.Body.String(), ":8005/stream")

	// the stream moves to a different explicit port
	reconcileRunning(t, sup, models.Stream{ID: "cam-1", Name: "cam", URL: "rtsp://camera-1/live", Enabled: true, OnvifPort: 8007})

	w = postSOAP(r, "/onvif/cam-1/media", "<GetStreamUri/>")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), ":8007/stream")
	assert.NotContains(t, w.Body.String(), ":8005/stream")
}

func TestUnsupportedSOAPActionFaults(t *testing.T) {
	sup, r := testRig(t)
	reconcileRunning(t, sup, models.Stream{ID: "cam-1", Name: "cam", URL: "rtsp://camera-1/live", Enabled: true})

	w := postSOAP(r, "/onvif/cam-1/media", "<GetProfiles/>")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "soap:Fault")
}

// A degraded stream stays discoverable; the descriptor is still served.
func TestDegradedStreamStillDiscoverable(t *testing.T) {
	sup, r := testRig(t)
	reconcileRunning(t, sup, models.Stream{ID: "cam-1", Name: "cam", URL: "rtsp://camera-1/live", Enabled: true})

	// force a confirmed upstream failure
	for i := 0; i < 3; i++ {
		sup.ReportUpstream("cam-1", fmt.Errorf("unreachable"))
	}
	w := get(r, "/onvif/cam-1/device.xml")
	assert.Equal(t, http.StatusOK, w.Code)
}
