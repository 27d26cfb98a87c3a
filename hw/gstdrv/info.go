package gstdrv

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/camgraph/hw"
)

// infoStage is the transient capability probe. It enumerates video
// sources through the GStreamer device monitor and reports each one's
// largest advertised mode.
type infoStage struct {
	drv *Driver
	id  string
}

func newInfoStage(d *Driver) *infoStage {
	return &infoStage{drv: d, id: uuid.NewString()}
}

func (s *infoStage) ID() string         { return s.id }
func (s *infoStage) Kind() hw.StageKind { return hw.KindCameraInfo }

func (s *infoStage) Input(i int) (hw.Port, error) {
	return nil, fmt.Errorf("gstdrv: camera-info stage has no ports")
}

func (s *infoStage) Output(i int) (hw.Port, error) {
	return nil, fmt.Errorf("gstdrv: camera-info stage has no ports")
}

func (s *infoStage) SetProperty(name string, value any) error {
	return fmt.Errorf("gstdrv: camera-info stage has no property %q", name)
}

func (s *infoStage) Property(name string) (any, error) {
	if name != "camera-info" {
		return nil, fmt.Errorf("gstdrv: camera-info stage has no property %q", name)
	}
	return probeCameras()
}

func (s *infoStage) Enable() error  { return nil }
func (s *infoStage) Disable() error { return nil }
func (s *infoStage) Destroy() error { return nil }

// fallbackMax is reported when a device does not advertise discrete
// modes (common for libcamera sources, which negotiate lazily).
var fallbackMax = [2]int32{3280, 2464}

func probeCameras() ([]hw.CameraCapability, error) {
	monitor := gst.NewDeviceMonitor()
	monitor.AddFilter("Video/Source", nil)
	if ok := monitor.Start(); !ok {
		return nil, fmt.Errorf("gstdrv: starting device monitor")
	}
	defer monitor.Stop()

	var caps []hw.CameraCapability
	for i, dev := range monitor.GetDevices() {
		w, h := maxMode(dev.GetCaps())
		caps = append(caps, hw.CameraCapability{Index: i, MaxWidth: w, MaxHeight: h})
	}
	return caps, nil
}

// maxMode scans the device caps for the largest discrete width/height
// pair.
func maxMode(c *gst.Caps) (int32, int32) {
	w, h := fallbackMax[0], fallbackMax[1]
	if c == nil {
		return w, h
	}
	var bestW, bestH int32
	for i := 0; i < int(c.GetSize()); i++ {
		st := c.GetStructureAt(i)
		if st == nil {
			continue
		}
		wv, errW := st.GetValue("width")
		hv, errH := st.GetValue("height")
		if errW != nil || errH != nil {
			continue
		}
		wi, okW := wv.(int)
		hi, okH := hv.(int)
		if !okW || !okH {
			continue
		}
		if int32(wi) > bestW {
			bestW, bestH = int32(wi), int32(hi)
		}
	}
	if bestW > 0 && bestH > 0 {
		return bestW, bestH
	}
	return w, h
}
