// Package camgraph configures and drives a fixed-topology media pipeline
// on an embedded SoC: camera sensors feed a chain of hardware stages
// (splitting, image processing, display composition) that delivers
// decoded frames to application code while rendering them to a display
// overlay.
//
// # Philosophy
//
// "Declare the graph, then pump frames. The hardware owns the buffers."
//
// Callers describe what they want (camera, resolution, output count,
// display geometry); camgraph translates that into a DAG of hardware
// stages and connections, circulates buffer headers through it, and
// hands out one FrameHandle per output.
//
// # Basic usage
//
//	if err := camgraph.Init(); err != nil {
//	    log.Fatal(err)
//	}
//	defer camgraph.Finalize()
//
//	fc, err := camgraph.ConfigCameraFrame(0, 640, 480, camgraph.FormatRGB24, true)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	camgraph.ConfigCameraFrameRender(fc, camgraph.RenderConfig{Fullscreen: true, Layer: 5})
//	if err := camgraph.FinishConfig(); err != nil {
//	    log.Fatal(err)
//	}
//
//	for i := 0; i < 20; i++ {
//	    if err := fc.CaptureNextFrame(ctx); err != nil {
//	        log.Fatal(err)
//	    }
//	    pixels, _ := fc.Frame()
//	    process(pixels)
//	    fc.Render() // or fc.Free() when not rendering
//	}
//
// # Ordering contract
//
// Configuration calls must precede FinishConfig; FinishConfig must
// precede any capture. Per cycle, CaptureNextFrame must precede Frame
// and Render, which otherwise fail with ErrNoFrameAvailable. After
// Render the display stage owns the buffer; Free becomes a no-op for
// that cycle.
//
// # Concurrency
//
// Camera slots are independent and may be driven by independent
// goroutines. A single FrameHandle is not safe for concurrent use; the
// caller serializes capture/get/free/render per output. Blocking waits
// take a context.Context; there is no other cancellation primitive.
//
// # Drivers
//
// The graph runs against an hw.Driver. The default is the
// GStreamer-backed driver (hw/gstdrv); hw/sim is a hardware-free
// software driver for tests and development machines.
//
// # Raw sensor path
//
// ConfigRawSensor switches a slot to raw Bayer ingestion: packed 8-, 10-
// or 12-bit sensor data is unpacked, gain-corrected and demosaiced in
// software, with a per-frame histogram feeding sensor auto-exposure.
// Requires a driver with raw receiver support.
package camgraph
