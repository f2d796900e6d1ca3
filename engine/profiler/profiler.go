package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/frame"
)

// Summary is one reporting interval of the Profiler.
type Summary struct {
	FPS         float64
	HeapMB      float64
	AllocRateMB float64
	SysMB       float64
	GCCount     uint32
	LastPauseUs uint64
	MaxPauseUs  uint64

	// Average stage durations over the interval.
	Resolve time.Duration
	Cull    time.Duration
	Clear   time.Duration
	Build   time.Duration

	// Per-frame averages of the culling counters.
	Visible float64
	Emitted float64
	// Totals over the interval.
	DroppedRecords  uint64
	DroppedDrawList uint64
}

// Profiler tracks frame rate, memory and culling statistics and logs a summary
// at a configurable interval.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	resolve, cull, clear, build time.Duration
	visible, emitted            int
	droppedRecords, droppedList uint64
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler() *Profiler {
	return &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
}

// SetInterval changes the reporting interval.
func (p *Profiler) SetInterval(d time.Duration) {
	p.updateInterval = d
}

// Tick should be called once per frame with that frame's statistics.
// Logs a summary when the update interval has elapsed.
//
// Parameters:
//   - stats: the frame statistics
//
// Returns:
//   - Summary: the interval summary, valid when the bool is true
//   - bool: true if a summary was produced this tick
func (p *Profiler) Tick(stats frame.Stats) (Summary, bool) {
	p.frameCount++
	p.resolve += stats.Resolve
	p.cull += stats.Cull
	p.clear += stats.Clear
	p.build += stats.Build
	p.visible += stats.TotalVisible()
	p.emitted += stats.TotalEmitted()
	p.droppedRecords += stats.DroppedRecords
	p.droppedList += stats.DroppedDrawList

	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return Summary{}, false
	}

	runtime.ReadMemStats(&p.memStats)
	frames := time.Duration(p.frameCount)
	s := Summary{
		FPS:     float64(p.frameCount) / elapsed.Seconds(),
		HeapMB:  float64(p.memStats.Alloc) / 1024 / 1024,
		SysMB:   float64(p.memStats.Sys) / 1024 / 1024,
		GCCount: p.memStats.NumGC,

		AllocRateMB: float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds(),

		Resolve: p.resolve / frames,
		Cull:    p.cull / frames,
		Clear:   p.clear / frames,
		Build:   p.build / frames,

		Visible:         float64(p.visible) / float64(p.frameCount),
		Emitted:         float64(p.emitted) / float64(p.frameCount),
		DroppedRecords:  p.droppedRecords,
		DroppedDrawList: p.droppedList,
	}

	if gcCount := s.GCCount; gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 GC pauses.
		s.LastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			s.MaxPauseUs = max(s.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	common.Logger().Info("profiler",
		"fps", s.FPS, "heap_mb", s.HeapMB, "alloc_rate_mb", s.AllocRateMB,
		"gc", s.GCCount, "gc_last_us", s.LastPauseUs, "gc_max_us", s.MaxPauseUs, "sys_mb", s.SysMB,
		"resolve", s.Resolve, "cull", s.Cull, "clear", s.Clear, "build", s.Build,
		"visible", s.Visible, "emitted", s.Emitted,
		"dropped_records", s.DroppedRecords, "dropped_draw_list", s.DroppedDrawList,
	)

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = s.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.resolve, p.cull, p.clear, p.build = 0, 0, 0, 0
	p.visible, p.emitted = 0, 0
	p.droppedRecords, p.droppedList = 0, 0
	return s, true
}
