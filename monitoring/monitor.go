// Package monitoring serves the progress of a simulation run over HTTP.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"reflect"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/sarchlab/rvbench/sim"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// DefaultUpdateInterval is the number of cycles between two updates of the
// monitored state.
const DefaultUpdateInterval = 1000

// An Inspector is a device that can hand out a copy of its internal state.
// The copy must not share memory with the device.
type Inspector interface {
	Inspect() any
}

type nowRsp struct {
	Time   uint64 `json:"time"`
	Cycle  uint64 `json:"cycle"`
	Status string `json:"status"`
}

// Monitor turns a simulation run into a server that can be watched from a
// browser. It is a hook on the driver and only reads the copies that the hook
// makes, so the simulation loop never waits on a request.
type Monitor struct {
	portNumber     int
	updateInterval uint64
	openBrowser    bool
	logger         *log.Logger

	lock        sync.Mutex
	now         nowRsp
	deviceState any

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
	runBar           *ProgressBar

	server *http.Server
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		updateInterval: DefaultUpdateInterval,
		logger:         log.New(os.Stderr, "", 0),
	}
}

// WithPortNumber sets the port number of the monitor. Zero picks a free port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		m.logger.Printf(
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithUpdateInterval sets the number of cycles between two updates.
func (m *Monitor) WithUpdateInterval(cycles uint64) *Monitor {
	if cycles == 0 {
		panic("update interval must be positive")
	}

	m.updateInterval = cycles

	return m
}

// WithBrowser makes StartServer open the monitoring page in a browser.
func (m *Monitor) WithBrowser(open bool) *Monitor {
	m.openBrowser = open
	return m
}

// WithLogger sets where the monitor reports its address and problems.
func (m *Monitor) WithLogger(logger *log.Logger) *Monitor {
	m.logger = logger
	return m
}

// RegisterDriver hooks the monitor to a driver and creates a progress bar
// for the cycle budget of the run.
func (m *Monitor) RegisterDriver(d *sim.Driver) {
	m.runBar = m.CreateProgressBar("Simulation", d.Timeout())

	m.lock.Lock()
	m.now.Status = d.Status().String()
	m.lock.Unlock()

	d.AcceptHook(m)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := newProgressBar(name, total)

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// Func updates the monitored state every few cycles and when the run ends.
func (m *Monitor) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case sim.HookPosActiveEdge:
		s := ctx.Item.(sim.Snapshot)

		// The cycle counter moves on right after the edge hooks.
		cycle := s.Cycle + 1
		if cycle%m.updateInterval != 0 {
			return
		}

		m.update(ctx.Domain, nowRsp{
			Time:   uint64(s.Time),
			Cycle:  cycle,
			Status: sim.StatusRunning.String(),
		})
	case sim.HookPosRunEnd:
		out := ctx.Item.(sim.Outcome)

		m.update(ctx.Domain, nowRsp{
			Time:   uint64(out.Time),
			Cycle:  out.Cycles,
			Status: out.Status.String(),
		})

		if m.runBar != nil {
			m.runBar.Complete()
		}
	}
}

func (m *Monitor) update(domain sim.Hookable, now nowRsp) {
	var state any

	if d, ok := domain.(*sim.Driver); ok {
		if inspector, ok := d.Device().(Inspector); ok {
			state = inspector.Inspect()
		}
	}

	m.lock.Lock()
	m.now = now
	if state != nil {
		m.deviceState = state
	}
	m.lock.Unlock()

	if m.runBar != nil {
		m.runBar.MoveTo(now.Cycle)
	}
}

// Handler returns the HTTP routes of the monitor.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/now", m.reportNow)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.HandleFunc("/api/device", m.serializeDevice)
	r.HandleFunc("/api/field/{path}", m.reportField)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	return r
}

// StartServer starts the monitor as a web server and returns its address.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	m.logger.Printf("Monitoring simulation with %s", url)

	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Printf("Monitoring server stopped: %v", err)
		}
	}()

	if m.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			m.logger.Printf("Cannot open browser: %v", err)
		}
	}

	return url, nil
}

// StopServer shuts the server down.
func (m *Monitor) StopServer(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) reportNow(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	now := m.now
	m.lock.Unlock()

	writeJSON(w, now)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]*ProgressBar, len(m.progressBars))
	copy(bars, m.progressBars)
	m.progressBarsLock.Unlock()

	rsp := make([]json.RawMessage, 0, len(bars))

	for _, b := range bars {
		b.Lock()
		data, err := json.Marshal(b)
		b.Unlock()
		dieOnErr(err)

		rsp = append(rsp, data)
	}

	writeJSON(w, rsp)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	memoryInfo, err := proc.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, prof)
}

func (m *Monitor) serializeDevice(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	state := m.deviceState
	m.lock.Unlock()

	if state == nil {
		http.Error(w, "Device state not available", http.StatusNotFound)
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(state)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

func (m *Monitor) reportField(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]

	m.lock.Lock()
	state := m.deviceState
	m.lock.Unlock()

	if state == nil {
		http.Error(w, "Device state not available", http.StatusNotFound)
		return
	}

	elem, err := walkFields(state, path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, elem.Interface())
}

// walkFields follows a dot-separated path of field names and slice or array
// indices from v.
func walkFields(v any, path string) (reflect.Value, error) {
	elem := reflect.ValueOf(v)

	fieldNames := strings.Split(path, ".")

	for len(fieldNames) > 0 {
		switch elem.Kind() {
		case reflect.Ptr, reflect.Interface:
			elem = elem.Elem()
		case reflect.Struct:
			field, ok := elem.Type().FieldByName(fieldNames[0])
			if !ok || !field.IsExported() {
				return elem, fmt.Errorf("no field %q", fieldNames[0])
			}

			elem = elem.FieldByIndex(field.Index)
			fieldNames = fieldNames[1:]
		case reflect.Slice, reflect.Array:
			index, err := strconv.Atoi(fieldNames[0])
			if err != nil || index < 0 || index >= elem.Len() {
				return elem, fmt.Errorf("bad index %q", fieldNames[0])
			}

			elem = elem.Index(index)
			fieldNames = fieldNames[1:]
		default:
			return elem, fmt.Errorf("cannot walk into %s at %q",
				elem.Kind(), fieldNames[0])
		}
	}

	if elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}

	if !elem.IsValid() {
		return elem, fmt.Errorf("nothing at %q", path)
	}

	return elem, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(data)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
