package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Seann-Moser/pca9685-pwm/pkg/pca9685"
	"github.com/Seann-Moser/pca9685-pwm/pkg/pwm"
)

// Controller serves the ports of a registry over HTTP. Ports are opened on
// first request and kept, so the cached duty cycle behaves as it does for
// any other long-lived caller.
type Controller struct {
	reg       *pwm.Registry
	frequency float64
	log       *slog.Logger

	mu    sync.Mutex
	ports map[int]*pwm.Port
}

// PortStatus is the JSON form of a port.
type PortStatus struct {
	Port      int     `json:"port"`
	Board     int     `json:"board"`
	Channel   int     `json:"channel"`
	Frequency float64 `json:"frequency"`
	DutyCycle float64 `json:"duty_cycle"`
}

// PortUpdate is the body of a PUT. Exactly one field must be set.
type PortUpdate struct {
	DutyCycle *float64 `json:"duty_cycle,omitempty"`
	State     string   `json:"state,omitempty"`
}

// New returns a controller that opens boards at frequency.
func New(reg *pwm.Registry, frequency float64, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		reg:       reg,
		frequency: frequency,
		log:       log,
		ports:     make(map[int]*pwm.Port),
	}
}

// Port returns the open port n, opening it if needed.
func (c *Controller) Port(n int) (*pwm.Port, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.ports[n]; ok {
		return p, nil
	}
	p, err := c.reg.Open(pwm.FromConfig(pwm.Config{Port: n, Frequency: c.frequency}))
	if err != nil {
		return nil, err
	}
	c.ports[n] = p
	return p, nil
}

// Apply opens each configured port, letting its frequency decide the
// board's if it is the first port on that board.
func (c *Controller) Apply(ports []pwm.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pc := range ports {
		if pc.Frequency == 0 {
			pc.Frequency = c.frequency
		}
		p, err := c.reg.Open(pwm.FromConfig(pc))
		if err != nil {
			return fmt.Errorf("open port %d: %w", pc.Port, err)
		}
		c.ports[pc.Port] = p
	}
	return nil
}

// Handler returns the HTTP API.
func (c *Controller) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ports/{port}", c.handleGetPort)
	mux.HandleFunc("PUT /api/ports/{port}", c.handlePutPort)
	mux.HandleFunc("POST /api/boards/{board}/off", c.handleBoardOff)
	return mux
}

// StartServer serves Handler on addr until ctx is done.
func (c *Controller) StartServer(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: c.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		c.log.Info("server running", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (c *Controller) handleGetPort(w http.ResponseWriter, r *http.Request) {
	p, ok := c.portFromPath(w, r)
	if !ok {
		return
	}
	c.writeStatus(w, p)
}

func (c *Controller) handlePutPort(w http.ResponseWriter, r *http.Request) {
	p, ok := c.portFromPath(w, r)
	if !ok {
		return
	}

	var u PortUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var err error
	switch {
	case u.DutyCycle != nil && u.State == "":
		err = p.Write(*u.DutyCycle)
	case u.DutyCycle == nil && u.State == "on":
		err = p.On()
	case u.DutyCycle == nil && u.State == "off":
		err = p.Off()
	default:
		http.Error(w, `set either "duty_cycle" or "state": "on"|"off"`, http.StatusBadRequest)
		return
	}
	if err != nil {
		c.writeError(w, err)
		return
	}
	c.log.Debug("port updated", slog.Int("port", p.Number()), slog.String("state", u.State))
	c.writeStatus(w, p)
}

func (c *Controller) handleBoardOff(w http.ResponseWriter, r *http.Request) {
	board, err := strconv.Atoi(r.PathValue("board"))
	if err != nil || board < 0 || board >= pca9685.MaxBoards {
		http.Error(w, fmt.Sprintf("invalid board %q", r.PathValue("board")), http.StatusBadRequest)
		return
	}
	p, err := c.Port(board * pca9685.ChannelsPerBoard)
	if err != nil {
		c.writeError(w, err)
		return
	}
	if err := p.AllOff(); err != nil {
		c.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) portFromPath(w http.ResponseWriter, r *http.Request) (*pwm.Port, bool) {
	n, err := strconv.Atoi(r.PathValue("port"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid port %q", r.PathValue("port")), http.StatusBadRequest)
		return nil, false
	}
	p, err := c.Port(n)
	if err != nil {
		c.writeError(w, err)
		return nil, false
	}
	return p, true
}

// writeStatus reports the hardware duty cycle, refreshing the port cache.
func (c *Controller) writeStatus(w http.ResponseWriter, p *pwm.Port) {
	d, err := p.Read()
	if err != nil {
		c.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(PortStatus{
		Port:      p.Number(),
		Board:     p.BoardIndex(),
		Channel:   p.Channel(),
		Frequency: p.Frequency(),
		DutyCycle: d,
	})
}

func (c *Controller) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	if isValidation(err) {
		status = http.StatusBadRequest
	} else {
		c.log.Error("bus operation failed", slog.Any("error", err))
	}
	http.Error(w, err.Error(), status)
}

func isValidation(err error) bool {
	for _, target := range []error{
		pwm.ErrInvalidPort,
		pwm.ErrInvalidConfig,
		pca9685.ErrInvalidBoardIndex,
		pca9685.ErrInvalidChannel,
		pca9685.ErrInvalidFrequency,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
