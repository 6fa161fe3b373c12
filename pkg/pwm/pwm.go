// Package pwm addresses the channels of up to pca9685.MaxBoards chained
// PCA9685 boards as one flat range of ports.
//
// Port n lives on board n/16, channel n%16. A Registry creates each board the
// first time one of its ports is opened and shares it with every later port
// on that board. The frequency a board is created with is kept for the life
// of the Registry; later requests for another frequency are ignored.
package pwm

import (
	"log/slog"
	"sync"

	"github.com/Seann-Moser/pca9685-pwm/pkg/pca9685"
)

// Registry owns one pca9685.Board per board index on a bus.
type Registry struct {
	mu     sync.Mutex
	bus    pca9685.Bus
	boards [pca9685.MaxBoards]*pca9685.Board
	opts   []pca9685.Option
	log    *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithBoardOptions passes opts to every board the registry creates.
func WithBoardOptions(opts ...pca9685.Option) RegistryOption {
	return func(r *Registry) { r.opts = append(r.opts, opts...) }
}

// WithLogger sets the registry logger. Boards inherit it unless
// WithBoardOptions overrides it.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// NewRegistry returns an empty registry on bus.
func NewRegistry(bus pca9685.Bus, opts ...RegistryOption) *Registry {
	r := &Registry{bus: bus, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Board returns the board at index, or nil if no port on it was opened.
func (r *Registry) Board(index int) *pca9685.Board {
	if index < 0 || index >= pca9685.MaxBoards {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.boards[index]
}

// Open resolves spec, creates the board behind it if needed and returns a
// Port whose cached duty cycle is read from the hardware.
func (r *Registry) Open(spec PortSpec) (*Port, error) {
	port, hz, err := spec.resolve()
	if err != nil {
		return nil, err
	}
	boardIndex, ch := Split(port)

	b, err := r.board(boardIndex, hz)
	if err != nil {
		return nil, err
	}

	p := &Port{board: b, number: port, boardIndex: boardIndex, ch: ch}
	if _, err := p.Read(); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Registry) board(index int, hz float64) (*pca9685.Board, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b := r.boards[index]; b != nil {
		if b.Frequency() != hz {
			r.log.Debug("pwm board frequency already set, ignoring request",
				slog.Int("board", index),
				slog.Float64("hz", b.Frequency()),
				slog.Float64("requested_hz", hz))
		}
		return b, nil
	}

	opts := append([]pca9685.Option{pca9685.WithLogger(r.log)}, r.opts...)
	b, err := pca9685.New(r.bus, index, opts...)
	if err != nil {
		return nil, err
	}
	if err := b.SetFrequency(hz); err != nil {
		return nil, err
	}
	r.boards[index] = b
	r.log.Info("pwm board initialized",
		slog.Int("board", index),
		slog.String("address", fmtAddr(b.Address())),
		slog.Float64("hz", hz))
	return b, nil
}

// Port is one channel of one board. Its duty cycle getter returns the last
// value written or read, not necessarily what the hardware is doing.
type Port struct {
	mu         sync.Mutex
	board      *pca9685.Board
	number     int
	boardIndex int
	ch         int
	duty       float64
}

// Number returns the flat port number.
func (p *Port) Number() int { return p.number }

// Channel returns the channel within the board.
func (p *Port) Channel() int { return p.ch }

// BoardIndex returns the index of the board the port lives on.
func (p *Port) BoardIndex() int { return p.boardIndex }

// Frequency returns the PWM frequency of the port's board.
func (p *Port) Frequency() float64 { return p.board.Frequency() }

// DutyCycle returns the cached duty cycle. It is not refreshed by On, Off
// or AllOff; call Read for the hardware value.
func (p *Port) DutyCycle() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duty
}

// SetDutyCycle is Write.
func (p *Port) SetDutyCycle(duty float64) error { return p.Write(duty) }

// Write sets the duty cycle, saturating to [0,1], and caches the saturated
// value.
func (p *Port) Write(duty float64) error {
	duty = clamp(duty)
	if err := p.board.WriteChannel(p.ch, duty); err != nil {
		return err
	}
	p.mu.Lock()
	p.duty = duty
	p.mu.Unlock()
	return nil
}

// Read returns the duty cycle reported by the hardware and caches it.
func (p *Port) Read() (float64, error) {
	duty, err := p.board.ReadChannel(p.ch)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	p.duty = duty
	p.mu.Unlock()
	return duty, nil
}

// On forces the port fully on.
func (p *Port) On() error { return p.board.On(p.ch) }

// Off forces the port fully off.
func (p *Port) Off() error { return p.board.Off(p.ch) }

// AllOff forces every channel on the port's board off.
func (p *Port) AllOff() error { return p.board.AllOff() }
