// Package bridge implements hal.Hardware over the serial link to the
// microcontroller board. The board streams sensor lines and accepts
// actuator commands; see protocol.go for the wire format.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/dealr/internal/hal"
	"github.com/banshee-data/dealr/internal/monitoring"
)

var ErrNotReady = errors.New("bridge did not answer HELLO")

// Link is the part of the serial multiplexer the bridge depends on.
type Link interface {
	Subscribe() (string, chan string)
	Unsubscribe(string)
	SendCommand(string) error
}

// Bridge caches the latest sensor values reported by the board.
type Bridge struct {
	link Link

	mu      sync.Mutex
	color   hal.ColorSample
	mark    uint16
	present bool
	rig     bool
	buttons [hal.NumButtons]bool
	bad     int

	readyOnce sync.Once
	ready     chan struct{}
}

var (
	_ hal.Hardware = (*Bridge)(nil)
	_ hal.Display  = (*Bridge)(nil)
)

// New returns a bridge speaking over link. Call Run to start consuming
// sensor lines.
func New(link Link) *Bridge {
	return &Bridge{link: link, ready: make(chan struct{})}
}

// Run consumes inbound lines until ctx is done or the link closes.
func (b *Bridge) Run(ctx context.Context) error {
	id, lines := b.link.Subscribe()
	defer b.link.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			b.Apply(line)
		}
	}
}

// Apply folds one inbound line into the cached sensor state. Malformed
// lines are counted and dropped.
func (b *Bridge) Apply(raw string) {
	l, err := ParseLine(raw)
	if err != nil {
		b.mu.Lock()
		b.bad++
		b.mu.Unlock()
		monitoring.Verbosef("bridge: %v", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	switch l.Kind {
	case KindColor:
		b.color = hal.ColorSample{
			R: uint16(l.Values[0]),
			G: uint16(l.Values[1]),
			B: uint16(l.Values[2]),
			C: uint16(l.Values[3]),
		}
	case KindMark:
		b.mark = uint16(l.Values[0])
	case KindBeam:
		// active low
		b.present = l.Values[0] == 0
	case KindButton:
		if i := l.Values[0]; i < hal.NumButtons {
			b.buttons[i] = l.Values[1] == 0
		}
	case KindRig:
		b.rig = l.Values[0] != 0
	case KindReady:
		b.readyOnce.Do(func() { close(b.ready) })
	}
}

// Handshake sends HELLO and waits for READY.
func (b *Bridge) Handshake(ctx context.Context, timeout time.Duration) error {
	if err := b.link.SendCommand("HELLO"); err != nil {
		return fmt.Errorf("send HELLO: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case <-b.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrNotReady, ctx.Err())
	}
}

// MalformedLines returns the number of lines dropped by Apply.
func (b *Bridge) MalformedLines() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bad
}

func (b *Bridge) ReadColor() hal.ColorSample {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.color
}

func (b *Bridge) ReadMarkBrightness() uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mark
}

func (b *Bridge) CardPresent() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.present
}

func (b *Bridge) RigSwitch() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rig
}

func (b *Bridge) ButtonDown(i int) bool {
	if i < 0 || i >= hal.NumButtons {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buttons[i]
}

func (b *Bridge) SetRotation(pwm uint8, dir hal.Direction) error {
	return b.link.SendCommand(RotateCommand(pwm, dir))
}

func (b *Bridge) SetFlywheel(pwm uint8, reverse bool) error {
	return b.link.SendCommand(FlywheelCommand(pwm, reverse))
}

func (b *Bridge) SetFeed(angle uint8) error {
	return b.link.SendCommand(FeedCommand(angle))
}

// Show forwards a face to the board's display. Display writes are best
// effort; a lost face is redrawn by the next one.
func (b *Bridge) Show(text string) {
	if err := b.link.SendCommand(DisplayCommand(text)); err != nil {
		monitoring.Verbosef("bridge: display: %v", err)
	}
}
