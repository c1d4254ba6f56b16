package lift

import "github.com/slavakukuyev/elevator-fleet/internal/domain"

// Driver is the hardware collaborator the Lift State Machine drives: motor,
// door lamp and button lamps over a local socket (spec §6). The core only
// depends on this interface; the physical link is out of scope.
type Driver interface {
	SetMotorDirection(dir domain.Direction) error
	SetDoorLight(on bool) error
	SetButtonLamp(buttonType domain.ButtonType, floor domain.Floor, on bool) error
}

// FloorSensor is the notification source the Lift subscribes to: one event
// per floor arrival. Its producer (the physical floor sensor poller) is out
// of scope; tests and local runs use a simulated one.
type FloorSensor interface {
	Events() <-chan domain.Floor
}

// ButtonPress is one button_pressed(type, floor) notification from the
// hardware button poller (spec §6).
type ButtonPress struct {
	ButtonType domain.ButtonType
	Floor      domain.Floor
}

// ButtonSensor is the notification source a node's auctioneer subscribes to
// for locally-pressed buttons. Its producer (the physical button poller) is
// out of scope; tests and local runs use a simulated one.
type ButtonSensor interface {
	ButtonEvents() <-chan ButtonPress
}

// SimDriver is an in-memory Driver + FloorSensor + ButtonSensor that
// simulates cab movement one floor per Advance call, the same role
// the teacher's elevator.Run fulfilled by sleeping eachFloorDuration between
// steps, plus a button channel a test or CLI can push presses onto.
type SimDriver struct {
	events         chan domain.Floor
	buttons        chan ButtonPress
	floor          domain.Floor
	motorDirection domain.Direction
}

// NewSimDriver builds a SimDriver seeded at startFloor.
func NewSimDriver(startFloor domain.Floor) *SimDriver {
	return &SimDriver{
		events:  make(chan domain.Floor, 8),
		buttons: make(chan ButtonPress, 8),
		floor:   startFloor,
	}
}

// Events implements FloorSensor.
func (d *SimDriver) Events() <-chan domain.Floor {
	return d.events
}

// ButtonEvents implements ButtonSensor.
func (d *SimDriver) ButtonEvents() <-chan ButtonPress {
	return d.buttons
}

// PressButton simulates a hardware button_pressed(type, floor) notification.
func (d *SimDriver) PressButton(buttonType domain.ButtonType, floor domain.Floor) {
	d.buttons <- ButtonPress{ButtonType: buttonType, Floor: floor}
}

// SetMotorDirection implements Driver. A non-idle direction starts the
// simulated motor; Idle stops it.
func (d *SimDriver) SetMotorDirection(dir domain.Direction) error {
	d.motorDirection = dir
	return nil
}

// SetDoorLight implements Driver as a no-op; simulated cabs have no lamp.
func (d *SimDriver) SetDoorLight(on bool) error { return nil }

// SetButtonLamp implements Driver as a no-op for the same reason.
func (d *SimDriver) SetButtonLamp(buttonType domain.ButtonType, floor domain.Floor, on bool) error {
	return nil
}

// Advance simulates the motor reaching the next floor in its current
// direction and emits a floor sensor event. Tests drive this explicitly
// instead of waiting on a wall-clock timer.
func (d *SimDriver) Advance() {
	switch d.motorDirection {
	case domain.DirectionUp:
		d.floor = domain.NewFloor(d.floor.Value() + 1)
	case domain.DirectionDown:
		d.floor = domain.NewFloor(d.floor.Value() - 1)
	default:
		return
	}
	d.events <- d.floor
}
