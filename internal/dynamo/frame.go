package dynamo

// Frame is the mesh after a completed tick. Slices are owned by the
// simulation and only valid for the duration of the callback that
// receives them; keep a copy if needed later.
type Frame struct {
	Tick       int
	Time       float64
	Dt         float64
	Params     Params
	Positions  []Vec3
	Velocities []Vec3
}

type Metric interface {
	Name() string
	Observe(f Frame)
	Value() float64
	Reset()
}

type Observer interface {
	OnTick(f Frame)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(f Frame)

func (fn ObserverFunc) OnTick(f Frame) { fn(f) }
